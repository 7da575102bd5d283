package simulator

import (
	"fmt"
	rand "math/rand/v2"
	"sort"

	"github.com/lox/pebbles/internal/game"
)

// Strategy picks the user side's moves.
type Strategy interface {
	Name() string
	Move(state game.GameState, rng *rand.Rand) uint32
}

type randomStrategy struct{}

func (randomStrategy) Name() string { return "random" }

func (randomStrategy) Move(state game.GameState, rng *rand.Rand) uint32 {
	return rng.Uint32N(state.MaxPebblesPerTurn) + 1
}

// optimalStrategy leaves the opponent a multiple of max+1 whenever it can.
type optimalStrategy struct{}

func (optimalStrategy) Name() string { return "optimal" }

func (optimalStrategy) Move(state game.GameState, rng *rand.Rand) uint32 {
	period := uint64(state.MaxPebblesPerTurn) + 1
	if take := uint64(state.PebblesRemaining) % period; take != 0 {
		return uint32(take)
	}
	return randomStrategy{}.Move(state, rng)
}

// greedyStrategy always takes as many as allowed.
type greedyStrategy struct{}

func (greedyStrategy) Name() string { return "greedy" }

func (greedyStrategy) Move(state game.GameState, _ *rand.Rand) uint32 {
	return state.MaxPebblesPerTurn
}

var strategies = map[string]Strategy{
	"random":  randomStrategy{},
	"optimal": optimalStrategy{},
	"greedy":  greedyStrategy{},
}

// StrategyByName looks up a built-in strategy.
func StrategyByName(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (want one of %v)", name, StrategyNames())
	}
	return s, nil
}

// StrategyNames lists the built-in strategies.
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
