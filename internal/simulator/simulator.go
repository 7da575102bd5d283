package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/randutil"
	"github.com/lox/pebbles/internal/statistics"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for running simulations
type Config struct {
	Games    int
	Strategy string
	Game     game.Init
	Seed     int64
	// Workers bounds how many games run at once. Zero means GOMAXPROCS.
	Workers int
	Timeout time.Duration
	Logger  *log.Logger
}

// Simulator plays many games of one user strategy against the engine
type Simulator struct {
	config   Config
	strategy Strategy
}

// New creates a new simulator with the given configuration
func New(config Config) (*Simulator, error) {
	if config.Games <= 0 {
		return nil, fmt.Errorf("games must be positive, got %d", config.Games)
	}
	if err := config.Game.Validate(); err != nil {
		return nil, err
	}
	strategy, err := StrategyByName(config.Strategy)
	if err != nil {
		return nil, err
	}
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard)
	}
	return &Simulator{config: config, strategy: strategy}, nil
}

// Run plays every game and returns the aggregated results. Results depend
// only on the seed, not on how games are scheduled.
func (s *Simulator) Run(ctx context.Context) (*statistics.Statistics, error) {
	results := make([]statistics.GameResult, s.config.Games)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i := range results {
		g.Go(func() error {
			result, err := s.playGameWithTimeout(ctx, s.config.Seed+int64(i))
			if err != nil {
				return fmt.Errorf("game %d: %w", i+1, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &statistics.Statistics{}
	for _, result := range results {
		stats.Add(result)
	}
	if err := stats.Validate(); err != nil {
		return nil, fmt.Errorf("statistics validation failed: %w", err)
	}
	return stats, nil
}

// playGameWithTimeout runs a single game with timeout protection
func (s *Simulator) playGameWithTimeout(ctx context.Context, seed int64) (statistics.GameResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	result, err := s.playGame(ctx, seed)
	if errors.Is(err, context.DeadlineExceeded) {
		return result, fmt.Errorf("game timed out after %v (seed: %d)", s.config.Timeout, seed)
	}
	return result, err
}

// playGame plays one game to the end. The engine and the strategy draw from
// separate generators derived from seed.
func (s *Simulator) playGame(ctx context.Context, seed int64) (statistics.GameResult, error) {
	engine := game.NewEngine(randutil.NewSeeded(seed), s.config.Logger)
	rng := randutil.New(^seed)
	result := statistics.GameResult{Seed: seed}

	events, err := engine.Initialize(ctx, s.config.Game)
	if err != nil {
		return result, err
	}
	state, err := engine.State()
	if err != nil {
		return result, err
	}
	result.FirstPlayer = state.FirstPlayer
	if len(events) > 0 {
		result.FirstPlayer = game.Program
	}
	countMoves(&result, events)

	// every user turn removes at least one pebble
	for turns := uint64(0); !state.IsOver(); turns++ {
		if turns > uint64(s.config.Game.PebblesCount) {
			return result, fmt.Errorf("game did not finish (seed: %d)", seed)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		events, err := engine.ApplyTurn(ctx, s.strategy.Move(state, rng))
		if err != nil {
			return result, err
		}
		countMoves(&result, events)

		if state, err = engine.State(); err != nil {
			return result, err
		}
	}

	result.Winner = *state.Winner
	return result, nil
}

func countMoves(result *statistics.GameResult, events []game.Event) {
	for _, event := range events {
		if event.Type != game.EventCounterTurn {
			continue
		}
		if event.Player == game.User {
			result.UserMoves++
		} else {
			result.ProgramMoves++
		}
	}
}

// RunSimulation is a convenience function for running a simulation with basic parameters
func RunSimulation(ctx context.Context, games int, strategy string, cfg game.Init, seed int64, logger *log.Logger) (*statistics.Statistics, error) {
	simulator, err := New(Config{
		Games:    games,
		Strategy: strategy,
		Game:     cfg,
		Seed:     seed,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return simulator.Run(ctx)
}

// PrintSummary writes a summary of simulation results
func PrintSummary(w io.Writer, stats *statistics.Statistics, cfg Config) {
	low, high := stats.ConfidenceInterval95()

	fmt.Fprintf(w, "\n=== %s vs %s program (%d pebbles, max %d) ===\n",
		cfg.Strategy, cfg.Game.Difficulty, cfg.Game.PebblesCount, cfg.Game.MaxPebblesPerTurn)
	fmt.Fprintf(w, "Games played: %d\n", stats.Games)
	fmt.Fprintf(w, "User wins: %d  Program wins: %d\n", stats.UserWins, stats.ProgramWins)
	fmt.Fprintf(w, "Win rate: %.2f%%  (95%% CI: [%.2f%%, %.2f%%])\n", stats.WinRate()*100, low*100, high*100)

	fmt.Fprintf(w, "\n=== BY OPENER ===\n")
	for _, opener := range []game.Player{game.User, game.Program} {
		o := stats.ByOpener[opener]
		if o.Games > 0 {
			fmt.Fprintf(w, "%s opened: %d games, %.2f%% user wins\n", opener, o.Games, stats.OpenerWinRate(opener)*100)
		}
	}

	fmt.Fprintf(w, "\n=== GAME LENGTH ===\n")
	fmt.Fprintf(w, "Mean: %.2f turns  Median: %.1f  P5=%.0f P95=%.0f\n",
		stats.MeanMoves(), stats.Median(), stats.Percentile(0.05), stats.Percentile(0.95))
}
