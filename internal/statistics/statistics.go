package statistics

import (
	"fmt"
	"math"
	"sort"

	"github.com/lox/pebbles/internal/game"
)

// GameResult represents the outcome of a single simulated game
type GameResult struct {
	Seed         int64       // RNG seed for this game (for replay)
	FirstPlayer  game.Player // Who opened the game
	Winner       game.Player
	UserMoves    int
	ProgramMoves int
}

// Moves returns the total number of turns played.
func (r GameResult) Moves() int {
	return r.UserMoves + r.ProgramMoves
}

// OpenerStats tracks results for games opened by one side
type OpenerStats struct {
	Games    int
	UserWins int
}

// Statistics tracks the user side's results over many games
type Statistics struct {
	Games       int
	UserWins    int
	ProgramWins int
	Moves       []float64 // Game lengths for median/percentile calculation

	// Indexed by game.Player of the opener
	ByOpener [2]OpenerStats
}

// Add incorporates a new game result into the statistics
func (s *Statistics) Add(result GameResult) {
	s.Games++
	if result.Winner == game.User {
		s.UserWins++
	} else {
		s.ProgramWins++
	}
	s.Moves = append(s.Moves, float64(result.Moves()))

	if int(result.FirstPlayer) < len(s.ByOpener) {
		o := &s.ByOpener[result.FirstPlayer]
		o.Games++
		if result.Winner == game.User {
			o.UserWins++
		}
	}
}

// WinRate returns the fraction of games the user side won
func (s *Statistics) WinRate() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.UserWins) / float64(s.Games)
}

// Variance returns the sample variance of the per-game win indicator
func (s *Statistics) Variance() float64 {
	if s.Games < 2 {
		return 0
	}
	p := s.WinRate()
	n := float64(s.Games)
	return p * (1 - p) * n / (n - 1)
}

// StdDev returns the sample standard deviation of the win indicator
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the win rate
func (s *Statistics) StdError() float64 {
	if s.Games == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Games))
}

// ConfidenceInterval95 returns the 95% confidence interval for the win rate
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	rate := s.WinRate()
	margin := 1.96 * s.StdError() // 95% confidence
	return math.Max(0, rate-margin), math.Min(1, rate+margin)
}

// OpenerWinRate returns the user's win rate in games opened by opener
func (s *Statistics) OpenerWinRate(opener game.Player) float64 {
	if int(opener) >= len(s.ByOpener) {
		return 0
	}
	o := s.ByOpener[opener]
	if o.Games == 0 {
		return 0
	}
	return float64(o.UserWins) / float64(o.Games)
}

// MeanMoves returns the average game length in turns
func (s *Statistics) MeanMoves() float64 {
	if len(s.Moves) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range s.Moves {
		sum += m
	}
	return sum / float64(len(s.Moves))
}

// Median returns the median game length
func (s *Statistics) Median() float64 {
	if len(s.Moves) == 0 {
		return 0
	}
	sorted := s.sortedMoves()

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Percentile returns the game length at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Moves) == 0 {
		return 0
	}
	sorted := s.sortedMoves()

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func (s *Statistics) sortedMoves() []float64 {
	sorted := make([]float64, len(s.Moves))
	copy(sorted, s.Moves)
	sort.Float64s(sorted)
	return sorted
}

// Validate performs consistency checks on the collected data
func (s *Statistics) Validate() error {
	if s.Games <= 0 {
		return fmt.Errorf("invalid games count: %d", s.Games)
	}

	if s.UserWins+s.ProgramWins != s.Games {
		return fmt.Errorf("wins (%d user + %d program) do not add up to %d games",
			s.UserWins, s.ProgramWins, s.Games)
	}

	if len(s.Moves) != s.Games {
		return fmt.Errorf("moves array length (%d) does not match games count (%d)",
			len(s.Moves), s.Games)
	}

	openerGames, openerWins := 0, 0
	for _, o := range s.ByOpener {
		openerGames += o.Games
		openerWins += o.UserWins
	}
	if openerGames != s.Games || openerWins != s.UserWins {
		return fmt.Errorf("opener breakdown (%d games, %d wins) does not match totals (%d games, %d wins)",
			openerGames, openerWins, s.Games, s.UserWins)
	}
	return nil
}
