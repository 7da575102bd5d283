// Package store persists finished games so the server can report history and
// win statistics across restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lox/pebbles/internal/game"
)

var (
	// ErrAlreadyExists is returned when a game ID was already recorded.
	ErrAlreadyExists = errors.New("game already recorded")
	// ErrInvalidRecord is returned for records missing required fields.
	ErrInvalidRecord = errors.New("invalid game record")
)

// GameRecord describes one finished game.
type GameRecord struct {
	ID                string               `json:"id"`
	SessionID         string               `json:"session_id"`
	PebblesCount      uint32               `json:"pebbles_count"`
	MaxPebblesPerTurn uint32               `json:"max_pebbles_per_turn"`
	Difficulty        game.DifficultyLevel `json:"difficulty"`
	Winner            game.Player          `json:"winner"`
	Forfeited         bool                 `json:"forfeited"`
	Moves             int                  `json:"moves"`
	StartedAt         time.Time            `json:"started_at"`
	FinishedAt        time.Time            `json:"finished_at"`
}

// Validate checks the fields every backend relies on.
func (r GameRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if r.PebblesCount == 0 || r.MaxPebblesPerTurn == 0 {
		return fmt.Errorf("%w: pebble counts must be positive", ErrInvalidRecord)
	}
	if r.Moves < 0 {
		return fmt.Errorf("%w: negative move count", ErrInvalidRecord)
	}
	if !r.FinishedAt.IsZero() && r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("%w: finished before it started", ErrInvalidRecord)
	}
	return nil
}

// Tally counts outcomes.
type Tally struct {
	Games       int `json:"games"`
	UserWins    int `json:"user_wins"`
	ProgramWins int `json:"program_wins"`
	Forfeits    int `json:"forfeits"`
}

func (t *Tally) add(other Tally) {
	t.Games += other.Games
	t.UserWins += other.UserWins
	t.ProgramWins += other.ProgramWins
	t.Forfeits += other.Forfeits
}

// Stats aggregates every recorded game, overall and per difficulty.
type Stats struct {
	Tally
	ByDifficulty map[game.DifficultyLevel]Tally `json:"by_difficulty"`
}

// NewStats returns empty statistics with both difficulties present.
func NewStats() Stats {
	return Stats{
		ByDifficulty: map[game.DifficultyLevel]Tally{
			game.Easy: {},
			game.Hard: {},
		},
	}
}

// Add folds one tally for difficulty d into the totals.
func (s *Stats) Add(d game.DifficultyLevel, t Tally) {
	s.Tally.add(t)
	per := s.ByDifficulty[d]
	per.add(t)
	s.ByDifficulty[d] = per
}

// Record folds a single game into the totals.
func (s *Stats) Record(r GameRecord) {
	t := Tally{Games: 1}
	if r.Winner == game.User {
		t.UserWins = 1
	} else {
		t.ProgramWins = 1
	}
	if r.Forfeited {
		t.Forfeits = 1
	}
	s.Add(r.Difficulty, t)
}

// Store records finished games.
type Store interface {
	// RecordGame persists a finished game. Recording the same ID twice
	// returns ErrAlreadyExists.
	RecordGame(ctx context.Context, record GameRecord) error

	// ListGames returns up to limit records, most recently finished first.
	// A limit of zero or less returns everything.
	ListGames(ctx context.Context, limit int) ([]GameRecord, error)

	// Stats summarizes every recorded game.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
