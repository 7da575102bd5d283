package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/store"
)

// Session hosts one engine. Calls are serialized so the engine sees one
// action at a time, however many connections share the session.
type Session struct {
	id      string
	manager *Manager
	logger  *log.Logger

	mu     sync.Mutex
	engine *game.Engine
	closed bool

	// current game bookkeeping, reset on restart
	gameID    string
	startedAt time.Time
	moves     int
	recorded  bool

	lastActive atomic.Int64
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// LastActive returns when the session last handled a call.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// State returns a snapshot of the hosted game.
func (s *Session) State() (game.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return game.GameState{}, ErrClosed
	}
	return s.engine.State()
}

// Do routes action to the engine. A game that ends during the call is
// recorded in the history store exactly once.
func (s *Session) Do(ctx context.Context, action game.Action) (game.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return game.Reply{}, ErrClosed
	}

	before, err := s.engine.State()
	if err != nil {
		return game.Reply{}, err
	}

	reply, err := s.engine.Handle(ctx, action)
	s.touch()
	if err != nil && !errors.Is(err, game.ErrDelivery) {
		return reply, err
	}

	if action.Type == game.ActionRestart {
		if err := s.beginGame(); err != nil {
			s.logger.Error("Failed to start game record", "error", err)
		}
	}
	s.countMoves(reply.Events)

	forfeited := action.Type == game.ActionGiveUp && !before.IsOver()
	s.recordIfOver(ctx, forfeited)
	return reply, err
}

func (s *Session) touch() {
	s.lastActive.Store(s.manager.clock.Now().UnixNano())
}

func (s *Session) beginGame() error {
	id, err := s.manager.ids.Generate()
	if err != nil {
		return err
	}
	s.gameID = id
	s.startedAt = s.manager.clock.Now()
	s.moves = 0
	s.recorded = false
	return nil
}

func (s *Session) countMoves(events []game.Event) {
	for _, e := range events {
		if e.Type == game.EventCounterTurn {
			s.moves++
		}
	}
}

// recordIfOver writes the finished game to the store. Storage failures are
// logged and do not fail the call that ended the game.
func (s *Session) recordIfOver(ctx context.Context, forfeited bool) {
	if s.recorded || s.gameID == "" {
		return
	}
	state, err := s.engine.State()
	if err != nil || !state.IsOver() {
		return
	}
	s.recorded = true

	record := store.GameRecord{
		ID:                s.gameID,
		SessionID:         s.id,
		PebblesCount:      state.PebblesCount,
		MaxPebblesPerTurn: state.MaxPebblesPerTurn,
		Difficulty:        state.Difficulty,
		Winner:            *state.Winner,
		Forfeited:         forfeited,
		Moves:             s.moves,
		StartedAt:         s.startedAt,
		FinishedAt:        s.manager.clock.Now(),
	}
	if err := s.manager.store.RecordGame(ctx, record); err != nil {
		s.logger.Warn("Failed to record game", "game", s.gameID, "error", err)
		return
	}
	s.logger.Info("Game finished", "game", s.gameID, "winner", record.Winner, "moves", record.Moves, "forfeited", forfeited)
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
