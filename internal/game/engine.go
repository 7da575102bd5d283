package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/pebbles/internal/randutil"
)

// Engine owns one GameState and applies the game rules to it.
type Engine struct {
	rng      randutil.Source
	notifier Notifier
	logger   *log.Logger
	state    *GameState
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier routes every emitted event through n.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// NewEngine creates an uninitialized engine drawing randomness from rng.
func NewEngine(rng randutil.Source, logger *log.Logger, opts ...Option) *Engine {
	e := &Engine{
		rng:      rng,
		notifier: nopNotifier{},
		logger:   logger.WithPrefix("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize creates the game from init. If the random draw picks the
// program to open, its move is applied before returning and is part of the
// returned events.
func (e *Engine) Initialize(ctx context.Context, cfg Init) ([]Event, error) {
	next, events, err := e.newGame(cfg)
	if err != nil {
		return nil, err
	}
	e.state = next
	e.logger.Debug("Initialized", "state", e.state)
	return events, e.deliver(ctx, events...)
}

// Restart discards the current game and builds a fresh one exactly as
// Initialize does, including a new first-mover draw.
func (e *Engine) Restart(ctx context.Context, cfg Init) ([]Event, error) {
	if e.state == nil {
		return nil, ErrNotInitialized
	}
	next, events, err := e.newGame(cfg)
	if err != nil {
		return nil, err
	}
	e.state = next
	e.logger.Debug("Restarted", "state", e.state)
	return events, e.deliver(ctx, events...)
}

// ApplyTurn plays count pebbles for whoever moves next and lets the program
// answer if it is then its turn. Once the game is over it changes nothing and
// returns the Won event again.
func (e *Engine) ApplyTurn(ctx context.Context, count uint32) ([]Event, error) {
	if e.state == nil {
		return nil, ErrNotInitialized
	}
	if e.state.IsOver() {
		won := Won(*e.state.Winner)
		return []Event{won}, e.deliver(ctx, won)
	}

	next := e.state.clone()
	events := []Event{applyTurn(&next, count)}

	replies, err := e.programTurns(&next)
	if err != nil {
		return nil, err
	}
	events = append(events, replies...)

	e.state = &next
	e.logger.Debug("After turn", "requested", count, "events", len(events), "state", e.state)
	return events, e.deliver(ctx, events...)
}

// GiveUp ends a live game in the program's favour, whoever asked.
func (e *Engine) GiveUp(ctx context.Context) (Event, error) {
	if e.state == nil {
		return Event{}, ErrNotInitialized
	}
	if !e.state.IsOver() {
		winner := Program
		e.state.Winner = &winner
		e.logger.Debug("Gave up", "state", e.state)
	}
	won := Won(*e.state.Winner)
	return won, e.deliver(ctx, won)
}

// State returns a snapshot of the current game.
func (e *Engine) State() (GameState, error) {
	if e.state == nil {
		return GameState{}, ErrNotInitialized
	}
	return e.state.clone(), nil
}

// Initialized reports whether Initialize has succeeded.
func (e *Engine) Initialized() bool {
	return e.state != nil
}

// Handle is the action entrypoint. A turn applied to a live game is
// acknowledged; a turn against a finished game only repeats the winner.
func (e *Engine) Handle(ctx context.Context, action Action) (Reply, error) {
	switch action.Type {
	case ActionTurn:
		over := e.state != nil && e.state.IsOver()
		events, err := e.ApplyTurn(ctx, action.Count)
		return Reply{Events: events, Acknowledged: err == nil && !over}, err

	case ActionGiveUp:
		event, err := e.GiveUp(ctx)
		if errors.Is(err, ErrNotInitialized) {
			return Reply{}, err
		}
		return Reply{Events: []Event{event}}, err

	case ActionRestart:
		if action.Init == nil {
			return Reply{}, fmt.Errorf("%w: restart without init", ErrUnknownAction)
		}
		events, err := e.Restart(ctx, *action.Init)
		return Reply{Events: events}, err

	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
	}
}

// newGame builds a state from init without touching the engine, so a
// randomness failure leaves the previous game in place.
func (e *Engine) newGame(cfg Init) (*GameState, []Event, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	random, err := e.draw()
	if err != nil {
		return nil, nil, err
	}

	first := User
	if random%2 != 0 {
		first = Program
	}

	state := &GameState{
		PebblesCount:      cfg.PebblesCount,
		MaxPebblesPerTurn: cfg.MaxPebblesPerTurn,
		PebblesRemaining:  cfg.PebblesCount,
		Difficulty:        cfg.Difficulty,
		FirstPlayer:       first,
	}
	e.logger.Debug("New game", "random", random, "first", first)

	events, err := e.programTurns(state)
	if err != nil {
		return nil, nil, err
	}
	return state, events, nil
}

// programTurns plays for the program while it is the program's move in a
// live game. applyTurn always hands the move to the user unless the game
// ends, so this plays at most once.
func (e *Engine) programTurns(state *GameState) ([]Event, error) {
	var events []Event
	for !state.IsOver() && state.FirstPlayer == Program {
		random, err := e.draw()
		if err != nil {
			return nil, err
		}
		count := ProgramMove(*state, random)
		e.logger.Debug("Program move", "random", random, "count", count, "remaining", state.PebblesRemaining)
		events = append(events, applyTurn(state, count))
	}
	return events, nil
}

func (e *Engine) draw() (uint32, error) {
	v, err := e.rng.Uint32()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	return v, nil
}

func (e *Engine) deliver(ctx context.Context, events ...Event) error {
	for _, event := range events {
		if err := e.notifier.Notify(ctx, event); err != nil {
			e.logger.Error("Failed to deliver event", "event", event, "error", err)
			return fmt.Errorf("%w: %w", ErrDelivery, err)
		}
	}
	return nil
}
