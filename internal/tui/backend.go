package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/pebbles/internal/client"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/session"
)

// Update is what the UI learns from one backend call.
type Update struct {
	Events       []game.Event
	Acknowledged bool
	State        game.GameState
}

// Backend plays games on behalf of the TUI.
type Backend interface {
	// Start begins a new game, replacing any current one.
	Start(ctx context.Context, cfg game.Init) (Update, error)
	Act(ctx context.Context, action game.Action) (Update, error)
	Close() error
}

// LocalBackend plays against an in-process session.
type LocalBackend struct {
	sessions *session.Manager
	current  *session.Session
}

// NewLocalBackend hosts games in sessions. Finished games are recorded by
// the manager's store.
func NewLocalBackend(sessions *session.Manager) *LocalBackend {
	return &LocalBackend{sessions: sessions}
}

func (b *LocalBackend) Start(ctx context.Context, cfg game.Init) (Update, error) {
	s, events, err := b.sessions.Create(ctx, cfg, nil)
	if err != nil {
		return Update{}, err
	}
	b.closeCurrent()
	b.current = s
	return b.update(events, false)
}

func (b *LocalBackend) Act(ctx context.Context, action game.Action) (Update, error) {
	if b.current == nil {
		return Update{}, game.ErrNotInitialized
	}
	reply, err := b.current.Do(ctx, action)
	if err != nil {
		return Update{}, err
	}
	return b.update(reply.Events, reply.Acknowledged)
}

func (b *LocalBackend) update(events []game.Event, acked bool) (Update, error) {
	state, err := b.current.State()
	if err != nil {
		return Update{}, err
	}
	return Update{Events: events, Acknowledged: acked, State: state}, nil
}

func (b *LocalBackend) closeCurrent() {
	if b.current != nil {
		_ = b.sessions.Close(b.current.ID())
		b.current = nil
	}
}

func (b *LocalBackend) Close() error {
	b.closeCurrent()
	return nil
}

// NetworkBackend plays against a pebbles server over a websocket.
type NetworkBackend struct {
	client  *client.Client
	timeout time.Duration
}

// NewNetworkBackend wraps a connected client. Each call waits at most
// timeout for the server to answer.
func NewNetworkBackend(c *client.Client, timeout time.Duration) *NetworkBackend {
	return &NetworkBackend{client: c, timeout: timeout}
}

func (b *NetworkBackend) Start(ctx context.Context, cfg game.Init) (Update, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	reply, err := b.client.Start(ctx, cfg)
	if err != nil {
		return Update{}, fmt.Errorf("start game: %w", err)
	}
	return fromReply(reply), nil
}

func (b *NetworkBackend) Act(ctx context.Context, action game.Action) (Update, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	reply, err := b.client.Act(ctx, action)
	if err != nil {
		return Update{}, err
	}
	return fromReply(reply), nil
}

func (b *NetworkBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *NetworkBackend) Close() error {
	return b.client.Disconnect()
}

func fromReply(reply *client.Reply) Update {
	return Update{Events: reply.Events, Acknowledged: reply.Acknowledged, State: reply.State}
}
