// Package session hosts game engines for remote callers. A Manager owns every
// live session, serializes calls into each engine, records finished games and
// expires sessions nobody has touched for a while.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/gameid"
	"github.com/lox/pebbles/internal/randutil"
	"github.com/lox/pebbles/internal/store"
)

var (
	// ErrNotFound is returned for unknown or expired session IDs.
	ErrNotFound = errors.New("session not found")
	// ErrClosed is returned by calls racing a session being closed.
	ErrClosed = errors.New("session closed")
)

const (
	DefaultIdleTimeout  = 30 * time.Minute
	DefaultReapInterval = time.Minute
)

// Info summarizes a live session.
type Info struct {
	ID         string         `json:"id"`
	State      game.GameState `json:"state"`
	LastActive time.Time      `json:"last_active"`
}

// Manager owns the live sessions.
type Manager struct {
	store        store.Store
	logger       *log.Logger
	clock        quartz.Clock
	ids          *gameid.Generator
	sources      func() randutil.Source
	idleTimeout  time.Duration
	reapInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the real clock, typically with a quartz mock in tests.
func WithClock(clock quartz.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithIdleTimeout sets how long a session may go untouched before Reap
// removes it. Zero disables expiry.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithReapInterval sets how often Run calls Reap.
func WithReapInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.reapInterval = d
		}
	}
}

// WithSourceFactory sets where each new engine draws randomness from.
func WithSourceFactory(f func() randutil.Source) Option {
	return func(m *Manager) {
		if f != nil {
			m.sources = f
		}
	}
}

// WithIDGenerator replaces the session and game ID generator.
func WithIDGenerator(g *gameid.Generator) Option {
	return func(m *Manager) {
		if g != nil {
			m.ids = g
		}
	}
}

// NewManager creates a manager recording finished games into st.
func NewManager(st store.Store, logger *log.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:        st,
		logger:       logger.WithPrefix("sessions"),
		clock:        quartz.NewReal(),
		ids:          gameid.NewGenerator(nil),
		sources:      randutil.Crypto,
		idleTimeout:  DefaultIdleTimeout,
		reapInterval: DefaultReapInterval,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session with a game built from cfg. notifier, which
// may be nil, receives every event the session's engine emits. The returned
// events include the program's opening move when it goes first.
//
// A delivery failure still creates the session; the error wraps
// game.ErrDelivery.
func (m *Manager) Create(ctx context.Context, cfg game.Init, notifier game.Notifier) (*Session, []game.Event, error) {
	id, err := m.ids.Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("generate session id: %w", err)
	}

	logger := m.logger.With("session", id)
	s := &Session{
		id:      id,
		manager: m,
		logger:  logger,
		engine:  game.NewEngine(m.sources(), logger, game.WithNotifier(notifier)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.engine.Initialize(ctx, cfg)
	if err != nil && !errors.Is(err, game.ErrDelivery) {
		return nil, nil, err
	}
	s.touch()
	if berr := s.beginGame(); berr != nil {
		return nil, nil, fmt.Errorf("generate game id: %w", berr)
	}
	s.countMoves(events)
	s.recordIfOver(ctx, false)

	m.mu.Lock()
	m.sessions[id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("Session created", "session", id, "total", total)
	return s, events, err
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Do applies action to the session's game.
func (m *Manager) Do(ctx context.Context, id string, action game.Action) (game.Reply, error) {
	s, err := m.Get(id)
	if err != nil {
		return game.Reply{}, err
	}
	return s.Do(ctx, action)
}

// State returns a snapshot of the session's game.
func (m *Manager) State(id string) (game.GameState, error) {
	s, err := m.Get(id)
	if err != nil {
		return game.GameState{}, err
	}
	return s.State()
}

// Close removes a session. Unfinished games are not recorded.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.close()
	m.logger.Info("Session closed", "session", id)
	return nil
}

// List returns every live session ordered by ID, which is creation order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		state, err := s.State()
		if err != nil {
			continue
		}
		infos = append(infos, Info{ID: s.id, State: state, LastActive: s.LastActive()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes sessions idle for longer than the idle timeout and returns how
// many it removed.
func (m *Manager) Reap(ctx context.Context) int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := m.clock.Now().Add(-m.idleTimeout)

	var expired []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if ctx.Err() != nil {
			break
		}
		if err := m.Close(id); err == nil {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Reaped idle sessions", "removed", removed, "remaining", m.Len())
	}
	return removed
}

// Run reaps idle sessions every reap interval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.reapInterval, "session", "reap")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reap(ctx)
		}
	}
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	m.logger.Info("Sessions shut down", "closed", len(sessions))
}
