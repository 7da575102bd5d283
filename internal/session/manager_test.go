package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/randutil"
	"github.com/lox/pebbles/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var easy = game.Init{PebblesCount: 15, MaxPebblesPerTurn: 4, Difficulty: game.Easy}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func fixedSources(v uint32) Option {
	return WithSourceFactory(func() randutil.Source { return randutil.Fixed(v) })
}

func newTestManager(t *testing.T, st store.Store, opts ...Option) *Manager {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	return NewManager(st, testLogger(), append([]Option{fixedSources(2)}, opts...)...)
}

type failingStore struct {
	store.Store
}

func (failingStore) RecordGame(context.Context, store.GameRecord) error {
	return errors.New("disk full")
}

func TestManager_PlayToWinRecordsOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := newTestManager(t, st)

	s, events, err := m.Create(ctx, easy, nil)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Len(t, s.ID(), 26)

	for i := 0; i < 3; i++ {
		_, err := m.Do(ctx, s.ID(), game.Turn(4))
		require.NoError(t, err)
	}
	reply, err := m.Do(ctx, s.ID(), game.Turn(4))
	require.NoError(t, err)
	assert.Equal(t, []game.Event{game.Won(game.User)}, reply.Events)

	games, err := st.ListGames(ctx, 0)
	require.NoError(t, err)
	require.Len(t, games, 1)
	record := games[0]
	assert.Equal(t, s.ID(), record.SessionID)
	assert.NotEqual(t, s.ID(), record.ID)
	assert.Equal(t, game.User, record.Winner)
	assert.False(t, record.Forfeited)
	assert.Equal(t, 5, record.Moves)
	assert.Equal(t, uint32(15), record.PebblesCount)
}

func TestManager_GiveUpAndRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := newTestManager(t, st)

	s, _, err := m.Create(ctx, easy, nil)
	require.NoError(t, err)

	_, err = m.Do(ctx, s.ID(), game.Turn(1))
	require.NoError(t, err)
	reply, err := m.Do(ctx, s.ID(), game.GiveUp())
	require.NoError(t, err)
	assert.Equal(t, []game.Event{game.Won(game.Program)}, reply.Events)

	// repeated give up changes nothing and records nothing new
	_, err = m.Do(ctx, s.ID(), game.GiveUp())
	require.NoError(t, err)

	games, err := st.ListGames(ctx, 0)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.True(t, games[0].Forfeited)
	assert.Equal(t, game.Program, games[0].Winner)
	assert.Equal(t, 2, games[0].Moves)

	_, err = m.Do(ctx, s.ID(), game.Restart(game.Init{PebblesCount: 5, MaxPebblesPerTurn: 5, Difficulty: game.Hard}))
	require.NoError(t, err)
	state, err := m.State(s.ID())
	require.NoError(t, err)
	assert.Equal(t, uint32(5), state.PebblesRemaining)
	assert.False(t, state.IsOver())

	_, err = m.Do(ctx, s.ID(), game.Turn(5))
	require.NoError(t, err)

	games, err = st.ListGames(ctx, 0)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.NotEqual(t, games[0].ID, games[1].ID)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ByDifficulty[game.Hard].UserWins)
	assert.Equal(t, 1, stats.ByDifficulty[game.Easy].Forfeits)
}

func TestManager_ProgramWinsOnOpeningMove(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	m := newTestManager(t, st, fixedSources(3))

	rec := &game.Recorder{}
	s, events, err := m.Create(ctx, game.Init{PebblesCount: 1, MaxPebblesPerTurn: 4, Difficulty: game.Easy}, rec)
	require.NoError(t, err)
	assert.Equal(t, []game.Event{game.CounterTurn(game.Program, 4)}, events)
	assert.Equal(t, events, rec.Events())

	state, err := s.State()
	require.NoError(t, err)
	require.True(t, state.IsOver())

	games, err := st.ListGames(ctx, 0)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, game.Program, games[0].Winner)
	assert.Equal(t, 1, games[0].Moves)
}

func TestManager_Errors(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	_, _, err := m.Create(ctx, game.Init{PebblesCount: 0, MaxPebblesPerTurn: 3}, nil)
	assert.ErrorIs(t, err, game.ErrInvalidConfig)
	assert.Equal(t, 0, m.Len())

	_, err = m.Do(ctx, "missing", game.Turn(1))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.State("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Close("missing"), ErrNotFound)

	s, _, err := m.Create(ctx, easy, nil)
	require.NoError(t, err)
	_, err = m.Do(ctx, s.ID(), game.Action{Type: "jump"})
	assert.ErrorIs(t, err, game.ErrUnknownAction)

	require.NoError(t, m.Close(s.ID()))
	_, err = m.Do(ctx, s.ID(), game.Turn(1))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Do(ctx, game.Turn(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_StoreFailureDoesNotFailCall(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, failingStore{Store: store.NewMemoryStore()})

	s, _, err := m.Create(ctx, easy, nil)
	require.NoError(t, err)

	reply, err := m.Do(ctx, s.ID(), game.GiveUp())
	require.NoError(t, err)
	assert.Equal(t, []game.Event{game.Won(game.Program)}, reply.Events)
}

func TestManager_DeliveryFailureStillCreates(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, fixedSources(3))

	failing := game.NotifierFunc(func(context.Context, game.Event) error {
		return errors.New("socket closed")
	})
	s, events, err := m.Create(ctx, easy, failing)
	assert.ErrorIs(t, err, game.ErrDelivery)
	require.NotNil(t, s)
	assert.Len(t, events, 1)
	assert.Equal(t, 1, m.Len())
}

func TestManager_Reap(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	m := newTestManager(t, nil, WithClock(clock), WithIdleTimeout(10*time.Minute))

	old, _, err := m.Create(ctx, easy, nil)
	require.NoError(t, err)
	clock.Advance(6 * time.Minute).MustWait(ctx)

	fresh, _, err := m.Create(ctx, easy, nil)
	require.NoError(t, err)
	clock.Advance(5 * time.Minute).MustWait(ctx)

	assert.Equal(t, 1, m.Reap(ctx))
	_, err = m.Get(old.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	// activity pushes expiry back
	clock.Advance(4 * time.Minute).MustWait(ctx)
	_, err = m.Do(ctx, fresh.ID(), game.Turn(1))
	require.NoError(t, err)
	clock.Advance(9 * time.Minute).MustWait(ctx)
	assert.Equal(t, 0, m.Reap(ctx))

	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, fresh.ID(), infos[0].ID)
	assert.Equal(t, clock.Now().Add(-9*time.Minute).UnixNano(), infos[0].LastActive.UnixNano())
}

func TestManager_ReapDisabled(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	m := newTestManager(t, nil, WithClock(clock), WithIdleTimeout(0))

	_, _, err := m.Create(ctx, easy, nil)
	require.NoError(t, err)
	clock.Advance(24 * time.Hour).MustWait(ctx)
	assert.Equal(t, 0, m.Reap(ctx))
}

func TestManager_RunReapsInBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newTestManager(t, nil, WithIdleTimeout(time.Nanosecond), WithReapInterval(5*time.Millisecond))
	_, _, err := m.Create(ctx, easy, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestSession_ConcurrentCallsAreSerialized(t *testing.T) {
	ctx := context.Background()
	m := NewManager(store.NewMemoryStore(), testLogger(),
		WithSourceFactory(func() randutil.Source { return randutil.NewSeeded(7) }))

	s, _, err := m.Create(ctx, game.Init{PebblesCount: 500, MaxPebblesPerTurn: 3, Difficulty: game.Hard}, nil)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 20; j++ {
				if _, err := s.Do(ctx, game.Turn(1)); err != nil {
					return err
				}
				if _, err := s.State(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	state, err := s.State()
	require.NoError(t, err)
	assert.LessOrEqual(t, state.PebblesRemaining, uint32(500-320))
}

func TestManager_Shutdown(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	s, _, err := m.Create(ctx, easy, nil)
	require.NoError(t, err)

	m.Shutdown()
	assert.Equal(t, 0, m.Len())
	_, err = s.State()
	assert.ErrorIs(t, err, ErrClosed)
}
