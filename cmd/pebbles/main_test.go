package main

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameFlagsApply(t *testing.T) {
	base := game.Init{PebblesCount: 15, MaxPebblesPerTurn: 4, Difficulty: game.Easy}

	cfg, err := GameFlags{}.apply(base)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)

	cfg, err = GameFlags{Pebbles: 21, MaxPerTurn: 3, Difficulty: "Hard"}.apply(base)
	require.NoError(t, err)
	assert.Equal(t, game.Init{PebblesCount: 21, MaxPebblesPerTurn: 3, Difficulty: game.Hard}, cfg)

	_, err = GameFlags{Difficulty: "brutal"}.apply(base)
	assert.Error(t, err)
}

func TestSeededSourcesDiffer(t *testing.T) {
	first := seededSources(7)
	second := seededSources(7)

	a, b := first(), first()
	va, _ := a.Uint32()
	vb, _ := b.Uint32()
	assert.NotEqual(t, va, vb, "each game gets its own stream")

	replay, _ := second().Uint32()
	assert.Equal(t, va, replay, "same seed replays the same games")
}

func TestOpenStoreInMemory(t *testing.T) {
	st, err := openStore("", log.New(io.Discard))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	games, err := st.ListGames(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestPrintHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.RecordGame(ctx, store.GameRecord{
		ID: "g1", PebblesCount: 15, MaxPebblesPerTurn: 4, Difficulty: game.Hard,
		Winner: game.Program, Forfeited: true, Moves: 2,
		StartedAt: start, FinishedAt: start.Add(time.Minute),
	}))
	require.NoError(t, st.RecordGame(ctx, store.GameRecord{
		ID: "g2", PebblesCount: 10, MaxPebblesPerTurn: 3, Difficulty: game.Easy,
		Winner: game.User, Moves: 5,
		StartedAt: start, FinishedAt: start.Add(2 * time.Minute),
	}))

	var buf bytes.Buffer
	require.NoError(t, printHistory(ctx, &buf, st, 0))
	out := buf.String()

	assert.Contains(t, out, "program (forfeit)")
	assert.Contains(t, out, "10/3")
	assert.Contains(t, out, "2 games: user 1, program 1, forfeits 1")
	assert.Contains(t, out, "hard 1 games")
}
