package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pebbles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func finished(id string, at time.Time, d game.DifficultyLevel, winner game.Player, forfeited bool) store.GameRecord {
	return store.GameRecord{
		ID:                id,
		SessionID:         "sess",
		PebblesCount:      21,
		MaxPebblesPerTurn: 3,
		Difficulty:        d,
		Winner:            winner,
		Forfeited:         forfeited,
		Moves:             7,
		StartedAt:         at.Add(-30 * time.Second),
		FinishedAt:        at,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("  ")
	assert.Error(t, err)
}

func TestRecordAndListGames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTempStore(t)
	base := time.Date(2026, time.February, 22, 16, 40, 0, 0, time.UTC)

	first := finished("g1", base, game.Easy, game.User, false)
	require.NoError(t, s.RecordGame(ctx, first))
	require.NoError(t, s.RecordGame(ctx, finished("g2", base.Add(time.Minute), game.Hard, game.Program, true)))

	err := s.RecordGame(ctx, first)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	err = s.RecordGame(ctx, store.GameRecord{ID: "bad"})
	assert.ErrorIs(t, err, store.ErrInvalidRecord)

	games, err := s.ListGames(ctx, 0)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "g2", games[0].ID)
	assert.Equal(t, first, games[1])

	limited, err := s.ListGames(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "g2", limited[0].ID)
	assert.True(t, limited[0].Forfeited)
	assert.Equal(t, game.Hard, limited[0].Difficulty)
	assert.Equal(t, game.Program, limited[0].Winner)
}

func TestStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTempStore(t)

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.NewStats(), empty)

	base := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordGame(ctx, finished("a", base, game.Easy, game.User, false)))
	require.NoError(t, s.RecordGame(ctx, finished("b", base, game.Easy, game.Program, true)))
	require.NoError(t, s.RecordGame(ctx, finished("c", base, game.Hard, game.Program, false)))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Tally{Games: 3, UserWins: 1, ProgramWins: 2, Forfeits: 1}, stats.Tally)
	assert.Equal(t, store.Tally{Games: 2, UserWins: 1, ProgramWins: 1, Forfeits: 1}, stats.ByDifficulty[game.Easy])
	assert.Equal(t, store.Tally{Games: 1, ProgramWins: 1}, stats.ByDifficulty[game.Hard])
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pebbles.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordGame(ctx, finished("keep", time.Now(), game.Easy, game.User, false)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	games, err := reopened.ListGames(ctx, 0)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "keep", games[0].ID)
}

func TestApplyMigrationsRunsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTempStore(t)

	fsys := fstest.MapFS{
		"010_extra.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE extra (id INTEGER);\n-- +migrate Down\nDROP TABLE extra;\n")},
		"notes.txt":     {Data: []byte("ignored")},
	}
	require.NoError(t, applyMigrations(ctx, s.db, fsys))
	// a second CREATE TABLE would fail if the file ran again
	require.NoError(t, applyMigrations(ctx, s.db, fsys))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+migrationTable).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestUpSection(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "no markers", content: "SELECT 1;", want: "SELECT 1;"},
		{name: "up only", content: "-- +migrate Up\nSELECT 1;", want: "\nSELECT 1;"},
		{name: "up and down", content: "-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 2;", want: "\nSELECT 1;\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, upSection(tt.content))
		})
	}
}
