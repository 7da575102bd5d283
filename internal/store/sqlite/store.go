// Package sqlite provides a SQLite-backed game history store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/store"
	"github.com/lox/pebbles/internal/store/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists finished games in SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path, creating it if needed, and applies the
// embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordGame inserts one finished game.
func (s *Store) RecordGame(ctx context.Context, record store.GameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (
		   id,
		   session_id,
		   pebbles_count,
		   max_pebbles_per_turn,
		   difficulty,
		   winner,
		   forfeited,
		   moves,
		   started_at,
		   finished_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.SessionID,
		record.PebblesCount,
		record.MaxPebblesPerTurn,
		record.Difficulty.String(),
		record.Winner.String(),
		record.Forfeited,
		record.Moves,
		toMillis(record.StartedAt),
		toMillis(record.FinishedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("record game: %w", err)
	}
	return nil
}

// ListGames returns up to limit games, most recently finished first.
func (s *Store) ListGames(ctx context.Context, limit int) ([]store.GameRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, pebbles_count, max_pebbles_per_turn, difficulty, winner,
	                 forfeited, moves, started_at, finished_at
	            FROM games
	        ORDER BY finished_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.GameRecord
	for rows.Next() {
		var (
			r                     store.GameRecord
			difficulty, winner    string
			startedAt, finishedAt int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.PebblesCount, &r.MaxPebblesPerTurn,
			&difficulty, &winner, &r.Forfeited, &r.Moves, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		if r.Difficulty, err = game.ParseDifficulty(difficulty); err != nil {
			return nil, fmt.Errorf("game %s: %w", r.ID, err)
		}
		if r.Winner, err = game.ParsePlayer(winner); err != nil {
			return nil, fmt.Errorf("game %s: %w", r.ID, err)
		}
		r.StartedAt = fromMillis(startedAt)
		r.FinishedAt = fromMillis(finishedAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return out, nil
}

// Stats aggregates recorded games per difficulty.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	if err := ctx.Err(); err != nil {
		return store.Stats{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT difficulty,
		        COUNT(*),
		        COALESCE(SUM(CASE WHEN winner = 'user' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN winner = 'program' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(forfeited), 0)
		   FROM games
		  GROUP BY difficulty`)
	if err != nil {
		return store.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := store.NewStats()
	for rows.Next() {
		var (
			name  string
			tally store.Tally
		)
		if err := rows.Scan(&name, &tally.Games, &tally.UserWins, &tally.ProgramWins, &tally.Forfeits); err != nil {
			return store.Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		d, err := game.ParseDifficulty(name)
		if err != nil {
			return store.Stats{}, err
		}
		stats.Add(d, tally)
	}
	if err := rows.Err(); err != nil {
		return store.Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
