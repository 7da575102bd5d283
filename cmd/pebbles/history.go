package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/store"
	"github.com/lox/pebbles/internal/store/sqlite"
)

// HistoryCmd prints finished games recorded by a server
type HistoryCmd struct {
	Database string `arg:"" help:"SQLite database written by the server" type:"existingfile"`
	Limit    int    `short:"n" default:"20" help:"Most recent games to list (0 for all)"`
}

func (c *HistoryCmd) Run() error {
	st, err := sqlite.Open(c.Database)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	return printHistory(context.Background(), os.Stdout, st, c.Limit)
}

func printHistory(ctx context.Context, w io.Writer, st store.Store, limit int) error {
	games, err := st.ListGames(ctx, limit)
	if err != nil {
		return fmt.Errorf("list games: %w", err)
	}
	stats, err := st.Stats(ctx)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tPEBBLES\tDIFFICULTY\tWINNER\tMOVES")
	for _, g := range games {
		winner := g.Winner.String()
		if g.Forfeited {
			winner += " (forfeit)"
		}
		fmt.Fprintf(tw, "%s\t%d/%d\t%s\t%s\t%d\n",
			g.FinishedAt.Local().Format(time.DateTime), g.PebblesCount, g.MaxPebblesPerTurn,
			g.Difficulty, winner, g.Moves)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d games: user %d, program %d, forfeits %d\n",
		stats.Games, stats.UserWins, stats.ProgramWins, stats.Forfeits)
	for _, d := range []game.DifficultyLevel{game.Easy, game.Hard} {
		t := stats.ByDifficulty[d]
		fmt.Fprintf(w, "  %-4s %d games, user %d, program %d\n", d, t.Games, t.UserWins, t.ProgramWins)
	}
	return nil
}
