package main

import (
	"fmt"
	"os"
	"time"

	"github.com/lox/pebbles/cmd/pebbles/shared"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/simulator"
)

// SimulateCmd runs many headless games
type SimulateCmd struct {
	GameFlags `embed:""`

	Games    int           `short:"g" default:"10000" help:"Number of games to simulate"`
	Strategy string        `default:"optimal" enum:"random,optimal,greedy" help:"User strategy: random, optimal, greedy"`
	Seed     int64         `default:"0" help:"RNG seed (0 for random)"`
	Workers  int           `default:"0" help:"Games played in parallel (0 for one per CPU)"`
	Timeout  time.Duration `default:"5s" help:"Per-game timeout"`
	Debug    bool          `help:"Enable debug logging"`
}

func (c *SimulateCmd) Run() error {
	cfg, err := c.apply(game.Init{PebblesCount: 15, MaxPebblesPerTurn: 4, Difficulty: game.Easy})
	if err != nil {
		return err
	}

	level := "warn"
	if c.Debug {
		level = "debug"
	}
	logger := shared.SetupLogger(level)

	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	config := simulator.Config{
		Games:    c.Games,
		Strategy: c.Strategy,
		Game:     cfg,
		Seed:     seed,
		Workers:  c.Workers,
		Timeout:  c.Timeout,
		Logger:   logger,
	}
	sim, err := simulator.New(config)
	if err != nil {
		return err
	}

	fmt.Printf("Running %d games of %s against the %s program (seed %d)...\n", c.Games, c.Strategy, cfg.Difficulty, seed)
	start := time.Now()

	ctx := shared.SetupSignalHandler()
	stats, err := sim.Run(ctx)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	simulator.PrintSummary(os.Stdout, stats, config)
	fmt.Printf("\nCompleted in %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}
