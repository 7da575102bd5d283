package main

import (
	"context"
	"fmt"

	"github.com/lox/pebbles/cmd/pebbles/shared"
	"github.com/lox/pebbles/internal/client"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/session"
	"github.com/lox/pebbles/internal/tui"
)

// GameFlags override the configured game for the first round
type GameFlags struct {
	Pebbles    uint32 `short:"n" help:"Pebbles in the pile (overrides config)"`
	MaxPerTurn uint32 `short:"m" help:"Most pebbles one turn may take (overrides config)"`
	Difficulty string `short:"d" help:"Program difficulty: easy or hard (overrides config)"`
}

func (f GameFlags) apply(cfg game.Init) (game.Init, error) {
	if f.Pebbles != 0 {
		cfg.PebblesCount = f.Pebbles
	}
	if f.MaxPerTurn != 0 {
		cfg.MaxPebblesPerTurn = f.MaxPerTurn
	}
	if f.Difficulty != "" {
		d, err := game.ParseDifficulty(f.Difficulty)
		if err != nil {
			return game.Init{}, err
		}
		cfg.Difficulty = d
	}
	return cfg, cfg.Validate()
}

// PlayCmd connects the terminal UI to a server
type PlayCmd struct {
	GameFlags `embed:""`

	Config   string `short:"c" default:"pebbles-client.hcl" help:"Path to HCL configuration file"`
	Server   string `short:"s" help:"Server URL to connect to (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	LogFile  string `help:"Log file path (overrides config)"`
}

func (c *PlayCmd) Run() error {
	cfg, err := client.LoadClientConfig(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Server != "" {
		cfg.Server.URL = c.Server
	}
	if c.LogLevel != "" {
		cfg.UI.LogLevel = c.LogLevel
	}
	if c.LogFile != "" {
		cfg.UI.LogFile = c.LogFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	initial, err := cfg.GameInit()
	if err != nil {
		return err
	}
	if initial, err = c.apply(initial); err != nil {
		return err
	}

	logger, logFile, err := shared.SetupFileLogger(cfg.UI.LogFile, cfg.GetLogLevel())
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()

	logger.Info("Starting pebbles client", "server", cfg.GetServerURL(), "config", c.Config)

	ctx := shared.SetupSignalHandlerWithLogger(logger)
	wsClient := client.NewClient(cfg.GetServerURL(), logger)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	err = wsClient.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.GetServerURL(), err)
	}

	return tui.Run(ctx, tui.NewNetworkBackend(wsClient, cfg.RequestTimeout()), initial, logger)
}

// LocalCmd plays in-process without a server
type LocalCmd struct {
	GameFlags `embed:""`

	Seed     *int64 `help:"Deterministic RNG seed (optional)"`
	Database string `help:"SQLite database to record finished games in (optional)"`
	LogFile  string `default:"pebbles-local.log" help:"Log file path"`
	Debug    bool   `help:"Enable debug logging"`
}

func (c *LocalCmd) Run() error {
	initial, err := c.apply(game.Init{PebblesCount: 15, MaxPebblesPerTurn: 4, Difficulty: game.Easy})
	if err != nil {
		return err
	}

	level := "info"
	if c.Debug {
		level = "debug"
	}
	logger, logFile, err := shared.SetupFileLogger(c.LogFile, level)
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()

	var opts []session.Option
	if c.Seed != nil {
		logger.Info("Using deterministic seed", "seed", *c.Seed)
		opts = append(opts, session.WithSourceFactory(seededSources(*c.Seed)))
	}

	st, err := openStore(c.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	sessions := session.NewManager(st, logger, opts...)
	defer sessions.Shutdown()

	ctx := shared.SetupSignalHandlerWithLogger(logger)
	return tui.Run(ctx, tui.NewLocalBackend(sessions), initial, logger)
}
