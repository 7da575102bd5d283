package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/pebbles/cmd/pebbles/shared"
	"github.com/lox/pebbles/internal/auth"
	"github.com/lox/pebbles/internal/randutil"
	"github.com/lox/pebbles/internal/server"
	"github.com/lox/pebbles/internal/session"
	"github.com/lox/pebbles/internal/store"
	"github.com/lox/pebbles/internal/store/sqlite"
	"golang.org/x/sync/errgroup"
)

// ServerCmd runs the HTTP and WebSocket server
type ServerCmd struct {
	Config   string `short:"c" default:"pebbles-server.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Server address to bind to (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	Database string `help:"SQLite database for finished games (overrides config)"`
	Seed     *int64 `help:"Deterministic RNG seed for every game (optional)"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadServerConfig(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.Database != "" {
		cfg.Server.Database = c.Database
	}
	if c.Seed != nil {
		cfg.Server.Seed = *c.Seed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	addr := cfg.GetServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}
	idle, _ := cfg.IdleTimeout()
	defaults, _ := cfg.GameDefaults()

	logger := shared.SetupLogger(cfg.Server.LogLevel)

	st, err := openStore(cfg.Server.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	secret := []byte(cfg.Server.TokenSecret)
	if len(secret) == 0 {
		if secret, err = auth.RandomSecret(); err != nil {
			return err
		}
		logger.Warn("No token secret configured, tokens will not survive a restart")
	}
	issuer, err := auth.NewIssuer(secret, 0, nil)
	if err != nil {
		return err
	}

	opts := []session.Option{session.WithIdleTimeout(idle)}
	if cfg.Server.Seed != 0 {
		logger.Info("Using deterministic seed", "seed", cfg.Server.Seed)
		opts = append(opts, session.WithSourceFactory(seededSources(cfg.Server.Seed)))
	}
	sessions := session.NewManager(st, logger, opts...)
	srv := server.NewServer(addr, sessions, st, issuer, logger, server.WithGameDefaults(defaults))

	logger.Info("Starting pebbles server",
		"addr", addr,
		"pebbles", defaults.PebblesCount,
		"max_per_turn", defaults.MaxPebblesPerTurn,
		"difficulty", defaults.Difficulty,
		"idle_timeout", idle)

	ctx := shared.SetupSignalHandlerWithLogger(logger)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error { return sessions.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		sessions.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// openStore opens the SQLite database at path, or an in-memory store when
// path is empty.
func openStore(path string, logger *log.Logger) (store.Store, error) {
	if path == "" {
		logger.Info("No database configured, finished games are kept in memory")
		return store.NewMemoryStore(), nil
	}
	st, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("Recording games", "database", path)
	return st, nil
}

// seededSources derives each new game's source from one seeded generator,
// so a server run replays exactly when games are created in the same order.
func seededSources(seed int64) func() randutil.Source {
	base := randutil.NewSeeded(seed)
	return func() randutil.Source {
		return randutil.NewSeeded(base.Int64())
	}
}
