package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/pebbles/internal/game"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server ServerSettings `hcl:"server,block"`
	Game   *GameSettings  `hcl:"game,block"`
}

// ServerSettings contains server-level configuration. Every field can be
// overridden from the environment.
type ServerSettings struct {
	Address     string `hcl:"address,optional" env:"PEBBLES_ADDRESS"`
	Port        int    `hcl:"port,optional" env:"PEBBLES_PORT"`
	LogLevel    string `hcl:"log_level,optional" env:"PEBBLES_LOG_LEVEL"`
	Database    string `hcl:"database,optional" env:"PEBBLES_DATABASE"`
	IdleTimeout string `hcl:"idle_timeout,optional" env:"PEBBLES_IDLE_TIMEOUT"`
	TokenSecret string `hcl:"token_secret,optional" env:"PEBBLES_TOKEN_SECRET"`
	// Seed makes every engine deterministic when non-zero.
	Seed int64 `hcl:"seed,optional" env:"PEBBLES_SEED"`
}

// GameSettings are the defaults used when a client starts a game without
// saying how.
type GameSettings struct {
	PebblesCount      int    `hcl:"pebbles_count,optional"`
	MaxPebblesPerTurn int    `hcl:"max_pebbles_per_turn,optional"`
	Difficulty        string `hcl:"difficulty,optional"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Address:     "localhost",
			Port:        8080,
			LogLevel:    "info",
			IdleTimeout: "30m",
		},
		Game: &GameSettings{
			PebblesCount:      15,
			MaxPebblesPerTurn: 4,
			Difficulty:        "easy",
		},
	}
}

// LoadServerConfig loads server configuration from an HCL file. A missing
// file yields the defaults.
func LoadServerConfig(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *ServerConfig) applyDefaults() {
	defaults := DefaultServerConfig()

	if c.Server.Address == "" {
		c.Server.Address = defaults.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaults.Server.LogLevel
	}
	if c.Server.IdleTimeout == "" {
		c.Server.IdleTimeout = defaults.Server.IdleTimeout
	}

	if c.Game == nil {
		c.Game = defaults.Game
		return
	}
	if c.Game.PebblesCount == 0 {
		c.Game.PebblesCount = defaults.Game.PebblesCount
	}
	if c.Game.MaxPebblesPerTurn == 0 {
		c.Game.MaxPebblesPerTurn = defaults.Game.MaxPebblesPerTurn
	}
	if c.Game.Difficulty == "" {
		c.Game.Difficulty = defaults.Game.Difficulty
	}
}

// ApplyEnv overrides server settings from PEBBLES_* environment variables.
func (c *ServerConfig) ApplyEnv() error {
	if err := env.Parse(&c.Server); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	if _, err := c.IdleTimeout(); err != nil {
		return err
	}

	if _, err := c.GameDefaults(); err != nil {
		return fmt.Errorf("game defaults: %w", err)
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// IdleTimeout parses the session idle timeout. "0" disables expiry.
func (c *ServerConfig) IdleTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid idle timeout %q: %w", c.Server.IdleTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("idle timeout cannot be negative: %s", d)
	}
	return d, nil
}

// GameDefaults converts the game block into an engine configuration.
func (c *ServerConfig) GameDefaults() (game.Init, error) {
	g := c.Game
	if g == nil {
		g = DefaultServerConfig().Game
	}
	return g.Init()
}

// Init converts the settings into an engine configuration.
func (g *GameSettings) Init() (game.Init, error) {
	if g.PebblesCount < 0 || g.MaxPebblesPerTurn < 0 {
		return game.Init{}, fmt.Errorf("%w: negative pebble counts", game.ErrInvalidConfig)
	}
	difficulty, err := game.ParseDifficulty(g.Difficulty)
	if err != nil {
		return game.Init{}, fmt.Errorf("%w: %v", game.ErrInvalidConfig, err)
	}
	cfg := game.Init{
		PebblesCount:      uint32(g.PebblesCount),
		MaxPebblesPerTurn: uint32(g.MaxPebblesPerTurn),
		Difficulty:        difficulty,
	}
	return cfg, cfg.Validate()
}
