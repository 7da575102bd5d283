package client

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/server"
)

// ClientConfig represents the complete client configuration
type ClientConfig struct {
	Server ServerConnection     `hcl:"server,block"`
	Game   *server.GameSettings `hcl:"game,block"`
	UI     *UISettings          `hcl:"ui,block"`
}

// ServerConnection contains server connection settings
type ServerConnection struct {
	URL            string `hcl:"url,optional"`
	ConnectTimeout int    `hcl:"connect_timeout,optional"`
	RequestTimeout int    `hcl:"request_timeout,optional"`
}

// UISettings contains user interface settings
type UISettings struct {
	LogLevel string `hcl:"log_level,optional"`
	LogFile  string `hcl:"log_file,optional"`
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Server: ServerConnection{
			URL:            "http://localhost:8080",
			ConnectTimeout: 10,
			RequestTimeout: 30,
		},
		Game: &server.GameSettings{
			PebblesCount:      15,
			MaxPebblesPerTurn: 4,
			Difficulty:        "easy",
		},
		UI: &UISettings{
			LogLevel: "warn",
			LogFile:  "pebbles-client.log",
		},
	}
}

// LoadClientConfig loads client configuration from HCL file
func LoadClientConfig(filename string) (*ClientConfig, error) {
	// Check if file exists
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultClientConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ClientConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	// Apply defaults for missing values
	defaults := DefaultClientConfig()

	if config.Server.URL == "" {
		config.Server.URL = defaults.Server.URL
	}
	if config.Server.ConnectTimeout == 0 {
		config.Server.ConnectTimeout = defaults.Server.ConnectTimeout
	}
	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = defaults.Server.RequestTimeout
	}

	if config.Game == nil {
		config.Game = defaults.Game
	} else {
		if config.Game.PebblesCount == 0 {
			config.Game.PebblesCount = defaults.Game.PebblesCount
		}
		if config.Game.MaxPebblesPerTurn == 0 {
			config.Game.MaxPebblesPerTurn = defaults.Game.MaxPebblesPerTurn
		}
		if config.Game.Difficulty == "" {
			config.Game.Difficulty = defaults.Game.Difficulty
		}
	}

	if config.UI == nil {
		config.UI = defaults.UI
	} else {
		if config.UI.LogLevel == "" {
			config.UI.LogLevel = defaults.UI.LogLevel
		}
		if config.UI.LogFile == "" {
			config.UI.LogFile = defaults.UI.LogFile
		}
	}

	return &config, nil
}

// Validate validates the client configuration
func (c *ClientConfig) Validate() error {
	if _, err := websocketURL(c.Server.URL); err != nil {
		return err
	}

	if c.Server.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.GetLogLevel()] {
		return fmt.Errorf("invalid log level: %s", c.GetLogLevel())
	}

	if _, err := c.GameInit(); err != nil {
		return fmt.Errorf("game: %w", err)
	}
	return nil
}

// GetLogLevel returns the log level
func (c *ClientConfig) GetLogLevel() string {
	if c.UI == nil {
		return DefaultClientConfig().UI.LogLevel
	}
	return c.UI.LogLevel
}

// GetServerURL returns the server URL
func (c *ClientConfig) GetServerURL() string {
	return c.Server.URL
}

// GameInit returns the configuration new games are started with.
func (c *ClientConfig) GameInit() (game.Init, error) {
	if c.Game == nil {
		return DefaultClientConfig().Game.Init()
	}
	return c.Game.Init()
}

// ConnectTimeout returns the dial timeout.
func (c *ClientConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeout) * time.Second
}

// RequestTimeout returns how long to wait for the server to answer a move.
func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}
