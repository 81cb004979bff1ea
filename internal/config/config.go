package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for questy.
type Config struct {
	Dir             string        `env:"QUESTY_DIR" envDefault:"quests"`
	Formats         []string      `env:"QUESTY_FORMATS" envSeparator:"," envDefault:"tengo,lua,yaml"`
	ScriptTimeout   time.Duration `env:"QUESTY_SCRIPT_TIMEOUT" envDefault:"0s"`
	ScriptMaxAllocs int64         `env:"QUESTY_SCRIPT_MAX_ALLOCS" envDefault:"0"`
	HotReload       bool          `env:"QUESTY_HOT_RELOAD" envDefault:"false"`
	HTTPAddr        string        `env:"QUESTY_HTTP_ADDR" envDefault:":8080"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// New loads a .env file when present and then reads the configuration from
// environment variables.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return Parse()
}

// Parse reads the configuration from environment variables only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	formats := c.Formats[:0]
	for _, f := range c.Formats {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			formats = append(formats, f)
		}
	}
	c.Formats = formats
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate checks values the environment parser cannot.
func (c *Config) Validate() error {
	if c.ScriptTimeout < 0 {
		return fmt.Errorf("QUESTY_SCRIPT_TIMEOUT must not be negative, got %s", c.ScriptTimeout)
	}
	if c.ScriptMaxAllocs < 0 {
		return fmt.Errorf("QUESTY_SCRIPT_MAX_ALLOCS must not be negative, got %d", c.ScriptMaxAllocs)
	}
	if len(c.Formats) == 0 {
		return fmt.Errorf("QUESTY_FORMATS must name at least one format")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}
