/*
Package config
File: env.go
Description:
    Process settings read from the environment. Game tuning lives in
    'catalog.yaml' (see internal/game); this covers only where things are
    and how fast the owner loop runs.
*/

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server holds settings for the serve command.
type Server struct {
	Addr            string        `env:"GALAXIES_ADDR" envDefault:":8081"`
	CatalogPath     string        `env:"GALAXIES_CATALOG_PATH" envDefault:"catalog.yaml"`
	DBPath          string        `env:"GALAXIES_DB_PATH" envDefault:"data/artifacts"`
	DBInMemory      bool          `env:"GALAXIES_DB_IN_MEMORY" envDefault:"false"`
	TickInterval    time.Duration `env:"GALAXIES_TICK_INTERVAL" envDefault:"50ms"`
	CommandCapacity int           `env:"GALAXIES_COMMAND_CAPACITY" envDefault:"1024"`
	PerActorLimit   int           `env:"GALAXIES_PER_ACTOR_LIMIT" envDefault:"8"`
	FlushEvery      int           `env:"GALAXIES_FLUSH_EVERY_TICKS" envDefault:"20"`
	LogLevel        string        `env:"GALAXIES_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer parses Server settings and rejects values the loop cannot run with.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if cfg.TickInterval <= 0 {
		return Server{}, fmt.Errorf("GALAXIES_TICK_INTERVAL must be positive, got %s", cfg.TickInterval)
	}
	if cfg.CommandCapacity < 1 {
		return Server{}, fmt.Errorf("GALAXIES_COMMAND_CAPACITY must be at least 1, got %d", cfg.CommandCapacity)
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = 1
	}
	return cfg, nil
}

// Level maps the configured log level name onto slog.
func (s Server) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
