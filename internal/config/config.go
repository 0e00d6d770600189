package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backend selectors.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage selects the progression backend: memory or redis.
	Storage  string `env:"STORAGE" envDefault:"memory"`
	RedisURL string `env:"REDIS_URL" envDefault:"localhost:6379"`

	// DataDir holds the quest catalog files.
	DataDir string `env:"DATA_DIR" envDefault:"./data/quests"`

	SaveKey   string `env:"SAVE_KEY" envDefault:"progress"`
	SeedQuest string `env:"SEED_QUEST" envDefault:"the-aura-of-sovereignty"`

	CommandHistoryLimit int           `env:"COMMAND_HISTORY_LIMIT" envDefault:"50"`
	AutosaveInterval    time.Duration `env:"AUTOSAVE_INTERVAL" envDefault:"30s"`

	// SessionID namespaces the event bridge and command journal
	// channels; generated when empty.
	SessionID string `env:"SESSION_ID"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	switch cfg.Storage {
	case StorageMemory, StorageRedis:
	default:
		return nil, fmt.Errorf("invalid STORAGE %q: want %s or %s", cfg.Storage, StorageMemory, StorageRedis)
	}

	return cfg, nil
}

// SlogLevel maps the configured level string onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
