// Package config loads relay configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// History backend selectors.
const (
	HistoryMemory = "memory"
	HistorySQLite = "sqlite"
	HistoryRedis  = "redis"
)

// Config is the environment-driven relay configuration. Listen address,
// database path and debug logging can additionally be overridden by flags.
type Config struct {
	Addr   string `env:"CLOAK_ADDR" envDefault:":8080"`
	DBPath string `env:"CLOAK_DB" envDefault:"cloak.db"`

	HistoryBackend  string `env:"CLOAK_HISTORY_BACKEND" envDefault:"memory"`
	HistoryCapacity int    `env:"CLOAK_HISTORY_CAPACITY" envDefault:"50"`
	RedisAddr       string `env:"CLOAK_REDIS_ADDR" envDefault:"localhost:6379"`

	// JWTSecret signs role tokens. Change it in production.
	JWTSecret string `env:"CLOAK_JWT_SECRET" envDefault:"change-me-in-production"`

	// RootUsers are the usernames granted a root role claim at login.
	// Root designation is an out-of-band deployment decision.
	RootUsers []string `env:"CLOAK_ROOT_USERS" envSeparator:","`

	AnnounceJoins       bool `env:"CLOAK_ANNOUNCE_JOINS" envDefault:"true"`
	RequireRegistration bool `env:"CLOAK_REQUIRE_REGISTRATION" envDefault:"false"`
	SendBuffer          int  `env:"CLOAK_SEND_BUFFER" envDefault:"64"`
	AuditQueue          int  `env:"CLOAK_AUDIT_QUEUE" envDefault:"256"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.HistoryBackend {
	case HistoryMemory, HistorySQLite, HistoryRedis:
	default:
		return Config{}, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
	if cfg.HistoryCapacity <= 0 {
		return Config{}, fmt.Errorf("history capacity must be positive, got %d", cfg.HistoryCapacity)
	}
	return cfg, nil
}
