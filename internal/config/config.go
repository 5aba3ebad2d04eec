// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	// Addr is the HTTP/websocket listen address.
	Addr string `env:"PARLOR_ADDR" envDefault:":8080"`

	// MetricsAddr serves the Prometheus endpoint; empty disables it.
	MetricsAddr string `env:"PARLOR_METRICS_ADDR" envDefault:":9090"`

	// EventLogPath is the NDJSON durable event log file.
	EventLogPath string `env:"PARLOR_EVENT_LOG" envDefault:"parlor-events.ndjson"`

	// FlushInterval is how long events coalesce before a durable flush.
	FlushInterval time.Duration `env:"PARLOR_FLUSH_INTERVAL" envDefault:"2s"`

	// RedisURL enables the Redis-backed claim ticket store; empty keeps
	// tickets in process memory.
	RedisURL string `env:"PARLOR_REDIS_URL"`

	// LogLevel is a logrus level name.
	LogLevel string `env:"PARLOR_LOG_LEVEL" envDefault:"info"`
}

// Load reads the optional .env file and parses the environment. A missing
// .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
