package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "parlor-events.ndjson", cfg.EventLogPath)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PARLOR_ADDR", ":9999")
	t.Setenv("PARLOR_METRICS_ADDR", "")
	t.Setenv("PARLOR_FLUSH_INTERVAL", "250ms")
	t.Setenv("PARLOR_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PARLOR_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("PARLOR_FLUSH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
}
