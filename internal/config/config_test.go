package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"TELEGRAM_TOKEN", "API_URL", "API_WITH_CREDENTIALS", "API_TIMEOUT_SECONDS",
	"API_RATE_LIMIT", "API_RATE_BURST", "STORE_DRIVER", "DATABASE_URL", "REDIS_URL",
	"DIGEST_INTERVAL_HOURS", "DIGEST_AT", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR",
	"MOCK_ADDR", "MOCK_LEGACY_FIELDS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/v1", cfg.APIURL)
	assert.True(t, cfg.WithCredentials)
	assert.Equal(t, 15*time.Second, cfg.APITimeout)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "kawah_task.db", cfg.DatabaseURL)
	assert.Equal(t, 12*time.Hour, cfg.DigestInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":5000", cfg.MockAddr)
	assert.False(t, cfg.MockLegacyFields)
	assert.Error(t, cfg.RequireTelegram())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", " 123:abc ")
	t.Setenv("API_URL", "https://tasks.example.com/v1")
	t.Setenv("API_WITH_CREDENTIALS", "false")
	t.Setenv("API_TIMEOUT_SECONDS", "3")
	t.Setenv("API_RATE_LIMIT", "0.5")
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("DIGEST_INTERVAL_HOURS", "1.5")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("MOCK_LEGACY_FIELDS", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.TelegramToken)
	assert.NoError(t, cfg.RequireTelegram())
	assert.Equal(t, "https://tasks.example.com/v1", cfg.APIURL)
	assert.False(t, cfg.WithCredentials)
	assert.Equal(t, 3*time.Second, cfg.APITimeout)
	assert.Equal(t, 0.5, cfg.RateLimit)
	assert.Equal(t, StoreRedis, cfg.StoreDriver)
	assert.Equal(t, 90*time.Minute, cfg.DigestInterval)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.MockLegacyFields)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseInterval(""))
	assert.Equal(t, time.Duration(0), parseInterval("-2"))
	assert.Equal(t, time.Duration(0), parseInterval("soon"))
	assert.Equal(t, 5*time.Hour, parseInterval("5"))
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(Config{LogLevel: "debug", LogFormat: "json"})
	require.NoError(t, err)
	assert.Equal(t, "debug", log.GetLevel().String())

	_, err = NewLogger(Config{LogLevel: "loud"})
	assert.Error(t, err)
}
