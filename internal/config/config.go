package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers for persisted credentials.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config keeps runtime settings for the bot and the mock API.
type Config struct {
	TelegramToken string

	APIURL          string
	WithCredentials bool
	APITimeout      time.Duration
	RateLimit       float64
	RateBurst       int

	StoreDriver string
	DatabaseURL string
	RedisURL    string

	DigestInterval time.Duration
	// DigestAt switches the digest to a fixed daily HH:MM time.
	DigestAt string

	LogLevel    string
	LogFormat   string
	MetricsAddr string

	MockAddr         string
	MockLegacyFields bool
}

// Load reads a .env file when one exists, then configuration from
// environment variables with sane defaults. The Telegram token is not
// checked here; see RequireTelegram.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		TelegramToken:    env("TELEGRAM_TOKEN"),
		APIURL:           env("API_URL"),
		WithCredentials:  parseBool(env("API_WITH_CREDENTIALS"), true),
		APITimeout:       time.Duration(parseInt(env("API_TIMEOUT_SECONDS"), 15)) * time.Second,
		RateLimit:        parseFloat(env("API_RATE_LIMIT"), 5),
		RateBurst:        parseInt(env("API_RATE_BURST"), 10),
		StoreDriver:      strings.ToLower(env("STORE_DRIVER")),
		DatabaseURL:      env("DATABASE_URL"),
		RedisURL:         env("REDIS_URL"),
		DigestInterval:   parseInterval(env("DIGEST_INTERVAL_HOURS")),
		DigestAt:         env("DIGEST_AT"),
		LogLevel:         env("LOG_LEVEL"),
		LogFormat:        strings.ToLower(env("LOG_FORMAT")),
		MetricsAddr:      env("METRICS_ADDR"),
		MockAddr:         env("MOCK_ADDR"),
		MockLegacyFields: parseBool(env("MOCK_LEGACY_FIELDS"), false),
	}

	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:5000/v1"
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreSQLite
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "kawah_task.db"
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.DigestInterval == 0 {
		cfg.DigestInterval = 12 * time.Hour
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.MockAddr == "" {
		cfg.MockAddr = ":5000"
	}

	switch cfg.StoreDriver {
	case StoreSQLite, StoreRedis:
	default:
		return cfg, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreSQLite, StoreRedis, cfg.StoreDriver)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return cfg, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// RequireTelegram fails when the bot token is missing.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func parseInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func parseFloat(raw string, fallback float64) float64 {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

func parseBool(raw string, fallback bool) bool {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return b
}
