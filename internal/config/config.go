package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// External messaging gateway
	GatewayBaseURL string
	GatewayTimeout time.Duration

	// Worker pool size (one pool is shared across all content types)
	Workers int

	// Rate limiting: maximum sends per second per content type
	RateLimit int

	// DefaultTimezone resolves schedule-local times for recipients with no
	// timezone of their own (IANA name, e.g. "America/New_York").
	DefaultTimezone string

	// Background worker poll intervals and batch sizes
	SweepInterval  time.Duration
	SweepBatchSize int
	PurgeInterval  time.Duration
	PurgeBatchSize int
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		GatewayBaseURL: getEnv("GATEWAY_BASE_URL", "http://localhost:9090"),
		GatewayTimeout: getDuration("GATEWAY_TIMEOUT", 10*time.Second),

		Workers: getInt("WORKERS", 10),

		RateLimit: getInt("RATE_LIMIT_PER_CONTENT_TYPE", 100),

		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "UTC"),

		SweepInterval:  getDuration("SWEEP_INTERVAL", 5*time.Second),
		SweepBatchSize: getInt("SWEEP_BATCH_SIZE", 500),
		PurgeInterval:  getDuration("PURGE_INTERVAL", 60*time.Second),
		PurgeBatchSize: getInt("PURGE_BATCH_SIZE", 100),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
