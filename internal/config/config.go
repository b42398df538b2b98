package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	CORSOrigins string
	TablePrefix string
	// JWKSURL enables bearer-token auth on write endpoints when set
	JWKSURL string
	// Event delivery
	RedisURL           string // empty = events are logged instead of streamed
	EventStream        string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	// Republication
	RepublishMode        string // sync, async or off
	RepublishWorkers     int
	RepublishParallelism int
	RepublishedState     string // state of cloned collection revisions
	// Logging
	LogDir      string
	LogMaxFiles int
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		Environment:          env,
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		CORSOrigins:          getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:          getTablePrefix(env),
		JWKSURL:              getEnv("JWKS_URL", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		EventStream:          getEnv("EVENT_STREAM", "archive:publications"),
		OutboxPollInterval:   getDuration("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:      getInt("OUTBOX_BATCH_SIZE", 100),
		RepublishMode:        getEnv("REPUBLISH_MODE", "sync"),
		RepublishWorkers:     getInt("REPUBLISH_WORKERS", 2),
		RepublishParallelism: getInt("REPUBLISH_PARALLELISM", 4),
		RepublishedState:     getEnv("REPUBLISHED_STATE", "Current"),
		LogDir:               getEnv("LOG_DIR", ""),
		LogMaxFiles:          getInt("LOG_MAX_FILES", 10),
		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
