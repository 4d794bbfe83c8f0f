// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the service reads from the environment.
// Optional backends (Postgres, Redis, RabbitMQ) fall back to in-memory
// implementations when their URL is empty.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	RabbitURL   string

	// Event exchange name for the broker publisher.
	EventExchange string

	// External exchange rate provider.
	RateAPIBaseURL  string
	RateAPIKey      string
	RateCacheTTL    time.Duration
	ProviderTimeout time.Duration
	ProviderRetries int
	ProviderBackoff time.Duration

	// Batch orchestration.
	WorkerPoolSize  int
	FailureRatio    float64
	BatchDeadline   time.Duration
	DefaultBankID   string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		RabbitURL:     getEnv("RABBITMQ_URL", ""),
		EventExchange: getEnv("EVENT_EXCHANGE", "risk.events"),

		RateAPIBaseURL:  getEnv("RATE_API_BASE_URL", "https://api.currencyapi.com/v3"),
		RateAPIKey:      getEnv("RATE_API_KEY", ""),
		RateCacheTTL:    getEnvDuration("RATE_CACHE_TTL", time.Hour),
		ProviderTimeout: getEnvDuration("RATE_PROVIDER_TIMEOUT", 5*time.Second),
		ProviderRetries: getEnvInt("RATE_PROVIDER_RETRIES", 3),
		ProviderBackoff: getEnvDuration("RATE_PROVIDER_BACKOFF", 500*time.Millisecond),

		WorkerPoolSize:  getEnvInt("WORKER_POOL_SIZE", 8),
		FailureRatio:    getEnvFloat("BATCH_FAILURE_RATIO", 0.5),
		BatchDeadline:   getEnvDuration("BATCH_DEADLINE", 10*time.Minute),
		DefaultBankID:   getEnv("DEFAULT_BANK_ID", ""),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
