package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL         string
	SyncInterval        time.Duration
	PollInterval        time.Duration
	WorkerConcurrency   int
	MaxAttempts         int
	RetryBaseDelay      time.Duration
	BatchSize           int
	CompletedRetention  time.Duration
	FailedRetention     time.Duration
	InFlightTTL         time.Duration
	ProviderHTTPTimeout time.Duration
	SyncProviders       []string
	HTTPAddr            string
	RabbitMQURL         string
	RabbitMQExchange    string
	ShutdownTimeout     time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		DatabaseURL:      dbURL,
		HTTPAddr:         envString("HTTP_ADDR", ":8080"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		RabbitMQExchange: envString("RABBITMQ_EXCHANGE", "contact-sync"),
		SyncProviders:    envList("SYNC_PROVIDERS", []string{"tabular", "spreadsheet", "relational", "identity"}),
	}

	var err error
	if cfg.SyncInterval, err = envDuration("SYNC_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = envDuration("RETRY_BASE_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CompletedRetention, err = envDuration("COMPLETED_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.FailedRetention, err = envDuration("FAILED_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.InFlightTTL, err = envDuration("INFLIGHT_TTL", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ProviderHTTPTimeout, err = envDuration("PROVIDER_HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = envInt("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = envInt("MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = envInt("BATCH_SIZE", 100); err != nil {
		return nil, err
	}

	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("BATCH_SIZE must be at least 1")
	}

	if cfg.RabbitMQURL == "" {
		log.Warn().Msg("RABBITMQ_URL not set, sync events will not be published")
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
