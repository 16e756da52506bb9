package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultBaseURI is the production ingestion service.
const DefaultBaseURI = "https://ingest.occtoo.com"

type Config struct {
	BaseURI        string
	ProviderID     string
	ProviderSecret string

	RequestTimeout time.Duration
	// MaxRetries applies to transport failures only; HTTP statuses are never retried.
	MaxRetries int
	// RateLimit is the number of requests per second, 0 means unlimited.
	RateLimit float64

	BatchSize      int
	MaxConcurrency int

	RefreshOnUnauthorized bool
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		BaseURI:        getEnv("ONBOARDING_BASE_URI", DefaultBaseURI),
		ProviderID:     os.Getenv("ONBOARDING_PROVIDER_ID"),
		ProviderSecret: os.Getenv("ONBOARDING_PROVIDER_SECRET"),
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("ONBOARDING_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getInt("ONBOARDING_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getInt("ONBOARDING_BATCH_SIZE", 500); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrency, err = getInt("ONBOARDING_MAX_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if raw := os.Getenv("ONBOARDING_RATE_LIMIT"); raw != "" {
		if cfg.RateLimit, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, fmt.Errorf("ONBOARDING_RATE_LIMIT must be a number: %w", err)
		}
	}
	if raw := os.Getenv("ONBOARDING_REFRESH_ON_UNAUTHORIZED"); raw != "" {
		if cfg.RefreshOnUnauthorized, err = strconv.ParseBool(raw); err != nil {
			return nil, fmt.Errorf("ONBOARDING_REFRESH_ON_UNAUTHORIZED must be a boolean: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURI) == "" {
		return fmt.Errorf("ONBOARDING_BASE_URI is required")
	}
	if c.ProviderID == "" {
		return fmt.Errorf("ONBOARDING_PROVIDER_ID is required")
	}
	if c.ProviderSecret == "" {
		return fmt.Errorf("ONBOARDING_PROVIDER_SECRET is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("ONBOARDING_MAX_RETRIES must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("ONBOARDING_RATE_LIMIT must not be negative")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("ONBOARDING_BATCH_SIZE must be positive")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("ONBOARDING_MAX_CONCURRENCY must be positive")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return v, nil
}
