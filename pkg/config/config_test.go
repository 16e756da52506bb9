package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ONBOARDING_BASE_URI", "")
		t.Setenv("ONBOARDING_PROVIDER_ID", "provider")
		t.Setenv("ONBOARDING_PROVIDER_SECRET", "secret")
		t.Setenv("ONBOARDING_REQUEST_TIMEOUT", "")
		t.Setenv("ONBOARDING_MAX_RETRIES", "")
		t.Setenv("ONBOARDING_RATE_LIMIT", "")
		t.Setenv("ONBOARDING_BATCH_SIZE", "")
		t.Setenv("ONBOARDING_MAX_CONCURRENCY", "")
		t.Setenv("ONBOARDING_REFRESH_ON_UNAUTHORIZED", "")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, DefaultBaseURI, cfg.BaseURI)
		require.Equal(t, "provider", cfg.ProviderID)
		require.Equal(t, "secret", cfg.ProviderSecret)
		require.Equal(t, 30*time.Second, cfg.RequestTimeout)
		require.Zero(t, cfg.MaxRetries)
		require.Zero(t, cfg.RateLimit)
		require.Equal(t, 500, cfg.BatchSize)
		require.Equal(t, 4, cfg.MaxConcurrency)
		require.False(t, cfg.RefreshOnUnauthorized)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("ONBOARDING_BASE_URI", "http://localhost:8080")
		t.Setenv("ONBOARDING_PROVIDER_ID", "provider")
		t.Setenv("ONBOARDING_PROVIDER_SECRET", "secret")
		t.Setenv("ONBOARDING_REQUEST_TIMEOUT", "5s")
		t.Setenv("ONBOARDING_MAX_RETRIES", "2")
		t.Setenv("ONBOARDING_RATE_LIMIT", "2.5")
		t.Setenv("ONBOARDING_BATCH_SIZE", "10")
		t.Setenv("ONBOARDING_MAX_CONCURRENCY", "8")
		t.Setenv("ONBOARDING_REFRESH_ON_UNAUTHORIZED", "true")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "http://localhost:8080", cfg.BaseURI)
		require.Equal(t, 5*time.Second, cfg.RequestTimeout)
		require.Equal(t, 2, cfg.MaxRetries)
		require.Equal(t, 2.5, cfg.RateLimit)
		require.Equal(t, 10, cfg.BatchSize)
		require.Equal(t, 8, cfg.MaxConcurrency)
		require.True(t, cfg.RefreshOnUnauthorized)
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("ONBOARDING_PROVIDER_ID", "")
		t.Setenv("ONBOARDING_PROVIDER_SECRET", "secret")

		_, err := Load()
		require.EqualError(t, err, "ONBOARDING_PROVIDER_ID is required")
	})

	t.Run("invalid number", func(t *testing.T) {
		t.Setenv("ONBOARDING_PROVIDER_ID", "provider")
		t.Setenv("ONBOARDING_PROVIDER_SECRET", "secret")
		t.Setenv("ONBOARDING_BATCH_SIZE", "many")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "ONBOARDING_BATCH_SIZE must be an integer")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			BaseURI:        DefaultBaseURI,
			ProviderID:     "provider",
			ProviderSecret: "secret",
			BatchSize:      1,
			MaxConcurrency: 1,
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.ProviderSecret = ""
	require.EqualError(t, cfg.Validate(), "ONBOARDING_PROVIDER_SECRET is required")

	cfg = valid()
	cfg.MaxRetries = -1
	require.EqualError(t, cfg.Validate(), "ONBOARDING_MAX_RETRIES must not be negative")

	cfg = valid()
	cfg.BatchSize = 0
	require.EqualError(t, cfg.Validate(), "ONBOARDING_BATCH_SIZE must be positive")
}
