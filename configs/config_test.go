package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 60*time.Second, cfg.Scheduler.CheckInterval)
	assert.Equal(t, 10, cfg.Scheduler.BatchSize)
	assert.Equal(t, 3, cfg.Scheduler.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.GracePeriod)
	assert.True(t, cfg.Scheduler.CountPreflightFailures)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.RateLimits["twitter"])
	assert.Len(t, cfg.Scheduler.RateLimits, 7)
	for platform, spacing := range cfg.Scheduler.RateLimits {
		assert.GreaterOrEqual(t, spacing, 500*time.Millisecond, platform)
		assert.LessOrEqual(t, spacing, 2000*time.Millisecond, platform)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CHECK_INTERVAL_MS", "15000")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RETRY_DELAY_MS", "1000")
	t.Setenv("RATE_LIMIT_MS_MASTODON", "1500")
	t.Setenv("COUNT_PREFLIGHT_FAILURES", "false")
	t.Setenv("MASTODON_INSTANCE_URL", "https://fosstodon.org/")

	cfg := LoadConfig()

	assert.Equal(t, 15*time.Second, cfg.Scheduler.CheckInterval)
	assert.Equal(t, 25, cfg.Scheduler.BatchSize)
	assert.Equal(t, 5, cfg.Scheduler.MaxRetries)
	assert.Equal(t, time.Second, cfg.Scheduler.RetryDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scheduler.RateLimits["mastodon"])
	assert.False(t, cfg.Scheduler.CountPreflightFailures)
	assert.Equal(t, "https://fosstodon.org", cfg.MastodonInstanceURL)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("BATCH_SIZE", "ten")
	t.Setenv("GRACE_PERIOD_MS", "-5")

	cfg := LoadConfig()

	assert.Equal(t, 10, cfg.Scheduler.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.GracePeriod)
}

func TestConfig_Validate(t *testing.T) {
	cfg := LoadConfig()
	cfg.PostgresURI = "postgres://localhost/postflow"
	cfg.SecretKey = "0123456789abcdef0123456789abcdef"
	require.NoError(t, cfg.Validate())

	cfg.SecretKey = "short"
	cfg.Scheduler.BatchSize = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECRET_KEY")
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}
