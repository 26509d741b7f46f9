package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionlab/internal/errors"
	"optionlab/internal/models"
)

func TestLoadCreatesTemplate(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	_, statErr := os.Stat(TemplatePath(dir))
	assert.NoError(t, statErr)

	assert.Equal(t, models.ConventionEquity, cfg.Convention())
	assert.Equal(t, time.Hour, cfg.Rates.TTL)
	assert.Equal(t, 0.045, cfg.Rates.Fallback)
	assert.Equal(t, 100, cfg.Search.MaxDays)
	assert.Equal(t, int64(100), cfg.Search.MinOpenInterest)
	assert.Equal(t, 4, cfg.Exit.Steps)
	assert.Equal(t, 2*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Polling.Timeout)
	assert.Equal(t, filepath.Join(dir, "optionlab.db"), cfg.Store.Path)
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[pricing]
convention = "futures"
ticker = "ES"

[search]
min_days = 10
max_days = 45
tolerance_percent = 2.5

[polling]
interval = "500ms"
redis_addr = "localhost:6379"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, models.ConventionFutures, cfg.Convention())
	assert.Equal(t, "ES", cfg.Pricing.Ticker)
	assert.Equal(t, 10, cfg.Search.MinDays)
	assert.Equal(t, 2.5, cfg.Search.TolerancePercent)
	assert.Equal(t, 20.0, cfg.Search.StrikeWindowPercent)
	assert.Equal(t, 500*time.Millisecond, cfg.Polling.Interval)
	assert.Equal(t, "localhost:6379", cfg.Polling.RedisAddr)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPTIONLAB_CONVENTION", "futures")
	t.Setenv("OPTIONLAB_RATE_FALLBACK", "0.05")
	t.Setenv("OPTIONLAB_STORE_PATH", "/tmp/other.db")
	t.Setenv("OPTIONLAB_DIVIDEND_YIELD", "not-a-number")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, models.ConventionFutures, cfg.Convention())
	assert.Equal(t, 0.05, cfg.Rates.Fallback)
	assert.Equal(t, "/tmp/other.db", cfg.Store.Path)
	assert.Equal(t, 0.0, cfg.Pricing.DividendYield)
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPTIONLAB_TICKER=QQQ\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("OPTIONLAB_TICKER") })

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "QQQ", cfg.Pricing.Ticker)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad convention", func(c *Config) { c.Pricing.Convention = "bond" }},
		{"negative yield", func(c *Config) { c.Pricing.DividendYield = -0.01 }},
		{"fallback too high", func(c *Config) { c.Rates.Fallback = 4.5 }},
		{"inverted window", func(c *Config) { c.Search.MinDays, c.Search.MaxDays = 30, 10 }},
		{"tolerance", func(c *Config) { c.Search.TolerancePercent = 150 }},
		{"no steps", func(c *Config) { c.Exit.Steps = 0 }},
		{"zero interval", func(c *Config) { c.Polling.Interval = 0 }},
	}

	assert.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), errors.ErrConfigInvalid)
		})
	}
}
