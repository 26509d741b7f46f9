// Package config provides configuration management for the option engine.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"optionlab/internal/errors"
	"optionlab/internal/logging"
	"optionlab/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Pricing PricingConfig     `mapstructure:"pricing"`
	Rates   RatesConfig       `mapstructure:"rates"`
	Search  SearchConfig      `mapstructure:"search"`
	Exit    ExitConfig        `mapstructure:"exit"`
	Polling PollingConfig     `mapstructure:"polling"`
	Fetch   FetchConfig       `mapstructure:"fetch"`
	Store   StoreConfig       `mapstructure:"store"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
	Logging logging.LogConfig `mapstructure:"logging"`
}

// PricingConfig holds valuation defaults.
type PricingConfig struct {
	Convention        string  `mapstructure:"convention"` // "equity", "futures"
	DividendYield     float64 `mapstructure:"dividend_yield"`
	DefaultVolatility float64 `mapstructure:"default_volatility"`
	Multiplier        float64 `mapstructure:"multiplier"` // 0 derives it from convention and ticker
	Ticker            string  `mapstructure:"ticker"`
}

// RatesConfig holds risk-free rate lookup configuration.
type RatesConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	TTL      time.Duration `mapstructure:"ttl"`
	Fallback float64       `mapstructure:"fallback"`
}

// SearchConfig holds selection search defaults.
type SearchConfig struct {
	MinDays             int     `mapstructure:"min_days"`
	MaxDays             int     `mapstructure:"max_days"`
	StrikeWindowPercent float64 `mapstructure:"strike_window_percent"`
	TolerancePercent    float64 `mapstructure:"tolerance_percent"`
	MinOpenInterest     int64   `mapstructure:"min_open_interest"`
	EvalDayOffset       int     `mapstructure:"eval_day_offset"`
	CoveragePercent     float64 `mapstructure:"coverage_percent"`
}

// ExitConfig holds exit plan defaults.
type ExitConfig struct {
	Steps int `mapstructure:"steps"`
}

// PollingConfig holds result-slot polling configuration.
type PollingConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RedisAddr   string        `mapstructure:"redis_addr"` // empty keeps the slot in process
	RedisPrefix string        `mapstructure:"redis_prefix"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
}

// FetchConfig holds option chain source configuration.
type FetchConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig holds the prometheus endpoint configuration.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/optionlab"
	}
	return filepath.Join(home, ".config", "optionlab")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing config.toml is
// created from the template and then read.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env in the config dir first, then the working directory; existing env wins
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, errors.Wrapf(err, "loading config.toml")
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(configDir, "optionlab.db")
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = filepath.Join(configDir, "logs", "optionlab.log")
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validating config")
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pricing.convention", string(models.ConventionEquity))
	v.SetDefault("pricing.dividend_yield", 0.0)
	v.SetDefault("pricing.default_volatility", 0.30)
	v.SetDefault("pricing.multiplier", 0.0)

	v.SetDefault("rates.ttl", "1h")
	v.SetDefault("rates.fallback", 0.045)

	v.SetDefault("search.min_days", 0)
	v.SetDefault("search.max_days", 100)
	v.SetDefault("search.strike_window_percent", 20.0)
	v.SetDefault("search.tolerance_percent", 5.0)
	v.SetDefault("search.min_open_interest", 100)
	v.SetDefault("search.eval_day_offset", 5)
	v.SetDefault("search.coverage_percent", 100.0)

	v.SetDefault("exit.steps", 4)

	v.SetDefault("polling.interval", "2s")
	v.SetDefault("polling.timeout", "5m")
	v.SetDefault("polling.redis_prefix", "")
	v.SetDefault("polling.redis_ttl", "1h")

	v.SetDefault("fetch.requests_per_minute", 5)

	defaults := logging.DefaultLogConfig()
	v.SetDefault("logging.level", defaults.Level)
	v.SetDefault("logging.console", defaults.Console)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.max_size", defaults.MaxSize)
	v.SetDefault("logging.max_backups", defaults.MaxBackups)
	v.SetDefault("logging.max_age", defaults.MaxAge)
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and read it
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPTIONLAB_CONVENTION"); v != "" {
		cfg.Pricing.Convention = v
	}
	if v := os.Getenv("OPTIONLAB_TICKER"); v != "" {
		cfg.Pricing.Ticker = v
	}
	if v := envFloat("OPTIONLAB_DIVIDEND_YIELD"); v != nil {
		cfg.Pricing.DividendYield = *v
	}

	if v := os.Getenv("OPTIONLAB_RATES_ENDPOINT"); v != "" {
		cfg.Rates.Endpoint = v
	}
	if v := envFloat("OPTIONLAB_RATE_FALLBACK"); v != nil {
		cfg.Rates.Fallback = *v
	}

	if v := os.Getenv("OPTIONLAB_FETCH_BASE_URL"); v != "" {
		cfg.Fetch.BaseURL = v
	}
	if v := os.Getenv("OPTIONLAB_REDIS_ADDR"); v != "" {
		cfg.Polling.RedisAddr = v
	}
	if v := os.Getenv("OPTIONLAB_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("OPTIONLAB_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("OPTIONLAB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func envFloat(key string) *float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch models.Convention(strings.ToLower(c.Pricing.Convention)) {
	case models.ConventionEquity, models.ConventionFutures:
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "invalid convention: %s (must be 'equity' or 'futures')", c.Pricing.Convention)
	}
	if c.Pricing.DividendYield < 0 || c.Pricing.DividendYield >= 1 {
		return errors.Wrapf(errors.ErrConfigInvalid, "dividend_yield must be in [0, 1)")
	}
	if c.Pricing.Multiplier < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "multiplier must be non-negative")
	}

	if c.Rates.Fallback < 0 || c.Rates.Fallback >= 1 {
		return errors.Wrapf(errors.ErrConfigInvalid, "rates.fallback must be in [0, 1)")
	}

	s := c.Search
	if s.MinDays < 0 || s.MaxDays < s.MinDays {
		return errors.Wrapf(errors.ErrConfigInvalid, "search day window [%d, %d] is invalid", s.MinDays, s.MaxDays)
	}
	if s.StrikeWindowPercent < 0 || s.StrikeWindowPercent > 100 {
		return errors.Wrapf(errors.ErrConfigInvalid, "strike_window_percent must be between 0 and 100")
	}
	if s.TolerancePercent < 0 || s.TolerancePercent > 100 {
		return errors.Wrapf(errors.ErrConfigInvalid, "tolerance_percent must be between 0 and 100")
	}
	if s.MinOpenInterest < 0 || s.EvalDayOffset < 0 || s.CoveragePercent < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "search limits must be non-negative")
	}

	if c.Exit.Steps < 1 || c.Exit.Steps > 50 {
		return errors.Wrapf(errors.ErrConfigInvalid, "exit.steps must be between 1 and 50")
	}
	if c.Polling.Interval <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "polling.interval must be positive")
	}
	if c.Fetch.RequestsPerMinute < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "fetch.requests_per_minute must be non-negative")
	}

	return nil
}

// Convention returns the configured pricing convention.
func (c *Config) Convention() models.Convention {
	return models.Convention(strings.ToLower(c.Pricing.Convention))
}
