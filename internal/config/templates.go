package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# optionlab configuration

[pricing]
# Pricing convention: "equity" (Black-Scholes-Merton) or "futures" (Black-76)
convention = "equity"
# Continuous dividend yield, equity convention only
dividend_yield = 0.0
# Volatility used when a contract carries no usable implied volatility
default_volatility = 0.30
# Contract multiplier; 0 derives it from the convention and ticker
multiplier = 0
# Default underlying ticker
ticker = ""

[rates]
# Risk-free rate service base URL; empty uses the fallback
endpoint = ""
# How long a fetched rate stays fresh
ttl = "1h"
# Rate used when no quote is available
fallback = 0.045

[search]
min_days = 0
max_days = 100
# Strike window around the current price, in percent
strike_window_percent = 20.0
# Candidates within this percent of the best P/L compete on cost
tolerance_percent = 5.0
# Hedge search liquidity floor
min_open_interest = 100
# Value candidates this many days before expiration
eval_day_offset = 5
# Share of the prior leg's loss a hedge must offset, in percent
coverage_percent = 100.0

[exit]
steps = 4

[polling]
interval = "2s"
timeout = "5m"
# Redis address of the shared collection slot; empty keeps it in process
redis_addr = ""
redis_prefix = ""
redis_ttl = "1h"

[fetch]
# Option chain service base URL
base_url = ""
requests_per_minute = 5

[store]
# SQLite database path; empty uses optionlab.db in the config directory
path = ""

[metrics]
# Prometheus listen address, e.g. ":9090"; empty disables it
addr = ""

[logging]
level = "info"
console = true
file = false
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// TemplatePath returns where the config template lives under configDir.
func TemplatePath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
