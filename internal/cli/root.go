// Package cli provides the command-line interface for the option engine.
package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"optionlab/internal/config"
	"optionlab/internal/contracts"
	"optionlab/internal/metrics"
	"optionlab/internal/pricing"
	"optionlab/internal/rates"
	"optionlab/internal/store"
	"optionlab/internal/strategy"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-01-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
	Rates  *rates.Provider
	// ConfigDir is where config.toml was loaded from.
	ConfigDir string
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dataStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, history and saved strategies are unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Store.Path).Msg("SQLite store initialized")
	}

	app.Rates = newRateProvider(cfg, app.Store, logger)

	rootCmd := &cobra.Command{
		Use:   "optionlab",
		Short: "Option pricing, portfolio analysis and contract selection",
		Long: `optionlab prices European options under the equity (Black-Scholes-Merton) and
futures (Black-76) conventions, aggregates multi-leg portfolios into P/L curves,
estimates margin, plans staged exits and searches option chains for the contract
that best meets a price-move objective.

Use 'optionlab <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			app.ConfigDir, _ = cmd.Flags().GetString("config")
			app.ServeMetrics(cmd.Context(), cfg.Metrics.Addr)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/optionlab)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addPricingCommands(rootCmd, app)
	addSelectionCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)

	return rootCmd
}

func newRateProvider(cfg *config.Config, cache store.DataStore, logger zerolog.Logger) *rates.Provider {
	opts := []rates.Option{
		rates.WithTTL(cfg.Rates.TTL),
		rates.WithFallback(cfg.Rates.Fallback),
		rates.WithLogger(logger),
	}
	if cache != nil {
		opts = append(opts, rates.WithCache(cache))
	}

	var source rates.Source
	if cfg.Rates.Endpoint != "" {
		source = rates.NewHTTPSource(cfg.Rates.Endpoint)
	}
	return rates.NewProvider(source, opts...)
}

// Close releases the app's resources.
func (app *App) Close() error {
	if app.Store != nil {
		return app.Store.Close()
	}
	return nil
}

// ServeMetrics exposes the prometheus handler on addr until ctx is cancelled.
func (app *App) ServeMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	metrics.Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Warn().Err(err).Msg("Metrics endpoint stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// valuator builds a valuator for convention and ticker using the current risk-free rate.
// A non-negative rateOverride replaces the provider's quote.
func (app *App) valuator(ctx context.Context, conv string, ticker string, rateOverride float64) (strategy.Valuator, rates.Quote) {
	convention := app.Config.Convention()
	if conv != "" {
		convention = normalizeConvention(conv)
	}

	var quote rates.Quote
	if rateOverride >= 0 {
		quote = rates.NewQuote(rateOverride, "Manual", time.Now())
	} else {
		quote = app.Rates.Rate(ctx)
	}

	mult := app.Config.Pricing.Multiplier
	if mult <= 0 {
		mult = contracts.Multiplier(convention, ticker)
	}

	v := strategy.NewValuator(pricing.ForConvention(convention), quote.Rate, app.Config.Pricing.DividendYield, mult)
	v.DefaultVolatility = app.Config.Pricing.DefaultVolatility
	return v, quote
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRatesCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("optionlab v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.TemplatePath(app.ConfigDir)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Pricing")
	output.Printf("  Convention:       %s\n", cfg.Convention())
	output.Printf("  Dividend yield:   %.4f\n", cfg.Pricing.DividendYield)
	output.Printf("  Default vol:      %.2f\n", cfg.Pricing.DefaultVolatility)
	output.Printf("  Multiplier:       %.0f\n", cfg.Pricing.Multiplier)
	output.Println()

	output.Bold("Rates")
	output.Printf("  Endpoint:         %s\n", orNone(cfg.Rates.Endpoint))
	output.Printf("  TTL:              %s\n", cfg.Rates.TTL)
	output.Printf("  Fallback:         %.2f%%\n", cfg.Rates.Fallback*100)
	output.Println()

	output.Bold("Search")
	output.Printf("  Days:             %d-%d\n", cfg.Search.MinDays, cfg.Search.MaxDays)
	output.Printf("  Strike window:    %.1f%%\n", cfg.Search.StrikeWindowPercent)
	output.Printf("  Tolerance:        %.1f%%\n", cfg.Search.TolerancePercent)
	output.Printf("  Min OI (hedge):   %d\n", cfg.Search.MinOpenInterest)
	output.Printf("  Eval day offset:  %d\n", cfg.Search.EvalDayOffset)
	output.Println()

	output.Bold("Acquisition")
	output.Printf("  Chain service:    %s\n", orNone(cfg.Fetch.BaseURL))
	output.Printf("  Requests/min:     %d\n", cfg.Fetch.RequestsPerMinute)
	output.Printf("  Poll interval:    %s\n", cfg.Polling.Interval)
	output.Printf("  Poll timeout:     %s\n", cfg.Polling.Timeout)
	output.Printf("  Redis:            %s\n", orNone(cfg.Polling.RedisAddr))
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:         %s\n", cfg.Store.Path)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
