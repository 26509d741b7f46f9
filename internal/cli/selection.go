package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"optionlab/internal/errors"
	"optionlab/internal/marketdata"
	"optionlab/internal/models"
	"optionlab/internal/selection"
	"optionlab/internal/store"
	"optionlab/pkg/utils"
)

// addSelectionCommands adds chain acquisition and contract search commands.
func addSelectionCommands(rootCmd *cobra.Command, app *App) {
	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Search an option chain for the best contract",
		Long: `Search the chains of a ticker's expirations for the contract that best meets a
price-move objective.

  profit  the contract with the highest P/L if the underlying reaches the target
  hedge   the contract that best offsets the loss of an existing leg at the target`,
	}
	selectCmd.AddCommand(newSelectProfitCmd(app))
	selectCmd.AddCommand(newSelectHedgeCmd(app))

	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(newCollectCmd(app))
	rootCmd.AddCommand(newPollCmd(app))
}

func addChainSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("snapshot", "", "read chains from a saved snapshot instead of the chain service")
}

// chainFetcher returns the snapshot named by --snapshot, else the configured chain service.
func (app *App) chainFetcher(cmd *cobra.Command) (marketdata.ChainFetcher, error) {
	path, _ := cmd.Flags().GetString("snapshot")
	if path != "" {
		snap, err := marketdata.LoadSnapshot(path)
		if err != nil {
			return nil, err
		}
		return snap, nil
	}
	if app.Config.Fetch.BaseURL == "" {
		return nil, errors.NewValidationError("fetch.base_url", "", "no chain service configured; pass --snapshot")
	}
	return marketdata.NewHTTPFetcher(app.Config.Fetch.BaseURL), nil
}

// resultSlot returns the shared collection slot: redis when configured, else in process.
func (app *App) resultSlot() (marketdata.ResultSlot, func()) {
	p := app.Config.Polling
	if p.RedisAddr == "" {
		return marketdata.NewMemorySlot(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: p.RedisAddr})
	return marketdata.NewRedisSlot(client, p.RedisPrefix, p.RedisTTL), func() {
		if err := client.Close(); err != nil {
			app.Logger.Debug().Err(err).Msg("Closing redis client")
		}
	}
}

func (app *App) newCollector(cmd *cobra.Command, fetcher marketdata.ChainFetcher, slot marketdata.ResultSlot, ticker string) *marketdata.Collector {
	rpm := app.Config.Fetch.RequestsPerMinute
	if path, _ := cmd.Flags().GetString("snapshot"); path != "" {
		rpm = 0
	}
	opts := []marketdata.CollectorOption{
		marketdata.WithRequestsPerMinute(rpm),
		marketdata.WithCollectorLogger(app.Logger),
	}
	if slot != nil {
		opts = append(opts, marketdata.WithProgress(slot, marketdata.SlotKey(ticker)))
	}
	return marketdata.NewCollector(fetcher, opts...)
}

func addCriteriaFlags(cmd *cobra.Command, app *App, defaultType string) {
	s := app.Config.Search
	cmd.Flags().Float64P("price", "p", 0, "current underlying price (required)")
	cmd.Flags().Float64P("move", "m", 0, "target move in percent, e.g. 10 or -8")
	cmd.Flags().Int("min-days", s.MinDays, "minimum days to expiration")
	cmd.Flags().Int("max-days", s.MaxDays, "maximum days to expiration")
	cmd.Flags().Float64("window", s.StrikeWindowPercent, "strike window around the price, in percent")
	cmd.Flags().Float64("strike-min", 0, "lowest strike (overrides --window)")
	cmd.Flags().Float64("strike-max", 0, "highest strike (overrides --window)")
	cmd.Flags().Float64("tolerance", s.TolerancePercent, "prefer cheaper contracts within this percent of the best P/L")
	cmd.Flags().Int("offset", s.EvalDayOffset, "value candidates this many days before expiration")
	cmd.Flags().StringP("type", "t", defaultType, "option type (call, put)")
	cmd.Flags().IntP("quantity", "q", 1, "contracts to buy")
	cmd.Flags().Float64("rate", -1, "risk-free rate override, e.g. 0.045")
	cmd.MarkFlagRequired("price")
	addChainSourceFlags(cmd)
}

func criteriaFromFlags(cmd *cobra.Command) (selection.Criteria, error) {
	var c selection.Criteria
	c.CurrentPrice, _ = cmd.Flags().GetFloat64("price")
	c.TargetMovePercent, _ = cmd.Flags().GetFloat64("move")
	c.MinDays, _ = cmd.Flags().GetInt("min-days")
	c.MaxDays, _ = cmd.Flags().GetInt("max-days")
	c.StrikeWindowPercent, _ = cmd.Flags().GetFloat64("window")
	c.StrikeMin, _ = cmd.Flags().GetFloat64("strike-min")
	c.StrikeMax, _ = cmd.Flags().GetFloat64("strike-max")
	c.TolerancePercent, _ = cmd.Flags().GetFloat64("tolerance")
	c.EvalDayOffset, _ = cmd.Flags().GetInt("offset")
	c.Quantity, _ = cmd.Flags().GetInt("quantity")

	typeStr, _ := cmd.Flags().GetString("type")
	t, ok := models.ParseOptionType(typeStr)
	if !ok {
		return c, errors.NewValidationError("type", typeStr, "must be call or put")
	}
	c.Type = t

	if c.CurrentPrice <= 0 {
		return c, errors.NewValidationError("price", c.CurrentPrice, "must be positive")
	}
	if c.MinDays < 0 || (c.MaxDays > 0 && c.MaxDays < c.MinDays) {
		return c, errors.NewValidationError("max-days", c.MaxDays, "day window is inverted")
	}
	return c, nil
}

func newSelectProfitCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profit <ticker>",
		Short: "Find the contract with the best P/L at a target price",
		Example: `  optionlab select profit SPY --price 500 --move 5
  optionlab select profit QQQ --price 430 --move -6 --type put --max-days 45 --tolerance 10
  optionlab select profit SPY --price 500 --move 5 --snapshot spy-chain.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := criteriaFromFlags(cmd)
			if err != nil {
				return err
			}
			return app.runSearch(cmd, strings.ToUpper(args[0]), selection.VariantProfit, c)
		},
	}
	addCriteriaFlags(cmd, app, "call")
	return cmd
}

func newSelectHedgeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hedge <ticker>",
		Short: "Find the contract that best offsets an existing leg's loss",
		Long: `Value an existing leg at the target price and search for the contract whose P/L
there offsets its loss. Candidates need at least --min-oi open interest.

The leg to protect comes from --leg-file (one leg as JSON) or from a saved strategy
with --id and --leg.`,
		Example: `  optionlab select hedge SPY --price 500 --move -8 --leg-file long-call.json
  optionlab select hedge SPY --price 500 --move -8 --id 3f2a... --leg 0 --coverage 75`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := criteriaFromFlags(cmd)
			if err != nil {
				return err
			}
			c.MinOpenInterest, _ = cmd.Flags().GetInt64("min-oi")
			c.CoveragePercent, _ = cmd.Flags().GetFloat64("coverage")

			prior, err := app.priorLeg(cmd)
			if err != nil {
				return err
			}
			c.PriorLeg = prior
			return app.runSearch(cmd, strings.ToUpper(args[0]), selection.VariantHedge, c)
		},
	}
	addCriteriaFlags(cmd, app, "put")
	cmd.Flags().Int64("min-oi", app.Config.Search.MinOpenInterest, "minimum open interest")
	cmd.Flags().Float64("coverage", app.Config.Search.CoveragePercent, "share of the prior leg's loss to offset, in percent")
	cmd.Flags().String("leg-file", "", "JSON file holding the leg to protect")
	cmd.Flags().String("id", "", "saved strategy holding the leg to protect")
	cmd.Flags().Int("leg", 0, "index of the leg within the saved strategy")
	return cmd
}

// priorLeg reads the leg to protect from --leg-file, or --id and --leg.
func (app *App) priorLeg(cmd *cobra.Command) (*models.OptionLeg, error) {
	path, _ := cmd.Flags().GetString("leg-file")
	id, _ := cmd.Flags().GetString("id")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading leg %s", path)
		}
		var leg models.OptionLeg
		if err := json.Unmarshal(data, &leg); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "decoding leg %s: %v", path, err)
		}
		return &leg, nil
	}
	if id == "" {
		return nil, errors.NewValidationError("leg-file", "", "either --leg-file or --id is required")
	}
	if app.Store == nil {
		return nil, errors.Wrap(errors.ErrDatabaseError, "store unavailable")
	}
	s, err := app.Store.GetStrategy(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	index, _ := cmd.Flags().GetInt("leg")
	if index < 0 || index >= len(s.Legs) {
		return nil, errors.NewValidationError("leg", index, fmt.Sprintf("strategy has %d legs", len(s.Legs)))
	}
	leg := s.Legs[index]
	return &leg, nil
}

func (app *App) runSearch(cmd *cobra.Command, ticker string, variant selection.Variant, c selection.Criteria) error {
	output := NewOutput(cmd)
	ctx := cmd.Context()

	fetcher, err := app.chainFetcher(cmd)
	if err != nil {
		return err
	}
	slot, closeSlot := app.resultSlot()
	defer closeSlot()

	rate, _ := cmd.Flags().GetFloat64("rate")
	v, quote := app.valuator(ctx, "", ticker, rate)
	searcher := selection.NewSearcher(v, app.Logger)

	if !output.IsJSON() {
		output.Info("Searching %s %s candidates for a move to %s (rate %.2f%%, %s)",
			ticker, c.Type, FormatPrice(c.TargetPrice()), quote.RatePercent, quote.Source)
	}

	res, err := searcher.Run(ctx, app.newCollector(cmd, fetcher, slot, ticker), ticker, variant, c)
	app.recordSearch(ctx, ticker, variant, c.TargetPrice(), res, err)
	if err != nil {
		return app.reportSearchFailure(output, err)
	}
	if path, _ := cmd.Flags().GetString("snapshot"); path == "" && app.Store != nil {
		if err := store.NewFreshnessTracker(app.Store, store.DefaultChainMaxAge).MarkSynced(store.ChainSyncKey(ticker)); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to record chain sync")
		}
	}

	if output.IsJSON() {
		return output.JSON(res)
	}
	renderResult(output, res, v.Now)
	return nil
}

// recordSearch logs a search outcome to the history. Failures to record are only logged.
func (app *App) recordSearch(ctx context.Context, ticker string, variant selection.Variant, target float64, res *selection.Result, searchErr error) {
	if app.Store == nil {
		return
	}
	run := &models.SearchRun{
		ID:          uuid.New().String(),
		Ticker:      ticker,
		Variant:     string(variant),
		TargetPrice: target,
		CreatedAt:   time.Now(),
	}
	switch {
	case searchErr != nil:
		run.Code = errors.SearchCode(searchErr)
		if run.Code == "" {
			run.Code = "ERROR"
		}
	case res != nil && res.Best != nil:
		run.BestStrike = res.Best.Strike
		run.BestExpiration = res.Best.Expiration
		run.BestPnL = res.Best.PnLAtTarget
		run.Candidates = len(res.Ranked)
		run.Partial = res.Partial
	}
	if err := app.Store.LogSearchRun(ctx, run); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to record search run")
	}
}

func (app *App) reportSearchFailure(output *Output, err error) error {
	code := errors.SearchCode(err)
	if code == "" {
		return err
	}

	var suggestion *selection.SuggestionError
	if output.IsJSON() {
		body := map[string]interface{}{"code": code, "error": err.Error()}
		if errors.As(err, &suggestion) {
			body["suggestion"] = suggestion.Suggestion
		}
		if jsonErr := output.JSON(body); jsonErr != nil {
			return jsonErr
		}
		return err
	}

	output.Error("%s: %v", code, err)
	if errors.As(err, &suggestion) {
		cand := suggestion.Suggestion.Candidate
		output.Warning("Best with any open interest: %s %s exp %s, OI %d, P/L %s (%d considered)",
			cand.Type, FormatPrice(cand.Strike), cand.Expiration.Format(models.DateLayout),
			cand.OpenInterest, utils.FormatPnL(cand.PnLAtTarget), suggestion.Suggestion.Considered)
	}
	return err
}

func renderResult(output *Output, res *selection.Result, today time.Time) {
	best := res.Best
	lines := []string{
		fmt.Sprintf("Contract:     %s %s", best.Type, FormatPrice(best.Strike)),
		fmt.Sprintf("Expiration:   %s", FormatExpiry(best.Expiration, today)),
		fmt.Sprintf("Entry:        %s (cost %s)", FormatPrice(best.EntryPrice), utils.FormatMoney(best.Cost)),
		fmt.Sprintf("P/L @ target: %s (ROI %s)", output.FormatPnL(best.PnLAtTarget), output.FormatPercent(best.ROI)),
	}
	if res.Variant == selection.VariantHedge {
		lines = append(lines,
			fmt.Sprintf("Prior leg:    %s", output.FormatPnL(res.PriorPL)),
			fmt.Sprintf("Net:          %s (covers %.1f%%)", output.FormatPnL(best.NetCompensation), best.Coverage),
		)
	}
	output.Box(fmt.Sprintf("Best %s candidate @ %s", res.Variant, FormatPrice(res.TargetPrice)), lines)

	if res.Warning != "" {
		output.Warning("%s", res.Warning)
	}

	if len(res.Ranked) > 1 {
		output.Println()
		table := NewTable(output, "#", "TYPE", "STRIKE", "EXPIRATION", "ENTRY", "COST", "P/L", "ROI", "OI")
		for i, cand := range res.Ranked {
			if i >= 10 {
				break
			}
			table.AddRow(
				fmt.Sprintf("%d", i+1),
				string(cand.Type),
				FormatPrice(cand.Strike),
				FormatExpiry(cand.Expiration, today),
				FormatPrice(cand.EntryPrice),
				utils.FormatMoney(cand.Cost),
				output.FormatPnL(cand.PnLAtTarget),
				output.FormatPercent(cand.ROI),
				utils.FormatQuantity(cand.OpenInterest),
			)
		}
		table.Render()
	}

	st := res.Stats
	output.Dim("%d/%d expirations, %d contracts, %d of type, %d priced, %d in window, %d qualifying",
		st.FilteredDates, st.TotalDates, st.TotalContracts, st.MatchingType, st.WithPrice, st.InStrikeWindow, st.Qualifying)
}

func newCollectCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect <ticker>",
		Short: "Collect option chains and save them as a snapshot",
		Long: `Fetch the chain of each selected expiration one request at a time, publishing
progress to the shared collection slot, and write everything to a snapshot file.

Expirations come from --dates, or from the configured day window.`,
		Example: `  optionlab collect SPY --out spy-chain.json
  optionlab collect SPY --dates 2025-03-21,2025-04-17 --out spy-chain.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			ticker := strings.ToUpper(args[0])

			fetcher, err := app.chainFetcher(cmd)
			if err != nil {
				return err
			}
			slot, closeSlot := app.resultSlot()
			defer closeSlot()
			collector := app.newCollector(cmd, fetcher, slot, ticker)

			datesFlag, _ := cmd.Flags().GetString("dates")
			var dates []time.Time
			if datesFlag != "" {
				if dates, err = ParseDates(datesFlag); err != nil {
					return err
				}
			} else {
				available, err := collector.Expirations(ctx, ticker)
				if err != nil {
					return err
				}
				dates, err = selection.FilterDates(available, app.Config.Search.MinDays, app.Config.Search.MaxDays, time.Now())
				if err != nil {
					return err
				}
			}

			if !output.IsJSON() {
				output.Info("Collecting %d expirations for %s", len(dates), ticker)
			}
			coll, err := collector.Collect(ctx, ticker, dates)
			if err != nil {
				return err
			}

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				if err := writeSnapshot(out, ticker, coll.Contracts); err != nil {
					return err
				}
			}

			freshness := ""
			if app.Store != nil && !coll.Partial {
				tracker := store.NewFreshnessTracker(app.Store, store.DefaultChainMaxAge)
				if err := tracker.MarkSynced(store.ChainSyncKey(ticker)); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to record chain sync")
				}
				freshness = store.FormatFreshness(tracker.Freshness(store.ChainSyncKey(ticker)))
			}

			if output.IsJSON() {
				return output.JSON(coll)
			}
			output.Success("Collected %s contracts across %d expirations", utils.FormatQuantity(int64(len(coll.Contracts))), len(coll.Dates)-len(coll.FailedDates))
			for _, d := range coll.FailedDates {
				output.Warning("  %s failed to load", d.Format(models.DateLayout))
			}
			if freshness != "" {
				output.Dim("%s", freshness)
			}
			return nil
		},
	}

	addChainSourceFlags(cmd)
	cmd.Flags().String("dates", "", "comma separated expirations (YYYY-MM-DD)")
	cmd.Flags().StringP("out", "o", "", "snapshot file to write")
	return cmd
}

func newPollCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll <ticker>",
		Short: "Wait for a collection running elsewhere to finish",
		Long: `Poll the shared collection slot (redis, see polling.redis_addr) until the
ticker's collection completes, fails or the timeout elapses. Interrupting the
command cancels the wait.`,
		Example: `  optionlab poll SPY --out spy-chain.json
  optionlab poll SPY --timeout 2m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ticker := strings.ToUpper(args[0])

			timeout, _ := cmd.Flags().GetDuration("timeout")
			if timeout <= 0 {
				timeout = app.Config.Polling.Timeout
			}
			if app.Config.Polling.RedisAddr == "" && !output.IsJSON() {
				output.Warning("No redis slot configured; only collections in this process are visible")
			}

			slot, closeSlot := app.resultSlot()
			defer closeSlot()

			poller := marketdata.NewPoller(app.Config.Polling.Interval, timeout, app.Logger)
			req := poller.Start(cmd.Context(), slot, marketdata.SlotKey(ticker))
			contracts, err := req.Wait(context.Background())
			if err != nil {
				if !output.IsJSON() {
					last := req.Status()
					output.Error("Poll %s ended: %v (last progress %d%%)", req.ID, err, last.Progress)
				}
				return err
			}

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				if err := writeSnapshot(out, ticker, contracts); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"id":        req.ID,
					"ticker":    ticker,
					"contracts": len(contracts),
				})
			}
			output.Success("Collection for %s completed: %s contracts", ticker, utils.FormatQuantity(int64(len(contracts))))
			return nil
		},
	}

	cmd.Flags().Duration("timeout", 0, "give up after this long (default from config)")
	cmd.Flags().StringP("out", "o", "", "snapshot file to write")
	return cmd
}

func writeSnapshot(path, ticker string, contracts []models.Contract) error {
	data, err := json.MarshalIndent(marketdata.ChainSnapshot{Ticker: ticker, Contracts: contracts}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing snapshot %s", path)
	}
	return nil
}
