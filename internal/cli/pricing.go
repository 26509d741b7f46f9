package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"optionlab/internal/errors"
	"optionlab/internal/exitplan"
	"optionlab/internal/margin"
	"optionlab/internal/models"
	"optionlab/internal/pricing"
	"optionlab/internal/rates"
	"optionlab/internal/strategy"
	"optionlab/pkg/utils"
)

// addPricingCommands adds valuation and risk commands.
func addPricingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPriceCmd(app))
	rootCmd.AddCommand(newGreeksCmd(app))
	rootCmd.AddCommand(newCurveCmd(app))
	rootCmd.AddCommand(newMarginCmd(app))
	rootCmd.AddCommand(newExitPlanCmd(app))
}

func normalizeConvention(s string) models.Convention {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "futures", "future", "black76", "black-76":
		return models.ConventionFutures
	default:
		return models.ConventionEquity
	}
}

// addStrategySource registers the flags that select a strategy.
func addStrategySource(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "strategy JSON file")
	cmd.Flags().String("id", "", "saved strategy ID")
	cmd.Flags().Float64("rate", -1, "risk-free rate override, e.g. 0.045")
}

// loadStrategy reads the strategy named by --file or --id.
func (app *App) loadStrategy(cmd *cobra.Command) (*models.Strategy, error) {
	path, _ := cmd.Flags().GetString("file")
	id, _ := cmd.Flags().GetString("id")

	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading strategy %s", path)
		}
		var s models.Strategy
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "decoding strategy %s: %v", path, err)
		}
		return &s, nil
	case id != "":
		if app.Store == nil {
			return nil, errors.Wrap(errors.ErrDatabaseError, "store unavailable")
		}
		return app.Store.GetStrategy(cmd.Context(), id)
	default:
		return nil, errors.NewValidationError("file", "", "either --file or --id is required")
	}
}

// strategyValuator builds the valuator for s, honoring --rate and the strategy's convention.
func (app *App) strategyValuator(cmd *cobra.Command, s *models.Strategy) strategy.Valuator {
	rate, _ := cmd.Flags().GetFloat64("rate")
	v, _ := app.valuator(cmd.Context(), string(s.Convention), s.Ticker, rate)
	return v
}

func newPriceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a single European option",
		Long: `Price one contract and show its Greeks under the equity or futures convention.

For the futures convention --underlying is the futures (forward) price.`,
		Example: `  optionlab price --type call --underlying 100 --strike 105 --days 30 --vol 0.25
  optionlab price --type put --underlying 4500 --strike 4400 --days 45 --convention futures`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			typeStr, _ := cmd.Flags().GetString("type")
			underlying, _ := cmd.Flags().GetFloat64("underlying")
			strike, _ := cmd.Flags().GetFloat64("strike")
			days, _ := cmd.Flags().GetFloat64("days")
			vol, _ := cmd.Flags().GetFloat64("vol")
			rate, _ := cmd.Flags().GetFloat64("rate")
			conv, _ := cmd.Flags().GetString("convention")
			yield, _ := cmd.Flags().GetFloat64("yield")

			optType, ok := models.ParseOptionType(typeStr)
			if !ok {
				return errors.NewValidationError("type", typeStr, "must be call or put")
			}
			if underlying <= 0 || strike <= 0 {
				return errors.NewValidationError("underlying", underlying, "underlying and strike must be positive")
			}
			if vol <= 0 {
				vol = app.Config.Pricing.DefaultVolatility
			}
			if yield < 0 {
				yield = app.Config.Pricing.DividendYield
			}
			convention := app.Config.Convention()
			if conv != "" {
				convention = normalizeConvention(conv)
			}

			v, quote := app.valuator(cmd.Context(), string(convention), "", rate)
			model := pricing.ForConvention(convention)
			pctx := pricing.Context{
				Underlying:    underlying,
				Strike:        strike,
				TimeYears:     pricing.YearsFromDays(days),
				Rate:          v.Rate,
				Volatility:    vol,
				DividendYield: yield,
			}
			price := model.Price(pctx, optType)
			greeks := model.Greeks(pctx, optType)
			intrinsic := models.Intrinsic(optType, strike, underlying)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"model":      model.Name(),
					"type":       optType,
					"price":      price,
					"intrinsic":  intrinsic,
					"timeValue":  price - intrinsic,
					"greeks":     greeks,
					"rate":       quote.Rate,
					"rateSource": quote.Source,
				})
			}

			output.Bold("%s %s on %s, %.0f days (%s)", optType, FormatPrice(strike), FormatPrice(underlying), days, model.Name())
			output.Printf("  Price:       %s\n", FormatPrice(price))
			output.Printf("  Intrinsic:   %s\n", FormatPrice(intrinsic))
			output.Printf("  Time value:  %s\n", FormatPrice(price-intrinsic))
			output.Printf("  Greeks:      %s\n", FormatGreeks(greeks))
			output.Dim("  Rate %.2f%% (%s), vol %.2f", quote.RatePercent, quote.Source, vol)
			return nil
		},
	}

	cmd.Flags().StringP("type", "t", "call", "option type (call, put)")
	cmd.Flags().Float64P("underlying", "u", 0, "spot (equity) or futures price")
	cmd.Flags().Float64P("strike", "k", 0, "strike price")
	cmd.Flags().Float64P("days", "d", 30, "calendar days to expiration")
	cmd.Flags().Float64("vol", 0, "annualized volatility (default from config)")
	cmd.Flags().Float64("rate", -1, "risk-free rate override, e.g. 0.045")
	cmd.Flags().Float64("yield", -1, "continuous dividend yield (default from config)")
	cmd.Flags().String("convention", "", "pricing convention (equity, futures)")

	return cmd
}

func newGreeksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "greeks",
		Short: "Show per-leg and portfolio Greeks of a strategy",
		Example: `  optionlab greeks --file iron-condor.json
  optionlab greeks --id 3f2a... --price 102 --days-passed 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			s, err := app.loadStrategy(cmd)
			if err != nil {
				return err
			}
			price, _ := cmd.Flags().GetFloat64("price")
			if price <= 0 {
				price = s.CurrentPrice
			}
			if price <= 0 {
				return errors.NewValidationError("price", price, "strategy has no current price; pass --price")
			}
			daysPassed, _ := cmd.Flags().GetInt("days-passed")

			v := app.strategyValuator(cmd, s)
			agg := strategy.NewAggregator(v)
			total := agg.Greeks(s.Legs, s.Positions, price, daysPassed)

			type legGreeks struct {
				Index  int                 `json:"index"`
				Leg    string              `json:"leg"`
				Greeks models.OptionGreeks `json:"greeks"`
			}
			var legs []legGreeks
			for i, leg := range s.Legs {
				if !leg.Visible || !v.Active(leg, daysPassed) {
					continue
				}
				days := float64(v.DaysRemaining(leg, daysPassed))
				legs = append(legs, legGreeks{Index: i, Leg: FormatLeg(leg), Greeks: v.LegGreeks(leg, price, days, 0)})
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"price":     price,
					"legs":      legs,
					"portfolio": total,
				})
			}

			table := NewTable(output, "#", "LEG", "DELTA", "GAMMA", "THETA", "VEGA", "RHO")
			for _, lg := range legs {
				g := lg.Greeks
				table.AddRow(fmt.Sprintf("%d", lg.Index), lg.Leg,
					fmt.Sprintf("%.2f", g.Delta), fmt.Sprintf("%.4f", g.Gamma), fmt.Sprintf("%.2f", g.Theta),
					fmt.Sprintf("%.2f", g.Vega), fmt.Sprintf("%.2f", g.Rho))
			}
			table.Render()
			output.Bold("Portfolio @ %s: %s", FormatPrice(price), FormatGreeks(total))
			return nil
		},
	}

	addStrategySource(cmd)
	cmd.Flags().Float64("price", 0, "underlying price (default: the strategy's current price)")
	cmd.Flags().Int("days-passed", 0, "simulated days elapsed")
	return cmd
}

func newCurveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Show the P/L curve and Greeks of a strategy",
		Long: `Sweep the strategy's P/L across a price range after a number of simulated days,
and summarize max profit, max loss, breakevens and risk/reward.`,
		Example: `  optionlab curve --file iron-condor.json
  optionlab curve --id 3f2a... --days-passed 10 --points 11
  optionlab curve --file spread.json --at-expiration`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			s, err := app.loadStrategy(cmd)
			if err != nil {
				return err
			}
			if s.CurrentPrice <= 0 {
				return errors.NewValidationError("currentPrice", s.CurrentPrice, "strategy has no current price")
			}

			daysPassed, _ := cmd.Flags().GetInt("days-passed")
			atExpiration, _ := cmd.Flags().GetBool("at-expiration")
			vol, _ := cmd.Flags().GetFloat64("vol")
			points, _ := cmd.Flags().GetInt("points")
			low, _ := cmd.Flags().GetFloat64("low")
			high, _ := cmd.Flags().GetFloat64("high")

			agg := strategy.NewAggregator(app.strategyValuator(cmd, s))
			agg.VolOverride = vol

			r := strategy.DefaultRange(s.CurrentPrice)
			if low > 0 {
				r.Min = low
			}
			if high > 0 {
				r.Max = high
			}

			var curve strategy.Curve
			if atExpiration {
				daysPassed = agg.MaxDaysToExpiry(s.Legs)
				curve = agg.ExpirationCurve(s.Legs, s.Positions, r)
			} else {
				curve = agg.BuildCurve(s.Legs, s.Positions, daysPassed, r)
			}
			summary := strategy.Summarize(curve)
			greeks := agg.Greeks(s.Legs, s.Positions, s.CurrentPrice, daysPassed)
			current := agg.PLAt(s.Legs, s.Positions, s.CurrentPrice, daysPassed)
			sampled := sampleCurve(curve, points)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"daysPassed": daysPassed,
					"summary":    summary,
					"greeks":     greeks,
					"currentPL":  current,
					"curve":      sampled,
				})
			}

			title := fmt.Sprintf("%s %s @ %s, %d days passed", orNone(s.Name), s.Ticker, FormatPrice(s.CurrentPrice), daysPassed)
			output.Box(title, []string{
				fmt.Sprintf("Max profit:   %s", utils.FormatMoney(summary.MaxProfit)),
				fmt.Sprintf("Max loss:     %s", utils.FormatMoney(summary.MaxLoss)),
				fmt.Sprintf("Breakevens:   %s", FormatBreakevens(summary.Breakevens)),
				fmt.Sprintf("Risk/reward:  %s", FormatRiskReward(summary.RiskReward)),
				fmt.Sprintf("P/L at spot:  %s", utils.FormatPnL(current)),
			})
			output.Println()
			output.Printf("Greeks: %s\n\n", FormatGreeks(greeks))

			table := NewTable(output, "PRICE", "P/L")
			for _, pt := range sampled {
				table.AddRow(FormatPrice(pt.Price), output.FormatPnL(pt.PL))
			}
			table.Render()
			return nil
		},
	}

	addStrategySource(cmd)
	cmd.Flags().Int("days-passed", 0, "simulated days elapsed")
	cmd.Flags().Bool("at-expiration", false, "value at the last expiration")
	cmd.Flags().Float64("vol", 0, "volatility override for every leg")
	cmd.Flags().Int("points", 21, "rows to display")
	cmd.Flags().Float64("low", 0, "lowest price of the sweep (default: -50%)")
	cmd.Flags().Float64("high", 0, "highest price of the sweep (default: +50%)")

	return cmd
}

// sampleCurve picks n evenly spaced points of curve, always keeping both ends.
func sampleCurve(curve strategy.Curve, n int) strategy.Curve {
	if n <= 0 || len(curve) <= n {
		return curve
	}
	if n == 1 {
		return curve[:1]
	}
	out := make(strategy.Curve, 0, n)
	step := float64(len(curve)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, curve[int(float64(i)*step+0.5)])
	}
	return out
}

func newMarginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "margin",
		Short: "Estimate the capital a strategy requires",
		Example: `  optionlab margin --file credit-spread.json
  optionlab margin --id 3f2a...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			s, err := app.loadStrategy(cmd)
			if err != nil {
				return err
			}
			v := app.strategyValuator(cmd, s)
			result := margin.NewEngine(v.Multiplier).RequiredCapital(s.Legs, s.Positions, s.CurrentPrice)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"result": result,
					"total":  result.Total(),
				})
			}

			output.Bold("Capital requirement")
			output.Printf("  Net premium:   %s\n", utils.FormatPnL(result.Premium))
			output.Printf("  Debit:         %s\n", utils.FormatMoney(result.Debit))
			output.Printf("  Naked margin:  %s\n", utils.FormatMoney(result.NakedMargin))
			if len(result.Spreads) > 0 {
				output.Printf("  Spread margin: %s (%d spreads)\n", utils.FormatMoney(result.SpreadMargin), len(result.Spreads))
				for _, sp := range result.Spreads {
					kind := "debit"
					if sp.IsCredit(s.Legs) {
						kind = "credit"
					}
					output.Dim("    %s %s %.2f/%.2f %s %s -> %s", sp.Type, kind,
						s.Legs[sp.Lower].Strike, s.Legs[sp.Upper].Strike, sp.Expiration,
						FormatPrice(sp.Credit), utils.FormatMoney(sp.Margin))
				}
			}
			output.Printf("  Margin:        %s\n", utils.FormatMoney(result.Margin))
			if result.CoveredLegs > 0 {
				output.Dim("  %d short legs covered by underlying or cash", result.CoveredLegs)
			}
			output.Success("  Total:         %s", utils.FormatMoney(result.Total()))
			return nil
		},
	}

	addStrategySource(cmd)
	return cmd
}

func newExitPlanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exit-plan",
		Short: "Plan a staged exit of one leg",
		Long: `Split a leg's quantity into steps and ladder exit prices from the entry price
to its theoretical value at a target underlying price.

With --hedge-price-b the plan is two-point: the leg is valued at --target after
--days-passed on entry and at --hedge-price-b after --hedge-days-b on exit.`,
		Example: `  optionlab exit-plan --file long-call.json --leg 0 --target 110 --days-passed 10
  optionlab exit-plan --file hedge.json --leg 1 --target 95 --hedge-price-b 105 --hedge-days-b 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			s, err := app.loadStrategy(cmd)
			if err != nil {
				return err
			}

			index, _ := cmd.Flags().GetInt("leg")
			target, _ := cmd.Flags().GetFloat64("target")
			daysPassed, _ := cmd.Flags().GetInt("days-passed")
			steps, _ := cmd.Flags().GetInt("steps")
			priceB, _ := cmd.Flags().GetFloat64("hedge-price-b")
			daysB, _ := cmd.Flags().GetInt("hedge-days-b")

			if index < 0 || index >= len(s.Legs) {
				return errors.NewValidationError("leg", index, fmt.Sprintf("strategy has %d legs", len(s.Legs)))
			}
			if target <= 0 {
				return errors.NewValidationError("target", target, "must be positive")
			}
			if steps <= 0 {
				steps = app.Config.Exit.Steps
			}

			leg := s.Legs[index]
			planner := exitplan.NewPlanner(app.strategyValuator(cmd, s), steps)

			var plan []exitplan.Step
			if priceB > 0 {
				plan = planner.FromScenarios(leg, target, daysPassed, priceB, daysB)
			} else {
				plan = planner.FromLeg(leg, target, daysPassed)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"leg":   leg,
					"steps": plan,
				})
			}

			if len(plan) == 0 {
				output.Warning("Nothing to plan: the leg has no quantity")
				return nil
			}

			output.Bold("Exit plan for %s", FormatLeg(leg))
			table := NewTable(output, "STEP", "QTY", "PRICE", "PROFIT", "CUMULATIVE")
			for _, st := range plan {
				label := fmt.Sprintf("%d", st.Step)
				if st.Label != "" {
					label = fmt.Sprintf("%d %s", st.Step, st.Label)
				}
				profit, _ := st.Profit.Float64()
				acc, _ := st.AccumulatedProfit.Float64()
				table.AddRow(
					label,
					utils.FormatQuantity(int64(st.Quantity)),
					st.OptionPrice.StringFixed(2),
					output.FormatPnL(profit),
					output.FormatPnL(acc),
				)
			}
			table.Render()
			return nil
		},
	}

	addStrategySource(cmd)
	cmd.Flags().Int("leg", 0, "index of the leg to exit")
	cmd.Flags().Float64("target", 0, "target underlying price")
	cmd.Flags().Int("days-passed", 0, "days elapsed when the target is reached")
	cmd.Flags().Int("steps", 0, "number of exit steps (default from config)")
	cmd.Flags().Float64("hedge-price-b", 0, "exit scenario price for a two-point plan")
	cmd.Flags().Int("hedge-days-b", 0, "days elapsed at the exit scenario")

	return cmd
}

func newRatesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Show the risk-free rate in use",
		Example: `  optionlab rates
  optionlab rates --refresh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			refresh, _ := cmd.Flags().GetBool("refresh")

			var quote rates.Quote
			if refresh {
				quote = app.Rates.Refresh(cmd.Context())
			} else {
				quote = app.Rates.Rate(cmd.Context())
			}

			if output.IsJSON() {
				return output.JSON(quote)
			}
			output.Printf("Risk-free rate: %.3f%%\n", quote.RatePercent)
			output.Dim("Source: %s, fetched %s", quote.Source, quote.FetchedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().Bool("refresh", false, "bypass the cache")
	return cmd
}
