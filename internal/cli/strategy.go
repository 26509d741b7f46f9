package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"optionlab/internal/errors"
	"optionlab/internal/models"
	"optionlab/internal/store"
	"optionlab/pkg/utils"
)

// addStrategyCommands adds saved strategy and search history commands.
func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStrategyCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
}

func (app *App) requireStore() error {
	if app.Store == nil {
		return errors.Wrap(errors.ErrDatabaseError, "store unavailable")
	}
	return nil
}

func newStrategyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "strategy",
		Aliases: []string{"strategies"},
		Short:   "Manage saved strategies",
		Long:    "Save, list, show and delete multi-leg strategies.",
	}

	cmd.AddCommand(newStrategySaveCmd(app))
	cmd.AddCommand(newStrategyListCmd(app))
	cmd.AddCommand(newStrategyShowCmd(app))
	cmd.AddCommand(newStrategyDeleteCmd(app))

	return cmd
}

func newStrategySaveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a strategy from a JSON file",
		Example: `  optionlab strategy save --file iron-condor.json
  optionlab strategy save --file spread.json --name "SPY bull spread" --status OPEN`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}

			s, err := app.loadStrategy(cmd)
			if err != nil {
				return err
			}
			if name, _ := cmd.Flags().GetString("name"); name != "" {
				s.Name = name
			}
			if status, _ := cmd.Flags().GetString("status"); status != "" {
				s.Status = models.StrategyStatus(strings.ToUpper(status))
			}

			if err := app.Store.SaveStrategy(cmd.Context(), s); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(s)
			}
			output.Success("Saved %s (%s)", s.Name, s.ID)
			return nil
		},
	}

	cmd.Flags().StringP("file", "f", "", "strategy JSON file")
	cmd.Flags().String("id", "", "existing strategy to re-save")
	cmd.Flags().String("name", "", "strategy name")
	cmd.Flags().String("status", "", "status (DRAFT, OPEN, CLOSED)")
	return cmd
}

func newStrategyListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}

			ticker, _ := cmd.Flags().GetString("ticker")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			list, err := app.Store.ListStrategies(cmd.Context(), store.StrategyFilter{
				Ticker: strings.ToUpper(ticker),
				Status: models.StrategyStatus(strings.ToUpper(status)),
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(list)
			}
			if len(list) == 0 {
				output.Dim("No saved strategies")
				return nil
			}

			table := NewTable(output, "ID", "NAME", "TICKER", "LEGS", "STATUS", "UPDATED")
			for _, s := range list {
				table.AddRow(s.ID, s.Name, s.Ticker, fmt.Sprintf("%d", len(s.Legs)), string(s.Status), humanize.Time(s.UpdatedAt))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("ticker", "", "filter by ticker")
	cmd.Flags().String("status", "", "filter by status")
	cmd.Flags().Int("limit", 50, "maximum rows")
	return cmd
}

func newStrategyShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}

			s, err := app.Store.GetStrategy(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(s)
			}

			output.Bold("%s  %s @ %s  [%s, %s]", s.Name, s.Ticker, FormatPrice(s.CurrentPrice), s.Status, s.Convention)
			table := NewTable(output, "#", "LEG", "ENTRY", "IV", "VISIBLE")
			for i, leg := range s.Legs {
				table.AddRow(
					fmt.Sprintf("%d", i),
					FormatLeg(leg),
					FormatPrice(leg.EntryPrice()),
					fmt.Sprintf("%.1f%%", leg.ImpliedVolatility*100),
					fmt.Sprintf("%v", leg.Visible),
				)
			}
			table.Render()
			for _, p := range s.Positions {
				output.Printf("  %s %.0f @ %s\n", p.Direction, p.Quantity, FormatPrice(p.EntryPrice))
			}
			if s.Notes != "" {
				output.Dim("%s", s.Notes)
			}
			return nil
		},
	}
}

func newStrategyDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}
			if err := app.Store.DeleteStrategy(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("Deleted %s", args[0])
			return nil
		},
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past selection searches",
		Example: `  optionlab history
  optionlab history --ticker SPY --variant hedge --days 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.requireStore(); err != nil {
				return err
			}

			ticker, _ := cmd.Flags().GetString("ticker")
			variant, _ := cmd.Flags().GetString("variant")
			days, _ := cmd.Flags().GetInt("days")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := store.SearchRunFilter{
				Ticker:  strings.ToUpper(ticker),
				Variant: strings.ToLower(variant),
				Limit:   limit,
			}
			if days > 0 {
				filter.StartDate = time.Now().AddDate(0, 0, -days)
			}

			runs, err := app.Store.GetSearchRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No searches recorded")
				return nil
			}

			table := NewTable(output, "WHEN", "TICKER", "VARIANT", "TARGET", "OUTCOME", "STRIKE", "EXPIRATION", "P/L")
			for _, r := range runs {
				outcome := "match"
				if r.Code != "" {
					outcome = output.Red(r.Code)
				} else if r.Partial {
					outcome = output.Yellow("partial")
				}
				strike, expiry, pnl := "-", "-", "-"
				if r.Code == "" {
					strike = FormatPrice(r.BestStrike)
					expiry = r.BestExpiration.Format(models.DateLayout)
					pnl = utils.FormatPnL(r.BestPnL)
				}
				table.AddRow(humanize.Time(r.CreatedAt), r.Ticker, r.Variant, FormatPrice(r.TargetPrice), outcome, strike, expiry, pnl)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("ticker", "", "filter by ticker")
	cmd.Flags().String("variant", "", "filter by variant (profit, hedge)")
	cmd.Flags().Int("days", 0, "only the last N days")
	cmd.Flags().Int("limit", 20, "maximum rows")
	return cmd
}
