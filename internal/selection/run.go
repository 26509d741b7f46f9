package selection

import (
	"context"
	"fmt"

	"optionlab/internal/errors"
	"optionlab/internal/logging"
	"optionlab/internal/marketdata"
)

// Run lists the ticker's expirations, keeps those in the day window, collects their
// chains and runs the variant over them. Dates that failed to load are reported on the
// result and mark it partial.
func (s *Searcher) Run(ctx context.Context, collector *marketdata.Collector, ticker string, v Variant, c Criteria) (*Result, error) {
	logger := logging.WithOperation(logging.WithTicker(s.Logger, ticker), "select_"+string(v))

	available, err := collector.Expirations(ctx, ticker)
	if err != nil {
		return nil, errors.Wrapf(err, "listing expirations for %s", ticker)
	}
	dates, err := FilterDates(available, c.MinDays, c.maxDays(), s.today())
	if err != nil {
		return nil, s.fail(v, err, 0)
	}
	logger.Debug().Int("available", len(available)).Int("selected", len(dates)).Msg("Expirations selected")

	coll, err := collector.Collect(ctx, ticker, dates)
	if err != nil {
		return nil, err
	}

	var res *Result
	switch v {
	case VariantProfit:
		res, err = s.Profit(coll.Contracts, c)
	case VariantHedge:
		res, err = s.Hedge(coll.Contracts, c)
	default:
		return nil, errors.NewValidationError("variant", v, fmt.Sprintf("unknown search variant %q", v))
	}
	if err != nil {
		return nil, err
	}

	res.Stats.TotalDates = len(available)
	res.Stats.FilteredDates = len(dates)
	res.FailedDates = coll.FailedDates
	if coll.Partial {
		res.Partial = true
		msg := fmt.Sprintf("%d of %d expirations failed to load", len(coll.FailedDates), len(dates))
		if res.Warning != "" {
			msg = res.Warning + "; " + msg
		}
		res.Warning = msg
	}
	return res, nil
}
