package selection

import (
	"fmt"

	"optionlab/internal/errors"
	"optionlab/internal/logging"
	"optionlab/internal/metrics"
	"optionlab/internal/models"
)

// Profit finds the contract of c.Type with the highest P/L at the target price.
// Among candidates within the tolerance of the best, the cheapest wins.
func (s *Searcher) Profit(contracts []models.Contract, c Criteria) (*Result, error) {
	if c.Type == "" {
		c.Type = models.Call
	}
	stats := FilterStats{}
	contracts, err := s.inWindow(contracts, c, &stats)
	if err != nil {
		return nil, s.fail(VariantProfit, err, 0)
	}
	candidates, _ := filter(contracts, c, 0, &stats)
	if len(candidates) == 0 {
		return nil, s.fail(VariantProfit, noCandidates(c, 0, stats), 0)
	}

	ranked := s.score(candidates, c)
	Rank(ranked)
	stats.Qualifying = countPositive(ranked)

	if ranked[0].PnLAtTarget <= 0 {
		msg := fmt.Sprintf("no %s is profitable at %.2f; best is strike %.2f expiring %s with %.2f",
			c.Type, c.TargetPrice(), ranked[0].Strike, ranked[0].Expiration.Format(models.DateLayout), ranked[0].PnLAtTarget)
		return nil, s.fail(VariantProfit, errors.NewSearchError(errors.CodeNoProfitableOptions, msg), len(ranked))
	}

	best := ranked[PickWithinTolerance(ranked, c.TolerancePercent)]
	logging.LogSearch(s.Logger, string(VariantProfit), len(ranked), best.Strike, best.PnLAtTarget, "")
	metrics.RecordSearch(string(VariantProfit), "match", len(ranked))

	return &Result{
		Variant:     VariantProfit,
		TargetPrice: c.TargetPrice(),
		Best:        &best,
		Ranked:      ranked,
		Stats:       stats,
	}, nil
}

func (s *Searcher) fail(v Variant, err error, evaluated int) error {
	code := errors.SearchCode(err)
	logging.LogSearch(s.Logger, string(v), evaluated, 0, 0, code)
	metrics.RecordSearch(string(v), code, evaluated)
	return err
}

func countPositive(cands []Candidate) int {
	n := 0
	for _, c := range cands {
		if c.PnLAtTarget > 0 {
			n++
		}
	}
	return n
}
