package selection

import (
	"fmt"
	"math"
	"sort"

	"optionlab/internal/errors"
	"optionlab/internal/logging"
	"optionlab/internal/metrics"
	"optionlab/internal/models"
)

// Hedge finds a contract that offsets the loss of c.PriorLeg at the target price.
// Candidates must pass the open-interest filter. A candidate qualifies when its P/L
// covers at least CoveragePercent of the prior loss; the best qualifying candidate is
// chosen like the profit variant. When none qualify, the candidate with the best net
// compensation is returned with Partial set.
func (s *Searcher) Hedge(contracts []models.Contract, c Criteria) (*Result, error) {
	if c.PriorLeg == nil {
		return nil, errors.NewValidationError("priorLeg", nil, "hedge search needs the leg to protect")
	}
	if c.Type == "" {
		c.Type = models.Put
	}
	minOI := c.MinOpenInterest
	if minOI <= 0 {
		minOI = DefaultMinOpenInterest
	}
	coverage := c.CoveragePercent
	if coverage <= 0 {
		coverage = DefaultCoveragePercent
	}

	stats := FilterStats{}
	contracts, err := s.inWindow(contracts, c, &stats)
	if err != nil {
		return nil, s.fail(VariantHedge, err, 0)
	}
	liquid, relaxed := filter(contracts, c, minOI, &stats)
	if len(liquid) == 0 {
		if stats.InStrikeWindow > 0 && len(relaxed) > 0 {
			return nil, s.fail(VariantHedge, s.noSuitable(relaxed, c, minOI), 0)
		}
		return nil, s.fail(VariantHedge, noCandidates(c, minOI, stats), 0)
	}

	priorPL := s.priorPL(c)
	ranked := s.score(liquid, c)
	for i := range ranked {
		s.compensate(&ranked[i], priorPL)
	}

	var qualifying []Candidate
	for _, cand := range ranked {
		if cand.NetCompensation >= 0 || cand.Coverage >= coverage {
			qualifying = append(qualifying, cand)
		}
	}
	stats.Qualifying = len(qualifying)

	res := &Result{
		Variant:     VariantHedge,
		TargetPrice: c.TargetPrice(),
		PriorPL:     priorPL,
		Stats:       stats,
	}

	if len(qualifying) > 0 {
		Rank(qualifying)
		best := qualifying[PickWithinTolerance(qualifying, c.TolerancePercent)]
		res.Best = &best
		res.Ranked = qualifying
		logging.LogSearch(s.Logger, string(VariantHedge), len(ranked), best.Strike, best.PnLAtTarget, "")
		metrics.RecordSearch(string(VariantHedge), "match", len(ranked))
		return res, nil
	}

	sortByCompensation(ranked)
	best := ranked[0]
	res.Best = &best
	res.Ranked = ranked
	res.Partial = true
	res.Warning = fmt.Sprintf("no candidate covers %.0f%% of the %.2f loss; best covers %.1f%%",
		coverage, math.Abs(math.Min(0, priorPL)), best.Coverage)
	logging.LogSearch(s.Logger, string(VariantHedge), len(ranked), best.Strike, best.PnLAtTarget, "")
	metrics.RecordSearch(string(VariantHedge), "partial", len(ranked))
	return res, nil
}

// priorPL values the prior leg at the target price, EvalDayOffset days before its expiration.
func (s *Searcher) priorPL(c Criteria) float64 {
	leg := *c.PriorLeg
	remaining := s.Valuator.DaysToExpiry(leg) - c.EvalDayOffset
	if remaining < 0 {
		remaining = 0
	}
	return s.Valuator.LegPL(leg, c.TargetPrice(), float64(remaining), 0)
}

func (s *Searcher) compensate(cand *Candidate, priorPL float64) {
	cand.NetCompensation = cand.PnLAtTarget + priorPL
	loss := math.Abs(math.Min(0, priorPL))
	switch {
	case loss == 0:
		cand.Coverage = 100
	case cand.PnLAtTarget > 0:
		cand.Coverage = cand.PnLAtTarget / loss * 100
	}
}

// noSuitable reports that only illiquid contracts remain, suggesting the best of them.
func (s *Searcher) noSuitable(relaxed []models.Contract, c Criteria, minOI int64) error {
	priorPL := s.priorPL(c)
	scored := s.score(relaxed, c)
	for i := range scored {
		s.compensate(&scored[i], priorPL)
	}
	sortByCompensation(scored)
	best := scored[0]

	msg := fmt.Sprintf("no contract has open interest of at least %d; without that filter %d candidates remain, best is strike %.2f expiring %s (OI %d) covering %.1f%%",
		minOI, len(scored), best.Strike, best.Expiration.Format(models.DateLayout), best.OpenInterest, best.Coverage)
	return &SuggestionError{
		SearchError: errors.NewSearchError(errors.CodeNoSuitableOptions, msg),
		Suggestion:  Suggestion{Candidate: best, Considered: len(scored)},
	}
}

// SuggestionError is a NO_SUITABLE_OPTIONS failure carrying the relaxed-filter suggestion.
type SuggestionError struct {
	*errors.SearchError
	Suggestion Suggestion
}

func (e *SuggestionError) Unwrap() error {
	return e.SearchError
}

func sortByCompensation(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].NetCompensation != cands[j].NetCompensation {
			return cands[i].NetCompensation > cands[j].NetCompensation
		}
		return cands[i].Cost < cands[j].Cost
	})
}
