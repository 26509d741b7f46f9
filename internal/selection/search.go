// Package selection searches candidate contracts for the option that best meets a
// price-move objective.
package selection

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"optionlab/internal/errors"
	"optionlab/internal/models"
	"optionlab/internal/strategy"
)

// Search defaults.
const (
	DefaultMaxDays             = 100
	DefaultStrikeWindowPercent = 20.0
	DefaultMinOpenInterest     = 100
	DefaultEvalDayOffset       = 5
	DefaultCoveragePercent     = 100.0
	nearestDatesShown          = 3
)

// Variant names a search flavour.
type Variant string

const (
	VariantProfit Variant = "profit"
	VariantHedge  Variant = "hedge"
)

// Criteria configures a search. The target price is CurrentPrice moved by
// TargetMovePercent (signed).
type Criteria struct {
	CurrentPrice      float64
	TargetMovePercent float64
	MinDays           int
	MaxDays           int
	// StrikeWindowPercent keeps strikes within ±percent of CurrentPrice. StrikeMin and
	// StrikeMax, when positive, override it.
	StrikeWindowPercent float64
	StrikeMin           float64
	StrikeMax           float64
	// TolerancePercent groups candidates whose P/L is within this share of the best.
	TolerancePercent float64
	// EvalDayOffset is how many days before expiration candidates are valued.
	EvalDayOffset int
	Type          models.OptionType
	Quantity      int

	// Hedge variant only.
	MinOpenInterest int64
	CoveragePercent float64
	PriorLeg        *models.OptionLeg
}

// TargetPrice returns the underlying price the search values candidates at.
func (c Criteria) TargetPrice() float64 {
	return c.CurrentPrice * (1 + c.TargetMovePercent/100)
}

func (c Criteria) strikeBounds() (float64, float64) {
	lo, hi := c.StrikeMin, c.StrikeMax
	window := c.StrikeWindowPercent
	if window <= 0 {
		window = DefaultStrikeWindowPercent
	}
	if lo <= 0 {
		lo = c.CurrentPrice * (1 - window/100)
	}
	if hi <= 0 {
		hi = c.CurrentPrice * (1 + window/100)
	}
	return lo, hi
}

func (c Criteria) quantity() int {
	if c.Quantity == 0 {
		return 1
	}
	if c.Quantity < 0 {
		return -c.Quantity
	}
	return c.Quantity
}

func (c Criteria) maxDays() int {
	if c.MaxDays <= 0 {
		return DefaultMaxDays
	}
	return c.MaxDays
}

// Candidate is a scored contract.
type Candidate struct {
	models.Contract
	Days        int     `json:"days"`
	EntryPrice  float64 `json:"entryPrice"`
	PnLAtTarget float64 `json:"pnlAtTarget"`
	Cost        float64 `json:"cost"`
	ROI         float64 `json:"roi"`
	// NetCompensation is PnLAtTarget plus the prior leg's P/L (hedge variant).
	NetCompensation float64 `json:"netCompensation,omitempty"`
	// Coverage is the share of the prior leg's loss the candidate offsets, in percent.
	Coverage float64 `json:"coverage,omitempty"`
}

// FilterStats counts how many contracts survived each filter.
type FilterStats struct {
	TotalDates          int `json:"totalDates"`
	FilteredDates       int `json:"filteredDates"`
	TotalContracts      int `json:"totalContracts"`
	MatchingType        int `json:"matchingType"`
	WithPrice           int `json:"withPrice"`
	InStrikeWindow      int `json:"inStrikeWindow"`
	Liquid              int `json:"liquid"`
	RejectedByLiquidity int `json:"rejectedByLiquidity"`
	Qualifying          int `json:"qualifying"`
}

// Suggestion is the best hedge found when the liquidity filter is relaxed.
type Suggestion struct {
	Candidate  Candidate `json:"candidate"`
	Considered int       `json:"considered"`
}

// Result is a successful search outcome.
type Result struct {
	Variant     Variant     `json:"variant"`
	TargetPrice float64     `json:"targetPrice"`
	Best        *Candidate  `json:"best"`
	Ranked      []Candidate `json:"ranked"`
	Partial     bool        `json:"partial"`
	Warning     string      `json:"warning,omitempty"`
	PriorPL     float64     `json:"priorPL,omitempty"`
	Stats       FilterStats `json:"stats"`
	FailedDates []time.Time `json:"failedDates,omitempty"`
	Suggestion  *Suggestion `json:"suggestion,omitempty"`
}

// Searcher scores candidates with a valuator.
type Searcher struct {
	Valuator strategy.Valuator
	Logger   zerolog.Logger
}

// NewSearcher creates a searcher over v.
func NewSearcher(v strategy.Valuator, logger zerolog.Logger) *Searcher {
	return &Searcher{Valuator: v, Logger: logger}
}

func (s *Searcher) today() time.Time {
	if s.Valuator.Now.IsZero() {
		return time.Now()
	}
	return s.Valuator.Now
}

// FilterDates keeps the expirations within [MinDays, MaxDays] of today. When none
// qualify it returns a NO_DATES error naming the nearest available dates.
func FilterDates(available []time.Time, minDays, maxDays int, today time.Time) ([]time.Time, error) {
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	var kept []time.Time
	for _, d := range available {
		days := models.DaysBetween(today, d)
		if days >= minDays && days <= maxDays {
			kept = append(kept, d)
		}
	}
	if len(kept) > 0 {
		sort.Slice(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })
		return kept, nil
	}

	msg := fmt.Sprintf("no expirations between %d and %d days", minDays, maxDays)
	if near := nearestDates(available, minDays, today); near != "" {
		msg += "; nearest: " + near
	}
	return nil, errors.NewSearchError(errors.CodeNoDates, msg)
}

// nearestDates lists the available dates closest to the window start.
func nearestDates(available []time.Time, minDays int, today time.Time) string {
	dates := append([]time.Time(nil), available...)
	sort.Slice(dates, func(i, j int) bool {
		di := math.Abs(float64(models.DaysBetween(today, dates[i]) - minDays))
		dj := math.Abs(float64(models.DaysBetween(today, dates[j]) - minDays))
		if di != dj {
			return di < dj
		}
		return dates[i].Before(dates[j])
	})
	if len(dates) > nearestDatesShown {
		dates = dates[:nearestDatesShown]
	}
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = fmt.Sprintf("%s (%dd)", d.Format(models.DateLayout), models.DaysBetween(today, d))
	}
	return strings.Join(parts, ", ")
}

// inWindow drops contracts expiring outside the day window. Contracts without an
// expiration are kept.
func (s *Searcher) inWindow(contracts []models.Contract, c Criteria, stats *FilterStats) ([]models.Contract, error) {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, ct := range contracts {
		if ct.Expiration.IsZero() || seen[ct.Expiration] {
			continue
		}
		seen[ct.Expiration] = true
		dates = append(dates, ct.Expiration)
	}
	if len(dates) == 0 {
		return contracts, nil
	}

	kept, err := FilterDates(dates, c.MinDays, c.maxDays(), s.today())
	if err != nil {
		return nil, err
	}
	stats.TotalDates = len(dates)
	stats.FilteredDates = len(kept)

	allowed := make(map[time.Time]bool, len(kept))
	for _, d := range kept {
		allowed[d] = true
	}
	out := make([]models.Contract, 0, len(contracts))
	for _, ct := range contracts {
		if ct.Expiration.IsZero() || allowed[ct.Expiration] {
			out = append(out, ct)
		}
	}
	return out, nil
}

// filter applies the type, price and strike filters, and the open-interest filter
// when minOI is positive. It returns the liquid contracts and, separately, every
// contract that passed all filters but the minimum open interest (OI > 0 still required).
func filter(contracts []models.Contract, c Criteria, minOI int64, stats *FilterStats) (liquid, relaxed []models.Contract) {
	lo, hi := c.strikeBounds()
	for _, ct := range contracts {
		stats.TotalContracts++
		if ct.Type != c.Type {
			continue
		}
		stats.MatchingType++
		if !ct.HasPrice() {
			continue
		}
		stats.WithPrice++
		if ct.Strike < lo || ct.Strike > hi {
			continue
		}
		stats.InStrikeWindow++

		if minOI <= 0 {
			liquid = append(liquid, ct)
			continue
		}
		if ct.OpenInterest > 0 {
			relaxed = append(relaxed, ct)
		}
		if ct.OpenInterest > 0 && ct.OpenInterest >= minOI {
			liquid = append(liquid, ct)
		} else {
			stats.RejectedByLiquidity++
		}
	}
	stats.Liquid = len(liquid)
	return liquid, relaxed
}

// noCandidates explains which filter removed everything.
func noCandidates(c Criteria, minOI int64, stats FilterStats) error {
	var msg string
	lo, hi := c.strikeBounds()
	switch {
	case stats.TotalContracts == 0:
		msg = "no contracts were returned for the selected dates"
	case stats.MatchingType == 0:
		msg = fmt.Sprintf("no %s contracts among %d", c.Type, stats.TotalContracts)
	case stats.WithPrice == 0:
		msg = fmt.Sprintf("none of %d %s contracts has a bid, ask or last price", stats.MatchingType, c.Type)
	case stats.InStrikeWindow == 0:
		msg = fmt.Sprintf("all %d priced %s contracts are outside strikes %.2f-%.2f", stats.WithPrice, c.Type, lo, hi)
	default:
		msg = fmt.Sprintf("all %d contracts in the strike window have open interest below %d", stats.InStrikeWindow, minOI)
	}
	return errors.NewSearchError(errors.CodeNoCandidates, msg)
}

// score values each contract as a bought leg at the target price, evalDays before
// its expiration.
func (s *Searcher) score(contracts []models.Contract, c Criteria) []Candidate {
	target := c.TargetPrice()
	qty := c.quantity()
	mult := s.Valuator.Multiplier
	if mult <= 0 {
		mult = 1
	}

	out := make([]Candidate, 0, len(contracts))
	for _, ct := range contracts {
		leg := ct.Leg(models.Buy, qty)
		days := s.Valuator.DaysToExpiry(leg)
		remaining := days - c.EvalDayOffset
		if remaining < 0 {
			remaining = 0
		}
		entry := leg.EntryPrice()
		cost := entry * mult * float64(qty)
		pnl := s.Valuator.LegPL(leg, target, float64(remaining), 0)

		cand := Candidate{
			Contract:    ct,
			Days:        days,
			EntryPrice:  entry,
			PnLAtTarget: pnl,
			Cost:        cost,
		}
		if cost > 0 {
			cand.ROI = pnl / cost * 100
		}
		out = append(out, cand)
	}
	return out
}

// Rank sorts candidates by P/L descending, then cost ascending, then strike.
func Rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.PnLAtTarget != b.PnLAtTarget {
			return a.PnLAtTarget > b.PnLAtTarget
		}
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		return a.Strike < b.Strike
	})
}

// PickWithinTolerance returns the index of the cheapest candidate whose P/L is within
// tolerancePercent of the best. cands must be ranked.
func PickWithinTolerance(cands []Candidate, tolerancePercent float64) int {
	if len(cands) == 0 {
		return -1
	}
	best := cands[0].PnLAtTarget
	floor := best - math.Abs(best)*math.Max(0, tolerancePercent)/100

	pick := 0
	for i := 1; i < len(cands); i++ {
		if cands[i].PnLAtTarget < floor {
			break
		}
		if cands[i].Cost < cands[pick].Cost {
			pick = i
		}
	}
	return pick
}
