package strategy

import (
	"fmt"
	"math"
	"sort"

	"optionlab/internal/models"
)

// Curve sampling defaults.
const (
	DefaultRangePercent = 0.5
	DefaultSamples      = 501
	BreakevenTolerance  = 0.1
	minimumCurveSamples = 2
)

// Range is a uniformly sampled price interval, both ends inclusive.
type Range struct {
	Min     float64
	Max     float64
	Samples int
}

// DefaultRange spans ±50% around the current price with 501 samples.
func DefaultRange(current float64) Range {
	return Range{
		Min:     current * (1 - DefaultRangePercent),
		Max:     current * (1 + DefaultRangePercent),
		Samples: DefaultSamples,
	}
}

// Prices returns the sample prices of the range.
func (r Range) Prices() []float64 {
	n := r.Samples
	if n < minimumCurveSamples {
		n = minimumCurveSamples
	}
	lo, hi := r.Min, r.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	step := (hi - lo) / float64(n-1)
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = lo + float64(i)*step
	}
	prices[n-1] = hi
	return prices
}

// Point is one sample of a P/L curve.
type Point struct {
	Price float64 `json:"price"`
	PL    float64 `json:"pl"`
}

// Curve is an ordered P/L sweep.
type Curve []Point

// RiskRewardKind classifies a risk/reward figure.
type RiskRewardKind string

const (
	RiskRewardRatio     RiskRewardKind = "ratio"
	RiskRewardUnbounded RiskRewardKind = "unbounded"
	RiskRewardUndefined RiskRewardKind = "undefined"
)

// RiskReward is max profit over max loss, or a sentinel.
type RiskReward struct {
	Kind  RiskRewardKind `json:"kind"`
	Value float64        `json:"value,omitempty"`
}

func (r RiskReward) String() string {
	switch r.Kind {
	case RiskRewardRatio:
		return fmt.Sprintf("1:%.2f", r.Value)
	case RiskRewardUnbounded:
		return "∞"
	default:
		return "n/a"
	}
}

// Summary holds the headline metrics of a curve.
type Summary struct {
	MaxProfit  float64    `json:"maxProfit"`
	MaxLoss    float64    `json:"maxLoss"`
	Breakevens []float64  `json:"breakevens"`
	RiskReward RiskReward `json:"riskReward"`
}

// Aggregator sums leg and underlying P/L across a price grid.
type Aggregator struct {
	Valuator Valuator
	// VolOverride, when positive, replaces every leg's implied volatility.
	VolOverride float64
}

// NewAggregator creates an aggregator over v.
func NewAggregator(v Valuator) Aggregator {
	return Aggregator{Valuator: v}
}

// PLAt returns the total P/L of the visible legs and positions at price after daysPassed days.
func (a Aggregator) PLAt(legs []models.OptionLeg, positions []models.UnderlyingPosition, price float64, daysPassed int) float64 {
	total := 0.0
	for _, leg := range legs {
		if !leg.Visible || !a.Valuator.Active(leg, daysPassed) {
			continue
		}
		days := float64(a.Valuator.DaysRemaining(leg, daysPassed))
		total += a.Valuator.LegPL(leg, price, days, a.VolOverride)
	}
	for _, pos := range positions {
		if pos.Visible {
			total += pos.PL(price)
		}
	}
	return total
}

// BuildCurve samples the P/L over r after daysPassed simulated days.
func (a Aggregator) BuildCurve(legs []models.OptionLeg, positions []models.UnderlyingPosition, daysPassed int, r Range) Curve {
	prices := r.Prices()
	curve := make(Curve, len(prices))
	for i, p := range prices {
		curve[i] = Point{Price: p, PL: a.PLAt(legs, positions, p, daysPassed)}
	}
	return curve
}

// ExpirationCurve samples the P/L at the last expiration among the visible legs.
func (a Aggregator) ExpirationCurve(legs []models.OptionLeg, positions []models.UnderlyingPosition, r Range) Curve {
	return a.BuildCurve(legs, positions, a.MaxDaysToExpiry(legs), r)
}

// MaxDaysToExpiry returns the longest days-to-expiry among visible legs.
func (a Aggregator) MaxDaysToExpiry(legs []models.OptionLeg) int {
	maxDays := 0
	for _, leg := range legs {
		if leg.Visible {
			if d := a.Valuator.DaysToExpiry(leg); d > maxDays {
				maxDays = d
			}
		}
	}
	return maxDays
}

// Greeks returns the portfolio Greeks at price after daysPassed days. Underlying
// positions add their share delta.
func (a Aggregator) Greeks(legs []models.OptionLeg, positions []models.UnderlyingPosition, price float64, daysPassed int) models.OptionGreeks {
	var total models.OptionGreeks
	for _, leg := range legs {
		if !leg.Visible || !a.Valuator.Active(leg, daysPassed) {
			continue
		}
		days := float64(a.Valuator.DaysRemaining(leg, daysPassed))
		total = total.Add(a.Valuator.LegGreeks(leg, price, days, a.VolOverride), 1)
	}
	for _, pos := range positions {
		if !pos.Visible {
			continue
		}
		switch pos.Direction {
		case models.Long:
			total.Delta += pos.Quantity
		case models.Short:
			total.Delta -= pos.Quantity
		}
	}
	return total
}

// Summarize derives max profit, max loss, breakevens and risk/reward from a curve.
func Summarize(curve Curve) Summary {
	if len(curve) == 0 {
		return Summary{Breakevens: []float64{}, RiskReward: RiskReward{Kind: RiskRewardUndefined}}
	}

	maxProfit, maxLoss := math.Inf(-1), math.Inf(1)
	for _, pt := range curve {
		maxProfit = math.Max(maxProfit, pt.PL)
		maxLoss = math.Min(maxLoss, pt.PL)
	}

	return Summary{
		MaxProfit:  maxProfit,
		MaxLoss:    maxLoss,
		Breakevens: Breakevens(curve),
		RiskReward: riskReward(maxProfit, maxLoss),
	}
}

// Breakevens returns the interpolated zero crossings of the curve, sorted and
// deduplicated within BreakevenTolerance. Samples that are exactly zero count only
// when the curve changes sign across them.
func Breakevens(curve Curve) []float64 {
	found := []float64{}
	last := -1 // index of the last non-zero sample

	for i, pt := range curve {
		if pt.PL == 0 {
			continue
		}
		if last >= 0 && math.Signbit(pt.PL) != math.Signbit(curve[last].PL) {
			if last == i-1 {
				p0, p1 := curve[last], pt
				ratio := math.Abs(p0.PL) / (math.Abs(p0.PL) + math.Abs(p1.PL))
				found = append(found, p0.Price+ratio*(p1.Price-p0.Price))
			} else {
				// flat zero run between the two signs
				found = append(found, (curve[last+1].Price+curve[i-1].Price)/2)
			}
		}
		last = i
	}

	sort.Float64s(found)
	deduped := found[:0]
	for _, be := range found {
		if len(deduped) == 0 || be-deduped[len(deduped)-1] > BreakevenTolerance {
			deduped = append(deduped, be)
		}
	}
	return deduped
}

func riskReward(maxProfit, maxLoss float64) RiskReward {
	switch {
	case maxLoss < 0 && maxProfit > 0:
		return RiskReward{Kind: RiskRewardRatio, Value: maxProfit / math.Abs(maxLoss)}
	case maxProfit == 0 && maxLoss == 0:
		return RiskReward{Kind: RiskRewardUndefined}
	default:
		return RiskReward{Kind: RiskRewardUnbounded}
	}
}
