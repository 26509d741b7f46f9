// Package margin estimates the capital a multi-leg option position ties up.
package margin

import (
	"math"

	"optionlab/internal/models"
	"optionlab/internal/pricing"
)

// Naked short option rates, as fractions of the underlying (or strike for the put floor).
const (
	NakedBaseRate  = 0.20
	NakedFloorRate = 0.10
)

// LegMargin is the requirement attributed to one short leg.
type LegMargin struct {
	Index   int     `json:"index"`
	Covered bool    `json:"covered"`
	Margin  float64 `json:"margin"`
}

// Result is the capital requirement of a position.
type Result struct {
	// Debit is the net premium paid, zero for a net credit.
	Debit float64 `json:"debit"`
	// Margin is the collateral held against short legs after spread netting.
	Margin float64 `json:"margin"`
	// Premium is the signed net premium: positive for a credit.
	Premium float64 `json:"premium"`
	// NakedMargin is the per-leg sum before spread netting.
	NakedMargin  float64     `json:"nakedMargin"`
	SpreadMargin float64     `json:"spreadMargin,omitempty"`
	Spreads      []Spread    `json:"spreads,omitempty"`
	CoveredLegs  int         `json:"coveredLegs"`
	Legs         []LegMargin `json:"legs,omitempty"`
}

// Total returns the capital required: debit plus margin.
func (r Result) Total() float64 {
	return r.Debit + r.Margin
}

// Engine computes capital requirements for one contract multiplier.
type Engine struct {
	Multiplier float64
}

// NewEngine creates an engine for multiplier.
func NewEngine(multiplier float64) Engine {
	return Engine{Multiplier: multiplier}
}

// coverage tracks underlying holdings still available to cover short legs.
type coverage struct {
	longShares  float64
	shortShares float64
	cash        float64
}

func newCoverage(positions []models.UnderlyingPosition) *coverage {
	c := &coverage{}
	for _, pos := range positions {
		if !pos.Visible {
			continue
		}
		switch pos.Direction {
		case models.Long:
			c.longShares += math.Max(0, pos.Quantity)
		case models.Short:
			c.shortShares += math.Max(0, pos.Quantity)
		case models.Cash:
			c.cash += math.Max(0, pos.Amount)
		}
	}
	return c
}

// take reserves the holdings needed to cover a short leg and reports success.
// Calls are covered by long shares; puts by short shares or cash at the strike.
func (c *coverage) take(t models.OptionType, strike, shares float64) bool {
	if t == models.Call {
		if c.longShares >= shares {
			c.longShares -= shares
			return true
		}
		return false
	}
	if c.shortShares >= shares {
		c.shortShares -= shares
		return true
	}
	if need := strike * shares; c.cash >= need {
		c.cash -= need
		return true
	}
	return false
}

// RequiredCapital returns the debit and margin of the visible legs at the underlying
// price. Short legs without a strike or entry price carry no requirement.
func (e Engine) RequiredCapital(legs []models.OptionLeg, positions []models.UnderlyingPosition, price float64) Result {
	price = pricing.SafeNonNegative(price)
	mult := e.multiplier()
	res := Result{}
	cover := newCoverage(positions)
	perLeg := make(map[int]float64)

	for i, leg := range legs {
		if !leg.Visible || leg.Quantity == 0 {
			continue
		}
		qty := math.Abs(float64(leg.Quantity))
		entry := leg.EntryPrice()
		if leg.Action == models.Sell {
			res.Premium += entry * qty * mult
		} else {
			res.Premium -= entry * qty * mult
		}

		if leg.Action != models.Sell || leg.Strike <= 0 || entry <= 0 {
			continue
		}

		lm := LegMargin{Index: i}
		if cover.take(leg.Type, leg.Strike, qty*mult) {
			lm.Covered = true
			lm.Margin = CoveredMargin(leg.Type, leg.Strike, price, entry) * qty * mult
			res.CoveredLegs++
		} else {
			lm.Margin = NakedMargin(leg.Type, leg.Strike, price, entry) * qty * mult
		}
		perLeg[i] = lm.Margin
		res.NakedMargin += lm.Margin
		res.Legs = append(res.Legs, lm)
	}

	res.Margin = res.NakedMargin
	if spreads := FindSpreads(legs); len(spreads) > 0 {
		res.Spreads = spreads
		res.SpreadMargin = nettedMargin(legs, spreads, perLeg, mult)
		res.Margin = math.Min(res.NakedMargin, res.SpreadMargin)
	}

	if res.Premium < 0 {
		res.Debit = -res.Premium
	}
	res.Margin = pricing.SafeNonNegative(res.Margin)
	return res
}

// NakedMargin returns the per-share requirement of an uncovered short option.
func NakedMargin(t models.OptionType, strike, price, premium float64) float64 {
	if t == models.Call {
		otm := math.Max(0, strike-price)
		return math.Max(NakedBaseRate*price+premium-otm, NakedFloorRate*price+premium)
	}
	otm := math.Max(0, price-strike)
	return math.Max(NakedBaseRate*price+premium-otm, NakedFloorRate*strike+premium)
}

// CoveredMargin returns the per-share requirement of a covered short option: the
// premium, capped at the out-of-the-money distance.
func CoveredMargin(t models.OptionType, strike, price, premium float64) float64 {
	maxIntrinsic := math.Max(0, strike-price)
	if t == models.Put {
		maxIntrinsic = math.Max(0, price-strike)
	}
	return math.Min(premium, maxIntrinsic)
}

func (e Engine) multiplier() float64 {
	if e.Multiplier <= 0 {
		return 1
	}
	return e.Multiplier
}
