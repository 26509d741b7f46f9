// Package strategy values option legs and aggregates multi-leg P/L.
package strategy

import (
	"math"
	"time"

	"optionlab/internal/models"
	"optionlab/internal/pricing"
)

// Implied volatility bounds and the default used outside them.
const (
	MinVolatility     = 0.05
	MaxVolatility     = 5.0
	DefaultVolatility = 0.30
)

// Valuator prices legs under one pricing model, rate and contract multiplier.
type Valuator struct {
	Model         pricing.PricingModel
	Rate          float64
	DividendYield float64
	Multiplier    float64
	// DefaultVolatility replaces missing or out-of-range leg volatilities. Zero uses the
	// package DefaultVolatility.
	DefaultVolatility float64
	// Now is the valuation date; days to expiry are counted from it.
	Now time.Time
}

// NewValuator creates a valuator dated today.
func NewValuator(model pricing.PricingModel, rate, dividendYield, multiplier float64) Valuator {
	return Valuator{
		Model:         model,
		Rate:          rate,
		DividendYield: dividendYield,
		Multiplier:    multiplier,
		Now:           time.Now(),
	}
}

// ResolveVolatility picks the volatility for a leg: a positive override, else the leg's
// own override, else its implied volatility. Values above 1 are read as percentages.
// Anything outside [MinVolatility, MaxVolatility] falls back to DefaultVolatility.
func ResolveVolatility(leg models.OptionLeg, override float64) float64 {
	return resolveVolatility(leg, override, DefaultVolatility)
}

// Volatility resolves a leg's volatility like ResolveVolatility, falling back to the
// valuator's configured default.
func (v Valuator) Volatility(leg models.OptionLeg, override float64) float64 {
	def := DefaultVolatility
	if d := pricing.Safe(v.DefaultVolatility, 0); d >= MinVolatility && d <= MaxVolatility {
		def = d
	}
	return resolveVolatility(leg, override, def)
}

func resolveVolatility(leg models.OptionLeg, override, def float64) float64 {
	vol := pricing.Safe(override, 0)
	if vol <= 0 {
		vol = pricing.Safe(leg.IVOverride, 0)
	}
	if vol <= 0 {
		vol = pricing.Safe(leg.ImpliedVolatility, 0)
	}
	if vol > 1 {
		vol /= 100
	}
	if vol < MinVolatility || vol > MaxVolatility {
		return def
	}
	return vol
}

// DaysToExpiry returns calendar days from the valuation date to the leg's expiration, floored at 0.
func (v Valuator) DaysToExpiry(leg models.OptionLeg) int {
	if leg.Expiration.IsZero() {
		return 0
	}
	days := models.DaysBetween(v.now(), leg.Expiration)
	if days < 0 {
		return 0
	}
	return days
}

// DaysRemaining returns the days left on the leg after daysPassed simulated days.
func (v Valuator) DaysRemaining(leg models.OptionLeg, daysPassed int) int {
	days := v.DaysToExpiry(leg) - daysPassed
	if days < 0 {
		return 0
	}
	return days
}

// Active reports whether the leg is open on the simulated day.
func (v Valuator) Active(leg models.OptionLeg, daysPassed int) bool {
	if leg.EntryDate == nil {
		return true
	}
	return models.DaysBetween(v.now(), *leg.EntryDate) <= daysPassed
}

// TheoreticalPrice returns the model value of the leg's contract at price with
// daysRemaining left, never below intrinsic value.
func (v Valuator) TheoreticalPrice(leg models.OptionLeg, price, daysRemaining, volOverride float64) float64 {
	price = pricing.SafeNonNegative(price)
	intrinsic := leg.Intrinsic(price)
	if daysRemaining <= 0 || price <= 0 || v.Model == nil {
		return intrinsic
	}

	theo := v.Model.Price(v.context(leg, price, daysRemaining, volOverride), leg.Type)
	// time value never goes negative
	return intrinsic + math.Max(0, theo-intrinsic)
}

// LegPL returns the leg's profit or loss if the underlying trades at price with
// daysRemaining left. Zero quantities and non-positive prices contribute nothing.
func (v Valuator) LegPL(leg models.OptionLeg, price, daysRemaining, volOverride float64) float64 {
	if leg.Quantity == 0 || pricing.Safe(price, 0) <= 0 {
		return 0
	}
	theo := v.TheoreticalPrice(leg, price, daysRemaining, volOverride)
	pl := (theo - leg.EntryPrice()) * math.Abs(float64(leg.Quantity)) * v.multiplier()
	if leg.Action == models.Sell {
		pl = -pl
	}
	return pricing.Safe(pl, 0)
}

// LegGreeks returns the position Greeks of the leg: per-contract Greeks scaled by
// signed quantity and multiplier.
func (v Valuator) LegGreeks(leg models.OptionLeg, price, daysRemaining, volOverride float64) models.OptionGreeks {
	if leg.Quantity == 0 || v.Model == nil {
		return models.OptionGreeks{}
	}
	g := v.Model.Greeks(v.context(leg, price, daysRemaining, volOverride), leg.Type)
	factor := leg.Action.Sign() * math.Abs(float64(leg.Quantity)) * v.multiplier()
	return models.OptionGreeks{}.Add(g, factor)
}

func (v Valuator) context(leg models.OptionLeg, price, daysRemaining, volOverride float64) pricing.Context {
	return pricing.Context{
		Underlying:    price,
		Strike:        leg.Strike,
		TimeYears:     pricing.YearsFromDays(daysRemaining),
		Rate:          v.Rate,
		Volatility:    v.Volatility(leg, volOverride),
		DividendYield: v.DividendYield,
	}
}

func (v Valuator) multiplier() float64 {
	if v.Multiplier <= 0 {
		return 1
	}
	return v.Multiplier
}

func (v Valuator) now() time.Time {
	if v.Now.IsZero() {
		return time.Now()
	}
	return v.Now
}
