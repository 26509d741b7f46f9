// Package pricing implements closed-form option pricing models.
package pricing

import (
	"math"

	"optionlab/internal/models"
)

// Numeric floors applied before any closed-form evaluation.
const (
	MinVolatility = 0.01
	MinPrice      = 0.01
	DaysPerYear   = 365.0
)

// Context holds the market inputs of a single pricing call.
type Context struct {
	Underlying    float64 // spot for equity options, forward for futures options
	Strike        float64
	TimeYears     float64
	Rate          float64
	Volatility    float64
	DividendYield float64 // ignored by the forward model
}

// PricingModel prices a European option and its Greeks.
type PricingModel interface {
	Name() string
	Price(ctx Context, t models.OptionType) float64
	Greeks(ctx Context, t models.OptionType) models.OptionGreeks
}

// ForConvention returns the model for a market convention.
func ForConvention(c models.Convention) PricingModel {
	if c == models.ConventionFutures {
		return ForwardModel{}
	}
	return EquityModel{}
}

// YearsFromDays converts calendar days to a year fraction, never negative.
func YearsFromDays(days float64) float64 {
	return math.Max(0, Safe(days, 0)) / DaysPerYear
}

// normalized applies the numeric floors shared by both models.
func (c Context) normalized() Context {
	return Context{
		Underlying:    math.Max(Safe(c.Underlying, MinPrice), MinPrice),
		Strike:        math.Max(Safe(c.Strike, MinPrice), MinPrice),
		TimeYears:     Safe(c.TimeYears, 0),
		Rate:          Safe(c.Rate, 0),
		Volatility:    math.Max(Safe(c.Volatility, MinVolatility), MinVolatility),
		DividendYield: math.Max(Safe(c.DividendYield, 0), 0),
	}
}

// expiryGreeks returns the Greeks of a contract at expiration: a step delta and nothing else.
func expiryGreeks(c Context, t models.OptionType) models.OptionGreeks {
	var g models.OptionGreeks
	switch t {
	case models.Call:
		if c.Underlying > c.Strike {
			g.Delta = 1
		}
	case models.Put:
		if c.Underlying < c.Strike {
			g.Delta = -1
		}
	}
	return g
}
