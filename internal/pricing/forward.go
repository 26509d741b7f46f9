package pricing

import (
	"math"

	"optionlab/internal/models"
)

// ForwardModel is Black-76 for options on futures and forwards.
type ForwardModel struct{}

// Name returns the model name.
func (ForwardModel) Name() string { return "black-76" }

func (ForwardModel) d1d2(c Context) (float64, float64) {
	sqrtT := math.Sqrt(c.TimeYears)
	d1 := (math.Log(c.Underlying/c.Strike) + 0.5*c.Volatility*c.Volatility*c.TimeYears) / (c.Volatility * sqrtT)
	return d1, d1 - c.Volatility*sqrtT
}

// Price returns the discounted theoretical premium. At or past expiry it is the intrinsic value.
func (m ForwardModel) Price(ctx Context, t models.OptionType) float64 {
	c := ctx.normalized()
	if c.TimeYears <= 0 {
		return models.Intrinsic(t, c.Strike, c.Underlying)
	}
	return SafeNonNegative(m.price(c, t))
}

func (m ForwardModel) price(c Context, t models.OptionType) float64 {
	d1, d2 := m.d1d2(c)
	disc := math.Exp(-c.Rate * c.TimeYears)
	if t == models.Put {
		return disc * (c.Strike*normCDF(-d2) - c.Underlying*normCDF(-d1))
	}
	return disc * (c.Underlying*normCDF(d1) - c.Strike*normCDF(d2))
}

// Greeks returns delta, gamma, theta (per day), vega and rho (per percentage point).
func (m ForwardModel) Greeks(ctx Context, t models.OptionType) models.OptionGreeks {
	c := ctx.normalized()
	if c.TimeYears <= 0 {
		return expiryGreeks(c, t)
	}

	d1, _ := m.d1d2(c)
	sqrtT := math.Sqrt(c.TimeYears)
	disc := math.Exp(-c.Rate * c.TimeYears)
	pdf := normPDF(d1)
	price := m.price(c, t)

	g := models.OptionGreeks{
		Gamma: disc * pdf / (c.Underlying * c.Volatility * sqrtT),
		Vega:  disc * c.Underlying * sqrtT * pdf / 100,
		Theta: (-disc*c.Underlying*pdf*c.Volatility/(2*sqrtT) + c.Rate*price) / DaysPerYear,
		Rho:   -c.TimeYears * price / 100,
	}
	if t == models.Put {
		g.Delta = disc * (normCDF(d1) - 1)
	} else {
		g.Delta = disc * normCDF(d1)
	}
	return sanitizeGreeks(g)
}
