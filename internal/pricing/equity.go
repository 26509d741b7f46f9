package pricing

import (
	"math"

	"optionlab/internal/models"
)

// EquityModel is Black-Scholes-Merton with a continuous dividend yield.
type EquityModel struct{}

// Name returns the model name.
func (EquityModel) Name() string { return "black-scholes-merton" }

func (EquityModel) d1d2(c Context) (float64, float64) {
	sqrtT := math.Sqrt(c.TimeYears)
	d1 := (math.Log(c.Underlying/c.Strike) + (c.Rate-c.DividendYield+0.5*c.Volatility*c.Volatility)*c.TimeYears) /
		(c.Volatility * sqrtT)
	return d1, d1 - c.Volatility*sqrtT
}

// Price returns the theoretical premium. At or past expiry it is the intrinsic value.
func (m EquityModel) Price(ctx Context, t models.OptionType) float64 {
	c := ctx.normalized()
	if c.TimeYears <= 0 {
		return models.Intrinsic(t, c.Strike, c.Underlying)
	}

	d1, d2 := m.d1d2(c)
	spotDisc := c.Underlying * math.Exp(-c.DividendYield*c.TimeYears)
	strikeDisc := c.Strike * math.Exp(-c.Rate*c.TimeYears)

	var price float64
	if t == models.Put {
		price = strikeDisc*normCDF(-d2) - spotDisc*normCDF(-d1)
	} else {
		price = spotDisc*normCDF(d1) - strikeDisc*normCDF(d2)
	}
	return SafeNonNegative(price)
}

// Greeks returns delta, gamma, theta (per day), vega and rho (per percentage point).
func (m EquityModel) Greeks(ctx Context, t models.OptionType) models.OptionGreeks {
	c := ctx.normalized()
	if c.TimeYears <= 0 {
		return expiryGreeks(c, t)
	}

	d1, d2 := m.d1d2(c)
	sqrtT := math.Sqrt(c.TimeYears)
	divDisc := math.Exp(-c.DividendYield * c.TimeYears)
	rateDisc := math.Exp(-c.Rate * c.TimeYears)
	pdf := normPDF(d1)

	g := models.OptionGreeks{
		Gamma: divDisc * pdf / (c.Underlying * c.Volatility * sqrtT),
		Vega:  c.Underlying * divDisc * sqrtT * pdf / 100,
	}
	decay := -c.Underlying * pdf * c.Volatility * divDisc / (2 * sqrtT)

	if t == models.Put {
		g.Delta = divDisc * (normCDF(d1) - 1)
		g.Theta = (decay - c.DividendYield*c.Underlying*divDisc*normCDF(-d1) +
			c.Rate*c.Strike*rateDisc*normCDF(-d2)) / DaysPerYear
		g.Rho = -c.Strike * c.TimeYears * rateDisc * normCDF(-d2) / 100
	} else {
		g.Delta = divDisc * normCDF(d1)
		g.Theta = (decay + c.DividendYield*c.Underlying*divDisc*normCDF(d1) -
			c.Rate*c.Strike*rateDisc*normCDF(d2)) / DaysPerYear
		g.Rho = c.Strike * c.TimeYears * rateDisc * normCDF(d2) / 100
	}
	return sanitizeGreeks(g)
}

func sanitizeGreeks(g models.OptionGreeks) models.OptionGreeks {
	return models.OptionGreeks{
		Delta: Safe(g.Delta, 0),
		Gamma: Safe(g.Gamma, 0),
		Theta: Safe(g.Theta, 0),
		Vega:  Safe(g.Vega, 0),
		Rho:   Safe(g.Rho, 0),
	}
}
