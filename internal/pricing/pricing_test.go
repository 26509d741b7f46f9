package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"optionlab/internal/models"
)

func TestEquityReferenceCall(t *testing.T) {
	ctx := Context{Underlying: 100, Strike: 100, TimeYears: 0.5, Rate: 0.05, Volatility: 0.20}

	price := EquityModel{}.Price(ctx, models.Call)
	assert.InDelta(t, 6.89, price, 0.01)
}

func TestEquityReferencePut(t *testing.T) {
	// Hull: S=42, K=40, r=10%, sigma=20%, T=0.5 -> call 4.76, put 0.81
	ctx := Context{Underlying: 42, Strike: 40, TimeYears: 0.5, Rate: 0.10, Volatility: 0.20}

	assert.InDelta(t, 4.76, EquityModel{}.Price(ctx, models.Call), 0.01)
	assert.InDelta(t, 0.81, EquityModel{}.Price(ctx, models.Put), 0.01)
}

func TestEquityDividendLowersCall(t *testing.T) {
	base := Context{Underlying: 100, Strike: 100, TimeYears: 1, Rate: 0.05, Volatility: 0.25}
	withYield := base
	withYield.DividendYield = 0.03

	m := EquityModel{}
	assert.Less(t, m.Price(withYield, models.Call), m.Price(base, models.Call))
	assert.Greater(t, m.Price(withYield, models.Put), m.Price(base, models.Put))
}

func TestNegativeYieldIsFloored(t *testing.T) {
	base := Context{Underlying: 100, Strike: 100, TimeYears: 1, Rate: 0.05, Volatility: 0.25}
	negative := base
	negative.DividendYield = -0.5

	m := EquityModel{}
	assert.Equal(t, m.Price(base, models.Call), m.Price(negative, models.Call))
}

func TestExpiryCollapse(t *testing.T) {
	for _, m := range []PricingModel{EquityModel{}, ForwardModel{}} {
		itmCall := Context{Underlying: 110, Strike: 100, Rate: 0.05, Volatility: 0.3}
		otmCall := Context{Underlying: 90, Strike: 100, Rate: 0.05, Volatility: 0.3}

		assert.Equal(t, 10.0, m.Price(itmCall, models.Call), m.Name())
		assert.Equal(t, 0.0, m.Price(otmCall, models.Call), m.Name())
		assert.Equal(t, 10.0, m.Price(otmCall, models.Put), m.Name())

		assert.Equal(t, models.OptionGreeks{Delta: 1}, m.Greeks(itmCall, models.Call), m.Name())
		assert.Equal(t, models.OptionGreeks{}, m.Greeks(otmCall, models.Call), m.Name())
		assert.Equal(t, models.OptionGreeks{Delta: -1}, m.Greeks(otmCall, models.Put), m.Name())
		assert.Equal(t, models.OptionGreeks{}, m.Greeks(itmCall, models.Put), m.Name())

		negative := itmCall
		negative.TimeYears = -0.1
		assert.Equal(t, 10.0, m.Price(negative, models.Call), m.Name())
	}
}

func TestEquityGreeksSigns(t *testing.T) {
	ctx := Context{Underlying: 100, Strike: 100, TimeYears: 0.25, Rate: 0.04, Volatility: 0.3, DividendYield: 0.01}
	m := EquityModel{}

	call := m.Greeks(ctx, models.Call)
	put := m.Greeks(ctx, models.Put)

	assert.Greater(t, call.Delta, 0.0)
	assert.Less(t, put.Delta, 0.0)
	assert.InDelta(t, math.Exp(-0.01*0.25), call.Delta-put.Delta, 1e-12)
	assert.Equal(t, call.Gamma, put.Gamma)
	assert.Equal(t, call.Vega, put.Vega)
	assert.Less(t, call.Theta, 0.0)
	assert.Greater(t, call.Rho, 0.0)
	assert.Less(t, put.Rho, 0.0)
}

func TestEquityVegaMatchesFiniteDifference(t *testing.T) {
	ctx := Context{Underlying: 105, Strike: 100, TimeYears: 0.4, Rate: 0.03, Volatility: 0.22, DividendYield: 0.015}
	m := EquityModel{}

	bumped := ctx
	bumped.Volatility += 0.0001
	numeric := (m.Price(bumped, models.Call) - m.Price(ctx, models.Call)) / 0.0001 / 100

	assert.InDelta(t, numeric, m.Greeks(ctx, models.Call).Vega, 1e-4)
}

func TestEquityThetaMatchesFiniteDifference(t *testing.T) {
	ctx := Context{Underlying: 95, Strike: 100, TimeYears: 0.5, Rate: 0.05, Volatility: 0.3, DividendYield: 0.02}
	m := EquityModel{}

	for _, typ := range []models.OptionType{models.Call, models.Put} {
		dayLater := ctx
		dayLater.TimeYears -= 1 / DaysPerYear
		numeric := m.Price(dayLater, typ) - m.Price(ctx, typ)

		assert.InDelta(t, numeric, m.Greeks(ctx, typ).Theta, 1e-3, string(typ))
	}
}

func TestForwardGreeks(t *testing.T) {
	ctx := Context{Underlying: 4500, Strike: 4500, TimeYears: 0.25, Rate: 0.05, Volatility: 0.18}
	m := ForwardModel{}

	call := m.Greeks(ctx, models.Call)
	put := m.Greeks(ctx, models.Put)
	disc := math.Exp(-0.05 * 0.25)

	assert.InDelta(t, disc, call.Delta-put.Delta, 1e-12)
	assert.Equal(t, call.Gamma, put.Gamma)
	assert.Equal(t, call.Vega, put.Vega)
	assert.InDelta(t, -0.25*m.Price(ctx, models.Call)/100, call.Rho, 1e-12)
}

func TestForwardIgnoresDividendYield(t *testing.T) {
	ctx := Context{Underlying: 80, Strike: 75, TimeYears: 0.3, Rate: 0.04, Volatility: 0.35}
	withYield := ctx
	withYield.DividendYield = 0.05

	m := ForwardModel{}
	assert.Equal(t, m.Price(ctx, models.Call), m.Price(withYield, models.Call))
}

func TestNonFiniteInputsAreGuarded(t *testing.T) {
	ctx := Context{Underlying: math.NaN(), Strike: 100, TimeYears: math.Inf(1), Rate: math.NaN(), Volatility: math.NaN()}

	for _, m := range []PricingModel{EquityModel{}, ForwardModel{}} {
		p := m.Price(ctx, models.Put)
		assert.False(t, math.IsNaN(p), m.Name())
		assert.GreaterOrEqual(t, p, 0.0, m.Name())

		g := m.Greeks(ctx, models.Call)
		assert.False(t, math.IsNaN(g.Delta), m.Name())
	}
}

func TestForConvention(t *testing.T) {
	assert.IsType(t, EquityModel{}, ForConvention(models.ConventionEquity))
	assert.IsType(t, ForwardModel{}, ForConvention(models.ConventionFutures))
	assert.IsType(t, EquityModel{}, ForConvention(""))
}

func TestYearsFromDays(t *testing.T) {
	assert.Equal(t, 1.0, YearsFromDays(365))
	assert.Equal(t, 0.0, YearsFromDays(-4))
	assert.Equal(t, 0.0, YearsFromDays(math.NaN()))
}
