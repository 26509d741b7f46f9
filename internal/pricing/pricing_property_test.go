package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"optionlab/internal/models"
)

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	return gopter.NewProperties(parameters)
}

var allModels = []PricingModel{EquityModel{}, ForwardModel{}}

// Property: at zero time to expiry both models return the intrinsic value exactly,
// independent of volatility and rate.
func TestProperty_ExpiryPriceEqualsIntrinsic(t *testing.T) {
	properties := newProperties()

	properties.Property("T=0 price equals intrinsic", prop.ForAll(
		func(s, k, r, vol, q float64) bool {
			ctx := Context{Underlying: s, Strike: k, Rate: r, Volatility: vol, DividendYield: q}
			for _, m := range allModels {
				for _, typ := range []models.OptionType{models.Call, models.Put} {
					if m.Price(ctx, typ) != models.Intrinsic(typ, k, s) {
						t.Logf("%s %s S=%v K=%v", m.Name(), typ, s, k)
						return false
					}
				}
			}
			return true
		},
		gen.Float64Range(1, 1000),
		gen.Float64Range(1, 1000),
		gen.Float64Range(-0.02, 0.15),
		gen.Float64Range(0, 3),
		gen.Float64Range(0, 0.1),
	))

	properties.TestingRun(t)
}

// Property: with no carry the time value of a European option is never negative.
// With carry a deep ITM European option can trade below intrinsic; the leg-level floor is
// covered by TestProperty_TheoreticalPriceNotBelowIntrinsic in internal/strategy.
func TestProperty_PriceNotBelowIntrinsicWithoutCarry(t *testing.T) {
	properties := newProperties()

	properties.Property("price >= intrinsic when r=q=0", prop.ForAll(
		func(s, k, years, vol float64) bool {
			ctx := Context{Underlying: s, Strike: k, TimeYears: years, Volatility: vol}
			for _, m := range allModels {
				for _, typ := range []models.OptionType{models.Call, models.Put} {
					if m.Price(ctx, typ) < models.Intrinsic(typ, k, s)-1e-9 {
						return false
					}
				}
			}
			return true
		},
		gen.Float64Range(1, 500),
		gen.Float64Range(1, 500),
		gen.Float64Range(0.001, 3),
		gen.Float64Range(0.01, 2),
	))

	properties.TestingRun(t)
}

// Property: put-call parity holds for both models.
func TestProperty_PutCallParity(t *testing.T) {
	properties := newProperties()

	properties.Property("C - P = S e^-qT - K e^-rT (equity)", prop.ForAll(
		func(s, k, years, r, vol, q float64) bool {
			ctx := Context{Underlying: s, Strike: k, TimeYears: years, Rate: r, Volatility: vol, DividendYield: q}
			m := EquityModel{}
			lhs := m.Price(ctx, models.Call) - m.Price(ctx, models.Put)
			rhs := s*math.Exp(-q*years) - k*math.Exp(-r*years)
			return math.Abs(lhs-rhs) < 1e-8*math.Max(s, k)
		},
		gen.Float64Range(10, 500),
		gen.Float64Range(10, 500),
		gen.Float64Range(0.01, 2),
		gen.Float64Range(0, 0.1),
		gen.Float64Range(0.05, 1),
		gen.Float64Range(0, 0.05),
	))

	properties.Property("C - P = (F - K) e^-rT (forward)", prop.ForAll(
		func(f, k, years, r, vol float64) bool {
			ctx := Context{Underlying: f, Strike: k, TimeYears: years, Rate: r, Volatility: vol}
			m := ForwardModel{}
			lhs := m.Price(ctx, models.Call) - m.Price(ctx, models.Put)
			rhs := (f - k) * math.Exp(-r*years)
			return math.Abs(lhs-rhs) < 1e-8*math.Max(f, k)
		},
		gen.Float64Range(10, 500),
		gen.Float64Range(10, 500),
		gen.Float64Range(0.01, 2),
		gen.Float64Range(0, 0.1),
		gen.Float64Range(0.05, 1),
	))

	properties.TestingRun(t)
}

// Property: identical inputs produce bit-identical outputs.
func TestProperty_PricingIsDeterministic(t *testing.T) {
	properties := newProperties()

	properties.Property("repeat calls are identical", prop.ForAll(
		func(s, k, years, vol float64) bool {
			ctx := Context{Underlying: s, Strike: k, TimeYears: years, Rate: 0.045, Volatility: vol, DividendYield: 0.01}
			for _, m := range allModels {
				if m.Price(ctx, models.Call) != m.Price(ctx, models.Call) {
					return false
				}
				if m.Greeks(ctx, models.Put) != m.Greeks(ctx, models.Put) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(1, 500),
		gen.Float64Range(1, 500),
		gen.Float64Range(0, 2),
		gen.Float64Range(0, 2),
	))

	properties.TestingRun(t)
}

// Property: call delta lies in [0, 1] and put delta in [-1, 0].
func TestProperty_DeltaBounds(t *testing.T) {
	properties := newProperties()

	properties.Property("delta bounds", prop.ForAll(
		func(s, k, years, vol float64) bool {
			ctx := Context{Underlying: s, Strike: k, TimeYears: years, Rate: 0.05, Volatility: vol}
			for _, m := range allModels {
				c := m.Greeks(ctx, models.Call).Delta
				p := m.Greeks(ctx, models.Put).Delta
				if c < 0 || c > 1 || p < -1 || p > 0 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(1, 500),
		gen.Float64Range(1, 500),
		gen.Float64Range(0, 2),
		gen.Float64Range(0, 2),
	))

	properties.TestingRun(t)
}
