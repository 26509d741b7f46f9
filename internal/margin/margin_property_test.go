package margin

import (
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

// Property: covering a short option with the underlying never raises its requirement.
func TestProperty_CoveredNotAboveNaked(t *testing.T) {
	properties := newProperties()

	properties.Property("covered <= naked", prop.ForAll(
		func(s, k, premium float64, put bool) bool {
			typ := models.Call
			if put {
				typ = models.Put
			}
			return CoveredMargin(typ, k, s, premium) <= NakedMargin(typ, k, s, premium)
		},
		gen.Float64Range(1, 1000),
		gen.Float64Range(1, 1000),
		gen.Float64Range(0.01, 100),
		gen.Bool(),
	))

	properties.Property("covered short call position <= naked position", prop.ForAll(
		func(s, k, premium float64, qty int) bool {
			legs := []models.OptionLeg{leg(models.Call, models.Sell, k, premium, qty)}
			naked := NewEngine(100).RequiredCapital(legs, nil, s)
			covered := NewEngine(100).RequiredCapital(legs, []models.UnderlyingPosition{shares(models.Long, float64(qty)*100)}, s)
			return covered.CoveredLegs == 1 && covered.Margin <= naked.Margin
		},
		gen.Float64Range(1, 500),
		gen.Float64Range(1, 500),
		gen.Float64Range(0.01, 50),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

// Property: pairing legs into spreads never increases the margin beyond the per-leg sum,
// and margin is never negative.
func TestProperty_SpreadNettingNeverIncreasesMargin(t *testing.T) {
	properties := newProperties()

	properties.Property("margin <= naked sum", prop.ForAll(
		func(s, k1, width, p1, p2 float64, q1, q2 int, put, firstSold bool) bool {
			typ := models.Call
			if put {
				typ = models.Put
			}
			a1, a2 := models.Buy, models.Sell
			if firstSold {
				a1, a2 = a2, a1
			}
			legs := []models.OptionLeg{
				leg(typ, a1, k1, p1, q1),
				leg(typ, a2, k1+width, p2, q2),
			}
			res := NewEngine(100).RequiredCapital(legs, nil, s)
			return res.Margin >= 0 && res.Margin <= res.NakedMargin+1e-9 && res.Total() >= res.Debit
		},
		gen.Float64Range(10, 500),
		gen.Float64Range(10, 500),
		gen.Float64Range(0.5, 50),
		gen.Float64Range(0.01, 40),
		gen.Float64Range(0.01, 40),
		gen.IntRange(1, 5),
		gen.IntRange(1, 5),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
