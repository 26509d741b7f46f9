package margin

import (
	"math"
	"sort"

	"optionlab/internal/models"
)

// Spread is a vertical pair: one bought and one sold leg of the same type and
// expiration at different strikes. Lower and Upper index the legs slice passed to
// FindSpreads. Credit is the sold leg's entry minus the bought leg's, negative for a debit.
type Spread struct {
	Type       models.OptionType `json:"type"`
	Expiration string            `json:"expiration"`
	Lower      int               `json:"lower"`
	Upper      int               `json:"upper"`
	Width      float64           `json:"width"`
	Credit     float64           `json:"credit"`
	Quantity   float64           `json:"quantity"`
	Margin     float64           `json:"margin"`
}

// IsCredit reports whether the sold leg is the one further in the money, so the spread
// collects premium and carries width risk.
func (s Spread) IsCredit(legs []models.OptionLeg) bool {
	if s.Type == models.Call {
		return legs[s.Lower].Action == models.Sell
	}
	return legs[s.Upper].Action == models.Sell
}

type spreadKey struct {
	typ        models.OptionType
	expiration string
}

// FindSpreads groups visible legs by type and expiration, sorts each group by strike
// and pairs adjacent legs with opposite actions. Each leg joins at most one spread.
func FindSpreads(legs []models.OptionLeg) []Spread {
	groups := make(map[spreadKey][]int)
	var keys []spreadKey
	for i, leg := range legs {
		if !leg.Visible || leg.Quantity == 0 || leg.Strike <= 0 {
			continue
		}
		k := spreadKey{typ: leg.Type, expiration: leg.Expiration.Format(models.DateLayout)}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}

	var spreads []Spread
	for _, k := range keys {
		idx := groups[k]
		sort.SliceStable(idx, func(a, b int) bool { return legs[idx[a]].Strike < legs[idx[b]].Strike })

		for i := 0; i+1 < len(idx); {
			lo, hi := legs[idx[i]], legs[idx[i+1]]
			if lo.Action == hi.Action || lo.Strike == hi.Strike {
				i++
				continue
			}
			s := Spread{
				Type:       k.typ,
				Expiration: k.expiration,
				Lower:      idx[i],
				Upper:      idx[i+1],
				Width:      hi.Strike - lo.Strike,
				Quantity:   math.Min(math.Abs(float64(lo.Quantity)), math.Abs(float64(hi.Quantity))),
			}
			if lo.Action == models.Sell {
				s.Credit = lo.EntryPrice() - hi.EntryPrice()
			} else {
				s.Credit = hi.EntryPrice() - lo.EntryPrice()
			}
			spreads = append(spreads, s)
			i += 2
		}
	}
	return spreads
}

// nettedMargin prices each pair at max(0, width - credit) per share, so a debit (negative
// credit) widens the requirement, and keeps the per-leg requirement of every short leg
// outside a spread plus any sold contracts in excess of the paired quantity.
func nettedMargin(legs []models.OptionLeg, spreads []Spread, perLeg map[int]float64, mult float64) float64 {
	paired := make(map[int]bool, 2*len(spreads))
	total := 0.0

	for i := range spreads {
		s := &spreads[i]
		paired[s.Lower] = true
		paired[s.Upper] = true

		s.Margin = math.Max(0, (s.Width-s.Credit)*s.Quantity*mult)
		total += s.Margin

		for _, j := range []int{s.Lower, s.Upper} {
			if legs[j].Action != models.Sell {
				continue
			}
			if qty := math.Abs(float64(legs[j].Quantity)); qty > s.Quantity {
				total += perLeg[j] * (qty - s.Quantity) / qty
			}
		}
	}

	for j, m := range perLeg {
		if !paired[j] {
			total += m
		}
	}
	return total
}
