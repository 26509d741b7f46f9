// Package contracts resolves contract multipliers for equity and futures options.
package contracts

import (
	"regexp"
	"strings"

	"optionlab/internal/models"
)

// EquityMultiplier is the share count represented by one equity option contract.
const EquityMultiplier = 100.0

// pointValues maps futures roots to their dollar value per point.
var pointValues = map[string]float64{
	// equity indices
	"ES":  50,
	"NQ":  20,
	"YM":  5,
	"RTY": 50,
	"MES": 5,
	"MNQ": 2,
	"MYM": 0.5,
	"M2K": 5,

	// metals
	"GC":  100,
	"SI":  5000,
	"HG":  25000,
	"PL":  50,
	"PA":  100,
	"MGC": 10,
	"SIL": 1000,

	// energy
	"CL":  1000,
	"NG":  10000,
	"RB":  42000,
	"HO":  42000,
	"MCL": 100,

	// grains
	"ZC": 50,
	"ZS": 50,
	"ZW": 50,
	"ZO": 50,
	"ZR": 100,
	"ZL": 100,
	"ZM": 100,

	// livestock
	"LE": 400,
	"GF": 500,
	"LH": 400,

	// currencies
	"6E": 125000,
	"6B": 62500,
	"6A": 100000,
	"6C": 100000,
	"6J": 125000,
	"6S": 125000,

	// crypto
	"BTC": 5,
	"ETH": 50,
	"MBT": 0.1,
	"MET": 0.5,
}

// contract month code followed by a one- or two-digit year, optionally after an exchange prefix
var contractSuffix = regexp.MustCompile(`[FGHJKMNQUVXZ]\d{1,2}!?$`)

// Root strips exchange prefixes, continuous-contract markers and month/year codes
// from a futures ticker: "CME_MINI:ESZ24" -> "ES", "/GC" -> "GC", "NQ1!" -> "NQ".
func Root(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if i := strings.LastIndex(t, ":"); i >= 0 {
		t = t[i+1:]
	}
	t = strings.TrimPrefix(t, "/")
	if strings.HasSuffix(t, "1!") || strings.HasSuffix(t, "2!") {
		t = t[:len(t)-2]
	}
	if _, ok := pointValues[t]; ok {
		return t
	}
	if loc := contractSuffix.FindStringIndex(t); loc != nil && loc[0] > 0 {
		if root := t[:loc[0]]; root != "" {
			return root
		}
	}
	return t
}

// PointValue returns the dollar value of one point for a futures ticker and whether it is known.
func PointValue(ticker string) (float64, bool) {
	v, ok := pointValues[Root(ticker)]
	return v, ok
}

// Multiplier resolves the contract multiplier for a ticker under a pricing convention.
// Equity options use 100; futures options use the point value, or 1 when the root is unknown.
func Multiplier(convention models.Convention, ticker string) float64 {
	if convention != models.ConventionFutures {
		return EquityMultiplier
	}
	if v, ok := PointValue(ticker); ok {
		return v
	}
	return 1
}
