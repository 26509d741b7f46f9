package cli

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"optionlab/internal/errors"
	"optionlab/internal/models"
	"optionlab/internal/strategy"
)

// FormatPrice formats an option or underlying price.
func FormatPrice(price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f", price)
}

// FormatExpiry formats an expiration with its distance from today, e.g. "2025-03-21 (45d)".
func FormatExpiry(expiration, today time.Time) string {
	if expiration.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s (%dd)", expiration.Format(models.DateLayout), models.DaysBetween(today, expiration))
}

// FormatLeg formats a leg as "BUY 2x CALL 100.00 2025-03-21".
func FormatLeg(leg models.OptionLeg) string {
	qty := leg.Quantity
	if qty < 0 {
		qty = -qty
	}
	expiry := "-"
	if !leg.Expiration.IsZero() {
		expiry = leg.Expiration.Format(models.DateLayout)
	}
	return fmt.Sprintf("%s %dx %s %s %s", leg.Action, qty, leg.Type, FormatPrice(leg.Strike), expiry)
}

// FormatBreakevens joins breakeven prices, or returns "none".
func FormatBreakevens(prices []float64) string {
	if len(prices) == 0 {
		return "none"
	}
	parts := make([]string, len(prices))
	for i, p := range prices {
		parts[i] = FormatPrice(p)
	}
	return strings.Join(parts, ", ")
}

// FormatRiskReward renders a risk/reward figure without special glyphs.
func FormatRiskReward(rr strategy.RiskReward) string {
	switch rr.Kind {
	case strategy.RiskRewardRatio:
		return fmt.Sprintf("1:%.2f", rr.Value)
	case strategy.RiskRewardUnbounded:
		return "unbounded"
	default:
		return "n/a"
	}
}

// FormatGreeks formats a Greeks set on one line.
func FormatGreeks(g models.OptionGreeks) string {
	return fmt.Sprintf("delta %.4f  gamma %.4f  theta %.4f  vega %.4f  rho %.4f", g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho)
}

// ParseDates parses a comma separated list of YYYY-MM-DD dates, sorted and de-duplicated.
func ParseDates(s string) ([]time.Time, error) {
	seen := make(map[string]bool)
	var dates []time.Time
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := time.Parse(models.DateLayout, part)
		if err != nil {
			return nil, errors.NewValidationError("dates", part, "expected YYYY-MM-DD")
		}
		if seen[part] {
			continue
		}
		seen[part] = true
		dates = append(dates, t)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}
