// Package utils provides shared helpers for formatting and retrying.
package utils

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// FormatMoney formats a dollar amount with thousands separators and two decimals.
func FormatMoney(amount float64) string {
	if math.IsInf(amount, 1) {
		return "Unlimited"
	}
	if math.IsInf(amount, -1) {
		return "-Unlimited"
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	cents := int64(math.Round(amount * 100))
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(cents/100), cents%100)
}

// FormatPnL formats a P/L figure with an explicit sign.
func FormatPnL(pnl float64) string {
	if pnl > 0 {
		return "+" + FormatMoney(pnl)
	}
	return FormatMoney(pnl)
}

// FormatPercent formats a percentage with an explicit sign.
func FormatPercent(value float64) string {
	if value > 0 {
		return fmt.Sprintf("+%.2f%%", value)
	}
	return fmt.Sprintf("%.2f%%", value)
}

// FormatQuantity formats a contract or share count.
func FormatQuantity(qty int64) string {
	return humanize.Comma(qty)
}

// FormatCompact formats large amounts with SI suffixes, e.g. $1.2M.
func FormatCompact(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	if amount < 1000 {
		return fmt.Sprintf("%s$%.2f", sign, amount)
	}
	value, prefix := humanize.ComputeSI(amount)
	return fmt.Sprintf("%s$%s%s", sign, humanize.FtoaWithDigits(value, 1), prefix)
}
