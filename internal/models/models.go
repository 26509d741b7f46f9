// Package models provides domain models for the option pricing engine.
package models

import (
	"strings"
	"time"
)

// OptionType represents the kind of an option contract.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// ParseOptionType parses "call"/"put" (any case, also "C"/"P", "CE"/"PE").
func ParseOptionType(s string) (OptionType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C", "CE":
		return Call, true
	case "PUT", "P", "PE":
		return Put, true
	default:
		return "", false
	}
}

// Action represents the direction of an option leg.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// ParseAction parses "buy"/"sell" in any case.
func ParseAction(s string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B", "LONG":
		return Buy, true
	case "SELL", "S", "SHORT":
		return Sell, true
	default:
		return "", false
	}
}

// Sign returns +1 for BUY and -1 for SELL.
func (a Action) Sign() float64 {
	if a == Sell {
		return -1
	}
	return 1
}

// PositionDirection represents the side of an underlying position.
type PositionDirection string

const (
	Long  PositionDirection = "LONG"
	Short PositionDirection = "SHORT"
	Cash  PositionDirection = "CASH"
)

// Convention selects the pricing convention of an evaluation.
type Convention string

const (
	ConventionEquity  Convention = "equity"
	ConventionFutures Convention = "futures"
)

// Date layout used across the engine for expirations.
const DateLayout = "2006-01-02"

// DaysBetween returns whole calendar days from `from` to `to`, ignoring time of day.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
