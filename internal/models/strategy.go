package models

import "time"

// Strategy is a saved multi-leg position.
type Strategy struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Ticker       string               `json:"ticker"`
	Convention   Convention           `json:"convention"`
	CurrentPrice float64              `json:"currentPrice"`
	Legs         []OptionLeg          `json:"legs"`
	Positions    []UnderlyingPosition `json:"positions,omitempty"`
	Status       StrategyStatus       `json:"status"`
	Notes        string               `json:"notes,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// StrategyStatus represents the lifecycle of a saved strategy.
type StrategyStatus string

const (
	StrategyDraft  StrategyStatus = "DRAFT"
	StrategyOpen   StrategyStatus = "OPEN"
	StrategyClosed StrategyStatus = "CLOSED"
)

// VisibleLegs returns the legs included in evaluation.
func (s Strategy) VisibleLegs() []OptionLeg {
	out := make([]OptionLeg, 0, len(s.Legs))
	for _, l := range s.Legs {
		if l.Visible {
			out = append(out, l)
		}
	}
	return out
}

// SearchRun records the outcome of one selection search.
type SearchRun struct {
	ID             string    `json:"id"`
	Ticker         string    `json:"ticker"`
	Variant        string    `json:"variant"`
	TargetPrice    float64   `json:"targetPrice"`
	Code           string    `json:"code,omitempty"` // failure code, empty on success
	BestStrike     float64   `json:"bestStrike,omitempty"`
	BestExpiration time.Time `json:"bestExpiration,omitempty"`
	BestPnL        float64   `json:"bestPnl,omitempty"`
	Candidates     int       `json:"candidates"`
	Partial        bool      `json:"partial"`
	CreatedAt      time.Time `json:"createdAt"`
}
