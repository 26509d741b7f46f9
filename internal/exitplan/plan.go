// Package exitplan builds staged liquidation schedules for an option position.
package exitplan

import (
	"github.com/shopspring/decimal"

	"optionlab/internal/models"
	"optionlab/internal/strategy"
)

// Mode selects how step prices are derived.
type Mode string

const (
	// ModeStandard ramps linearly from the entry price to the target price.
	ModeStandard Mode = "standard"
	// ModeTwoPoint enters at one scenario and exits at another, both with the full quantity.
	ModeTwoPoint Mode = "two-point"
)

// Request describes the position to scale out of.
type Request struct {
	TotalQuantity int
	Steps         int
	EntryPrice    float64
	TargetPrice   float64
	Multiplier    float64
	Mode          Mode
	// HedgeEntryPrice and HedgeExitPrice are the two scenario prices of ModeTwoPoint.
	HedgeEntryPrice float64
	HedgeExitPrice  float64
}

// Step is one row of a plan. Prices are rounded to cents and profits to whole cents.
type Step struct {
	Step              int             `json:"step"`
	Label             string          `json:"label,omitempty"`
	Quantity          int             `json:"quantity"`
	OptionPrice       decimal.Decimal `json:"optionPrice"`
	Profit            decimal.Decimal `json:"profit"`
	AccumulatedProfit decimal.Decimal `json:"accumulatedProfit"`
}

// SplitQuantity divides total into steps parts, giving the remainder to the earliest steps.
func SplitQuantity(total, steps int) []int {
	if total <= 0 || steps <= 0 {
		return nil
	}
	base, rem := total/steps, total%steps
	parts := make([]int, steps)
	for i := range parts {
		parts[i] = base
		if i < rem {
			parts[i]++
		}
	}
	return parts
}

// BuildPlan returns the exit schedule for req. Non-positive quantities or step counts
// produce an empty plan.
func BuildPlan(req Request) []Step {
	if req.TotalQuantity <= 0 {
		return []Step{}
	}
	if req.Mode == ModeTwoPoint {
		return twoPoint(req)
	}
	if req.Steps <= 0 {
		return []Step{}
	}

	mult := multiplier(req.Multiplier)
	entry := decimal.NewFromFloat(req.EntryPrice)
	stepMove := decimal.NewFromFloat(req.TargetPrice).Sub(entry).Div(decimal.NewFromInt(int64(req.Steps)))

	plan := make([]Step, 0, req.Steps)
	accumulated := decimal.Zero
	for i, qty := range SplitQuantity(req.TotalQuantity, req.Steps) {
		price := entry.Add(stepMove.Mul(decimal.NewFromInt(int64(i + 1))))
		profit := price.Sub(entry).Mul(decimal.NewFromInt(int64(qty))).Mul(mult).Round(2)
		accumulated = accumulated.Add(profit)
		plan = append(plan, Step{
			Step:              i + 1,
			Quantity:          qty,
			OptionPrice:       price.Round(2),
			Profit:            profit,
			AccumulatedProfit: accumulated,
		})
	}
	return plan
}

func twoPoint(req Request) []Step {
	mult := multiplier(req.Multiplier)
	a := decimal.NewFromFloat(req.HedgeEntryPrice)
	b := decimal.NewFromFloat(req.HedgeExitPrice)
	profit := b.Sub(a).Mul(decimal.NewFromInt(int64(req.TotalQuantity))).Mul(mult).Round(2)

	return []Step{
		{Step: 1, Label: "entry", Quantity: req.TotalQuantity, OptionPrice: a.Round(2), Profit: decimal.Zero, AccumulatedProfit: decimal.Zero},
		{Step: 2, Label: "exit", Quantity: req.TotalQuantity, OptionPrice: b.Round(2), Profit: profit, AccumulatedProfit: profit},
	}
}

func multiplier(m float64) decimal.Decimal {
	if m <= 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(m)
}

// Planner derives plan prices from a leg's theoretical value.
type Planner struct {
	Valuator strategy.Valuator
	Steps    int
}

// NewPlanner creates a planner that splits exits into steps.
func NewPlanner(v strategy.Valuator, steps int) Planner {
	return Planner{Valuator: v, Steps: steps}
}

// FromLeg plans an exit of leg between its entry price and its theoretical value at
// targetPrice after daysPassed days.
func (p Planner) FromLeg(leg models.OptionLeg, targetPrice float64, daysPassed int) []Step {
	days := float64(p.Valuator.DaysRemaining(leg, daysPassed))
	return BuildPlan(Request{
		TotalQuantity: absInt(leg.Quantity),
		Steps:         p.Steps,
		EntryPrice:    leg.EntryPrice(),
		TargetPrice:   p.Valuator.TheoreticalPrice(leg, targetPrice, days, 0),
		Multiplier:    p.Valuator.Multiplier,
		Mode:          ModeStandard,
	})
}

// FromScenarios plans a two-point exit of leg: valued at priceA after daysA days on
// entry and at priceB after daysB days on exit.
func (p Planner) FromScenarios(leg models.OptionLeg, priceA float64, daysA int, priceB float64, daysB int) []Step {
	return BuildPlan(Request{
		TotalQuantity:   absInt(leg.Quantity),
		Multiplier:      p.Valuator.Multiplier,
		Mode:            ModeTwoPoint,
		HedgeEntryPrice: p.Valuator.TheoreticalPrice(leg, priceA, float64(p.Valuator.DaysRemaining(leg, daysA)), 0),
		HedgeExitPrice:  p.Valuator.TheoreticalPrice(leg, priceB, float64(p.Valuator.DaysRemaining(leg, daysB)), 0),
	})
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
