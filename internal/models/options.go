package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// OptionGreeks represents option Greeks.
type OptionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Add returns the element-wise sum of g and o scaled by factor.
func (g OptionGreeks) Add(o OptionGreeks, factor float64) OptionGreeks {
	return OptionGreeks{
		Delta: g.Delta + o.Delta*factor,
		Gamma: g.Gamma + o.Gamma*factor,
		Theta: g.Theta + o.Theta*factor,
		Vega:  g.Vega + o.Vega*factor,
		Rho:   g.Rho + o.Rho*factor,
	}
}

// OptionLeg represents a leg of an option strategy.
type OptionLeg struct {
	ID                 string     `json:"id,omitempty"`
	Type               OptionType `json:"type"`
	Action             Action     `json:"action"`
	Strike             float64    `json:"strike"`
	Expiration         time.Time  `json:"expiration"`
	Quantity           int        `json:"quantity"`
	EntryPriceOverride *float64   `json:"entryPriceOverride,omitempty"`
	Bid                float64    `json:"bid,omitempty"`
	Ask                float64    `json:"ask,omitempty"`
	LastPrice          float64    `json:"lastPrice,omitempty"`
	Premium            float64    `json:"premium,omitempty"`
	ImpliedVolatility  float64    `json:"impliedVolatility,omitempty"`
	IVOverride         float64    `json:"ivOverride,omitempty"`
	EntryDate          *time.Time `json:"entryDate,omitempty"`
	Visible            bool       `json:"visible"`
}

// EntryPrice resolves the effective entry price of the leg: the manual override if set,
// else ask for BUY or bid for SELL, else premium, else the last traded price.
// The result is never negative.
func (l OptionLeg) EntryPrice() float64 {
	if l.EntryPriceOverride != nil {
		return nonNegative(*l.EntryPriceOverride)
	}
	if l.Action == Sell {
		if l.Bid > 0 {
			return l.Bid
		}
	} else if l.Ask > 0 {
		return l.Ask
	}
	if l.Premium > 0 {
		return l.Premium
	}
	return nonNegative(l.LastPrice)
}

// Intrinsic returns the exercise value of the leg's contract at price.
func (l OptionLeg) Intrinsic(price float64) float64 {
	return Intrinsic(l.Type, l.Strike, price)
}

// Intrinsic returns max(0, price-strike) for calls and max(0, strike-price) for puts.
func Intrinsic(t OptionType, strike, price float64) float64 {
	if t == Put {
		return math.Max(0, strike-price)
	}
	return math.Max(0, price-strike)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// UnderlyingPosition represents a holding in the underlying (or committed cash).
type UnderlyingPosition struct {
	Direction  PositionDirection `json:"direction"`
	Quantity   float64           `json:"quantity"`
	EntryPrice float64           `json:"entryPrice"`
	Amount     float64           `json:"amount,omitempty"` // CASH only
	Visible    bool              `json:"visible"`
}

// PL returns the linear payoff of the position at price. Cash positions carry no P/L.
func (p UnderlyingPosition) PL(price float64) float64 {
	switch p.Direction {
	case Long:
		return (price - p.EntryPrice) * p.Quantity
	case Short:
		return (p.EntryPrice - price) * p.Quantity
	default:
		return 0
	}
}

// Contract is a candidate option record as delivered by a market-data source.
type Contract struct {
	Strike            float64    `json:"strike"`
	Type              OptionType `json:"type"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	LastPrice         float64    `json:"lastPrice,omitempty"`
	Volume            int64      `json:"volume,omitempty"`
	OpenInterest      int64      `json:"openInterest,omitempty"`
	ImpliedVolatility float64    `json:"impliedVolatility,omitempty"`
	Delta             float64    `json:"delta,omitempty"`
	Gamma             float64    `json:"gamma,omitempty"`
	Theta             float64    `json:"theta,omitempty"`
	Vega              float64    `json:"vega,omitempty"`
	Expiration        time.Time  `json:"expirationDate"`
}

// UnmarshalJSON accepts case-insensitive option types, plain YYYY-MM-DD dates and the
// snake_case field names some chain services emit.
func (c *Contract) UnmarshalJSON(data []byte) error {
	type alias Contract
	var raw struct {
		alias
		Type          string  `json:"type"`
		Expiration    string  `json:"expirationDate"`
		ExpirationAlt string  `json:"expiration_date"`
		OpenInterest  int64   `json:"open_interest"`
		LastPrice     float64 `json:"last_price"`
		Last          float64 `json:"last"`
		IV            float64 `json:"implied_volatility"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Contract(raw.alias)
	if c.OpenInterest == 0 {
		c.OpenInterest = raw.OpenInterest
	}
	if c.LastPrice == 0 {
		c.LastPrice = raw.LastPrice
	}
	if c.LastPrice == 0 {
		c.LastPrice = raw.Last
	}
	if c.ImpliedVolatility == 0 {
		c.ImpliedVolatility = raw.IV
	}
	if raw.Expiration == "" {
		raw.Expiration = raw.ExpirationAlt
	}
	if t, ok := ParseOptionType(raw.Type); ok {
		c.Type = t
	} else {
		c.Type = OptionType(raw.Type)
	}
	if raw.Expiration != "" {
		exp, err := parseDate(raw.Expiration)
		if err != nil {
			return err
		}
		c.Expiration = exp
	}
	return nil
}

// HasPrice reports whether any of ask, bid or last is positive.
func (c Contract) HasPrice() bool {
	return c.Ask > 0 || c.Bid > 0 || c.LastPrice > 0
}

// Leg converts the contract into an option leg with the given direction and size.
func (c Contract) Leg(action Action, quantity int) OptionLeg {
	return OptionLeg{
		Type:              c.Type,
		Action:            action,
		Strike:            c.Strike,
		Expiration:        c.Expiration,
		Quantity:          quantity,
		Bid:               c.Bid,
		Ask:               c.Ask,
		LastPrice:         c.LastPrice,
		ImpliedVolatility: c.ImpliedVolatility,
		Visible:           true,
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// UnmarshalJSON accepts plain YYYY-MM-DD dates for expiration and entry date.
func (l *OptionLeg) UnmarshalJSON(data []byte) error {
	type alias OptionLeg
	raw := struct {
		alias
		Type       string `json:"type"`
		Action     string `json:"action"`
		Expiration string `json:"expiration"`
		EntryDate  string `json:"entryDate,omitempty"`
		Visible    *bool  `json:"visible"`
	}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = OptionLeg(raw.alias)
	if t, ok := ParseOptionType(raw.Type); ok {
		l.Type = t
	}
	if a, ok := ParseAction(raw.Action); ok {
		l.Action = a
	}
	if raw.Expiration != "" {
		exp, err := parseDate(raw.Expiration)
		if err != nil {
			return err
		}
		l.Expiration = exp
	}
	if raw.EntryDate != "" {
		d, err := parseDate(raw.EntryDate)
		if err != nil {
			return err
		}
		l.EntryDate = &d
	}
	// legs are visible unless explicitly hidden
	l.Visible = raw.Visible == nil || *raw.Visible
	return nil
}

// UnmarshalJSON treats a missing visible flag as visible.
func (p *UnderlyingPosition) UnmarshalJSON(data []byte) error {
	type alias UnderlyingPosition
	raw := struct {
		alias
		Direction string `json:"direction"`
		Visible   *bool  `json:"visible"`
	}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = UnderlyingPosition(raw.alias)
	p.Direction = PositionDirection(strings.ToUpper(raw.Direction))
	p.Visible = raw.Visible == nil || *raw.Visible
	return nil
}
