package pricing

import "math"

// Safe returns v, or fallback when v is NaN or infinite.
func Safe(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// SafeNonNegative returns v clamped at zero, or zero when v is not finite.
func SafeNonNegative(v float64) float64 {
	return math.Max(0, Safe(v, 0))
}
