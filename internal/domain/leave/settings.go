package leave

import "math"

// Normalize clamps negative and non-finite numbers to zero.
func (s Settings) Normalize() Settings {
	s.LeavesPerMonth = nonNegative(s.LeavesPerMonth)
	s.MaxCarryForward = nonNegative(s.MaxCarryForward)
	s.MaxLeavesPerMonth = nonNegative(s.MaxLeavesPerMonth)
	return s
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// manual reports whether the override replaces the automatic carry-forward.
func (o Override) manual() bool {
	return (o.CarriedForward != nil && *o.CarriedForward > 0) || o.AdjustmentReason != ""
}

func (o Override) carriedForward() float64 {
	if o.CarriedForward == nil {
		return 0
	}
	return nonNegative(*o.CarriedForward)
}

func (o Override) additionalCredit() float64 {
	if o.AdditionalCredit == nil {
		return 0
	}
	return nonNegative(*o.AdditionalCredit)
}
