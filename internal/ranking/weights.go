package ranking

import (
	"math"
	"time"
)

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// SuccessWeight computes the success-rate component.
// The rate is expected to be in [0, 1].
func SuccessWeight(rate float64, w float64) float64 {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return rate * w
}

// FlagWeight returns w when the signal is present, otherwise 0.
func FlagWeight(present bool, w float64) float64 {
	if !present {
		return 0
	}
	return w
}

// ActiveWithin reports whether lastLogin falls within window of now.
// A missing login never counts as active.
func ActiveWithin(lastLogin *time.Time, now time.Time, window time.Duration) bool {
	if lastLogin == nil {
		return false
	}
	return now.Sub(*lastLogin) <= window
}

// CircleWeight computes the circle component. Direct membership wins over
// indirect when the caller has already classified the relation.
func CircleWeight(rel CircleRelation, weights *Weights) float64 {
	switch rel {
	case CircleDirect:
		return weights.DirectCircle
	case CircleIndirect:
		return weights.IndirectCircle
	}
	return 0
}

// CapScore clamps a total into [0, MaxScore].
func CapScore(total float64) float64 {
	if total < 0 {
		return 0
	}
	if total > MaxScore {
		return MaxScore
	}
	return total
}
