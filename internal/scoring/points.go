// Package scoring turns a verdict into a point award and an activity status.
// Everything here is pure arithmetic.
package scoring

import (
	"math"

	"github.com/shopspring/decimal"
)

// NoVerdictConfidence is the confidence callers pass when the classifier
// produced no verdict (no image, or classifier failure).
const NoVerdictConfidence = 0.3

// EffectiveBase resolves the base points. Declared points win; otherwise
// the base is derived from confidence when a real verdict exists, or a
// flat 10 when it does not.
func EffectiveBase(declared int, confidence float64, hasVerdict bool) int {
	if declared > 0 {
		return declared
	}
	if hasVerdict {
		return int(math.Round(20 + confidence*30))
	}
	return 10
}

// Multiplier returns the award multiplier for a matching verdict. The
// middle band is capped at 1.0 so the award never drops when confidence
// crosses 0.8.
func Multiplier(confidence float64) float64 {
	switch {
	case confidence >= 0.8:
		return 1.0 + (confidence-0.8)*1.0
	case confidence >= 0.5:
		return math.Min(1.0, 0.8+(confidence-0.5)*0.667)
	default:
		return 0.5 + (confidence/0.5)*0.3
	}
}

// ComputePoints returns the final award. A non-matching verdict earns a
// small fraction of the base and no geo bonus; the result is never negative.
func ComputePoints(basePoints int, confidence float64, matches bool, geoBonus int, hasVerdict bool) int {
	if basePoints < 0 {
		basePoints = 0
	}
	base := EffectiveBase(basePoints, confidence, hasVerdict)

	var points int
	if !matches {
		points = int(math.Floor(float64(base) * math.Max(0.05, confidence*0.2)))
	} else {
		points = int(math.Floor(float64(base)*Multiplier(confidence))) + geoBonus
	}
	if points < 0 {
		return 0
	}
	return points
}

// co2PerPoint is the kg of CO₂ credited per point when none was declared.
var co2PerPoint = decimal.NewFromFloat(0.12)

// CO2Saved returns declared if positive, else points*0.12 rounded to two
// decimals.
func CO2Saved(declared float64, points int) float64 {
	if declared > 0 {
		return declared
	}
	v, _ := decimal.NewFromInt(int64(points)).Mul(co2PerPoint).Round(2).Float64()
	return v
}

// Round2 rounds a display total (e.g. summed CO₂) to two decimals.
func Round2(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}
