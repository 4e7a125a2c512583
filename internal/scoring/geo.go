package scoring

import "math"

// GeoBonus rewards attaching device coordinates, scaled by the reported
// accuracy in metres. Unknown or zero accuracy earns the lowest tier.
func GeoBonus(lat, lng, accuracy *float64) int {
	if lat == nil || lng == nil || !finite(*lat) || !finite(*lng) {
		return 0
	}
	if accuracy == nil || *accuracy <= 0 || !finite(*accuracy) {
		return 5
	}
	switch {
	case *accuracy <= 15:
		return 12
	case *accuracy <= 50:
		return 8
	default:
		return 5
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
