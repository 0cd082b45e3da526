// Package anglemath provides wrap-safe compass arithmetic.
//
// Sign convention: Difference(reference, actual) is positive when actual lies
// clockwise (to starboard) of reference. Every caller in this module relies on it.
package anglemath

import "math"

// Normalize maps any angle onto [0, 360).
func Normalize(angle float64) float64 {
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}
	// -1e-15 + 360 rounds to 360
	if a >= 360 {
		a = 0
	}
	return a
}

// Difference returns the shortest signed rotation from reference to actual,
// in (-180, 180]. Antipodal angles resolve to +180.
func Difference(reference, actual float64) float64 {
	diff := Normalize(actual-reference+180) - 180
	if diff <= -180 {
		diff = 180
	}
	return diff
}

// IsOnCourse reports whether heading is within toleranceDeg of course.
func IsOnCourse(course, heading, toleranceDeg float64) bool {
	return math.Abs(Difference(course, heading)) <= toleranceDeg
}
