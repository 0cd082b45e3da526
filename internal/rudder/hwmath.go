package rudder

import "math"

// Raw hardware ranges.
const (
	RudderRawMin     = 0
	RudderRawMax     = 1023
	MotorRawMax      = 255
	IntervalMsMax    = 9999
	motorOnThreshold = 0.5
)

// RudderRawToNorm maps a potentiometer reading (0..1023) onto [-1, 1].
func RudderRawToNorm(v int) float64 {
	return clampUnit(float64(v)/512 - 1)
}

// RudderNormToRaw maps a normalized rudder value back onto 0..1023.
func RudderNormToRaw(v float64) int {
	return int(math.Round(511.5 * (clampUnit(v) + 1)))
}

// MotorMagnitudeToRaw converts a normalized motor demand into the raw magnitude.
// The pump is single-speed: anything at or above half demand is full-on.
func MotorMagnitudeToRaw(v float64) int {
	if math.Abs(v) >= motorOnThreshold {
		return MotorRawMax
	}
	return 0
}

// MotorRawToNorm converts a raw magnitude and direction into [-1, 1].
func MotorRawToNorm(magnitude int, dir Direction) float64 {
	if magnitude <= 0 {
		return 0
	}
	return dir.Sign() * clampUnit(float64(magnitude)/MotorRawMax)
}

// DirectionFromNorm picks the raw direction code for a normalized motor demand.
// The result is always one of DirectionStop, DirectionPort, DirectionStarboard.
func DirectionFromNorm(v float64) Direction {
	switch {
	case MotorMagnitudeToRaw(v) == 0:
		return DirectionStop
	case v < 0:
		return DirectionPort
	default:
		return DirectionStarboard
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
