// Package units provides shared constants and conversions for angles and
// frame timings exchanged with the renderer.
package units

import "math"

// Angle unit constants
const (
	Degrees = "deg"
	Radians = "rad"
)

// ValidAngleUnits contains all valid angle unit values
var ValidAngleUnits = []string{Degrees, Radians}

// IsValidAngleUnit checks if the given unit is in the list of valid angle units
func IsValidAngleUnit(unit string) bool {
	for _, valid := range ValidAngleUnits {
		if unit == valid {
			return true
		}
	}
	return false
}

// GetValidAngleUnitsString returns a comma-separated string of valid units for error messages
func GetValidAngleUnitsString() string {
	return "deg, rad"
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// ConvertAngle converts an angle stored in degrees to the target units.
// Unknown units fall back to degrees.
func ConvertAngle(deg float64, targetUnits string) float64 {
	switch targetUnits {
	case Radians:
		return DegToRad(deg)
	default:
		return deg
	}
}

// FrameTimeToFPS converts a frame duration in milliseconds to frames per
// second. Non-positive durations yield 0.
func FrameTimeToFPS(ms float64) float64 {
	if ms <= 0 {
		return 0
	}
	return 1000.0 / ms
}

// FPSToFrameTime converts frames per second to a frame duration in
// milliseconds. Non-positive rates yield 0.
func FPSToFrameTime(fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return 1000.0 / fps
}
