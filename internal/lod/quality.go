package lod

import (
	"fmt"
	"math"

	"github.com/openworld-xr/interface/internal/units"
)

// World detail quality maps linearly onto a target frame rate between
// minQualityFPS and the highest rate the display is likely to reach.
const (
	DefaultWorldDetailQuality = 0.2

	minQualityFPS       = 20.0
	maxLikelyDesktopFPS = 60.0
	maxLikelyHMDFPS     = 90.0
)

func maxLikelyFPS(hmd bool) float64 {
	if hmd {
		return maxLikelyHMDFPS
	}
	return maxLikelyDesktopFPS
}

// QualityToFPS converts a quality in [0, 1] to a target frame rate.
func QualityToFPS(quality float64, hmd bool) float64 {
	q := clamp(quality, 0, 1)
	return minQualityFPS + q*(maxLikelyFPS(hmd)-minQualityFPS)
}

// FPSToQuality is the inverse of QualityToFPS, clamped to [0, 1].
func FPSToQuality(fps float64, hmd bool) float64 {
	return clamp((fps-minQualityFPS)/(maxLikelyFPS(hmd)-minQualityFPS), 0, 1)
}

// VisibilityDistanceFor returns the distance in meters at which a 1 m object
// subtends the given half-angle.
func VisibilityDistanceFor(halfAngle float64) float64 {
	t := math.Tan(halfAngle)
	if t <= 0 {
		return math.Inf(1)
	}
	return unitElementMaxExtent / t
}

// HalfAngleForDistance is the inverse of VisibilityDistanceFor.
func HalfAngleForDistance(distance float64) float64 {
	if distance <= 0 {
		return maxHalfAngle
	}
	return math.Atan(unitElementMaxExtent / distance)
}

var maxHalfAngle = units.DegToRad(MaxLODAngleDeg / 2)

// FeedbackText describes the reach of the given half-angle for a UI label.
func FeedbackText(halfAngle float64) string {
	d := VisibilityDistanceFor(halfAngle)
	switch {
	case math.IsInf(d, 1):
		return "You can see all objects regardless of distance."
	case d >= 1000:
		return fmt.Sprintf("You can see objects of 1 meter up to %.2f kilometers away.", d/1000)
	default:
		return fmt.Sprintf("You can see objects of 1 meter up to %.2f meters away.", d)
	}
}
