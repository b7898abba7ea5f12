// Package lod regulates the level-of-detail threshold angle from per-frame
// render timings so the client holds its target frame rate.
package lod

import (
	"math"

	"github.com/openworld-xr/interface/internal/units"
)

// Regulator limits. Times are milliseconds unless noted.
const (
	MinLODAngleDeg = 0.001
	MaxLODAngleDeg = 90.0

	MinRenderTime = 1.0
	MaxRenderTime = 1000.0

	// presentSlack bounds how far present time may exceed batch time before
	// it is treated as vsync wait and replaced by batch time plus the slack.
	presentSlack = 3.0

	// nowTimescale is the EMA time constant of the fast average, in seconds.
	nowTimescale = 0.08

	// targetFPSHeadroom is added to the configured target before regulating.
	targetFPSHeadroom = 5.0

	MinTargetFPS   = 0.5
	MinSmoothScale = 1.0

	maxRealTimeDelta = 1.0
	minRealTimeDelta = 1e-6
)

// unitElementMaxExtent is the half-diagonal of a 1 m cube.
var unitElementMaxExtent = math.Sqrt(3) / 2

// DefaultVisibilityDistance is the distance in meters at which a 1 m object
// stops being rendered with the default angle.
const DefaultVisibilityDistance = 400.0

// DefaultLODHalfAngle returns the half-angle, in radians, that makes a 1 m
// object visible up to DefaultVisibilityDistance.
func DefaultLODHalfAngle() float64 {
	return math.Atan(unitElementMaxExtent / DefaultVisibilityDistance)
}

// PIDCoefs holds the regulator gains. Kv scales the variance used by the
// noise gate.
type PIDCoefs struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
	Kv float64 `json:"kv"`
}

// DefaultPIDCoefs is a proportional-only regulator with a unit noise gate.
func DefaultPIDCoefs() PIDCoefs {
	return PIDCoefs{Kp: 1, Ki: 0, Kd: 0, Kv: 1}
}

// PIDHistory is the regulator memory carried between steps.
type PIDHistory struct {
	Error      float64 `json:"error"`
	Integral   float64 `json:"integral"`
	Derivative float64 `json:"derivative"`
}

// State is the complete regulator state. It is a value type: Step returns an
// updated copy and never mutates its input.
type State struct {
	LODHalfAngle       float64 // radians
	AutomaticLODAdjust bool

	PresentTime   float64
	EngineRunTime float64
	BatchTime     float64
	GPUTime       float64

	NowRenderTime    float64
	SmoothRenderTime float64

	PID     PIDCoefs
	History PIDHistory

	DesktopTargetFPS float64
	HMDTargetFPS     float64
	SmoothScale      float64
	HMDMode          bool
}

// DefaultState returns a zeroed regulator at the default angle and targets.
func DefaultState() State {
	return State{
		LODHalfAngle:       DefaultLODHalfAngle(),
		AutomaticLODAdjust: true,
		PID:                DefaultPIDCoefs(),
		DesktopTargetFPS:   QualityToFPS(DefaultWorldDetailQuality, false),
		HMDTargetFPS:       QualityToFPS(DefaultWorldDetailQuality, true),
		SmoothScale:        6,
	}
}

// LODAngleDeg returns the full LOD angle in degrees.
func (s State) LODAngleDeg() float64 {
	return 2 * units.RadToDeg(s.LODHalfAngle)
}

// TargetFPS returns the configured target for the current display mode.
func (s State) TargetFPS() float64 {
	if s.HMDMode {
		return s.HMDTargetFPS
	}
	return s.DesktopTargetFPS
}

// WithRenderTimes stores the per-stage timings, clamping negatives to zero.
func (s State) WithRenderTimes(present, engine, batch, gpu float64) State {
	s.PresentTime = math.Max(0, present)
	s.EngineRunTime = math.Max(0, engine)
	s.BatchTime = math.Max(0, batch)
	s.GPUTime = math.Max(0, gpu)
	return s
}

// StepResult records the intermediate values of one regulator step.
type StepResult struct {
	DT               float64 `json:"dt"`
	EffectivePresent float64 `json:"effective_present"`
	MaxRenderTime    float64 `json:"max_render_time"`
	NowFPS           float64 `json:"now_fps"`
	SmoothFPS        float64 `json:"smooth_fps"`
	TargetFPS        float64 `json:"target_fps"`
	Variance         float64 `json:"variance"`
	Error            float64 `json:"error"`
	NormalizedError  float64 `json:"normalized_error"`
	GateCoefficient  float64 `json:"gate_coefficient"`
	P                float64 `json:"p"`
	I                float64 `json:"i"`
	D                float64 `json:"d"`
	Output           float64 `json:"output"`
	OldAngleDeg      float64 `json:"old_angle_deg"`
	NewAngleDeg      float64 `json:"new_angle_deg"`
	Regulated        bool    `json:"regulated"`
	Changed          bool    `json:"changed"`
}

// EffectivePresentTime returns the present time used for regulation.
func EffectivePresentTime(present, batch float64) float64 {
	if present > batch+presentSlack {
		return batch + presentSlack
	}
	return present
}

// NoiseGate returns the fraction of the error allowed through given the
// squared error and the variance of the frame rate. Errors inside one
// variance are treated as noise; the gate opens linearly up to two.
func NoiseGate(errSq, variance float64) float64 {
	switch {
	case errSq < variance:
		return 0
	case errSq < 2*variance:
		return (errSq - variance) / variance
	default:
		return 1
	}
}

// Step advances the regulator by realTimeDelta seconds.
func Step(s State, realTimeDelta float64) (State, StepResult) {
	var r StepResult
	r.OldAngleDeg = s.LODAngleDeg()
	r.NewAngleDeg = r.OldAngleDeg

	r.EffectivePresent = EffectivePresentTime(s.PresentTime, s.BatchTime)
	r.MaxRenderTime = clamp(math.Max(r.EffectivePresent, math.Max(s.EngineRunTime, s.GPUTime)), MinRenderTime, MaxRenderTime)

	dt := clamp(realTimeDelta, 0, maxRealTimeDelta)
	r.DT = dt
	if dt < minRealTimeDelta {
		return s, r
	}

	nowBlend := math.Min(1, dt/nowTimescale)
	s.NowRenderTime = clamp((1-nowBlend)*s.NowRenderTime+nowBlend*r.MaxRenderTime, 0, MaxRenderTime)

	smoothBlend := math.Min(1, dt/(nowTimescale*s.SmoothScale))
	s.SmoothRenderTime = clamp((1-smoothBlend)*s.SmoothRenderTime+smoothBlend*r.MaxRenderTime, 0, MaxRenderTime)

	if !s.AutomaticLODAdjust || s.NowRenderTime <= 0 || s.SmoothRenderTime <= 0 {
		return s, r
	}
	r.Regulated = true

	r.TargetFPS = s.TargetFPS() + targetFPSHeadroom
	r.NowFPS = units.FrameTimeToFPS(s.NowRenderTime)
	r.SmoothFPS = units.FrameTimeToFPS(s.SmoothRenderTime)

	r.Variance = sq(r.SmoothFPS-r.NowFPS) * s.PID.Kv
	r.Error = r.TargetFPS - r.SmoothFPS
	r.GateCoefficient = NoiseGate(sq(r.Error), r.Variance)
	r.NormalizedError = clamp(r.GateCoefficient*r.Error/r.TargetFPS, -1, 1)

	pidDt := math.Min(dt, nowTimescale)
	e := r.NormalizedError
	integral := clamp(s.History.Integral+e*pidDt, -1, 1)
	derivative := (e - s.History.Error) / pidDt
	s.History = PIDHistory{Error: e, Integral: integral, Derivative: derivative}

	r.P = s.PID.Kp * e
	r.I = s.PID.Ki * integral
	r.D = s.PID.Kd * derivative
	r.Output = r.P + r.I + r.D

	r.NewAngleDeg = clamp(r.OldAngleDeg+r.Output, MinLODAngleDeg, MaxLODAngleDeg)
	if r.NewAngleDeg != r.OldAngleDeg {
		s.LODHalfAngle = units.DegToRad(r.NewAngleDeg / 2)
		r.Changed = true
	}
	return s, r
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func sq(v float64) float64 { return v * v }
