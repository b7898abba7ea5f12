// Package lodreport summarizes and plots recorded LOD regulator traces.
package lodreport

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/openworld-xr/interface/internal/lod"
)

// Summary describes how well the regulator held its target over a trace.
type Summary struct {
	Samples       int           `json:"samples"`
	Duration      time.Duration `json:"duration"`
	MeanFPS       float64       `json:"mean_fps"`
	StdDevFPS     float64       `json:"stddev_fps"`
	MinFPS        float64       `json:"min_fps"`
	MaxFPS        float64       `json:"max_fps"`
	P5FPS         float64       `json:"p5_fps"`
	MeanAngleDeg  float64       `json:"mean_angle_deg"`
	FinalAngleDeg float64       `json:"final_angle_deg"`
	// AboveTarget is the fraction of samples whose smoothed rate reached
	// the regulated target.
	AboveTarget float64 `json:"above_target"`
}

// Summarize computes statistics over samples. The smoothed frame rate is
// used throughout since the fast average is dominated by frame jitter.
func Summarize(samples []lod.Sample) Summary {
	var s Summary
	s.Samples = len(samples)
	if len(samples) == 0 {
		return s
	}

	fps := make([]float64, len(samples))
	angles := make([]float64, len(samples))
	above := 0
	for i, smp := range samples {
		fps[i] = smp.SmoothFPS
		angles[i] = smp.AngleDeg
		if smp.SmoothFPS >= smp.TargetFPS {
			above++
		}
	}

	s.Duration = samples[len(samples)-1].Time.Sub(samples[0].Time)
	s.MeanFPS, s.StdDevFPS = stat.MeanStdDev(fps, nil)
	if len(fps) < 2 {
		s.StdDevFPS = 0
	}
	s.MinFPS = floats.Min(fps)
	s.MaxFPS = floats.Max(fps)

	sorted := append([]float64(nil), fps...)
	sort.Float64s(sorted)
	s.P5FPS = stat.Quantile(0.05, stat.Empirical, sorted, nil)

	s.MeanAngleDeg = stat.Mean(angles, nil)
	s.FinalAngleDeg = angles[len(angles)-1]
	s.AboveTarget = float64(above) / float64(len(samples))
	return s
}

// String formats the summary for terminal output.
func (s Summary) String() string {
	if s.Samples == 0 {
		return "no samples"
	}
	return fmt.Sprintf(
		"samples=%d duration=%s fps mean=%.2f sd=%.2f min=%.2f p5=%.2f max=%.2f angle mean=%.4f final=%.4f deg on-target=%.1f%%",
		s.Samples, s.Duration, s.MeanFPS, s.StdDevFPS, s.MinFPS, s.P5FPS, s.MaxFPS,
		s.MeanAngleDeg, s.FinalAngleDeg, 100*s.AboveTarget,
	)
}

// elapsed returns seconds since the first sample for each sample.
func elapsed(samples []lod.Sample) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}
	t0 := samples[0].Time
	for i, s := range samples {
		out[i] = s.Time.Sub(t0).Seconds()
	}
	return out
}
