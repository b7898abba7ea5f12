package lodreport

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/openworld-xr/interface/internal/lod"
)

// ErrNoSamples is returned when a plot is requested for an empty trace.
var ErrNoSamples = errors.New("no samples to plot")

var (
	colorSmooth = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorNow    = color.RGBA{R: 174, G: 199, B: 232, A: 255}
	colorTarget = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	colorAngle  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// NewPlots builds the frame-rate and angle plots for samples.
func NewPlots(samples []lod.Sample, title string) (fpsPlot, anglePlot *plot.Plot, err error) {
	if len(samples) == 0 {
		return nil, nil, ErrNoSamples
	}
	xs := elapsed(samples)

	nowPts := make(plotter.XYs, len(samples))
	smoothPts := make(plotter.XYs, len(samples))
	targetPts := make(plotter.XYs, len(samples))
	anglePts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		nowPts[i] = plotter.XY{X: xs[i], Y: s.NowFPS}
		smoothPts[i] = plotter.XY{X: xs[i], Y: s.SmoothFPS}
		targetPts[i] = plotter.XY{X: xs[i], Y: s.TargetFPS}
		anglePts[i] = plotter.XY{X: xs[i], Y: s.AngleDeg}
	}

	fpsPlot = plot.New()
	fpsPlot.Title.Text = fmt.Sprintf("%s - Frame Rate", title)
	fpsPlot.X.Label.Text = "Time (s)"
	fpsPlot.Y.Label.Text = "FPS"

	for _, series := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{
		{"now", nowPts, colorNow},
		{"smooth", smoothPts, colorSmooth},
		{"target", targetPts, colorTarget},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %s line: %w", series.name, err)
		}
		line.Width = vg.Points(1)
		line.Color = series.c
		fpsPlot.Add(line)
		fpsPlot.Legend.Add(series.name, line)
	}
	fpsPlot.Legend.Top = true

	anglePlot = plot.New()
	anglePlot.Title.Text = fmt.Sprintf("%s - LOD Angle", title)
	anglePlot.X.Label.Text = "Time (s)"
	anglePlot.Y.Label.Text = "Angle (deg)"
	angleLine, err := plotter.NewLine(anglePts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create angle line: %w", err)
	}
	angleLine.Width = vg.Points(1)
	angleLine.Color = colorAngle
	anglePlot.Add(angleLine)

	return fpsPlot, anglePlot, nil
}

// WritePNG renders the frame-rate plot as PNG to w.
func WritePNG(w io.Writer, samples []lod.Sample, title string) error {
	fpsPlot, _, err := NewPlots(samples, title)
	if err != nil {
		return err
	}
	wt, err := fpsPlot.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}

// SavePNGs writes the frame-rate and angle plots to fpsFile and angleFile.
func SavePNGs(samples []lod.Sample, title, fpsFile, angleFile string) error {
	fpsPlot, anglePlot, err := NewPlots(samples, title)
	if err != nil {
		return err
	}
	if err := fpsPlot.Save(14*vg.Inch, 6*vg.Inch, fpsFile); err != nil {
		return fmt.Errorf("failed to save %s: %w", fpsFile, err)
	}
	if err := anglePlot.Save(14*vg.Inch, 6*vg.Inch, angleFile); err != nil {
		return fmt.Errorf("failed to save %s: %w", angleFile, err)
	}
	return nil
}
