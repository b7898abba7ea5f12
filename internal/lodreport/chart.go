package lodreport

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/openworld-xr/interface/internal/lod"
)

// AssetsHost is where rendered pages load the echarts script from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// maxChartPoints bounds the payload of a rendered page.
const maxChartPoints = 4000

// RenderChart writes an interactive HTML page with frame-rate and angle
// charts for samples. Long traces are downsampled by stride.
func RenderChart(w io.Writer, samples []lod.Sample, title string) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	stride := 1
	if len(samples) > maxChartPoints {
		stride = (len(samples) + maxChartPoints - 1) / maxChartPoints
	}
	xs := elapsed(samples)

	var (
		xAxis  []string
		now    []opts.LineData
		smooth []opts.LineData
		target []opts.LineData
		angle  []opts.LineData
	)
	for i := 0; i < len(samples); i += stride {
		s := samples[i]
		xAxis = append(xAxis, fmt.Sprintf("%.2f", xs[i]))
		now = append(now, opts.LineData{Value: s.NowFPS})
		smooth = append(smooth, opts.LineData{Value: s.SmoothFPS})
		target = append(target, opts.LineData{Value: s.TargetFPS})
		angle = append(angle, opts.LineData{Value: s.AngleDeg})
	}

	fpsChart := charts.NewLine()
	fpsChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "420px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Frame Rate", Subtitle: fmt.Sprintf("points=%d stride=%d", len(xAxis), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "s"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "FPS"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	fpsChart.SetXAxis(xAxis).
		AddSeries("now", now).
		AddSeries("smooth", smooth).
		AddSeries("target", target)

	angleChart := charts.NewLine()
	angleChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "300px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "LOD Angle"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "deg"}),
	)
	angleChart.SetXAxis(xAxis).AddSeries("angle", angle)

	page := components.NewPage()
	page.PageTitle = title
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(fpsChart, angleChart)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
