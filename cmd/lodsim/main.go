// Command lodsim drives the LOD regulator offline, either from recorded
// frame timings or from a synthetic scene whose cost depends on the angle.
//
// CSV input has one frame per row:
//
//	present,engine,batch,gpu,dt_seconds
//
// Times are milliseconds. A header row is skipped.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openworld-xr/interface/internal/config"
	"github.com/openworld-xr/interface/internal/lod"
	"github.com/openworld-xr/interface/internal/lodreport"
	"github.com/openworld-xr/interface/internal/units"
)

var (
	inFile     = flag.String("in", "", "CSV of recorded frame timings (empty runs the synthetic scene)")
	tuningPath = flag.String("tuning", "", "Tuning JSON file")
	outPrefix  = flag.String("out", "lodsim", "Output prefix for -fps.png and -angle.png")
	chartFile  = flag.String("chart", "", "Also write an interactive HTML chart")
	hmd        = flag.Bool("hmd", false, "Regulate for a head-mounted display")
	frames     = flag.Int("frames", 3600, "Synthetic scene: number of frames")
	sceneMs    = flag.Float64("scene-ms", 40, "Synthetic scene: GPU cost at the default angle")
	fixedMs    = flag.Float64("fixed-ms", 8, "Synthetic scene: cost independent of the angle")
	noise      = flag.Float64("noise", 0.05, "Synthetic scene: relative frame time jitter")
	seed       = flag.Int64("seed", 1, "Synthetic scene: random seed")
)

// frame is one row of recorded timings.
type frame struct {
	Present, Engine, Batch, GPU float64
	DT                          float64
}

func parseFrame(rec []string) (frame, error) {
	var vals [5]float64
	for i, field := range rec {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return frame{}, fmt.Errorf("invalid value %q: %w", field, err)
		}
		vals[i] = v
	}
	return frame{Present: vals[0], Engine: vals[1], Batch: vals[2], GPU: vals[3], DT: vals[4]}, nil
}

// readFrames parses present,engine,batch,gpu,dt_seconds rows. A first row
// that does not parse is taken as a header.
func readFrames(r io.Reader) ([]frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var out []frame
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		f, err := parseFrame(rec)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if f.DT < 0 {
			return nil, fmt.Errorf("line %d: negative dt_seconds", line)
		}
		out = append(out, f)
	}
}

// replay feeds recorded frames through m and returns the regulated samples.
func replay(m *lod.Manager, in []frame, start time.Time) []lod.Sample {
	var out []lod.Sample
	t := start
	for _, f := range in {
		t = t.Add(time.Duration(f.DT * float64(time.Second)))
		m.SetRenderTimes(f.Present, f.Engine, f.Batch, f.GPU)
		r := m.AutoAdjustLOD(f.DT)
		if r.Regulated {
			out = append(out, lod.NewSample(t, m.State(), r))
		}
	}
	return out
}

// scene is a synthetic renderer whose GPU cost falls as the LOD angle grows.
type scene struct {
	fixedMs, sceneMs, noise float64
	rng                     *rand.Rand
}

// frameFor returns the timings of a frame rendered at angleDeg.
func (s scene) frameFor(angleDeg float64) frame {
	ref := units.RadToDeg(2 * lod.DefaultLODHalfAngle())
	gpu := s.fixedMs + s.sceneMs*math.Sqrt(ref/angleDeg)
	if s.noise > 0 {
		gpu *= 1 + s.noise*s.rng.NormFloat64()
	}
	gpu = math.Max(1, gpu)
	return frame{
		Present: gpu + 1,
		Engine:  0.6 * gpu,
		Batch:   0.8 * gpu,
		GPU:     gpu,
		DT:      (gpu + 1) / 1000,
	}
}

// simulate runs n frames of the closed loop.
func simulate(m *lod.Manager, s scene, n int, start time.Time) []lod.Sample {
	var out []lod.Sample
	t := start
	for i := 0; i < n; i++ {
		f := s.frameFor(m.LODAngleDeg())
		t = t.Add(time.Duration(f.DT * float64(time.Second)))
		m.SetRenderTimes(f.Present, f.Engine, f.Batch, f.GPU)
		r := m.AutoAdjustLOD(f.DT)
		if r.Regulated {
			out = append(out, lod.NewSample(t, m.State(), r))
		}
	}
	return out
}

func newManager(tuningPath string, hmd bool) (*lod.Manager, error) {
	tuning := config.DefaultTuningConfig()
	if tuningPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(tuningPath); err != nil {
			return nil, err
		}
	}
	m := lod.NewManager()
	m.ApplyTuning(tuning.LOD())
	m.SetHMDMode(hmd)
	m.SetAutomaticLODAdjust(true)
	return m, nil
}

func main() {
	flag.Parse()

	m, err := newManager(*tuningPath, *hmd)
	if err != nil {
		log.Fatalf("failed to load tuning: %v", err)
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var samples []lod.Sample
	title := "synthetic scene"
	if *inFile != "" {
		f, err := os.Open(*inFile)
		if err != nil {
			log.Fatalf("failed to open %s: %v", *inFile, err)
		}
		in, err := readFrames(f)
		f.Close()
		if err != nil {
			log.Fatalf("failed to read %s: %v", *inFile, err)
		}
		samples = replay(m, in, start)
		title = *inFile
	} else {
		s := scene{fixedMs: *fixedMs, sceneMs: *sceneMs, noise: *noise, rng: rand.New(rand.NewSource(*seed))}
		samples = simulate(m, s, *frames, start)
	}

	fmt.Println(lodreport.Summarize(samples))

	if len(samples) == 0 {
		return
	}
	fpsFile, angleFile := *outPrefix+"-fps.png", *outPrefix+"-angle.png"
	if err := lodreport.SavePNGs(samples, title, fpsFile, angleFile); err != nil {
		log.Fatalf("failed to write plots: %v", err)
	}
	log.Printf("wrote %s and %s", fpsFile, angleFile)

	if *chartFile != "" {
		f, err := os.Create(*chartFile)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *chartFile, err)
		}
		defer f.Close()
		if err := lodreport.RenderChart(f, samples, title); err != nil {
			log.Fatalf("failed to write chart: %v", err)
		}
		log.Printf("wrote %s", *chartFile)
	}
}
