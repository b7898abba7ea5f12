package lod

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sample is one regulator step as recorded by the daemon loop.
type Sample struct {
	Time          time.Time `json:"time"`
	PresentTime   float64   `json:"present_time"`
	EngineRunTime float64   `json:"engine_run_time"`
	BatchTime     float64   `json:"batch_time"`
	GPUTime       float64   `json:"gpu_time"`
	NowFPS        float64   `json:"now_fps"`
	SmoothFPS     float64   `json:"smooth_fps"`
	TargetFPS     float64   `json:"target_fps"` // configured, without headroom
	AngleDeg      float64   `json:"angle_deg"`
	Output        float64   `json:"output"`
}

// NewSample builds a Sample from the state after a step and its result.
func NewSample(at time.Time, s State, r StepResult) Sample {
	return Sample{
		Time:          at,
		PresentTime:   s.PresentTime,
		EngineRunTime: s.EngineRunTime,
		BatchTime:     s.BatchTime,
		GPUTime:       s.GPUTime,
		NowFPS:        r.NowFPS,
		SmoothFPS:     r.SmoothFPS,
		TargetFPS:     s.TargetFPS(),
		AngleDeg:      s.LODAngleDeg(),
		Output:        r.Output,
	}
}

// Trace is a bounded ring of samples. The oldest sample is dropped once the
// ring is full.
type Trace struct {
	mu      sync.Mutex
	session uuid.UUID
	buf     []Sample
	next    int
	full    bool
}

// NewTrace returns a Trace holding at most capacity samples.
func NewTrace(capacity int) *Trace {
	if capacity < 1 {
		capacity = 1
	}
	return &Trace{session: uuid.New(), buf: make([]Sample, capacity)}
}

// Session identifies the current recording. It changes on Reset.
func (t *Trace) Session() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

func (t *Trace) Add(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf[t.next] = s
	t.next++
	if t.next == len(t.buf) {
		t.next = 0
		t.full = true
	}
}

func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return len(t.buf)
	}
	return t.next
}

// Samples returns a copy of the recorded samples, oldest first.
func (t *Trace) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]Sample(nil), t.buf[:t.next]...)
	}
	out := make([]Sample, 0, len(t.buf))
	out = append(out, t.buf[t.next:]...)
	return append(out, t.buf[:t.next]...)
}

// Reset discards all samples and starts a new session.
func (t *Trace) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = uuid.New()
	t.next = 0
	t.full = false
	clear(t.buf)
}
