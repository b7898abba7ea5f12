package lod

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openworld-xr/interface/internal/config"
	"github.com/openworld-xr/interface/internal/monitoring"
	"github.com/openworld-xr/interface/internal/units"
)

// Persisted setting keys.
const (
	SettingAutomaticLODAdjust        = "lodManager/automaticLODAdjust"
	SettingLODHalfAngle              = "lodManager/lodHalfAngle"
	SettingDesktopWorldDetailQuality = "lodManager/desktopWorldDetailQuality"
	SettingHMDWorldDetailQuality     = "lodManager/hmdWorldDetailQuality"
)

// SettingsStore persists regulator settings between sessions.
type SettingsStore interface {
	GetFloat(key string) (float64, bool, error)
	SetFloat(key string, v float64) error
	GetBool(key string) (bool, bool, error)
	SetBool(key string, v bool) error
}

// Snapshot is a read-only view of the regulator published to listeners and
// the HTTP API.
type Snapshot struct {
	AutomaticLODAdjust        bool       `json:"automatic_lod_adjust"`
	LODAngleDeg               float64    `json:"lod_angle_deg"`
	LODHalfAngle              float64    `json:"lod_half_angle"`
	VisibilityDistance        float64    `json:"visibility_distance"`
	PresentTime               float64    `json:"present_time"`
	EngineRunTime             float64    `json:"engine_run_time"`
	BatchTime                 float64    `json:"batch_time"`
	GPUTime                   float64    `json:"gpu_time"`
	NowRenderTime             float64    `json:"now_render_time"`
	SmoothRenderTime          float64    `json:"smooth_render_time"`
	NowFPS                    float64    `json:"now_fps"`
	SmoothFPS                 float64    `json:"smooth_fps"`
	TargetFPS                 float64    `json:"target_fps"`
	DesktopTargetFPS          float64    `json:"desktop_target_fps"`
	HMDTargetFPS              float64    `json:"hmd_target_fps"`
	DesktopWorldDetailQuality float64    `json:"desktop_world_detail_quality"`
	HMDWorldDetailQuality     float64    `json:"hmd_world_detail_quality"`
	HMDMode                   bool       `json:"hmd_mode"`
	SmoothScale               float64    `json:"smooth_scale"`
	PID                       PIDCoefs   `json:"pid"`
	History                   PIDHistory `json:"history"`
}

// Manager serializes access to a regulator State and notifies subscribers
// whenever the LOD angle or a setting changes.
type Manager struct {
	mu    sync.Mutex
	state State

	listenersMu sync.Mutex
	listeners   map[uuid.UUID]func(Snapshot)
}

// NewManager returns a Manager at DefaultState.
func NewManager() *Manager {
	return &Manager{
		state:     DefaultState(),
		listeners: make(map[uuid.UUID]func(Snapshot)),
	}
}

// State returns a copy of the current regulator state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetRenderTimes records the latest per-stage frame timings in milliseconds.
func (m *Manager) SetRenderTimes(present, engine, batch, gpu float64) {
	m.mu.Lock()
	m.state = m.state.WithRenderTimes(present, engine, batch, gpu)
	m.mu.Unlock()
}

// AutoAdjustLOD runs one regulator step over realTimeDelta seconds.
func (m *Manager) AutoAdjustLOD(realTimeDelta float64) StepResult {
	m.mu.Lock()
	next, r := Step(m.state, realTimeDelta)
	m.state = next
	m.mu.Unlock()

	if r.Changed {
		m.notify()
	}
	return r
}

func (m *Manager) update(fn func(s *State)) {
	m.mu.Lock()
	fn(&m.state)
	m.mu.Unlock()
	m.notify()
}

// SetAutomaticLODAdjust enables or disables regulation.
func (m *Manager) SetAutomaticLODAdjust(enabled bool) {
	m.update(func(s *State) { s.AutomaticLODAdjust = enabled })
}

// AutomaticLODAdjust reports whether regulation is enabled.
func (m *Manager) AutomaticLODAdjust() bool {
	return m.State().AutomaticLODAdjust
}

// SetLODAngleDeg sets the full LOD angle, clamped to the valid range.
func (m *Manager) SetLODAngleDeg(deg float64) {
	deg = clamp(deg, MinLODAngleDeg, MaxLODAngleDeg)
	m.update(func(s *State) { s.LODHalfAngle = units.DegToRad(deg / 2) })
}

// LODAngleDeg returns the full LOD angle in degrees.
func (m *Manager) LODAngleDeg() float64 {
	return m.State().LODAngleDeg()
}

// LODHalfAngle returns the LOD half-angle in radians.
func (m *Manager) LODHalfAngle() float64 {
	return m.State().LODHalfAngle
}

// LODAngleHalfTanSq returns tan² of the half-angle, the form ShouldRender
// compares against.
func (m *Manager) LODAngleHalfTanSq() float64 {
	return sq(math.Tan(m.LODHalfAngle()))
}

// SetVisibilityDistance sets the angle so a 1 m object is visible up to
// distance meters.
func (m *Manager) SetVisibilityDistance(distance float64) {
	m.SetLODAngleDeg(2 * units.RadToDeg(HalfAngleForDistance(distance)))
}

// VisibilityDistance returns the distance at which a 1 m object is culled.
func (m *Manager) VisibilityDistance() float64 {
	return VisibilityDistanceFor(m.LODHalfAngle())
}

// LODFeedbackText describes the current reach for UI display.
func (m *Manager) LODFeedbackText() string {
	return FeedbackText(m.LODHalfAngle())
}

func (m *Manager) SetDesktopTargetFPS(fps float64) {
	m.update(func(s *State) { s.DesktopTargetFPS = math.Max(MinTargetFPS, fps) })
}

func (m *Manager) SetHMDTargetFPS(fps float64) {
	m.update(func(s *State) { s.HMDTargetFPS = math.Max(MinTargetFPS, fps) })
}

// SetHMDMode selects which target frame rate regulation uses.
func (m *Manager) SetHMDMode(hmd bool) {
	m.update(func(s *State) { s.HMDMode = hmd })
}

// TargetFPS returns the target for the current display mode.
func (m *Manager) TargetFPS() float64 {
	return m.State().TargetFPS()
}

// SetWorldDetailQuality sets the desktop or HMD target through the quality
// scale.
func (m *Manager) SetWorldDetailQuality(quality float64, hmd bool) {
	fps := QualityToFPS(quality, hmd)
	if hmd {
		m.SetHMDTargetFPS(fps)
	} else {
		m.SetDesktopTargetFPS(fps)
	}
}

// WorldDetailQuality returns the desktop or HMD target as a quality.
func (m *Manager) WorldDetailQuality(hmd bool) float64 {
	s := m.State()
	if hmd {
		return FPSToQuality(s.HMDTargetFPS, true)
	}
	return FPSToQuality(s.DesktopTargetFPS, false)
}

func (m *Manager) SetPIDCoefs(c PIDCoefs) {
	m.update(func(s *State) { s.PID = c })
}

func (m *Manager) SetSmoothScale(scale float64) {
	m.update(func(s *State) { s.SmoothScale = math.Max(MinSmoothScale, scale) })
}

// ResetLODParams restores the default angle and clears the regulator memory.
// Gains, targets and the enable flag are kept.
func (m *Manager) ResetLODParams() {
	m.update(func(s *State) {
		s.LODHalfAngle = DefaultLODHalfAngle()
		s.NowRenderTime = 0
		s.SmoothRenderTime = 0
		s.History = PIDHistory{}
	})
}

// ApplyTuning installs gains and targets from a tuning file. The enable
// flag is a user setting and is left alone.
func (m *Manager) ApplyTuning(t config.LODTuning) {
	m.update(func(s *State) {
		s.PID = PIDCoefs{Kp: t.Kp, Ki: t.Ki, Kd: t.Kd, Kv: t.Kv}
		s.SmoothScale = math.Max(MinSmoothScale, t.SmoothScale)
		s.DesktopTargetFPS = math.Max(MinTargetFPS, t.DesktopTargetFPS)
		s.HMDTargetFPS = math.Max(MinTargetFPS, t.HMDTargetFPS)
	})
}

// Snapshot returns the current published view.
func (m *Manager) Snapshot() Snapshot {
	return snapshotOf(m.State())
}

func snapshotOf(s State) Snapshot {
	snap := Snapshot{
		AutomaticLODAdjust:        s.AutomaticLODAdjust,
		LODAngleDeg:               s.LODAngleDeg(),
		LODHalfAngle:              s.LODHalfAngle,
		VisibilityDistance:        VisibilityDistanceFor(s.LODHalfAngle),
		PresentTime:               s.PresentTime,
		EngineRunTime:             s.EngineRunTime,
		BatchTime:                 s.BatchTime,
		GPUTime:                   s.GPUTime,
		NowRenderTime:             s.NowRenderTime,
		SmoothRenderTime:          s.SmoothRenderTime,
		TargetFPS:                 s.TargetFPS(),
		DesktopTargetFPS:          s.DesktopTargetFPS,
		HMDTargetFPS:              s.HMDTargetFPS,
		DesktopWorldDetailQuality: FPSToQuality(s.DesktopTargetFPS, false),
		HMDWorldDetailQuality:     FPSToQuality(s.HMDTargetFPS, true),
		HMDMode:                   s.HMDMode,
		SmoothScale:               s.SmoothScale,
		PID:                       s.PID,
		History:                   s.History,
	}
	snap.NowFPS = units.FrameTimeToFPS(s.NowRenderTime)
	snap.SmoothFPS = units.FrameTimeToFPS(s.SmoothRenderTime)
	if math.IsInf(snap.VisibilityDistance, 1) {
		snap.VisibilityDistance = 0
	}
	return snap
}

// Subscribe registers fn to be called with a fresh Snapshot after every
// change. The returned function removes the subscription.
func (m *Manager) Subscribe(fn func(Snapshot)) (cancel func()) {
	id := uuid.New()
	m.listenersMu.Lock()
	m.listeners[id] = fn
	m.listenersMu.Unlock()
	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

func (m *Manager) notify() {
	snap := m.Snapshot()

	m.listenersMu.Lock()
	ids := make([]uuid.UUID, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	fns := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// LoadSettings restores persisted settings. Missing keys keep their current
// values.
func (m *Manager) LoadSettings(store SettingsStore) error {
	auto, ok, err := store.GetBool(SettingAutomaticLODAdjust)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", SettingAutomaticLODAdjust, err)
	}
	if ok {
		m.SetAutomaticLODAdjust(auto)
	}

	half, ok, err := store.GetFloat(SettingLODHalfAngle)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", SettingLODHalfAngle, err)
	}
	if ok {
		m.SetLODAngleDeg(2 * units.RadToDeg(half))
	}

	for _, q := range []struct {
		key string
		hmd bool
	}{
		{SettingDesktopWorldDetailQuality, false},
		{SettingHMDWorldDetailQuality, true},
	} {
		v, ok, err := store.GetFloat(q.key)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", q.key, err)
		}
		if ok {
			m.SetWorldDetailQuality(v, q.hmd)
		}
	}

	monitoring.Logf("lod: loaded settings, angle %.4f deg, auto %v", m.LODAngleDeg(), m.AutomaticLODAdjust())
	return nil
}

// SaveSettings persists the settings LoadSettings restores.
func (m *Manager) SaveSettings(store SettingsStore) error {
	s := m.State()
	if err := store.SetBool(SettingAutomaticLODAdjust, s.AutomaticLODAdjust); err != nil {
		return fmt.Errorf("failed to save %s: %w", SettingAutomaticLODAdjust, err)
	}
	floats := []struct {
		key string
		v   float64
	}{
		{SettingLODHalfAngle, s.LODHalfAngle},
		{SettingDesktopWorldDetailQuality, FPSToQuality(s.DesktopTargetFPS, false)},
		{SettingHMDWorldDetailQuality, FPSToQuality(s.HMDTargetFPS, true)},
	}
	for _, f := range floats {
		if err := store.SetFloat(f.key, f.v); err != nil {
			return fmt.Errorf("failed to save %s: %w", f.key, err)
		}
	}
	return nil
}
