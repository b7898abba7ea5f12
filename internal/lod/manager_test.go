package lod

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworld-xr/interface/internal/config"
)

type mapStore struct {
	floats map[string]float64
	bools  map[string]bool
	err    error
}

func newMapStore() *mapStore {
	return &mapStore{floats: map[string]float64{}, bools: map[string]bool{}}
}

func (s *mapStore) GetFloat(key string) (float64, bool, error) {
	v, ok := s.floats[key]
	return v, ok, s.err
}

func (s *mapStore) SetFloat(key string, v float64) error {
	if s.err != nil {
		return s.err
	}
	s.floats[key] = v
	return nil
}

func (s *mapStore) GetBool(key string) (bool, bool, error) {
	v, ok := s.bools[key]
	return v, ok, s.err
}

func (s *mapStore) SetBool(key string, v bool) error {
	if s.err != nil {
		return s.err
	}
	s.bools[key] = v
	return nil
}

func TestManager_Clamps(t *testing.T) {
	m := NewManager()

	m.SetDesktopTargetFPS(0.1)
	m.SetHMDTargetFPS(-5)
	m.SetSmoothScale(0.2)
	s := m.State()
	assert.Equal(t, MinTargetFPS, s.DesktopTargetFPS)
	assert.Equal(t, MinTargetFPS, s.HMDTargetFPS)
	assert.Equal(t, MinSmoothScale, s.SmoothScale)

	m.SetLODAngleDeg(200)
	assert.InDelta(t, MaxLODAngleDeg, m.LODAngleDeg(), 1e-9)
	m.SetLODAngleDeg(0)
	assert.InDelta(t, MinLODAngleDeg, m.LODAngleDeg(), 1e-12)
}

func TestManager_TargetFPSFollowsMode(t *testing.T) {
	m := NewManager()
	m.SetDesktopTargetFPS(45)
	m.SetHMDTargetFPS(72)

	assert.Equal(t, 45.0, m.TargetFPS())
	m.SetHMDMode(true)
	assert.Equal(t, 72.0, m.TargetFPS())
}

func TestManager_WorldDetailQuality(t *testing.T) {
	m := NewManager()
	assert.InDelta(t, DefaultWorldDetailQuality, m.WorldDetailQuality(false), 1e-9)
	assert.InDelta(t, DefaultWorldDetailQuality, m.WorldDetailQuality(true), 1e-9)

	m.SetWorldDetailQuality(0.5, false)
	assert.InDelta(t, 40.0, m.State().DesktopTargetFPS, 1e-9)
	m.SetWorldDetailQuality(1, true)
	assert.InDelta(t, 90.0, m.State().HMDTargetFPS, 1e-9)
	m.SetWorldDetailQuality(7, false)
	assert.InDelta(t, 60.0, m.State().DesktopTargetFPS, 1e-9)
	assert.InDelta(t, 1.0, m.WorldDetailQuality(false), 1e-9)
}

func TestManager_VisibilityDistance(t *testing.T) {
	m := NewManager()
	assert.InDelta(t, DefaultVisibilityDistance, m.VisibilityDistance(), 1e-6)
	assert.InDelta(t, math.Pow(math.Sqrt(3)/2/400, 2), m.LODAngleHalfTanSq(), 1e-15)
	assert.Contains(t, m.LODFeedbackText(), "400.00 meters")

	m.SetVisibilityDistance(2500)
	assert.InDelta(t, 2500, m.VisibilityDistance(), 1e-3)
	assert.Contains(t, m.LODFeedbackText(), "2.50 kilometers")
}

func TestManager_AutoAdjustNotifiesOnChange(t *testing.T) {
	m := NewManager()

	var mu sync.Mutex
	var got []Snapshot
	cancel := m.Subscribe(func(s Snapshot) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	m.SetRenderTimes(100, 100, 100, 100)
	r := m.AutoAdjustLOD(0.5)
	require.True(t, r.Changed)

	mu.Lock()
	require.Len(t, got, 1)
	assert.InDelta(t, r.NewAngleDeg, got[0].LODAngleDeg, 1e-9)
	mu.Unlock()

	cancel()
	m.SetHMDMode(true)
	mu.Lock()
	assert.Len(t, got, 1, "cancelled subscriber must not be called")
	mu.Unlock()
}

func TestManager_ZeroDeltaDoesNotNotify(t *testing.T) {
	m := NewManager()
	calls := 0
	m.Subscribe(func(Snapshot) { calls++ })
	before := m.State()

	m.AutoAdjustLOD(0)
	assert.Equal(t, before, m.State())
	assert.Equal(t, 0, calls)
}

func TestManager_ResetLODParams(t *testing.T) {
	m := NewManager()
	m.SetPIDCoefs(PIDCoefs{Kp: 2, Ki: 0.5, Kd: 0.1, Kv: 3})
	m.SetRenderTimes(50, 50, 50, 50)
	m.AutoAdjustLOD(0.1)
	m.SetLODAngleDeg(10)

	m.ResetLODParams()
	s := m.State()
	assert.Equal(t, DefaultLODHalfAngle(), s.LODHalfAngle)
	assert.Zero(t, s.NowRenderTime)
	assert.Zero(t, s.SmoothRenderTime)
	assert.Equal(t, PIDHistory{}, s.History)
	assert.Equal(t, 2.0, s.PID.Kp, "gains survive a reset")
}

func TestManager_ApplyTuning(t *testing.T) {
	m := NewManager()
	m.SetAutomaticLODAdjust(false)

	m.ApplyTuning(config.LODTuning{
		AutomaticLODAdjust: true,
		Kp:                 0.5,
		Ki:                 0.25,
		Kd:                 0.125,
		Kv:                 2,
		SmoothScale:        0,
		DesktopTargetFPS:   50,
		HMDTargetFPS:       0,
	})

	s := m.State()
	assert.Equal(t, PIDCoefs{Kp: 0.5, Ki: 0.25, Kd: 0.125, Kv: 2}, s.PID)
	assert.Equal(t, MinSmoothScale, s.SmoothScale)
	assert.Equal(t, 50.0, s.DesktopTargetFPS)
	assert.Equal(t, MinTargetFPS, s.HMDTargetFPS)
	assert.False(t, s.AutomaticLODAdjust, "tuning must not override the user's enable flag")
}

func TestManager_SettingsRoundTrip(t *testing.T) {
	store := newMapStore()

	a := NewManager()
	a.SetAutomaticLODAdjust(false)
	a.SetLODAngleDeg(3)
	a.SetWorldDetailQuality(0.75, false)
	a.SetWorldDetailQuality(0.5, true)
	require.NoError(t, a.SaveSettings(store))

	assert.Contains(t, store.bools, SettingAutomaticLODAdjust)
	assert.Contains(t, store.floats, SettingLODHalfAngle)

	b := NewManager()
	require.NoError(t, b.LoadSettings(store))
	assert.False(t, b.AutomaticLODAdjust())
	assert.InDelta(t, 3.0, b.LODAngleDeg(), 1e-9)
	assert.InDelta(t, 0.75, b.WorldDetailQuality(false), 1e-9)
	assert.InDelta(t, 0.5, b.WorldDetailQuality(true), 1e-9)
}

func TestManager_LoadSettingsEmptyStoreKeepsDefaults(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.LoadSettings(newMapStore()))
	assert.Equal(t, DefaultState(), m.State())
}

func TestManager_SettingsErrors(t *testing.T) {
	store := newMapStore()
	store.err = assert.AnError

	m := NewManager()
	assert.ErrorIs(t, m.LoadSettings(store), assert.AnError)
	assert.ErrorIs(t, m.SaveSettings(store), assert.AnError)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.SetRenderTimes(float64(i+j), 10, 10, 10)
				m.AutoAdjustLOD(0.016)
				_ = m.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	deg := m.LODAngleDeg()
	assert.GreaterOrEqual(t, deg, MinLODAngleDeg)
	assert.LessOrEqual(t, deg, MaxLODAngleDeg)
}
