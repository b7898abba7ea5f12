package lod

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworld-xr/interface/internal/timeutil"
)

func TestTrace_RingOrder(t *testing.T) {
	tr := NewTrace(3)
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.Samples())

	for i := 1; i <= 5; i++ {
		tr.Add(Sample{AngleDeg: float64(i)})
	}
	require.Equal(t, 3, tr.Len())

	var got []float64
	for _, s := range tr.Samples() {
		got = append(got, s.AngleDeg)
	}
	assert.Equal(t, []float64{3, 4, 5}, got)
}

func TestTrace_Reset(t *testing.T) {
	tr := NewTrace(0)
	tr.Add(Sample{AngleDeg: 1})
	assert.Equal(t, 1, tr.Len())

	session := tr.Session()
	tr.Reset()
	assert.Equal(t, 0, tr.Len())
	assert.NotEqual(t, session, tr.Session())
}

func TestNewSample_ConfiguredTarget(t *testing.T) {
	s := DefaultState().WithRenderTimes(20, 10, 20, 10)
	s.DesktopTargetFPS = 30
	next, r := Step(s, 0.05)
	require.True(t, r.Regulated)

	smp := NewSample(time.Unix(0, 0), next, r)
	assert.Equal(t, 30.0, smp.TargetFPS)
	assert.Equal(t, 30.0+targetFPSHeadroom, r.TargetFPS)
}

func TestManager_Run(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	m := NewManager()
	m.SetRenderTimes(8, 6, 6, 7)
	tr := NewTrace(100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, clock, 16*time.Millisecond, tr)
		close(done)
	}()

	require.Eventually(t, func() bool {
		clock.Advance(16 * time.Millisecond)
		return tr.Len() >= 3
	}, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	for _, s := range tr.Samples() {
		assert.Equal(t, 33.0, s.TargetFPS)
		assert.Greater(t, s.NowFPS, 0.0)
	}
}
