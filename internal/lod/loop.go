package lod

import (
	"context"
	"time"

	"github.com/openworld-xr/interface/internal/timeutil"
)

// Run steps the regulator every interval until ctx is done, using the clock
// to measure the real time between steps. Each step is recorded in trace
// when trace is non-nil.
func (m *Manager) Run(ctx context.Context, clock timeutil.Clock, interval time.Duration, trace *Trace) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	last := clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			now := clock.Now()
			dt := now.Sub(last).Seconds()
			last = now

			r := m.AutoAdjustLOD(dt)
			if trace != nil && r.Regulated {
				trace.Add(NewSample(now, m.State(), r))
			}
		}
	}
}
