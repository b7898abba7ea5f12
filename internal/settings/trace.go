package settings

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openworld-xr/interface/internal/lod"
)

// Fixed-width so sample times sort as text.
const sampleTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SaveTrace archives samples under session. Existing rows for the session
// are replaced.
func (s *Store) SaveTrace(session uuid.UUID, samples []lod.Sample) error {
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trace archive: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM lod_trace WHERE session = ?`, session.String()); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", session, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO lod_trace (
			session, sample_time, present_time, engine_run_time, batch_time, gpu_time,
			now_fps, smooth_fps, target_fps, angle_deg, output
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trace insert: %w", err)
	}
	defer stmt.Close()

	for _, x := range samples {
		if _, err := stmt.Exec(
			session.String(), x.Time.UTC().Format(sampleTimeLayout),
			x.PresentTime, x.EngineRunTime, x.BatchTime, x.GPUTime,
			x.NowFPS, x.SmoothFPS, x.TargetFPS, x.AngleDeg, x.Output,
		); err != nil {
			return fmt.Errorf("failed to insert trace sample: %w", err)
		}
	}
	return tx.Commit()
}

// LoadTrace returns the archived samples of session, oldest first.
func (s *Store) LoadTrace(session uuid.UUID) ([]lod.Sample, error) {
	rows, err := s.Query(`
		SELECT sample_time, present_time, engine_run_time, batch_time, gpu_time,
			now_fps, smooth_fps, target_fps, angle_deg, output
		FROM lod_trace WHERE session = ? ORDER BY sample_time, rowid`, session.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", session, err)
	}
	defer rows.Close()

	var out []lod.Sample
	for rows.Next() {
		var (
			x  lod.Sample
			ts string
		)
		if err := rows.Scan(&ts, &x.PresentTime, &x.EngineRunTime, &x.BatchTime, &x.GPUTime,
			&x.NowFPS, &x.SmoothFPS, &x.TargetFPS, &x.AngleDeg, &x.Output); err != nil {
			return nil, err
		}
		if x.Time, err = time.Parse(sampleTimeLayout, ts); err != nil {
			return nil, fmt.Errorf("invalid sample time %q: %w", ts, err)
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// TraceSessions lists archived sessions, most recent first.
func (s *Store) TraceSessions() ([]uuid.UUID, error) {
	rows, err := s.Query(`
		SELECT session FROM lod_trace
		GROUP BY session ORDER BY MAX(sample_time) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trace sessions: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid session id %q: %w", raw, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
