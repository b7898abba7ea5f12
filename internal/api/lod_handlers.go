package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/openworld-xr/interface/internal/httputil"
	"github.com/openworld-xr/interface/internal/lod"
	"github.com/openworld-xr/interface/internal/lodreport"
	"github.com/openworld-xr/interface/internal/monitoring"
	"github.com/openworld-xr/interface/internal/units"
)

// lodUpdate is the body of POST /api/lod. Absent fields are left alone.
type lodUpdate struct {
	AutomaticLODAdjust *bool         `json:"automatic_lod_adjust"`
	LODAngleDeg        *float64      `json:"lod_angle_deg"`
	VisibilityDistance *float64      `json:"visibility_distance"`
	DesktopTargetFPS   *float64      `json:"desktop_target_fps"`
	HMDTargetFPS       *float64      `json:"hmd_target_fps"`
	HMDMode            *bool         `json:"hmd_mode"`
	WorldDetailQuality *float64      `json:"world_detail_quality"`
	SmoothScale        *float64      `json:"smooth_scale"`
	PID                *lod.PIDCoefs `json:"pid"`
}

func (u lodUpdate) apply(m *lod.Manager) {
	if u.AutomaticLODAdjust != nil {
		m.SetAutomaticLODAdjust(*u.AutomaticLODAdjust)
	}
	if u.HMDMode != nil {
		m.SetHMDMode(*u.HMDMode)
	}
	if u.LODAngleDeg != nil {
		m.SetLODAngleDeg(*u.LODAngleDeg)
	}
	if u.VisibilityDistance != nil {
		m.SetVisibilityDistance(*u.VisibilityDistance)
	}
	if u.DesktopTargetFPS != nil {
		m.SetDesktopTargetFPS(*u.DesktopTargetFPS)
	}
	if u.HMDTargetFPS != nil {
		m.SetHMDTargetFPS(*u.HMDTargetFPS)
	}
	if u.WorldDetailQuality != nil {
		m.SetWorldDetailQuality(*u.WorldDetailQuality, m.State().HMDMode)
	}
	if u.SmoothScale != nil {
		m.SetSmoothScale(*u.SmoothScale)
	}
	if u.PID != nil {
		m.SetPIDCoefs(*u.PID)
	}
}

type lodResponse struct {
	lod.Snapshot
	FeedbackText string  `json:"feedback_text"`
	LODAngle     float64 `json:"lod_angle"`
	AngleUnits   string  `json:"angle_units"`
}

func (s *Server) lodResponse(unit string) lodResponse {
	return s.snapshotResponse(s.lod.Snapshot(), unit)
}

func (s *Server) snapshotResponse(snap lod.Snapshot, unit string) lodResponse {
	return lodResponse{
		Snapshot:     snap,
		FeedbackText: s.lod.LODFeedbackText(),
		LODAngle:     units.ConvertAngle(snap.LODAngleDeg, unit),
		AngleUnits:   unit,
	}
}

// angleUnits reads the optional ?units= query parameter.
func angleUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return units.Degrees, nil
	}
	if !units.IsValidAngleUnit(u) {
		return "", fmt.Errorf("invalid units %q (valid: %s)", u, units.GetValidAngleUnitsString())
	}
	return u, nil
}

// saveSettings persists user settings if a store is configured. Failures
// are logged; the in-memory state is already updated.
func (s *Server) saveSettings() {
	if s.store == nil {
		return
	}
	if err := s.lod.SaveSettings(s.store); err != nil {
		monitoring.Logf("api: failed to save LOD settings: %v", err)
	}
}

func (s *Server) handleLOD(w http.ResponseWriter, r *http.Request) {
	au, err := angleUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.lodResponse(au))
	case http.MethodPost:
		var u lodUpdate
		if err := httputil.DecodeJSON(r, &u); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid body: %v", err))
			return
		}
		u.apply(s.lod)
		s.saveSettings()
		httputil.WriteJSONOK(w, s.lodResponse(au))
	default:
		httputil.MethodNotAllowed(w)
	}
}

type renderTimes struct {
	PresentTime   float64 `json:"present_time"`
	EngineRunTime float64 `json:"engine_run_time"`
	BatchTime     float64 `json:"batch_time"`
	GPUTime       float64 `json:"gpu_time"`
}

// handleRenderTimes accepts per-frame timings from the render loop.
func (s *Server) handleRenderTimes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var t renderTimes
	if err := httputil.DecodeJSON(r, &t); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if t.PresentTime < 0 || t.EngineRunTime < 0 || t.BatchTime < 0 || t.GPUTime < 0 {
		httputil.BadRequest(w, "render times must not be negative")
		return
	}
	s.lod.SetRenderTimes(t.PresentTime, t.EngineRunTime, t.BatchTime, t.GPUTime)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLODReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.lod.ResetLODParams()
	s.saveSettings()
	httputil.WriteJSONOK(w, s.lodResponse(units.Degrees))
}

func (s *Server) samples() []lod.Sample {
	if s.trace == nil {
		return nil
	}
	return s.trace.Samples()
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	if s.trace == nil {
		httputil.NotFound(w, "tracing disabled")
		return
	}
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]interface{}{
			"session": s.trace.Session(),
			"samples": s.trace.Samples(),
		})
	case http.MethodDelete:
		s.trace.Reset()
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleTraceArchive copies the live trace into the settings database on
// POST. GET lists archived sessions, or returns one with ?session=.
func (s *Server) handleTraceArchive(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.NotFound(w, "trace archive unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.listTraceArchive(w, r)
	case http.MethodPost:
		if s.trace == nil {
			httputil.NotFound(w, "tracing disabled")
			return
		}
		session, samples := s.trace.Session(), s.trace.Samples()
		if err := s.store.SaveTrace(session, samples); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{
			"session": session,
			"samples": len(samples),
		})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listTraceArchive(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("session"); q != "" {
		session, err := uuid.Parse(q)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid session: %v", err))
			return
		}
		samples, err := s.store.LoadTrace(session)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if len(samples) == 0 {
			httputil.NotFound(w, fmt.Sprintf("no archived trace for session %s", session))
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{
			"session": session,
			"samples": samples,
		})
		return
	}
	sessions, err := s.store.TraceSessions()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sessions == nil {
		sessions = []uuid.UUID{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	samples := s.samples()
	if len(samples) == 0 {
		writeReportError(w, lodreport.ErrNoSamples)
		return
	}
	httputil.WriteJSONOK(w, lodreport.Summarize(samples))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var buf bytes.Buffer
	if err := lodreport.RenderChart(&buf, s.samples(), "LOD regulator"); err != nil {
		writeReportError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var buf bytes.Buffer
	if err := lodreport.WritePNG(&buf, s.samples(), "LOD regulator"); err != nil {
		writeReportError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = buf.WriteTo(w)
}

func writeReportError(w http.ResponseWriter, err error) {
	if errors.Is(err, lodreport.ErrNoSamples) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}
