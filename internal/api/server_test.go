package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworld-xr/interface/internal/config"
	"github.com/openworld-xr/interface/internal/connexion"
	"github.com/openworld-xr/interface/internal/input"
	"github.com/openworld-xr/interface/internal/lod"
	"github.com/openworld-xr/interface/internal/settings"
	"github.com/openworld-xr/interface/internal/testutil"
	"github.com/openworld-xr/interface/internal/timeutil"
	"github.com/openworld-xr/interface/internal/units"
	"github.com/openworld-xr/interface/internal/version"
)

type fixture struct {
	server *Server
	mux    http.Handler
	lod    *lod.Manager
	trace  *lod.Trace
	mapper *input.Mapper
	client *connexion.Client
	store  *settings.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mapper := input.NewMapper()
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	client := connexion.NewClient(mapper, connexion.ProberFunc(func() bool { return true }), clock,
		config.DefaultTuningConfig().Connexion())
	t.Cleanup(client.Close)

	f := &fixture{
		lod:    lod.NewManager(),
		trace:  lod.NewTrace(100),
		mapper: mapper,
		client: client,
		store:  store,
	}
	f.server = NewServer(Options{
		LOD:            f.lod,
		Trace:          f.trace,
		Mapper:         mapper,
		Client:         client,
		Store:          store,
		StreamInterval: 5 * time.Millisecond,
	})
	f.mux = LoggingMiddleware(f.server.ServeMux())
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := testutil.NewTestRecorder()
	f.mux.ServeHTTP(rec, testutil.NewTestRequest(method, path, body))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (f *fixture) addSamples(n int) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		f.trace.Add(lod.Sample{
			Time:      base.Add(time.Duration(i) * 16 * time.Millisecond),
			NowFPS:    float64(25 + i%10),
			SmoothFPS: float64(28 + i%3),
			TargetFPS: 28,
			AngleDeg:  float64(1 + i%5),
		})
	}
}

func TestGetLOD(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/lod", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]interface{}
	decode(t, rec, &got)
	assert.Equal(t, true, got["automatic_lod_adjust"])
	assert.InDelta(t, 28, got["target_fps"], 1e-9)
	assert.Contains(t, got["feedback_text"], "You can see objects of 1 meter up to")
}

func TestGetLODAngleUnits(t *testing.T) {
	f := newFixture(t)
	f.lod.SetLODAngleDeg(45)

	rec := f.do(t, http.MethodGet, "/api/lod?units=rad", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got lodResponse
	decode(t, rec, &got)
	assert.Equal(t, units.Radians, got.AngleUnits)
	testutil.AssertInDelta(t, "lod_angle", got.LODAngle, units.DegToRad(45), 1e-9)

	rec = f.do(t, http.MethodGet, "/api/lod", "")
	decode(t, rec, &got)
	assert.Equal(t, units.Degrees, got.AngleUnits)
	testutil.AssertInDelta(t, "lod_angle", got.LODAngle, 45, 1e-9)

	rec = f.do(t, http.MethodGet, "/api/lod?units=grad", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestPostLODUpdatesAndPersists(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/lod",
		`{"automatic_lod_adjust": false, "lod_angle_deg": 10, "world_detail_quality": 0.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	st := f.lod.State()
	assert.False(t, st.AutomaticLODAdjust)
	assert.InDelta(t, 10, st.LODAngleDeg(), 1e-9)
	assert.InDelta(t, 40, st.DesktopTargetFPS, 1e-9)

	auto, ok, err := f.store.GetBool(lod.SettingAutomaticLODAdjust)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, auto)
}

func TestPostLODHMDQuality(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/lod", `{"hmd_mode": true, "world_detail_quality": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 90, f.lod.State().HMDTargetFPS, 1e-9)
	assert.InDelta(t, 90, f.lod.TargetFPS(), 1e-9)
}

func TestPostLODBadBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/lod", `{"lod_angle_deg": "wide"}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = f.do(t, http.MethodPut, "/api/lod", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestRenderTimes(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/lod/render-times",
		`{"present_time": 16, "engine_run_time": 10, "batch_time": 13, "gpu_time": 12}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	st := f.lod.State()
	assert.Equal(t, 16.0, st.PresentTime)
	assert.Equal(t, 12.0, st.GPUTime)

	rec = f.do(t, http.MethodPost, "/api/lod/render-times", `{"present_time": -1}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestResetLOD(t *testing.T) {
	f := newFixture(t)
	f.lod.SetAutomaticLODAdjust(false)
	f.lod.SetLODAngleDeg(30)

	rec := f.do(t, http.MethodPost, "/api/lod/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, lod.DefaultLODHalfAngle(), f.lod.LODHalfAngle(), 1e-12)
}

func TestTraceEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/lod/chart", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "chart of an empty trace")
	rec = f.do(t, http.MethodGet, "/api/lod/summary", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "summary of an empty trace")

	f.addSamples(20)

	rec = f.do(t, http.MethodGet, "/api/lod/trace", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var trace struct {
		Session string       `json:"session"`
		Samples []lod.Sample `json:"samples"`
	}
	decode(t, rec, &trace)
	assert.Equal(t, f.trace.Session().String(), trace.Session)
	assert.Len(t, trace.Samples, 20)

	rec = f.do(t, http.MethodGet, "/api/lod/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary map[string]interface{}
	decode(t, rec, &summary)
	assert.EqualValues(t, 20, summary["samples"])

	rec = f.do(t, http.MethodGet, "/api/lod/chart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")

	rec = f.do(t, http.MethodGet, "/api/lod/plot.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = f.do(t, http.MethodPost, "/api/lod/trace/archive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	archived, err := f.store.LoadTrace(f.trace.Session())
	require.NoError(t, err)
	assert.Len(t, archived, 20)

	rec = f.do(t, http.MethodGet, "/api/lod/trace/archive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []string `json:"sessions"`
	}
	decode(t, rec, &list)
	assert.Equal(t, []string{f.trace.Session().String()}, list.Sessions)

	rec = f.do(t, http.MethodGet, "/api/lod/trace/archive?session="+f.trace.Session().String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one struct {
		Session string       `json:"session"`
		Samples []lod.Sample `json:"samples"`
	}
	decode(t, rec, &one)
	assert.Len(t, one.Samples, 20)

	rec = f.do(t, http.MethodGet, "/api/lod/trace/archive?session=nope", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	rec = f.do(t, http.MethodGet, "/api/lod/trace/archive?session=00000000-0000-0000-0000-000000000001", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
	rec = f.do(t, http.MethodPut, "/api/lod/trace/archive", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)

	rec = f.do(t, http.MethodDelete, "/api/lod/trace", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)
	assert.Equal(t, 0, f.trace.Len())
}

func TestTraceDisabled(t *testing.T) {
	s := NewServer(Options{LOD: lod.NewManager()})
	mux := s.ServeMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lod/trace", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connexion", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/input", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestConnexionEndpoint(t *testing.T) {
	f := newFixture(t)
	f.client.CheckAttached()

	rec := f.do(t, http.MethodGet, "/api/connexion", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st connexionStatus
	decode(t, rec, &st)
	assert.True(t, st.Attached)
	assert.True(t, st.Foreground)
	assert.Equal(t, connexion.DefaultParams(), st.Params)

	rec = f.do(t, http.MethodPost, "/api/connexion", `{"speed": "high", "rotate": false, "foreground": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, connexion.SpeedHigh, f.client.Params().Speed)
	assert.False(t, f.client.Params().Rotate)
	assert.True(t, f.client.Params().PanZoom)
	assert.False(t, f.client.Foreground())

	saved, err := f.store.LoadConnexionParams(connexion.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, f.client.Params(), saved)

	rec = f.do(t, http.MethodPost, "/api/connexion", `{"speed": "warp"}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestInputEndpoint(t *testing.T) {
	f := newFixture(t)
	f.client.CheckAttached()

	rec := f.do(t, http.MethodGet, "/api/input", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var states []input.DeviceState
	decode(t, rec, &states)
	require.Len(t, states, 1)
	assert.Equal(t, connexion.DeviceName, states[0].Name)
}

func TestTuningAndVersion(t *testing.T) {
	f := newFixture(t)

	cfg := config.DefaultTuningConfig()
	fps := 45.0
	cfg.DesktopTargetFPS = &fps
	f.server.SetTuning(cfg)

	rec := f.do(t, http.MethodGet, "/api/tuning", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.TuningConfig
	decode(t, rec, &got)
	assert.Equal(t, 45.0, got.GetDesktopTargetFPS())

	rec = f.do(t, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info version.Info
	decode(t, rec, &info)
	assert.Equal(t, version.Current(), info)
}

func TestStatusCodeColor(t *testing.T) {
	assert.Contains(t, statusCodeColor(200), "200")
	assert.True(t, strings.HasPrefix(statusCodeColor(201), colorBoldGreen))
	assert.True(t, strings.HasPrefix(statusCodeColor(302), colorYellow))
	assert.True(t, strings.HasPrefix(statusCodeColor(404), colorBoldRed))
	assert.True(t, strings.HasPrefix(statusCodeColor(503), colorBoldRed))
	assert.Equal(t, "101", statusCodeColor(101))
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Type, msg.Data
}

func TestLODStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	conn := dial(t, srv, "/api/lod/stream")
	typ, data := readMessage(t, conn)
	require.Equal(t, "lod", typ)
	var first lodResponse
	require.NoError(t, json.Unmarshal(data, &first))
	assert.True(t, first.AutomaticLODAdjust)

	f.lod.SetAutomaticLODAdjust(false)
	typ, data = readMessage(t, conn)
	require.Equal(t, "lod", typ)
	var next lodResponse
	require.NoError(t, json.Unmarshal(data, &next))
	assert.False(t, next.AutomaticLODAdjust)
}

// fullTranslation builds a 13-byte translation+rotation report.
func fullTranslation(x int16) []byte {
	b := make([]byte, 13)
	b[0] = 0x01
	b[1] = byte(uint16(x))
	b[2] = byte(uint16(x) >> 8)
	return b
}

func TestInputStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	conn := dial(t, srv, "/api/input/stream")
	typ, _ := readMessage(t, conn)
	require.Equal(t, "input", typ)

	f.client.HandleRawInput([]connexion.RawInput{{
		Handle:    1,
		VendorID:  connexion.Vendor3Dconnexion,
		ProductID: 0xc62e,
		Data:      fullTranslation(100),
	}})

	// The event and the changed snapshot may arrive in either order.
	seen := map[string]bool{}
	for i := 0; i < 4 && !(seen["event"] && seen["input"]); i++ {
		typ, _ := readMessage(t, conn)
		seen[typ] = true
	}
	assert.True(t, seen["event"], "expected a 3D mouse event")
	assert.True(t, seen["input"], "expected a changed mapper snapshot")
}
