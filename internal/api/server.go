// Package api serves the LOD regulator and input state over HTTP.
package api

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openworld-xr/interface/internal/config"
	"github.com/openworld-xr/interface/internal/connexion"
	"github.com/openworld-xr/interface/internal/httputil"
	"github.com/openworld-xr/interface/internal/input"
	"github.com/openworld-xr/interface/internal/lod"
	"github.com/openworld-xr/interface/internal/settings"
	"github.com/openworld-xr/interface/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultStreamInterval is how often /api/input/stream polls the mapper.
const DefaultStreamInterval = 50 * time.Millisecond

// Options wires a Server to the running daemon. Client and Store may be nil.
type Options struct {
	LOD    *lod.Manager
	Trace  *lod.Trace
	Mapper *input.Mapper
	Client *connexion.Client
	Store  *settings.Store

	StreamInterval time.Duration
}

type Server struct {
	lod    *lod.Manager
	trace  *lod.Trace
	mapper *input.Mapper
	client *connexion.Client
	store  *settings.Store

	tuning         atomic.Pointer[config.TuningConfig]
	events         *hub
	streamInterval time.Duration
	upgrader       websocket.Upgrader
}

func NewServer(opts Options) *Server {
	s := &Server{
		lod:            opts.LOD,
		trace:          opts.Trace,
		mapper:         opts.Mapper,
		client:         opts.Client,
		store:          opts.Store,
		events:         newHub(),
		streamInterval: opts.StreamInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if s.streamInterval <= 0 {
		s.streamInterval = DefaultStreamInterval
	}
	if s.mapper == nil {
		s.mapper = input.NewMapper()
	}
	if s.client != nil {
		s.client.Device().OnEvent(func(ev connexion.Event) { s.events.publish(ev) })
	}
	s.tuning.Store(config.DefaultTuningConfig())
	return s
}

// SetTuning replaces the tuning file contents reported by /api/tuning.
func (s *Server) SetTuning(cfg *config.TuningConfig) {
	if cfg != nil {
		s.tuning.Store(cfg)
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets websocket upgrades pass through the middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/lod", s.handleLOD)
	mux.HandleFunc("/api/lod/render-times", s.handleRenderTimes)
	mux.HandleFunc("/api/lod/reset", s.handleLODReset)
	mux.HandleFunc("/api/lod/trace", s.handleTrace)
	mux.HandleFunc("/api/lod/trace/archive", s.handleTraceArchive)
	mux.HandleFunc("/api/lod/summary", s.handleSummary)
	mux.HandleFunc("/api/lod/chart", s.handleChart)
	mux.HandleFunc("/api/lod/plot.png", s.handlePlot)
	mux.HandleFunc("/api/lod/stream", s.handleLODStream)
	mux.HandleFunc("/api/input", s.handleInput)
	mux.HandleFunc("/api/input/stream", s.handleInputStream)
	mux.HandleFunc("/api/connexion", s.handleConnexion)
	mux.HandleFunc("/api/tuning", s.handleTuning)
	mux.HandleFunc("/api/version", s.handleVersion)
	return mux
}

func (s *Server) handleTuning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.tuning.Load())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Current())
}
