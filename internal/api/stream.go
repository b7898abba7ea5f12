package api

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openworld-xr/interface/internal/lod"
	"github.com/openworld-xr/interface/internal/monitoring"
	"github.com/openworld-xr/interface/internal/units"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

// hub fans device events out to websocket connections. Slow connections
// drop events rather than stall the decoder.
type hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan interface{}
}

func newHub() *hub {
	return &hub{subs: make(map[uuid.UUID]chan interface{})}
}

func (h *hub) subscribe() (uuid.UUID, <-chan interface{}) {
	id := uuid.New()
	ch := make(chan interface{}, 64)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *hub) unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *hub) publish(v interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// streamMessage is the envelope of every websocket frame.
type streamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// readPump discards client frames and closes done when the peer goes away.
func readPump(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

func writeMessage(conn *websocket.Conn, typ string, data interface{}) error {
	payload, err := json.Marshal(streamMessage{Type: typ, Data: data})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// handleLODStream sends the regulator snapshot on connect and after every
// change.
func (s *Server) handleLODStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates := make(chan lod.Snapshot, 16)
	cancel := s.lod.Subscribe(func(snap lod.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})
	defer cancel()

	if err := writeMessage(conn, "lod", s.lodResponse(units.Degrees)); err != nil {
		return
	}

	done := readPump(conn)
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case snap := <-updates:
			if err := writeMessage(conn, "lod", s.snapshotResponse(snap, units.Degrees)); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleInputStream sends the mapper snapshot whenever it changes, plus
// every 3D mouse event as it happens.
func (s *Server) handleInputStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, events := s.events.subscribe()
	defer s.events.unsubscribe(id)

	last := s.mapper.Snapshot()
	if err := writeMessage(conn, "input", last); err != nil {
		return
	}

	done := readPump(conn)
	poll := time.NewTicker(s.streamInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			if err := writeMessage(conn, "event", ev); err != nil {
				return
			}
		case <-poll.C:
			snap := s.mapper.Snapshot()
			if reflect.DeepEqual(snap, last) {
				continue
			}
			last = snap
			if err := writeMessage(conn, "input", snap); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
