package api

import (
	"fmt"
	"net/http"

	"github.com/openworld-xr/interface/internal/connexion"
	"github.com/openworld-xr/interface/internal/httputil"
	"github.com/openworld-xr/interface/internal/input"
	"github.com/openworld-xr/interface/internal/monitoring"
)

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.mapper.Snapshot())
}

type connexionStatus struct {
	Attached   bool             `json:"attached"`
	Foreground bool             `json:"foreground"`
	Params     connexion.Params `json:"params"`
	Position   connexion.Motion `json:"position"`
}

// connexionUpdate is the body of POST /api/connexion. Absent fields are left
// alone.
type connexionUpdate struct {
	Speed      *connexion.Speed `json:"speed"`
	PanZoom    *bool            `json:"pan_zoom"`
	Rotate     *bool            `json:"rotate"`
	Foreground *bool            `json:"foreground"`
}

func (s *Server) connexionStatus() connexionStatus {
	d := s.client.Device()
	return connexionStatus{
		Attached:   d.ID() != input.InvalidDevice,
		Foreground: s.client.Foreground(),
		Params:     s.client.Params(),
		Position:   d.Position(),
	}
}

func (s *Server) handleConnexion(w http.ResponseWriter, r *http.Request) {
	if s.client == nil {
		httputil.NotFound(w, "no 3D mouse source configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.connexionStatus())
	case http.MethodPost:
		var u connexionUpdate
		if err := httputil.DecodeJSON(r, &u); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid body: %v", err))
			return
		}
		p := s.client.Params()
		if u.Speed != nil {
			p.Speed = *u.Speed
		}
		if u.PanZoom != nil {
			p.PanZoom = *u.PanZoom
		}
		if u.Rotate != nil {
			p.Rotate = *u.Rotate
		}
		s.client.SetParams(p)
		if u.Foreground != nil {
			s.client.SetForeground(*u.Foreground)
		}
		s.saveConnexionParams(p)
		httputil.WriteJSONOK(w, s.connexionStatus())
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) saveConnexionParams(p connexion.Params) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveConnexionParams(p); err != nil {
		monitoring.Logf("api: failed to save 3D mouse params: %v", err)
	}
}
