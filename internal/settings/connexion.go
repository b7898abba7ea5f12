package settings

import (
	"errors"
	"fmt"

	"github.com/openworld-xr/interface/internal/connexion"
)

const (
	SettingConnexionSpeed   = "connexion/speed"
	SettingConnexionPanZoom = "connexion/panZoom"
	SettingConnexionRotate  = "connexion/rotate"
)

// LoadConnexionParams overlays stored navigation preferences on def.
func (s *Store) LoadConnexionParams(def connexion.Params) (connexion.Params, error) {
	p := def

	raw, err := s.Get(SettingConnexionSpeed)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return def, err
	default:
		if err := p.Speed.UnmarshalText([]byte(raw)); err != nil {
			return def, fmt.Errorf("invalid %s: %w", SettingConnexionSpeed, err)
		}
	}

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{SettingConnexionPanZoom, &p.PanZoom},
		{SettingConnexionRotate, &p.Rotate},
	} {
		v, ok, err := s.GetBool(b.key)
		if err != nil {
			return def, err
		}
		if ok {
			*b.dst = v
		}
	}
	return p, nil
}

func (s *Store) SaveConnexionParams(p connexion.Params) error {
	if err := s.Set(SettingConnexionSpeed, p.Speed.String()); err != nil {
		return err
	}
	if err := s.SetBool(SettingConnexionPanZoom, p.PanZoom); err != nil {
		return err
	}
	return s.SetBool(SettingConnexionRotate, p.Rotate)
}
