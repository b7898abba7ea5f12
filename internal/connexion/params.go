package connexion

import (
	"fmt"
	"strings"
)

// Speed is the user's sensitivity tier.
type Speed int

const (
	SpeedLow Speed = iota
	SpeedMid
	SpeedHigh
)

// Multiplier returns the sensitivity factor of the tier.
func (s Speed) Multiplier() float64 {
	switch s {
	case SpeedLow:
		return 0.25
	case SpeedHigh:
		return 4
	default:
		return 1
	}
}

func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "low"
	case SpeedHigh:
		return "high"
	default:
		return "mid"
	}
}

// ParseSpeed parses "low", "mid" or "high".
func ParseSpeed(s string) (Speed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SpeedLow, nil
	case "mid", "":
		return SpeedMid, nil
	case "high":
		return SpeedHigh, nil
	}
	return SpeedMid, fmt.Errorf("unknown speed %q", s)
}

func (s Speed) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Speed) UnmarshalText(b []byte) error {
	v, err := ParseSpeed(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Params are the user navigation preferences applied during aging.
type Params struct {
	Speed   Speed `json:"speed"`
	PanZoom bool  `json:"pan_zoom"`
	Rotate  bool  `json:"rotate"`
}

// DefaultParams enables all axes at mid speed.
func DefaultParams() Params {
	return Params{Speed: SpeedMid, PanZoom: true, Rotate: true}
}
