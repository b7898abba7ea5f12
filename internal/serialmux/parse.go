package serialmux

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/openworld-xr/interface/internal/connexion"
)

// Line types emitted by the bridge.
const (
	EventTypeReport  = "report"
	EventTypeAttach  = "attach"
	EventTypeDetach  = "detach"
	EventTypeStatus  = "status"
	EventTypeUnknown = "unknown"
)

// ClassifyPayload returns the event type of a bridge line.
func ClassifyPayload(payload string) string {
	p := strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(p, "R "):
		return EventTypeReport
	case strings.HasPrefix(p, "A "):
		return EventTypeAttach
	case strings.HasPrefix(p, "D "):
		return EventTypeDetach
	case strings.HasPrefix(p, "{"):
		return EventTypeStatus
	}
	return EventTypeUnknown
}

func parseHandle(s string) (connexion.Handle, error) {
	h, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid handle %q: %w", s, err)
	}
	return connexion.Handle(h), nil
}

// ParseDeviceID parses a hex "vid:pid" pair.
func ParseDeviceID(s string) (vid, pid uint16, err error) {
	v, p, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid device id %q: expected vid:pid", s)
	}
	vv, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vendor id %q: %w", v, err)
	}
	pp, err := strconv.ParseUint(p, 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product id %q: %w", p, err)
	}
	return uint16(vv), uint16(pp), nil
}

// ParseReport parses "R <handle> <vid>:<pid> <hex>".
func ParseReport(line string) (connexion.RawInput, error) {
	f := strings.Fields(line)
	if len(f) != 4 || f[0] != "R" {
		return connexion.RawInput{}, fmt.Errorf("malformed report line %q", line)
	}
	h, err := parseHandle(f[1])
	if err != nil {
		return connexion.RawInput{}, err
	}
	vid, pid, err := ParseDeviceID(f[2])
	if err != nil {
		return connexion.RawInput{}, err
	}
	data, err := hex.DecodeString(f[3])
	if err != nil {
		return connexion.RawInput{}, fmt.Errorf("invalid report payload: %w", err)
	}
	return connexion.RawInput{Handle: h, VendorID: vid, ProductID: pid, Data: data}, nil
}

// ParseAttach parses "A <handle> <vid>:<pid>".
func ParseAttach(line string) (h connexion.Handle, vid, pid uint16, err error) {
	f := strings.Fields(line)
	if len(f) != 3 || f[0] != "A" {
		return 0, 0, 0, fmt.Errorf("malformed attach line %q", line)
	}
	if h, err = parseHandle(f[1]); err != nil {
		return 0, 0, 0, err
	}
	vid, pid, err = ParseDeviceID(f[2])
	return h, vid, pid, err
}

// ParseDetach parses "D <handle>".
func ParseDetach(line string) (connexion.Handle, error) {
	f := strings.Fields(line)
	if len(f) != 2 || f[0] != "D" {
		return 0, fmt.Errorf("malformed detach line %q", line)
	}
	return parseHandle(f[1])
}

// FormatReport renders in as a report line. It is the inverse of ParseReport.
func FormatReport(in connexion.RawInput) string {
	return fmt.Sprintf("R %d %04x:%04x %s", in.Handle, in.VendorID, in.ProductID, hex.EncodeToString(in.Data))
}
