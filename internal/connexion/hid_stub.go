//go:build !hid
// +build !hid

package connexion

import (
	"context"
	"errors"
	"time"
)

// ErrHIDDisabled is returned by NewHIDSource when hidapi support is not
// compiled in. Build with -tags=hid to enable it.
var ErrHIDDisabled = errors.New("hidapi support not enabled: rebuild with -tags=hid")

// HIDProber never finds a device when hidapi support is disabled.
type HIDProber struct{}

func (HIDProber) Attached() bool { return false }

// HIDSource is a stub when hidapi support is disabled.
type HIDSource struct{}

// NewHIDSource always fails without hidapi support.
func NewHIDSource(time.Duration) (*HIDSource, error) {
	return nil, ErrHIDDisabled
}

func (s *HIDSource) Close() error { return nil }

func (s *HIDSource) Run(_ context.Context, _ func([]RawInput)) error {
	return ErrHIDDisabled
}
