package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/openworld-xr/interface/internal/capture"
	"github.com/openworld-xr/interface/internal/connexion"
	"github.com/openworld-xr/interface/internal/serialmux"
)

// sourceConfig selects where raw 3D mouse reports come from. At most one
// of HID, SerialBridge and PCAP may be set.
type sourceConfig struct {
	HID             bool
	HotplugInterval time.Duration

	SerialBridge string
	SerialOpts   serialmux.PortOptions

	PCAP      string
	PCAPSpeed float64
	PCAPVID   uint16
	PCAPPID   uint16
}

var errConflictingSources = errors.New("choose at most one of -hid, -serial-bridge and -pcap")

// errHIDUnavailable marks a hidapi initialization failure. The daemon keeps
// running without a 3D mouse.
var errHIDUnavailable = errors.New("hidapi unavailable")

func (c sourceConfig) validate() error {
	n := 0
	if c.HID {
		n++
	}
	if c.SerialBridge != "" {
		n++
	}
	if c.PCAP != "" {
		n++
	}
	if n > 1 {
		return errConflictingSources
	}
	return nil
}

// inputSource is an opened report source with everything the daemon needs
// to run and tear it down.
type inputSource struct {
	source connexion.Source
	prober connexion.Prober
	// run, when set, is a background loop the source depends on.
	run         func(ctx context.Context) error
	adminRoutes func(mux *http.ServeMux)
	close       func() error
}

// openSource opens the configured source. It returns nil when no source is
// configured.
func openSource(c sourceConfig) (*inputSource, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	switch {
	case c.HID:
		src, err := connexion.NewHIDSource(c.HotplugInterval)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errHIDUnavailable, err)
		}
		return &inputSource{
			source: src,
			prober: connexion.HIDProber{},
			close:  src.Close,
		}, nil

	case c.SerialBridge != "":
		mux, err := serialmux.OpenSerialMux(c.SerialBridge, c.SerialOpts)
		if err != nil {
			return nil, err
		}
		if err := mux.Initialize(); err != nil {
			mux.Close()
			return nil, fmt.Errorf("failed to initialize HID bridge: %w", err)
		}
		log.Printf("HID bridge on %s initialized", c.SerialBridge)
		bridge := serialmux.NewBridge(mux)
		return &inputSource{
			source:      bridge,
			prober:      bridge,
			run:         mux.Monitor,
			adminRoutes: mux.AttachAdminRoutes,
			close:       mux.Close,
		}, nil

	case c.PCAP != "":
		replay := capture.NewReplay(c.PCAP, capture.Config{
			VendorID:        c.PCAPVID,
			ProductID:       c.PCAPPID,
			SpeedMultiplier: c.PCAPSpeed,
		})
		return &inputSource{
			source: replay,
			prober: replay,
			close:  func() error { return nil },
		}, nil
	}
	return nil, nil
}
