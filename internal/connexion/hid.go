//go:build hid
// +build hid

package connexion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sstallion/go-hid"
)

// HID usage identifying a multi-axis controller.
const (
	UsagePageGenericDesktop uint16 = 0x01
	UsageMultiAxis          uint16 = 0x08
)

const (
	reportBufferSize = 64
	readTimeout      = 50 * time.Millisecond
)

var errStopEnumerate = errors.New("stop")

// IsMultiAxisController reports whether info describes a supported 3D mouse
// interface.
func IsMultiAxisController(info *hid.DeviceInfo) bool {
	return IsSupportedVendor(info.VendorID) &&
		info.UsagePage == UsagePageGenericDesktop &&
		info.Usage == UsageMultiAxis
}

// enumerate lists attached 3D mice sorted by path.
func enumerate() ([]hid.DeviceInfo, error) {
	var out []hid.DeviceInfo
	for _, vid := range []uint16{VendorLogitech, Vendor3Dconnexion} {
		err := hid.Enumerate(vid, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
			if IsMultiAxisController(info) {
				out = append(out, *info)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate vendor %04x: %w", vid, err)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// HIDProber detects attached 3D mice through hidapi enumeration.
type HIDProber struct{}

func (HIDProber) Attached() bool {
	found := false
	for _, vid := range []uint16{VendorLogitech, Vendor3Dconnexion} {
		_ = hid.Enumerate(vid, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
			if IsMultiAxisController(info) {
				found = true
				return errStopEnumerate
			}
			return nil
		})
		if found {
			return true
		}
	}
	return false
}

// HIDSource reads reports from every attached 3D mouse through hidapi,
// opening devices as they appear.
type HIDSource struct {
	hotplugInterval time.Duration

	mu      sync.Mutex
	handles map[string]Handle
	nextH   Handle
}

// NewHIDSource initializes hidapi. Callers continue without a 3D mouse if
// this fails.
func NewHIDSource(hotplugInterval time.Duration) (*HIDSource, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize hidapi: %w", err)
	}
	if hotplugInterval <= 0 {
		hotplugInterval = time.Second
	}
	return &HIDSource{
		hotplugInterval: hotplugInterval,
		handles:         make(map[string]Handle),
		nextH:           1,
	}, nil
}

// Close releases hidapi.
func (s *HIDSource) Close() error {
	return hid.Exit()
}

func (s *HIDSource) handleFor(path string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[path]
	if !ok {
		h = s.nextH
		s.nextH++
		s.handles[path] = h
	}
	return h
}

// Run opens attached devices and delivers one batch per report until ctx
// is done. Devices are rescanned every hotplug interval.
func (s *HIDSource) Run(ctx context.Context, deliver func([]RawInput)) error {
	var mu sync.Mutex
	var wg sync.WaitGroup
	open := make(map[string]context.CancelFunc)
	batches := make(chan []RawInput, 16)

	scan := func() {
		infos, err := enumerate()
		if err != nil {
			logf("%v", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, info := range infos {
			if _, ok := open[info.Path]; ok {
				continue
			}
			dev, err := hid.OpenPath(info.Path)
			if err != nil {
				logf("failed to open %s: %v", info.Path, err)
				continue
			}
			devCtx, cancel := context.WithCancel(ctx)
			open[info.Path] = cancel
			wg.Add(1)
			go func(info hid.DeviceInfo, dev *hid.Device) {
				defer wg.Done()
				defer dev.Close()
				s.readLoop(devCtx, dev, info, batches)
				mu.Lock()
				delete(open, info.Path)
				mu.Unlock()
			}(info, dev)
			logf("opened %04x:%04x at %s", info.VendorID, info.ProductID, info.Path)
		}
	}

	scan()
	ticker := time.NewTicker(s.hotplugInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, cancel := range open {
				cancel()
			}
			mu.Unlock()
			wg.Wait()
			return nil
		case <-ticker.C:
			scan()
			// Drive hotplug checks and aging while no device is streaming.
			deliver(nil)
		case batch := <-batches:
			deliver(batch)
		}
	}
}

func (s *HIDSource) readLoop(ctx context.Context, dev *hid.Device, info hid.DeviceInfo, out chan<- []RawInput) {
	h := s.handleFor(info.Path)
	buf := make([]byte, reportBufferSize)
	for ctx.Err() == nil {
		n, err := dev.ReadWithTimeout(buf, readTimeout)
		if errors.Is(err, hid.ErrTimeout) {
			continue
		}
		if err != nil {
			logf("read %s: %v", info.Path, err)
			return
		}
		if n == 0 {
			continue
		}
		in := RawInput{
			Handle:    h,
			VendorID:  info.VendorID,
			ProductID: info.ProductID,
			Data:      append([]byte(nil), buf[:n]...),
		}
		select {
		case out <- []RawInput{in}:
		case <-ctx.Done():
			return
		}
	}
}
