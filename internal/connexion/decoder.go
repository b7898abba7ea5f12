// Package connexion decodes raw HID reports from 3Dconnexion 3D mice into
// 6-DOF motion and button events.
package connexion

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/openworld-xr/interface/internal/config"
	"github.com/openworld-xr/interface/internal/timeutil"
)

// Report IDs of the 3D mouse HID protocol.
const (
	ReportTranslation byte = 0x01
	ReportRotation    byte = 0x02
	ReportKeystate    byte = 0x03
)

// highSpeedReportLen is the minimum size of a 0x01 report that carries
// rotation as well as translation.
const highSpeedReportLen = 13

const (
	firstElapsedMs = 10
	minElapsedMs   = 1
	maxElapsedMs   = 500
)

// Handle identifies a raw input device. Values are opaque.
type Handle uint64

// RawInput is one raw HID report.
type RawInput struct {
	Handle    Handle
	VendorID  uint16
	ProductID uint16
	Data      []byte
}

// Motion is a 6-DOF vector: translation X, Y, Z then rotation X, Y, Z.
type Motion [6]float64

// IsZero reports whether every component is exactly zero.
func (m Motion) IsZero() bool {
	return m == Motion{}
}

// Handler receives decoded events.
type Handler interface {
	Move3d(h Handle, m Motion)
	KeyDown(h Handle, k VirtualKey)
	KeyUp(h Handle, k VirtualKey)
}

type cacheEntry struct {
	timeToLive int
	dirty      bool
	axes       Motion
}

// Decoder holds per-device axis caches and key states. It is not safe for
// concurrent use; Client serializes access.
type Decoder struct {
	handler Handler
	clock   timeutil.Clock
	params  Params
	tuning  config.ConnexionTuning

	cache     map[Handle]*cacheEntry
	keystates map[Handle]uint32

	last    time.Time
	running bool
}

// NewDecoder returns a Decoder dispatching to h.
func NewDecoder(h Handler, clock timeutil.Clock, tuning config.ConnexionTuning) *Decoder {
	return &Decoder{
		handler:   h,
		clock:     clock,
		params:    DefaultParams(),
		tuning:    tuning,
		cache:     make(map[Handle]*cacheEntry),
		keystates: make(map[Handle]uint32),
	}
}

func (d *Decoder) SetParams(p Params)                 { d.params = p }
func (d *Decoder) Params() Params                     { return d.params }
func (d *Decoder) SetTuning(t config.ConnexionTuning) { d.tuning = t }
func (d *Decoder) CacheLen() int                      { return len(d.cache) }

// CachedAxes returns the raw cached axes of h.
func (d *Decoder) CachedAxes(h Handle) (Motion, bool) {
	e, ok := d.cache[h]
	if !ok {
		return Motion{}, false
	}
	return e.axes, true
}

// Keystate returns the last non-zero button bitmask of h.
func (d *Decoder) Keystate(h Handle) (uint32, bool) {
	ks, ok := d.keystates[h]
	return ks, ok
}

func (d *Decoder) entry(h Handle) *cacheEntry {
	e, ok := d.cache[h]
	if !ok {
		e = &cacheEntry{}
		d.cache[h] = e
	}
	return e
}

func readAxes(dst []float64, src []byte) {
	for i := range dst {
		dst[i] = float64(int16(binary.LittleEndian.Uint16(src[2*i:])))
	}
}

// TranslateRawInput decodes one report. It returns true when the report
// completed a motion sample that the next aging pass should dispatch.
// Truncated reports and unknown vendors are ignored.
func (d *Decoder) TranslateRawInput(in RawInput, foreground bool) bool {
	if len(in.Data) == 0 || !IsSupportedVendor(in.VendorID) {
		return false
	}

	switch in.Data[0] {
	case ReportTranslation:
		if len(in.Data) < 7 {
			return false
		}
		e := d.entry(in.Handle)
		e.timeToLive = d.tuning.TimeToLive
		if !foreground {
			e.axes = Motion{}
			return false
		}
		readAxes(e.axes[0:3], in.Data[1:7])
		if len(in.Data) >= highSpeedReportLen {
			readAxes(e.axes[3:6], in.Data[7:13])
			e.dirty = true
			return true
		}

	case ReportRotation:
		// Background rotation was already zeroed with the translation.
		if !foreground || len(in.Data) < 7 {
			return false
		}
		e := d.entry(in.Handle)
		readAxes(e.axes[3:6], in.Data[1:7])
		e.dirty = true
		return true

	case ReportKeystate:
		if len(in.Data) < 5 {
			return false
		}
		keystate := binary.LittleEndian.Uint32(in.Data[1:5])
		old := d.keystates[in.Handle]
		if keystate != 0 {
			d.keystates[in.Handle] = keystate
		} else {
			delete(d.keystates, in.Handle)
		}
		if !foreground {
			return false
		}
		change := keystate ^ old
		for code := 1; code <= 32; code++ {
			bit := uint32(1) << (code - 1)
			if change&bit == 0 {
				continue
			}
			key := HidToVirtualKey(in.ProductID, code)
			if key == KeyInvalid {
				continue
			}
			if keystate&bit != 0 {
				d.handler.KeyDown(in.Handle, key)
			} else {
				d.handler.KeyUp(in.Handle, key)
			}
		}
	}
	return false
}

func (d *Decoder) elapsedMs(now time.Time) float64 {
	if !d.running {
		return firstElapsedMs
	}
	ms := float64(now.Sub(d.last)) / float64(time.Millisecond)
	if ms < 0 {
		ms = -ms
	}
	switch {
	case ms < minElapsedMs:
		return minElapsedMs
	case ms > maxElapsedMs:
		return maxElapsedMs
	}
	return ms
}

// Scale converts raw axis counts held for elapsedMs into a displacement,
// applying the user filters and sensitivity.
func (d *Decoder) Scale(raw Motion, elapsedMs float64) Motion {
	m := raw
	if !d.params.PanZoom {
		m[0], m[1], m[2] = 0, 0, 0
	}
	if !d.params.Rotate {
		m[3], m[4], m[5] = 0, 0, 0
	}
	speed := d.params.Speed.Multiplier()
	for i := range m {
		scale := d.tuning.LinearScale
		if i >= 3 {
			scale = d.tuning.AngularScale
		}
		m[i] *= speed * scale * elapsedMs
	}
	return m
}

// On3dmouseInput ages the cache and dispatches motion for every device with
// fresh or expired data. It returns the number of Move3d calls made.
func (d *Decoder) On3dmouseInput(foreground bool) int {
	if !foreground {
		for _, e := range d.cache {
			e.axes = Motion{}
			e.dirty = true
		}
	}

	now := d.clock.Now()
	elapsed := d.elapsedMs(now)

	handles := make([]Handle, 0, len(d.cache))
	for h := range d.cache {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	dispatched := 0
	for _, h := range handles {
		// Move3d may re-enter the decoder and change the cache.
		e, ok := d.cache[h]
		if !ok {
			continue
		}
		e.timeToLive--
		if e.timeToLive <= 0 {
			e.axes = Motion{}
		} else if !e.dirty {
			continue
		}
		e.dirty = false

		motion := d.Scale(e.axes, elapsed)
		if e.axes.IsZero() {
			delete(d.cache, h)
		}
		d.handler.Move3d(h, motion)
		dispatched++
	}

	if len(d.cache) > 0 {
		d.last = now
		d.running = true
	} else {
		d.running = false
	}
	return dispatched
}
