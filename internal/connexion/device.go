package connexion

import (
	"math"
	"sync"

	"github.com/openworld-xr/interface/internal/input"
)

// DeviceName is the name the device proxy registers under.
const DeviceName = "Connexion"

// Button channels. Button codes reported by the driver are stored as-is, so
// code 3 reads as both buttons held.
const (
	ButtonLeft  = 1
	ButtonRight = 2
	ButtonBoth  = 3
)

// Axis channels are sign-split: each axis has a positive and a negative
// channel in [0, 1]. They are negative so that no button code or driver
// bitmask can collide with them.
const (
	ChannelTranslateX = math.MinInt32 + iota
	ChannelTranslateXNeg
	ChannelTranslateY
	ChannelTranslateYNeg
	ChannelTranslateZ
	ChannelTranslateZNeg
	ChannelRotateX
	ChannelRotateXNeg
	ChannelRotateY
	ChannelRotateYNeg
	ChannelRotateZ
	ChannelRotateZNeg
)

var axisNames = [6]string{"TranslateX", "TranslateY", "TranslateZ", "RotateX", "RotateY", "RotateZ"}

// Device is the proxy registered with the input mapper. It holds the most
// recent motion normalized per axis and the most recent button chord.
type Device struct {
	mu sync.RWMutex

	id          input.DeviceID
	maxAxisTick float64
	position    Motion
	axisState   map[int]float64
	chord       int

	onEvent func(Event)
}

// Event is published on every state change for live streaming.
type Event struct {
	Type   string             `json:"type"` // "motion" or "button"
	Button int                `json:"button,omitempty"`
	Key    string             `json:"key,omitempty"`
	Axes   map[string]float64 `json:"axes,omitempty"`
}

// NewDevice returns a proxy normalizing displacements by maxAxisTick.
func NewDevice(maxAxisTick float64) *Device {
	if maxAxisTick <= 0 {
		maxAxisTick = 1
	}
	return &Device{
		maxAxisTick: maxAxisTick,
		axisState:   make(map[int]float64),
	}
}

// OnEvent installs a callback for state changes. Pass nil to remove it.
func (d *Device) OnEvent(fn func(Event)) {
	d.mu.Lock()
	d.onEvent = fn
	d.mu.Unlock()
}

func (d *Device) emit(ev Event) {
	d.mu.RLock()
	fn := d.onEvent
	d.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

func (d *Device) ID() input.DeviceID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.id
}

func (d *Device) setID(id input.DeviceID) {
	d.mu.Lock()
	d.id = id
	d.mu.Unlock()
}

func (d *Device) SetMaxAxisTick(v float64) {
	if v <= 0 {
		return
	}
	d.mu.Lock()
	d.maxAxisTick = v
	d.mu.Unlock()
}

func (d *Device) Name() string { return DeviceName }

// Inputs lists the button and sign-split axis channels.
func (d *Device) Inputs() []input.Input {
	ins := []input.Input{
		{Channel: ButtonLeft, Name: "LeftButton", Kind: input.KindButton},
		{Channel: ButtonRight, Name: "RightButton", Kind: input.KindButton},
		{Channel: ButtonBoth, Name: "BothButtons", Kind: input.KindButton},
	}
	for i, name := range axisNames {
		ins = append(ins,
			input.Input{Channel: ChannelTranslateX + 2*i, Name: name, Kind: input.KindAxis},
			input.Input{Channel: ChannelTranslateX + 2*i + 1, Name: name + "Neg", Kind: input.KindAxis},
		)
	}
	return ins
}

// Value returns a button (0 or 1) or a sign-split axis in [0, 1].
func (d *Device) Value(channel int) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if channel < 0 {
		return d.axisState[channel]
	}
	if d.chord != 0 && channel == d.chord {
		return 1
	}
	return 0
}

// Axis returns the signed normalized value of axis i in [-1, 1].
func (d *Device) Axis(i int) float64 {
	if i < 0 || i >= len(axisNames) {
		return 0
	}
	return d.Value(ChannelTranslateX+2*i) - d.Value(ChannelTranslateX+2*i+1)
}

// Position returns the last displacement passed to Move3d.
func (d *Device) Position() Motion {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.position
}

// Move3d stores a displacement and recomputes the axis channels.
func (d *Device) Move3d(_ Handle, m Motion) {
	d.mu.Lock()
	d.position = m
	axes := make(map[string]float64, len(axisNames))
	for i, v := range m {
		n := math.Max(-1, math.Min(1, v/d.maxAxisTick))
		pos, neg := 0.0, 0.0
		if n > 0 {
			pos = n
		} else if n < 0 {
			neg = -n
		}
		d.axisState[ChannelTranslateX+2*i] = pos
		d.axisState[ChannelTranslateX+2*i+1] = neg
		axes[axisNames[i]] = n
	}
	d.mu.Unlock()
	d.emit(Event{Type: "motion", Axes: axes})
}

// SetButton replaces the pressed chord with code. Zero clears it.
func (d *Device) SetButton(code int) {
	d.mu.Lock()
	d.chord = code
	d.mu.Unlock()
	d.emit(Event{Type: "button", Button: code})
}

func (d *Device) KeyDown(_ Handle, k VirtualKey) {
	d.SetButton(int(k))
}

func (d *Device) KeyUp(_ Handle, _ VirtualKey) {
	d.SetButton(0)
}

// HandleDriverState applies a state update from a driver that reports
// displacement and a button bitmask directly.
func (d *Device) HandleDriverState(m Motion, buttons uint32) {
	d.Move3d(0, m)
	d.SetButton(int(buttons))
}

// Reset zeroes all channels.
func (d *Device) Reset() {
	d.mu.Lock()
	d.position = Motion{}
	clear(d.axisState)
	d.chord = 0
	d.mu.Unlock()
}
