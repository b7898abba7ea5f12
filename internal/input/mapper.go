// Package input keeps the registry of input devices and exposes their
// channels by name.
package input

import (
	"sort"
	"sync"
)

// DeviceID identifies a registered device. Zero is never assigned.
type DeviceID uint16

// InvalidDevice is the ID of a device that is not registered.
const InvalidDevice DeviceID = 0

// Kind distinguishes digital buttons from analog axes.
type Kind string

const (
	KindButton Kind = "button"
	KindAxis   Kind = "axis"
)

// Input describes one named channel of a device.
type Input struct {
	Channel int    `json:"channel"`
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
}

// Device is implemented by anything that can be registered with a Mapper.
type Device interface {
	Name() string
	Inputs() []Input
	// Value returns the current value of channel: 0 or 1 for buttons and
	// [0, 1] for axes. Unknown channels read as 0.
	Value(channel int) float64
}

// DeviceState is the published view of one device.
type DeviceState struct {
	ID     DeviceID           `json:"id"`
	Name   string             `json:"name"`
	Values map[string]float64 `json:"values"`
}

// Mapper is a registry of devices keyed by DeviceID.
type Mapper struct {
	mu      sync.RWMutex
	nextID  DeviceID
	devices map[DeviceID]Device
}

func NewMapper() *Mapper {
	return &Mapper{nextID: 1, devices: make(map[DeviceID]Device)}
}

// RegisterDevice adds d and returns its new ID.
func (m *Mapper) RegisterDevice(d Device) DeviceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	for {
		if _, taken := m.devices[id]; !taken && id != InvalidDevice {
			break
		}
		id++
	}
	m.nextID = id + 1
	m.devices[id] = d
	return id
}

// RemoveDevice unregisters id. Removing an unknown ID is a no-op.
func (m *Mapper) RemoveDevice(id DeviceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
}

func (m *Mapper) Device(id DeviceID) (Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	return d, ok
}

// Devices returns the registered IDs in ascending order.
func (m *Mapper) Devices() []DeviceID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]DeviceID, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Value looks up the channel called name on device id.
func (m *Mapper) Value(id DeviceID, name string) (float64, bool) {
	d, ok := m.Device(id)
	if !ok {
		return 0, false
	}
	for _, in := range d.Inputs() {
		if in.Name == name {
			return d.Value(in.Channel), true
		}
	}
	return 0, false
}

// Snapshot returns the current values of every registered device.
func (m *Mapper) Snapshot() []DeviceState {
	ids := m.Devices()
	out := make([]DeviceState, 0, len(ids))
	for _, id := range ids {
		d, ok := m.Device(id)
		if !ok {
			continue
		}
		st := DeviceState{ID: id, Name: d.Name(), Values: make(map[string]float64)}
		for _, in := range d.Inputs() {
			st.Values[in.Name] = d.Value(in.Channel)
		}
		out = append(out, st)
	}
	return out
}
