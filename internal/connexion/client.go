package connexion

import (
	"context"
	"sync"

	"github.com/openworld-xr/interface/internal/config"
	"github.com/openworld-xr/interface/internal/input"
	"github.com/openworld-xr/interface/internal/monitoring"
	"github.com/openworld-xr/interface/internal/timeutil"
)

// driverTickMs is the frame length assumed for driver callbacks that report
// absolute axis state rather than a report stream.
const driverTickMs = 16

// Prober reports whether a supported 3D mouse is attached.
type Prober interface {
	Attached() bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func() bool

func (f ProberFunc) Attached() bool { return f() }

// Source delivers batches of raw reports until ctx is done.
type Source interface {
	Run(ctx context.Context, deliver func([]RawInput)) error
}

var logf = monitoring.Prefixed("connexion")

// Client owns the decoder and the device proxy and keeps the proxy's
// registration with the input mapper in step with device attachment.
type Client struct {
	mu         sync.Mutex
	decoder    *Decoder
	device     *Device
	mapper     *input.Mapper
	prober     Prober
	foreground bool
}

// NewClient returns a Client in the foreground with params from tuning.
func NewClient(mapper *input.Mapper, prober Prober, clock timeutil.Clock, tuning config.ConnexionTuning) *Client {
	dev := NewDevice(tuning.MaxAxisTick)
	c := &Client{
		decoder:    NewDecoder(dev, clock, tuning),
		device:     dev,
		mapper:     mapper,
		prober:     prober,
		foreground: true,
	}
	c.decoder.SetParams(paramsFromTuning(tuning))
	return c
}

func paramsFromTuning(t config.ConnexionTuning) Params {
	speed, err := ParseSpeed(t.Speed)
	if err != nil {
		logf("%v, using mid", err)
	}
	return Params{Speed: speed, PanZoom: t.PanZoom, Rotate: t.Rotate}
}

func (c *Client) Device() *Device { return c.device }

// HandleRawInput runs the hotplug check, decodes every report in batch and
// then ages the cache once. It returns the number of motion dispatches.
func (c *Client) HandleRawInput(batch []RawInput) int {
	c.CheckAttached()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, in := range batch {
		c.decoder.TranslateRawInput(in, c.foreground)
	}
	return c.decoder.On3dmouseInput(c.foreground)
}

// HandleDriverState applies an absolute axis state and button bitmask from a
// driver callback.
func (c *Client) HandleDriverState(raw Motion, buttons uint32) {
	c.CheckAttached()

	c.mu.Lock()
	m := c.decoder.Scale(raw, driverTickMs)
	c.mu.Unlock()
	c.device.HandleDriverState(m, buttons)
}

// CheckAttached registers or removes the device proxy to match the prober.
// It returns the attachment state.
func (c *Client) CheckAttached() bool {
	attached := c.prober != nil && c.prober.Attached()
	registered := c.device.ID() != input.InvalidDevice

	switch {
	case attached && !registered:
		id := c.mapper.RegisterDevice(c.device)
		c.device.setID(id)
		logf("3D mouse attached, registered as device %d", id)
	case !attached && registered:
		c.mapper.RemoveDevice(c.device.ID())
		c.device.setID(input.InvalidDevice)
		c.device.Reset()
		logf("3D mouse detached")
	}
	return attached
}

func (c *Client) SetForeground(fg bool) {
	c.mu.Lock()
	c.foreground = fg
	c.mu.Unlock()
}

func (c *Client) Foreground() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.foreground
}

func (c *Client) SetParams(p Params) {
	c.mu.Lock()
	c.decoder.SetParams(p)
	c.mu.Unlock()
}

func (c *Client) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decoder.Params()
}

// ApplyTuning installs scale constants and navigation params from a tuning
// file.
func (c *Client) ApplyTuning(t config.ConnexionTuning) {
	c.mu.Lock()
	c.decoder.SetTuning(t)
	c.decoder.SetParams(paramsFromTuning(t))
	c.mu.Unlock()
	c.device.SetMaxAxisTick(t.MaxAxisTick)
}

// Run feeds batches from src into the client until ctx is done.
func (c *Client) Run(ctx context.Context, src Source) error {
	return src.Run(ctx, func(batch []RawInput) { c.HandleRawInput(batch) })
}

// Close unregisters the device proxy.
func (c *Client) Close() {
	if id := c.device.ID(); id != input.InvalidDevice {
		c.mapper.RemoveDevice(id)
		c.device.setID(input.InvalidDevice)
	}
}
