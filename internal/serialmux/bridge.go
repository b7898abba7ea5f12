package serialmux

import (
	"context"
	"encoding/json"
	"maps"
	"sync"

	"github.com/openworld-xr/interface/internal/connexion"
	"github.com/openworld-xr/interface/internal/monitoring"
)

// Subscriber is the part of SerialMux a Bridge reads from.
type Subscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
}

type bridgeDevice struct {
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
}

// Bridge turns bridge lines into raw HID reports. It is both a
// connexion.Source and a connexion.Prober.
type Bridge struct {
	sub Subscriber

	mu       sync.Mutex
	attached map[connexion.Handle]bridgeDevice
	status   map[string]any
}

func NewBridge(sub Subscriber) *Bridge {
	return &Bridge{
		sub:      sub,
		attached: make(map[connexion.Handle]bridgeDevice),
		status:   make(map[string]any),
	}
}

// Attached reports whether the bridge has announced a supported 3D mouse.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.attached {
		if connexion.IsSupportedVendor(d.VendorID) {
			return true
		}
	}
	return false
}

// Status returns the merged status fields reported by the bridge.
func (b *Bridge) Status() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.status)
}

// HandleLine applies one bridge line. A report line yields a RawInput and
// true. Attach and detach lines update attachment and also return true so
// the caller can run a hotplug check.
func (b *Bridge) HandleLine(line string) (*connexion.RawInput, bool, error) {
	switch ClassifyPayload(line) {
	case EventTypeReport:
		in, err := ParseReport(line)
		if err != nil {
			return nil, false, err
		}
		// Reports imply attachment even if the announcement was missed.
		b.mu.Lock()
		if _, ok := b.attached[in.Handle]; !ok {
			b.attached[in.Handle] = bridgeDevice{VendorID: in.VendorID, ProductID: in.ProductID}
		}
		b.mu.Unlock()
		return &in, true, nil

	case EventTypeAttach:
		h, vid, pid, err := ParseAttach(line)
		if err != nil {
			return nil, false, err
		}
		b.mu.Lock()
		b.attached[h] = bridgeDevice{VendorID: vid, ProductID: pid}
		b.mu.Unlock()
		return nil, true, nil

	case EventTypeDetach:
		h, err := ParseDetach(line)
		if err != nil {
			return nil, false, err
		}
		b.mu.Lock()
		delete(b.attached, h)
		b.mu.Unlock()
		return nil, true, nil

	case EventTypeStatus:
		var values map[string]any
		if err := json.Unmarshal([]byte(line), &values); err != nil {
			return nil, false, err
		}
		b.mu.Lock()
		maps.Copy(b.status, values)
		b.mu.Unlock()
		return nil, false, nil
	}

	monitoring.Logf("serialmux: unknown bridge line: %s", line)
	return nil, false, nil
}

// Run subscribes to the mux and delivers reports until ctx is done or the
// mux closes.
func (b *Bridge) Run(ctx context.Context, deliver func([]connexion.RawInput)) error {
	id, lines := b.sub.Subscribe()
	defer b.sub.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			in, notify, err := b.HandleLine(line)
			if err != nil {
				monitoring.Logf("serialmux: %v", err)
				continue
			}
			if !notify {
				continue
			}
			if in != nil {
				deliver([]connexion.RawInput{*in})
			} else {
				deliver(nil)
			}
		}
	}
}
