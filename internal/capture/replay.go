// Package capture replays usbmon captures of a 3D mouse into the raw input
// decoder. Captures are recorded on Linux with
//
//	tcpdump -i usbmon1 -w mouse.pcap
//
// and carry one interrupt-IN completion per HID report.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/openworld-xr/interface/internal/connexion"
	"github.com/openworld-xr/interface/internal/monitoring"
)

var logf = monitoring.Prefixed("capture")

// Config selects what to replay from a capture.
type Config struct {
	// VendorID and ProductID are stamped on every report; usbmon headers
	// carry only bus and device addresses.
	VendorID  uint16
	ProductID uint16

	// Bus and Device restrict the replay to one device. Zero matches any.
	Bus    uint16
	Device uint8

	// SpeedMultiplier scales the gaps between reports (1.0 is real time).
	// Zero or less replays as fast as possible.
	SpeedMultiplier float64
}

// Replay is a connexion.Source reading reports from a pcap file. It also
// serves as a connexion.Prober reporting attached while the replay runs.
type Replay struct {
	path    string
	cfg     Config
	running atomic.Bool
	count   atomic.Int64
}

func NewReplay(path string, cfg Config) *Replay {
	return &Replay{path: path, cfg: cfg}
}

func (r *Replay) Attached() bool { return r.running.Load() }

// Reports returns how many reports have been delivered.
func (r *Replay) Reports() int64 { return r.count.Load() }

// Run reads the capture and delivers each report as its own batch. It
// returns nil at the end of the file.
func (r *Replay) Run(ctx context.Context, deliver func([]connexion.RawInput)) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open capture %s: %w", r.path, err)
	}
	defer f.Close()

	r.running.Store(true)
	defer func() {
		r.running.Store(false)
		// Let the client notice the detach.
		deliver(nil)
	}()
	return r.replay(ctx, f, deliver)
}

func (r *Replay) replay(ctx context.Context, src io.Reader, deliver func([]connexion.RawInput)) error {
	reader, err := pcapgo.NewReader(src)
	if err != nil {
		return fmt.Errorf("failed to read pcap header: %w", err)
	}
	linkType := reader.LinkType()
	if linkType != layers.LinkTypeLinuxUSB {
		return fmt.Errorf("unsupported link type %v: expected usbmon capture", linkType)
	}

	var (
		last    time.Time
		packets int
	)
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			logf("replay complete: %d packets, %d reports in %v", packets, r.count.Load(), time.Since(start))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read packet %d: %w", packets+1, err)
		}
		packets++

		in, ok := r.decode(gopacket.NewPacket(data, linkType, gopacket.NoCopy))
		if !ok {
			continue
		}

		if r.cfg.SpeedMultiplier > 0 && !last.IsZero() {
			delay := time.Duration(float64(ci.Timestamp.Sub(last)) / r.cfg.SpeedMultiplier)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
		}
		last = ci.Timestamp

		r.count.Add(1)
		deliver([]connexion.RawInput{in})
	}
}

// decode extracts a HID report from an interrupt-IN completion.
func (r *Replay) decode(packet gopacket.Packet) (connexion.RawInput, bool) {
	usbLayer := packet.Layer(layers.LayerTypeUSB)
	if usbLayer == nil {
		return connexion.RawInput{}, false
	}
	usb, ok := usbLayer.(*layers.USB)
	if !ok {
		return connexion.RawInput{}, false
	}
	if usb.EventType != layers.USBEventTypeComplete ||
		usb.TransferType != layers.USBTransportTypeInterrupt ||
		usb.Direction != layers.USBDirectionTypeIn {
		return connexion.RawInput{}, false
	}
	if r.cfg.Bus != 0 && usb.BusID != r.cfg.Bus {
		return connexion.RawInput{}, false
	}
	if r.cfg.Device != 0 && usb.DeviceAddress != r.cfg.Device {
		return connexion.RawInput{}, false
	}

	// The report is the tail of the payload; mmapped captures put extra
	// header bytes in front of it.
	payload := usb.LayerPayload()
	n := int(usb.UrbDataLength)
	if n == 0 || n > len(payload) {
		return connexion.RawInput{}, false
	}
	report := append([]byte(nil), payload[len(payload)-n:]...)

	return connexion.RawInput{
		Handle:    connexion.Handle(uint64(usb.BusID)<<8 | uint64(usb.DeviceAddress)),
		VendorID:  r.cfg.VendorID,
		ProductID: r.cfg.ProductID,
		Data:      report,
	}, true
}
