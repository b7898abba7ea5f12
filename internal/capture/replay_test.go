package capture

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworld-xr/interface/internal/connexion"
)

type urb struct {
	event    byte
	xfer     byte
	endpoint byte
	device   uint8
	bus      uint16
	data     []byte
}

// usbmonPacket builds a 64-byte mmapped usbmon header followed by data.
func usbmonPacket(u urb) []byte {
	pkt := make([]byte, 64+len(u.data))
	binary.LittleEndian.PutUint64(pkt[0:8], 0xdeadbeef)
	pkt[8] = u.event
	pkt[9] = u.xfer
	pkt[10] = u.endpoint
	pkt[11] = u.device
	binary.LittleEndian.PutUint16(pkt[12:14], u.bus)
	pkt[14] = '-'
	pkt[15] = 0
	binary.LittleEndian.PutUint32(pkt[32:36], uint32(len(u.data)))
	binary.LittleEndian.PutUint32(pkt[36:40], uint32(len(u.data)))
	copy(pkt[64:], u.data)
	return pkt
}

func writeCapture(t *testing.T, packets ...urb) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mouse.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeLinuxUSB))
	ts := time.Unix(1700000000, 0)
	for _, p := range packets {
		data := usbmonPacket(p)
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
		require.NoError(t, w.WritePacket(ci, data))
		ts = ts.Add(8 * time.Millisecond)
	}
	return path
}

func translation(x, y, z int16) []byte {
	b := make([]byte, 7)
	b[0] = 0x01
	binary.LittleEndian.PutUint16(b[1:3], uint16(x))
	binary.LittleEndian.PutUint16(b[3:5], uint16(y))
	binary.LittleEndian.PutUint16(b[5:7], uint16(z))
	return b
}

func TestReplayDeliversInterruptInCompletions(t *testing.T) {
	motion := translation(10, -10, 0)
	path := writeCapture(t,
		// Submit without data.
		urb{event: 'S', xfer: 1, endpoint: 0x81, device: 4, bus: 1},
		urb{event: 'C', xfer: 1, endpoint: 0x81, device: 4, bus: 1, data: motion},
		// Control transfer.
		urb{event: 'C', xfer: 2, endpoint: 0x80, device: 4, bus: 1, data: []byte{1}},
		// Interrupt OUT.
		urb{event: 'C', xfer: 1, endpoint: 0x01, device: 4, bus: 1, data: []byte{1}},
		// Another device on the bus.
		urb{event: 'C', xfer: 1, endpoint: 0x81, device: 9, bus: 1, data: motion},
	)

	r := NewReplay(path, Config{
		VendorID:  connexion.Vendor3Dconnexion,
		ProductID: 0xc62e,
		Device:    4,
	})

	var batches [][]connexion.RawInput
	var attachedDuring bool
	err := r.Run(context.Background(), func(b []connexion.RawInput) {
		if b != nil {
			attachedDuring = r.Attached()
		}
		batches = append(batches, b)
	})
	require.NoError(t, err)

	require.Len(t, batches, 2, "one report plus the final detach notification")
	require.Len(t, batches[0], 1)
	in := batches[0][0]
	assert.Equal(t, motion, in.Data)
	assert.Equal(t, connexion.Handle(1<<8|4), in.Handle)
	assert.Equal(t, connexion.Vendor3Dconnexion, in.VendorID)
	assert.Nil(t, batches[1])

	assert.True(t, attachedDuring)
	assert.False(t, r.Attached())
	assert.EqualValues(t, 1, r.Reports())
}

func TestReplayRejectsOtherLinkTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eth.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	require.NoError(t, f.Close())

	err = NewReplay(path, Config{}).Run(context.Background(), func([]connexion.RawInput) {})
	assert.ErrorContains(t, err, "unsupported link type")
}

func TestReplayMissingFile(t *testing.T) {
	err := NewReplay(filepath.Join(t.TempDir(), "nope.pcap"), Config{}).Run(context.Background(), func([]connexion.RawInput) {})
	assert.ErrorContains(t, err, "failed to open capture")
}

func TestReplayHonoursCancellation(t *testing.T) {
	motion := translation(1, 0, 0)
	path := writeCapture(t,
		urb{event: 'C', xfer: 1, endpoint: 0x81, device: 4, bus: 1, data: motion},
		urb{event: 'C', xfer: 1, endpoint: 0x81, device: 4, bus: 1, data: motion},
	)

	ctx, cancel := context.WithCancel(context.Background())
	// A very slow replay blocks on the gap after the first report.
	r := NewReplay(path, Config{SpeedMultiplier: 0.0001})
	err := r.Run(ctx, func(b []connexion.RawInput) {
		if b != nil {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, r.Reports())
}

func TestReplayAttachedOnlyWhileRunning(t *testing.T) {
	path := writeCapture(t,
		urb{event: 'C', xfer: 1, endpoint: 0x81, device: 4, bus: 1, data: translation(0, 0, 0)},
	)
	r := NewReplay(path, Config{VendorID: connexion.Vendor3Dconnexion, ProductID: 0xc62e})

	var seen []bool
	err := r.Run(context.Background(), func(b []connexion.RawInput) {
		seen = append(seen, r.Attached())
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, seen)
}
