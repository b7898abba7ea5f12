package connexion

import "strconv"

// VirtualKey is a vendor-neutral 3D mouse button.
type VirtualKey uint16

const (
	KeyInvalid VirtualKey = iota
	KeyMenu
	KeyFit
	KeyTop
	KeyLeft
	KeyRight
	KeyFront
	KeyBottom
	KeyBack
	KeyCW
	KeyCCW
	KeyISO1
	KeyISO2
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	Key10
	KeyEsc
	KeyAlt
	KeyShift
	KeyCtrl
	KeyRotate
	KeyPanZoom
	KeyDominant
	KeyPlus
	KeyMinus
)

var keyNames = [...]string{
	"Invalid", "Menu", "Fit", "Top", "Left", "Right", "Front", "Bottom", "Back",
	"CW", "CCW", "ISO1", "ISO2",
	"1", "2", "3", "4", "5", "6", "7", "8", "9", "10",
	"Esc", "Alt", "Shift", "Ctrl", "Rotate", "PanZoom", "Dominant", "Plus", "Minus",
}

func (k VirtualKey) String() string {
	if int(k) < len(keyNames) {
		return keyNames[k]
	}
	return "Key(" + strconv.Itoa(int(k)) + ")"
}

// Supported USB vendor IDs.
const (
	VendorLogitech    uint16 = 0x046d
	Vendor3Dconnexion uint16 = 0x256f
)

// IsSupportedVendor reports whether reports from vid are decoded.
func IsSupportedVendor(vid uint16) bool {
	return vid == VendorLogitech || vid == Vendor3Dconnexion
}

// Product IDs of known devices.
const (
	PIDSpacePilot                 uint16 = 0xc625
	PIDSpaceNavigator             uint16 = 0xc626
	PIDSpaceExplorer              uint16 = 0xc627
	PIDSpaceNavigatorForNotebooks uint16 = 0xc628
	PIDSpacePilotPro              uint16 = 0xc629
	PIDSpaceMousePro              uint16 = 0xc62b
	PIDSpaceMouseWireless         uint16 = 0xc62e
	PIDSpaceMouseWirelessReceiver uint16 = 0xc62f
	PIDSpaceMouseProWireless      uint16 = 0xc631
	PIDSpaceMouseProWirelessRecvr uint16 = 0xc632
	PIDSpaceMouseEnterprise       uint16 = 0xc633
	PIDSpaceMouseCompact          uint16 = 0xc635
)

// Raw bit index to virtual key per product. Index 0 is unused since raw
// key codes start at 1.
var productKeys = map[uint16][]VirtualKey{
	PIDSpaceExplorer: {
		KeyInvalid,
		Key1, Key2,
		KeyTop, KeyLeft, KeyRight, KeyFront,
		KeyEsc, KeyAlt, KeyShift, KeyCtrl,
		KeyFit, KeyMenu,
		KeyPlus, KeyMinus,
		KeyRotate,
	},
	PIDSpacePilot: {
		KeyInvalid,
		Key1, Key2, Key3, Key4, Key5, Key6,
		KeyTop, KeyLeft, KeyRight, KeyFront,
		KeyInvalid, KeyEsc, KeyAlt, KeyShift, KeyCtrl,
		KeyFit, KeyMenu,
		KeyPlus, KeyMinus,
		KeyDominant, KeyRotate,
	},
}

// HidToVirtualKey maps raw key code on product pid to a virtual key.
// Products without a table pass the code through unchanged; codes beyond a
// product's table map to KeyInvalid.
func HidToVirtualKey(pid uint16, code int) VirtualKey {
	keys, ok := productKeys[pid]
	if !ok {
		return VirtualKey(code)
	}
	if code < 0 || code >= len(keys) {
		return KeyInvalid
	}
	return keys[code]
}
