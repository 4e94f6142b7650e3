// Package hidbridge implements the Android Open Accessory 2.0 HID protocol.
// It renders the core's assembled keyboard and gamepad HID reports onto a
// real AOA2-capable phone or tablet over USB, so the core can be exercised
// end-to-end on a bench without flashing real hall-effect hardware.
//
// Protocol reference: https://source.android.com/docs/core/interaction/accessories/aoa2
package hidbridge

import (
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	// AOA HID control transfer request codes (bRequest values)
	reqRegisterHID   = 54 // ACCESSORY_REGISTER_HID
	reqUnregisterHID = 55 // ACCESSORY_UNREGISTER_HID
	reqSetHIDDesc    = 56 // ACCESSORY_SET_HID_REPORT_DESC
	reqSendHIDEvent  = 57 // ACCESSORY_SEND_HID_EVENT

	// bmRequestType for all AOA HID transfers:
	// host-to-device (0x00) | vendor (0x40) | device recipient (0x00) = 0x40
	bmRequestTypeOut = 0x40

	usbTimeout = 1000 * time.Millisecond
)

// DescriptorType identifies which HID descriptor to use.
type DescriptorType int

const (
	DescKeyboard DescriptorType = iota // Standard 6KRO Keyboard (Usage Page 0x07)
	DescGamepad                        // XInput-style Gamepad (Usage Page 0x01/0x09)
)

func (d DescriptorType) String() string {
	switch d {
	case DescKeyboard:
		return "Keyboard (0x07)"
	case DescGamepad:
		return "Gamepad (0x01/0x09)"
	default:
		return "Unknown"
	}
}

// Keyboard HID report descriptor.
// 8-byte reports: [modifier, reserved, key1, key2, key3, key4, key5, key6]
var keyboardDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x06, // Usage (Keyboard)
	0xA1, 0x01, // Collection (Application)
	// Modifier byte (8 bits: Ctrl, Shift, Alt, GUI x2)
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0xE0, //   Usage Minimum (Left Control)
	0x29, 0xE7, //   Usage Maximum (Right GUI)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data, Variable, Absolute) — modifier byte
	// Reserved byte
	0x95, 0x01, //   Report Count (1)
	0x75, 0x08, //   Report Size (8)
	0x81, 0x01, //   Input (Constant) — reserved byte
	// Key array (6 keys)
	0x95, 0x06, //   Report Count (6)
	0x75, 0x08, //   Report Size (8)
	0x15, 0x00, //   Logical Minimum (0)
	0x26, 0xFF, 0x00, // Logical Maximum (255)
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0x00, //   Usage Minimum (0)
	0x29, 0xFF, //   Usage Maximum (255)
	0x81, 0x00, //   Input (Data, Array)
	0xC0, // End Collection
}

// Gamepad HID report descriptor, modeled on the standard XInput layout:
// 2 thumbsticks (16-bit signed each), 2 triggers (8-bit), 14 buttons.
// Report: [buttons_lo, buttons_hi, lx_lo, lx_hi, ly_lo, ly_hi,
//          rx_lo, rx_hi, ry_lo, ry_hi, lt, rt]
var gamepadDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x05, // Usage (Gamepad)
	0xA1, 0x01, // Collection (Application)

	// Buttons (14 bits + 2 padding)
	0x05, 0x09, //   Usage Page (Button)
	0x19, 0x01, //   Usage Minimum (Button 1)
	0x29, 0x0E, //   Usage Maximum (Button 14)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x0E, //   Report Count (14)
	0x81, 0x02, //   Input (Data, Variable, Absolute)
	0x95, 0x02, //   Report Count (2 — padding)
	0x81, 0x03, //   Input (Constant)

	// Thumbsticks — 4 signed 16-bit axes (LX, LY, RX, RY)
	0x05, 0x01, //   Usage Page (Generic Desktop)
	0x09, 0x30, //   Usage (X)
	0x09, 0x31, //   Usage (Y)
	0x09, 0x33, //   Usage (Rx)
	0x09, 0x34, //   Usage (Ry)
	0x16, 0x00, 0x80, //   Logical Minimum (-32768)
	0x26, 0xFF, 0x7F, //   Logical Maximum (32767)
	0x75, 0x10, //   Report Size (16)
	0x95, 0x04, //   Report Count (4)
	0x81, 0x02, //   Input (Data, Variable, Absolute)

	// Triggers — 2 unsigned 8-bit axes
	0x09, 0x32, //   Usage (Z — left trigger)
	0x09, 0x35, //   Usage (Rz — right trigger)
	0x15, 0x00, //   Logical Minimum (0)
	0x26, 0xFF, 0x00, //   Logical Maximum (255)
	0x75, 0x08, //   Report Size (8)
	0x95, 0x02, //   Report Count (2)
	0x81, 0x02, //   Input (Data, Variable, Absolute)

	0xC0, // End Collection
}

// GetDescriptor returns the raw HID descriptor for the given type.
func GetDescriptor(dt DescriptorType) []byte {
	switch dt {
	case DescKeyboard:
		return keyboardDescriptor
	case DescGamepad:
		return gamepadDescriptor
	default:
		return nil
	}
}

// KeyboardReport assembles an 8-byte 6KRO keyboard report from a modifier
// bitmask and up to 6 currently-registered HID usage IDs.
func KeyboardReport(modifiers byte, keys []byte) []byte {
	report := make([]byte, 8)
	report[0] = modifiers
	for i := 0; i < len(keys) && i < 6; i++ {
		report[2+i] = keys[i]
	}
	return report
}

// GamepadReport assembles a 12-byte XInput-style gamepad report.
type GamepadReport struct {
	Buttons    uint16 // low 14 bits significant
	LX, LY     int16
	RX, RY     int16
	LT, RT     byte
}

// Bytes renders the report in wire order for SendReportTo.
func (r GamepadReport) Bytes() []byte {
	b := make([]byte, 12)
	b[0] = byte(r.Buttons)
	b[1] = byte(r.Buttons >> 8)
	b[2] = byte(uint16(r.LX))
	b[3] = byte(uint16(r.LX) >> 8)
	b[4] = byte(uint16(r.LY))
	b[5] = byte(uint16(r.LY) >> 8)
	b[6] = byte(uint16(r.RX))
	b[7] = byte(uint16(r.RX) >> 8)
	b[8] = byte(uint16(r.RY))
	b[9] = byte(uint16(r.RY) >> 8)
	b[10] = r.LT
	b[11] = r.RT
	return b
}

// Device wraps a libusb handle to an AOA2 bench device with HID descriptors
// registered for the keyboard and/or gamepad reports it will relay.
type Device struct {
	ctx        *gousb.Context
	dev        *gousb.Device
	vendorID   gousb.ID
	productID  gousb.ID
	nextHIDID  uint16
	registered map[DescriptorType]uint16
}

// Open finds a connected bench device matching vendorID/productID and opens
// a USB connection to it (no HID registration yet). An empty serial matches
// the first device found.
func Open(vendorID, productID uint16, serial string) (*Device, error) {
	ctx := gousb.NewContext()
	vid, pid := gousb.ID(vendorID), gousb.ID(productID)

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vid && desc.Product == pid
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("no bench device found (VID:0x%04x PID:0x%04x): %w", vendorID, productID, err)
	}

	var dev *gousb.Device
	for _, d := range devs {
		s, _ := d.SerialNumber()
		if serial == "" || s == serial {
			dev = d
		} else {
			d.Close()
		}
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("bench device with serial %q not found", serial)
	}

	dev.SetAutoDetach(true)

	return &Device{
		ctx: ctx, dev: dev,
		vendorID: vid, productID: pid,
		nextHIDID:  1,
		registered: make(map[DescriptorType]uint16),
	}, nil
}

// RegisterDescriptor registers an HID descriptor with the device via AOA2.
// Returns the assigned HID ID for use with SendReportTo.
func (d *Device) RegisterDescriptor(dt DescriptorType) (uint16, error) {
	desc := GetDescriptor(dt)
	if desc == nil {
		return 0, fmt.Errorf("unknown descriptor type %d", dt)
	}

	id := d.nextHIDID
	d.nextHIDID++

	if err := d.controlTransfer(reqRegisterHID, id, uint16(len(desc)), nil); err != nil {
		return 0, fmt.Errorf("REGISTER_HID failed: %w", err)
	}
	if err := d.controlTransfer(reqSetHIDDesc, id, 0, desc); err != nil {
		_ = d.controlTransfer(reqUnregisterHID, id, 0, nil)
		return 0, fmt.Errorf("SET_HID_REPORT_DESC failed: %w", err)
	}

	time.Sleep(300 * time.Millisecond)
	d.registered[dt] = id
	return id, nil
}

// UnregisterDescriptor removes a previously registered HID descriptor.
func (d *Device) UnregisterDescriptor(dt DescriptorType) error {
	id, ok := d.registered[dt]
	if !ok {
		return nil
	}
	delete(d.registered, dt)
	err := d.controlTransfer(reqUnregisterHID, id, 0, nil)
	time.Sleep(200 * time.Millisecond)
	return err
}

// SendReportTo sends a raw HID report to a specific descriptor.
func (d *Device) SendReportTo(dt DescriptorType, report []byte) error {
	id, ok := d.registered[dt]
	if !ok {
		return fmt.Errorf("descriptor %s not registered", dt)
	}
	return d.controlTransfer(reqSendHIDEvent, id, 0, report)
}

// Ping checks if the device is still connected by reading its serial number.
func (d *Device) Ping() error {
	_, err := d.dev.SerialNumber()
	return err
}

// Close releases USB resources.
func (d *Device) Close() {
	for dt, id := range d.registered {
		_ = d.controlTransfer(reqUnregisterHID, id, 0, nil)
		delete(d.registered, dt)
	}
	d.dev.Close()
	d.ctx.Close()
}

// controlTransfer sends a vendor control transfer to the device.
func (d *Device) controlTransfer(bRequest uint8, wValue uint16, wIndex uint16, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := d.dev.Control(
		bmRequestTypeOut,
		bRequest,
		wValue,
		wIndex,
		data,
	)
	if err != nil {
		return fmt.Errorf("control transfer (req=%d wValue=%d wIndex=%d): %w", bRequest, wValue, wIndex, err)
	}
	return nil
}
