// Package hid defines the narrow collaborator interfaces the layout and
// advanced-key engines depend on but never implement themselves: the HID
// report assembler, the millisecond timer, and a read-only view of the
// matrix engine's travel distance. Keeping these as small interfaces here
// (rather than on the concrete matrix/layout types) is what lets layout
// and advancedkey share a collaborator contract without importing each
// other.
package hid

// Sink is the HID report assembler. Register/Unregister toggle one
// keycode's bit in the in-progress report; SendReport flushes it once a
// tick has changed something. USB HID descriptor assembly and transport
// are out of scope for the core (spec §1) — this interface is the whole
// contract.
type Sink interface {
	Register(key int, keycode uint8)
	Unregister(key int, keycode uint8)
	SendReport()
}

// Timer is the millisecond time source. All comparisons against it must be
// modular ((now - since) < threshold on unsigned values) because the
// counter wraps every ~49.7 days.
type Timer interface {
	Now() uint32
}

// AnalogSource is a read-only view onto the matrix engine's per-key
// travel, used by Dynamic Keystroke and Null Bind logic that needs
// distance without depending on the matrix package directly.
type AnalogSource interface {
	Distance(key int) uint8
}
