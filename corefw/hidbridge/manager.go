package hidbridge

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// State represents the bench bridge's current connection state.
type State int

const (
	Disconnected State = iota
	Connected
	Attached
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Attached:
		return "attached"
	default:
		return "unknown"
	}
}

// healthCheckInterval bounds how long a dead USB connection can go
// unnoticed before Manager drops back to Disconnected and starts
// reconnect attempts.
const healthCheckInterval = 5 * time.Second

// reconnectInterval paces connection attempts while no bench device is
// plugged in.
const reconnectInterval = 2 * time.Second

// Manager owns the USB connection to a bench AOA2 device and assembles the
// core's HID report (Register/Unregister/SendReport) into wire-format
// keyboard reports, relaying them over the bridge. It also relays assembled
// gamepad reports pushed in from the XInput mapper.
//
// Manager implements hid.Sink: the layout engine can drive it directly as
// its report sink, the same role the AOA2 device played for the teacher's
// PTT/system-control reports.
type Manager struct {
	mu       sync.Mutex
	dev      *Device
	vendorID uint16
	productID uint16
	serial   string
	state    State
	onChange func(State)

	modifiers byte
	keys      []byte // currently-registered HID usage IDs, 6KRO
	dirty     bool
}

// NewManager creates a Manager that will look for a bench device matching
// vendorID/productID (and optional serial). onChange, if non-nil, is
// called whenever the connection state changes.
func NewManager(vendorID, productID uint16, serial string, onChange func(State)) *Manager {
	return &Manager{
		vendorID: vendorID, productID: productID, serial: serial,
		onChange: onChange,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run drives the connect/reconnect/health-check loop until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			state := m.state
			m.mu.Unlock()
			if state == Disconnected {
				m.tryConnect()
			} else {
				m.healthCheck()
			}
			if m.State() == Disconnected {
				ticker.Reset(reconnectInterval)
			} else {
				ticker.Reset(healthCheckInterval)
			}
		}
	}
}

func (m *Manager) tryConnect() {
	dev, err := Open(m.vendorID, m.productID, m.serial)
	if err != nil {
		return
	}
	if _, err := dev.RegisterDescriptor(DescKeyboard); err != nil {
		dev.Close()
		log.Printf("[hidbridge] register keyboard descriptor: %v", err)
		return
	}
	if _, err := dev.RegisterDescriptor(DescGamepad); err != nil {
		log.Printf("[hidbridge] register gamepad descriptor: %v", err)
	}

	m.mu.Lock()
	m.dev = dev
	m.setStateLocked(Attached)
	m.mu.Unlock()
}

func (m *Manager) healthCheck() {
	m.mu.Lock()
	dev := m.dev
	m.mu.Unlock()
	if dev == nil {
		return
	}
	if err := dev.Ping(); err != nil {
		m.handleError(err)
	}
}

func (m *Manager) handleError(err error) {
	log.Printf("[hidbridge] connection lost: %v", err)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev != nil {
		m.dev.Close()
		m.dev = nil
	}
	m.setStateLocked(Disconnected)
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.onChange != nil {
		go m.onChange(s)
	}
}

// Register marks keycode as held on the next report (hid.Sink).
func (m *Manager) Register(key int, keycode uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keycode >= 0xD0 && keycode <= 0xD7 {
		m.modifiers |= 1 << (keycode - 0xD0)
		m.dirty = true
		return
	}
	for _, k := range m.keys {
		if k == keycode {
			return
		}
	}
	if len(m.keys) < 6 {
		m.keys = append(m.keys, keycode)
		m.dirty = true
	}
}

// Unregister clears keycode from the next report (hid.Sink).
func (m *Manager) Unregister(key int, keycode uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keycode >= 0xD0 && keycode <= 0xD7 {
		m.modifiers &^= 1 << (keycode - 0xD0)
		m.dirty = true
		return
	}
	for i, k := range m.keys {
		if k == keycode {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			m.dirty = true
			return
		}
	}
}

// SendReport flushes the assembled keyboard report to the bench bridge, if
// attached and if anything changed since the last flush (hid.Sink).
func (m *Manager) SendReport() {
	m.mu.Lock()
	if !m.dirty || m.dev == nil {
		m.mu.Unlock()
		return
	}
	sorted := append([]byte(nil), m.keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	report := KeyboardReport(m.modifiers, sorted)
	dev := m.dev
	m.dirty = false
	m.mu.Unlock()

	if err := dev.SendReportTo(DescKeyboard, report); err != nil {
		m.handleError(err)
	}
}

// SendGamepadReport relays an already-assembled gamepad report (from the
// XInput mapper) to the bench bridge, if attached.
func (m *Manager) SendGamepadReport(r GamepadReport) error {
	m.mu.Lock()
	dev := m.dev
	m.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("no bench device attached")
	}
	return dev.SendReportTo(DescGamepad, r.Bytes())
}

// Close tears down the USB connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev != nil {
		m.dev.Close()
		m.dev = nil
	}
	m.setStateLocked(Disconnected)
}
