// Package layout implements the layer-aware keymap lookup and per-tick
// dispatch engine of spec §4.2: transparent multi-layer lookup,
// chronological event ordering, the pending-event buffer that gates
// dispatch while a Tap-Hold decision is outstanding, and the special
// range-partitioned keycodes (momentary layer, profile select, lock
// keys).
package layout

import (
	"sort"

	"github.com/hallcore/corefw/corefw/deferred"
	"github.com/hallcore/corefw/corefw/hid"
	"github.com/hallcore/corefw/corefw/profile"
	"github.com/hallcore/corefw/corefw/xinput"
)

// AdvancedKeyEngine is the subset of advancedkey.Engine the layout engine
// depends on. Defining it here (rather than importing the concrete type)
// keeps layout decoupled from advancedkey's internals; advancedkey.Engine
// satisfies it structurally.
type AdvancedKeyEngine interface {
	HandleEvent(slot, key int, pressed bool)
	HandleHold(slot, key int, now uint32)
	HasUndecided() bool
	Observe(sourceKey int, pressed bool, now uint32, keycode profile.Keycode)
	Tick(now uint32)
	OfferToCombo(key int, pressed bool, layer int, now uint32) bool
	ComboTask(now uint32)
}

const pendingBufferDepth = 8

// rawEvent is one physical key edge captured this tick, before ordering.
type rawEvent struct {
	Key     int
	Pressed bool
	Time    uint32
}

// pendingEvent is a raw event held back while a Tap-Hold decision is
// still undecided, per step 3 of the tick algorithm.
type pendingEvent struct {
	Key     int
	Pressed bool
}

// Engine is the layout engine. It owns no physical-key sampling of its
// own; Task is driven once per scan by the caller with the current
// matrix snapshot.
type Engine struct {
	profile *profile.ActiveProfile
	sink    hid.Sink
	deferQ  *deferred.Queue
	ak      AdvancedKeyEngine

	// advancedKeyIndices[layer][key] is 1 + the slot index into
	// profile.AdvancedKeys, or 0 if that cell has no advanced-key
	// binding. The +1 offset lets the zero value mean "none".
	advancedKeyIndices [][]int

	wasPressed []bool // previous scan's per-key pressed state, for edge detection

	pending      [pendingBufferDepth]pendingEvent
	pendingCount int

	keyLocked []bool // SP_KEY_LOCK per-key disable latch

	lastTick uint32 // timestamp of the most recent Task call, for ReplayKey

	onBootRequest   func()
	onProfileSwitch func(idx int)

	gamepad xinput.Mapper
}

// SetGamepad installs the XInput mapper collaborator. A nil mapper (the
// default) disables the XInput interaction rule entirely, even if
// GamepadOptions.XInputEnabled is set.
func (e *Engine) SetGamepad(m xinput.Mapper) { e.gamepad = m }

// SetBootHandler installs the SP_BOOT callback. The core never reboots
// itself; the glue layer wires this to whatever bootloader-entry
// mechanism the host platform exposes.
func (e *Engine) SetBootHandler(f func()) { e.onBootRequest = f }

// SetProfileSwitchHandler installs the profile-select/swap/next callback.
// idx >= 0 selects that profile directly, -1 requests swap-with-previous,
// -2 requests "next profile" (modular increment) — the glue layer owns
// the actual profile table and previous-profile bookkeeping.
func (e *Engine) SetProfileSwitchHandler(f func(idx int)) { e.onProfileSwitch = f }

// New builds a layout engine bound to p, dispatching HID effects through
// sink and deferred staging through deferQ, and routing advanced-key
// logic through ak.
func New(p *profile.ActiveProfile, numKeys int, sink hid.Sink, deferQ *deferred.Queue, ak AdvancedKeyEngine) *Engine {
	e := &Engine{
		profile:    p,
		sink:       sink,
		deferQ:     deferQ,
		ak:         ak,
		wasPressed: make([]bool, numKeys),
		keyLocked:  make([]bool, numKeys),
	}
	e.LoadAdvancedKeys()
	return e
}

// LoadAdvancedKeys rebuilds the advancedKeyIndices lookup table from the
// profile's flat AdvancedKeys slice. It must be called after any
// configuration mutation (profile switch, external config write, reset to
// defaults), immediately after the advanced-key engine's own Clear+LoadKeys,
// per §3's invariant. Combo bindings are excluded — they are matched
// directly against the flat list by the combo engine, never looked up by
// key.
func (e *Engine) LoadAdvancedKeys() {
	numKeys := len(e.wasPressed)
	e.advancedKeyIndices = make([][]int, e.profile.NumLayers)
	for l := range e.advancedKeyIndices {
		e.advancedKeyIndices[l] = make([]int, numKeys)
	}

	for slot, ak := range e.profile.AdvancedKeys {
		if ak.Type == profile.AKCombo || ak.Layer < 0 || ak.Layer >= e.profile.NumLayers {
			continue
		}
		if ak.Key >= 0 && ak.Key < numKeys {
			e.advancedKeyIndices[ak.Layer][ak.Key] = slot + 1
		}
		if ak.Type == profile.AKNullBind {
			// Null Bind installs on both physical keys of the pair.
			if ak.NullBind.SecondaryKey >= 0 && ak.NullBind.SecondaryKey < numKeys {
				e.advancedKeyIndices[ak.Layer][ak.NullBind.SecondaryKey] = slot + 1
			}
		}
	}
}

// GetCurrentLayer returns the highest active layer per the layer mask.
func (e *Engine) GetCurrentLayer() int { return e.profile.Layers.Current() }

// GetKeycode resolves key's keycode on layer, falling transparently
// through lower layers until a non-transparent binding is found or layer
// 0 is reached.
func (e *Engine) GetKeycode(layer, key int) profile.Keycode {
	if key < 0 || key >= len(e.wasPressed) {
		return profile.KCNone
	}
	for l := layer; l >= 0; l-- {
		if l >= e.profile.NumLayers {
			continue
		}
		kc := e.profile.Keymap[l][key]
		if kc != profile.KCTransparent {
			return kc
		}
	}
	return profile.KCNone
}

// Register registers key/keycode directly on the HID sink, outside the
// normal tick path: no layer lookup or advanced-key dispatch is involved.
func (e *Engine) Register(key int, keycode profile.Keycode) { e.sink.Register(key, uint8(keycode)) }

// Unregister mirrors Register.
func (e *Engine) Unregister(key int, keycode profile.Keycode) { e.sink.Unregister(key, uint8(keycode)) }

// KeyState is the per-key physical state the caller (the matrix engine,
// via the glue layer) supplies to Task each scan.
type KeyState struct {
	Pressed bool
	EventTime uint32
}

// Task runs one full tick of the layout engine against the current matrix
// snapshot. now is the tick's timestamp; states is indexed by physical
// key, sized to match the engine's key count.
func (e *Engine) Task(now uint32, states []KeyState) {
	e.lastTick = now
	layer := e.GetCurrentLayer()

	events := e.gatherEdges(states)
	sort.SliceStable(events, func(i, j int) bool {
		return int32(events[i].Time-events[j].Time) < 0
	})

	for _, ev := range events {
		e.dispatchEvent(layer, ev.Key, ev.Pressed, now)
	}

	// Continuing holds: keys still down with no edge this tick, dispatched
	// directly to the advanced-key engine's HandleHold (no ordering effect,
	// never queued or buffered).
	for key, st := range states {
		if st.Pressed && e.wasPressed[key] {
			if slot := e.advancedKeyIndices[layer][key] - 1; slot >= 0 {
				e.ak.HandleHold(slot, key, now)
			}
		}
		e.wasPressed[key] = st.Pressed
	}

	e.ak.ComboTask(now)

	if !e.ak.HasUndecided() {
		e.drainPending(layer, now)
	}

	e.ak.Tick(now)

	e.sink.SendReport()
	if e.gamepad != nil {
		e.gamepad.SendReport()
	}
	e.deferQ.Process(deferredSinkAdapter{e.sink})
}

func (e *Engine) gatherEdges(states []KeyState) []rawEvent {
	var events []rawEvent
	for key, st := range states {
		if st.Pressed != e.wasPressed[key] {
			events = append(events, rawEvent{Key: key, Pressed: st.Pressed, Time: st.EventTime})
		}
	}
	return events
}

// dispatchEvent is step 2-3 of the tick algorithm for a single
// chronologically-ordered event: offer to the combo queue, then either
// buffer it (while any Tap-Hold slot is undecided and the key is not itself
// bound to a Tap-Hold slot) or dispatch it immediately. A buffered event is
// still shown to the advanced-key engine's Observe hook, so an undecided
// Tap-Hold can resolve on the interruption it represents.
func (e *Engine) dispatchEvent(layer, key int, pressed bool, now uint32) {
	if e.ak.OfferToCombo(key, pressed, layer, now) {
		return
	}

	if e.ak.HasUndecided() {
		slot := e.advancedKeyIndices[layer][key] - 1
		if slot < 0 || e.profile.AdvancedKeys[slot].Type != profile.AKTapHold {
			kc := profile.KCNone
			if slot < 0 {
				kc = e.GetKeycode(layer, key)
			}
			e.ak.Observe(key, pressed, now, kc)
			e.bufferPending(key, pressed)
			return
		}
	}

	e.processKey(layer, key, pressed, now)
}

func (e *Engine) bufferPending(key int, pressed bool) {
	if e.pendingCount >= pendingBufferDepth {
		// Buffer exhausted: drop the oldest rather than block the scan,
		// per the bounded-queue discipline used throughout the core.
		copy(e.pending[:], e.pending[1:])
		e.pendingCount--
	}
	e.pending[e.pendingCount] = pendingEvent{Key: key, Pressed: pressed}
	e.pendingCount++
}

func (e *Engine) drainPending(layer int, now uint32) {
	for i := 0; i < e.pendingCount; i++ {
		ev := e.pending[i]
		e.processKey(layer, ev.Key, ev.Pressed, now)
	}
	e.pendingCount = 0
}

// processKey is the ultimate dispatch point for a single key event: it
// resolves special/layer/profile keycodes, routes advanced-key-bound keys
// to the advanced-key engine, and relays everything else straight to the
// HID sink. It also notifies the advanced-key engine's global Observe
// hook so Tap-Hold interruption tracking sees every event in the system,
// not just its own slot's.
func (e *Engine) processKey(layer, key int, pressed bool, now uint32) {
	if key < 0 || key >= len(e.keyLocked) {
		return
	}

	// SP_KEY_LOCK itself must still be reachable even once its own key is
	// locked, so the lock gate below only guards output-producing paths
	// (advanced-key dispatch and the final HID register), not the
	// layer/profile/special-keycode control flow.
	kc := e.GetKeycode(layer, key)

	if e.keyLocked[key] && kc != profile.SPKeyLock {
		return
	}

	if slot := e.advancedKeyIndices[layer][key] - 1; slot >= 0 {
		e.ak.Observe(key, pressed, now, profile.KCNone)
		e.ak.HandleEvent(slot, key, pressed)
		return
	}

	e.ak.Observe(key, pressed, now, kc)

	if mo, ok := kc.IsMomentaryLayer(); ok {
		e.profile.Layers.SetLayer(mo, pressed)
		return
	}
	if prof, ok := kc.IsProfileSelect(); ok {
		if pressed {
			e.requestProfileSwitch(prof)
		}
		return
	}
	switch kc {
	case profile.KCNone, profile.KCTransparent:
		return
	case profile.SPKeyLock:
		if pressed {
			e.keyLocked[key] = !e.keyLocked[key]
		}
		return
	case profile.SPLayerLock:
		if pressed {
			e.profile.Layers.DefaultLayer = layer
		}
		return
	case profile.SPProfileSwap:
		if pressed {
			e.requestProfileSwitch(-1) // -1: caller resolves "swap" via its own previous-profile bookkeeping
		}
		return
	case profile.SPProfileNext:
		if pressed {
			e.requestProfileSwitch(-2) // -2: caller resolves "next" via modular increment
		}
		return
	case profile.SPBoot:
		if pressed && e.onBootRequest != nil {
			e.onBootRequest()
		}
		return
	}

	toKeyboard := true
	if layer == 0 && e.profile.GamepadOptions.XInputEnabled && e.gamepad != nil {
		gb := e.profile.GamepadButtons[key]
		e.gamepad.SetButton(gb.Button, pressed)
		if gb.Override || !e.profile.GamepadOptions.KeyboardEnabled {
			toKeyboard = false
		}
	}
	if !toKeyboard {
		return
	}

	if pressed {
		e.sink.Register(key, uint8(kc))
	} else {
		e.sink.Unregister(key, uint8(kc))
	}
}

// ReplayKey re-dispatches a single key event straight to processKey at the
// engine's current layer and most recent tick timestamp, bypassing combo
// offering and pending-buffer gating. It is the re-entry point the
// advanced-key engine calls to replay key presses flushed from the combo
// queue (presses that did not complete a combo) into ordinary dispatch.
func (e *Engine) ReplayKey(key int, pressed bool) {
	e.processKey(e.GetCurrentLayer(), key, pressed, e.lastTick)
}

func (e *Engine) requestProfileSwitch(idx int) {
	if e.onProfileSwitch != nil {
		e.onProfileSwitch(idx)
	}
}

type deferredSinkAdapter struct{ sink hid.Sink }

func (d deferredSinkAdapter) Register(key int, keycode uint8)   { d.sink.Register(key, keycode) }
func (d deferredSinkAdapter) Unregister(key int, keycode uint8) { d.sink.Unregister(key, keycode) }
