// Package advancedkey implements the five concurrent per-binding state
// machines of spec §4.3 (Tap-Hold, Toggle, Dynamic Keystroke, Null Bind,
// Macro) plus the bounded combo event queue and its longest-match
// arbitration (§4.3.5).
//
// The engine never talks to the layout engine's internals directly: it is
// handed a processKey callback (for combo-flush replay) and a deferAction
// callback (for the deferred-action queue) at construction, the same
// dependency-inversion shape the teacher's device.Manager uses for its
// onChange callback.
package advancedkey

import (
	"github.com/hallcore/corefw/corefw/deferred"
	"github.com/hallcore/corefw/corefw/hid"
	"github.com/hallcore/corefw/corefw/profile"
)

// ProcessKeyFunc re-dispatches a flushed/replayed key event back through
// the layout engine's normal process_key path.
type ProcessKeyFunc func(key int, pressed bool)

// DeferFunc stages a deferred action; it returns false if the queue is
// full, per spec §7 ("caller skips the would-be register").
type DeferFunc func(a deferred.Action) bool

// IsModifierFunc reports whether a keycode is an HID modifier, used for
// the Tap-Hold require_prior_idle_ms check (§4.3.1).
type IsModifierFunc func(kc profile.Keycode) bool

// Engine owns one parallel state record per advanced-key slot plus the
// combo queue. keys is the read-only slot table installed by
// LoadKeys/Clear — ownership stays with the caller (profile.ActiveProfile).
type Engine struct {
	keys   []profile.AdvancedKey
	sink   hid.Sink
	timer  hid.Timer
	analog hid.AnalogSource

	deferAction DeferFunc
	processKey  ProcessKeyFunc
	isModifier  IsModifierFunc

	lastNonModifierKeyTime uint32

	tapHold  []tapHoldState
	toggle   []toggleState
	dks      []dksState
	nullBind []nullBindState
	macro    []macroState

	combo comboEngine
}

// New builds an Engine. keys is the flat advanced-key slot table from the
// active profile; it must be re-supplied (via LoadKeys) on every profile
// switch, reset, duplicate, or external config write, per §3's invariant.
func New(sink hid.Sink, timer hid.Timer, analog hid.AnalogSource, deferAction DeferFunc, processKey ProcessKeyFunc, isModifier IsModifierFunc) *Engine {
	e := &Engine{
		sink:        sink,
		timer:       timer,
		analog:      analog,
		deferAction: deferAction,
		processKey:  processKey,
		isModifier:  isModifier,
	}
	e.combo.processKey = processKey
	return e
}

// LoadKeys installs the slot table and resizes every parallel state array.
// Existing per-slot state is discarded — callers are expected to call
// Clear first per the profile-switch invariant, but LoadKeys resets state
// unconditionally regardless, so a bare LoadKeys is also safe.
func (e *Engine) LoadKeys(keys []profile.AdvancedKey) {
	e.keys = keys
	e.tapHold = make([]tapHoldState, len(keys))
	e.toggle = make([]toggleState, len(keys))
	e.dks = make([]dksState, len(keys))
	e.nullBind = make([]nullBindState, len(keys))
	e.macro = make([]macroState, len(keys))
	e.combo.keys = keys
	e.combo.invalidateCache()
	e.combo.queue = e.combo.queue[:0]
}

// Clear resets every slot's state machine to its zero value without
// changing the installed slot table. Configuration-mutation routes must
// call Clear before LoadKeys/LoadAdvancedKeys, per §3 and §6.
func (e *Engine) Clear() {
	for i := range e.tapHold {
		e.tapHold[i] = tapHoldState{}
	}
	for i := range e.toggle {
		e.toggle[i] = toggleState{}
	}
	for i := range e.dks {
		e.dks[i] = dksState{}
	}
	for i := range e.nullBind {
		e.nullBind[i] = nullBindState{}
	}
	for i := range e.macro {
		e.macro[i] = macroState{}
	}
	e.combo.queue = e.combo.queue[:0]
	e.combo.invalidateCache()
}

// InvalidateComboCache is the single externally callable invalidation path
// for the combo participation bitmap cache (design note in §9); every
// configuration-mutation route must call it.
func (e *Engine) InvalidateComboCache() { e.combo.invalidateCache() }

// HasUndecided reports whether any Tap-Hold slot is still in its TAP
// stage — the layout engine's pending-event gate.
func (e *Engine) HasUndecided() bool {
	for i := range e.tapHold {
		if e.keys[i].Type == profile.AKTapHold && e.tapHold[i].Stage == tapHoldStageTap {
			return true
		}
	}
	return false
}

// Observe is called for every key event dispatched anywhere in the system
// (advanced-key-routed or not) so Tap-Hold slots can track interruption,
// and so require_prior_idle_ms has a global "last non-modifier key" clock.
func (e *Engine) Observe(sourceKey int, pressed bool, now uint32, keycode profile.Keycode) {
	if pressed && !e.isModifier(keycode) {
		e.lastNonModifierKeyTime = now
	}
	for i := range e.tapHold {
		if e.keys[i].Type != profile.AKTapHold || e.keys[i].Key == sourceKey {
			continue
		}
		st := &e.tapHold[i]
		if st.Stage != tapHoldStageTap {
			continue
		}
		if pressed {
			st.OtherKeyPressedSinceDown = true
			st.Interrupted = true
		} else if st.OtherKeyPressedSinceDown {
			st.OtherKeyReleased = true
		}
	}
}

// HandleEvent dispatches a press/release edge to the slot's state machine.
func (e *Engine) HandleEvent(slot, key int, pressed bool) {
	if slot < 0 || slot >= len(e.keys) {
		return // invalid ak_index: silently ignored per §7
	}
	now := e.timer.Now()
	switch e.keys[slot].Type {
	case profile.AKTapHold:
		if pressed {
			e.tapHoldPress(slot, key, now)
		} else {
			e.tapHoldRelease(slot, key, now)
		}
	case profile.AKToggle:
		if pressed {
			e.togglePress(slot, key)
		} else {
			e.toggleRelease(slot, key)
		}
	case profile.AKDynamicKeystroke:
		e.dksEdge(slot, key, pressed, now)
	case profile.AKNullBind:
		e.nullBindEvent(slot, key, pressed, now)
	case profile.AKMacro:
		if pressed {
			e.macroTrigger(slot, now)
		}
	}
}

// HandleHold is dispatched every tick for a key that is continuing to be
// held (no edge this tick) — spec step 1's "continuing holds are
// dispatched immediately as HOLD advanced-key events". Only Dynamic
// Keystroke cares about this; other variants no-op.
func (e *Engine) HandleHold(slot, key int, now uint32) {
	if slot < 0 || slot >= len(e.keys) {
		return
	}
	if e.keys[slot].Type == profile.AKDynamicKeystroke {
		e.dksHold(slot, key, now)
	}
}

// Tick advances every slot's time-based transitions: Tap-Hold flavor
// resolution, Toggle term expiry, and macro playback.
func (e *Engine) Tick(now uint32) {
	for i := range e.keys {
		switch e.keys[i].Type {
		case profile.AKTapHold:
			e.tapHoldTick(i, now)
		case profile.AKToggle:
			e.toggleTick(i, now)
		case profile.AKMacro:
			e.macroTick(i, now)
		}
	}
}

// OfferToCombo gives the combo engine first refusal on a press event, per
// step 2a of the layout tick algorithm. It returns true if the event was
// captured into the combo queue (the layout engine must not dispatch it
// this tick).
func (e *Engine) OfferToCombo(key int, pressed bool, layer int, now uint32) bool {
	return e.combo.offer(key, pressed, layer, now)
}

// ComboTask progresses time-based combo decisions (step 4 of the tick
// algorithm).
func (e *Engine) ComboTask(now uint32) {
	e.combo.task(e.sink, e.deferAction, now)
}

// DKSActive reports whether any Dynamic Keystroke sub-binding is currently
// active for key, used by the glue layer to disable Rapid Trigger for it
// (§4.3.3's "while any sub-binding is active, Rapid Trigger is disabled").
func (e *Engine) DKSActive(key int) bool {
	for i := range e.dks {
		if e.keys[i].Type == profile.AKDynamicKeystroke && e.keys[i].Key == key && e.dks[i].Active {
			return true
		}
	}
	return false
}
