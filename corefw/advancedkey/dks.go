package advancedkey

import (
	"github.com/hallcore/corefw/corefw/deferred"
	"github.com/hallcore/corefw/corefw/profile"
)

// DKS event kinds, matching the 2-bit action-bitmap layout in
// profile.DKSBinding.Action.
const (
	dksEventPress                = 0
	dksEventBottomOut            = 1
	dksEventReleaseFromBottomOut = 2
	dksEventRelease              = 3
)

// dksState is the per-slot Dynamic Keystroke state record (§4.3.3).
type dksState struct {
	WasBottomedOut bool
	Active         bool
}

// dksEdge handles a genuine press/release edge. Release is always
// classified as RELEASE even if the key happened to be bottomed out —
// release takes priority over release-from-bottom-out per spec.
func (e *Engine) dksEdge(slot, key int, pressed bool, now uint32) {
	st := &e.dks[slot]
	if pressed {
		st.WasBottomedOut = false
		st.Active = true
		e.applyDKS(slot, key, dksEventPress, now)
		return
	}
	st.WasBottomedOut = false
	st.Active = false
	e.applyDKS(slot, key, dksEventRelease, now)
}

// dksHold is called every tick the key continues to be held without an
// edge, so a mid-hold bottom-out crossing can still be detected.
func (e *Engine) dksHold(slot, key int, now uint32) {
	cfg := e.keys[slot].DKS
	if cfg.BottomOutPoint == 0 {
		return
	}
	st := &e.dks[slot]
	bottomed := e.analog.Distance(key) >= cfg.BottomOutPoint

	if bottomed && !st.WasBottomedOut {
		st.WasBottomedOut = true
		e.applyDKS(slot, key, dksEventBottomOut, now)
	} else if !bottomed && st.WasBottomedOut {
		st.WasBottomedOut = false
		e.applyDKS(slot, key, dksEventReleaseFromBottomOut, now)
	}
}

func (e *Engine) applyDKS(slot, key, eventKind int, now uint32) {
	cfg := e.keys[slot].DKS
	for _, b := range cfg.Bindings {
		switch b.Action(eventKind) {
		case profile.DKSHold:
			// keep whatever state the sub-binding was already in
		case profile.DKSPress:
			e.deferAction(deferred.Action{Type: deferred.Press, Key: key, Keycode: uint8(b.Keycode)})
		case profile.DKSTap:
			e.deferAction(deferred.Action{Type: deferred.Tap, Key: key, Keycode: uint8(b.Keycode)})
		case profile.DKSRelease:
			e.sink.Unregister(key, uint8(b.Keycode))
		}
	}
}
