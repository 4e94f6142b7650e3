package advancedkey

import (
	"github.com/hallcore/corefw/corefw/deferred"
	"github.com/hallcore/corefw/corefw/profile"
)

// macroState is the per-slot Macro playback state record (§4.3.6).
type macroState struct {
	Playing    bool
	PC         int
	Waiting    bool
	WaitUntil  uint32
}

// macroTrigger starts playback from the first event. A retrigger while
// already playing is ignored — the macro must finish or be reset by a
// profile switch first.
func (e *Engine) macroTrigger(slot int, now uint32) {
	st := &e.macro[slot]
	if st.Playing {
		return
	}
	st.Playing = true
	st.PC = 0
	st.Waiting = false
	e.macroRun(slot, now)
}

func (e *Engine) macroTick(slot int, now uint32) {
	st := &e.macro[slot]
	if !st.Playing || !st.Waiting {
		return
	}
	if int32(now-st.WaitUntil) < 0 {
		return
	}
	st.Waiting = false
	e.macroRun(slot, now)
}

// macroRun executes events starting at PC until it hits a delay (which
// suspends playback until macroTick resumes it), MacroEnd, or the fixed
// event-table bound.
func (e *Engine) macroRun(slot int, now uint32) {
	cfg := e.keys[slot].Macro
	st := &e.macro[slot]
	key := e.keys[slot].Key

	for st.PC < profile.MaxMacroEvents {
		ev := cfg.Events[st.PC]
		st.PC++

		switch ev.Action {
		case profile.MacroEnd:
			st.Playing = false
			return
		case profile.MacroTap:
			e.sink.Register(key, uint8(ev.Keycode))
			e.deferAction(deferred.Action{Type: deferred.Release, Key: key, Keycode: uint8(ev.Keycode)})
		case profile.MacroPress:
			e.sink.Register(key, uint8(ev.Keycode))
		case profile.MacroRelease:
			e.sink.Unregister(key, uint8(ev.Keycode))
		case profile.MacroDelay:
			st.Waiting = true
			st.WaitUntil = now + uint32(ev.Keycode)*10
			return
		}
	}
	st.Playing = false
}
