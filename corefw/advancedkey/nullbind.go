package advancedkey

import "github.com/hallcore/corefw/corefw/profile"

// nullBindState is the per-slot Null Bind / SOCD state record (§4.3.4).
// Index 0 is always the primary key, index 1 the secondary key.
type nullBindState struct {
	RawPressed [2]bool
	Registered [2]bool
	LastIdx    int
}

func (e *Engine) nullBindEvent(slot, key int, pressed bool, now uint32) {
	cfg := e.keys[slot].NullBind
	st := &e.nullBind[slot]

	idx := 0
	if key == cfg.SecondaryKey {
		idx = 1
	}
	st.RawPressed[idx] = pressed
	if pressed {
		st.LastIdx = idx
	}

	bothHeld := st.RawPressed[0] && st.RawPressed[1]
	var desired [2]bool

	switch {
	case !bothHeld:
		desired = st.RawPressed
	case cfg.BottomOutPoint > 0 &&
		e.analog.Distance(cfg.PrimaryKey) >= cfg.BottomOutPoint &&
		e.analog.Distance(cfg.SecondaryKey) >= cfg.BottomOutPoint:
		// Both fully bottomed out: let both through (spec's
		// bottom-out escape hatch for the SOCD pair).
		desired = [2]bool{true, true}
	default:
		switch cfg.Behavior {
		case profile.NBDistance:
			dp := e.analog.Distance(cfg.PrimaryKey)
			ds := e.analog.Distance(cfg.SecondaryKey)
			switch {
			case dp > ds:
				desired = [2]bool{true, false}
			case ds > dp:
				desired = [2]bool{false, true}
			default:
				// Tie: favor whichever key most recently changed.
				desired[st.LastIdx] = true
			}
		case profile.NBLast:
			// bothHeld can only just have become true via a press
			// (a release would make it false), so LastIdx is the
			// key that was just pressed.
			desired[st.LastIdx] = true
		case profile.NBPrimary:
			desired = [2]bool{true, false}
		case profile.NBSecondary:
			desired = [2]bool{false, true}
		case profile.NBNeutral:
			desired = [2]bool{false, false}
		}
	}

	physKey := [2]int{cfg.PrimaryKey, cfg.SecondaryKey}
	for i := 0; i < 2; i++ {
		if desired[i] && !st.Registered[i] {
			e.sink.Register(physKey[i], uint8(cfg.Keycodes[i]))
			st.Registered[i] = true
		} else if !desired[i] && st.Registered[i] {
			e.sink.Unregister(physKey[i], uint8(cfg.Keycodes[i]))
			st.Registered[i] = false
		}
	}
}
