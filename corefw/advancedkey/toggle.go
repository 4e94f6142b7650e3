package advancedkey

type toggleStage uint8

const (
	toggleStageNone toggleStage = iota
	toggleStageToggle
	toggleStageNormal
)

// toggleState is the per-slot Toggle state record (§4.3.2).
type toggleState struct {
	Since      uint32
	Stage      toggleStage
	IsToggled  bool
}

func (e *Engine) togglePress(slot, key int) {
	cfg := e.keys[slot].Toggle
	st := &e.toggle[slot]

	e.sink.Register(key, uint8(cfg.Keycode))
	st.IsToggled = !st.IsToggled
	if st.IsToggled {
		st.Stage = toggleStageToggle
		st.Since = e.timer.Now()
	}
}

func (e *Engine) toggleRelease(slot, key int) {
	cfg := e.keys[slot].Toggle
	st := &e.toggle[slot]
	if !st.IsToggled {
		e.sink.Unregister(key, uint8(cfg.Keycode))
	}
	// Released: the key is no longer held, so the term no longer applies.
	st.Stage = toggleStageNone
}

func (e *Engine) toggleTick(slot int, now uint32) {
	cfg := e.keys[slot].Toggle
	st := &e.toggle[slot]
	if st.Stage == toggleStageToggle && now-st.Since >= cfg.TappingTermMS {
		// Held past the term without a second tap: degrade back to a
		// plain momentary key so the eventual release unregisters it.
		st.Stage = toggleStageNormal
		st.IsToggled = false
	}
}
