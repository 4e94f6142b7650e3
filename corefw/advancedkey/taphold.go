package advancedkey

import (
	"github.com/hallcore/corefw/corefw/deferred"
	"github.com/hallcore/corefw/corefw/profile"
)

type tapHoldStage uint8

const (
	tapHoldStageNone tapHoldStage = iota
	tapHoldStageTap
	tapHoldStageHold
)

// tapHoldState is the per-slot Tap-Hold state record (§4.3.1).
type tapHoldState struct {
	Since                    uint32
	Stage                    tapHoldStage
	Interrupted              bool // another key pressed before tapping_term elapsed
	OtherKeyPressedSinceDown bool
	OtherKeyReleased         bool // another key both pressed and released while undecided
	LastTapReleaseTime       uint32
	LastTapReleaseTimeValid  bool
}

func (e *Engine) tapHoldPress(slot, key int, now uint32) {
	cfg := e.keys[slot].TapHold
	st := &e.tapHold[slot]

	if cfg.RequirePriorIdleMS > 0 && now-e.lastNonModifierKeyTime < cfg.RequirePriorIdleMS {
		e.emitTap(key, cfg.TapKeycode)
		st.Stage = tapHoldStageNone
		return
	}
	if cfg.QuickTapMS > 0 && st.LastTapReleaseTimeValid && now-st.LastTapReleaseTime < cfg.QuickTapMS {
		e.emitTap(key, cfg.TapKeycode)
		st.Stage = tapHoldStageNone
		return
	}

	st.Since = now
	st.Stage = tapHoldStageTap
	st.Interrupted = false
	st.OtherKeyPressedSinceDown = false
	st.OtherKeyReleased = false
}

func (e *Engine) tapHoldRelease(slot, key int, now uint32) {
	cfg := e.keys[slot].TapHold
	st := &e.tapHold[slot]

	switch st.Stage {
	case tapHoldStageTap:
		held := now - st.Since
		if cfg.RetroTapping || held < cfg.TappingTermMS {
			e.emitTap(key, cfg.TapKeycode)
		}
		st.LastTapReleaseTime = now
		st.LastTapReleaseTimeValid = true
		st.Stage = tapHoldStageNone
	case tapHoldStageHold:
		e.sink.Unregister(key, uint8(cfg.HoldKeycode))
		st.Stage = tapHoldStageNone
	}
}

func (e *Engine) tapHoldTick(slot int, now uint32) {
	st := &e.tapHold[slot]
	if st.Stage != tapHoldStageTap {
		return
	}
	cfg := e.keys[slot].TapHold
	held := now - st.Since

	resolve := cfg.TappingTermMS == 0
	if !resolve {
		switch cfg.Flavor {
		case profile.FlavorHoldPreferred:
			resolve = held >= cfg.TappingTermMS
		case profile.FlavorBalanced:
			resolve = st.OtherKeyReleased
		case profile.FlavorTapPreferred:
			resolve = held >= cfg.TappingTermMS && !st.Interrupted
		case profile.FlavorTapUnlessInterrupted:
			resolve = st.Interrupted && held < cfg.TappingTermMS
		}
	}
	if cfg.HoldOnOtherKeyPress && st.OtherKeyPressedSinceDown {
		resolve = true
	}
	if cfg.PermissiveHold && st.OtherKeyReleased {
		resolve = true
	}

	if resolve {
		e.sink.Register(e.keys[slot].Key, uint8(cfg.HoldKeycode))
		st.Stage = tapHoldStageHold
	}
}

func (e *Engine) emitTap(key int, keycode profile.Keycode) {
	e.deferAction(deferred.Action{Type: deferred.Tap, Key: key, Keycode: uint8(keycode)})
}
