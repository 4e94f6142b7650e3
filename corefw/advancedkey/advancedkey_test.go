package advancedkey

import (
	"testing"

	"github.com/hallcore/corefw/corefw/deferred"
	"github.com/hallcore/corefw/corefw/profile"
)

type fakeSink struct {
	registered map[int]uint8
	events     []string
}

func newFakeSink() *fakeSink { return &fakeSink{registered: map[int]uint8{}} }

func (s *fakeSink) Register(key int, keycode uint8) {
	s.registered[key] = keycode
	s.events = append(s.events, "reg")
}
func (s *fakeSink) Unregister(key int, keycode uint8) {
	delete(s.registered, key)
	s.events = append(s.events, "unreg")
}
func (s *fakeSink) SendReport() {}

type fakeTimer struct{ ms uint32 }

func (t *fakeTimer) Now() uint32 { return t.ms }

type fakeAnalog struct{ dist map[int]uint8 }

func (a *fakeAnalog) Distance(key int) uint8 { return a.dist[key] }

func newTestEngine(keys []profile.AdvancedKey) (*Engine, *fakeSink, *fakeTimer, *fakeAnalog, *deferred.Queue) {
	sink := newFakeSink()
	timer := &fakeTimer{}
	analog := &fakeAnalog{dist: map[int]uint8{}}
	dq := deferred.NewQueue(16)
	var replayed []int
	e := New(sink, timer, analog,
		func(a deferred.Action) bool { return dq.Enqueue(a) },
		func(key int, pressed bool) { replayed = append(replayed, key) },
		func(kc profile.Keycode) bool { return kc.IsModifier() },
	)
	e.LoadKeys(keys)
	return e, sink, timer, analog, dq
}

func TestTapHoldHoldPreferredResolvesAfterTerm(t *testing.T) {
	keys := []profile.AdvancedKey{
		{Type: profile.AKTapHold, Key: 5, TapHold: profile.TapHoldConfig{
			TapKeycode: 0x04, HoldKeycode: 0xE1, TappingTermMS: 200, Flavor: profile.FlavorHoldPreferred,
		}},
	}
	e, sink, timer, _, _ := newTestEngine(keys)

	timer.ms = 0
	e.HandleEvent(0, 5, true)
	if !e.HasUndecided() {
		t.Fatalf("expected undecided immediately after press")
	}

	timer.ms = 150
	e.Tick(timer.ms)
	if _, held := sink.registered[5]; held {
		t.Fatalf("should not resolve to hold before term elapses")
	}

	timer.ms = 200
	e.Tick(timer.ms)
	if kc, held := sink.registered[5]; !held || kc != 0xE1 {
		t.Fatalf("expected hold keycode registered at term, got %v", sink.registered)
	}

	timer.ms = 250
	e.HandleEvent(0, 5, false)
	if _, held := sink.registered[5]; held {
		t.Fatalf("expected hold keycode unregistered on release")
	}
}

func TestTapHoldQuickTapReRegistersTap(t *testing.T) {
	keys := []profile.AdvancedKey{
		{Type: profile.AKTapHold, Key: 5, TapHold: profile.TapHoldConfig{
			TapKeycode: 0x04, HoldKeycode: 0xE1, TappingTermMS: 200, QuickTapMS: 150,
		}},
	}
	e, _, timer, _, dq := newTestEngine(keys)

	timer.ms = 0
	e.HandleEvent(0, 5, true)
	timer.ms = 30
	e.HandleEvent(0, 5, false)
	if dq.Len() != 1 {
		t.Fatalf("expected a tap staged after first tap, got %d", dq.Len())
	}

	timer.ms = 100 // within quick_tap_ms of the release
	e.HandleEvent(0, 5, true)
	if dq.Len() != 2 {
		t.Fatalf("expected quick-tap re-press to immediately stage a tap, got %d", dq.Len())
	}
	if e.tapHold[0].Stage != tapHoldStageNone {
		t.Fatalf("quick-tap re-press should bypass the undecided stage")
	}
}

func TestToggleDegradesToMomentaryAfterTerm(t *testing.T) {
	keys := []profile.AdvancedKey{
		{Type: profile.AKToggle, Key: 3, Toggle: profile.ToggleConfig{Keycode: 0x04, TappingTermMS: 100}},
	}
	e, sink, timer, _, _ := newTestEngine(keys)

	timer.ms = 0
	e.HandleEvent(0, 3, true) // toggled on
	if _, on := sink.registered[3]; !on {
		t.Fatalf("expected key registered on first press")
	}
	e.HandleEvent(0, 3, false) // still toggled: release is a no-op
	if _, on := sink.registered[3]; !on {
		t.Fatalf("toggled-on key must survive a release")
	}

	timer.ms = 150
	e.Tick(timer.ms) // a tapped (released) toggle is not reverted by the term
	timer.ms = 200
	e.HandleEvent(0, 3, true) // second tap: toggled off
	e.HandleEvent(0, 3, false)
	if _, on := sink.registered[3]; on {
		t.Fatalf("expected second tap to toggle the key off")
	}

	timer.ms = 300
	e.HandleEvent(0, 3, true) // toggled on and held down
	timer.ms = 450
	e.Tick(timer.ms) // held past the term in TOGGLE stage: forced revert to momentary
	if _, on := sink.registered[3]; !on {
		t.Fatalf("expected key to stay registered while still held")
	}
	e.HandleEvent(0, 3, false)
	if _, on := sink.registered[3]; on {
		t.Fatalf("expected release after forced revert to unregister")
	}
}

func TestNullBindDistanceFavorsDeeperKey(t *testing.T) {
	keys := []profile.AdvancedKey{
		{Type: profile.AKNullBind, NullBind: profile.NullBindConfig{
			PrimaryKey: 1, SecondaryKey: 2,
			Keycodes: [2]profile.Keycode{0x04, 0x05},
			Behavior: profile.NBDistance,
		}},
	}
	e, sink, timer, analog, _ := newTestEngine(keys)

	timer.ms = 0
	analog.dist[1] = 10
	e.HandleEvent(0, 1, true)
	if _, on := sink.registered[1]; !on {
		t.Fatalf("expected primary registered while alone")
	}

	analog.dist[2] = 60
	e.HandleEvent(0, 2, true)
	if _, on := sink.registered[1]; on {
		t.Fatalf("expected primary unregistered once secondary is deeper")
	}
	if kc, on := sink.registered[2]; !on || kc != 0x05 {
		t.Fatalf("expected secondary registered as the deeper key")
	}
}

func TestComboFullMatchCommitsAndEmitsDeferredRelease(t *testing.T) {
	keys := []profile.AdvancedKey{
		{Type: profile.AKCombo, Combo: profile.ComboConfig{
			Keys: []int{1, 2}, TermMS: 50, OutputKeycode: 0x29, Layer: 0,
		}},
	}
	e, sink, timer, _, dq := newTestEngine(keys)

	timer.ms = 0
	if consumed := e.OfferToCombo(1, true, 0, timer.ms); !consumed {
		t.Fatalf("expected key 1 press captured into the combo queue")
	}
	timer.ms = 10
	if consumed := e.OfferToCombo(2, true, 0, timer.ms); !consumed {
		t.Fatalf("expected key 2 press captured into the combo queue")
	}

	e.ComboTask(timer.ms)
	if kc, on := sink.registered[comboOutputSlot]; !on || kc != 0x29 {
		t.Fatalf("expected combo output registered immediately, got %v", sink.registered)
	}
	if dq.Len() != 1 {
		t.Fatalf("expected a deferred release staged for the combo output, got %d", dq.Len())
	}
}

func TestComboNonParticipatingKeyFlushesQueue(t *testing.T) {
	keys := []profile.AdvancedKey{
		{Type: profile.AKCombo, Combo: profile.ComboConfig{
			Keys: []int{1, 2}, TermMS: 50, OutputKeycode: 0x29, Layer: 0,
		}},
	}
	e, _, timer, _, _ := newTestEngine(keys)

	timer.ms = 0
	e.OfferToCombo(1, true, 0, timer.ms)

	timer.ms = 5
	consumed := e.OfferToCombo(9, true, 0, timer.ms) // key 9 doesn't participate in any combo
	if consumed {
		t.Fatalf("non-participating key must not be captured")
	}
	if len(e.combo.queue) != 0 {
		t.Fatalf("expected pending queue flushed before the non-combo key dispatches, got %d entries", len(e.combo.queue))
	}
}
