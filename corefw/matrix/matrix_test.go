package matrix

import "testing"

type fakeSampler struct {
	values []uint16
}

func (f *fakeSampler) Read(key int) uint16 { return f.values[key] }

type fakeTimer struct{ ms uint32 }

func (f *fakeTimer) Now() uint32 { return f.ms }

func newTestEngine(numKeys int) (*Engine, *fakeSampler, *fakeTimer) {
	s := &fakeSampler{values: make([]uint16, numKeys)}
	t := &fakeTimer{}
	opts := Options{
		EMAAlphaExponent:       0, // no smoothing lag, makes tests deterministic
		CalibrationEpsilon:     2,
		CalibrationDurationMS:  50,
		InactivityTimeoutMS:    1000,
		SaveBottomOutThreshold: false,
		ADCMax:                 1023,
	}
	e := New(numKeys, opts, s, t, nil)
	return e, s, t
}

func TestDistanceClampAndDivZeroGuard(t *testing.T) {
	if got := Distance(500, 100, 100); got != 0 {
		t.Errorf("bot==rest should guard to 0, got %d", got)
	}
	if got := Distance(50, 100, 200); got != 0 {
		t.Errorf("filtered below rest should clamp to 0, got %d", got)
	}
	if got := Distance(1000, 0, 100); got != 255 {
		t.Errorf("overshoot should clamp to 255, got %d", got)
	}
}

func TestRecalibrateResetsBottomOut(t *testing.T) {
	e, _, _ := newTestEngine(2)
	e.keys[0].ADCBottomOut = 500
	e.Recalibrate(true)
	for i, k := range e.keys {
		if k.ADCBottomOut != 0 {
			t.Errorf("key %d: bottom_out_threshold should be 0 after recalibrate(true), got %d", i, k.ADCBottomOut)
		}
	}
}

func TestFixedThresholdActuation(t *testing.T) {
	e, s, tm := newTestEngine(1)
	e.SetActuation(0, Actuation{Point: 0})
	e.keys[0].ADCRest = 0
	e.keys[0].ADCBottomOut = 255

	s.values[0] = 1
	tm.ms = 1
	e.Scan()
	if !e.keys[0].Pressed {
		t.Fatalf("actuation_point=0 with no rapid trigger: any nonzero distance should register a press")
	}
}

func TestContinuousResetPointIsZero(t *testing.T) {
	e, s, tm := newTestEngine(1)
	e.SetActuation(0, Actuation{Point: 40, Continuous: true})
	e.keys[0].ADCRest = 0
	e.keys[0].ADCBottomOut = 255

	tm.ms = 1
	s.values[0] = 200 // distance ~= 200
	e.Scan()
	if !e.keys[0].Pressed {
		t.Fatalf("expected press past actuation point")
	}

	tm.ms = 2
	s.values[0] = 50 // still above actuation point in continuous mode
	e.Scan()
	if !e.keys[0].Pressed {
		t.Fatalf("continuous key should stay down until distance reaches 0, still pressed at dist=50")
	}

	tm.ms = 3
	s.values[0] = 0
	e.Scan()
	if e.keys[0].Pressed {
		t.Fatalf("continuous key should release only once distance reaches 0")
	}
}

func TestRapidTriggerHalfPress(t *testing.T) {
	// Actuation {a=40, rt_down=10, rt_up=10}. Travel 0->60, 60->52, 52->48.
	e, s, tm := newTestEngine(1)
	e.SetActuation(0, Actuation{Point: 40, RTDown: 10, RTUp: 10})
	e.keys[0].ADCRest = 0
	e.keys[0].ADCBottomOut = 255 // distance == raw value directly

	tm.ms = 1
	s.values[0] = 60
	e.Scan()
	if !e.keys[0].Pressed || e.keys[0].Dir != DirDown {
		t.Fatalf("expected DOWN press at distance 60, got pressed=%v dir=%v", e.keys[0].Pressed, e.keys[0].Dir)
	}

	tm.ms = 2
	s.values[0] = 52 // 60-52=8 < rt_up(10) -> still DOWN
	e.Scan()
	if !e.keys[0].Pressed {
		t.Fatalf("60->52 (delta 8 < rt_up 10) should remain pressed, not release via rapid trigger")
	}

	tm.ms = 3
	s.values[0] = 48 // extremum still 60 (DOWN only raises it); 48+10=58 < 60 -> release
	e.Scan()
	if e.keys[0].Pressed {
		t.Fatalf("expected release once reversal exceeds rt_up threshold")
	}
}

func TestConcurrentPressOrderingKeepsDeepestOnly(t *testing.T) {
	e, s, tm := newTestEngine(3)
	for i := 0; i < 3; i++ {
		e.SetActuation(i, Actuation{Point: 40})
		e.keys[i].ADCRest = 0
		e.keys[i].ADCBottomOut = 255
	}
	tm.ms = 1
	s.values[0] = 50 // overshoot 10
	s.values[1] = 90 // overshoot 50, deepest
	s.values[2] = 60 // overshoot 20
	e.Scan()

	if !e.keys[1].Pressed {
		t.Fatalf("deepest overshoot key should remain pressed this scan")
	}
	if e.keys[0].Pressed || e.keys[2].Pressed {
		t.Fatalf("shallower concurrent presses should be reverted to inactive this scan")
	}
	if e.keys[0].Dir != DirInactive || e.keys[2].Dir != DirInactive {
		t.Fatalf("reverted keys should have key_dir reset to INACTIVE")
	}

	// Each following scan admits exactly one more deferred candidate (the
	// deepest of whatever is still contending), draining the backlog by
	// one key per scan period.
	tm.ms = 2
	e.Scan()
	if !e.keys[2].Pressed {
		t.Fatalf("next-deepest deferred press (key 2) should resolve on the following scan")
	}
	if e.keys[0].Pressed {
		t.Fatalf("key 0 should still be deferred behind key 2")
	}

	tm.ms = 3
	e.Scan()
	if !e.keys[0].Pressed {
		t.Fatalf("last deferred press (key 0) should resolve by the third scan")
	}
}

func TestDisableRapidTriggerForcesFixedThreshold(t *testing.T) {
	e, s, tm := newTestEngine(1)
	e.SetActuation(0, Actuation{Point: 40, RTDown: 10, RTUp: 10})
	e.keys[0].ADCRest = 0
	e.keys[0].ADCBottomOut = 255
	e.DisableRapidTrigger(0, true)

	tm.ms = 1
	s.values[0] = 60
	e.Scan()
	tm.ms = 2
	s.values[0] = 45 // above actuation point, below rt_up reversal from 60->45=15>10, but RT is disabled
	e.Scan()
	if !e.keys[0].Pressed {
		t.Fatalf("with rapid trigger disabled the key should stay pressed until it crosses actuation_point downward")
	}
}
