// Package matrix implements the analog scan engine: per-key EMA filtering,
// online rest/bottom-out calibration, travel-distance estimation, and the
// Rapid Trigger direction state machine with hysteresis.
//
// The engine is single-threaded and allocation-free once New has sized its
// state and its edge scratch buffer has grown to a scan's needs: Scan is
// meant to be called from one goroutine at a sample rate of 1 kHz or
// faster, the same cooperative-scheduling contract the teacher's
// device.Manager keeps for its own USB I/O loop, just without the mutex —
// here there is only ever one caller.
package matrix

import "sort"

// KeyDir is the Rapid Trigger direction state for a single key.
type KeyDir uint8

const (
	DirInactive KeyDir = iota
	DirDown
	DirUp
)

func (d KeyDir) String() string {
	switch d {
	case DirDown:
		return "down"
	case DirUp:
		return "up"
	default:
		return "inactive"
	}
}

// Actuation is the per-key actuation configuration from the active profile.
type Actuation struct {
	Point      uint8 // actuation_point, 0..255 normalized travel
	RTDown     uint8 // rt_down; 0 disables Rapid Trigger (fixed-threshold mode)
	RTUp       uint8 // rt_up; 0 means "use RTDown for both directions"
	Continuous bool  // reset_point is 0 instead of Point
}

// KeyState is the per-key record owned exclusively by the matrix engine.
//
// Invariants: ADCRest <= ADCFiltered <= ADCBottomOut (after the calibration
// epsilon settles), and Distance == clamp(0, 255, distance(...)).
type KeyState struct {
	ADCFiltered     uint16
	ADCRest         uint16
	ADCBottomOut    uint16
	Distance        uint8
	Extremum        uint8
	Dir             KeyDir
	Pressed         bool
	EventTime       uint32 // ms timestamp of the last rising/falling edge
	bottomOutDirty  bool   // raised bottom-out not yet flushed to storage
	lastDirtyChange uint32
}

// AnalogSampler is the ADC collaborator: one raw reading per key per scan.
type AnalogSampler interface {
	Read(key int) uint16
}

// Timer is the millisecond time source collaborator. All comparisons are
// modular unsigned-subtract, per spec: (now - since) < threshold.
type Timer interface {
	Now() uint32
}

// WearLeveler persists per-key bottom-out deltas after an inactivity window.
// A write failure is surfaced as a bool; the engine simply retries on the
// next inactivity window rather than treating it as fatal (no error ever
// halts the tick loop).
type WearLeveler interface {
	SaveBottomOut(key int, value uint16) bool
}

// Options configures the engine for the whole matrix.
type Options struct {
	EMAAlphaExponent        uint8  // MATRIX_EMA_ALPHA_EXPONENT
	CalibrationEpsilon      uint16 // MATRIX_CALIBRATION_EPSILON
	CalibrationDurationMS   uint32 // MATRIX_CALIBRATION_DURATION
	InactivityTimeoutMS     uint32 // MATRIX_INACTIVITY_TIMEOUT
	SaveBottomOutThreshold  bool   // options.save_bottom_out_threshold
	InvertADC               bool   // compile-time polarity
	ADCMax                  uint16 // clamp ceiling for raw samples
}

// Engine is the matrix scan engine for a fixed NumKeys key count.
type Engine struct {
	opts       Options
	sampler    AnalogSampler
	timer      Timer
	storage    WearLeveler
	keys       []KeyState
	actuations []Actuation
	rtDisabled []bool

	calibrating      bool
	calibrationUntil uint32

	// scratch buffer reused every scan to avoid allocation.
	risingScratch []risingEdge
}

type risingEdge struct {
	key      int
	overshot int // distance - actuation point, may be negative in fixed mode
}

// New constructs an Engine for numKeys keys.
func New(numKeys int, opts Options, sampler AnalogSampler, timer Timer, storage WearLeveler) *Engine {
	return &Engine{
		opts:       opts,
		sampler:    sampler,
		timer:      timer,
		storage:    storage,
		keys:       make([]KeyState, numKeys),
		actuations: make([]Actuation, numKeys),
		rtDisabled: make([]bool, numKeys),
	}
}

// NumKeys returns the fixed key count this engine was built for.
func (e *Engine) NumKeys() int { return len(e.keys) }

// Key returns a copy of the key's current state.
func (e *Engine) Key(key int) KeyState { return e.keys[key] }

// SetActuation installs the actuation configuration for a key, normally
// called when the active profile's actuation_map is (re)loaded.
func (e *Engine) SetActuation(key int, a Actuation) { e.actuations[key] = a }

// DisableRapidTrigger forces a key into fixed-threshold actuation
// regardless of its configured rt_down/rt_up, or clears that override.
func (e *Engine) DisableRapidTrigger(key int, flag bool) {
	e.rtDisabled[key] = flag
}

// Recalibrate starts (or restarts) online calibration. If resetBottomOut is
// true, every key's bottom-out envelope is reset to zero so it is
// rediscovered from scratch during normal scanning.
func (e *Engine) Recalibrate(resetBottomOut bool) {
	now := e.timer.Now()
	e.calibrating = true
	e.calibrationUntil = now + e.opts.CalibrationDurationMS
	for i := range e.keys {
		if resetBottomOut {
			e.keys[i].ADCBottomOut = 0
		}
		// Seed the rest envelope at the ceiling so the first real samples
		// (always lower, since a key at rest reads near its minimum travel)
		// pull it down toward the true value instead of never moving.
		e.keys[i].ADCRest = e.opts.ADCMax
		e.keys[i].Dir = DirInactive
		e.keys[i].Pressed = false
		e.keys[i].Extremum = 0
	}
}

// Distance computes the normalized 0..255 travel for a filtered ADC value
// against a calibrated rest/bottom-out envelope. bot == rest is guarded to
// avoid division by zero.
func Distance(filtered, rest, bot uint16) uint8 {
	if bot <= rest {
		return 0
	}
	if filtered <= rest {
		return 0
	}
	num := int32(filtered-rest) * 255
	den := int32(bot - rest)
	d := num / den
	if d > 255 {
		d = 255
	}
	if d < 0 {
		d = 0
	}
	return uint8(d)
}

func ema(raw, filtered uint16, alpha uint8) uint16 {
	// new = (raw + filtered*((1<<alpha)-1)) >> alpha
	mul := uint32(1)<<alpha - 1
	return uint16((uint32(raw) + uint32(filtered)*mul) >> alpha)
}

// Scan advances every key by one sample period. It must be called at the
// configured sample rate; a single call processes the full key set.
func (e *Engine) Scan() {
	now := e.timer.Now()
	if e.calibrating && int32(now-e.calibrationUntil) >= 0 {
		e.calibrating = false
	}

	e.risingScratch = e.risingScratch[:0]

	for i := range e.keys {
		k := &e.keys[i]
		raw := e.sampler.Read(i)
		if raw > e.opts.ADCMax {
			raw = e.opts.ADCMax
		}
		if e.opts.InvertADC {
			raw = e.opts.ADCMax - raw
		}
		k.ADCFiltered = ema(raw, k.ADCFiltered, e.opts.EMAAlphaExponent)

		if e.calibrating {
			if int32(k.ADCRest)-int32(k.ADCFiltered) >= int32(e.opts.CalibrationEpsilon) {
				k.ADCRest = k.ADCFiltered
			}
		} else if int32(k.ADCFiltered)-int32(k.ADCBottomOut) >= int32(e.opts.CalibrationEpsilon) {
			k.ADCBottomOut = k.ADCFiltered
			k.bottomOutDirty = true
			k.lastDirtyChange = now
		}

		k.Distance = Distance(k.ADCFiltered, k.ADCRest, k.ADCBottomOut)

		prevPressed := k.Pressed
		a := e.actuations[i]
		e.stepRapidTrigger(k, a, i)

		if k.Pressed != prevPressed {
			k.EventTime = now
			if k.Pressed {
				e.risingScratch = append(e.risingScratch, risingEdge{key: i, overshot: int(k.Distance) - int(a.Point)})
			}
		}

		if e.opts.SaveBottomOutThreshold && k.bottomOutDirty && now-k.lastDirtyChange >= e.opts.InactivityTimeoutMS {
			if e.storage != nil && e.storage.SaveBottomOut(i, k.ADCBottomOut) {
				k.bottomOutDirty = false
			} else {
				// Failed flush: wait out a fresh inactivity window before retrying.
				k.lastDirtyChange = now
			}
		}
	}

	e.resolveConcurrentPresses()
}

// stepRapidTrigger runs the direction state machine (or fixed-threshold
// mode) for one key, per spec §4.1.
func (e *Engine) stepRapidTrigger(k *KeyState, a Actuation, key int) {
	resetPoint := a.Point
	if a.Continuous {
		resetPoint = 0
	}

	if a.RTDown == 0 || e.rtDisabled[key] {
		// Fixed-threshold actuation: no Rapid Trigger.
		if !k.Pressed && k.Distance > a.Point {
			k.Pressed = true
			k.Dir = DirDown
			k.Extremum = k.Distance
		} else if k.Pressed && k.Distance <= resetPoint {
			k.Pressed = false
			k.Dir = DirInactive
		}
		return
	}

	d := a.RTDown
	u := a.RTUp
	if u == 0 {
		u = d
	}

	switch k.Dir {
	case DirInactive:
		if k.Distance > a.Point {
			k.Dir = DirDown
			k.Extremum = k.Distance
			k.Pressed = true
		}
	case DirDown:
		if k.Distance <= resetPoint {
			k.Dir = DirInactive
			k.Pressed = false
		} else if int(k.Distance)+int(u) < int(k.Extremum) {
			k.Dir = DirUp
			k.Pressed = false
			k.Extremum = k.Distance
		} else if k.Distance > k.Extremum {
			k.Extremum = k.Distance
		}
	case DirUp:
		if k.Distance <= resetPoint {
			k.Dir = DirInactive
			k.Pressed = false
		} else if int(k.Distance) > int(k.Extremum)+int(d) {
			k.Dir = DirDown
			k.Pressed = true
			k.Extremum = k.Distance
		} else if k.Distance < k.Extremum {
			k.Extremum = k.Distance
		}
	}
}

// resolveConcurrentPresses enforces deterministic press ordering: of all
// keys that newly registered a press this scan, only the one that overshot
// its actuation point the most remains pressed. The rest are reverted to
// INACTIVE and deferred to the next scan.
func (e *Engine) resolveConcurrentPresses() {
	if len(e.risingScratch) <= 1 {
		return
	}
	sort.Slice(e.risingScratch, func(i, j int) bool {
		return e.risingScratch[i].overshot > e.risingScratch[j].overshot
	})
	for _, edge := range e.risingScratch[1:] {
		k := &e.keys[edge.key]
		k.Pressed = false
		k.Dir = DirInactive
	}
}
