// Command bench is the developer harness for the hallcore keyboard core:
// it drives the matrix/advancedkey/layout engines against a simulated
// analog matrix (hotkeys stand in for hall-effect switches), relays their
// HID output over an AOA2 bridge when a bench device is attached, and
// exposes a local system tray plus a JSON configuration API so a
// developer can exercise Tap-Hold/Combo/Toggle timing and actuation
// curves without real hardware.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hallcore/corefw/corefw/advancedkey"
	"github.com/hallcore/corefw/corefw/deferred"
	"github.com/hallcore/corefw/corefw/hidbridge"
	"github.com/hallcore/corefw/corefw/launch"
	"github.com/hallcore/corefw/corefw/layout"
	"github.com/hallcore/corefw/corefw/matrix"
	"github.com/hallcore/corefw/corefw/profile"
	"github.com/hallcore/corefw/corefw/protocol"
	"github.com/hallcore/corefw/corefw/protocol/httpapi"
	"github.com/hallcore/corefw/corefw/storage"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// benchVendorID/benchProductID identify the harness to the AOA2 host as
// an open-source HID bridge device (pid.codes test allocation), not a
// production VID/PID.
const (
	benchVendorID  = 0x1209
	benchProductID = 0x0001
)

const (
	numKeys     = 20
	numLayers   = 4
	numProfiles = 4
	numMacros   = 8
	deferDepth  = 16
)

func main() {
	imagePath := flag.String("image", defaultImagePath(), "path to the bench EEPROM-image cache")
	flag.Parse()

	cfg, err := profile.LoadBenchConfig()
	if err != nil {
		log.Fatalf("[bench] load config: %v", err)
	}

	store, err := storage.Open(*imagePath, numKeys, numLayers, numProfiles, numMacros)
	if err != nil {
		log.Fatalf("[bench] open image: %v", err)
	}
	img := store.Image()
	if cfg.ActiveProfile < 0 || cfg.ActiveProfile >= len(img.Profiles) {
		cfg.ActiveProfile = 0
	}
	img.CurrentProfile = cfg.ActiveProfile
	activeProfile := img.Profiles[cfg.ActiveProfile]

	timer := &realTimer{start: time.Now()}
	sampler := newSimSampler(numKeys, img.InitialRestValue, img.InitialBottomOutThreshold)

	matrixOpts := matrix.Options{
		EMAAlphaExponent:       2,
		CalibrationEpsilon:     32,
		CalibrationDurationMS:  500,
		InactivityTimeoutMS:    5000,
		SaveBottomOutThreshold: img.SaveBottomOutThreshold,
		ADCMax:                 4095,
	}
	matrixEngine := matrix.New(numKeys, matrixOpts, sampler, timer, store)
	for key, a := range activeProfile.Actuation {
		matrixEngine.SetActuation(key, matrix.Actuation{
			Point: a.Point, RTDown: a.RTDown, RTUp: a.RTUp, Continuous: a.Continuous,
		})
	}
	// Without this, every key starts at a zero-valued KeyState and
	// mis-actuates at rest until an operator happens to send CmdRecalibrate.
	matrixEngine.Recalibrate(true)

	bridge := hidbridge.NewManager(benchVendorID, benchProductID, "hallcore-bench", setBridgeState)

	// advancedkey.Engine needs a ProcessKeyFunc at construction to replay
	// key presses flushed from the combo queue through ordinary dispatch, but
	// that replay path lives on the layout engine, which itself needs the
	// advanced-key engine as a constructor argument. Break the cycle with a
	// forward-declared variable the closure captures by reference; by the
	// time a replay actually happens (well after both engines exist and
	// the tick loop is running), layoutEngine is already assigned.
	var layoutEngine *layout.Engine
	akEngine := advancedkey.New(
		bridge,
		timer,
		matrixAnalogAdapter{matrixEngine},
		func(a deferred.Action) bool { return deferQueue.Enqueue(a) },
		func(key int, pressed bool) {
			if layoutEngine != nil {
				layoutEngine.ReplayKey(key, pressed)
			}
		},
		profile.Keycode.IsModifier,
	)
	akEngine.LoadKeys(activeProfile.AdvancedKeys)

	layoutEngine = layout.New(activeProfile, numKeys, bridge, deferQueue, akEngine)
	layoutEngine.SetProfileSwitchHandler(func(idx int) {
		switchProfile(cfg, store, &activeProfile, akEngine, layoutEngine, idx)
	})

	status := &statusAdapter{matrixEngine: matrixEngine, layoutEngine: layoutEngine}
	dispatcher := protocol.New(activeProfile, store, akEngine, layoutEngine, matrixEngine, status, numKeys, uint16(img.TickRateHz))
	api := httpapi.New(dispatcher, version)
	apiURL, err := api.Start()
	if err != nil {
		log.Printf("[bench] httpapi start: %v", err)
	} else {
		log.Printf("[bench] configuration API listening on %s", apiURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go bridge.Run(ctx)
	go runTickLoop(ctx, matrixEngine, layoutEngine, store, timer, img.TickRateHz)

	bindings := bindHotkeys(cfg, sampler)

	if cfg.AutoStart && !launch.IsEnabled() {
		if err := launch.Enable(); err != nil {
			log.Printf("[bench] enable autostart: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	runTray(trayOpts{
		Version: version,
		OnReady: func() {
			go func() {
				<-sigCh
				quitTray()
			}()
		},
		OnQuit: func() {
			for _, b := range bindings {
				b.Unregister()
			}
			api.Stop()
			bridge.Close()
			cancel()
			_ = store.Save()
			_ = cfg.Save()
		},
	})
}

var deferQueue = deferred.NewQueue(deferDepth)

func defaultImagePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "bench-image.json"
	}
	return filepath.Join(dir, "hallcore-bench", "image.json")
}

// switchProfile implements SP_PROFILE_SELECT/SP_PROFILE_SWAP/SP_PROFILE_NEXT
// for the bench harness: idx >= 0 selects that slot directly, -1 swaps with
// the last non-default profile, -2 advances modularly.
func switchProfile(cfg *profile.BenchConfig, store *storage.Store, active **profile.ActiveProfile, ak *advancedkey.Engine, lay *layout.Engine, idx int) {
	img := store.Image()
	switch {
	case idx >= 0 && idx < len(img.Profiles):
		img.LastNonDefaultProfile = img.CurrentProfile
		img.CurrentProfile = idx
	case idx == -1:
		img.CurrentProfile, img.LastNonDefaultProfile = img.LastNonDefaultProfile, img.CurrentProfile
	case idx == -2:
		img.LastNonDefaultProfile = img.CurrentProfile
		img.CurrentProfile = (img.CurrentProfile + 1) % len(img.Profiles)
	default:
		return
	}
	*active = img.Profiles[img.CurrentProfile]
	ak.Clear()
	ak.LoadKeys((*active).AdvancedKeys)
	lay.LoadAdvancedKeys()
	_ = cfg.SetActiveProfile(img.CurrentProfile)
	setKeymapState(img.CurrentProfile, lay.GetCurrentLayer())
}

// runTickLoop drives the matrix and layout engines at tickRateHz until ctx
// is canceled, the same fixed-period scan-then-dispatch loop the core
// runs on real firmware, just paced by a host ticker instead of a hardware
// timer interrupt.
func runTickLoop(ctx context.Context, m *matrix.Engine, lay *layout.Engine, store *storage.Store, timer *realTimer, tickRateHz int) {
	if tickRateHz <= 0 {
		tickRateHz = 1000
	}
	period := time.Second / time.Duration(tickRateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	states := make([]layout.KeyState, m.NumKeys())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Scan()
			now := timer.Now()
			for key := range states {
				ks := m.Key(key)
				states[key] = layout.KeyState{Pressed: ks.Pressed, EventTime: ks.EventTime}
			}
			lay.Task(now, states)
			setKeymapState(store.Image().CurrentProfile, lay.GetCurrentLayer())
		}
	}
}

// bindHotkeys registers one global OS hotkey per configured simulated key,
// driving press/release edges on the bench's simulated analog sampler.
func bindHotkeys(cfg *profile.BenchConfig, sampler *simSampler) []*hotkeyBinding {
	var bindings []*hotkeyBinding
	for _, hb := range cfg.SimulatedKeyBindings() {
		key := hb.Key
		b := newHotkeyBinding(key,
			func(k int) { sampler.Press(k) },
			func(k int) { sampler.Release(k) },
		)
		if err := b.Register(hb.Modifiers, hb.KeyName); err != nil {
			log.Printf("[bench] bind key %d: %v", key, err)
			continue
		}
		bindings = append(bindings, b)
	}
	return bindings
}

// realTimer is the millisecond clock the matrix/layout/advancedkey engines
// share, satisfying both hid.Timer and matrix.Timer with one Now() uint32.
type realTimer struct {
	start time.Time
}

func (t *realTimer) Now() uint32 {
	return uint32(time.Since(t.start).Milliseconds())
}

// matrixAnalogAdapter satisfies hid.AnalogSource over the matrix engine's
// per-key travel distance, letting advancedkey depend on distance without
// importing the matrix package directly.
type matrixAnalogAdapter struct {
	eng *matrix.Engine
}

func (a matrixAnalogAdapter) Distance(key int) uint8 { return a.eng.Key(key).Distance }

// statusAdapter satisfies protocol.StatusSource, fanning CmdGetStatus and
// CmdGetKeyState out to the live matrix and layout engines.
type statusAdapter struct {
	matrixEngine *matrix.Engine
	layoutEngine *layout.Engine
}

func (s *statusAdapter) CurrentLayer() int       { return s.layoutEngine.GetCurrentLayer() }
func (s *statusAdapter) KeyPressed(key int) bool { return s.matrixEngine.Key(key).Pressed }
func (s *statusAdapter) KeyDistance(key int) uint8 { return s.matrixEngine.Key(key).Distance }

// simSampler stands in for hall-effect ADC hardware: each simulated key
// holds a raw reading that idles at the profile's rest value and jumps to
// its bottom-out value on a bound hotkey's press, letting the matrix
// engine's real EMA/calibration/Rapid-Trigger logic run against something
// other than a constant.
type simSampler struct {
	rest      uint16
	bottomOut uint16
	raw       []uint32 // atomic, one per key
}

func newSimSampler(numKeys int, rest, bottomOut uint16) *simSampler {
	s := &simSampler{rest: rest, bottomOut: bottomOut, raw: make([]uint32, numKeys)}
	for i := range s.raw {
		atomic.StoreUint32(&s.raw[i], uint32(rest))
	}
	return s
}

func (s *simSampler) Read(key int) uint16 {
	if key < 0 || key >= len(s.raw) {
		return s.rest
	}
	return uint16(atomic.LoadUint32(&s.raw[key]))
}

func (s *simSampler) Press(key int) {
	if key < 0 || key >= len(s.raw) {
		return
	}
	atomic.StoreUint32(&s.raw[key], uint32(s.bottomOut))
}

func (s *simSampler) Release(key int) {
	if key < 0 || key >= len(s.raw) {
		return
	}
	atomic.StoreUint32(&s.raw[key], uint32(s.rest))
}
