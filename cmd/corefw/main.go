// Command corefw is the headless tick driver: it wires the matrix,
// layout, and advanced-key engines against real collaborators (a
// socket-fed ADC sampler, the wear-levelled storage image, and the AOA2
// HID bridge) and runs the fixed-order scan/dispatch/deferred-process
// loop spec §7 describes, with no tray, no simulated input, and no
// interactive bench tooling.
//
// ADC hardware drivers are explicitly out of scope (spec §1) — this
// binary is the host-side half of that boundary. It expects a board- or
// test-rig-specific process to push raw per-key samples over a Unix
// domain socket, one fixed-size binary frame per scan; corefw just reads
// whatever the most recent frame says.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hallcore/corefw/corefw/advancedkey"
	"github.com/hallcore/corefw/corefw/deferred"
	"github.com/hallcore/corefw/corefw/hidbridge"
	"github.com/hallcore/corefw/corefw/layout"
	"github.com/hallcore/corefw/corefw/matrix"
	"github.com/hallcore/corefw/corefw/profile"
	"github.com/hallcore/corefw/corefw/protocol"
	"github.com/hallcore/corefw/corefw/protocol/httpapi"
	"github.com/hallcore/corefw/corefw/storage"
	"github.com/hallcore/corefw/corefw/xinput"
)

var version = "dev"

func main() {
	var (
		imagePath  = flag.String("image", "corefw-image.json", "path to the EEPROM-image cache")
		sockPath   = flag.String("adc-socket", "/tmp/corefw-adc.sock", "unix socket the ADC sampler process connects to")
		vendorID   = flag.Uint("vendor-id", 0x1209, "AOA2 bridge USB vendor ID")
		productID  = flag.Uint("product-id", 0x0002, "AOA2 bridge USB product ID")
		serial     = flag.String("serial", "corefw", "AOA2 bridge serial number")
		numKeys    = flag.Int("keys", 20, "physical key count")
		numLayers  = flag.Int("layers", 4, "keymap layer count")
		numProfiles = flag.Int("profiles", 4, "profile slot count")
		numMacros  = flag.Int("macros", 8, "macro slot count")
	)
	flag.Parse()

	store, err := storage.Open(*imagePath, *numKeys, *numLayers, *numProfiles, *numMacros)
	if err != nil {
		log.Fatalf("[corefw] open image: %v", err)
	}
	img := store.Image()
	activeProfile := img.Profiles[img.CurrentProfile]

	timer := &monotonicTimer{start: time.Now()}

	sampler, err := newSocketSampler(*sockPath, *numKeys)
	if err != nil {
		log.Fatalf("[corefw] adc socket: %v", err)
	}
	defer sampler.Close()

	matrixOpts := matrix.Options{
		EMAAlphaExponent:       2,
		CalibrationEpsilon:     32,
		CalibrationDurationMS:  500,
		InactivityTimeoutMS:    5000,
		SaveBottomOutThreshold: img.SaveBottomOutThreshold,
		ADCMax:                 4095,
	}
	matrixEngine := matrix.New(*numKeys, matrixOpts, sampler, timer, store)
	for key, a := range activeProfile.Actuation {
		matrixEngine.SetActuation(key, matrix.Actuation{
			Point: a.Point, RTDown: a.RTDown, RTUp: a.RTUp, Continuous: a.Continuous,
		})
	}
	// Without this, every key starts at a zero-valued KeyState and
	// mis-actuates at rest until an operator happens to send CmdRecalibrate.
	matrixEngine.Recalibrate(true)

	bridge := hidbridge.NewManager(uint16(*vendorID), uint16(*productID), *serial, func(s hidbridge.State) {
		log.Printf("[corefw] hid bridge state: %s", s)
	})

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

	layoutEngine = layout.New(activeProfile, *numKeys, bridge, deferQueue, akEngine)
	layoutEngine.SetGamepad(xinput.NoOp{})

	status := &statusAdapter{matrixEngine: matrixEngine, layoutEngine: layoutEngine}
	dispatcher := protocol.New(activeProfile, store, akEngine, layoutEngine, matrixEngine, status, *numKeys, uint16(img.TickRateHz))
	api := httpapi.New(dispatcher, version)
	apiURL, err := api.Start()
	if err != nil {
		log.Printf("[corefw] httpapi start: %v", err)
	} else {
		log.Printf("[corefw] configuration API listening on %s", apiURL)
	}
	defer api.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	runTickLoop(ctx, matrixEngine, layoutEngine, timer, img.TickRateHz)

	bridge.Close()
	if err := store.Save(); err != nil {
		log.Printf("[corefw] save image on exit: %v", err)
	}
}

var deferQueue = deferred.NewQueue(16)

// runTickLoop is the fixed-order scan/dispatch/deferred-process loop of
// spec §7, paced by a host ticker rather than a hardware timer interrupt.
func runTickLoop(ctx context.Context, m *matrix.Engine, lay *layout.Engine, timer *monotonicTimer, tickRateHz int) {
	if tickRateHz <= 0 {
		tickRateHz = 1000
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRateHz))
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
		}
	}
}

type monotonicTimer struct{ start time.Time }

func (t *monotonicTimer) Now() uint32 { return uint32(time.Since(t.start).Milliseconds()) }

type matrixAnalogAdapter struct{ eng *matrix.Engine }

func (a matrixAnalogAdapter) Distance(key int) uint8 { return a.eng.Key(key).Distance }

type statusAdapter struct {
	matrixEngine *matrix.Engine
	layoutEngine *layout.Engine
}

func (s *statusAdapter) CurrentLayer() int         { return s.layoutEngine.GetCurrentLayer() }
func (s *statusAdapter) KeyPressed(key int) bool   { return s.matrixEngine.Key(key).Pressed }
func (s *statusAdapter) KeyDistance(key int) uint8 { return s.matrixEngine.Key(key).Distance }

// socketSampler implements matrix.AnalogSampler over a Unix domain socket:
// any connected client may push a frame of numKeys little-endian uint16
// raw readings; the most recently received frame is what Read serves
// until superseded. No frame yet means every key reads as 0 (clamped to
// the rest value's general neighborhood by the matrix engine's own
// calibration, same as a quiet/unplugged ADC channel).
type socketSampler struct {
	mu       sync.RWMutex
	raw      []uint16
	listener net.Listener
}

func newSocketSampler(path string, numKeys int) (*socketSampler, error) {
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	s := &socketSampler{raw: make([]uint16, numKeys), listener: ln}
	go s.acceptLoop()
	return s, nil
}

func (s *socketSampler) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.readLoop(conn)
	}
}

func (s *socketSampler) readLoop(conn net.Conn) {
	defer conn.Close()
	frame := make([]byte, len(s.raw)*2)
	for {
		if _, err := readFull(conn, frame); err != nil {
			return
		}
		s.mu.Lock()
		for i := range s.raw {
			s.raw[i] = binary.LittleEndian.Uint16(frame[i*2 : i*2+2])
		}
		s.mu.Unlock()
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *socketSampler) Read(key int) uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key < 0 || key >= len(s.raw) {
		return 0
	}
	return s.raw[key]
}

func (s *socketSampler) Close() {
	s.listener.Close()
}
