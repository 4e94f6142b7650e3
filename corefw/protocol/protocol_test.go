package protocol

import (
	"path/filepath"
	"testing"

	"github.com/hallcore/corefw/corefw/profile"
	"github.com/hallcore/corefw/corefw/storage"
)

type fakeStatus struct {
	layer    int
	pressed  map[int]bool
	distance map[int]uint8
}

func (f *fakeStatus) CurrentLayer() int          { return f.layer }
func (f *fakeStatus) KeyPressed(key int) bool    { return f.pressed[key] }
func (f *fakeStatus) KeyDistance(key int) uint8  { return f.distance[key] }

type fakeAK struct {
	cleared  bool
	loaded   []profile.AdvancedKey
}

func (f *fakeAK) Clear()                               { f.cleared = true }
func (f *fakeAK) LoadKeys(keys []profile.AdvancedKey)   { f.loaded = keys }

type fakeLayout struct{ reloaded bool }

func (f *fakeLayout) LoadAdvancedKeys() { f.reloaded = true }

type fakeMatrix struct {
	recalibrated   bool
	resetBottomOut bool
}

func (f *fakeMatrix) Recalibrate(resetBottomOut bool) {
	f.recalibrated = true
	f.resetBottomOut = resetBottomOut
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *storage.Store, *fakeAK, *fakeLayout) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "image.json"), 4, 2, 2, 2)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	ak := &fakeAK{}
	lay := &fakeLayout{}
	mat := &fakeMatrix{}
	status := &fakeStatus{layer: 1, pressed: map[int]bool{0: true}, distance: map[int]uint8{0: 120}}
	p := store.Image().Profiles[0]
	d := New(p, store, ak, lay, mat, status, 4, 1000)
	return d, store, ak, lay
}

func frame(cmd byte, rest ...byte) [FrameSize]byte {
	var f [FrameSize]byte
	f[0] = cmd
	copy(f[1:], rest)
	return f
}

func TestGetStatusReportsLayerAndProfile(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	resp := d.Handle(frame(CmdGetStatus))
	if resp[0] != CmdGetStatus {
		t.Fatalf("expected echoed command, got %d", resp[0])
	}
	if resp[1] != 1 {
		t.Fatalf("expected layer 1, got %d", resp[1])
	}
}

func TestGetKeyStateReportsPressedAndDistance(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	resp := d.Handle(frame(CmdGetKeyState, 0))
	if resp[2] != 1 {
		t.Fatalf("expected pressed=1, got %d", resp[2])
	}
	if resp[3] != 120 {
		t.Fatalf("expected distance 120, got %d", resp[3])
	}
}

func TestSetActuationThenGetActuationRoundTrips(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	setResp := d.Handle(frame(CmdSetActuation, 0, 40, 2, 2, 1))
	if setResp[0] == cmdFail {
		t.Fatalf("expected set to succeed")
	}
	getResp := d.Handle(frame(CmdGetActuation, 0))
	if getResp[2] != 40 || getResp[3] != 2 || getResp[4] != 2 || getResp[5] != 1 {
		t.Fatalf("expected round-tripped actuation, got %v", getResp[2:6])
	}
}

func TestWriteKeymapChunkThenReadKeymapRoundTrips(t *testing.T) {
	d, _, ak, lay := newTestDispatcher(t)

	writePayload := []byte{0, 0, 2, 0x04, 0x05}
	wf := frame(CmdWriteKeymap)
	copy(wf[1:], writePayload)
	resp := d.Handle(wf)
	if resp[0] == cmdFail {
		t.Fatalf("expected keymap write to succeed")
	}
	if !ak.cleared || !lay.reloaded {
		t.Fatalf("expected advanced-key clear + layout reload on keymap write")
	}

	readPayload := []byte{0, 0, 2}
	rf := frame(CmdReadKeymap)
	copy(rf[1:], readPayload)
	rresp := d.Handle(rf)
	if rresp[4] != 0x04 || rresp[5] != 0x05 {
		t.Fatalf("expected read-back keymap bytes, got %v", rresp[4:6])
	}
}

func TestRecalibrateForwardsResetBottomOutFlag(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "image.json"), 4, 2, 2, 2)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	mat := &fakeMatrix{}
	d := New(store.Image().Profiles[0], store, &fakeAK{}, &fakeLayout{}, mat, &fakeStatus{}, 4, 1000)

	resp := d.Handle(frame(CmdRecalibrate, 1))
	if resp[0] == cmdFail {
		t.Fatalf("expected recalibrate to succeed")
	}
	if !mat.recalibrated || !mat.resetBottomOut {
		t.Fatalf("expected Recalibrate(true) to reach the matrix engine")
	}
}

func TestUnknownCommandFails(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	resp := d.Handle(frame(0x63))
	if resp[0] != cmdFail {
		t.Fatalf("expected failure echo for unknown command")
	}
}
