// Package protocol implements the 64-byte framed HID configuration
// protocol (§6): byte 0 is the command id, the rest is a little-endian
// packed payload, and a response either echoes the command id with its
// result or returns 0xFF on failure. Commands 0–10 are single-shot status
// and control operations; commands 128–141 page reads/writes of the
// larger per-key tables (keymap, actuation, advanced keys, gamepad
// buttons, macros) by offset and length, since none of those tables fit
// in one 64-byte frame, and read/write the gamepad options and tick rate
// whole.
package protocol

import (
	"encoding/binary"

	"github.com/hallcore/corefw/corefw/profile"
	"github.com/hallcore/corefw/corefw/storage"
)

// FrameSize is the fixed HID report size the transport frames commands in.
const FrameSize = 64

// payloadSize is how much of a frame is left for command payload once the
// command id is removed; paged commands subtract their 3-byte offset/len
// header from it themselves.
const payloadSize = FrameSize - 1

// Command ids, 0–10: single-shot status/control.
const (
	CmdGetStatus      = 0
	CmdGetKeyState    = 1
	CmdGetProfile     = 2
	CmdSetProfile     = 3
	CmdRecalibrate    = 4
	CmdSaveImage      = 5
	CmdGetBottomOut   = 6
	CmdSetActuation   = 7
	CmdGetActuation   = 8
	CmdClearAdvanced  = 9
	CmdPing           = 10
)

// Command ids, 128–141: offset-paged table reads/writes.
const (
	CmdReadKeymap          = 128
	CmdWriteKeymap         = 129
	CmdReadActuationMap    = 130
	CmdWriteActuationMap   = 131
	CmdReadAdvancedKeys    = 132
	CmdWriteAdvancedKeys   = 133
	CmdReadGamepadButtons  = 134
	CmdWriteGamepadButtons = 135
	CmdReadGamepadOptions  = 136
	CmdWriteGamepadOptions = 137
	CmdReadMacros          = 138
	CmdWriteMacros         = 139
	CmdReadTickRate        = 140
	CmdWriteTickRate       = 141
)

// cmdFail is returned in byte 0 of the response frame on any failure.
const cmdFail = 0xFF

// AdvancedKeyClearer is satisfied by advancedkey.Engine. Any configuration
// write that touches advanced keys or layers MUST clear live advanced-key
// state, then reinstall the (possibly resized) slot table, before the
// layout engine reloads, per §6's MUST.
type AdvancedKeyClearer interface {
	Clear()
	LoadKeys(keys []profile.AdvancedKey)
}

// LayoutReloader is satisfied by layout.Engine.
type LayoutReloader interface {
	LoadAdvancedKeys()
}

// MatrixRecalibrator is satisfied by matrix.Engine. CmdRecalibrate is the
// only way a configuration tool can reseed the rest/bottom-out envelope
// without a reboot.
type MatrixRecalibrator interface {
	Recalibrate(resetBottomOut bool)
}

// StatusSource supplies the live values CmdGetStatus and CmdGetKeyState
// report, which live outside the profile image (current layer, per-key
// press/distance).
type StatusSource interface {
	CurrentLayer() int
	KeyPressed(key int) bool
	KeyDistance(key int) uint8
}

// Dispatcher owns the live profile image and the collaborators a
// configuration write must fan out to: the wear-levelled persistence
// store and the advanced-key/layout reload hooks.
type Dispatcher struct {
	TickRateHz uint16

	profile *profile.ActiveProfile
	store   *storage.Store
	ak      AdvancedKeyClearer
	layout  LayoutReloader
	matrix  MatrixRecalibrator
	status  StatusSource
	numKeys int
}

// New creates a Dispatcher over the given live profile image.
func New(p *profile.ActiveProfile, store *storage.Store, ak AdvancedKeyClearer, layout LayoutReloader, matrix MatrixRecalibrator, status StatusSource, numKeys int, tickRateHz uint16) *Dispatcher {
	return &Dispatcher{
		profile: p, store: store, ak: ak, layout: layout, matrix: matrix, status: status,
		numKeys: numKeys, TickRateHz: tickRateHz,
	}
}

// Handle decodes one 64-byte command frame and returns the 64-byte
// response frame, whose byte 0 echoes the command id unless it is cmdFail.
func (d *Dispatcher) Handle(frame [FrameSize]byte) [FrameSize]byte {
	resp := d.dispatch(frame)
	if resp[0] != cmdFail {
		resp[0] = frame[0]
	}
	return resp
}

func (d *Dispatcher) dispatch(frame [FrameSize]byte) [FrameSize]byte {
	cmd := frame[0]
	payload := frame[1:]

	switch cmd {
	case CmdGetStatus:
		return d.getStatus()
	case CmdGetKeyState:
		return d.getKeyState(payload)
	case CmdGetProfile:
		return d.okByte(byte(d.store.Image().CurrentProfile))
	case CmdSetProfile:
		return d.setProfile(payload)
	case CmdRecalibrate:
		return d.recalibrate(payload)
	case CmdSaveImage:
		return d.saveImage()
	case CmdGetBottomOut:
		return d.getBottomOut(payload)
	case CmdSetActuation:
		return d.setActuation(payload)
	case CmdGetActuation:
		return d.getActuation(payload)
	case CmdClearAdvanced:
		return d.clearAdvanced()
	case CmdPing:
		return d.ok()

	case CmdReadKeymap:
		return d.pagedRead(CmdReadKeymap, payload, d.serializeKeymap())
	case CmdWriteKeymap:
		return d.pagedWriteKeymap(payload)
	case CmdReadActuationMap:
		return d.pagedRead(CmdReadActuationMap, payload, d.serializeActuationMap())
	case CmdWriteActuationMap:
		return d.pagedWriteActuationMap(payload)
	case CmdReadAdvancedKeys:
		return d.pagedRead(CmdReadAdvancedKeys, payload, d.serializeAdvancedKeys())
	case CmdWriteAdvancedKeys:
		return d.pagedWriteAdvancedKeys(payload)
	case CmdReadGamepadButtons:
		return d.pagedRead(CmdReadGamepadButtons, payload, d.serializeGamepadButtons())
	case CmdWriteGamepadButtons:
		return d.pagedWriteGamepadButtons(payload)
	case CmdReadGamepadOptions:
		return d.getGamepadOptions()
	case CmdWriteGamepadOptions:
		return d.setGamepadOptions(payload)
	case CmdReadMacros:
		return d.pagedRead(CmdReadMacros, payload, d.serializeMacros())
	case CmdWriteMacros:
		return d.pagedWriteMacros(payload)
	case CmdReadTickRate:
		return d.okUint16(d.TickRateHz)
	case CmdWriteTickRate:
		return d.setTickRate(payload)
	}

	return fail()
}

func fail() [FrameSize]byte {
	var f [FrameSize]byte
	f[0] = cmdFail
	return f
}

func (d *Dispatcher) ok() [FrameSize]byte {
	var f [FrameSize]byte
	f[0] = CmdPing
	return f
}

func (d *Dispatcher) okByte(v byte) [FrameSize]byte {
	var f [FrameSize]byte
	f[0] = CmdGetProfile
	f[1] = v
	return f
}

func (d *Dispatcher) okUint16(v uint16) [FrameSize]byte {
	var f [FrameSize]byte
	f[0] = CmdReadTickRate
	binary.LittleEndian.PutUint16(f[1:3], v)
	return f
}

// reloadAfterMutation clears live advanced-key state and reloads the
// layout engine's advanced-key index, per §6's MUST for any write that
// touches advanced keys or layers.
func (d *Dispatcher) reloadAfterMutation() {
	if d.ak != nil {
		d.ak.Clear()
		d.ak.LoadKeys(d.profile.AdvancedKeys)
	}
	if d.layout != nil {
		d.layout.LoadAdvancedKeys()
	}
}
