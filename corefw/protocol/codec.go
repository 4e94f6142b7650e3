package protocol

import (
	"bytes"
	"encoding/binary"

	"github.com/hallcore/corefw/corefw/profile"
)

// maxComboKeys bounds the serialized Combo.Keys slice so its wire record
// stays fixed-size; keys past the fourth are not serialized. The combo
// engine itself places no limit on how many keys one combo requires.
const maxComboKeys = 4

// boolByte/byteBool round-trip a bool through a single wire byte.
func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
func byteBool(b byte) bool { return b != 0 }

// serializeKeymap flattens profile.Keymap[layer][key] into
// numLayers*numKeys bytes, one per keycode, layer-major.
func (d *Dispatcher) serializeKeymap() []byte {
	p := d.profile
	out := make([]byte, 0, len(p.Keymap)*d.numKeys)
	for _, layer := range p.Keymap {
		for _, kc := range layer {
			out = append(out, byte(kc))
		}
	}
	return out
}

func (d *Dispatcher) writeKeymapChunk(offset int, data []byte) {
	p := d.profile
	for i, b := range data {
		idx := offset + i
		layer := idx / d.numKeys
		key := idx % d.numKeys
		if layer < 0 || layer >= len(p.Keymap) || key < 0 || key >= len(p.Keymap[layer]) {
			continue
		}
		p.Keymap[layer][key] = profile.Keycode(b)
	}
}

// actuationRecordSize is the wire size of one profile.Actuation entry.
const actuationRecordSize = 4

func (d *Dispatcher) serializeActuationMap() []byte {
	buf := &bytes.Buffer{}
	for _, a := range d.profile.Actuation {
		buf.WriteByte(a.Point)
		buf.WriteByte(a.RTDown)
		buf.WriteByte(a.RTUp)
		buf.WriteByte(boolByte(a.Continuous))
	}
	return buf.Bytes()
}

func (d *Dispatcher) writeActuationMapChunk(offset int, data []byte) {
	for i := 0; i+actuationRecordSize <= len(data); i += actuationRecordSize {
		key := (offset + i) / actuationRecordSize
		if key < 0 || key >= len(d.profile.Actuation) {
			continue
		}
		rec := data[i : i+actuationRecordSize]
		d.profile.Actuation[key] = profile.Actuation{
			Point:      rec[0],
			RTDown:     rec[1],
			RTUp:       rec[2],
			Continuous: byteBool(rec[3]),
		}
	}
}

// advancedKeyRecordSize is the fixed wire size of one profile.AdvancedKey,
// every union arm serialized unconditionally regardless of Type.
const advancedKeyRecordSize = 1 + 2 + 2 + 19 + 5 + 9 + 8 + (1 + maxComboKeys*2 + 4 + 1 + 1) + profile.MaxMacroEvents*2

func (d *Dispatcher) serializeAdvancedKeys() []byte {
	buf := &bytes.Buffer{}
	for _, ak := range d.profile.AdvancedKeys {
		writeAdvancedKey(buf, ak)
	}
	return buf.Bytes()
}

func writeAdvancedKey(buf *bytes.Buffer, ak profile.AdvancedKey) {
	buf.WriteByte(byte(ak.Type))
	writeU16(buf, uint16(ak.Layer))
	writeU16(buf, uint16(ak.Key))

	th := ak.TapHold
	buf.WriteByte(byte(th.TapKeycode))
	buf.WriteByte(byte(th.HoldKeycode))
	writeU32(buf, th.TappingTermMS)
	buf.WriteByte(byte(th.Flavor))
	buf.WriteByte(boolByte(th.HoldOnOtherKeyPress))
	buf.WriteByte(boolByte(th.PermissiveHold))
	buf.WriteByte(boolByte(th.RetroTapping))
	writeU32(buf, th.QuickTapMS)
	writeU32(buf, th.RequirePriorIdleMS)
	buf.WriteByte(byte(th.DoubleTapKeycode))

	tg := ak.Toggle
	buf.WriteByte(byte(tg.Keycode))
	writeU32(buf, tg.TappingTermMS)

	for _, b := range ak.DKS.Bindings {
		buf.WriteByte(byte(b.Keycode))
		buf.WriteByte(b.ActionBitmap)
	}
	buf.WriteByte(ak.DKS.BottomOutPoint)

	nb := ak.NullBind
	writeU16(buf, uint16(nb.PrimaryKey))
	writeU16(buf, uint16(nb.SecondaryKey))
	buf.WriteByte(byte(nb.Keycodes[0]))
	buf.WriteByte(byte(nb.Keycodes[1]))
	buf.WriteByte(byte(nb.Behavior))
	buf.WriteByte(nb.BottomOutPoint)

	cb := ak.Combo
	n := len(cb.Keys)
	if n > maxComboKeys {
		n = maxComboKeys
	}
	buf.WriteByte(byte(n))
	for i := 0; i < maxComboKeys; i++ {
		if i < n {
			writeU16(buf, uint16(cb.Keys[i]))
		} else {
			writeU16(buf, 0)
		}
	}
	writeU32(buf, cb.TermMS)
	buf.WriteByte(byte(cb.OutputKeycode))
	buf.WriteByte(byte(cb.Layer))

	for _, ev := range ak.Macro.Events {
		buf.WriteByte(byte(ev.Action))
		buf.WriteByte(byte(ev.Keycode))
	}
}

func readAdvancedKey(data []byte) profile.AdvancedKey {
	var ak profile.AdvancedKey
	r := bytes.NewReader(data)

	typ, _ := r.ReadByte()
	ak.Type = profile.AdvancedKeyType(typ)
	ak.Layer = int(readU16(r))
	ak.Key = int(readU16(r))

	tapKc, _ := r.ReadByte()
	holdKc, _ := r.ReadByte()
	ak.TapHold.TapKeycode = profile.Keycode(tapKc)
	ak.TapHold.HoldKeycode = profile.Keycode(holdKc)
	ak.TapHold.TappingTermMS = readU32(r)
	flavor, _ := r.ReadByte()
	ak.TapHold.Flavor = profile.TapHoldFlavor(flavor)
	hop, _ := r.ReadByte()
	ak.TapHold.HoldOnOtherKeyPress = byteBool(hop)
	ph, _ := r.ReadByte()
	ak.TapHold.PermissiveHold = byteBool(ph)
	rt, _ := r.ReadByte()
	ak.TapHold.RetroTapping = byteBool(rt)
	ak.TapHold.QuickTapMS = readU32(r)
	ak.TapHold.RequirePriorIdleMS = readU32(r)
	dtk, _ := r.ReadByte()
	ak.TapHold.DoubleTapKeycode = profile.Keycode(dtk)

	tgKc, _ := r.ReadByte()
	ak.Toggle.Keycode = profile.Keycode(tgKc)
	ak.Toggle.TappingTermMS = readU32(r)

	for i := range ak.DKS.Bindings {
		kc, _ := r.ReadByte()
		bm, _ := r.ReadByte()
		ak.DKS.Bindings[i] = profile.DKSBinding{Keycode: profile.Keycode(kc), ActionBitmap: bm}
	}
	bop, _ := r.ReadByte()
	ak.DKS.BottomOutPoint = bop

	ak.NullBind.PrimaryKey = int(readU16(r))
	ak.NullBind.SecondaryKey = int(readU16(r))
	nb0, _ := r.ReadByte()
	nb1, _ := r.ReadByte()
	ak.NullBind.Keycodes = [2]profile.Keycode{profile.Keycode(nb0), profile.Keycode(nb1)}
	behavior, _ := r.ReadByte()
	ak.NullBind.Behavior = profile.NBBehavior(behavior)
	nbop, _ := r.ReadByte()
	ak.NullBind.BottomOutPoint = nbop

	comboN, _ := r.ReadByte()
	keys := make([]int, 0, comboN)
	for i := 0; i < maxComboKeys; i++ {
		k := int(readU16(r))
		if i < int(comboN) {
			keys = append(keys, k)
		}
	}
	ak.Combo.Keys = keys
	ak.Combo.TermMS = readU32(r)
	outKc, _ := r.ReadByte()
	ak.Combo.OutputKeycode = profile.Keycode(outKc)
	comboLayer, _ := r.ReadByte()
	ak.Combo.Layer = int(comboLayer)

	for i := range ak.Macro.Events {
		action, _ := r.ReadByte()
		kc, _ := r.ReadByte()
		ak.Macro.Events[i] = profile.MacroEvent{Action: profile.MacroActionType(action), Keycode: profile.Keycode(kc)}
	}

	return ak
}

func (d *Dispatcher) writeAdvancedKeysChunk(offset int, data []byte) {
	for i := 0; i+advancedKeyRecordSize <= len(data); i += advancedKeyRecordSize {
		idx := (offset + i) / advancedKeyRecordSize
		if idx < 0 || idx >= len(d.profile.AdvancedKeys) {
			continue
		}
		d.profile.AdvancedKeys[idx] = readAdvancedKey(data[i : i+advancedKeyRecordSize])
	}
}

// gamepadButtonRecordSize is the wire size of one profile.GamepadButton.
const gamepadButtonRecordSize = 3

func (d *Dispatcher) serializeGamepadButtons() []byte {
	buf := &bytes.Buffer{}
	for _, gb := range d.profile.GamepadButtons {
		writeU16(buf, gb.Button)
		buf.WriteByte(boolByte(gb.Override))
	}
	return buf.Bytes()
}

func (d *Dispatcher) writeGamepadButtonsChunk(offset int, data []byte) {
	for i := 0; i+gamepadButtonRecordSize <= len(data); i += gamepadButtonRecordSize {
		key := (offset + i) / gamepadButtonRecordSize
		if key < 0 || key >= len(d.profile.GamepadButtons) {
			continue
		}
		rec := data[i : i+gamepadButtonRecordSize]
		d.profile.GamepadButtons[key] = profile.GamepadButton{
			Button:   uint16(rec[0]) | uint16(rec[1])<<8,
			Override: byteBool(rec[2]),
		}
	}
}

func (d *Dispatcher) serializeMacros() []byte {
	buf := &bytes.Buffer{}
	for _, m := range d.store.Image().Macros {
		for _, ev := range m.Events {
			buf.WriteByte(byte(ev.Action))
			buf.WriteByte(byte(ev.Keycode))
		}
	}
	return buf.Bytes()
}

const macroRecordSize = profile.MaxMacroEvents * 2

func (d *Dispatcher) writeMacrosChunk(offset int, data []byte) {
	macros := d.store.Image().Macros
	for i := 0; i+macroRecordSize <= len(data); i += macroRecordSize {
		idx := (offset + i) / macroRecordSize
		if idx < 0 || idx >= len(macros) {
			continue
		}
		rec := data[i : i+macroRecordSize]
		var m profile.MacroConfig
		for j := range m.Events {
			m.Events[j] = profile.MacroEvent{
				Action:  profile.MacroActionType(rec[j*2]),
				Keycode: profile.Keycode(rec[j*2+1]),
			}
		}
		macros[idx] = m
	}
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU16(r *bytes.Reader) uint16 {
	var b [2]byte
	r.Read(b[:])
	return binary.LittleEndian.Uint16(b[:])
}

func readU32(r *bytes.Reader) uint32 {
	var b [4]byte
	r.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}
