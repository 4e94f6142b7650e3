package protocol

import "encoding/binary"

// getStatus answers CmdGetStatus: current layer, active profile, tick
// rate, and num keys — the at-a-glance state a configuration tool polls.
func (d *Dispatcher) getStatus() [FrameSize]byte {
	var f [FrameSize]byte
	f[0] = CmdGetStatus
	layer := 0
	if d.status != nil {
		layer = d.status.CurrentLayer()
	}
	f[1] = byte(layer)
	f[2] = byte(d.store.Image().CurrentProfile)
	binary.LittleEndian.PutUint16(f[3:5], d.TickRateHz)
	f[5] = byte(d.numKeys)
	return f
}

// getKeyState answers CmdGetKeyState: payload[0] selects the key, the
// response carries pressed (byte) and travel distance (byte).
func (d *Dispatcher) getKeyState(payload []byte) [FrameSize]byte {
	if d.status == nil || len(payload) < 1 {
		return fail()
	}
	key := int(payload[0])
	if key < 0 || key >= d.numKeys {
		return fail()
	}
	var f [FrameSize]byte
	f[0] = CmdGetKeyState
	f[1] = payload[0]
	f[2] = boolByte(d.status.KeyPressed(key))
	f[3] = d.status.KeyDistance(key)
	return f
}

// setProfile answers CmdSetProfile: switches the live profile pointer to
// a different slot in the stored image and reloads advanced-key state,
// since every field the layout/advancedkey engines read changes at once.
func (d *Dispatcher) setProfile(payload []byte) [FrameSize]byte {
	if len(payload) < 1 {
		return fail()
	}
	idx := int(payload[0])
	img := d.store.Image()
	if idx < 0 || idx >= len(img.Profiles) {
		return fail()
	}
	img.CurrentProfile = idx
	d.profile = img.Profiles[idx]
	d.reloadAfterMutation()
	_ = d.store.Save()
	return d.okByte(payload[0])
}

// recalibrate answers CmdRecalibrate: payload[0] is resetBottomOut, per
// §6. A configuration tool calls this after reseating switches or
// swapping a profile's spring/magnet set, when the stored envelope no
// longer reflects the physical rest/bottom-out points.
func (d *Dispatcher) recalibrate(payload []byte) [FrameSize]byte {
	if len(payload) < 1 || d.matrix == nil {
		return fail()
	}
	d.matrix.Recalibrate(payload[0] != 0)
	return d.ok()
}

func (d *Dispatcher) saveImage() [FrameSize]byte {
	if err := d.store.Save(); err != nil {
		return fail()
	}
	return d.ok()
}

func (d *Dispatcher) getBottomOut(payload []byte) [FrameSize]byte {
	if len(payload) < 1 {
		return fail()
	}
	key := int(payload[0])
	img := d.store.Image()
	if key < 0 || key >= len(img.BottomOutThreshold) {
		return fail()
	}
	var f [FrameSize]byte
	f[0] = CmdGetBottomOut
	f[1] = payload[0]
	binary.LittleEndian.PutUint16(f[2:4], img.BottomOutThreshold[key])
	return f
}

func (d *Dispatcher) setActuation(payload []byte) [FrameSize]byte {
	if len(payload) < 1+actuationRecordSize {
		return fail()
	}
	key := int(payload[0])
	if key < 0 || key >= len(d.profile.Actuation) {
		return fail()
	}
	d.writeActuationMapChunk(key*actuationRecordSize, payload[1:1+actuationRecordSize])
	_ = d.store.Save()
	return d.ok()
}

func (d *Dispatcher) getActuation(payload []byte) [FrameSize]byte {
	if len(payload) < 1 {
		return fail()
	}
	key := int(payload[0])
	if key < 0 || key >= len(d.profile.Actuation) {
		return fail()
	}
	a := d.profile.Actuation[key]
	var f [FrameSize]byte
	f[0] = CmdGetActuation
	f[1] = payload[0]
	f[2], f[3], f[4], f[5] = a.Point, a.RTDown, a.RTUp, boolByte(a.Continuous)
	return f
}

func (d *Dispatcher) clearAdvanced() [FrameSize]byte {
	d.profile.AdvancedKeys = d.profile.AdvancedKeys[:0]
	d.reloadAfterMutation()
	_ = d.store.Save()
	return d.ok()
}

// pagedRead header: payload[0:2] = uint16 offset, payload[2] = requested
// length. The response header mirrors it, then carries up to
// payloadSize-3 bytes of data clamped to what full actually has left.
func (d *Dispatcher) pagedRead(cmd byte, payload []byte, full []byte) [FrameSize]byte {
	if len(payload) < 3 {
		return fail()
	}
	offset := int(binary.LittleEndian.Uint16(payload[0:2]))
	length := int(payload[2])
	maxData := payloadSize - 3

	if offset < 0 || offset > len(full) {
		return fail()
	}
	if length > maxData {
		length = maxData
	}
	if offset+length > len(full) {
		length = len(full) - offset
	}

	var f [FrameSize]byte
	f[0] = cmd
	binary.LittleEndian.PutUint16(f[1:3], uint16(offset))
	f[3] = byte(length)
	copy(f[4:], full[offset:offset+length])
	return f
}

// pagedWriteHeader splits a paged-write payload into its offset and data
// slice, honoring the declared length byte.
func pagedWriteHeader(payload []byte) (offset int, data []byte, ok bool) {
	if len(payload) < 3 {
		return 0, nil, false
	}
	offset = int(binary.LittleEndian.Uint16(payload[0:2]))
	length := int(payload[2])
	if length > len(payload)-3 {
		length = len(payload) - 3
	}
	return offset, payload[3 : 3+length], true
}

func (d *Dispatcher) pagedWriteKeymap(payload []byte) [FrameSize]byte {
	offset, data, ok := pagedWriteHeader(payload)
	if !ok {
		return fail()
	}
	d.writeKeymapChunk(offset, data)
	d.reloadAfterMutation()
	_ = d.store.Save()
	return d.ok()
}

func (d *Dispatcher) pagedWriteActuationMap(payload []byte) [FrameSize]byte {
	offset, data, ok := pagedWriteHeader(payload)
	if !ok {
		return fail()
	}
	d.writeActuationMapChunk(offset, data)
	_ = d.store.Save()
	return d.ok()
}

func (d *Dispatcher) pagedWriteAdvancedKeys(payload []byte) [FrameSize]byte {
	offset, data, ok := pagedWriteHeader(payload)
	if !ok {
		return fail()
	}
	d.writeAdvancedKeysChunk(offset, data)
	d.reloadAfterMutation()
	_ = d.store.Save()
	return d.ok()
}

func (d *Dispatcher) pagedWriteGamepadButtons(payload []byte) [FrameSize]byte {
	offset, data, ok := pagedWriteHeader(payload)
	if !ok {
		return fail()
	}
	d.writeGamepadButtonsChunk(offset, data)
	_ = d.store.Save()
	return d.ok()
}

func (d *Dispatcher) getGamepadOptions() [FrameSize]byte {
	opts := d.profile.GamepadOptions
	var f [FrameSize]byte
	f[0] = CmdReadGamepadOptions
	f[1] = boolByte(opts.XInputEnabled)
	f[2] = boolByte(opts.KeyboardEnabled)
	return f
}

func (d *Dispatcher) setGamepadOptions(payload []byte) [FrameSize]byte {
	if len(payload) < 2 {
		return fail()
	}
	d.profile.GamepadOptions.XInputEnabled = byteBool(payload[0])
	d.profile.GamepadOptions.KeyboardEnabled = byteBool(payload[1])
	_ = d.store.Save()
	return d.ok()
}

func (d *Dispatcher) pagedWriteMacros(payload []byte) [FrameSize]byte {
	offset, data, ok := pagedWriteHeader(payload)
	if !ok {
		return fail()
	}
	d.writeMacrosChunk(offset, data)
	_ = d.store.Save()
	return d.ok()
}

func (d *Dispatcher) setTickRate(payload []byte) [FrameSize]byte {
	if len(payload) < 2 {
		return fail()
	}
	d.TickRateHz = binary.LittleEndian.Uint16(payload[0:2])
	d.store.Image().TickRateHz = int(d.TickRateHz)
	_ = d.store.Save()
	return d.okUint16(d.TickRateHz)
}
