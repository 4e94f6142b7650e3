// Package keycode provides the symbolic-name <-> HID usage-ID tables for
// profile.Keycode, for rendering and parsing human-readable keycode names
// without hardcoding numeric keycodes. No other package of the module
// imports it; profile's YAML files carry numeric keycodes.
package keycode

import (
	"strconv"

	"github.com/hallcore/corefw/corefw/profile"
)

// byName maps a symbolic name (as used in YAML profiles) to its keycode.
// Only the standard HID usage range plus the core's special keycodes are
// covered; momentary-layer and profile-select keycodes are built with
// profile.MO/profile.PROFILE instead of named here.
var byName = map[string]profile.Keycode{
	"none":        profile.KCNone,
	"transparent": profile.KCTransparent,

	"a": 0x04, "b": 0x05, "c": 0x06, "d": 0x07, "e": 0x08, "f": 0x09,
	"g": 0x0A, "h": 0x0B, "i": 0x0C, "j": 0x0D, "k": 0x0E, "l": 0x0F,
	"m": 0x10, "n": 0x11, "o": 0x12, "p": 0x13, "q": 0x14, "r": 0x15,
	"s": 0x16, "t": 0x17, "u": 0x18, "v": 0x19, "w": 0x1A, "x": 0x1B,
	"y": 0x1C, "z": 0x1D,

	"1": 0x1E, "2": 0x1F, "3": 0x20, "4": 0x21, "5": 0x22,
	"6": 0x23, "7": 0x24, "8": 0x25, "9": 0x26, "0": 0x27,

	"enter": 0x28, "escape": 0x29, "backspace": 0x2A, "tab": 0x2B,
	"space": 0x2C, "minus": 0x2D, "equal": 0x2E,
	"left_bracket": 0x2F, "right_bracket": 0x30, "backslash": 0x31,
	"semicolon": 0x33, "quote": 0x34, "grave": 0x35,
	"comma": 0x36, "period": 0x37, "slash": 0x38, "caps_lock": 0x39,

	"f1": 0x3A, "f2": 0x3B, "f3": 0x3C, "f4": 0x3D, "f5": 0x3E, "f6": 0x3F,
	"f7": 0x40, "f8": 0x41, "f9": 0x42, "f10": 0x43, "f11": 0x44, "f12": 0x45,

	"print_screen": 0x46, "scroll_lock": 0x47, "pause": 0x48,
	"insert": 0x49, "home": 0x4A, "page_up": 0x4B, "delete": 0x4C,
	"end": 0x4D, "page_down": 0x4E,
	"right": 0x4F, "left": 0x50, "down": 0x51, "up": 0x52,

	"left_ctrl": 0xD0, "left_shift": 0xD1, "left_alt": 0xD2, "left_gui": 0xD3,
	"right_ctrl": 0xD4, "right_shift": 0xD5, "right_alt": 0xD6, "right_gui": 0xD7,

	"key_lock":     profile.SPKeyLock,
	"layer_lock":   profile.SPLayerLock,
	"profile_swap": profile.SPProfileSwap,
	"profile_next": profile.SPProfileNext,
	"boot":         profile.SPBoot,
}

var byKeycode = func() map[profile.Keycode]string {
	m := make(map[profile.Keycode]string, len(byName))
	for name, kc := range byName {
		if _, exists := m[kc]; !exists {
			m[kc] = name
		}
	}
	return m
}()

// Lookup resolves a symbolic name to its keycode. ok is false for an
// unrecognized name.
func Lookup(name string) (profile.Keycode, bool) {
	kc, ok := byName[name]
	return kc, ok
}

// Name returns kc's symbolic name, or "" if it has none registered (e.g.
// a momentary-layer or profile-select keycode, which are named
// structurally rather than by table lookup).
func Name(kc profile.Keycode) string {
	if name, ok := byKeycode[kc]; ok {
		return name
	}
	if layer, ok := kc.IsMomentaryLayer(); ok {
		return momentaryLayerName(layer)
	}
	if p, ok := kc.IsProfileSelect(); ok {
		return profileSelectName(p)
	}
	return ""
}

func momentaryLayerName(layer int) string {
	return "mo(" + strconv.Itoa(layer) + ")"
}

func profileSelectName(p int) string {
	return "profile(" + strconv.Itoa(p) + ")"
}
