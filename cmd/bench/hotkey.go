package main

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"golang.design/x/hotkey"
)

// hotkeyBinding binds one global OS hotkey to a simulated key index on the
// bench harness's software matrix — press and release of the hotkey drive
// press and release edges on that key, the same hold-to-talk style
// wiring the teacher's PTT hotkey manager used, repurposed here to let a
// developer exercise Tap-Hold/Toggle/Combo timing from a real keyboard
// without hall-effect hardware.
type hotkeyBinding struct {
	mu     sync.Mutex
	hk     *hotkey.Hotkey
	cancel context.CancelFunc
	key    int
	onDown func(key int)
	onUp   func(key int)
}

func newHotkeyBinding(key int, onDown, onUp func(key int)) *hotkeyBinding {
	return &hotkeyBinding{key: key, onDown: onDown, onUp: onUp}
}

// Register sets up a global hotkey with the given modifiers and key name.
// If a hotkey is already registered, it is unregistered first.
func (b *hotkeyBinding) Register(mods []string, keyName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.unregisterLocked()

	parsedMods, err := parseModifiers(mods)
	if err != nil {
		return fmt.Errorf("parse modifiers: %w", err)
	}
	parsedKey, err := parseKey(keyName)
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}

	hk := hotkey.New(parsedMods, parsedKey)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register hotkey: %w", err)
	}
	b.hk = hk

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.listen(ctx, hk)

	log.Printf("[bench] key %d bound to %v+%s", b.key, mods, keyName)
	return nil
}

// listen loops on keydown/keyup channels and drives simulated key edges.
// Linux X11 auto-repeat generates spurious keyup/keydown pairs for a held
// key; debounce the keyup so a held hotkey reads as one continuous press
// rather than a press/release train.
func (b *hotkeyBinding) listen(ctx context.Context, hk *hotkey.Hotkey) {
	isLinux := runtime.GOOS == "linux"
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return
		case <-hk.Keydown():
			if isLinux && debounceTimer != nil {
				debounceTimer.Stop()
				debounceTimer = nil
				continue
			}
			if b.onDown != nil {
				b.onDown(b.key)
			}
		case <-hk.Keyup():
			if isLinux {
				debounceTimer = time.AfterFunc(50*time.Millisecond, func() {
					if b.onUp != nil {
						b.onUp(b.key)
					}
					b.mu.Lock()
					debounceTimer = nil
					b.mu.Unlock()
				})
			} else if b.onUp != nil {
				b.onUp(b.key)
			}
		}
	}
}

// Unregister removes the current global hotkey.
func (b *hotkeyBinding) Unregister() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unregisterLocked()
}

func (b *hotkeyBinding) unregisterLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.hk != nil {
		b.hk.Unregister()
		b.hk = nil
	}
}
