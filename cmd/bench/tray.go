package main

import (
	"fmt"

	"fyne.io/systray"

	"github.com/hallcore/corefw/corefw/hidbridge"
)

// Placeholder monochrome icon bytes — a real build would embed actual PNG
// tray assets per platform; the bench harness only needs a visibly
// distinct glyph per state.
var (
	iconDisconnected = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	iconAttached     = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x01}
	iconActive       = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x02}
)

// trayOpts configures the bench harness's system tray.
type trayOpts struct {
	Version    string
	OnReady    func()
	OnQuit     func()
}

var (
	statusItem  *systray.MenuItem
	profileItem *systray.MenuItem
	layerItem   *systray.MenuItem
)

// runTray starts the system tray. It blocks on the calling goroutine.
func runTray(opts trayOpts) {
	systray.Run(func() {
		systray.SetIcon(iconDisconnected)
		systray.SetTitle("")
		systray.SetTooltip("hallcore bench — no bridge")

		versionLabel := "hallcore bench"
		if opts.Version != "" && opts.Version != "dev" {
			versionLabel += " v" + opts.Version
		}
		mVersion := systray.AddMenuItem(versionLabel, "")
		mVersion.Disable()

		systray.AddSeparator()

		statusItem = systray.AddMenuItem("Bridge: disconnected", "")
		statusItem.Disable()
		profileItem = systray.AddMenuItem("Profile: -", "")
		profileItem.Disable()
		layerItem = systray.AddMenuItem("Layer: -", "")
		layerItem.Disable()

		systray.AddSeparator()

		mQuit := systray.AddMenuItem("Quit", "Exit the bench harness")

		if opts.OnReady != nil {
			opts.OnReady()
		}

		go func() {
			for range mQuit.ClickedCh {
				if opts.OnQuit != nil {
					opts.OnQuit()
				}
				systray.Quit()
				return
			}
		}()
	}, func() {})
}

// setBridgeState updates the tray icon/tooltip for a hidbridge connection state.
func setBridgeState(state hidbridge.State) {
	switch state {
	case hidbridge.Disconnected:
		systray.SetIcon(iconDisconnected)
		systray.SetTooltip("hallcore bench — no bridge")
		if statusItem != nil {
			statusItem.SetTitle("Bridge: disconnected")
		}
	case hidbridge.Connected:
		systray.SetIcon(iconAttached)
		systray.SetTooltip("hallcore bench — bridge connected")
		if statusItem != nil {
			statusItem.SetTitle("Bridge: connected")
		}
	case hidbridge.Attached:
		systray.SetIcon(iconActive)
		systray.SetTooltip("hallcore bench — descriptors attached")
		if statusItem != nil {
			statusItem.SetTitle("Bridge: attached")
		}
	}
}

// setKeymapState updates the profile/layer info lines.
func setKeymapState(profileIdx, layer int) {
	if profileItem != nil {
		profileItem.SetTitle(fmt.Sprintf("Profile: %d", profileIdx))
	}
	if layerItem != nil {
		layerItem.SetTitle(fmt.Sprintf("Layer: %d", layer))
	}
}

// quitTray stops the system tray.
func quitTray() {
	systray.Quit()
}
