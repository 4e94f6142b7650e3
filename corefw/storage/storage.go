// Package storage implements the wear-levelled persistence collaborator
// the core treats as external (spec §1, §6): the packed EEPROM image
// record and a file-backed WearLeveler that satisfies
// matrix.WearLeveler. Real firmware wear-levels by rotating writes across
// flash pages; this bench/host stand-in gets the same qualitative
// property — bounded, infrequent, batched writes rather than a write per
// sample — from the matrix engine's own inactivity-timeout flush logic,
// and persists via the teacher's atomic write-temp-then-rename pattern.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hallcore/corefw/corefw/profile"
)

// Image is the packed EEPROM record of spec §6: global calibration,
// option bits, per-key bottom-out thresholds, the profile table, and
// tick rate. It is the unit that gets loaded at boot and persisted on
// every wear-levelled flush.
type Image struct {
	InitialRestValue        uint16             `json:"initial_rest_value"`
	InitialBottomOutThreshold uint16           `json:"initial_bottom_out_threshold"`
	SaveBottomOutThreshold   bool              `json:"save_bottom_out_threshold"`
	XInputEnabled            bool              `json:"xinput_enabled"`
	BottomOutThreshold       []uint16          `json:"bottom_out_threshold"` // [key]
	CurrentProfile           int               `json:"current_profile"`
	LastNonDefaultProfile    int               `json:"last_non_default_profile"`
	Profiles                 []*profile.ActiveProfile `json:"profiles"`
	Macros                   []profile.MacroConfig    `json:"macros"`
	TickRateHz               int               `json:"tick_rate_hz"`
}

// NewImage builds a default image for numKeys keys and numProfiles
// profiles of numLayers layers each, seeding the initial rest value to the
// midpoint of the 12-bit ADC range and every key's bottom-out threshold to
// InitialBottomOutThreshold.
func NewImage(numKeys, numLayers, numProfiles, numMacros int) *Image {
	img := &Image{
		InitialRestValue:          2048,
		InitialBottomOutThreshold: 3800,
		SaveBottomOutThreshold:    true,
		BottomOutThreshold:        make([]uint16, numKeys),
		Profiles:                  make([]*profile.ActiveProfile, numProfiles),
		Macros:                    make([]profile.MacroConfig, numMacros),
		TickRateHz:                1000,
	}
	for i := range img.BottomOutThreshold {
		img.BottomOutThreshold[i] = img.InitialBottomOutThreshold
	}
	for i := range img.Profiles {
		img.Profiles[i] = profile.NewActiveProfile(numLayers, numKeys)
	}
	return img
}

// Store is the file-backed wear-levelled persistence manager. It
// satisfies matrix.WearLeveler via SaveBottomOut, and additionally
// exposes whole-image load/save for the protocol layer's paged
// configuration commands.
type Store struct {
	mu   sync.Mutex
	path string
	img  *Image
}

// Open loads path if it exists, or seeds and writes a default image sized
// for numKeys/numLayers/numProfiles/numMacros if it doesn't.
func Open(path string, numKeys, numLayers, numProfiles, numMacros int) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.img = NewImage(numKeys, numLayers, numProfiles, numMacros)
		if saveErr := s.saveLocked(); saveErr != nil {
			return nil, fmt.Errorf("seed default image: %w", saveErr)
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	img := NewImage(numKeys, numLayers, numProfiles, numMacros)
	if err := json.Unmarshal(data, img); err != nil {
		return nil, fmt.Errorf("parse image: %w", err)
	}
	s.img = img
	return s, nil
}

// Image returns the live, mutable image. Callers mutating it directly
// must call Save afterward; SaveBottomOut is the only mutation path that
// saves on its own (to satisfy matrix.WearLeveler's fire-and-forget
// contract).
func (s *Store) Image() *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// SaveBottomOut implements matrix.WearLeveler: it records key's measured
// bottom-out ADC value and persists the image. It returns false (without
// panicking) on any I/O failure, per the WearLeveler contract's
// best-effort semantics — a failed flush just means the value is retried
// on the next inactivity window.
func (s *Store) SaveBottomOut(key int, value uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key < 0 || key >= len(s.img.BottomOutThreshold) {
		return false
	}
	s.img.BottomOutThreshold[key] = value
	return s.saveLocked() == nil
}

// Save persists the current image to disk atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.img, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal image: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp image: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename image: %w", err)
	}
	return nil
}
