package profile

import (
	"path/filepath"
	"testing"
)

func TestSaveAndLoadProfileYAMLRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")

	p := NewActiveProfile(2, 4)
	p.Keymap[0][0] = 0x04
	p.Actuation[0] = Actuation{Point: 40, RTDown: 2, RTUp: 2}

	if err := SaveProfileYAML(path, p); err != nil {
		t.Fatalf("SaveProfileYAML: %v", err)
	}

	loaded, err := LoadProfileYAML(path)
	if err != nil {
		t.Fatalf("LoadProfileYAML: %v", err)
	}
	if loaded.Keymap[0][0] != 0x04 {
		t.Fatalf("expected keymap round trip, got %v", loaded.Keymap[0][0])
	}
	if loaded.Actuation[0].Point != 40 {
		t.Fatalf("expected actuation round trip, got %+v", loaded.Actuation[0])
	}
}

func TestDefaultBenchConfigHasOneSimulatedKey(t *testing.T) {
	cfg := DefaultBenchConfig()
	if len(cfg.SimulatedKeys) != 1 {
		t.Fatalf("expected 1 default simulated key, got %d", len(cfg.SimulatedKeys))
	}
	if cfg.SimulatedKeys[0].KeyName != "k" {
		t.Fatalf("expected default key 'k', got %q", cfg.SimulatedKeys[0].KeyName)
	}
}
