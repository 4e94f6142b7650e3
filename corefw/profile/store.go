package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// BenchConfig holds the bench harness's own application settings — the
// developer-facing knobs that sit outside any one ActiveProfile image
// (which hotkeys drive which simulated keys, which profile slot is active,
// whether the harness launches on login).
type BenchConfig struct {
	mu              sync.RWMutex `json:"-"`
	ActiveProfile   int           `json:"active_profile"`
	AutoStart       bool          `json:"auto_start"`
	SimulatedKeys   []HotkeyBind  `json:"simulated_keys"`
}

// HotkeyBind maps one OS global hotkey to one simulated matrix key index.
type HotkeyBind struct {
	Key       int      `json:"key"`
	Modifiers []string `json:"modifiers"`
	KeyName   string   `json:"key_name"`
}

// DefaultBenchConfig returns the out-of-the-box bench configuration: one
// simulated key on Ctrl+Alt+K, profile 0 active.
func DefaultBenchConfig() *BenchConfig {
	return &BenchConfig{
		ActiveProfile: 0,
		SimulatedKeys: []HotkeyBind{
			{Key: 0, Modifiers: []string{"ctrl", "alt"}, KeyName: "k"},
		},
	}
}

// benchConfigDir returns the OS-appropriate config directory for the
// bench harness.
func benchConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(base, "hallcore-bench"), nil
}

// benchConfigPath returns the full path to the bench harness's JSON
// settings file.
func benchConfigPath() (string, error) {
	dir, err := benchConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bench.json"), nil
}

// LoadBenchConfig reads the bench config from disk, creating a default one
// on first run.
func LoadBenchConfig() (*BenchConfig, error) {
	p, err := benchConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		cfg := DefaultBenchConfig()
		if saveErr := cfg.Save(); saveErr != nil {
			return nil, fmt.Errorf("create default bench config: %w", saveErr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bench config: %w", err)
	}

	cfg := DefaultBenchConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse bench config: %w", err)
	}
	return cfg, nil
}

// Save writes the bench config to disk atomically (write temp, rename).
func (c *BenchConfig) Save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal bench config: %w", err)
	}

	p, err := benchConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bench config dir: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp bench config: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename bench config: %w", err)
	}
	return nil
}

// SetActiveProfile updates which profile slot is active and saves.
func (c *BenchConfig) SetActiveProfile(idx int) error {
	c.mu.Lock()
	c.ActiveProfile = idx
	c.mu.Unlock()
	return c.Save()
}

// GetActiveProfile returns the current active profile slot.
func (c *BenchConfig) GetActiveProfile() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ActiveProfile
}

// SimulatedKeyBindings returns a copy of the current hotkey bindings.
func (c *BenchConfig) SimulatedKeyBindings() []HotkeyBind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]HotkeyBind, len(c.SimulatedKeys))
	copy(out, c.SimulatedKeys)
	return out
}

// LoadProfileYAML reads a human-editable YAML keymap file into an
// ActiveProfile. YAML (rather than the JSON used for the bench app
// settings and the EEPROM-image cache) is the interchange format here
// because a keymap is something a developer hand-edits directly, and
// gopkg.in/yaml.v3 is what the rest of this stack already pulls in.
func LoadProfileYAML(path string) (*ActiveProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p ActiveProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

// SaveProfileYAML writes p to path as human-editable YAML.
func SaveProfileYAML(path string, p *ActiveProfile) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp profile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename profile: %w", err)
	}
	return nil
}
