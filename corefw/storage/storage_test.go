package storage

import (
	"path/filepath"
	"testing"
)

func TestOpenSeedsDefaultImageWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.json")

	s, err := Open(path, 4, 2, 2, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(s.Image().BottomOutThreshold) != 4 {
		t.Fatalf("expected 4 per-key thresholds, got %d", len(s.Image().BottomOutThreshold))
	}
	if len(s.Image().Profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(s.Image().Profiles))
	}

	s2, err := Open(path, 4, 2, 2, 4)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.Image().TickRateHz != s.Image().TickRateHz {
		t.Fatalf("expected reopened image to match the seeded one")
	}
}

func TestSaveBottomOutPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.json")

	s, err := Open(path, 4, 1, 1, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ok := s.SaveBottomOut(2, 3700); !ok {
		t.Fatalf("expected SaveBottomOut to succeed")
	}

	s2, err := Open(path, 4, 1, 1, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s2.Image().BottomOutThreshold[2] != 3700 {
		t.Fatalf("expected persisted bottom-out value, got %d", s2.Image().BottomOutThreshold[2])
	}
}

func TestSaveBottomOutRejectsOutOfRangeKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "image.json"), 2, 1, 1, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ok := s.SaveBottomOut(99, 1000); ok {
		t.Fatalf("expected out-of-range key to fail")
	}
}
