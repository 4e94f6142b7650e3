package keycode

import (
	"testing"

	"github.com/hallcore/corefw/corefw/profile"
)

func TestLookupAndNameRoundTrip(t *testing.T) {
	kc, ok := Lookup("a")
	if !ok || kc != 0x04 {
		t.Fatalf("expected 'a' to resolve to 0x04, got %v ok=%v", kc, ok)
	}
	if name := Name(kc); name != "a" {
		t.Fatalf("expected round trip to 'a', got %q", name)
	}
}

func TestNameHandlesStructuralKeycodes(t *testing.T) {
	if name := Name(profile.MO(2)); name != "mo(2)" {
		t.Fatalf("expected mo(2), got %q", name)
	}
	if name := Name(profile.PROFILE(3)); name != "profile(3)" {
		t.Fatalf("expected profile(3), got %q", name)
	}
}

func TestLookupUnknownNameFails(t *testing.T) {
	if _, ok := Lookup("not_a_real_key"); ok {
		t.Fatalf("expected unknown name to fail")
	}
}
