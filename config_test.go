package whse

import (
	"strings"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.TrackerMatchMode != MatchRangeContainment {
		t.Errorf("TrackerMatchMode = %v, want MatchRangeContainment", p.TrackerMatchMode)
	}
	if !p.AllowRingEscalation {
		t.Error("AllowRingEscalation = false, want true")
	}
	if p.GuestMemorySize != 64*1024*1024 {
		t.Errorf("GuestMemorySize = %d, want 64 MiB", p.GuestMemorySize)
	}
}

func TestLoadPolicyPartialOverridesKeepDefaults(t *testing.T) {
	p, err := LoadPolicy(strings.NewReader("allow_ring_escalation: false\n"))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.AllowRingEscalation {
		t.Error("AllowRingEscalation should be overridden to false")
	}
	if p.GuestMemorySize != 64*1024*1024 {
		t.Errorf("GuestMemorySize should keep its default, got %d", p.GuestMemorySize)
	}
}

func TestLoadPolicyEmptyDocumentKeepsDefaults(t *testing.T) {
	p, err := LoadPolicy(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p != DefaultPolicy() {
		t.Fatalf("LoadPolicy(empty) = %+v, want %+v", p, DefaultPolicy())
	}
}

func TestTrackerMatchModeYAMLDecodesExact(t *testing.T) {
	p, err := LoadPolicy(strings.NewReader("tracker_match_mode: exact\n"))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.TrackerMatchMode != MatchExactEquality {
		t.Errorf("TrackerMatchMode = %v, want MatchExactEquality", p.TrackerMatchMode)
	}
}

func TestTrackerMatchModeYAMLRejectsUnknown(t *testing.T) {
	_, err := LoadPolicy(strings.NewReader("tracker_match_mode: bogus\n"))
	if err == nil {
		t.Fatal("expected an error for an unrecognized tracker_match_mode")
	}
}
