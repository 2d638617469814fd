package session

import (
	"testing"

	"github.com/google/uuid"
)

func TestSessionStateRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	id := uuid.New()
	if err := SaveCurrentSessionID(id); err != nil {
		t.Fatalf("SaveCurrentSessionID: %v", err)
	}

	got, err := LoadCurrentSessionID()
	if err != nil {
		t.Fatalf("LoadCurrentSessionID: %v", err)
	}
	if got == nil || *got != id {
		t.Errorf("got %v, want %v", got, id)
	}

	if err := ClearCurrentSessionID(); err != nil {
		t.Fatalf("ClearCurrentSessionID: %v", err)
	}
	got, err = LoadCurrentSessionID()
	if err != nil {
		t.Fatalf("LoadCurrentSessionID after clear: %v", err)
	}
	if got != nil {
		t.Errorf("expected no current session after clear, got %v", *got)
	}
}

func TestLoadCurrentSessionID_Missing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	got, err := LoadCurrentSessionID()
	if err != nil {
		t.Fatalf("LoadCurrentSessionID: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing state file, got %v", *got)
	}
}

func TestClearCurrentSessionID_Idempotent(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := ClearCurrentSessionID(); err != nil {
		t.Errorf("clearing absent state file: %v", err)
	}
}

func TestSaveCurrentSessionID_Overwrites(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	first := uuid.New()
	second := uuid.New()
	if err := SaveCurrentSessionID(first); err != nil {
		t.Fatalf("SaveCurrentSessionID: %v", err)
	}
	if err := SaveCurrentSessionID(second); err != nil {
		t.Fatalf("SaveCurrentSessionID: %v", err)
	}

	got, err := LoadCurrentSessionID()
	if err != nil {
		t.Fatalf("LoadCurrentSessionID: %v", err)
	}
	if got == nil || *got != second {
		t.Errorf("got %v, want %v", got, second)
	}
}
