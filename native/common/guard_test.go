package common

import (
	"errors"
	"testing"
)

func TestGuardPaused(t *testing.T) {
	pauses := NewPauseSet()
	if err := Guard(pauses, "mint"); err != nil {
		t.Fatalf("unexpected guard error: %v", err)
	}
	pauses.Set("mint", true)
	if err := Guard(pauses, "mint"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected pause error, got %v", err)
	}
	if prev := pauses.Set("mint", false); !prev {
		t.Fatalf("expected previous pause state to be true")
	}
	if err := Guard(pauses, "mint"); err != nil {
		t.Fatalf("unexpected guard error after resume: %v", err)
	}
}

func TestGuardNilView(t *testing.T) {
	if err := Guard(nil, "mint"); err != nil {
		t.Fatalf("nil view must not guard: %v", err)
	}
}

func TestEntryGuardRejectsReentry(t *testing.T) {
	var guard EntryGuard
	if err := guard.Acquire(); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := guard.Acquire(); !errors.Is(err, ErrReentrancy) {
		t.Fatalf("expected reentrancy rejection, got %v", err)
	}
	guard.Release()
	if err := guard.Acquire(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
