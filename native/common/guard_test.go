package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, "custody"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	p := NewPauses("raffle", "")
	if err := Guard(p, "raffle"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := Guard(p, "custody"); err != nil {
		t.Fatalf("custody should run: %v", err)
	}
	p.Set("custody", true)
	p.Set("raffle", false)
	if got := p.Paused(); len(got) != 1 || got[0] != "custody" {
		t.Fatalf("unexpected paused set %v", got)
	}
}
