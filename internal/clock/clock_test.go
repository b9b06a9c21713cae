package clock

import (
	"errors"
	"testing"
	"time"
)

func TestManual_Advance(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewManual(start)

	if err := c.Advance(10 * time.Minute); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got := c.Now().Sub(start); got != 10*time.Minute {
		t.Errorf("elapsed = %v, want 10m", got)
	}

	if err := c.Advance(-time.Second); !errors.Is(err, ErrBackwards) {
		t.Errorf("expected ErrBackwards, got %v", err)
	}
}

func TestManual_Set(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewManual(start)

	if err := c.Set(start.Add(time.Hour)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set(start); !errors.Is(err, ErrBackwards) {
		t.Errorf("expected ErrBackwards, got %v", err)
	}
	if !c.Now().Equal(start.Add(time.Hour)) {
		t.Errorf("failed Set should not change time, got %v", c.Now())
	}
}

func TestHandover(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	h := NewHandover(start)

	if !h.Now().Equal(start) {
		t.Errorf("Now = %v, want %v", h.Now(), start)
	}
	if err := h.Set(start.Add(time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := h.Set(start); !errors.Is(err, ErrBackwards) {
		t.Errorf("expected ErrBackwards, got %v", err)
	}

	h.GoLive()
	if time.Since(h.Now()) > time.Second {
		t.Errorf("live clock not following wall time: %v", h.Now())
	}
	if err := h.Set(start.Add(time.Hour)); !errors.Is(err, ErrLive) {
		t.Errorf("expected ErrLive, got %v", err)
	}
}
