// Package clock supplies the time source the ledger reads launch timing from.
package clock

import (
	"errors"
	"sync"
	"time"
)

// ErrBackwards is returned when a manual clock is asked to move back in time.
var ErrBackwards = errors.New("clock cannot move backwards")

// ErrLive is returned when a handover clock is set after going live.
var ErrLive = errors.New("clock is live")

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Manual is a clock advanced explicitly by its owner, e.g. a test harness
// or a journal replay. It never moves backwards.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) error {
	if d < 0 {
		return ErrBackwards
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return nil
}

// Set moves the clock to t. t must not be before the current time.
func (m *Manual) Set(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Before(m.now) {
		return ErrBackwards
	}
	m.now = t
	return nil
}

// Handover follows a manual time until GoLive, then the wall clock. A
// ledger rebuilt from its journal runs on it: replay drives the time, and
// the same ledger then keeps serving with real time.
type Handover struct {
	manual *Manual
	mu     sync.RWMutex
	live   bool
}

// NewHandover creates a handover clock in manual mode starting at start.
func NewHandover(start time.Time) *Handover {
	return &Handover{manual: NewManual(start)}
}

// Now returns manual time before GoLive and time.Now after.
func (h *Handover) Now() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.live {
		return time.Now()
	}
	return h.manual.Now()
}

// Set moves the manual time. It fails once live.
func (h *Handover) Set(t time.Time) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.live {
		return ErrLive
	}
	return h.manual.Set(t)
}

// GoLive switches to the wall clock. It is irreversible.
func (h *Handover) GoLive() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = true
}
