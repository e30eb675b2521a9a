package state

import (
	"sync"
	"time"
)

// Mode is the dispatcher's emergency mode
type Mode string

const (
	ModeNormal    Mode = "NORMAL"
	ModeEmergency Mode = "EMERGENCY"
)

// Emergency holds the thread-safe emergency flag. Recognition events arrive
// from independent capture loops, so every access goes through mu.
type Emergency struct {
	mu         sync.RWMutex
	mode       Mode
	since      time.Time
	source     string
	entries    int
	suppressed int
	now        func() time.Time
}

// Snapshot is a point-in-time copy of the emergency state
type Snapshot struct {
	Mode       Mode      `json:"mode"`
	Active     bool      `json:"active"`
	Since      time.Time `json:"since"`
	Source     string    `json:"source,omitempty"`
	Entries    int       `json:"entries"`
	Suppressed int       `json:"suppressed"`
}

// NewEmergency creates a state in NORMAL mode
func NewEmergency() *Emergency {
	return newEmergencyWithClock(time.Now)
}

func newEmergencyWithClock(now func() time.Time) *Emergency {
	return &Emergency{
		mode:  ModeNormal,
		since: now(),
		now:   now,
	}
}

// Enter switches to EMERGENCY. It returns false when the state was already
// EMERGENCY; the original entry time and source are kept in that case.
func (e *Emergency) Enter(source string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries++
	if e.mode == ModeEmergency {
		return false
	}
	e.mode = ModeEmergency
	e.since = e.now()
	e.source = source
	return true
}

// Release switches to NORMAL. It returns false when already NORMAL.
func (e *Emergency) Release(source string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeNormal {
		return false
	}
	e.mode = ModeNormal
	e.since = e.now()
	e.source = source
	return true
}

// Suppress records a command dropped because of the emergency state.
// It reports whether the state is EMERGENCY, i.e. whether the caller must drop.
func (e *Emergency) Suppress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ModeEmergency {
		return false
	}
	e.suppressed++
	return true
}

// Active reports whether the state is EMERGENCY
func (e *Emergency) Active() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode == ModeEmergency
}

// Mode returns the current mode
func (e *Emergency) Mode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// Snapshot returns a copy of the current state
func (e *Emergency) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		Mode:       e.mode,
		Active:     e.mode == ModeEmergency,
		Since:      e.since,
		Source:     e.source,
		Entries:    e.entries,
		Suppressed: e.suppressed,
	}
}
