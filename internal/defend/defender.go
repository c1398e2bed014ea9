// Package defend implements the brute-force defense: a per-origin failure
// counter that escalates into a timed suspension once the attempt limit is
// reached. The counter and the suspension are mutually exclusive states for
// any one origin; failures only accumulate while the origin is not suspended,
// because the dispatcher rejects attempts from suspended origins before they
// reach the tracker.
package defend

import (
	"sync"
	"time"
)

// Defender is the façade composing the Tracker and the Scheduler. It is safe
// for concurrent use: the dispatcher consults it from one goroutine per
// connection.
type Defender struct {
	mu          sync.Mutex
	tracker     *Tracker
	scheduler   *Scheduler
	maxAttempts int
}

// NewDefender creates a defender that suspends an origin for window after
// maxAttempts consecutive invalid attempts.
func NewDefender(maxAttempts int, window time.Duration) *Defender {
	return &Defender{
		tracker:     NewTracker(),
		scheduler:   NewScheduler(window),
		maxAttempts: maxAttempts,
	}
}

// RegisterInvalidTry records a failed attempt. When the origin reaches the
// attempt limit it is suspended and its counter is cleared.
func (d *Defender) RegisterInvalidTry(origin any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tracker.Increment(origin)

	if d.tracker.Count(origin) >= d.maxAttempts {
		d.scheduler.Suspend(origin)
		d.tracker.Remove(origin)
	}
}

// ClearHistory forgives the origin's accumulated failures. Called after a
// successful registration or login.
func (d *Defender) ClearHistory(origin any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tracker.Remove(origin)
}

// IsBlocked reports whether the origin is currently suspended.
func (d *Defender) IsBlocked(origin any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.scheduler.IsSuspended(origin)
}

// Release lifts the origin's suspension ahead of its window.
func (d *Defender) Release(origin any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scheduler.Release(origin)
}
