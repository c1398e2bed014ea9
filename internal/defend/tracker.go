package defend

// Tracker counts consecutive invalid attempts per origin. An origin is an
// opaque comparable key chosen by the caller (the connection handle by
// default, the remote address when hardened keying is enabled).
//
// Not safe for concurrent use on its own; guarded by the Defender.
type Tracker struct {
	attempts map[any]int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{attempts: make(map[any]int)}
}

// Increment adds one failed attempt for the origin.
func (t *Tracker) Increment(origin any) {
	t.attempts[origin]++
}

// Remove drops the origin's counter, if any.
func (t *Tracker) Remove(origin any) {
	delete(t.attempts, origin)
}

// Count returns the failed-attempt count for the origin, zero if untracked.
func (t *Tracker) Count(origin any) int {
	return t.attempts[origin]
}
