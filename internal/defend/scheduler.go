package defend

import "time"

// Scheduler records timed suspensions per origin. Expiry is lazy: a lookup
// that finds a suspension past its window removes it and reports the origin
// free.
//
// Not safe for concurrent use on its own; guarded by the Defender.
type Scheduler struct {
	window      time.Duration
	now         func() time.Time
	suspendedAt map[any]time.Time
}

// NewScheduler creates a scheduler whose suspensions last for window.
func NewScheduler(window time.Duration) *Scheduler {
	return &Scheduler{
		window:      window,
		now:         time.Now,
		suspendedAt: make(map[any]time.Time),
	}
}

// Suspend marks the origin suspended as of now. Suspending an already
// suspended origin restarts its window.
func (s *Scheduler) Suspend(origin any) {
	s.suspendedAt[origin] = s.now()
}

// Release lifts the origin's suspension, if any.
func (s *Scheduler) Release(origin any) {
	delete(s.suspendedAt, origin)
}

// IsSuspended reports whether the origin is inside a suspension window,
// reaping the record if the window has passed.
func (s *Scheduler) IsSuspended(origin any) bool {
	at, ok := s.suspendedAt[origin]
	if !ok {
		return false
	}

	if s.now().Sub(at) <= s.window {
		return true
	}

	delete(s.suspendedAt, origin)
	return false
}
