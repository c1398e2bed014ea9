package session

import (
	"time"

	"github.com/google/uuid"
)

// Registry issues opaque session tokens and answers liveness queries.
//
// Expiry is lazy: IsValid never removes an expired entry, it only reports it
// dead. Callers that observe a dead token are expected to reap it with
// Invalidate. The registry is not safe for concurrent use on its own; it is
// exclusively owned by the engine, which serializes access.
type Registry struct {
	ttl      time.Duration
	now      func() time.Time
	issuedAt map[string]time.Time
}

// NewRegistry creates a registry whose tokens live for ttl after issue.
// Activity does not extend a token's lifetime.
func NewRegistry(ttl time.Duration) *Registry {
	return NewRegistryWithClock(ttl, time.Now)
}

// NewRegistryWithClock is NewRegistry with an injected time source.
func NewRegistryWithClock(ttl time.Duration, now func() time.Time) *Registry {
	return &Registry{
		ttl:      ttl,
		now:      now,
		issuedAt: make(map[string]time.Time),
	}
}

// Issue generates a fresh token and records its issue time.
func (r *Registry) Issue() string {
	token := uuid.NewString()
	r.issuedAt[token] = r.now()
	return token
}

// IsValid reports whether the token is known and within its lifetime.
func (r *Registry) IsValid(token string) bool {
	issued, ok := r.issuedAt[token]
	if !ok {
		return false
	}
	return r.now().Sub(issued) <= r.ttl
}

// Invalidate removes the token. Removing an unknown token is a no-op.
func (r *Registry) Invalidate(token string) {
	delete(r.issuedAt, token)
}

// Len returns the number of tracked tokens, live or expired-but-unreaped.
func (r *Registry) Len() int {
	return len(r.issuedAt)
}
