package medvault

import (
	"sync"
	"time"
)

// lockoutTracker mirrors the identity provider's 3-attempt policy so the
// caller can surface a visible attempt counter and a cooldown lock. The
// provider remains the enforcement authority; this is the client-side view.
type lockoutTracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	clock    Clock
	state    map[string]*lockoutState
}

type lockoutState struct {
	failures    int
	lockedUntil time.Time
}

func newLockoutTracker(cooldown time.Duration, clock Clock) *lockoutTracker {
	return &lockoutTracker{
		cooldown: cooldown,
		clock:    clock,
		state:    make(map[string]*lockoutState),
	}
}

// locked reports whether the identifier is inside a cooldown window.
func (t *lockoutTracker) locked(identifier string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[identifier]
	if !ok {
		return false
	}
	if s.lockedUntil.IsZero() {
		return false
	}
	if t.clock().Before(s.lockedUntil) {
		return true
	}
	// Cooldown elapsed; the counter starts over.
	delete(t.state, identifier)
	return false
}

// fail records a failed attempt and returns the running count plus whether
// the lock just engaged.
func (t *lockoutTracker) fail(identifier string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[identifier]
	if !ok {
		s = &lockoutState{}
		t.state[identifier] = s
	}
	s.failures++
	if s.failures >= MaxLoginAttempts {
		s.lockedUntil = t.clock().Add(t.cooldown)
		return s.failures, true
	}
	return s.failures, false
}

// reset clears the counter after a successful login.
func (t *lockoutTracker) reset(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, identifier)
}
