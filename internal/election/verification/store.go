// Package verification holds the single security-key verification grant a
// device may carry at a time.
package verification

import (
	"sync"
	"time"

	"github.com/openschool/ballotbox/internal/election/domain"
)

// session is the current verified grant. At most one exists per store; a new
// verification overwrites it rather than merging.
type session struct {
	purpose   domain.Purpose
	issuedAt  time.Time
	expiresAt time.Time
}

// Store tracks whether a security-key verification is currently in effect.
//
// The store is owned by a device-scoped controller, never shared across
// devices. A scheduled timer clears the session at expiry even if nobody
// polls; IsVerified also clears lazily so either path leaves the session
// unambiguously absent.
type Store struct {
	mu         sync.Mutex
	ttl        time.Duration
	clock      func() time.Time
	current    *session
	timer      *time.Timer
	generation uint64
}

// DefaultTTL is the verification window applied when none is configured.
// Callers should treat this as a tunable, not a hard constant.
const DefaultTTL = 60 * time.Second

// NewStore creates a verification store with the given TTL. A non-positive
// TTL falls back to DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:   ttl,
		clock: time.Now,
	}
}

// SetVerified overwrites the current session with a fresh grant for the
// given purpose.
func (s *Store) SetVerified(purpose domain.Purpose) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()

	now := s.clock().UTC()
	s.current = &session{
		purpose:   purpose,
		issuedAt:  now,
		expiresAt: now.Add(s.ttl),
	}

	// The timer carries the generation it was armed for; a fire racing a
	// later Clear or SetVerified finds a different generation and does
	// nothing.
	generation := s.generation
	s.timer = time.AfterFunc(s.ttl, func() {
		s.expire(generation)
	})
}

// IsVerified reports whether a valid grant for the requested purpose exists.
// An expired session is cleared as a side effect. A stored session with no
// recorded purpose satisfies any request; a request with no purpose is
// satisfied by any valid session.
func (s *Store) IsVerified(purpose domain.Purpose) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}
	if s.clock().UTC().After(s.current.expiresAt) {
		s.clearLocked()
		return false
	}
	return s.current.purpose.Satisfies(purpose)
}

// TimeRemaining returns the time until the current grant expires. It is zero
// when no valid grant exists and never negative.
func (s *Store) TimeRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return 0
	}
	remaining := s.current.expiresAt.Sub(s.clock().UTC())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear unconditionally invalidates the session. Clearing an already-cleared
// store is a no-op.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) expire(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return
	}
	s.clearLocked()
}

func (s *Store) clearLocked() {
	s.generation++
	s.current = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
