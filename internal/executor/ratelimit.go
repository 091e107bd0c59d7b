package executor

import (
	"sync"
	"time"

	"ledgerlink/internal/transport"
)

// RateLimitState tracks the remaining-quota/reset-time pair reported by the
// endpoint. It is overwritten whenever a response carries fresh limit fields
// and consulted before every dispatch.
type RateLimitState struct {
	mu        sync.Mutex
	remaining int
	resetAt   time.Time
}

// NewRateLimitState returns an unlimited state (no quota observed yet).
func NewRateLimitState() *RateLimitState {
	return &RateLimitState{remaining: -1}
}

// Update overwrites the state from a response's quota fields. A nil info is
// ignored: responses without limit headers leave the state untouched.
func (s *RateLimitState) Update(info *transport.RateLimitInfo) {
	if info == nil {
		return
	}
	s.mu.Lock()
	s.remaining = info.Remaining
	s.resetAt = info.ResetAt
	s.mu.Unlock()
}

// Limited reports whether the quota is exhausted and the reset time has not
// yet passed.
func (s *RateLimitState) Limited(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining <= 0 && now.Before(s.resetAt)
}

// Snapshot returns the current remaining count and reset time.
func (s *RateLimitState) Snapshot() (remaining int, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining, s.resetAt
}
