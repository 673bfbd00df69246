package core

// session_limiter.go bounds the number of import sessions committing at once.
//
// Each committing session holds one slot for its whole run. When all slots
// are taken a new session waits up to maxWait, then fails with
// ErrTooManySessions. Dry-runs never write and do not take a slot.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManySessions is returned when no slot frees up in time.
var ErrTooManySessions = errors.New("too many import sessions in progress, please try again later")

// DefaultMaxConcurrentSessions is the default number of committing sessions.
const DefaultMaxConcurrentSessions = 5

// DefaultMaxWaitTime is how long a session waits for a slot.
const DefaultMaxWaitTime = 30 * time.Second

// SessionLimiter is a counting semaphore over commit sessions.
type SessionLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewSessionLimiter creates a limiter with maxConcurrent slots. Non-positive
// arguments fall back to the defaults.
func NewSessionLimiter(maxConcurrent int, maxWait time.Duration) *SessionLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSessions
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &SessionLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must call Release exactly once after a
// nil return.
func (l *SessionLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return ErrTooManySessions
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *SessionLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of sessions holding a slot.
func (l *SessionLimiter) ActiveCount() int { return int(l.active.Load()) }

// WaitForDrain blocks until no session holds a slot or ctx ends.
func (l *SessionLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// LimiterStatus is a snapshot of limiter usage.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current usage for health endpoints.
func (l *SessionLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
