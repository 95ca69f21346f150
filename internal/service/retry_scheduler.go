package service

import (
	"math/rand"
	"time"

	"stackspay-gateway/internal/core/domain"
)

// jitterFraction spreads retries ±20% around the computed delay so a
// recovering endpoint is not hammered by a synchronized retry wave.
const jitterFraction = 0.2

// BackoffRetryScheduler implements ports.RetryScheduler with capped
// exponential backoff and jitter. The delay before attempt n (n >= 2)
// is base * 2^(n-2), capped at cap.
type BackoffRetryScheduler struct {
	base        time.Duration
	cap         time.Duration
	maxAttempts int
	rng         func() float64 // Returns [0, 1); swappable for tests
}

// NewBackoffRetryScheduler creates a scheduler with the given backoff
// base, delay cap and per-cycle attempt budget.
func NewBackoffRetryScheduler(base, cap time.Duration, maxAttempts int) *BackoffRetryScheduler {
	return &BackoffRetryScheduler{
		base:        base,
		cap:         cap,
		maxAttempts: maxAttempts,
		rng:         rand.Float64,
	}
}

// ShouldRetry reports whether the pair has retry budget left in its
// current cycle. A manual redelivery resets the cycle, not the log.
func (s *BackoffRetryScheduler) ShouldRetry(d *domain.Delivery) bool {
	if d.IsTerminal() {
		return false
	}
	return d.AttemptsInCycle() < s.maxAttempts
}

// NextDelay returns the jittered backoff before attempt attemptInCycle
// (1-based). Attempt 1 runs immediately.
func (s *BackoffRetryScheduler) NextDelay(attemptInCycle int) time.Duration {
	if attemptInCycle <= 1 {
		return 0
	}

	delay := s.base
	for i := 2; i < attemptInCycle; i++ {
		delay *= 2
		if delay >= s.cap {
			delay = s.cap
			break
		}
	}
	if delay > s.cap {
		delay = s.cap
	}

	// ±20% jitter
	jitter := (s.rng()*2 - 1) * jitterFraction * float64(delay)
	return delay + time.Duration(jitter)
}

// MaxAttempts returns the per-cycle attempt budget.
func (s *BackoffRetryScheduler) MaxAttempts() int {
	return s.maxAttempts
}
