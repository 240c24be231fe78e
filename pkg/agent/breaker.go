package agent

import (
	"sync"
	"time"

	"github.com/orito-labs/orito/pkg/config"
)

// Breaker is a per-agent circuit breaker. It opens after FailureThreshold
// consecutive failures and closes again once ResetTimeout has elapsed since
// the last failure.
type Breaker struct {
	mu          sync.Mutex
	threshold   int
	resetAfter  time.Duration
	failures    int
	lastFailure time.Time
	open        bool

	// now is replaceable in tests.
	now func() time.Time
}

// NewBreaker creates a breaker from the configured thresholds.
func NewBreaker(cfg config.CircuitBreakerDefaults) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	resetAfter := cfg.ResetTimeout
	if resetAfter <= 0 {
		resetAfter = 60 * time.Second
	}
	return &Breaker{
		threshold:  threshold,
		resetAfter: resetAfter,
		now:        time.Now,
	}
}

// CanExecute reports whether work may proceed. An open breaker closes
// automatically once the reset timeout has passed.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.now().Sub(b.lastFailure) >= b.resetAfter {
		b.open = false
		b.failures = 0
		return true
	}
	return false
}

// RecordFailure counts a failure and opens the breaker at the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold {
		b.open = true
	}
}

// RecordSuccess resets the consecutive-failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// IsOpen reports the open state without the reset check.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}
