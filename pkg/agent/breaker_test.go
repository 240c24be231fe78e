package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orito-labs/orito/pkg/config"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(config.CircuitBreakerDefaults{FailureThreshold: 5, ResetTimeout: time.Minute})

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.True(t, b.CanExecute(), "below threshold after %d failures", i+1)
	}
	b.RecordFailure()
	assert.True(t, b.IsOpen())
	assert.False(t, b.CanExecute())
}

func TestBreakerClosesAfterResetTimeout(t *testing.T) {
	b := NewBreaker(config.CircuitBreakerDefaults{FailureThreshold: 2, ResetTimeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.CanExecute())

	now = now.Add(59 * time.Second)
	assert.False(t, b.CanExecute())

	now = now.Add(2 * time.Second)
	assert.True(t, b.CanExecute(), "breaker closes once the reset timeout has elapsed")
	assert.False(t, b.IsOpen())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(config.CircuitBreakerDefaults{FailureThreshold: 3, ResetTimeout: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.CanExecute(), "success resets the consecutive-failure count")

	b.RecordFailure()
	assert.False(t, b.CanExecute())
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(config.CircuitBreakerDefaults{})
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 60*time.Second, b.resetAfter)
}
