package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute)

	assert.True(t, cb.CanProceed())
	open, failures, total := cb.GetStatus()
	assert.False(t, open)
	assert.Equal(t, 0, failures)
	assert.Equal(t, 0, total)
}

func TestCircuitBreakerTripsOnConsecutiveBlocks(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute)

	cb.RecordFailure(403)
	assert.True(t, cb.CanProceed())

	cb.RecordFailure(403)
	assert.False(t, cb.CanProceed())

	open, failures, total := cb.GetStatus()
	assert.True(t, open)
	assert.Equal(t, 2, failures)
	assert.Equal(t, 2, total)
}

func TestCircuitBreakerSuccessResetsConsecutiveCount(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute)

	cb.RecordFailure(429)
	cb.RecordSuccess()
	cb.RecordFailure(429)

	// never two blocks in a row, so no immediate trip
	assert.True(t, cb.CanProceed())
}

func TestCircuitBreakerIgnoresIsolatedServerErrors(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute)

	// 500s are failures but not block-class, so no immediate trip
	cb.RecordFailure(500)
	cb.RecordFailure(500)
	cb.RecordFailure(500)

	assert.True(t, cb.CanProceed())
}

func TestCircuitBreakerTripsOnFailureRate(t *testing.T) {
	cb := NewCircuitBreaker(5, time.Minute)

	// 8 failures / 20 requests = 40%, interleaved so no consecutive pair
	for i := 0; i < 7; i++ {
		cb.RecordFailure(500)
		cb.RecordSuccess()
	}
	for i := 0; i < 5; i++ {
		cb.RecordSuccess()
	}
	cb.RecordFailure(500)

	assert.False(t, cb.CanProceed())
	open, failures, total := cb.GetStatus()
	assert.True(t, open)
	assert.Equal(t, 8, failures)
	assert.Equal(t, 20, total)
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(5, 20*time.Millisecond)

	cb.RecordFailure(403)
	cb.RecordFailure(403)
	assert.False(t, cb.CanProceed())

	time.Sleep(30 * time.Millisecond)

	// half-open: allowed through with counters reset
	assert.True(t, cb.CanProceed())
	open, failures, total := cb.GetStatus()
	assert.False(t, open)
	assert.Equal(t, 0, failures)
	assert.Equal(t, 0, total)
}
