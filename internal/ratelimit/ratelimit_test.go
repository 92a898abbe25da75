package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(5, 100, 1000, true)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.AllowRequest(), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.AllowRequest(), "6th request in a minute should be denied")
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(1, 1, 1, false)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.AllowRequest())
	}
}

func TestRateLimiterZeroDisablesWindow(t *testing.T) {
	// Only the hourly window is active
	rl := NewRateLimiter(0, 3, 0, true)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.AllowRequest())
	}
	assert.False(t, rl.AllowRequest())
}

func TestRateLimiterStats(t *testing.T) {
	rl := NewRateLimiter(10, 100, 1000, true)

	rl.AllowRequest()
	rl.AllowRequest()

	stats := rl.GetStats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 2, stats.RequestsLastMinute)
	assert.Equal(t, 2, stats.RequestsLastHour)
	assert.Equal(t, 2, stats.RequestsLastDay)
	assert.Equal(t, 10, stats.LimitPerMinute)
	assert.Equal(t, 100, stats.LimitPerHour)
	assert.Equal(t, 1000, stats.LimitPerDay)
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(2, 100, 1000, true)

	rl.AllowRequest()
	rl.AllowRequest()
	assert.False(t, rl.AllowRequest())

	rl.Reset()
	assert.True(t, rl.AllowRequest())
}

func TestDomainLimiterInFlight(t *testing.T) {
	dl := NewDomainLimiter(2, 0, 0)

	dl.Acquire()
	dl.Acquire()
	assert.Equal(t, 2, dl.GetInFlight())

	dl.Release()
	assert.Equal(t, 1, dl.GetInFlight())
	dl.Release()
	assert.Equal(t, 0, dl.GetInFlight())
}

func TestDomainLimiterEnforcesDelay(t *testing.T) {
	dl := NewDomainLimiter(1, 50*time.Millisecond, 0)

	dl.Acquire()
	dl.Release()

	start := time.Now()
	dl.Acquire()
	dl.Release()

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDomainLimiterSetJitter(t *testing.T) {
	dl := NewDomainLimiter(1, 0, time.Second)
	assert.Equal(t, time.Second, dl.GetJitter())

	dl.SetJitter(0)
	assert.Equal(t, time.Duration(0), dl.GetJitter())
}

func TestDomainLimiterSetBaseDelay(t *testing.T) {
	dl := NewDomainLimiter(1, time.Second, 0)
	assert.Equal(t, time.Second, dl.GetBaseDelay())

	dl.SetBaseDelay(5 * time.Second)
	assert.Equal(t, 5*time.Second, dl.GetBaseDelay())
}
