package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAutoThrottleDefaults(t *testing.T) {
	at := NewAutoThrottle(AutoThrottleConfig{})

	assert.Equal(t, 3*time.Second, at.Delay())
	assert.False(t, at.InSlowMode())
}

func TestAutoThrottleConvergesTowardLatency(t *testing.T) {
	at := NewAutoThrottle(AutoThrottleConfig{
		StartDelay: 8 * time.Second,
		MinDelay:   1 * time.Second,
	})

	// Fast healthy responses pull the delay down
	for i := 0; i < 10; i++ {
		at.Observe(500*time.Millisecond, true)
	}

	assert.Less(t, at.Delay(), 8*time.Second)
	assert.GreaterOrEqual(t, at.Delay(), 1*time.Second)
}

func TestAutoThrottleNeverBelowFloor(t *testing.T) {
	at := NewAutoThrottle(AutoThrottleConfig{
		StartDelay: 2 * time.Second,
		MinDelay:   2 * time.Second,
	})

	for i := 0; i < 50; i++ {
		at.Observe(10*time.Millisecond, true)
	}

	assert.Equal(t, 2*time.Second, at.Delay())
}

func TestAutoThrottleBacksOffOnFailure(t *testing.T) {
	at := NewAutoThrottle(AutoThrottleConfig{
		StartDelay:    2 * time.Second,
		MinDelay:      1 * time.Second,
		MaxDelay:      60 * time.Second,
		Window:        20,
		SlowThreshold: 0.50, // keep one failure below the slow-mode trigger
	})

	// Fill the window with successes so one failure stays under threshold
	for i := 0; i < 19; i++ {
		at.Observe(time.Second, true)
	}

	before := at.Delay()
	at.Observe(time.Second, false)
	assert.Equal(t, before*2, at.Delay())
}

func TestAutoThrottleEntersSlowMode(t *testing.T) {
	at := NewAutoThrottle(AutoThrottleConfig{
		StartDelay: 2 * time.Second,
		MaxDelay:   30 * time.Second,
		Window:     10,
		Cooldown:   time.Minute,
	})

	// Failure spike over the threshold
	for i := 0; i < 5; i++ {
		at.Observe(time.Second, false)
	}

	assert.True(t, at.InSlowMode())
	assert.Equal(t, 30*time.Second, at.Delay())
}
