package ratelimit

import (
	"log"
	"sync"
	"time"
)

// AutoThrottleConfig tunes the adaptive pacing algorithm.
type AutoThrottleConfig struct {
	StartDelay time.Duration // initial delay (AUTOTHROTTLE_START_DELAY)
	MinDelay   time.Duration // floor, normally the configured download delay
	MaxDelay   time.Duration // ceiling when the site is struggling

	Window           int     // size of the success/failure ring
	SlowThreshold    float64 // failure rate that triggers slow mode
	RecoverThreshold float64 // failure rate under which ramp-down resumes
	Cooldown         time.Duration
}

// AutoThrottle adapts the inter-request delay to observed latency and
// failures: the delay converges toward the server's response time, backs off
// hard when failures spike, and eases back down once responses are healthy.
type AutoThrottle struct {
	mu sync.Mutex

	cfg          AutoThrottleConfig
	currentDelay time.Duration

	// sliding window (true=success)
	results []bool
	idx     int
	filled  bool

	slowUntil time.Time
}

// NewAutoThrottle creates an adaptive throttle with sane defaults filled in.
func NewAutoThrottle(cfg AutoThrottleConfig) *AutoThrottle {
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = 3 * time.Second
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 0.20
	}
	if cfg.RecoverThreshold <= 0 {
		cfg.RecoverThreshold = 0.10
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}

	return &AutoThrottle{
		cfg:          cfg,
		currentDelay: cfg.StartDelay,
		results:      make([]bool, cfg.Window),
	}
}

// Delay returns the delay to apply before the next request.
func (at *AutoThrottle) Delay() time.Duration {
	at.mu.Lock()
	defer at.mu.Unlock()

	if time.Now().Before(at.slowUntil) {
		return at.cfg.MaxDelay
	}
	return at.currentDelay
}

// Observe feeds one completed request back into the throttle.
func (at *AutoThrottle) Observe(latency time.Duration, success bool) {
	at.mu.Lock()
	defer at.mu.Unlock()

	// record in ring
	at.results[at.idx] = success
	at.idx++
	if at.idx >= len(at.results) {
		at.idx = 0
		at.filled = true
	}

	failRate := at.failureRateLocked()
	now := time.Now()

	// enter slow mode on failure spikes
	if failRate >= at.cfg.SlowThreshold {
		if now.After(at.slowUntil) {
			log.Printf("[AutoThrottle] ⚠️  Entering slow mode: failRate=%.2f threshold=%.2f cooldown=%v",
				failRate, at.cfg.SlowThreshold, at.cfg.Cooldown)
		}
		at.slowUntil = now.Add(at.cfg.Cooldown)
		at.currentDelay = at.cfg.MaxDelay
		return
	}

	// during cooldown do nothing
	if now.Before(at.slowUntil) {
		return
	}

	if !success {
		// single failure outside slow mode: back off multiplicatively
		at.currentDelay = clampDuration(at.currentDelay*2, at.cfg.MinDelay, at.cfg.MaxDelay)
		return
	}

	// successful response: converge toward observed latency
	// (average of current delay and latency, never below the floor)
	if failRate <= at.cfg.RecoverThreshold {
		target := (at.currentDelay + latency) / 2
		at.currentDelay = clampDuration(target, at.cfg.MinDelay, at.cfg.MaxDelay)
	}
}

// InSlowMode reports whether the throttle is currently backing off.
func (at *AutoThrottle) InSlowMode() bool {
	at.mu.Lock()
	defer at.mu.Unlock()
	return time.Now().Before(at.slowUntil)
}

func (at *AutoThrottle) failureRateLocked() float64 {
	n := len(at.results)
	if !at.filled {
		n = at.idx
	}
	if n <= 0 {
		return 0
	}
	fail := 0
	for i := 0; i < n; i++ {
		if !at.results[i] {
			fail++
		}
	}
	return float64(fail) / float64(n)
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
