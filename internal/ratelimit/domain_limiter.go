package ratelimit

import (
	"math/rand"
	"sync"
	"time"
)

// DomainLimiter serializes requests against the target portal: at most
// maxInFlight concurrent requests, with a minimum delay plus random jitter
// between request starts (the DOWNLOAD_DELAY / RANDOMIZE_DOWNLOAD_DELAY pair).
type DomainLimiter struct {
	maxInFlight     int
	currentInFlight int
	mutex           sync.Mutex
	baseDelay       time.Duration
	jitter          time.Duration
	lastRequest     time.Time
}

// NewDomainLimiter creates a new per-domain request limiter
func NewDomainLimiter(maxInFlight int, baseDelay, jitter time.Duration) *DomainLimiter {
	return &DomainLimiter{
		maxInFlight: maxInFlight,
		baseDelay:   baseDelay,
		jitter:      jitter,
	}
}

// Acquire waits until it's safe to make a request
func (dl *DomainLimiter) Acquire() {
	dl.mutex.Lock()

	// Wait for in-flight count to drop
	for dl.currentInFlight >= dl.maxInFlight {
		dl.mutex.Unlock()
		time.Sleep(100 * time.Millisecond)
		dl.mutex.Lock()
	}

	// Apply rate limiting with jitter
	requiredDelay := dl.baseDelay
	if dl.jitter > 0 {
		requiredDelay += time.Duration(rand.Int63n(int64(dl.jitter)))
	}

	if !dl.lastRequest.IsZero() {
		elapsed := time.Since(dl.lastRequest)
		if elapsed < requiredDelay {
			time.Sleep(requiredDelay - elapsed)
		}
	}

	dl.currentInFlight++
	dl.lastRequest = time.Now()
	dl.mutex.Unlock()
}

// Release marks a request as completed
func (dl *DomainLimiter) Release() {
	dl.mutex.Lock()
	dl.currentInFlight--
	dl.mutex.Unlock()
}

// SetBaseDelay adjusts pacing at runtime (used by the autothrottle)
func (dl *DomainLimiter) SetBaseDelay(d time.Duration) {
	dl.mutex.Lock()
	dl.baseDelay = d
	dl.mutex.Unlock()
}

// GetBaseDelay returns the current pacing delay
func (dl *DomainLimiter) GetBaseDelay() time.Duration {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.baseDelay
}

// SetJitter adjusts the random delay added on top of the base delay. Zero
// disables randomization.
func (dl *DomainLimiter) SetJitter(d time.Duration) {
	dl.mutex.Lock()
	dl.jitter = d
	dl.mutex.Unlock()
}

// GetJitter returns the current jitter window
func (dl *DomainLimiter) GetJitter() time.Duration {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.jitter
}

// GetInFlight returns current in-flight request count (for debugging)
func (dl *DomainLimiter) GetInFlight() int {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.currentInFlight
}
