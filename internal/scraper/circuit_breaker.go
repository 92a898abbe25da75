package scraper

import (
	"log"
	"sync"
	"time"
)

// CircuitBreaker halts the crawl when the portal starts refusing us.
// Two consecutive block-class statuses trip it immediately; otherwise a
// failure-rate check over a request window catches slower degradation.
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	failures            int
	successes           int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.successes++
	cb.totalRequests++

	// Reset consecutive failures on success; keep cumulative failures for
	// the windowed rate check
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed request (403, 429, 5xx)
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++
	cb.lastFailureTime = time.Now()

	// Immediate trip: consecutive block-class statuses mean we are detected
	if cb.consecutiveFailures >= 2 && isBlockStatus(statusCode) {
		cb.isOpen = true
		log.Printf("[CircuitBreaker] OPEN: %d consecutive %d responses, bot detection suspected", cb.consecutiveFailures, statusCode)
		log.Printf("[CircuitBreaker] Crawling halted, retry after %v", cb.resetTimeout)
		return
	}

	// Gradual trip: failure rate over a 20-request window
	if cb.totalRequests >= 20 {
		failureRate := float64(cb.failures) / float64(cb.totalRequests)

		if failureRate >= 0.40 {
			cb.isOpen = true
			log.Printf("[CircuitBreaker] OPEN: failure rate %.1f%% (%d/%d), suspected block",
				failureRate*100, cb.failures, cb.totalRequests)
			log.Printf("[CircuitBreaker] Crawling halted, retry after %v", cb.resetTimeout)
		}
	}
}

// isBlockStatus reports whether a status code looks like active blocking
// rather than an ordinary server error
func isBlockStatus(statusCode int) bool {
	return statusCode == 403 || statusCode == 429 || statusCode == 503
}

// CanProceed checks if requests are allowed
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	// Half-open after the reset timeout
	if time.Since(cb.lastFailureTime) > cb.resetTimeout {
		log.Printf("[CircuitBreaker] Attempting half-open state after %v", cb.resetTimeout)
		cb.isOpen = false
		cb.failures = 0
		cb.successes = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}

	return false
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.failures, cb.totalRequests
}
