package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter tracks and enforces request rate limits over sliding
// minute/hour/day windows.
type RateLimiter struct {
	enabled bool
	windows []*window
	mu      sync.Mutex
}

// window is one sliding-window budget.
type window struct {
	span  time.Duration
	limit int
	times []time.Time
}

// NewRateLimiter creates a new rate limiter with the given limits.
// A limit of 0 disables that window.
func NewRateLimiter(requestsPerMinute, requestsPerHour, requestsPerDay int, enabled bool) *RateLimiter {
	rl := &RateLimiter{enabled: enabled}
	for _, w := range []struct {
		span  time.Duration
		limit int
	}{
		{time.Minute, requestsPerMinute},
		{time.Hour, requestsPerHour},
		{24 * time.Hour, requestsPerDay},
	} {
		if w.limit > 0 {
			rl.windows = append(rl.windows, &window{span: w.span, limit: w.limit})
		}
	}
	return rl
}

// AllowRequest checks if a request is allowed based on rate limits
// Returns true if allowed, false if rate limit exceeded
func (rl *RateLimiter) AllowRequest() bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	for _, w := range rl.windows {
		w.prune(now)
		if len(w.times) >= w.limit {
			return false
		}
	}

	// Record the request in every window
	for _, w := range rl.windows {
		w.times = append(w.times, now)
	}

	return true
}

// prune drops entries that fell out of the window
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = kept
}

// Stats contains rate limiter statistics
type Stats struct {
	Enabled            bool `json:"enabled"`
	RequestsLastMinute int  `json:"requests_last_minute"`
	RequestsLastHour   int  `json:"requests_last_hour"`
	RequestsLastDay    int  `json:"requests_last_day"`
	LimitPerMinute     int  `json:"limit_per_minute"`
	LimitPerHour       int  `json:"limit_per_hour"`
	LimitPerDay        int  `json:"limit_per_day"`
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	stats := Stats{Enabled: true}
	for _, w := range rl.windows {
		w.prune(now)
		switch w.span {
		case time.Minute:
			stats.RequestsLastMinute = len(w.times)
			stats.LimitPerMinute = w.limit
		case time.Hour:
			stats.RequestsLastHour = len(w.times)
			stats.LimitPerHour = w.limit
		default:
			stats.RequestsLastDay = len(w.times)
			stats.LimitPerDay = w.limit
		}
	}
	return stats
}

// Reset clears all tracked requests (useful for testing)
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for _, w := range rl.windows {
		w.times = nil
	}
}
