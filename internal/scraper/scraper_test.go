package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWithConfigPortalPacing(t *testing.T) {
	NewWithConfig(Config{RequestDelay: 4 * time.Second, RandomizeDelay: true})
	assert.Equal(t, 4*time.Second, portalLimiter.GetBaseDelay())
	assert.Equal(t, 2*time.Second, portalLimiter.GetJitter())

	// randomization off zeroes the jitter
	NewWithConfig(Config{RequestDelay: 2 * time.Second})
	assert.Equal(t, 2*time.Second, portalLimiter.GetBaseDelay())
	assert.Equal(t, time.Duration(0), portalLimiter.GetJitter())
}

func TestNewWithConfigDefaultUserAgent(t *testing.T) {
	s := NewWithConfig(Config{})
	assert.Contains(t, s.userAgent, "Mozilla/5.0")
}
