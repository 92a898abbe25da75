package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "London", cfg.Crawler.SearchLocation)
	assert.Equal(t, "REGION^87490", cfg.Crawler.LocationIdentifier)
	assert.Equal(t, 2500, cfg.Crawler.MaxListings)
	assert.Equal(t, 2, cfg.Crawler.MaxRetries)
	assert.Equal(t, 2, cfg.Crawler.RequestDelaySeconds)
	assert.True(t, cfg.Crawler.RandomizeDelay)
	assert.Equal(t, "real_estate_properties.jsonl", cfg.Output.FeedPath)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig().Crawler.MaxListings, cfg.Crawler.MaxListings)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	yaml := `
crawler:
  search_location: "Manchester"
  location_identifier: "REGION^904"
  max_listings: 100
  request_delay_seconds: 5
output:
  feed_path: "out/listings.jsonl"
rate_limit:
  enabled: false
`
	dir := t.TempDir()
	path := filepath.Join(dir, "crawler_config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	assert.NoError(t, err)

	assert.Equal(t, "Manchester", cfg.Crawler.SearchLocation)
	assert.Equal(t, "REGION^904", cfg.Crawler.LocationIdentifier)
	assert.Equal(t, 100, cfg.Crawler.MaxListings)
	assert.Equal(t, 5, cfg.Crawler.RequestDelaySeconds)
	assert.Equal(t, "out/listings.jsonl", cfg.Output.FeedPath)
	assert.False(t, cfg.RateLimit.Enabled)

	// Untouched sections keep their defaults
	assert.Equal(t, 2, cfg.Crawler.MaxRetries)
	assert.Equal(t, 30, cfg.Crawler.TimeoutSeconds)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("crawler: [not a map"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	c := CrawlerConfig{
		RequestDelaySeconds: 2,
		TimeoutSeconds:      30,
		RetryDelaySeconds:   3,
	}

	assert.Equal(t, 2*time.Second, c.GetRequestDelay())
	assert.Equal(t, 30*time.Second, c.GetTimeout())
	assert.Equal(t, 3*time.Second, c.GetRetryDelay())
}
