package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Search        SearchConfig        `yaml:"search"`
	Crawler       CrawlerConfig       `yaml:"crawler"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	ErrorHandling ErrorHandlingConfig `yaml:"error_handling"`
	Output        OutputConfig        `yaml:"output"`
	UserAgent     string              `yaml:"user_agent"`
	Logging       LoggingConfig       `yaml:"logging"`
	Timezone      string              `yaml:"timezone"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// CrawlerConfig contains crawler-specific settings
type CrawlerConfig struct {
	// Search parameters sent to the portal's find.html endpoint
	SearchLocation     string `yaml:"search_location"`
	LocationIdentifier string `yaml:"location_identifier"`
	Radius             string `yaml:"radius"`
	MaxDaysSinceAdded  int    `yaml:"max_days_since_added"`
	SortType           int    `yaml:"sort_type"`
	PropertyTypes      string `yaml:"property_types"`
	IncludeSSTC        bool   `yaml:"include_sstc"`

	MaxListings         int    `yaml:"max_listings"`
	ListPageLimit       int    `yaml:"list_page_limit"`
	RequestDelaySeconds int    `yaml:"request_delay_seconds"`
	RandomizeDelay      bool   `yaml:"randomize_delay"`
	AutoThrottleEnabled bool   `yaml:"autothrottle_enabled"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	MaxRetries          int    `yaml:"max_retries"`
	RetryDelaySeconds   int    `yaml:"retry_delay_seconds"`
	StopOnError         bool   `yaml:"stop_on_error"`
	DailyRunEnabled     bool   `yaml:"daily_run_enabled"`
	DailyRunTime        string `yaml:"daily_run_time"`
	HeadlessFallback    bool   `yaml:"headless_fallback"`
	ChromePath          string `yaml:"chrome_path"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
}

// ErrorHandlingConfig contains error handling settings
type ErrorHandlingConfig struct {
	RetryOnNetworkError bool `yaml:"retry_on_network_error"`
	RetryOn5xx          bool `yaml:"retry_on_5xx"`
	RetryOn4xx          bool `yaml:"retry_on_4xx"`
	LogErrors           bool `yaml:"log_errors"`
}

// OutputConfig contains feed output settings
type OutputConfig struct {
	FeedPath string `yaml:"feed_path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level        string `yaml:"level"`
	LogRequests  bool   `yaml:"log_requests"`
	LogResponses bool   `yaml:"log_responses"`
}

// DefaultConfig returns default configuration
// Defaults mirror the London for-sale search the crawler was built for.
func DefaultConfig() *Config {
	return &Config{
		Crawler: CrawlerConfig{
			SearchLocation:      "London",
			LocationIdentifier:  "REGION^87490",
			Radius:              "0.0",
			MaxDaysSinceAdded:   3,
			SortType:            2,
			PropertyTypes:       "flat,terraced,detached,semi-detached",
			IncludeSSTC:         true,
			MaxListings:         2500,
			ListPageLimit:       50,
			RequestDelaySeconds: 2,
			RandomizeDelay:      true,
			AutoThrottleEnabled: true,
			TimeoutSeconds:      30,
			MaxRetries:          2,
			RetryDelaySeconds:   3,
			StopOnError:         false,
			DailyRunEnabled:     false,
			DailyRunTime:        "02:00",
			HeadlessFallback:    false,
			ChromePath:          "/usr/bin/google-chrome",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 20,
			RequestsPerHour:   1000,
			RequestsPerDay:    5000,
		},
		ErrorHandling: ErrorHandlingConfig{
			RetryOnNetworkError: true,
			RetryOn5xx:          true,
			RetryOn4xx:          false,
			LogErrors:           true,
		},
		Output: OutputConfig{
			FeedPath: "real_estate_properties.jsonl",
		},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Logging: LoggingConfig{
			Level:        "info",
			LogRequests:  true,
			LogResponses: false,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	// Read file
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// GetRequestDelay returns the request delay as a duration
func (c *CrawlerConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// GetTimeout returns the timeout as a duration
func (c *CrawlerConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRetryDelay returns the retry delay as a duration
func (c *CrawlerConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}
