package models

import (
	"time"
)

// ListingScrapeQueue holds detail pages that failed during a crawl so the
// queue worker can retry them later without re-walking the search results.
type ListingScrapeQueue struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID   string     `gorm:"type:varchar(32);not null;index:idx_queue_lookup" json:"listing_id"`
	ListingURL  string     `gorm:"type:text;not null" json:"listing_url"`
	PageNumber  int        `gorm:"default:0" json:"page_number"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_status" json:"status"` // pending, processing, done, failed
	Priority    int        `gorm:"default:0;index:idx_priority" json:"priority"`                               // Higher = process first
	Attempts    int        `gorm:"default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt *time.Time `gorm:"index:idx_retry" json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (ListingScrapeQueue) TableName() string {
	return "listing_scrape_queue"
}

// Status constants
const (
	QueueStatusPending       = "pending"
	QueueStatusProcessing    = "processing"
	QueueStatusDone          = "done"
	QueueStatusFailed        = "failed"
	QueueStatusPermanentFail = "permanent_fail" // 404 or other non-retryable failures
)

// MaxRetryAttempts before marking as permanently failed
const MaxRetryAttempts = 5

// GetNextRetryDelay calculates exponential backoff for retries
func GetNextRetryDelay(attempts int) time.Duration {
	// 2min, 10min, 30min, 2h, 6h
	delays := []time.Duration{
		2 * time.Minute,
		10 * time.Minute,
		30 * time.Minute,
		2 * time.Hour,
		6 * time.Hour,
	}

	if attempts >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempts]
}
