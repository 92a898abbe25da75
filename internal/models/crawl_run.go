package models

import "time"

// CrawlRun records one execution of the search crawl: how many result pages
// were visited and how many listings made it into the feed.
type CrawlRun struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Status          string     `gorm:"type:varchar(20);not null;default:'running';index" json:"status"`
	Target          int        `gorm:"not null" json:"target"`
	PagesVisited    int        `gorm:"not null;default:0" json:"pages_visited"`
	ListingsScraped int        `gorm:"not null;default:0" json:"listings_scraped"`
	ListingsSkipped int        `gorm:"not null;default:0" json:"listings_skipped"`
	DuplicatesSeen  int        `gorm:"not null;default:0" json:"duplicates_seen"`
	ErrorCount      int        `gorm:"not null;default:0" json:"error_count"`
	TargetReached   bool       `gorm:"not null;default:false" json:"target_reached"`
	LastError       string     `gorm:"type:text" json:"last_error,omitempty"`
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (CrawlRun) TableName() string {
	return "crawl_runs"
}

// Run status constants
const (
	CrawlRunStatusRunning   = "running"
	CrawlRunStatusCompleted = "completed"
	CrawlRunStatusFailed    = "failed"
	CrawlRunStatusAborted   = "aborted"
)

// Finish marks the run as completed (or failed when lastError is set).
func (r *CrawlRun) Finish(lastError string) {
	now := time.Now()
	r.FinishedAt = &now
	if lastError != "" {
		r.Status = CrawlRunStatusFailed
		r.LastError = lastError
		return
	}
	r.Status = CrawlRunStatusCompleted
}

// Abort marks the run as aborted (circuit breaker open, shutdown, etc.).
func (r *CrawlRun) Abort(reason string) {
	now := time.Now()
	r.FinishedAt = &now
	r.Status = CrawlRunStatusAborted
	r.LastError = reason
}

// Duration returns how long the run took so far.
func (r *CrawlRun) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}
