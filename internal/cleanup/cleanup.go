package cleanup

import (
	"fmt"
	"log"
	"time"

	"rightmove-crawler/internal/models"
	"rightmove-crawler/internal/search"

	"gorm.io/gorm"
)

// Service handles physical deletion of stale crawl data
type Service struct {
	db     *gorm.DB
	search *search.SearchClient // optional
}

// NewService creates a new cleanup service
func NewService(db *gorm.DB, searchClient *search.SearchClient) *Service {
	return &Service{db: db, search: searchClient}
}

// Config holds configuration for cleanup operations
type Config struct {
	RetentionDays      int  // Days to keep removed listings before physical deletion (default: 90)
	QueueRetentionDays int  // Days to keep finished queue rows (default: 14)
	RunRetentionDays   int  // Days to keep crawl run records (default: 60)
	MaxDeletionCount   int  // Maximum number of listings to delete in one run (safety limit)
	DryRun             bool // If true, only log what would be deleted without actually deleting
	DeleteFromSearch   bool // If true, also delete from Meilisearch
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		RetentionDays:      90,
		QueueRetentionDays: 14,
		RunRetentionDays:   60,
		MaxDeletionCount:   10000,
		DryRun:             false,
		DeleteFromSearch:   true,
	}
}

// Result holds the result of a cleanup operation
type Result struct {
	TargetCount     int       `json:"target_count"`     // Listings eligible for deletion
	DeletedCount    int       `json:"deleted_count"`    // Listings actually deleted
	QueueRowsPruned int64     `json:"queue_rows_pruned"`
	RunsPruned      int64     `json:"runs_pruned"`
	ErrorCount      int       `json:"error_count"`
	DryRun          bool      `json:"dry_run"`
	ExecutedAt      time.Time `json:"executed_at"`
	DeletedListings []string  `json:"deleted_listings"`
	Errors          []string  `json:"errors,omitempty"`
}

// FindExpiredListings finds listings that are eligible for physical deletion:
// status = 'removed' and removed_at older than retentionDays.
func (s *Service) FindExpiredListings(retentionDays int) ([]models.Listing, error) {
	var listings []models.Listing

	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	err := s.db.Where("status = ? AND removed_at < ?",
		models.ListingStatusRemoved,
		cutoffDate,
	).Find(&listings).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find expired listings: %w", err)
	}

	log.Printf("[Cleanup] Found %d listings expired before %s", len(listings), cutoffDate.Format("2006-01-02"))
	return listings, nil
}

// Run performs physical deletion of expired listings and prunes finished
// queue rows and old crawl runs.
func (s *Service) Run(config Config) (*Result, error) {
	result := &Result{
		DryRun:     config.DryRun,
		ExecutedAt: time.Now(),
	}

	expired, err := s.FindExpiredListings(config.RetentionDays)
	if err != nil {
		return nil, err
	}

	result.TargetCount = len(expired)

	// Safety check: abort if too many listings would be deleted
	if result.TargetCount > config.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d listings exceed max deletion limit of %d",
			result.TargetCount, config.MaxDeletionCount)
	}

	if result.TargetCount > 0 {
		log.Printf("[Cleanup] Starting: %d listings to delete (retention: %d days, dry-run: %v)",
			result.TargetCount, config.RetentionDays, config.DryRun)
	}

	for _, listing := range expired {
		if config.DryRun {
			log.Printf("[Cleanup] [DRY-RUN] Would delete listing %s (URL: %s, RemovedAt: %s)",
				listing.ID, listing.URL, listing.RemovedAt.Format("2006-01-02"))
			result.DeletedListings = append(result.DeletedListings, listing.ID)
			result.DeletedCount++
			continue
		}

		if err := s.db.Delete(&listing).Error; err != nil {
			errMsg := fmt.Sprintf("failed to delete listing %s: %v", listing.ID, err)
			log.Printf("[Cleanup] ERROR: %s", errMsg)
			result.Errors = append(result.Errors, errMsg)
			result.ErrorCount++
			continue
		}

		if config.DeleteFromSearch && s.search != nil {
			if err := s.search.DeleteListing(listing.ID); err != nil {
				log.Printf("[Cleanup] Warning: failed to remove %s from search index: %v", listing.ID, err)
			}
		}

		log.Printf("[Cleanup] Physically deleted listing %s (URL: %s)", listing.ID, listing.URL)
		result.DeletedListings = append(result.DeletedListings, listing.ID)
		result.DeletedCount++
	}

	if !config.DryRun {
		result.QueueRowsPruned = s.pruneQueue(config.QueueRetentionDays)
		result.RunsPruned = s.pruneRuns(config.RunRetentionDays)
	}

	log.Printf("[Cleanup] Completed: %d/%d listings deleted, %d queue rows pruned, %d runs pruned, %d errors (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.QueueRowsPruned, result.RunsPruned, result.ErrorCount, config.DryRun)

	return result, nil
}

// pruneQueue deletes finished queue rows older than retentionDays.
func (s *Service) pruneQueue(retentionDays int) int64 {
	if retentionDays <= 0 {
		retentionDays = 14
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	res := s.db.Where("status IN ? AND updated_at < ?",
		[]string{models.QueueStatusDone, models.QueueStatusPermanentFail},
		cutoff,
	).Delete(&models.ListingScrapeQueue{})
	if res.Error != nil {
		log.Printf("[Cleanup] Failed to prune queue rows: %v", res.Error)
		return 0
	}
	return res.RowsAffected
}

// pruneRuns deletes crawl run records older than retentionDays.
func (s *Service) pruneRuns(retentionDays int) int64 {
	if retentionDays <= 0 {
		retentionDays = 60
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	res := s.db.Where("started_at < ?", cutoff).Delete(&models.CrawlRun{})
	if res.Error != nil {
		log.Printf("[Cleanup] Failed to prune crawl runs: %v", res.Error)
		return 0
	}
	return res.RowsAffected
}

// GetStats returns statistics about removed and expired listings
func (s *Service) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var currentRemoved int64
	if err := s.db.Model(&models.Listing{}).
		Where("status = ?", models.ListingStatusRemoved).
		Count(&currentRemoved).Error; err != nil {
		return nil, err
	}
	stats["currently_removed"] = currentRemoved

	expired, err := s.FindExpiredListings(DefaultConfig().RetentionDays)
	if err != nil {
		return nil, err
	}
	stats["expired_ready_for_deletion"] = len(expired)

	return stats, nil
}
