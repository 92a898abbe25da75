package scheduler

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"rightmove-crawler/internal/database"
	"rightmove-crawler/internal/feed"
	"rightmove-crawler/internal/models"
	"rightmove-crawler/internal/scraper"
	"rightmove-crawler/internal/search"

	"gorm.io/gorm"
)

// QueueWorker processes listing_scrape_queue items with rate limiting and
// bot-detection protection
type QueueWorker struct {
	db                 *database.GormDB
	scraper            *scraper.Scraper
	search             *search.SearchClient // optional
	feedPath           string
	userAgent          string
	stopChan           chan struct{}
	isRunning          bool
	pollInterval       time.Duration
	consecutiveSuccess int // Track consecutive successes for preventive cooldown
}

// NewQueueWorker creates a new queue worker
func NewQueueWorker(db *database.GormDB, sc *scraper.Scraper, searchClient *search.SearchClient, feedPath, userAgent string) *QueueWorker {
	return &QueueWorker{
		db:           db,
		scraper:      sc,
		search:       searchClient,
		feedPath:     feedPath,
		userAgent:    userAgent,
		stopChan:     make(chan struct{}),
		pollInterval: 30 * time.Second, // Check queue every 30 seconds
	}
}

// Start starts the queue worker
func (w *QueueWorker) Start() {
	if w.isRunning {
		log.Println("[QueueWorker] Already running")
		return
	}

	log.Println("[QueueWorker] Running health check...")
	if !w.healthCheck() {
		// Blocked: enter long cooldown before touching the queue
		log.Println("[QueueWorker] Block detected in health check, entering 1-hour cooldown")
		time.Sleep(1 * time.Hour)

		if !w.healthCheck() {
			log.Println("[QueueWorker] Still blocked after 1h, entering 4-hour cooldown")
			time.Sleep(4 * time.Hour)
		}
	} else {
		log.Println("[QueueWorker] Health check passed")
	}

	w.isRunning = true
	log.Printf("[QueueWorker] Started (poll_interval=%v)", w.pollInterval)

	go w.run()
}

// Stop stops the queue worker
func (w *QueueWorker) Stop() {
	if !w.isRunning {
		return
	}

	log.Println("[QueueWorker] Stopping...")
	w.isRunning = false
	close(w.stopChan)
}

// run is the main worker loop
func (w *QueueWorker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			log.Println("[QueueWorker] Stopped")
			return
		case <-ticker.C:
			w.processNext()
		}
	}
}

// processNext picks and processes the next due queue item
func (w *QueueWorker) processNext() {
	var item models.ListingScrapeQueue
	now := time.Now()

	// Priority 1: Try to get a pending item first
	result := w.db.DB().Where("status = ?", models.QueueStatusPending).
		Order("priority DESC, created_at ASC").
		First(&item)

	// Priority 2: If no pending items, try failed items with retry time passed
	if result.Error == gorm.ErrRecordNotFound {
		result = w.db.DB().Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", models.QueueStatusFailed, now).
			Order("priority DESC, created_at ASC").
			First(&item)
	}

	if result.Error != nil {
		if result.Error != gorm.ErrRecordNotFound {
			log.Printf("[QueueWorker] Error fetching next queue item: %v", result.Error)
		}
		return
	}

	w.processQueueItem(&item)
}

// processQueueItem processes a single queue item
func (w *QueueWorker) processQueueItem(item *models.ListingScrapeQueue) {
	log.Printf("[QueueWorker] Processing id=%d url=%s attempt=%d", item.ID, item.ListingURL, item.Attempts+1)

	// Mark as processing
	item.Status = models.QueueStatusProcessing
	item.Attempts++
	if err := w.db.DB().Save(item).Error; err != nil {
		log.Printf("[QueueWorker] Failed to update status to processing: %v", err)
		return
	}

	listing, err := w.scraper.ScrapeListing(item.ListingURL, "")
	if err != nil {
		w.handleScrapeError(item, err)
		return
	}

	if listing.PageNumber == 0 {
		listing.PageNumber = item.PageNumber
	}

	w.handleScrapeSuccess(item, listing)
}

// handleScrapeError handles scraping errors with retry scheduling
func (w *QueueWorker) handleScrapeError(item *models.ListingScrapeQueue, err error) {
	errMsg := err.Error()
	log.Printf("[QueueWorker] Scrape failed for id=%d: %v", item.ID, err)

	// Reset consecutive success counter on any failure
	w.consecutiveSuccess = 0

	// Permanent failure (404): listing delisted or URL invalid, don't retry
	if scraper.IsPermanentFailure(err) {
		log.Printf("[QueueWorker] Permanent failure for id=%d - no retry", item.ID)
		item.Status = models.QueueStatusPermanentFail
		item.LastError = errMsg
		completedAt := time.Now()
		item.CompletedAt = &completedAt
		item.NextRetryAt = nil

		if err := w.db.DB().Save(item).Error; err != nil {
			log.Printf("[QueueWorker] Failed to save permanent_fail status: %v", err)
		}
		return
	}

	// Circuit breaker / bot block: long cooldown before any retry
	if strings.Contains(errMsg, "circuit breaker open") || strings.Contains(errMsg, "bot block") {
		log.Printf("[QueueWorker] Bot block detected for id=%d - entering cooldown", item.ID)

		item.Status = models.QueueStatusFailed
		item.LastError = errMsg
		nextRetry := time.Now().Add(1 * time.Hour)
		item.NextRetryAt = &nextRetry

		if err := w.db.DB().Save(item).Error; err != nil {
			log.Printf("[QueueWorker] Failed to save cooldown: %v", err)
		}

		// Pause the worker to let the circuit breaker reset
		log.Printf("[QueueWorker] Pausing for 5 minutes due to block detection")
		time.Sleep(5 * time.Minute)
		return
	}

	if item.Attempts >= models.MaxRetryAttempts {
		log.Printf("[QueueWorker] Max retries exceeded for id=%d (%d attempts)", item.ID, item.Attempts)
		item.Status = models.QueueStatusFailed
		item.LastError = fmt.Sprintf("max retries exceeded (%d): %s", item.Attempts, errMsg)
		completedAt := time.Now()
		item.CompletedAt = &completedAt
		item.NextRetryAt = nil
	} else {
		// Schedule retry with exponential backoff
		delay := models.GetNextRetryDelay(item.Attempts - 1) // -1 because we already incremented Attempts
		nextRetry := time.Now().Add(delay)
		item.Status = models.QueueStatusFailed
		item.LastError = errMsg
		item.NextRetryAt = &nextRetry
		log.Printf("[QueueWorker] Scheduling retry for id=%d in %v (attempt %d/%d)",
			item.ID, delay, item.Attempts, models.MaxRetryAttempts)
	}

	if err := w.db.DB().Save(item).Error; err != nil {
		log.Printf("[QueueWorker] Failed to save retry status: %v", err)
	}
}

// handleScrapeSuccess saves the listing, appends it to the feed, and marks
// the queue item as done
func (w *QueueWorker) handleScrapeSuccess(item *models.ListingScrapeQueue, listing *models.Listing) {
	log.Printf("[QueueWorker] Successfully scraped id=%d listing_id=%s", item.ID, listing.ID)

	if !listing.HasUsableData() {
		log.Printf("[QueueWorker] Insufficient data for id=%d, marking permanent_fail", item.ID)
		item.Status = models.QueueStatusPermanentFail
		item.LastError = "listing page carried no price or location"
		completedAt := time.Now()
		item.CompletedAt = &completedAt
		item.NextRetryAt = nil
		if err := w.db.DB().Save(item).Error; err != nil {
			log.Printf("[QueueWorker] Failed to save status: %v", err)
		}
		return
	}

	if err := w.db.SaveListing(listing); err != nil {
		log.Printf("[QueueWorker] Failed to save listing: %v", err)
		// Treat as retryable error
		w.handleScrapeError(item, fmt.Errorf("database save error: %w", err))
		return
	}

	if err := w.appendToFeed(listing); err != nil {
		log.Printf("[QueueWorker] Warning: failed to append to feed: %v", err)
		// The listing is saved; don't fail the queue item over the feed
	}

	if w.search != nil {
		if err := w.search.IndexListing(listing); err != nil {
			log.Printf("[QueueWorker] Warning: failed to index listing: %v", err)
		}
	}

	// Mark queue item as done
	item.Status = models.QueueStatusDone
	item.LastError = ""
	completedAt := time.Now()
	item.CompletedAt = &completedAt
	item.NextRetryAt = nil

	if err := w.db.DB().Save(item).Error; err != nil {
		log.Printf("[QueueWorker] Failed to mark item as done: %v", err)
		return
	}
	log.Printf("[QueueWorker] ✅ Completed id=%d listing_id=%s", item.ID, listing.ID)

	// Track consecutive successes for preventive cooldown
	w.consecutiveSuccess++

	// Preventive cooldown after 3 consecutive successes (simulate human behavior)
	if w.consecutiveSuccess >= 3 {
		cooldownDuration := 5 * time.Minute
		log.Printf("[QueueWorker] Preventive cooldown after %d successes - pausing for %v", w.consecutiveSuccess, cooldownDuration)
		time.Sleep(cooldownDuration)
		w.consecutiveSuccess = 0
	}
}

func (w *QueueWorker) appendToFeed(listing *models.Listing) error {
	if w.feedPath == "" {
		return nil
	}
	writer, err := feed.NewAppendWriter(w.feedPath)
	if err != nil {
		return err
	}
	defer writer.Close()
	return writer.Append(listing)
}

// healthCheck performs a lightweight request to check for bot blocks
func (w *QueueWorker) healthCheck() bool {
	testURL := "https://www.rightmove.co.uk/"
	req, err := http.NewRequest("GET", testURL, nil)
	if err != nil {
		log.Printf("[QueueWorker] Health check request creation failed: %v", err)
		return false
	}

	// Apply browser-like headers
	userAgent := w.userAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[QueueWorker] Health check network error: %v", err)
		return false
	}
	defer resp.Body.Close()

	// 403 / 429 mean the crawler is blocked
	if resp.StatusCode == 403 || resp.StatusCode == 429 {
		log.Printf("[QueueWorker] Blocked in health check (status: %d)", resp.StatusCode)
		return false
	}
	if resp.StatusCode >= 500 {
		log.Printf("[QueueWorker] Health check got server error (status: %d)", resp.StatusCode)
		return false
	}

	log.Printf("[QueueWorker] Health check OK (status: %d)", resp.StatusCode)
	return true
}

// GetQueueStats returns current queue statistics
func (w *QueueWorker) GetQueueStats() map[string]interface{} {
	var stats struct {
		Pending       int64
		Processing    int64
		Done          int64
		Failed        int64
		PermanentFail int64
	}

	db := w.db.DB()
	db.Model(&models.ListingScrapeQueue{}).Where("status = ?", models.QueueStatusPending).Count(&stats.Pending)
	db.Model(&models.ListingScrapeQueue{}).Where("status = ?", models.QueueStatusProcessing).Count(&stats.Processing)
	db.Model(&models.ListingScrapeQueue{}).Where("status = ?", models.QueueStatusDone).Count(&stats.Done)
	db.Model(&models.ListingScrapeQueue{}).Where("status = ?", models.QueueStatusFailed).Count(&stats.Failed)
	db.Model(&models.ListingScrapeQueue{}).Where("status = ?", models.QueueStatusPermanentFail).Count(&stats.PermanentFail)

	return map[string]interface{}{
		"pending":        stats.Pending,
		"processing":     stats.Processing,
		"done":           stats.Done,
		"failed":         stats.Failed,
		"permanent_fail": stats.PermanentFail,
		"is_running":     w.isRunning,
	}
}
