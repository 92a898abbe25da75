package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"rightmove-crawler/internal/config"
	"rightmove-crawler/internal/database"
	"rightmove-crawler/internal/feed"
	"rightmove-crawler/internal/models"
	"rightmove-crawler/internal/ratelimit"
	"rightmove-crawler/internal/scraper"
	"rightmove-crawler/internal/search"

	"github.com/robfig/cron/v3"
)

// Scheduler handles scheduled crawl runs
type Scheduler struct {
	cron      *cron.Cron
	db        *database.GormDB
	search    *search.SearchClient // optional
	config    *config.Config
	isRunning bool

	mu        sync.Mutex
	crawlBusy bool
	lastRun   *models.CrawlRun
}

// NewScheduler creates a new scheduler
func NewScheduler(db *database.GormDB, searchClient *search.SearchClient, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		db:     db,
		search: searchClient,
		config: cfg,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	if !s.config.Crawler.DailyRunEnabled {
		log.Println("[Scheduler] Daily run is disabled in configuration")
		return nil
	}

	// Parse daily run time (HH:MM format in config)
	cronSpec := s.parseDailyRunTime(s.config.Crawler.DailyRunTime)

	// Add daily crawl job
	_, err := s.cron.AddFunc(cronSpec, func() {
		log.Println("[Scheduler] Starting daily crawl...")
		if err := s.runCrawl(context.Background()); err != nil {
			log.Printf("[Scheduler] Daily crawl failed: %v", err)
		} else {
			log.Println("[Scheduler] Daily crawl completed successfully")
		}
	})

	if err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("[Scheduler] Started with daily run at %s (cron: %s)", s.config.Crawler.DailyRunTime, cronSpec)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	if s.isRunning {
		s.cron.Stop()
		s.isRunning = false
		log.Println("[Scheduler] Stopped")
	}
}

// RunNow immediately executes a crawl (for manual trigger)
func (s *Scheduler) RunNow() error {
	log.Println("[Scheduler] Manual trigger - starting crawl...")
	return s.runCrawl(context.Background())
}

// LastRun returns the most recent crawl run started by this scheduler.
func (s *Scheduler) LastRun() *models.CrawlRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// runCrawl executes a full crawl: paginate search results, scrape every
// listing, append to the feed, persist and index, then mark listings
// missing from the crawl as removed.
func (s *Scheduler) runCrawl(ctx context.Context) error {
	s.mu.Lock()
	if s.crawlBusy {
		s.mu.Unlock()
		return fmt.Errorf("a crawl is already running")
	}
	s.crawlBusy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.crawlBusy = false
		s.mu.Unlock()
	}()

	cfg := s.config.Crawler

	state := s.loadCrawlState()
	if !state.CanCrawl() {
		return fmt.Errorf("crawling is blocked until %v: %s", state.BlockedUntil, state.BlockedReason)
	}

	feedWriter, err := feed.NewAppendWriter(s.config.Output.FeedPath)
	if err != nil {
		return fmt.Errorf("failed to open feed: %w", err)
	}
	defer feedWriter.Close()

	sc := scraper.NewWithConfig(scraper.Config{
		Timeout:          cfg.GetTimeout(),
		MaxRetries:       cfg.MaxRetries,
		RetryDelay:       cfg.GetRetryDelay(),
		RequestDelay:     cfg.GetRequestDelay(),
		RandomizeDelay:   cfg.RandomizeDelay,
		UserAgent:        s.config.UserAgent,
		HeadlessFallback: cfg.HeadlessFallback,
		ChromePath:       cfg.ChromePath,
	})

	store := &recordingStore{GormDB: s.db}

	opts := scraper.CrawlerOptions{
		Query:         buildSearchQuery(cfg),
		MaxListings:   cfg.MaxListings,
		ListPageLimit: cfg.ListPageLimit,
		StopOnError:   cfg.StopOnError,
		Feed:          feedWriter,
		Store:         store,
	}
	if s.search != nil {
		opts.Index = s.search
	}
	if cfg.AutoThrottleEnabled {
		opts.Throttle = ratelimit.NewAutoThrottle(ratelimit.AutoThrottleConfig{
			StartDelay: cfg.GetRequestDelay(),
		})
	}
	if s.config.RateLimit.Enabled {
		opts.Budget = ratelimit.NewRateLimiter(
			s.config.RateLimit.RequestsPerMinute,
			s.config.RateLimit.RequestsPerHour,
			s.config.RateLimit.RequestsPerDay,
			true,
		)
	}

	run, err := scraper.NewCrawler(sc, opts).Run(ctx)

	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()

	if run.Status == models.CrawlRunStatusAborted {
		// Aborted runs mean the portal pushed back; cool off before retrying
		state.RecordFailure()
		state.SetBlocked(run.LastError, 4*time.Hour)
	} else if err != nil {
		state.RecordFailure()
	} else {
		state.RecordSuccess()
	}
	s.saveCrawlState(state)

	if err != nil {
		return err
	}

	if shouldRetireMissing(run) {
		s.retireMissing(store.crawled)
	}

	return nil
}

// shouldRetireMissing reports whether the run walked the full result set. A
// partial crawl (failed, aborted, or stopped at its listing target) must not
// retire listings it never reached.
func shouldRetireMissing(run *models.CrawlRun) bool {
	return run.Status == models.CrawlRunStatusCompleted &&
		run.ListingsScraped > 0 &&
		!run.TargetReached
}

// loadCrawlState fetches the singleton crawl state row, creating it if absent.
func (s *Scheduler) loadCrawlState() *models.CrawlState {
	var state models.CrawlState
	if err := s.db.DB().First(&state).Error; err != nil {
		state = models.CrawlState{LastAttempt: time.Now()}
	}
	return &state
}

func (s *Scheduler) saveCrawlState(state *models.CrawlState) {
	if err := s.db.DB().Save(state).Error; err != nil {
		log.Printf("[Scheduler] Failed to save crawl state: %v", err)
	}
}

// retireMissing marks active listings absent from the latest crawl as removed.
func (s *Scheduler) retireMissing(crawled []models.Listing) {
	newIDs, removedIDs, updated, err := s.db.DetectDifferences(crawled)
	if err != nil {
		log.Printf("[Scheduler] Failed to detect differences: %v", err)
		return
	}

	log.Printf("[Scheduler] Crawl diff: %d new, %d removed, %d updated", len(newIDs), len(removedIDs), len(updated))

	if len(removedIDs) == 0 {
		return
	}
	if err := s.db.MarkListingsAsRemoved(removedIDs); err != nil {
		log.Printf("[Scheduler] Failed to mark removed listings: %v", err)
		return
	}
	if s.search != nil {
		for _, id := range removedIDs {
			if err := s.search.DeleteListing(id); err != nil {
				log.Printf("[Scheduler] Failed to remove listing %s from index: %v", id, err)
			}
		}
	}
}

// recordingStore keeps the listings saved during one crawl so the diff pass
// can compare them against the active set.
type recordingStore struct {
	*database.GormDB
	mu      sync.Mutex
	crawled []models.Listing
}

func (r *recordingStore) SaveListing(l *models.Listing) error {
	if err := r.GormDB.SaveListing(l); err != nil {
		return err
	}
	r.mu.Lock()
	r.crawled = append(r.crawled, *l)
	r.mu.Unlock()
	return nil
}

// buildSearchQuery maps crawler config to portal search parameters.
func buildSearchQuery(cfg config.CrawlerConfig) scraper.SearchQuery {
	q := scraper.DefaultSearchQuery()
	if cfg.SearchLocation != "" {
		q.SearchLocation = cfg.SearchLocation
	}
	if cfg.LocationIdentifier != "" {
		q.LocationIdentifier = cfg.LocationIdentifier
	}
	if cfg.Radius != "" {
		q.Radius = cfg.Radius
	}
	if cfg.MaxDaysSinceAdded > 0 {
		q.MaxDaysSinceAdded = cfg.MaxDaysSinceAdded
	}
	if cfg.SortType > 0 {
		q.SortType = cfg.SortType
	}
	if cfg.PropertyTypes != "" {
		q.PropertyTypes = cfg.PropertyTypes
	}
	q.IncludeSSTC = cfg.IncludeSSTC
	return q
}

// parseDailyRunTime converts HH:MM format to cron specification
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func (s *Scheduler) parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	// Default to 2:00 AM if parsing fails
	log.Printf("[Scheduler] Failed to parse time '%s', using default 02:00", timeStr)
	return "0 2 * * *"
}
