package scraper

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"rightmove-crawler/internal/models"
	"rightmove-crawler/internal/ratelimit"
)

// FeedWriter appends listing records to the JSON-Lines feed.
type FeedWriter interface {
	Append(listing *models.Listing) error
}

// PageScraper is the portal-facing surface the crawler drives. *Scraper
// implements it.
type PageScraper interface {
	ScrapeSearchPage(query SearchQuery, pageNumber int) (*SearchPage, error)
	ScrapeListing(inputURL, referer string) (*models.Listing, error)
}

// ListingStore persists listings and crawl bookkeeping. All methods are
// optional conveniences around the crawl; the feed is the primary output.
type ListingStore interface {
	SaveListing(listing *models.Listing) error
	SaveCrawlRun(run *models.CrawlRun) error
	EnqueueRetry(item *models.ListingScrapeQueue) error
}

// ListingIndexer pushes listings into the search index.
type ListingIndexer interface {
	IndexListing(listing *models.Listing) error
}

// CrawlerOptions configures one crawl.
type CrawlerOptions struct {
	Query         SearchQuery
	MaxListings   int
	ListPageLimit int
	StopOnError   bool

	Feed     FeedWriter
	Store    ListingStore            // optional
	Index    ListingIndexer          // optional
	Throttle *ratelimit.AutoThrottle // optional
	Budget   *ratelimit.RateLimiter  // optional
}

// Crawler walks paginated search results, follows every listing link, and
// appends one record per listing to the feed. Listings are deduplicated per
// run by normalized URL.
type Crawler struct {
	scraper PageScraper
	opts    CrawlerOptions
	seen    map[string]bool
}

// NewCrawler creates a crawler around an existing page scraper.
func NewCrawler(s PageScraper, opts CrawlerOptions) *Crawler {
	if opts.MaxListings <= 0 {
		opts.MaxListings = 2500
	}
	if opts.ListPageLimit <= 0 {
		opts.ListPageLimit = maxPaginationIndex / ResultsPerPage
	}
	return &Crawler{
		scraper: s,
		opts:    opts,
		seen:    make(map[string]bool),
	}
}

// Run executes one crawl. The returned CrawlRun always carries final
// counters, also when the crawl ends early.
func (c *Crawler) Run(ctx context.Context) (*models.CrawlRun, error) {
	run := &models.CrawlRun{
		Status:    models.CrawlRunStatusRunning,
		Target:    c.opts.MaxListings,
		StartedAt: time.Now(),
	}
	c.saveRun(run)

	log.Printf("[Crawler] Starting crawl: target=%d listings, up to %d result pages",
		c.opts.MaxListings, c.opts.ListPageLimit)

	var runErr error

pages:
	for pageNumber := 1; pageNumber <= c.opts.ListPageLimit; pageNumber++ {
		if err := ctx.Err(); err != nil {
			run.Abort("context cancelled")
			c.saveRun(run)
			return run, err
		}

		page, err := c.scraper.ScrapeSearchPage(c.opts.Query, pageNumber)
		if err != nil {
			run.ErrorCount++
			run.LastError = err.Error()
			if isCircuitOpen(err) {
				log.Printf("[Crawler] Circuit breaker open, aborting crawl: %v", err)
				run.Abort(err.Error())
				c.saveRun(run)
				return run, err
			}
			log.Printf("[Crawler] Failed to fetch result page %d: %v", pageNumber, err)
			if c.opts.StopOnError {
				runErr = err
				break
			}
			continue
		}
		run.PagesVisited++

		searchURL := c.opts.Query.URLForIndex((pageNumber - 1) * ResultsPerPage)
		for _, listingURL := range page.ListingURLs {
			if run.ListingsScraped >= c.opts.MaxListings {
				log.Printf("[Crawler] Reached target of %d listings", c.opts.MaxListings)
				run.TargetReached = true
				break pages
			}
			if err := ctx.Err(); err != nil {
				run.Abort("context cancelled")
				c.saveRun(run)
				return run, err
			}

			if c.seen[listingURL] {
				run.DuplicatesSeen++
				continue
			}
			c.seen[listingURL] = true

			if err := c.awaitBudget(ctx); err != nil {
				run.Abort(err.Error())
				c.saveRun(run)
				return run, err
			}

			c.throttleDelay()

			start := time.Now()
			listing, err := c.scraper.ScrapeListing(listingURL, searchURL)
			c.observe(time.Since(start), err == nil)

			if err != nil {
				run.ErrorCount++
				run.LastError = err.Error()
				if isCircuitOpen(err) {
					log.Printf("[Crawler] Circuit breaker open, aborting crawl: %v", err)
					run.Abort(err.Error())
					c.saveRun(run)
					return run, err
				}
				log.Printf("[Crawler] Error scraping %s: %v", listingURL, err)
				c.enqueueRetry(listingURL, pageNumber, err)
				if c.opts.StopOnError {
					runErr = err
					break pages
				}
				continue
			}

			listing.PageNumber = pageNumber

			// Records with neither price nor location carry nothing useful
			if !listing.HasUsableData() {
				log.Printf("[Crawler] Insufficient data at %s, skipping", listingURL)
				run.ListingsSkipped++
				continue
			}

			if err := c.opts.Feed.Append(listing); err != nil {
				// Feed failure is fatal: the output file is the whole point
				run.Abort(fmt.Sprintf("feed write failed: %v", err))
				c.saveRun(run)
				return run, fmt.Errorf("feed write failed: %w", err)
			}
			run.ListingsScraped++

			c.persist(listing)

			if run.ListingsScraped%50 == 0 {
				log.Printf("[Crawler] Progress: %d/%d listings", run.ListingsScraped, c.opts.MaxListings)
				c.saveRun(run)
			}
		}

		if run.ListingsScraped >= c.opts.MaxListings {
			run.TargetReached = true
			break
		}
		if !page.HasNext {
			log.Printf("[Crawler] No more result pages after page %d", pageNumber)
			break
		}
	}

	if runErr != nil {
		run.Finish(runErr.Error())
	} else {
		run.Finish("")
	}
	c.saveRun(run)

	log.Printf("[Crawler] Crawl %s: pages=%d scraped=%d skipped=%d duplicates=%d errors=%d in %v",
		run.Status, run.PagesVisited, run.ListingsScraped, run.ListingsSkipped,
		run.DuplicatesSeen, run.ErrorCount, run.Duration())
	return run, runErr
}

// awaitBudget blocks while the request budget is exhausted.
func (c *Crawler) awaitBudget(ctx context.Context) error {
	if c.opts.Budget == nil {
		return nil
	}
	for !c.opts.Budget.AllowRequest() {
		log.Printf("[Crawler] Request budget exhausted, waiting...")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
	return nil
}

func (c *Crawler) throttleDelay() {
	if c.opts.Throttle == nil {
		return
	}
	if d := c.opts.Throttle.Delay(); d > 0 {
		time.Sleep(d)
	}
}

func (c *Crawler) observe(latency time.Duration, success bool) {
	if c.opts.Throttle != nil {
		c.opts.Throttle.Observe(latency, success)
	}
}

func (c *Crawler) persist(listing *models.Listing) {
	if c.opts.Store != nil {
		if err := c.opts.Store.SaveListing(listing); err != nil {
			log.Printf("[Crawler] Failed to save listing %s: %v", listing.ID, err)
		}
	}
	if c.opts.Index != nil {
		if err := c.opts.Index.IndexListing(listing); err != nil {
			log.Printf("[Crawler] Failed to index listing %s: %v", listing.ID, err)
		}
	}
}

// enqueueRetry queues a failed detail page for the queue worker, unless the
// failure is permanent (404) or there is no store configured.
func (c *Crawler) enqueueRetry(listingURL string, pageNumber int, fetchErr error) {
	if c.opts.Store == nil || IsPermanentFailure(fetchErr) {
		return
	}

	item := &models.ListingScrapeQueue{
		ListingID:  models.GenerateListingID(listingURL),
		ListingURL: listingURL,
		PageNumber: pageNumber,
		Status:     models.QueueStatusPending,
		LastError:  fetchErr.Error(),
	}
	if err := c.opts.Store.EnqueueRetry(item); err != nil {
		log.Printf("[Crawler] Failed to enqueue retry for %s: %v", listingURL, err)
	}
}

func (c *Crawler) saveRun(run *models.CrawlRun) {
	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.SaveCrawlRun(run); err != nil {
		log.Printf("[Crawler] Failed to save crawl run: %v", err)
	}
}

func isCircuitOpen(err error) bool {
	return err != nil && strings.Contains(err.Error(), "circuit breaker open")
}
