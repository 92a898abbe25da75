package scraper

import (
	"context"
	"errors"
	"testing"

	"rightmove-crawler/internal/models"

	"github.com/stretchr/testify/assert"
)

// fakePortal serves scripted result pages and synthesizes listing records.
type fakePortal struct {
	pages   map[int]*SearchPage
	scraped []string
}

func (p *fakePortal) ScrapeSearchPage(query SearchQuery, pageNumber int) (*SearchPage, error) {
	page, ok := p.pages[pageNumber]
	if !ok {
		return nil, errors.New("no such result page")
	}
	return page, nil
}

func (p *fakePortal) ScrapeListing(inputURL, referer string) (*models.Listing, error) {
	p.scraped = append(p.scraped, inputURL)
	l := &models.Listing{
		Source:   "rightmove",
		URL:      inputURL,
		Price:    "£100,000",
		Location: "Somewhere Street, London",
	}
	l.EnsureID()
	return l, nil
}

type fakeFeed struct {
	appended []*models.Listing
	err      error
}

func (f *fakeFeed) Append(listing *models.Listing) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, listing)
	return nil
}

type fakeStore struct {
	listings []*models.Listing
	runs     []*models.CrawlRun
	retries  []*models.ListingScrapeQueue
}

func (s *fakeStore) SaveListing(listing *models.Listing) error {
	s.listings = append(s.listings, listing)
	return nil
}

func (s *fakeStore) SaveCrawlRun(run *models.CrawlRun) error {
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeStore) EnqueueRetry(item *models.ListingScrapeQueue) error {
	s.retries = append(s.retries, item)
	return nil
}

func TestNewCrawlerDefaults(t *testing.T) {
	c := NewCrawler(nil, CrawlerOptions{})

	assert.Equal(t, 2500, c.opts.MaxListings)
	assert.Equal(t, maxPaginationIndex/ResultsPerPage, c.opts.ListPageLimit)
	assert.NotNil(t, c.seen)
}

func TestNewCrawlerKeepsExplicitLimits(t *testing.T) {
	c := NewCrawler(nil, CrawlerOptions{MaxListings: 100, ListPageLimit: 5})

	assert.Equal(t, 100, c.opts.MaxListings)
	assert.Equal(t, 5, c.opts.ListPageLimit)
}

func TestRunDeduplicatesWithinRun(t *testing.T) {
	portal := &fakePortal{pages: map[int]*SearchPage{
		1: {
			ListingURLs: []string{
				"https://www.rightmove.co.uk/properties/100000001",
				"https://www.rightmove.co.uk/properties/100000002",
			},
			HasNext: true,
		},
		2: {
			ListingURLs: []string{
				"https://www.rightmove.co.uk/properties/100000002",
				"https://www.rightmove.co.uk/properties/100000003",
			},
		},
	}}
	writer := &fakeFeed{}

	run, err := NewCrawler(portal, CrawlerOptions{Feed: writer}).Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, models.CrawlRunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.PagesVisited)
	assert.Equal(t, 3, run.ListingsScraped)
	assert.Equal(t, 1, run.DuplicatesSeen)
	assert.False(t, run.TargetReached)
	assert.Len(t, writer.appended, 3)
	// the repeated URL is fetched once
	assert.Len(t, portal.scraped, 3)
}

func TestRunStopsAtListingTarget(t *testing.T) {
	portal := &fakePortal{pages: map[int]*SearchPage{
		1: {
			ListingURLs: []string{
				"https://www.rightmove.co.uk/properties/100000001",
				"https://www.rightmove.co.uk/properties/100000002",
				"https://www.rightmove.co.uk/properties/100000003",
			},
			HasNext: true,
		},
	}}
	writer := &fakeFeed{}

	run, err := NewCrawler(portal, CrawlerOptions{Feed: writer, MaxListings: 2}).Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, models.CrawlRunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.ListingsScraped)
	assert.True(t, run.TargetReached)
	assert.Len(t, writer.appended, 2)
}

func TestRunAbortsOnFeedError(t *testing.T) {
	portal := &fakePortal{pages: map[int]*SearchPage{
		1: {ListingURLs: []string{"https://www.rightmove.co.uk/properties/100000001"}},
	}}
	writer := &fakeFeed{err: errors.New("disk full")}

	run, err := NewCrawler(portal, CrawlerOptions{Feed: writer}).Run(context.Background())

	assert.Error(t, err)
	assert.Equal(t, models.CrawlRunStatusAborted, run.Status)
	assert.Contains(t, run.LastError, "disk full")
	assert.Equal(t, 0, run.ListingsScraped)
}

func TestIsCircuitOpen(t *testing.T) {
	assert.True(t, isCircuitOpen(errors.New("circuit breaker open: too many failures")))
	assert.True(t, isCircuitOpen(errors.New("failed to fetch listing page: circuit breaker open")))
	assert.False(t, isCircuitOpen(errors.New("connection refused")))
	assert.False(t, isCircuitOpen(nil))
}

func TestEnqueueRetry(t *testing.T) {
	store := &fakeStore{}
	c := NewCrawler(nil, CrawlerOptions{Store: store})

	url := "https://www.rightmove.co.uk/properties/100000001"
	c.enqueueRetry(url, 3, errors.New("timeout awaiting response"))

	assert.Len(t, store.retries, 1)
	item := store.retries[0]
	assert.Equal(t, models.GenerateListingID(url), item.ListingID)
	assert.Equal(t, url, item.ListingURL)
	assert.Equal(t, 3, item.PageNumber)
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.Equal(t, "timeout awaiting response", item.LastError)
}

func TestEnqueueRetrySkipsPermanentFailures(t *testing.T) {
	store := &fakeStore{}
	c := NewCrawler(nil, CrawlerOptions{Store: store})

	c.enqueueRetry("https://www.rightmove.co.uk/properties/100000001", 1,
		errors.New("permanent_fail: status code 404 (listing not found or delisted)"))

	assert.Empty(t, store.retries)
}

func TestEnqueueRetryWithoutStore(t *testing.T) {
	c := NewCrawler(nil, CrawlerOptions{})

	// must not panic with no store wired
	c.enqueueRetry("https://www.rightmove.co.uk/properties/100000001", 1, errors.New("timeout"))
}

func TestIsPermanentFailure(t *testing.T) {
	assert.True(t, IsPermanentFailure(errors.New("permanent_fail: status code 404 (listing not found or delisted)")))
	assert.False(t, IsPermanentFailure(errors.New("status code 500")))
	assert.False(t, IsPermanentFailure(nil))
}
