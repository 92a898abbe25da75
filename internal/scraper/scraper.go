package scraper

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"rightmove-crawler/internal/ratelimit"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

var (
	// Global limiter for requests against the portal: one request at a
	// time with the configured download delay plus jitter
	portalLimiter = ratelimit.NewDomainLimiter(
		1,                     // maxInFlight: single concurrent request (avoid bursts)
		2000*time.Millisecond, // baseDelay
		1000*time.Millisecond, // jitter: 0-1s (total: 2-3s)
	)

	// Global circuit breaker to detect bot blocking
	circuitBreaker = NewCircuitBreaker(
		8,           // failureThreshold within the 20-request window
		1*time.Hour, // resetTimeout before half-open retry
	)
)

// Scraper fetches portal pages with browser-masquerade headers, retry with
// exponential backoff, and an optional headless-Chrome fallback.
type Scraper struct {
	client           *http.Client
	maxRetries       int
	retryDelay       time.Duration
	userAgent        string
	headlessFallback bool
	chromePath       string
}

// Config holds scraper construction parameters.
type Config struct {
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	RequestDelay     time.Duration
	RandomizeDelay   bool
	UserAgent        string
	HeadlessFallback bool
	ChromePath       string
}

// New returns a Scraper with the defaults used by the original crawl.
func New() *Scraper {
	return NewWithConfig(Config{
		Timeout:        30 * time.Second,
		MaxRetries:     2,
		RetryDelay:     3 * time.Second,
		RequestDelay:   2 * time.Second,
		RandomizeDelay: true,
	})
}

// NewWithConfig returns a Scraper configured from the given Config.
func NewWithConfig(config Config) *Scraper {
	// Cookie jar keeps the session across list and detail requests
	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Printf("Warning: Failed to create cookie jar: %v", err)
		jar = nil
	}

	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}

	// Propagate the configured download delay to the shared limiter
	if config.RequestDelay > 0 {
		portalLimiter.SetBaseDelay(config.RequestDelay)
	}

	// Jitter is half the base delay when randomization is on
	if config.RandomizeDelay {
		portalLimiter.SetJitter(portalLimiter.GetBaseDelay() / 2)
	} else {
		portalLimiter.SetJitter(0)
	}

	return &Scraper{
		client: &http.Client{
			Timeout: config.Timeout,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Follow redirects while maintaining cookies
				return nil
			},
		},
		maxRetries:       config.MaxRetries,
		retryDelay:       config.RetryDelay,
		userAgent:        config.UserAgent,
		headlessFallback: config.HeadlessFallback,
		chromePath:       config.ChromePath,
	}
}

// applyBrowserHeaders sets browser-like headers to avoid bot detection
func (s *Scraper) applyBrowserHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Sec-Fetch-Dest", "document")

	if referer != "" {
		req.Header.Set("Referer", referer)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
	}
}

// isBotBlock checks if a response is an anti-bot interstitial rather than a
// real page
func isBotBlock(resp *http.Response) bool {
	if resp.StatusCode != 403 && resp.StatusCode != 429 {
		return false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode == 403
	}

	// Replace body so it can be read again if needed
	resp.Body = io.NopCloser(strings.NewReader(string(body)))

	bodyStr := strings.ToLower(string(body))
	for _, marker := range []string{"captcha", "access denied", "unusual activity", "are you a robot"} {
		if strings.Contains(bodyStr, marker) {
			log.Printf("[BotBlock] Detected interstitial page (status %d, marker %q)", resp.StatusCode, marker)
			return true
		}
	}

	return resp.StatusCode == 403
}

// doRequestWithRetry performs HTTP request with exponential backoff retry
func (s *Scraper) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	// Check circuit breaker before proceeding
	if !circuitBreaker.CanProceed() {
		isOpen, failures, total := circuitBreaker.GetStatus()
		return nil, fmt.Errorf("circuit breaker open: suspected bot block (%d/%d failures, open=%v)", failures, total, isOpen)
	}

	// Acquire global rate limiter before starting
	portalLimiter.Acquire()
	defer portalLimiter.Release()

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: delay * 2^(attempt-1), max 60s
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * s.retryDelay
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			log.Printf("Retry attempt %d/%d after %v (inFlight: %d)", attempt, s.maxRetries, backoff, portalLimiter.GetInFlight())
			time.Sleep(backoff)
		}

		resp, err = s.client.Do(req)

		if err == nil && resp.StatusCode == 200 {
			circuitBreaker.RecordSuccess()
			return resp, nil
		}

		if err != nil {
			log.Printf("Request failed (attempt %d): %v", attempt+1, err)
			circuitBreaker.RecordFailure(0)
		} else {
			log.Printf("Request failed (attempt %d): status %d", attempt+1, resp.StatusCode)

			// Anti-bot interstitial: immediate failure, no retry
			if isBotBlock(resp) {
				circuitBreaker.RecordFailure(resp.StatusCode)
				if resp.Body != nil {
					resp.Body.Close()
				}
				return nil, fmt.Errorf("bot block detected: immediate retreat required")
			}

			if resp.StatusCode >= 500 || resp.StatusCode == 429 || resp.StatusCode == 403 {
				circuitBreaker.RecordFailure(resp.StatusCode)
			}

			if resp.Body != nil {
				resp.Body.Close()
			}

			// Longer backoff for server errors (500/503)
			if resp.StatusCode >= 500 && attempt < s.maxRetries {
				serverBackoff := time.Duration(math.Pow(2, float64(attempt+2))) * s.retryDelay
				if serverBackoff > 60*time.Second {
					serverBackoff = 60 * time.Second
				}
				log.Printf("Server error %d, backing off for %v", resp.StatusCode, serverBackoff)
				time.Sleep(serverBackoff)
			}
		}

		// Don't retry on client errors (4xx except 429)
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
			// 404: listing gone or delisted (permanent failure, not a block)
			if resp.StatusCode == 404 {
				log.Printf("404 Not Found (listing likely delisted): not retrying")
			}
			break
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d retries: %w", s.maxRetries, err)
	}
	// Include status code in error for caller to distinguish 404 vs block
	if resp != nil && resp.StatusCode == 404 {
		return nil, fmt.Errorf("permanent_fail: status code 404 (listing not found or delisted)")
	}
	return nil, fmt.Errorf("request failed after %d retries: status code %d", s.maxRetries, resp.StatusCode)
}

// IsPermanentFailure reports whether a fetch error should not be retried
// (delisted page rather than transient failure or block).
func IsPermanentFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), "permanent_fail")
}

// fetchDocument fetches a page and parses it, handling gzip and validating
// the response looks like real HTML.
func (s *Scraper) fetchDocument(pageURL, referer string) (*goquery.Document, error) {
	req, err := http.NewRequest("GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.applyBrowserHeaders(req, referer)

	resp, err := s.doRequestWithRetry(req)
	if err != nil {
		if s.headlessFallback && !IsPermanentFailure(err) {
			// Last resort: render the page in headless Chrome
			html, hErr := s.fetchHTMLWithHeadlessBrowser(pageURL)
			if hErr != nil {
				return nil, fmt.Errorf("failed to fetch page: %w", err)
			}
			return goquery.NewDocumentFromReader(strings.NewReader(html))
		}
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "text/html") {
		return nil, fmt.Errorf("unexpected content type %q for %s", ct, pageURL)
	}

	// Handle gzip decompression if needed
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Some block pages come back as 200 with no real markup
	if doc.Find("html").Length() == 0 {
		return nil, fmt.Errorf("response for %s does not look like an HTML document", pageURL)
	}

	return doc, nil
}

// fetchHTMLWithHeadlessBrowser uses Chrome headless browser to fetch HTML.
// This bypasses most anti-bot detection by executing JavaScript.
func (s *Scraper) fetchHTMLWithHeadlessBrowser(url string) (string, error) {
	log.Printf("[HeadlessBrowser] Fetching %s with Chrome", url)

	chromePath := s.chromePath
	if chromePath == "" {
		chromePath = "/usr/bin/google-chrome"
	}

	// Chrome execution options for systemd compatibility
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chromePath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),              // Required for systemd/Docker
		chromedp.Flag("disable-dev-shm-usage", true),   // Prevents /dev/shm issues
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.UserAgent(s.userAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var htmlContent string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		// Wait a bit more for JavaScript to execute
		chromedp.Sleep(3*time.Second),
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)

	if err != nil {
		log.Printf("[HeadlessBrowser] ERROR fetching %s: %v", url, err)
		return "", fmt.Errorf("chromedp error: %w", err)
	}

	log.Printf("[HeadlessBrowser] Successfully fetched HTML (%d bytes)", len(htmlContent))
	return htmlContent, nil
}
