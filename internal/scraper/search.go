package scraper

import (
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"rightmove-crawler/internal/models"

	"github.com/PuerkitoBio/goquery"
)

const (
	baseSearchURL = "https://www.rightmove.co.uk/property-for-sale/find.html"
	listingHost   = "https://www.rightmove.co.uk"

	// ResultsPerPage is fixed by the portal's search pagination
	ResultsPerPage = 24

	// maxPaginationIndex caps manual pagination (50 pages x 24 results)
	maxPaginationIndex = 1200
)

// SearchQuery holds the search parameters sent to the find.html endpoint.
type SearchQuery struct {
	SearchLocation     string
	LocationIdentifier string
	Radius             string
	MaxDaysSinceAdded  int
	SortType           int
	PropertyTypes      string
	IncludeSSTC        bool
}

// DefaultSearchQuery returns the London for-sale search the crawler was
// built around.
func DefaultSearchQuery() SearchQuery {
	return SearchQuery{
		SearchLocation:     "London",
		LocationIdentifier: "REGION^87490",
		Radius:             "0.0",
		MaxDaysSinceAdded:  3,
		SortType:           2,
		PropertyTypes:      "flat,terraced,detached,semi-detached",
		IncludeSSTC:        true,
	}
}

// Values encodes the query for the given pagination index.
func (q SearchQuery) Values(index int) url.Values {
	v := url.Values{}
	v.Set("searchLocation", q.SearchLocation)
	v.Set("useLocationIdentifier", "true")
	v.Set("locationIdentifier", q.LocationIdentifier)
	v.Set("buy", "For sale")
	v.Set("radius", q.Radius)
	v.Set("channel", "BUY")
	v.Set("transactionType", "BUY")
	if q.MaxDaysSinceAdded > 0 {
		v.Set("maxDaysSinceAdded", strconv.Itoa(q.MaxDaysSinceAdded))
	}
	v.Set("sortType", strconv.Itoa(q.SortType))
	if q.PropertyTypes != "" {
		v.Set("propertyTypes", q.PropertyTypes)
	}
	if q.IncludeSSTC {
		v.Set("_includeSSTC", "on")
		v.Set("includeSSTC", "true")
	}
	v.Set("index", strconv.Itoa(index))
	return v
}

// URLForIndex builds the result-page URL for a pagination index.
func (q SearchQuery) URLForIndex(index int) string {
	return baseSearchURL + "?" + q.Values(index).Encode()
}

// SearchPage is one parsed result page: the cleaned listing URLs it links to
// and whether pagination can continue past it. The crawler always rebuilds
// the next page URL from the pagination index.
type SearchPage struct {
	ListingURLs []string
	HasNext     bool
}

// ScrapeSearchPage fetches one search result page and extracts listing links
func (s *Scraper) ScrapeSearchPage(query SearchQuery, pageNumber int) (*SearchPage, error) {
	index := (pageNumber - 1) * ResultsPerPage
	pageURL := query.URLForIndex(index)
	log.Printf("[SearchPage] Fetching result page %d: %s", pageNumber, pageURL)

	referer := ""
	if pageNumber > 1 {
		referer = query.URLForIndex((pageNumber - 2) * ResultsPerPage)
	}

	doc, err := s.fetchDocument(pageURL, referer)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search page %d: %w", pageNumber, err)
	}

	page := &SearchPage{
		ListingURLs: extractListingURLs(doc),
	}
	page.HasNext = hasNextPage(doc, pageNumber)

	log.Printf("[SearchPage] Found %d unique listing URLs on page %d (hasNext=%v)",
		len(page.ListingURLs), pageNumber, page.HasNext)
	return page, nil
}

// extractListingURLs pulls detail-page links off a result page and cleans
// them down to canonical /properties/{id} URLs.
func extractListingURLs(doc *goquery.Document) []string {
	var listingURLs []string
	seenURLs := make(map[string]bool)

	doc.Find(`a[aria-label="Link to property details page"]`).Each(func(i int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || href == "" {
			return
		}

		cleaned := CleanListingURL(href)
		if cleaned == "" {
			return
		}

		normalized := models.NormalizeListingURL(cleaned)
		if !seenURLs[normalized] {
			seenURLs[normalized] = true
			listingURLs = append(listingURLs, normalized)
		}
	})

	return listingURLs
}

// CleanListingURL strips the "#/" channel suffix the portal appends to
// detail links ("/properties/123456789#/?channel=RES_BUY") and resolves
// relative links against the portal host.
func CleanListingURL(href string) string {
	if strings.Contains(href, "#") {
		if idx := strings.Index(href, "/properties/"); idx >= 0 {
			id := href[idx+len("/properties/"):]
			if hash := strings.Index(id, "#"); hash >= 0 {
				id = id[:hash]
			}
			id = strings.Trim(id, "/")
			if id == "" {
				return ""
			}
			return listingHost + "/properties/" + id
		}
		// Fragment on something that is not a detail link
		href = href[:strings.Index(href, "#")]
	}

	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return listingHost + href
}

// hasNextPage decides whether pagination continues, using the original
// crawl's strategies in order.
func hasNextPage(doc *goquery.Document, currentPage int) bool {
	nextIndex := currentPage * ResultsPerPage
	if nextIndex >= maxPaginationIndex {
		return false
	}

	// Strategy 1: pagination next button, when present and not disabled
	nextButton := doc.Find(`button[data-test="pagination-next"]`)
	if nextButton.Length() > 0 {
		_, disabled := nextButton.Attr("disabled")
		return !disabled
	}

	// Strategy 2: a pagination link pointing at the next index
	found := false
	doc.Find("div.pagination a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if ok && strings.Contains(href, fmt.Sprintf("index=%d", nextIndex)) {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}

	// Strategy 3: no pagination markup at all usually means a rendered-empty
	// page; don't continue blindly
	if doc.Find(`a[aria-label="Link to property details page"]`).Length() == 0 {
		return false
	}

	// Strategy 4: manually construct the next index
	log.Printf("[SearchPage] Trying manual pagination to index %d", nextIndex)
	return true
}
