package scraper

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"rightmove-crawler/internal/models"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the portal's detail pages. The hashed class names are what
// the portal's build pipeline emits; [class*=] matching tolerates the extra
// classes it sometimes appends.
const (
	selPropertyInfo  = `p[class*="_1hV1kqpVceE9m-QrX_hWDN"]`
	selPrice         = `div[class*="_1gfnqJ3Vtd1z40MlC0MzXu"] span`
	selStreetAddress = `h1[itemprop="streetAddress"]`
	selFeatureItems  = `article[data-testid="primary-layout"] li[class*="lIhZ24u1NHMa5Y6gDH90A"]`
	selPhotoURLs     = `a[itemprop="photo"] meta[itemprop="contentUrl"]`
	selVideoTourLink = `a[title="Video Tour"]`
)

var (
	reStyleURL = regexp.MustCompile(`url\(['"]?(.*?)['"]?\)`)
	reDigits   = regexp.MustCompile(`[0-9]+`)
	reSqFt     = regexp.MustCompile(`([0-9][0-9,]*)\s*sq\.?\s*ft`)
	rePriceAmt = regexp.MustCompile(`£\s*([0-9][0-9,]*)`)
)

// ScrapeListing fetches one detail page and extracts the listing record.
func (s *Scraper) ScrapeListing(inputURL, referer string) (*models.Listing, error) {
	normalizedURL := models.NormalizeListingURL(inputURL)
	log.Printf("[Listing] Scraping %s (referer: %s)", normalizedURL, referer)

	doc, err := s.fetchDocument(normalizedURL, referer)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page: %w", err)
	}

	listing := ParseListingPage(doc, normalizedURL)

	log.Printf("[Listing] Extracted %s: type=%q price=%q location=%q beds=%s baths=%s images=%d video=%v",
		listing.ID, listing.PropertyType, listing.Price, listing.Location,
		intPtrString(listing.Beds), intPtrString(listing.Baths), len(listing.Images), listing.HasVideoTour)
	return listing, nil
}

// ParseListingPage extracts all listing fields from a parsed detail page.
// Primary extraction uses the page's CSS hooks; anything still missing is
// filled from the embedded window.PAGE_MODEL JS state.
func ParseListingPage(doc *goquery.Document, pageURL string) *models.Listing {
	listing := &models.Listing{
		Source:    "rightmove",
		URL:       pageURL,
		FetchedAt: time.Now(),
	}
	listing.EnsureID()

	// The summary strip renders type / beds / baths / area as a fixed
	// sequence of paragraphs
	var info []string
	doc.Find(selPropertyInfo).Each(func(_ int, sel *goquery.Selection) {
		info = append(info, strings.TrimSpace(sel.Text()))
	})
	if len(info) > 0 {
		listing.PropertyType = info[0]
	}
	if len(info) > 1 {
		listing.Beds = parseCount(info[1])
	}
	if len(info) > 2 {
		listing.Baths = parseCount(info[2])
	}
	if len(info) > 3 {
		listing.Area = info[3]
	}

	listing.Price = strings.TrimSpace(doc.Find(selPrice).First().Text())
	listing.Location = strings.TrimSpace(doc.Find(selStreetAddress).First().Text())

	// Key features bullet list
	doc.Find(selFeatureItems).Each(func(_ int, sel *goquery.Selection) {
		if feature := strings.TrimSpace(sel.Text()); feature != "" {
			listing.Features = append(listing.Features, feature)
		}
	})

	listing.Description = extractDescription(doc)

	// Gallery photos expose their full-size URL via itemprop metadata
	doc.Find(selPhotoURLs).Each(func(_ int, sel *goquery.Selection) {
		if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
			listing.Images = append(listing.Images, strings.TrimSpace(content))
		}
	})

	extractVideoTour(doc, listing)

	// Fill gaps from the embedded page state
	if html, err := doc.Html(); err == nil {
		fillFromPageModel(html, listing)
	}

	listing.PriceAmount = parsePriceAmount(listing.Price)
	listing.AreaSqFt = parseAreaSqFt(listing.Area)

	return listing
}

// extractDescription finds the "Description" section heading and collapses
// the text of the block that follows it.
func extractDescription(doc *goquery.Document) string {
	var description string
	doc.Find("h2").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.TrimSpace(sel.Text()) != "Description" {
			return true
		}
		block := sel.NextAllFiltered("div").First()
		if block.Length() == 0 {
			block = sel.Parent().NextAllFiltered("div").First()
		}
		description = collapseWhitespace(block.Text())
		return false
	})
	return description
}

// extractVideoTour records whether the listing offers a video tour, plus the
// tour link and its thumbnail when present.
func extractVideoTour(doc *goquery.Document, listing *models.Listing) {
	tour := doc.Find(selVideoTourLink).First()
	if tour.Length() == 0 {
		return
	}

	listing.HasVideoTour = true
	if href, ok := tour.Attr("href"); ok {
		listing.VideoURL = strings.TrimSpace(href)
	}

	// Thumbnail is a background-image style on the preview div
	if style, ok := tour.Find("div").First().Attr("style"); ok {
		if matches := reStyleURL.FindStringSubmatch(style); len(matches) > 1 {
			listing.VideoThumbnail = matches[1]
		}
	}
}

// fillFromPageModel extracts missing fields from the window.PAGE_MODEL
// script with targeted regexes. Parsing the whole object as JSON is
// unreliable; field-level matching is not.
func fillFromPageModel(htmlString string, listing *models.Listing) {
	modelIdx := strings.Index(htmlString, "PAGE_MODEL")
	if modelIdx == -1 {
		return
	}

	// A reasonable chunk after PAGE_MODEL covers propertyData
	endIdx := modelIdx + 500000
	if endIdx > len(htmlString) {
		endIdx = len(htmlString)
	}
	section := htmlString[modelIdx:endIdx]

	if listing.Price == "" {
		if m := regexp.MustCompile(`"primaryPrice"\s*:\s*"([^"]+)"`).FindStringSubmatch(section); len(m) > 1 {
			listing.Price = m[1]
			log.Printf("[Listing] id=%s price from page model: %s", listing.ID, listing.Price)
		}
	}

	if listing.Location == "" {
		if m := regexp.MustCompile(`"displayAddress"\s*:\s*"([^"]+)"`).FindStringSubmatch(section); len(m) > 1 {
			listing.Location = m[1]
			log.Printf("[Listing] id=%s location from page model: %s", listing.ID, listing.Location)
		}
	}

	if listing.PropertyType == "" {
		if m := regexp.MustCompile(`"propertySubType"\s*:\s*"([^"]+)"`).FindStringSubmatch(section); len(m) > 1 {
			listing.PropertyType = m[1]
		}
	}

	if listing.Beds == nil {
		if m := regexp.MustCompile(`"bedrooms"\s*:\s*([0-9]+)`).FindStringSubmatch(section); len(m) > 1 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				listing.Beds = &n
			}
		}
	}

	if listing.Baths == nil {
		if m := regexp.MustCompile(`"bathrooms"\s*:\s*([0-9]+)`).FindStringSubmatch(section); len(m) > 1 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				listing.Baths = &n
			}
		}
	}
}

// parseCount extracts the first integer from summary strings like "2" or
// "×2". Returns nil when the text carries no number.
func parseCount(text string) *int {
	m := reDigits.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// parsePriceAmount derives a numeric amount from a display price like
// "£450,000". Non-numeric prices ("POA", "Offers over ...") yield nil
// amounts only when no digits are present at all.
func parsePriceAmount(price string) *int {
	m := rePriceAmt.FindStringSubmatch(price)
	if len(m) < 2 {
		return nil
	}
	cleaned := strings.ReplaceAll(m[1], ",", "")
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil
	}
	return &n
}

// parseAreaSqFt derives square footage from strings like "753 sq ft" or
// "1,024 sq. ft.".
func parseAreaSqFt(area string) *float64 {
	m := reSqFt.FindStringSubmatch(strings.ToLower(area))
	if len(m) < 2 {
		return nil
	}
	cleaned := strings.ReplaceAll(m[1], ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}

// collapseWhitespace joins the text into single-space-separated form
func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func intPtrString(v *int) string {
	if v == nil {
		return "nil"
	}
	return strconv.Itoa(*v)
}
