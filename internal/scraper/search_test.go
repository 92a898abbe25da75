package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
)

func TestSearchQueryValues(t *testing.T) {
	q := DefaultSearchQuery()
	v := q.Values(48)

	assert.Equal(t, "London", v.Get("searchLocation"))
	assert.Equal(t, "REGION^87490", v.Get("locationIdentifier"))
	assert.Equal(t, "true", v.Get("useLocationIdentifier"))
	assert.Equal(t, "For sale", v.Get("buy"))
	assert.Equal(t, "BUY", v.Get("channel"))
	assert.Equal(t, "3", v.Get("maxDaysSinceAdded"))
	assert.Equal(t, "2", v.Get("sortType"))
	assert.Equal(t, "flat,terraced,detached,semi-detached", v.Get("propertyTypes"))
	assert.Equal(t, "on", v.Get("_includeSSTC"))
	assert.Equal(t, "true", v.Get("includeSSTC"))
	assert.Equal(t, "48", v.Get("index"))
}

func TestSearchQueryValuesOptionalParams(t *testing.T) {
	q := SearchQuery{
		SearchLocation:     "Manchester",
		LocationIdentifier: "REGION^904",
		Radius:             "0.0",
		SortType:           2,
	}
	v := q.Values(0)

	assert.Empty(t, v.Get("maxDaysSinceAdded"))
	assert.Empty(t, v.Get("propertyTypes"))
	assert.Empty(t, v.Get("_includeSSTC"))
}

func TestSearchQueryURLForIndex(t *testing.T) {
	u := DefaultSearchQuery().URLForIndex(24)

	assert.True(t, strings.HasPrefix(u, "https://www.rightmove.co.uk/property-for-sale/find.html?"))
	assert.Contains(t, u, "index=24")
}

func TestCleanListingURL(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{
			name: "channel fragment stripped",
			href: "/properties/123456789#/?channel=RES_BUY",
			want: "https://www.rightmove.co.uk/properties/123456789",
		},
		{
			name: "absolute with fragment",
			href: "https://www.rightmove.co.uk/properties/987654321#/media",
			want: "https://www.rightmove.co.uk/properties/987654321",
		},
		{
			name: "relative without fragment",
			href: "/properties/111222333/",
			want: "https://www.rightmove.co.uk/properties/111222333/",
		},
		{
			name: "absolute without fragment kept as-is",
			href: "https://www.rightmove.co.uk/properties/444555666",
			want: "https://www.rightmove.co.uk/properties/444555666",
		},
		{
			name: "missing leading slash",
			href: "properties/777888999",
			want: "https://www.rightmove.co.uk/properties/777888999",
		},
		{
			name: "fragment only",
			href: "#",
			want: "",
		},
		{
			name: "fragment on non-detail link",
			href: "/property-for-sale/find.html#top",
			want: "https://www.rightmove.co.uk/property-for-sale/find.html",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanListingURL(tt.href))
		})
	}
}

const searchPageHTML = `
<html><body>
<div class="results">
  <a aria-label="Link to property details page" href="/properties/100000001#/?channel=RES_BUY">Flat one</a>
  <a aria-label="Link to property details page" href="/properties/100000001#/?channel=RES_BUY">Flat one again</a>
  <a aria-label="Link to property details page" href="/properties/100000002#/?channel=RES_BUY">Flat two</a>
  <a href="/properties/100000003">not a detail-card link</a>
</div>
<button data-test="pagination-next" type="button">Next</button>
</body></html>`

func TestExtractListingURLs(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchPageHTML))
	assert.NoError(t, err)

	urls := extractListingURLs(doc)
	assert.Equal(t, []string{
		"https://www.rightmove.co.uk/properties/100000001",
		"https://www.rightmove.co.uk/properties/100000002",
	}, urls)
}

func TestHasNextPageFromButton(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchPageHTML))
	assert.NoError(t, err)

	assert.True(t, hasNextPage(doc, 1))
}

func TestHasNextPageDisabledButton(t *testing.T) {
	html := `<html><body>
<a aria-label="Link to property details page" href="/properties/100000001#/">x</a>
<button data-test="pagination-next" disabled>Next</button>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	assert.NoError(t, err)

	assert.False(t, hasNextPage(doc, 1))
}

func TestHasNextPageFromPaginationLink(t *testing.T) {
	html := `<html><body>
<a aria-label="Link to property details page" href="/properties/100000001#/">x</a>
<div class="pagination">
  <a href="/property-for-sale/find.html?index=24">2</a>
</div>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	assert.NoError(t, err)

	assert.True(t, hasNextPage(doc, 1))
}

func TestHasNextPageEmptyPageStops(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	assert.NoError(t, err)

	assert.False(t, hasNextPage(doc, 1))
}

func TestHasNextPageManualFallback(t *testing.T) {
	html := `<html><body>
<a aria-label="Link to property details page" href="/properties/100000001#/">x</a>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	assert.NoError(t, err)

	assert.True(t, hasNextPage(doc, 2))
}

func TestHasNextPageStopsAtPaginationCap(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchPageHTML))
	assert.NoError(t, err)

	// page 50 would need index 1200, past the portal's cap
	assert.False(t, hasNextPage(doc, 50))
}
