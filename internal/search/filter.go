package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"rightmove-crawler/internal/models"

	"github.com/meilisearch/meilisearch-go"
)

type FilterParams struct {
	Query         string
	MinPrice      *int
	MaxPrice      *int
	MinBeds       *int
	MaxBeds       *int
	Baths         *int
	PropertyTypes []string
	HasVideoTour  *bool
	SortBy        string
	Limit         int64
}

// BuildFilter assembles a Meilisearch filter expression from the params.
func (params FilterParams) BuildFilter() string {
	var filters []string

	// Price range filter
	if params.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("price_amount >= %d", *params.MinPrice))
	}
	if params.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("price_amount <= %d", *params.MaxPrice))
	}

	// Bedroom range filter
	if params.MinBeds != nil {
		filters = append(filters, fmt.Sprintf("beds >= %d", *params.MinBeds))
	}
	if params.MaxBeds != nil {
		filters = append(filters, fmt.Sprintf("beds <= %d", *params.MaxBeds))
	}

	if params.Baths != nil {
		filters = append(filters, fmt.Sprintf("baths >= %d", *params.Baths))
	}

	// Property type filter
	if len(params.PropertyTypes) > 0 {
		typeFilters := make([]string, len(params.PropertyTypes))
		for i, t := range params.PropertyTypes {
			typeFilters[i] = fmt.Sprintf("property_type = '%s'", strings.ReplaceAll(t, "'", ""))
		}
		filters = append(filters, fmt.Sprintf("(%s)", strings.Join(typeFilters, " OR ")))
	}

	if params.HasVideoTour != nil {
		filters = append(filters, fmt.Sprintf("has_video_tour = %t", *params.HasVideoTour))
	}

	return strings.Join(filters, " AND ")
}

// FilterSearch performs advanced search with filters
func (s *SearchClient) FilterSearch(params FilterParams) ([]models.Listing, error) {
	filterStr := params.BuildFilter()

	// Determine sort order
	var sort []string
	if params.SortBy != "" {
		sort = []string{params.SortBy}
	}

	// Default limit
	if params.Limit == 0 {
		params.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit: params.Limit,
	}

	if filterStr != "" {
		searchReq.Filter = filterStr
	}

	if len(sort) > 0 {
		searchReq.Sort = sort
	}

	searchRes, err := s.client.Index(s.index).Search(params.Query, searchReq)
	if err != nil {
		return nil, err
	}

	// Convert hits to listings
	var listings []models.Listing
	for _, hit := range searchRes.Hits {
		// Convert hit to JSON then to Listing struct
		hitJSON, err := json.Marshal(hit)
		if err != nil {
			continue
		}

		var listing models.Listing
		if err := json.Unmarshal(hitJSON, &listing); err != nil {
			continue
		}

		listings = append(listings, listing)
	}

	return listings, nil
}
