package search

import (
	"rightmove-crawler/internal/models"

	"github.com/meilisearch/meilisearch-go"
)

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})

	return &SearchClient{
		client: client,
		index:  "listings",
	}
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	// Create index if it doesn't exist
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && err.Error() != "index already exists" {
		return err
	}

	// Configure searchable attributes
	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"location",
		"description",
		"property_type",
		"features",
	})
	if err != nil {
		return err
	}

	// Configure filterable attributes
	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"id",
		"price_amount",
		"beds",
		"baths",
		"property_type",
		"has_video_tour",
		"status",
	})
	if err != nil {
		return err
	}

	// Configure sortable attributes
	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"price_amount",
		"area_sqft",
		"beds",
		"fetched_at",
	})
	if err != nil {
		return err
	}

	return nil
}

// IndexListing indexes a single listing
func (s *SearchClient) IndexListing(listing *models.Listing) error {
	_, err := s.client.Index(s.index).AddDocuments([]models.Listing{*listing})
	return err
}

// IndexListings indexes multiple listings
func (s *SearchClient) IndexListings(listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	_, err := s.client.Index(s.index).AddDocuments(listings)
	return err
}

// DeleteListing removes a listing document from the index
func (s *SearchClient) DeleteListing(id string) error {
	_, err := s.client.Index(s.index).DeleteDocument(id)
	return err
}

// SearchRequest represents advanced search parameters
type SearchRequest struct {
	Query                string
	Limit                int64
	Offset               int64
	Filter               []string
	Sort                 []string
	FacetsFilter         []string
	AttributesToRetrieve []string
}

// SearchResult represents search results with facets
type SearchResult struct {
	Hits           []models.Listing
	TotalHits      int64
	Facets         map[string]interface{}
	ProcessingTime int64
}

// Search searches for listings with basic options
func (s *SearchClient) Search(query string, limit int64) ([]models.Listing, error) {
	result, err := s.AdvancedSearch(SearchRequest{
		Query: query,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	return result.Hits, nil
}

// AdvancedSearch performs advanced search with facets and filters
func (s *SearchClient) AdvancedSearch(req SearchRequest) (*SearchResult, error) {
	if req.Limit == 0 {
		req.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  req.Limit,
		Offset: req.Offset,
	}

	// Add filters
	if len(req.Filter) > 0 {
		filterStr := ""
		for i, f := range req.Filter {
			if i > 0 {
				filterStr += " AND "
			}
			filterStr += f
		}
		searchReq.Filter = filterStr
	}

	// Add sorting
	if len(req.Sort) > 0 {
		searchReq.Sort = req.Sort
	}

	// Add facets
	if len(req.FacetsFilter) > 0 {
		searchReq.Facets = req.FacetsFilter
	}

	// Add attributes to retrieve
	if len(req.AttributesToRetrieve) > 0 {
		searchReq.AttributesToRetrieve = req.AttributesToRetrieve
	}

	searchRes, err := s.client.Index(s.index).Search(req.Query, searchReq)
	if err != nil {
		return nil, err
	}

	listings := make([]models.Listing, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		listing := parseListingFromHit(hit)
		listings = append(listings, listing)
	}

	var facets map[string]interface{}
	if searchRes.FacetDistribution != nil {
		facets, _ = searchRes.FacetDistribution.(map[string]interface{})
	}

	result := &SearchResult{
		Hits:           listings,
		TotalHits:      searchRes.EstimatedTotalHits,
		Facets:         facets,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}

	return result, nil
}

// parseListingFromHit converts a search hit to a Listing
func parseListingFromHit(hit interface{}) models.Listing {
	hitMap := hit.(map[string]interface{})
	listing := models.Listing{
		ID:           getString(hitMap, "id"),
		Source:       getString(hitMap, "source"),
		URL:          getString(hitMap, "url"),
		PropertyType: getString(hitMap, "property_type"),
		Price:        getString(hitMap, "price"),
		Location:     getString(hitMap, "location"),
		Area:         getString(hitMap, "area"),
		Description:  getString(hitMap, "description"),
		Status:       models.ListingStatus(getString(hitMap, "status")),
	}

	// Parse numeric fields
	if priceAmount, ok := hitMap["price_amount"].(float64); ok {
		priceInt := int(priceAmount)
		listing.PriceAmount = &priceInt
	}
	if areaSqFt, ok := hitMap["area_sqft"].(float64); ok {
		listing.AreaSqFt = &areaSqFt
	}
	if beds, ok := hitMap["beds"].(float64); ok {
		bedsInt := int(beds)
		listing.Beds = &bedsInt
	}
	if baths, ok := hitMap["baths"].(float64); ok {
		bathsInt := int(baths)
		listing.Baths = &bathsInt
	}
	if hasVideo, ok := hitMap["has_video_tour"].(bool); ok {
		listing.HasVideoTour = hasVideo
	}

	// Parse list fields
	listing.Features = getStringList(hitMap, "features")
	listing.Images = getStringList(hitMap, "images")

	return listing
}

// getString safely extracts a string from map
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

// getStringList safely extracts a string slice from map
func getStringList(m map[string]interface{}, key string) models.StringList {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	list := make(models.StringList, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			list = append(list, s)
		}
	}
	return list
}

// GetFacets retrieves facet distribution for specified fields
func (s *SearchClient) GetFacets(facets []string) (map[string]interface{}, error) {
	searchRes, err := s.client.Index(s.index).Search("", &meilisearch.SearchRequest{
		Limit:  0,
		Facets: facets,
	})
	if err != nil {
		return nil, err
	}

	if searchRes.FacetDistribution != nil {
		if facetMap, ok := searchRes.FacetDistribution.(map[string]interface{}); ok {
			return facetMap, nil
		}
	}
	return map[string]interface{}{}, nil
}
