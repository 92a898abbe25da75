package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFilterEmpty(t *testing.T) {
	assert.Equal(t, "", FilterParams{}.BuildFilter())
}

func TestBuildFilterPriceRange(t *testing.T) {
	min, max := 250000, 500000
	params := FilterParams{MinPrice: &min, MaxPrice: &max}

	assert.Equal(t, "price_amount >= 250000 AND price_amount <= 500000", params.BuildFilter())
}

func TestBuildFilterBedsAndBaths(t *testing.T) {
	minBeds, maxBeds, baths := 2, 4, 2
	params := FilterParams{MinBeds: &minBeds, MaxBeds: &maxBeds, Baths: &baths}

	assert.Equal(t, "beds >= 2 AND beds <= 4 AND baths >= 2", params.BuildFilter())
}

func TestBuildFilterPropertyTypes(t *testing.T) {
	params := FilterParams{PropertyTypes: []string{"Flat", "Terraced"}}

	assert.Equal(t, "(property_type = 'Flat' OR property_type = 'Terraced')", params.BuildFilter())
}

func TestBuildFilterStripsQuotes(t *testing.T) {
	params := FilterParams{PropertyTypes: []string{"Fla't"}}

	assert.Equal(t, "(property_type = 'Flat')", params.BuildFilter())
}

func TestBuildFilterVideoTour(t *testing.T) {
	hasVideo := true
	params := FilterParams{HasVideoTour: &hasVideo}

	assert.Equal(t, "has_video_tour = true", params.BuildFilter())
}

func TestBuildFilterCombined(t *testing.T) {
	min := 300000
	beds := 2
	hasVideo := false
	params := FilterParams{
		MinPrice:      &min,
		MinBeds:       &beds,
		PropertyTypes: []string{"Detached"},
		HasVideoTour:  &hasVideo,
	}

	assert.Equal(t,
		"price_amount >= 300000 AND beds >= 2 AND (property_type = 'Detached') AND has_video_tour = false",
		params.BuildFilter())
}
