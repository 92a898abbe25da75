package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeListingURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips query and fragment",
			in:   "https://www.rightmove.co.uk/properties/123456789?channel=RES_BUY#/media",
			want: "https://www.rightmove.co.uk/properties/123456789",
		},
		{
			name: "strips trailing slash",
			in:   "https://www.rightmove.co.uk/properties/123456789/",
			want: "https://www.rightmove.co.uk/properties/123456789",
		},
		{
			name: "forces https",
			in:   "http://www.rightmove.co.uk/properties/123456789",
			want: "https://www.rightmove.co.uk/properties/123456789",
		},
		{
			name: "already canonical",
			in:   "https://www.rightmove.co.uk/properties/123456789",
			want: "https://www.rightmove.co.uk/properties/123456789",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeListingURL(tt.in))
		})
	}
}

func TestGenerateListingID(t *testing.T) {
	id := GenerateListingID("https://www.rightmove.co.uk/properties/123456789")
	assert.Len(t, id, 32)

	// Query string and fragment must not change the identity
	withQuery := GenerateListingID("https://www.rightmove.co.uk/properties/123456789?channel=RES_BUY#/")
	assert.Equal(t, id, withQuery)

	other := GenerateListingID("https://www.rightmove.co.uk/properties/987654321")
	assert.NotEqual(t, id, other)
}

func TestEnsureID(t *testing.T) {
	l := &Listing{URL: "https://www.rightmove.co.uk/properties/123456789"}
	l.EnsureID()
	assert.Equal(t, GenerateListingID(l.URL), l.ID)

	// An existing ID is kept
	l2 := &Listing{ID: "fixed", URL: "https://www.rightmove.co.uk/properties/123456789"}
	l2.EnsureID()
	assert.Equal(t, "fixed", l2.ID)
}

func TestHasUsableData(t *testing.T) {
	assert.False(t, (&Listing{}).HasUsableData())
	assert.True(t, (&Listing{Price: "£450,000"}).HasUsableData())
	assert.True(t, (&Listing{Location: "Baker Street, London"}).HasUsableData())
}

func TestMarkAsRemoved(t *testing.T) {
	l := &Listing{Status: ListingStatusActive}
	assert.True(t, l.IsActive())

	l.MarkAsRemoved()
	assert.False(t, l.IsActive())
	assert.Equal(t, ListingStatusRemoved, l.Status)
	assert.NotNil(t, l.RemovedAt)
}

func TestStringListValue(t *testing.T) {
	v, err := StringList{"Garden", "Parking"}.Value()
	assert.NoError(t, err)
	assert.Equal(t, `["Garden","Parking"]`, v)

	empty, err := StringList(nil).Value()
	assert.NoError(t, err)
	assert.Equal(t, "[]", empty)
}

func TestStringListScan(t *testing.T) {
	var s StringList
	assert.NoError(t, s.Scan(`["Garden","Parking"]`))
	assert.Equal(t, StringList{"Garden", "Parking"}, s)

	var fromBytes StringList
	assert.NoError(t, fromBytes.Scan([]byte(`["Balcony"]`)))
	assert.Equal(t, StringList{"Balcony"}, fromBytes)

	var fromNil StringList
	assert.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	var bad StringList
	assert.Error(t, bad.Scan(42))
}

func TestListingFeedRecord(t *testing.T) {
	beds := 2
	l := &Listing{
		URL:          "https://www.rightmove.co.uk/properties/123456789",
		Source:       "rightmove",
		PropertyType: "Apartment",
		Price:        "£450,000",
		Location:     "Baker Street, London",
		Beds:         &beds,
		Features:     StringList{"Garden"},
		Images:       StringList{"https://media.rightmove.co.uk/1.jpg"},
	}
	l.EnsureID()

	data, err := json.Marshal(l)
	assert.NoError(t, err)

	var record map[string]interface{}
	assert.NoError(t, json.Unmarshal(data, &record))

	// Feed consumers key off these exact field names
	for _, key := range []string{"id", "url", "property_type", "price", "location", "beds", "baths", "features", "description", "images", "has_video_tour"} {
		assert.Contains(t, record, key, "feed record missing %q", key)
	}

	features, ok := record["features"].([]interface{})
	assert.True(t, ok, "features must serialize as a JSON array")
	assert.Len(t, features, 1)
}
