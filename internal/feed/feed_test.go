package feed

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rightmove-crawler/internal/models"

	"github.com/stretchr/testify/assert"
)

func sampleListing(url string) *models.Listing {
	price := 450000
	beds := 2
	l := &models.Listing{
		Source:       "rightmove",
		URL:          url,
		PropertyType: "Flat",
		Price:        "£450,000",
		PriceAmount:  &price,
		Location:     "Example Street, London",
		Beds:         &beds,
		Features:     models.StringList{"Garden", "Parking"},
		FetchedAt:    time.Now(),
	}
	l.EnsureID()
	return l
}

func readLines(t *testing.T, path string) []string {
	f, err := os.Open(path)
	assert.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	assert.NoError(t, sc.Err())
	return lines
}

func TestWriterAppendsOneObjectPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "real_estate_properties.jsonl")

	w, err := NewWriter(path)
	assert.NoError(t, err)

	assert.NoError(t, w.Append(sampleListing("https://www.rightmove.co.uk/properties/100000001")))
	assert.NoError(t, w.Append(sampleListing("https://www.rightmove.co.uk/properties/100000002")))
	assert.Equal(t, 2, w.Written())
	assert.Equal(t, path, w.Path())
	assert.NoError(t, w.Close())

	lines := readLines(t, path)
	assert.Len(t, lines, 2)

	for _, line := range lines {
		var record map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(line), &record))
		assert.Contains(t, record, "id")
		assert.Contains(t, record, "url")
		assert.Contains(t, record, "price")
		assert.Contains(t, record, "location")
		assert.Contains(t, record, "features")
	}
}

func TestWriterFlushesEveryRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	w, err := NewWriter(path)
	assert.NoError(t, err)
	assert.NoError(t, w.Append(sampleListing("https://www.rightmove.co.uk/properties/100000001")))

	// readable before Close: an interrupted crawl must not lose records
	lines := readLines(t, path)
	assert.Len(t, lines, 1)

	assert.NoError(t, w.Close())
}

func TestWriterCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "out.jsonl")

	w, err := NewWriter(path)
	assert.NoError(t, err)
	assert.NoError(t, w.Append(sampleListing("https://www.rightmove.co.uk/properties/100000001")))
	assert.NoError(t, w.Close())

	assert.Len(t, readLines(t, path), 1)
}

func TestNewWriterTruncatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	assert.NoError(t, os.WriteFile(path, []byte("stale line\n"), 0644))

	w, err := NewWriter(path)
	assert.NoError(t, err)
	assert.NoError(t, w.Append(sampleListing("https://www.rightmove.co.uk/properties/100000001")))
	assert.NoError(t, w.Close())

	lines := readLines(t, path)
	assert.Len(t, lines, 1)
	assert.NotEqual(t, "stale line", lines[0])
}

func TestAppendWriterPreservesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	w, err := NewWriter(path)
	assert.NoError(t, err)
	assert.NoError(t, w.Append(sampleListing("https://www.rightmove.co.uk/properties/100000001")))
	assert.NoError(t, w.Close())

	w2, err := NewAppendWriter(path)
	assert.NoError(t, err)
	assert.NoError(t, w2.Append(sampleListing("https://www.rightmove.co.uk/properties/100000002")))
	assert.Equal(t, 1, w2.Written())
	assert.NoError(t, w2.Close())

	assert.Len(t, readLines(t, path), 2)
}
