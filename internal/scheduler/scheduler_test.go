package scheduler

import (
	"testing"

	"rightmove-crawler/internal/config"
	"rightmove-crawler/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetireMissing(t *testing.T) {
	tests := []struct {
		name string
		run  models.CrawlRun
		want bool
	}{
		{
			name: "exhausted pagination",
			run:  models.CrawlRun{Status: models.CrawlRunStatusCompleted, ListingsScraped: 120},
			want: true,
		},
		{
			name: "stopped at listing target",
			run:  models.CrawlRun{Status: models.CrawlRunStatusCompleted, ListingsScraped: 100, TargetReached: true},
			want: false,
		},
		{
			name: "aborted run",
			run:  models.CrawlRun{Status: models.CrawlRunStatusAborted, ListingsScraped: 50},
			want: false,
		},
		{
			name: "failed run",
			run:  models.CrawlRun{Status: models.CrawlRunStatusFailed, ListingsScraped: 50},
			want: false,
		},
		{
			name: "empty run",
			run:  models.CrawlRun{Status: models.CrawlRunStatusCompleted},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRetireMissing(&tt.run))
		})
	}
}

func TestParseDailyRunTime(t *testing.T) {
	s := &Scheduler{}

	tests := []struct {
		input string
		want  string
	}{
		{"02:00", "0 2 * * *"},
		{"14:30", "30 14 * * *"},
		{"9:05", "5 9 * * *"},
		{"not-a-time", "0 2 * * *"},
		{"", "0 2 * * *"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, s.parseDailyRunTime(tt.input), tt.input)
	}
}

func TestBuildSearchQueryDefaults(t *testing.T) {
	q := buildSearchQuery(config.CrawlerConfig{})

	assert.Equal(t, "London", q.SearchLocation)
	assert.Equal(t, "REGION^87490", q.LocationIdentifier)
	assert.Equal(t, "0.0", q.Radius)
	assert.Equal(t, 3, q.MaxDaysSinceAdded)
	assert.False(t, q.IncludeSSTC)
}

func TestBuildSearchQueryOverrides(t *testing.T) {
	cfg := config.CrawlerConfig{
		SearchLocation:     "Manchester",
		LocationIdentifier: "REGION^904",
		Radius:             "1.0",
		MaxDaysSinceAdded:  7,
		SortType:           6,
		PropertyTypes:      "flat",
		IncludeSSTC:        true,
	}

	q := buildSearchQuery(cfg)

	assert.Equal(t, "Manchester", q.SearchLocation)
	assert.Equal(t, "REGION^904", q.LocationIdentifier)
	assert.Equal(t, "1.0", q.Radius)
	assert.Equal(t, 7, q.MaxDaysSinceAdded)
	assert.Equal(t, 6, q.SortType)
	assert.Equal(t, "flat", q.PropertyTypes)
	assert.True(t, q.IncludeSSTC)
}
