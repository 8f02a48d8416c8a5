package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchOptions_NormalizeDefaults(t *testing.T) {
	opts := SearchOptions{Query: " cats "}
	require.NoError(t, opts.Normalize())

	assert.Equal(t, "cats", opts.Query)
	assert.Equal(t, DefaultSearchResults, opts.MaxResults)
	assert.Equal(t, "relevance", opts.Order)
	assert.Equal(t, SearchTypeVideo, opts.Type)
}

func TestSearchOptions_NormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		opts SearchOptions
	}{
		{"empty query", SearchOptions{Query: "   "}},
		{"too many results", SearchOptions{Query: "q", MaxResults: 51}},
		{"negative results", SearchOptions{Query: "q", MaxResults: -1}},
		{"unknown order", SearchOptions{Query: "q", Order: "newest"}},
		{"unknown type", SearchOptions{Query: "q", Type: "movie"}},
		{"unknown duration", SearchOptions{Query: "q", Duration: "huge"}},
		{"duration on channel search", SearchOptions{Query: "q", Type: "channel", Duration: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			assert.Error(t, opts.Normalize())
		})
	}
}

func TestSearchPage_FirstVideo(t *testing.T) {
	page := &SearchPage{Results: []SearchResult{
		{ID: "UC1", Type: SearchTypeChannel},
		{ID: "vid1", Type: SearchTypeVideo},
		{ID: "vid2", Type: SearchTypeVideo},
	}}

	first, ok := page.FirstVideo()
	require.True(t, ok)
	assert.Equal(t, "vid1", first.ID)
}
