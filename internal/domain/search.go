package domain

import (
	"context"
	"fmt"
	"strings"
)

// Search result kinds
const (
	SearchTypeVideo    = "video"
	SearchTypeChannel  = "channel"
	SearchTypePlaylist = "playlist"
	SearchTypeAll      = "all"
)

const (
	DefaultSearchResults = 10
	MaxSearchResults     = 50
)

var (
	searchOrders    = []string{"date", "rating", "relevance", "title", "videoCount", "viewCount"}
	searchTypes     = []string{SearchTypeVideo, SearchTypeChannel, SearchTypePlaylist, SearchTypeAll}
	searchDurations = []string{"any", "short", "medium", "long"}
)

// Searcher finds items, channels and collections by keyword
type Searcher interface {
	// Search returns one page of results.
	// Errors match ErrExtractionFailed or ErrRateLimited.
	Search(ctx context.Context, opts SearchOptions) (*SearchPage, error)
}

// SearchOptions filters a keyword search
type SearchOptions struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Order      string `json:"order"`
	Type       string `json:"type"`
	Duration   string `json:"duration,omitempty"`
	Language   string `json:"language,omitempty"`
	Region     string `json:"region,omitempty"`
	PageToken  string `json:"page_token,omitempty"`
}

// Normalize fills defaults and rejects values the search API does not accept
func (o *SearchOptions) Normalize() error {
	o.Query = strings.TrimSpace(o.Query)
	if o.Query == "" {
		return fmt.Errorf("search query is required")
	}

	if o.MaxResults == 0 {
		o.MaxResults = DefaultSearchResults
	}
	if o.MaxResults < 1 || o.MaxResults > MaxSearchResults {
		return fmt.Errorf("max results must be between 1 and %d, got %d", MaxSearchResults, o.MaxResults)
	}

	if o.Order == "" {
		o.Order = "relevance"
	}
	if !contains(searchOrders, o.Order) {
		return fmt.Errorf("unknown search order %q", o.Order)
	}

	if o.Type == "" {
		o.Type = SearchTypeVideo
	}
	o.Type = strings.ToLower(o.Type)
	if !contains(searchTypes, o.Type) {
		return fmt.Errorf("unknown search type %q", o.Type)
	}

	if o.Duration != "" {
		if o.Type != SearchTypeVideo {
			return fmt.Errorf("duration filter only applies to video searches")
		}
		if !contains(searchDurations, o.Duration) {
			return fmt.Errorf("unknown duration filter %q", o.Duration)
		}
	}
	return nil
}

// SearchResult is one hit of a keyword search
type SearchResult struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`
	ChannelID    string `json:"channel_id,omitempty"`
	ChannelTitle string `json:"channel_title,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
	URL          string `json:"url"`
}

// SearchPage is one page of search results
type SearchPage struct {
	Query          string         `json:"query"`
	Results        []SearchResult `json:"results"`
	NextPageToken  string         `json:"next_page_token,omitempty"`
	PrevPageToken  string         `json:"prev_page_token,omitempty"`
	TotalResults   int            `json:"total_results"`
	ResultsPerPage int            `json:"results_per_page"`
}

// FirstVideo returns the first video hit, if any
func (p *SearchPage) FirstVideo() (SearchResult, bool) {
	for _, r := range p.Results {
		if r.Type == SearchTypeVideo {
			return r, true
		}
	}
	return SearchResult{}, false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
