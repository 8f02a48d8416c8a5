package infrastructure

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/yourusername/vidgrab/internal/domain"
)

// ChannelURL returns the canonical URL of a channel
func ChannelURL(channelID string) string {
	return "https://www.youtube.com/channel/" + channelID
}

// PlaylistURL returns the canonical URL of a playlist
func PlaylistURL(playlistID string) string {
	return "https://www.youtube.com/playlist?list=" + playlistID
}

// Search runs a keyword search against the Data API search endpoint.
// Requests share the extractor's limiter and quota errors map to domain.ErrRateLimited.
func (e *YouTubeExtractor) Search(ctx context.Context, opts domain.SearchOptions) (*domain.SearchPage, error) {
	if err := opts.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid search options: %w", err)
	}
	if e.config.APIKey == "" {
		return nil, fmt.Errorf("%w: an API key is required to search", domain.ErrExtractionFailed)
	}

	params := url.Values{
		"part":       {"snippet"},
		"q":          {opts.Query},
		"maxResults": {strconv.Itoa(opts.MaxResults)},
		"order":      {opts.Order},
	}
	if opts.Type != domain.SearchTypeAll {
		params.Set("type", opts.Type)
	}
	if opts.Duration != "" {
		params.Set("videoDuration", opts.Duration)
	}
	if opts.Language != "" {
		params.Set("relevanceLanguage", opts.Language)
	}
	if opts.Region != "" {
		params.Set("regionCode", opts.Region)
	}
	if opts.PageToken != "" {
		params.Set("pageToken", opts.PageToken)
	}

	var resp apiSearchList
	if err := e.apiGet(ctx, "search", params, &resp); err != nil {
		return nil, err
	}

	page := &domain.SearchPage{
		Query:          opts.Query,
		Results:        make([]domain.SearchResult, 0, len(resp.Items)),
		NextPageToken:  resp.NextPageToken,
		PrevPageToken:  resp.PrevPageToken,
		TotalResults:   resp.PageInfo.TotalResults,
		ResultsPerPage: resp.PageInfo.ResultsPerPage,
	}
	for _, item := range resp.Items {
		result, ok := item.result()
		if !ok {
			continue
		}
		page.Results = append(page.Results, result)
	}

	e.logger.Debug("Search completed",
		zap.String("query", opts.Query),
		zap.String("type", opts.Type),
		zap.Int("results", len(page.Results)))

	return page, nil
}

type apiSearchList struct {
	NextPageToken string `json:"nextPageToken"`
	PrevPageToken string `json:"prevPageToken"`
	PageInfo      struct {
		TotalResults   int `json:"totalResults"`
		ResultsPerPage int `json:"resultsPerPage"`
	} `json:"pageInfo"`
	Items []apiSearchItem `json:"items"`
}

type apiSearchItem struct {
	ID struct {
		Kind       string `json:"kind"`
		VideoID    string `json:"videoId"`
		ChannelID  string `json:"channelId"`
		PlaylistID string `json:"playlistId"`
	} `json:"id"`
	Snippet struct {
		Title        string        `json:"title"`
		Description  string        `json:"description"`
		ChannelID    string        `json:"channelId"`
		ChannelTitle string        `json:"channelTitle"`
		PublishedAt  string        `json:"publishedAt"`
		Thumbnails   apiThumbnails `json:"thumbnails"`
	} `json:"snippet"`
}

// result classifies a hit by which ID it carries; hits with none are dropped
func (i apiSearchItem) result() (domain.SearchResult, bool) {
	r := domain.SearchResult{
		Title:        i.Snippet.Title,
		Description:  i.Snippet.Description,
		Thumbnail:    i.Snippet.Thumbnails.best(),
		ChannelID:    i.Snippet.ChannelID,
		ChannelTitle: i.Snippet.ChannelTitle,
		PublishedAt:  i.Snippet.PublishedAt,
	}

	switch {
	case i.ID.VideoID != "":
		r.ID, r.Type, r.URL = i.ID.VideoID, domain.SearchTypeVideo, WatchURL(i.ID.VideoID)
	case i.ID.PlaylistID != "":
		r.ID, r.Type, r.URL = i.ID.PlaylistID, domain.SearchTypePlaylist, PlaylistURL(i.ID.PlaylistID)
	case i.ID.ChannelID != "":
		r.ID, r.Type, r.URL = i.ID.ChannelID, domain.SearchTypeChannel, ChannelURL(i.ID.ChannelID)
	default:
		return r, false
	}

	if r.Title == "" {
		r.Title = "Untitled"
	}
	return r, true
}
