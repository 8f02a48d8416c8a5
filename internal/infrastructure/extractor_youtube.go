package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourusername/vidgrab/internal/domain"
)

const (
	playlistPageSize        = 50
	defaultExtractorTimeout = 30 * time.Second
)

var (
	videoIDPattern       = regexp.MustCompile(`(?:[?&]v=|youtu\.be/|/shorts/|/embed/|/live/|/v/)([0-9A-Za-z_-]{11})(?:[^0-9A-Za-z_-]|$)`)
	bareVideoIDPattern   = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	barePlaylistPattern  = regexp.MustCompile(`^[0-9A-Za-z_-]{12,}$`)
	playerResponseMarker = regexp.MustCompile(`ytInitialPlayerResponse\s*=\s*`)
	isoDurationPattern   = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
)

// YouTubeExtractor implements domain.Extractor using the YouTube Data API for
// metadata and the watch page player response for stream formats
type YouTubeExtractor struct {
	client  *http.Client
	config  *domain.ExtractorConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewYouTubeExtractor creates a new extractor
func NewYouTubeExtractor(config *domain.ExtractorConfig, client *http.Client, logger *zap.Logger) *YouTubeExtractor {
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultExtractorTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &YouTubeExtractor{
		client:  client,
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// ExtractVideoID returns the 11 character video ID from a URL or bare ID
func ExtractVideoID(locator string) string {
	locator = strings.TrimSpace(locator)
	if bareVideoIDPattern.MatchString(locator) {
		return locator
	}
	if m := videoIDPattern.FindStringSubmatch(locator); m != nil {
		return m[1]
	}
	return ""
}

// ExtractPlaylistID returns the playlist ID from the list query parameter or a bare ID
func ExtractPlaylistID(locator string) string {
	locator = strings.TrimSpace(locator)
	if barePlaylistPattern.MatchString(locator) {
		return locator
	}
	u, err := url.Parse(locator)
	if err != nil {
		return ""
	}
	return u.Query().Get("list")
}

// WatchURL returns the canonical watch URL for a video ID
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// GetItemMetadata fetches metadata and stream formats for one video
func (e *YouTubeExtractor) GetItemMetadata(ctx context.Context, locator string) (*domain.ItemMetadata, error) {
	videoID := ExtractVideoID(locator)
	if videoID == "" {
		return nil, fmt.Errorf("%w: invalid video locator %q", domain.ErrExtractionFailed, locator)
	}

	e.logger.Debug("Extracting video", zap.String("video_id", videoID))

	var meta *domain.ItemMetadata
	if e.config.APIKey != "" {
		var err error
		if meta, err = e.fetchVideoFromAPI(ctx, videoID); err != nil {
			return nil, err
		}
	}

	player, err := e.fetchPlayerResponse(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = player.metadata(videoID)
	}

	raws := make([]domain.RawFormat, 0, len(player.StreamingData.Formats)+len(player.StreamingData.AdaptiveFormats))
	raws = append(raws, player.StreamingData.Formats...)
	raws = append(raws, player.StreamingData.AdaptiveFormats...)
	meta.Formats = domain.NormalizeFormats(raws)

	return meta, nil
}

// GetCollectionMetadata fetches the title and item list of a playlist
func (e *YouTubeExtractor) GetCollectionMetadata(ctx context.Context, locator string) (*domain.CollectionMetadata, error) {
	playlistID := ExtractPlaylistID(locator)
	if playlistID == "" {
		return nil, fmt.Errorf("%w: invalid playlist locator %q", domain.ErrCollectionUnavailable, locator)
	}
	if e.config.APIKey == "" {
		return nil, fmt.Errorf("%w: an API key is required to list playlists", domain.ErrExtractionFailed)
	}

	var playlists apiPlaylistList
	if err := e.apiGet(ctx, "playlists", url.Values{"part": {"snippet"}, "id": {playlistID}}, &playlists); err != nil {
		return nil, err
	}
	if len(playlists.Items) == 0 {
		return nil, fmt.Errorf("%w: playlist %s not found", domain.ErrCollectionUnavailable, playlistID)
	}

	collection := &domain.CollectionMetadata{
		ID:    playlistID,
		Title: playlists.Items[0].Snippet.Title,
	}

	pageToken := ""
	for {
		params := url.Values{
			"part":       {"snippet"},
			"playlistId": {playlistID},
			"maxResults": {strconv.Itoa(playlistPageSize)},
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page apiPlaylistItemList
		if err := e.apiGet(ctx, "playlistItems", params, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			resource := item.Snippet.ResourceID
			if resource.Kind != "youtube#video" || resource.VideoID == "" {
				continue
			}
			collection.Items = append(collection.Items, domain.ItemRef{
				ID:    resource.VideoID,
				Title: item.Snippet.Title,
				URL:   WatchURL(resource.VideoID),
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if len(collection.Items) == 0 {
		return nil, fmt.Errorf("%w: no videos found in playlist %s", domain.ErrCollectionUnavailable, playlistID)
	}

	e.logger.Debug("Extracted playlist",
		zap.String("playlist_id", playlistID),
		zap.Int("items", len(collection.Items)))

	return collection, nil
}

func (e *YouTubeExtractor) fetchVideoFromAPI(ctx context.Context, videoID string) (*domain.ItemMetadata, error) {
	var videos apiVideoList
	params := url.Values{"part": {"snippet,contentDetails,statistics"}, "id": {videoID}}
	if err := e.apiGet(ctx, "videos", params, &videos); err != nil {
		return nil, err
	}
	if len(videos.Items) == 0 {
		return nil, fmt.Errorf("%w: video %s not found", domain.ErrVideoUnavailable, videoID)
	}

	v := videos.Items[0]
	title := v.Snippet.Title
	if title == "" {
		title = "Untitled"
	}
	author := v.Snippet.ChannelTitle
	if author == "" {
		author = "Unknown"
	}
	views, _ := strconv.ParseInt(v.Statistics.ViewCount, 10, 64)

	return &domain.ItemMetadata{
		ID:              videoID,
		Title:           title,
		Description:     v.Snippet.Description,
		Thumbnail:       v.Snippet.Thumbnails.best(),
		DurationSeconds: ParseISODuration(v.ContentDetails.Duration),
		Author:          author,
		Views:           views,
		IsLive:          v.Snippet.LiveBroadcastContent == "live",
	}, nil
}

// apiGet performs a Data API request and maps quota responses to domain.ErrRateLimited
func (e *YouTubeExtractor) apiGet(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	params.Set("key", e.config.APIKey)
	reqURL := strings.TrimRight(e.config.APIBaseURL, "/") + "/" + endpoint + "?" + params.Encode()

	body, status, err := e.get(ctx, reqURL)
	if err != nil {
		return err
	}

	if status != http.StatusOK {
		var apiErr apiErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		if status == http.StatusTooManyRequests || (status == http.StatusForbidden && apiErr.isQuota()) {
			return fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.message(status))
		}
		return fmt.Errorf("%w: %s request failed: %s", domain.ErrExtractionFailed, endpoint, apiErr.message(status))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", domain.ErrExtractionFailed, endpoint, err)
	}
	return nil
}

func (e *YouTubeExtractor) fetchPlayerResponse(ctx context.Context, videoID string) (*playerResponse, error) {
	watchURL := e.config.WatchURL + "?" + url.Values{"v": {videoID}}.Encode()

	body, status, err := e.get(ctx, watchURL)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: watch page returned %d", domain.ErrRateLimited, status)
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: video %s not found", domain.ErrVideoUnavailable, videoID)
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: failed to fetch video page: HTTP %d", domain.ErrExtractionFailed, status)
	}

	player, err := parsePlayerResponse(string(body))
	if err != nil {
		return nil, err
	}

	switch player.PlayabilityStatus.Status {
	case "", "OK":
	case "ERROR", "LOGIN_REQUIRED", "UNPLAYABLE":
		return nil, fmt.Errorf("%w: %s", domain.ErrVideoUnavailable, player.PlayabilityStatus.reason())
	default:
		e.logger.Warn("Unexpected playability status",
			zap.String("video_id", videoID),
			zap.String("status", player.PlayabilityStatus.Status))
	}

	return player, nil
}

func (e *YouTubeExtractor) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to create request: %v", domain.ErrExtractionFailed, err)
	}
	if e.config.UserAgent != "" {
		req.Header.Set("User-Agent", e.config.UserAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read response: %v", domain.ErrExtractionFailed, err)
	}
	return body, resp.StatusCode, nil
}

// parsePlayerResponse decodes the ytInitialPlayerResponse object embedded in a watch page
func parsePlayerResponse(html string) (*playerResponse, error) {
	loc := playerResponseMarker.FindStringIndex(html)
	if loc == nil {
		return nil, fmt.Errorf("%w: player response not found in video page", domain.ErrExtractionFailed)
	}

	var player playerResponse
	if err := json.NewDecoder(strings.NewReader(html[loc[1]:])).Decode(&player); err != nil {
		return nil, fmt.Errorf("%w: failed to parse player response: %v", domain.ErrExtractionFailed, err)
	}
	return &player, nil
}

// ParseISODuration converts an ISO 8601 duration such as PT1H2M3S to seconds
func ParseISODuration(s string) int {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	multipliers := []int{86400, 3600, 60, 1}
	total := 0
	for i, mult := range multipliers {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * mult
	}
	return total
}

type playerResponse struct {
	PlayabilityStatus playabilityStatus `json:"playabilityStatus"`
	StreamingData     struct {
		Formats         []domain.RawFormat `json:"formats"`
		AdaptiveFormats []domain.RawFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
	VideoDetails struct {
		VideoID          string `json:"videoId"`
		Title            string `json:"title"`
		LengthSeconds    string `json:"lengthSeconds"`
		ShortDescription string `json:"shortDescription"`
		Author           string `json:"author"`
		ViewCount        string `json:"viewCount"`
		IsLive           bool   `json:"isLive"`
		Thumbnail        struct {
			Thumbnails []struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"thumbnails"`
		} `json:"thumbnail"`
	} `json:"videoDetails"`
}

type playabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (p playabilityStatus) reason() string {
	if p.Reason != "" {
		return p.Reason
	}
	return strings.ToLower(p.Status)
}

// metadata builds item metadata from the player response when no API key is configured
func (p *playerResponse) metadata(videoID string) *domain.ItemMetadata {
	d := p.VideoDetails
	meta := &domain.ItemMetadata{
		ID:          videoID,
		Title:       d.Title,
		Description: d.ShortDescription,
		Author:      d.Author,
		IsLive:      d.IsLive,
	}
	if meta.Title == "" {
		meta.Title = "Untitled"
	}
	if meta.Author == "" {
		meta.Author = "Unknown"
	}
	meta.DurationSeconds, _ = strconv.Atoi(d.LengthSeconds)
	meta.Views, _ = strconv.ParseInt(d.ViewCount, 10, 64)

	bestWidth := -1
	for _, t := range d.Thumbnail.Thumbnails {
		if t.Width > bestWidth {
			bestWidth = t.Width
			meta.Thumbnail = t.URL
		}
	}
	return meta
}

type apiThumbnail struct {
	URL string `json:"url"`
}

type apiThumbnails struct {
	Default  *apiThumbnail `json:"default"`
	Medium   *apiThumbnail `json:"medium"`
	High     *apiThumbnail `json:"high"`
	Standard *apiThumbnail `json:"standard"`
	Maxres   *apiThumbnail `json:"maxres"`
}

func (t apiThumbnails) best() string {
	for _, thumb := range []*apiThumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if thumb != nil && thumb.URL != "" {
			return thumb.URL
		}
	}
	return ""
}

type apiVideoList struct {
	Items []struct {
		Snippet struct {
			Title                string        `json:"title"`
			Description          string        `json:"description"`
			ChannelTitle         string        `json:"channelTitle"`
			LiveBroadcastContent string        `json:"liveBroadcastContent"`
			Thumbnails           apiThumbnails `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type apiPlaylistList struct {
	Items []struct {
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

type apiPlaylistItemList struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title      string `json:"title"`
			ResourceID struct {
				Kind    string `json:"kind"`
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (r apiErrorResponse) isQuota() bool {
	for _, e := range r.Error.Errors {
		switch e.Reason {
		case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}

func (r apiErrorResponse) message(status int) string {
	if r.Error.Message != "" {
		return fmt.Sprintf("status %d: %s", status, r.Error.Message)
	}
	return fmt.Sprintf("status %d", status)
}

var _ domain.Extractor = (*YouTubeExtractor)(nil)
