package domain

// ItemMetadata describes a single media item and its available formats
type ItemMetadata struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Thumbnail       string   `json:"thumbnail,omitempty"`
	DurationSeconds int      `json:"duration_seconds"`
	Author          string   `json:"author"`
	Views           int64    `json:"views"`
	IsLive          bool     `json:"is_live"`
	Formats         []Format `json:"formats"`
}

// ItemRef is a lightweight reference to an item within a collection
type ItemRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// CollectionMetadata describes an ordered collection of items such as a playlist.
// Formats for each item are fetched lazily at download time.
type CollectionMetadata struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Items []ItemRef `json:"items"`
}
