package domain

import "context"

// Extractor supplies item and collection metadata for a locator
type Extractor interface {
	// GetItemMetadata returns metadata and raw format candidates for one item.
	// Errors match ErrVideoUnavailable, ErrExtractionFailed or ErrRateLimited.
	GetItemMetadata(ctx context.Context, locator string) (*ItemMetadata, error)

	// GetCollectionMetadata returns the ordered item references of a collection.
	// Errors match ErrCollectionUnavailable, ErrExtractionFailed or ErrRateLimited.
	GetCollectionMetadata(ctx context.Context, locator string) (*CollectionMetadata, error)
}

// StreamFetcher downloads one stream into a destination file.
// A failed fetch never leaves the destination file behind.
type StreamFetcher interface {
	Fetch(ctx context.Context, url, dest string, expected int64, onProgress FetchProgressFunc) error
}

// FailureRecord describes one item of a collection that could not be downloaded
type FailureRecord struct {
	Locator string `json:"locator"`
	Title   string `json:"title"`
	Index   int    `json:"index"`
	Error   string `json:"error"`
}
