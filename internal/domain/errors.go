package domain

import "errors"

var (
	// ErrExtractionFailed indicates metadata could not be fetched or parsed
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrVideoUnavailable indicates the item is confirmed absent or private
	ErrVideoUnavailable = errors.New("video unavailable")

	// ErrCollectionUnavailable indicates the collection is missing or empty
	ErrCollectionUnavailable = errors.New("collection unavailable")

	// ErrRateLimited indicates the remote side asked us to slow down
	ErrRateLimited = errors.New("rate limited")

	// ErrNoSuitableFormat indicates no format matched the quality policy
	ErrNoSuitableFormat = errors.New("no suitable format")

	// ErrDownloadFailed indicates a transport or I/O failure while streaming
	ErrDownloadFailed = errors.New("download failed")
)

// IsPermanent reports whether retrying the same request cannot succeed
func IsPermanent(err error) bool {
	return errors.Is(err, ErrVideoUnavailable) ||
		errors.Is(err, ErrCollectionUnavailable) ||
		errors.Is(err, ErrNoSuitableFormat)
}
