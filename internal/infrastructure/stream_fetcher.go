package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/yourusername/vidgrab/internal/domain"
)

// HTTPStatusError is returned when the media server answers with a non-2xx status
type HTTPStatusError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// Unwrap lets 429 responses match domain.ErrRateLimited
func (e *HTTPStatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return nil
}

// HTTPStreamFetcher downloads media streams over HTTP in fixed-size chunks
type HTTPStreamFetcher struct {
	client    *http.Client
	chunkSize int
	userAgent string
	logger    *zap.Logger
}

// NewHTTPStreamFetcher creates a new stream fetcher.
// The client is shared and may be used from many goroutines.
func NewHTTPStreamFetcher(client *http.Client, chunkSize int, userAgent string, logger *zap.Logger) *HTTPStreamFetcher {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second},
		}
	}
	if chunkSize <= 0 {
		chunkSize = domain.DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPStreamFetcher{
		client:    client,
		chunkSize: chunkSize,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Fetch streams url into dest, reporting progress after every chunk.
// expected <= 0 means the size is unknown and is taken from the response if declared.
// On failure the destination file is removed before the error is returned.
func (f *HTTPStreamFetcher) Fetch(ctx context.Context, url, dest string, expected int64, onProgress domain.FetchProgressFunc) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	total := expected
	if total <= 0 {
		total = domain.UnknownSize
		if resp.ContentLength > 0 {
			total = resp.ContentLength
		}
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	downloaded, err := f.copyChunks(file, resp.Body, total, start, onProgress)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close file: %w", closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.logger.Warn("Failed to remove partial file",
				zap.String("path", dest),
				zap.Error(rmErr))
		}
		return err
	}

	if total != domain.UnknownSize && onProgress != nil {
		onProgress(downloaded, downloaded, time.Since(start))
	}

	f.logger.Debug("Stream fetched",
		zap.String("path", dest),
		zap.String("size", humanize.IBytes(uint64(downloaded))),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}

func (f *HTTPStreamFetcher) copyChunks(w io.Writer, r io.Reader, total int64, start time.Time, onProgress domain.FetchProgressFunc) (int64, error) {
	buf := make([]byte, f.chunkSize)
	var downloaded int64

	for {
		n, readErr := fillChunk(r, buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return downloaded, fmt.Errorf("failed to write chunk: %w", err)
			}
			downloaded += int64(n)
			if onProgress != nil {
				onProgress(downloaded, total, time.Since(start))
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return downloaded, fmt.Errorf("failed to read stream: %w", readErr)
		}
	}

	if total != domain.UnknownSize && downloaded < total {
		return downloaded, fmt.Errorf("stream ended after %d of %d bytes: %w", downloaded, total, io.ErrUnexpectedEOF)
	}
	return downloaded, nil
}

// fillChunk reads until buf is full or the reader fails; io.EOF marks the end of the stream
func fillChunk(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// parseRetryAfter understands the delta-seconds and HTTP-date forms
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
