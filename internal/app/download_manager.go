package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/yourusername/vidgrab/internal/domain"
	"github.com/yourusername/vidgrab/internal/infrastructure"
	"github.com/yourusername/vidgrab/pkg/logger"
)

const maxFilenameLength = 100

// ErrInvalidState is returned when a job cannot move to the requested state
var ErrInvalidState = errors.New("invalid job state")

var (
	unsafeFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// ItemRequest describes a single item download
type ItemRequest struct {
	Locator  string
	DestDir  string
	Policy   domain.QualityPolicy
	Filename string // without extension; derived from the title when empty
	Progress domain.ProgressFunc
}

// FormatReport lists the formats of an item and the one a policy would pick
type FormatReport struct {
	Item     *domain.ItemMetadata `json:"item"`
	Policy   string               `json:"policy"`
	Selected *domain.Format       `json:"selected,omitempty"`
}

// DownloadManager manages download operations
type DownloadManager struct {
	repo        domain.DownloadRepository
	extractor   domain.Extractor
	fetcher     domain.StreamFetcher
	notifier    *infrastructure.NotificationService
	config      *domain.DownloadConfig
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
	jobSem      chan struct{} // limits jobs processed at once
	cancels     map[string]context.CancelFunc
	mu          sync.Mutex
}

// NewDownloadManager creates a new download manager
func NewDownloadManager(
	repo domain.DownloadRepository,
	extractor domain.Extractor,
	fetcher domain.StreamFetcher,
	notifier *infrastructure.NotificationService,
	config *domain.DownloadConfig,
	logger *zap.Logger,
) *DownloadManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := config.ConcurrentLimit
	if limit < 1 {
		limit = 1
	}

	return &DownloadManager{
		repo:      repo,
		extractor: extractor,
		fetcher:   fetcher,
		notifier:  notifier,
		config:    config,
		logger:    logger,
		jobSem:    make(chan struct{}, limit),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// SetMultiLogger enables per-item download events in the category logs
func (dm *DownloadManager) SetMultiLogger(ml *logger.MultiLogger) {
	dm.multiLogger = ml
}

// OutputDir returns the directory server jobs are written to
func (dm *DownloadManager) OutputDir() string {
	return dm.config.OutputDir
}

// DownloadItem downloads one item and returns the path of the written file
func (dm *DownloadManager) DownloadItem(ctx context.Context, req ItemRequest) (string, error) {
	return dm.downloadItem(ctx, req, 0, 0, "", nil)
}

// downloadItem runs the single item pipeline; index and count are non-zero inside a collection.
// claims is shared by the items of one collection so that no two of them write the same file.
func (dm *DownloadManager) downloadItem(ctx context.Context, req ItemRequest, index, count int, knownTitle string, claims *pathClaims) (string, error) {
	meta, err := dm.extractor.GetItemMetadata(ctx, req.Locator)
	if err != nil {
		return "", err
	}

	format, ok := domain.SelectFormat(domain.PlayableFormats(meta.Formats), req.Policy)
	if !ok {
		return "", fmt.Errorf("%w: %s has no format for %s", domain.ErrNoSuitableFormat, meta.ID, req.Policy)
	}

	var name string
	if req.Filename != "" {
		name = CleanFilename(req.Filename)
		if name == "" {
			return "", fmt.Errorf("%w: filename %q has no usable characters", ErrInvalidRequest, req.Filename)
		}
	}
	if name == "" {
		name = CleanFilename(meta.Title)
	}
	if name == "" {
		name = CleanFilename(meta.ID)
	}
	if name == "" {
		name = "untitled"
	}

	var dest string
	if claims != nil {
		dest = claims.claim(req.DestDir, name, format.Container)
	} else {
		dest = filepath.Join(req.DestDir, name+"."+format.Container)
	}
	if !withinDir(req.DestDir, dest) {
		return "", fmt.Errorf("%w: %s resolves outside %s", ErrInvalidRequest, dest, req.DestDir)
	}

	if err := os.MkdirAll(req.DestDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create output directory: %v", domain.ErrDownloadFailed, err)
	}

	title := meta.Title
	if title == "" {
		title = knownTitle
	}

	dm.logger.Info("Downloading item",
		zap.String("id", meta.ID),
		zap.String("title", title),
		zap.String("format", format.ID),
		zap.String("quality", format.QualityLabel),
		zap.String("path", dest))

	var (
		onProgress  domain.FetchProgressFunc
		last        domain.Progress
		lastUnknown = true
	)
	if req.Progress != nil {
		onProgress = func(downloaded, total int64, elapsed time.Duration) {
			last = domain.Progress{
				Downloaded: downloaded,
				Total:      total,
				Elapsed:    elapsed,
				Index:      index,
				Count:      count,
				Title:      title,
			}
			lastUnknown = total == domain.UnknownSize
			req.Progress(last)
		}
	}

	expected := domain.UnknownSize
	if format.ContentLength != nil {
		expected = *format.ContentLength
	}

	if err := dm.fetcher.Fetch(ctx, format.URL, dest, expected, onProgress); err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrDownloadFailed, meta.ID, err)
	}

	// A stream of unknown size is only known to be complete here
	if req.Progress != nil && lastUnknown {
		last.Total = last.Downloaded
		last.Index, last.Count, last.Title = index, count, title
		req.Progress(last)
	}

	if dm.multiLogger != nil {
		dm.multiLogger.LogDownloadEvent("item_completed",
			zap.String("id", meta.ID),
			zap.String("title", title),
			zap.Int("index", index),
			zap.String("format", format.ID),
			zap.String("path", dest))
	}

	return dest, nil
}

// InspectFormats returns every normalized format of an item and the one policy selects
func (dm *DownloadManager) InspectFormats(ctx context.Context, locator string, policy domain.QualityPolicy) (*FormatReport, error) {
	meta, err := dm.extractor.GetItemMetadata(ctx, locator)
	if err != nil {
		return nil, err
	}

	report := &FormatReport{Item: meta, Policy: policy.String()}
	if format, ok := domain.SelectFormat(domain.PlayableFormats(meta.Formats), policy); ok {
		report.Selected = &format
	}
	return report, nil
}

// ProcessDownload processes a queued job through the download pipeline
func (dm *DownloadManager) ProcessDownload(ctx context.Context, download *domain.Download) error {
	// Registered before waiting for a slot so CancelDownload reaches a waiting job
	jobCtx, cancel := context.WithCancel(ctx)
	dm.mu.Lock()
	dm.cancels[download.ID] = cancel
	dm.mu.Unlock()
	defer func() {
		dm.mu.Lock()
		delete(dm.cancels, download.ID)
		dm.mu.Unlock()
		cancel()
	}()

	select {
	case dm.jobSem <- struct{}{}:
		defer func() { <-dm.jobSem }()
	case <-jobCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		dm.logger.Info("Download cancelled while waiting for a slot", zap.String("id", download.ID))
		return context.Canceled
	}

	current, err := dm.repo.FindByID(download.ID)
	if err != nil {
		return fmt.Errorf("failed to reload download: %w", err)
	}
	if current == nil {
		return fmt.Errorf("%w: %s", infrastructure.ErrDownloadNotFound, download.ID)
	}
	if current != download {
		*download = *current
	}
	if download.IsTerminal() {
		dm.logger.Info("Skipping download that finished while waiting for a slot",
			zap.String("id", download.ID),
			zap.String("status", string(download.Status)))
		if download.Status == domain.StatusCancelled {
			return context.Canceled
		}
		return nil
	}

	policy, err := domain.ParseQuality(download.Quality)
	if err != nil {
		download.MarkFailed(err)
		dm.updateStatus(download)
		return err
	}

	dm.logger.Info("Processing download",
		zap.String("id", download.ID),
		zap.String("url", download.URL),
		zap.String("kind", string(download.Kind)),
		zap.String("quality", policy.String()))

	download.MarkProcessing()
	if err := dm.repo.Update(download); err != nil {
		return fmt.Errorf("failed to update download status: %w", err)
	}

	dm.notifier.NotifyDownloadStarted(download.URL, download.Kind)

	var lastErr error
	for attempt := 0; attempt <= dm.config.MaxRetries; attempt++ {
		if attempt > 0 {
			dm.logger.Info("Retrying download",
				zap.String("id", download.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", dm.config.MaxRetries))

			select {
			case <-time.After(dm.config.RetryDelay):
			case <-jobCtx.Done():
				return dm.finishInterrupted(ctx, download)
			}

			download.IncrementRetry()
			dm.updateStatus(download)
		}

		err := dm.runJob(jobCtx, download, policy)
		if jobCtx.Err() != nil {
			return dm.finishInterrupted(ctx, download)
		}
		if err == nil {
			download.MarkCompleted(download.FilePath)
			dm.updateStatus(download)

			dm.logger.Info("Download completed",
				zap.String("id", download.ID),
				zap.String("url", download.URL),
				zap.String("file", download.FilePath))

			if download.Kind == domain.KindCollection {
				dm.notifier.NotifyCollectionCompleted(download.Title, download.Succeeded, download.Failed)
			} else {
				dm.notifier.NotifyDownloadCompleted(download.Title)
			}
			return nil
		}

		lastErr = err
		dm.logger.Warn("Download attempt failed",
			zap.String("id", download.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if domain.IsPermanent(err) {
			break
		}
	}

	download.MarkFailed(lastErr)
	dm.updateStatus(download)

	dm.logger.Error("Download failed",
		zap.String("id", download.ID),
		zap.String("url", download.URL),
		zap.Error(lastErr))

	dm.notifier.NotifyDownloadFailed(download.URL, lastErr)
	return lastErr
}

// runJob performs one attempt of a job and records its outcome on the record
func (dm *DownloadManager) runJob(ctx context.Context, download *domain.Download, policy domain.QualityPolicy) error {
	if download.Kind == domain.KindCollection {
		workers := download.MaxWorkers
		if workers == 0 {
			workers = dm.config.MaxWorkers
		}

		result, err := dm.DownloadCollection(ctx, CollectionRequest{
			Locator:    download.URL,
			DestDir:    dm.config.OutputDir,
			Policy:     policy,
			MaxWorkers: workers,
		})
		if err != nil {
			return err
		}

		download.Title = result.Collection.Title
		download.FilePath = dm.config.OutputDir
		if err := download.RecordCollection(len(result.Successes), result.Failures); err != nil {
			return fmt.Errorf("failed to record collection outcome: %w", err)
		}
		if len(result.Successes) == 0 {
			return fmt.Errorf("%w: none of %d items could be downloaded", domain.ErrDownloadFailed, len(result.Failures))
		}
		return nil
	}

	path, err := dm.DownloadItem(ctx, ItemRequest{
		Locator:  download.URL,
		DestDir:  dm.config.OutputDir,
		Policy:   policy,
		Filename: download.Filename,
	})
	if err != nil {
		return err
	}

	download.FilePath = path
	download.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return nil
}

// finishInterrupted settles a job whose context ended before it finished.
// A job cancelled through CancelDownload stays cancelled; a shutdown puts it back in the queue.
func (dm *DownloadManager) finishInterrupted(parent context.Context, download *domain.Download) error {
	if parent.Err() != nil {
		download.Status = domain.StatusQueued
		download.StartedAt = nil
		download.UpdatedAt = time.Now()
		dm.updateStatus(download)
		return parent.Err()
	}

	download.MarkCancelled()
	dm.updateStatus(download)
	dm.logger.Info("Download cancelled while processing", zap.String("id", download.ID))
	return context.Canceled
}

func (dm *DownloadManager) updateStatus(download *domain.Download) {
	if err := dm.repo.Update(download); err != nil {
		dm.logger.Error("Failed to update download status",
			zap.String("id", download.ID),
			zap.Error(err))
	}
}

// CancelDownload cancels a queued or processing download
func (dm *DownloadManager) CancelDownload(id string) error {
	download, err := dm.repo.FindByID(id)
	if err != nil || download == nil {
		return fmt.Errorf("%w: %s", infrastructure.ErrDownloadNotFound, id)
	}

	if download.IsTerminal() {
		return fmt.Errorf("%w: download already in terminal state: %s", ErrInvalidState, download.Status)
	}

	dm.mu.Lock()
	cancel, running := dm.cancels[id]
	dm.mu.Unlock()

	download.MarkCancelled()
	if err := dm.repo.Update(download); err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}

	if running {
		cancel()
	}

	dm.logger.Info("Download cancelled", zap.String("id", id), zap.Bool("was_running", running))
	return nil
}

// RetryDownload puts a failed or cancelled download back in the queue
func (dm *DownloadManager) RetryDownload(ctx context.Context, id string) error {
	download, err := dm.repo.FindByID(id)
	if err != nil || download == nil {
		return fmt.Errorf("%w: %s", infrastructure.ErrDownloadNotFound, id)
	}

	switch download.Status {
	case domain.StatusFailed, domain.StatusCancelled:
	case domain.StatusQueued:
		return fmt.Errorf("%w: download is already queued", ErrInvalidState)
	case domain.StatusProcessing:
		return fmt.Errorf("%w: download is currently processing", ErrInvalidState)
	case domain.StatusCompleted:
		return fmt.Errorf("%w: download is already completed", ErrInvalidState)
	default:
		return fmt.Errorf("%w: download cannot be retried from state: %s", ErrInvalidState, download.Status)
	}

	download.ResetForRetry()
	if err := dm.repo.Update(download); err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}

	dm.logger.Info("Download queued for retry", zap.String("id", id))
	return nil
}

// DeleteDownload removes a download record, cancelling it first when it is running
func (dm *DownloadManager) DeleteDownload(id string) error {
	dm.mu.Lock()
	cancel, running := dm.cancels[id]
	dm.mu.Unlock()
	if running {
		cancel()
	}

	if err := dm.repo.Delete(id); err != nil {
		if errors.Is(err, infrastructure.ErrDownloadNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete download: %w", err)
	}

	dm.logger.Info("Download deleted", zap.String("id", id))
	return nil
}

// CleanFilename sanitizes a title or a caller supplied name for use as a file name.
// Leading and trailing dots are dropped; an empty result means nothing usable was left.
func CleanFilename(name string) string {
	return strings.Trim(SanitizeFilename(name), ". ")
}

// withinDir reports whether path stays inside dir once both are cleaned
func withinDir(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// pathClaims hands out distinct output paths to the items of one collection
type pathClaims struct {
	mu    sync.Mutex
	taken map[string]bool
}

func newPathClaims() *pathClaims {
	return &pathClaims{taken: make(map[string]bool)}
}

// claim returns dir/stem.ext, or dir/stem (n).ext with the smallest n >= 2 not yet claimed.
// Paths are compared case-insensitively.
func (c *pathClaims) claim(dir, stem, ext string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(dir, stem+"."+ext)
	for n := 2; c.taken[strings.ToLower(path)]; n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s (%d).%s", stem, n, ext))
	}
	c.taken[strings.ToLower(path)] = true
	return path
}

// SanitizeFilename turns a title into a safe file name: reserved characters are
// dropped, whitespace runs collapse to one space and the result is cut to 100 characters.
func SanitizeFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(title, "")
	name = whitespaceRun.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	if utf8.RuneCountInString(name) > maxFilenameLength {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:maxFilenameLength]))
	}
	return name
}
