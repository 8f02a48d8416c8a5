package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/vidgrab/internal/domain"
	"github.com/yourusername/vidgrab/internal/infrastructure"
	"github.com/yourusername/vidgrab/pkg/logger"
)

// ErrInvalidRequest is returned when a submitted job fails validation
var ErrInvalidRequest = errors.New("invalid request")

// AddRequest describes a job submitted to the queue
type AddRequest struct {
	URL        string
	Kind       domain.DownloadKind // detected from the URL when empty
	Quality    string
	MaxWorkers int
	Filename   string
	Priority   int
}

// QueueManager manages the download queue
type QueueManager struct {
	repo        domain.DownloadRepository
	downloadMgr *DownloadManager
	notifier    *infrastructure.NotificationService
	config      *domain.QueueConfig
	multiLogger *logger.MultiLogger
	mu          sync.RWMutex
	running     bool
	inFlight    map[string]bool
	stopChan    chan struct{}
	exitChan    chan struct{}
	workerWg    sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	repo domain.DownloadRepository,
	downloadMgr *DownloadManager,
	config *domain.QueueConfig,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	return &QueueManager{
		repo:        repo,
		downloadMgr: downloadMgr,
		config:      config,
		multiLogger: multiLogger,
		inFlight:    make(map[string]bool),
		stopChan:    make(chan struct{}),
		exitChan:    make(chan struct{}),
	}
}

// SetNotifier enables desktop notifications for queue events
func (qm *QueueManager) SetNotifier(n *infrastructure.NotificationService) {
	qm.notifier = n
}

// Start starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	qm.mu.Unlock()

	if n, err := qm.repo.ResetOrphanedProcessing(); err != nil {
		qm.logAppError("Failed to reset orphaned downloads", zap.Error(err))
	} else if n > 0 {
		qm.logQueueEvent("orphaned_downloads_requeued", zap.Int64("count", n))
	}

	qm.logQueueEvent("queue_started")

	qm.workerWg.Add(1)
	go qm.processQueue(ctx)

	return nil
}

// Stop stops the queue processor and waits for running jobs
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	qm.mu.Unlock()

	qm.logQueueEvent("queue_stopped")
	close(qm.stopChan)
	qm.workerWg.Wait()

	return nil
}

// WaitForExit is closed when the processor exits on its own after the queue stayed empty
func (qm *QueueManager) WaitForExit() <-chan struct{} {
	return qm.exitChan
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// AddDownload adds a download to the queue. A URL that is already queued or processing,
// or that completed with its output still on disk, returns the existing job.
func (qm *QueueManager) AddDownload(req AddRequest) (*domain.Download, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.DetectKind(req.URL)
	}
	if !domain.ValidateKind(kind) {
		return nil, fmt.Errorf("%w: invalid kind: %s", ErrInvalidRequest, kind)
	}

	if req.Quality != "" {
		if _, err := domain.ParseQuality(req.Quality); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	filename := ""
	if req.Filename != "" {
		filename = CleanFilename(req.Filename)
		if filename == "" {
			return nil, fmt.Errorf("%w: filename %q has no usable characters", ErrInvalidRequest, req.Filename)
		}
	}

	if req.MaxWorkers < 0 || req.MaxWorkers > domain.MaxCollectionWorkers {
		return nil, fmt.Errorf("%w: max workers must be between 1 and %d", ErrInvalidRequest, domain.MaxCollectionWorkers)
	}

	existing, err := qm.repo.FindByURL(req.URL, []domain.DownloadStatus{
		domain.StatusQueued,
		domain.StatusProcessing,
		domain.StatusCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing downloads: %w", err)
	}
	if existing != nil {
		if existing.Status != domain.StatusCompleted {
			return existing, nil
		}
		if _, err := os.Stat(existing.FilePath); err == nil {
			return existing, nil
		}
	}

	download := domain.NewDownload(req.URL, kind, req.Quality)
	download.MaxWorkers = req.MaxWorkers
	download.Filename = filename
	download.Priority = req.Priority

	if err := qm.repo.Create(download); err != nil {
		return nil, fmt.Errorf("failed to create download: %w", err)
	}

	qm.logQueueEvent("download_added",
		zap.String("id", download.ID),
		zap.String("url", download.URL),
		zap.String("kind", string(download.Kind)),
		zap.String("quality", download.Quality))
	qm.notifier.NotifyDownloadQueued(download.URL, download.Kind)

	return download, nil
}

// GetDownload retrieves a download by ID
func (qm *QueueManager) GetDownload(id string) (*domain.Download, error) {
	return qm.repo.FindByID(id)
}

// ListDownloads lists all downloads with optional filters
func (qm *QueueManager) ListDownloads(filters map[string]interface{}) ([]*domain.Download, error) {
	return qm.repo.FindAll(filters)
}

// GetStats returns queue statistics
func (qm *QueueManager) GetStats() (*domain.DownloadStats, error) {
	return qm.repo.GetStats()
}

// processQueue polls for pending jobs and hands them to the download manager
func (qm *QueueManager) processQueue(ctx context.Context) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	emptyStartTime := time.Time{}

	for {
		select {
		case <-ctx.Done():
			qm.logQueueEvent("queue_processor_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-qm.stopChan:
			qm.logQueueEvent("queue_processor_stopped", zap.String("reason", "stop_signal"))
			return
		case <-ticker.C:
			pending, err := qm.repo.FindPending()
			if err != nil {
				qm.logAppError("Failed to fetch pending downloads", zap.Error(err))
				continue
			}

			active, err := qm.repo.CountActive()
			if err != nil {
				qm.logAppError("Failed to count active downloads", zap.Error(err))
				continue
			}

			if active == 0 {
				if emptyStartTime.IsZero() {
					emptyStartTime = time.Now()
					qm.logQueueEvent("queue_empty")
					qm.notifier.NotifyQueueEmpty()
				} else if qm.config.AutoExitOnEmpty && time.Since(emptyStartTime) > qm.config.EmptyWaitTime {
					qm.logQueueEvent("queue_auto_exit", zap.String("reason", "empty_timeout"))
					close(qm.exitChan)
					return
				}
				continue
			}

			emptyStartTime = time.Time{}

			for _, download := range pending {
				if !qm.claim(download.ID) {
					continue
				}

				qm.logQueueEvent("download_started",
					zap.String("id", download.ID),
					zap.String("url", download.URL),
					zap.String("kind", string(download.Kind)))

				// The download manager's job semaphore bounds how many run at once
				qm.workerWg.Add(1)
				go func(download *domain.Download) {
					defer qm.workerWg.Done()
					defer qm.release(download.ID)

					if err := qm.downloadMgr.ProcessDownload(ctx, download); err != nil {
						qm.logQueueEvent("download_failed",
							zap.String("id", download.ID),
							zap.Error(err))
						qm.logAppError("Failed to process download",
							zap.String("id", download.ID),
							zap.Error(err))
						return
					}
					qm.logQueueEvent("download_completed",
						zap.String("id", download.ID),
						zap.String("status", string(download.Status)),
						zap.String("file_path", download.FilePath),
						zap.Int("succeeded", download.Succeeded),
						zap.Int("failed", download.Failed))
				}(download)
			}
		}
	}
}

// claim marks a job as handed to a goroutine; it returns false if it already was
func (qm *QueueManager) claim(id string) bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	if qm.inFlight[id] {
		return false
	}
	qm.inFlight[id] = true
	return true
}

func (qm *QueueManager) release(id string) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	delete(qm.inFlight, id)
}

func (qm *QueueManager) logQueueEvent(event string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent(event, fields...)
	}
}

func (qm *QueueManager) logAppError(msg string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogAppError(msg, fields...)
	}
}
