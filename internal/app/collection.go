package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/vidgrab/internal/domain"
)

// workerShutdownTimeout bounds the wait for idle workers after the last task finished
const workerShutdownTimeout = 5 * time.Second

// CollectionRequest describes a collection download
type CollectionRequest struct {
	Locator    string
	DestDir    string
	Policy     domain.QualityPolicy
	MaxWorkers int // clamped to 1..16
	// Progress is called from worker goroutines and must be safe for concurrent use.
	Progress domain.ProgressFunc
}

// CollectionResult is the outcome of a collection download.
// Successes and Failures are in completion order.
type CollectionResult struct {
	Collection *domain.CollectionMetadata
	Successes  []string
	Failures   []domain.FailureRecord
}

// downloadTask is one queued item of a collection
type downloadTask struct {
	locator  string
	destDir  string
	policy   domain.QualityPolicy
	index    int // 1-based
	total    int
	title    string
	progress domain.ProgressFunc
}

// taskQueue holds every task of a collection before any worker starts
type taskQueue struct {
	tasks   chan downloadTask
	pending sync.WaitGroup
}

func newTaskQueue(tasks []downloadTask) *taskQueue {
	q := &taskQueue{tasks: make(chan downloadTask, len(tasks))}
	q.pending.Add(len(tasks))
	for _, task := range tasks {
		q.tasks <- task
	}
	return q
}

// outcomeLog collects results from concurrent workers
type outcomeLog struct {
	mu        sync.Mutex
	successes []string
	failures  []domain.FailureRecord
}

func (o *outcomeLog) recordSuccess(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.successes = append(o.successes, path)
}

func (o *outcomeLog) recordFailure(task downloadTask, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, domain.FailureRecord{
		Locator: task.locator,
		Title:   task.title,
		Index:   task.index,
		Error:   err.Error(),
	})
}

// ClampWorkers bounds a requested worker count to 1..16
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > domain.MaxCollectionWorkers {
		return domain.MaxCollectionWorkers
	}
	return n
}

// DownloadCollection downloads every item of a collection with a bounded worker pool.
// A failing item is recorded and never stops the others. Once ctx is done, items not
// yet started are recorded as failures and items already downloading run to completion.
func (dm *DownloadManager) DownloadCollection(ctx context.Context, req CollectionRequest) (*CollectionResult, error) {
	collection, err := dm.extractor.GetCollectionMetadata(ctx, req.Locator)
	if err != nil {
		return nil, err
	}
	if len(collection.Items) == 0 {
		return nil, fmt.Errorf("%w: %s has no items", domain.ErrCollectionUnavailable, req.Locator)
	}

	total := len(collection.Items)
	tasks := make([]downloadTask, 0, total)
	for i, item := range collection.Items {
		locator := item.URL
		if locator == "" {
			locator = item.ID
		}
		tasks = append(tasks, downloadTask{
			locator:  locator,
			destDir:  req.DestDir,
			policy:   req.Policy,
			index:    i + 1,
			total:    total,
			title:    item.Title,
			progress: req.Progress,
		})
	}

	queue := newTaskQueue(tasks)
	outcomes := &outcomeLog{}
	claims := newPathClaims()
	workers := ClampWorkers(req.MaxWorkers)

	dm.logger.Info("Downloading collection",
		zap.String("id", collection.ID),
		zap.String("title", collection.Title),
		zap.Int("items", total),
		zap.Int("workers", workers))
	if dm.multiLogger != nil {
		dm.multiLogger.LogQueueEvent("collection_started",
			zap.String("id", collection.ID),
			zap.String("title", collection.Title),
			zap.Int("items", total),
			zap.Int("workers", workers))
	}

	stopChan := make(chan struct{})
	var workerWg sync.WaitGroup
	for w := 0; w < workers; w++ {
		workerWg.Add(1)
		go func(workerID int) {
			defer workerWg.Done()
			dm.collectionWorker(ctx, workerID, queue, outcomes, claims, stopChan)
		}(w)
	}

	queue.pending.Wait()
	close(stopChan)

	done := make(chan struct{})
	go func() {
		workerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(workerShutdownTimeout):
		dm.logger.Warn("Collection workers did not stop in time",
			zap.String("id", collection.ID))
	}

	outcomes.mu.Lock()
	result := &CollectionResult{
		Collection: collection,
		Successes:  outcomes.successes,
		Failures:   outcomes.failures,
	}
	outcomes.mu.Unlock()

	dm.logger.Info("Collection finished",
		zap.String("id", collection.ID),
		zap.Int("succeeded", len(result.Successes)),
		zap.Int("failed", len(result.Failures)))
	if dm.multiLogger != nil {
		dm.multiLogger.LogQueueEvent("collection_finished",
			zap.String("id", collection.ID),
			zap.Int("succeeded", len(result.Successes)),
			zap.Int("failed", len(result.Failures)))
	}

	return result, nil
}

// collectionWorker pops tasks until the stop signal
func (dm *DownloadManager) collectionWorker(ctx context.Context, workerID int, queue *taskQueue, outcomes *outcomeLog, claims *pathClaims, stopChan <-chan struct{}) {
	for {
		select {
		case <-stopChan:
			return
		case task := <-queue.tasks:
			dm.runTask(ctx, workerID, task, outcomes, claims)
			queue.pending.Done()
		}
	}
}

// runTask downloads one collection item and records exactly one outcome
func (dm *DownloadManager) runTask(ctx context.Context, workerID int, task downloadTask, outcomes *outcomeLog, claims *pathClaims) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while downloading: %v", r)
			dm.logger.Error("Recovered from panic in collection worker",
				zap.Int("worker", workerID),
				zap.String("locator", task.locator),
				zap.Any("panic", r))
			outcomes.recordFailure(task, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		outcomes.recordFailure(task, fmt.Errorf("not started: %w", err))
		return
	}

	dm.logger.Debug("Worker picked item",
		zap.Int("worker", workerID),
		zap.Int("index", task.index),
		zap.Int("total", task.total),
		zap.String("title", task.title))

	req := ItemRequest{
		Locator:  task.locator,
		DestDir:  task.destDir,
		Policy:   task.policy,
		Progress: task.progress,
	}
	path, err := dm.downloadItem(context.WithoutCancel(ctx), req, task.index, task.total, task.title, claims)
	if err != nil {
		dm.logger.Warn("Collection item failed",
			zap.Int("index", task.index),
			zap.String("title", task.title),
			zap.Error(err))
		if dm.multiLogger != nil {
			dm.multiLogger.LogDownloadEvent("item_failed",
				zap.String("locator", task.locator),
				zap.String("title", task.title),
				zap.Int("index", task.index),
				zap.Error(err))
		}
		outcomes.recordFailure(task, err)
		return
	}

	outcomes.recordSuccess(path)
}
