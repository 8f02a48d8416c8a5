package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/vidgrab/internal/domain"
)

// maxJitter bounds the random delay added to each backoff step
const maxJitter = time.Second

// RateLimitGuard retries an operation while it keeps failing with domain.ErrRateLimited.
// Retry n (0-based) waits InitialDelay*2^n plus a jitter in [0, 1s).
type RateLimitGuard struct {
	InitialDelay time.Duration
	MaxRetries   int

	// Sleep waits for d or until ctx is done. Tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns the random part of a delay.
	Jitter func() time.Duration

	logger *zap.Logger
}

// NewRateLimitGuard creates a guard from configuration
func NewRateLimitGuard(config domain.RateLimitConfig, logger *zap.Logger) *RateLimitGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitGuard{
		InitialDelay: config.InitialDelay,
		MaxRetries:   config.MaxRetries,
		Sleep:        sleepContext,
		Jitter:       randomJitter,
		logger:       logger,
	}
}

// BackoffDelay returns the wait before retry attempt (0-based)
func BackoffDelay(initial time.Duration, attempt int, jitter time.Duration) time.Duration {
	return initial*time.Duration(1<<uint(attempt)) + jitter
}

// Do runs op, retrying it on rate limit errors. Any other error is returned at once.
// When retries are exhausted the last rate limit error is returned.
func (g *RateLimitGuard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	sleep := g.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	jitter := g.Jitter
	if jitter == nil {
		jitter = randomJitter
	}
	log := g.logger
	if log == nil {
		log = zap.NewNop()
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil || !errors.Is(err, domain.ErrRateLimited) {
			return err
		}
		if attempt >= g.MaxRetries {
			log.Warn("Rate limit retries exhausted",
				zap.Int("retries", g.MaxRetries),
				zap.Error(err))
			return err
		}

		delay := BackoffDelay(g.InitialDelay, attempt, jitter())
		log.Info("Rate limited, backing off",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", g.MaxRetries),
			zap.Duration("delay", delay))

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Guard runs op under g and returns its value
func Guard[T any](ctx context.Context, g *RateLimitGuard, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := g.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// rateLimitExhausted marks a rate limit error that survived every retry.
// It matches both domain.ErrRateLimited and domain.ErrExtractionFailed.
type rateLimitExhausted struct {
	err error
}

func (e *rateLimitExhausted) Error() string {
	return fmt.Sprintf("%s: %v", domain.ErrExtractionFailed, e.err)
}

func (e *rateLimitExhausted) Unwrap() []error {
	return []error{domain.ErrExtractionFailed, e.err}
}

// GuardedExtractor wraps an extractor so every call is protected by a RateLimitGuard
type GuardedExtractor struct {
	inner domain.Extractor
	guard *RateLimitGuard
}

// NewGuardedExtractor creates a rate limit aware extractor
func NewGuardedExtractor(inner domain.Extractor, guard *RateLimitGuard) *GuardedExtractor {
	return &GuardedExtractor{inner: inner, guard: guard}
}

// GetItemMetadata fetches item metadata, backing off while rate limited
func (e *GuardedExtractor) GetItemMetadata(ctx context.Context, locator string) (*domain.ItemMetadata, error) {
	meta, err := Guard(ctx, e.guard, func(ctx context.Context) (*domain.ItemMetadata, error) {
		return e.inner.GetItemMetadata(ctx, locator)
	})
	return meta, classifyExhausted(err)
}

// GetCollectionMetadata fetches collection metadata, backing off while rate limited
func (e *GuardedExtractor) GetCollectionMetadata(ctx context.Context, locator string) (*domain.CollectionMetadata, error) {
	meta, err := Guard(ctx, e.guard, func(ctx context.Context) (*domain.CollectionMetadata, error) {
		return e.inner.GetCollectionMetadata(ctx, locator)
	})
	return meta, classifyExhausted(err)
}

// Search runs a keyword search, backing off while rate limited.
// The wrapped extractor must implement domain.Searcher.
func (e *GuardedExtractor) Search(ctx context.Context, opts domain.SearchOptions) (*domain.SearchPage, error) {
	searcher, ok := e.inner.(domain.Searcher)
	if !ok {
		return nil, fmt.Errorf("%w: search is not supported by this extractor", domain.ErrExtractionFailed)
	}
	page, err := Guard(ctx, e.guard, func(ctx context.Context) (*domain.SearchPage, error) {
		return searcher.Search(ctx, opts)
	})
	return page, classifyExhausted(err)
}

func classifyExhausted(err error) error {
	if err != nil && errors.Is(err, domain.ErrRateLimited) && !errors.Is(err, domain.ErrExtractionFailed) {
		return &rateLimitExhausted{err: err}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(maxJitter)))
}
