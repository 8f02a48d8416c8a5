package app

import (
	"go.uber.org/zap"

	"github.com/yourusername/vidgrab/internal/domain"
	"github.com/yourusername/vidgrab/internal/infrastructure"
)

// NewExtractor builds the YouTube extractor with rate limit backoff around it
func NewExtractor(config *domain.Config, logger *zap.Logger) *GuardedExtractor {
	youtube := infrastructure.NewYouTubeExtractor(&config.Extractor, nil, logger)
	return NewGuardedExtractor(youtube, NewRateLimitGuard(config.RateLimit, logger))
}

// NewFetcher builds the stream fetcher shared by every worker
func NewFetcher(config *domain.Config, logger *zap.Logger) *infrastructure.HTTPStreamFetcher {
	return infrastructure.NewHTTPStreamFetcher(nil, config.Download.ChunkSize, config.Extractor.UserAgent, logger)
}
