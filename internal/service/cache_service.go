package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/clinsync/air-submit-api/internal/dto"
	appErrors "github.com/clinsync/air-submit-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached progress snapshots.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// CacheService keeps submission progress snapshots in Redis so polling
// clients do not hammer the database while a submission runs. Cache failures
// are logged and absorbed; the store stays authoritative.
type CacheService struct {
	repo    CacheRepository
	metrics cacheMetrics
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics cacheMetrics, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

func progressKey(id string) string {
	return "submission:progress:" + id
}

// GetProgress attempts to retrieve a cached snapshot. It reports a hit via
// the second return value.
func (s *CacheService) GetProgress(ctx context.Context, id string) (*dto.ProgressResponse, bool) {
	if !s.Enabled() {
		return nil, false
	}
	start := time.Now()
	var progress dto.ProgressResponse
	err := s.repo.Get(ctx, progressKey(id), &progress)
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	}
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("progress cache get failed", zap.String("submission_id", id), zap.Error(err))
		}
		return nil, false
	}
	return &progress, true
}

// SetProgress stores a snapshot with the configured TTL.
func (s *CacheService) SetProgress(ctx context.Context, progress *dto.ProgressResponse) {
	if !s.Enabled() || progress == nil {
		return
	}
	if err := s.repo.Set(ctx, progressKey(progress.ID), progress, s.ttl); err != nil {
		s.logger.Warn("progress cache set failed", zap.String("submission_id", progress.ID), zap.Error(err))
	}
}

// Invalidate drops the cached snapshot after a state transition.
func (s *CacheService) Invalidate(ctx context.Context, id string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.Delete(ctx, progressKey(id)); err != nil {
		s.logger.Warn("progress cache invalidate failed", zap.String("submission_id", id), zap.Error(err))
	}
}
