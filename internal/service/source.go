package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/internal/cache"
	"github.com/septivank/battery-drain-worker/internal/observability"
	"go.uber.org/zap"
)

// BatchStore loads the valid reading batch from durable storage
type BatchStore interface {
	AllValidReadings(ctx context.Context, limit int) ([]analysis.Reading, error)
}

// BatchCache holds a copy of the reading batch
type BatchCache interface {
	Get(ctx context.Context) ([]analysis.Reading, error)
	Set(ctx context.Context, readings []analysis.Reading) error
	Invalidate(ctx context.Context) error
}

// ReadingSource serves the full valid reading batch, cache first.
// When storage fails it falls back to the last batch it served successfully.
type ReadingSource struct {
	store   BatchStore
	cache   BatchCache
	limit   int
	metrics *observability.Metrics
	logger  *zap.Logger

	mu       sync.RWMutex
	lastGood []analysis.Reading
}

// NewReadingSource creates a reading source; a positive limit keeps only the newest readings
func NewReadingSource(store BatchStore, cache BatchCache, limit int, metrics *observability.Metrics, logger *zap.Logger) *ReadingSource {
	return &ReadingSource{
		store:   store,
		cache:   cache,
		limit:   limit,
		metrics: metrics,
		logger:  logger,
	}
}

// Load returns the current batch
func (s *ReadingSource) Load(ctx context.Context) ([]analysis.Reading, error) {
	readings, err := s.cache.Get(ctx)
	if err == nil {
		s.metrics.CacheHit()
		s.remember(readings)
		return readings, nil
	}
	s.metrics.CacheMiss()
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("reading cache unavailable, loading from database", zap.Error(err))
	}

	readings, err = s.store.AllValidReadings(ctx, s.limit)
	if err != nil {
		if fallback, ok := s.fallback(); ok {
			s.metrics.SourceFallback()
			s.logger.Warn("database load failed, serving last good batch",
				zap.Error(err),
				zap.Int("count", len(fallback)),
			)
			return fallback, nil
		}
		return nil, fmt.Errorf("failed to load readings: %w", err)
	}

	if err := s.cache.Set(ctx, readings); err != nil {
		s.logger.Warn("failed to refill reading cache", zap.Error(err))
	}
	s.remember(readings)

	return readings, nil
}

// Invalidate drops the cached batch so the next Load reads from storage
func (s *ReadingSource) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

func (s *ReadingSource) remember(readings []analysis.Reading) {
	s.mu.Lock()
	s.lastGood = readings
	s.mu.Unlock()
}

func (s *ReadingSource) fallback() ([]analysis.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGood, s.lastGood != nil
}
