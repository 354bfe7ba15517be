package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/septivank/battery-drain-worker/internal/analysis"
	"go.uber.org/zap"
)

// AllReadingsKey holds the full valid reading batch
const AllReadingsKey = "battery:readings:all"

// ReadingCache stores the analysis batch as JSON with a TTL
type ReadingCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewReadingCache creates a reading cache
func NewReadingCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *ReadingCache {
	return &ReadingCache{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached batch or ErrCacheMiss
func (c *ReadingCache) Get(ctx context.Context) ([]analysis.Reading, error) {
	raw, err := c.kv.Get(ctx, AllReadingsKey)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("[REDIS] failed to get readings: %w", err)
	}

	var readings []analysis.Reading
	if err := json.Unmarshal([]byte(raw), &readings); err != nil {
		c.logger.Warn("discarding corrupt cached readings", zap.Error(err))
		return nil, ErrCacheMiss
	}

	return readings, nil
}

// Set stores the batch
func (c *ReadingCache) Set(ctx context.Context, readings []analysis.Reading) error {
	body, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("failed to marshal readings: %w", err)
	}

	if err := c.kv.Set(ctx, AllReadingsKey, string(body), c.ttl); err != nil {
		return fmt.Errorf("[REDIS] failed to set readings: %w", err)
	}

	c.logger.Debug("cached reading batch",
		zap.Int("count", len(readings)),
		zap.Duration("ttl", c.ttl),
	)
	return nil
}

// Invalidate drops the cached batch
func (c *ReadingCache) Invalidate(ctx context.Context) error {
	if err := c.kv.Del(ctx, AllReadingsKey); err != nil {
		return fmt.Errorf("[REDIS] failed to invalidate readings: %w", err)
	}
	return nil
}
