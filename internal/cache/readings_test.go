package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/internal/cache"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleReadings() []analysis.Reading {
	return []analysis.Reading{
		{
			SiteID:     30006,
			Level:      0.68,
			OperatorID: "T1007384",
			Serial:     "1805C67HD02259",
			Timestamp:  time.Date(2019, 5, 17, 7, 47, 25, 833000000, time.FixedZone("", 3600)),
		},
	}
}

func TestReadingCache_RoundTripKeepsOffset(t *testing.T) {
	kv := newFakeKVStore()
	c := cache.NewReadingCache(kv, 5*time.Minute, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleReadings()))
	require.Equal(t, 5*time.Minute, kv.ttls[cache.AllReadingsKey])

	got, err := c.Get(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "2019-05-17T07:47:25.833+01:00", got[0].Timestamp.Format(time.RFC3339Nano))
	require.Equal(t, "1805C67HD02259", got[0].Serial)
}

func TestReadingCache_Miss(t *testing.T) {
	c := cache.NewReadingCache(newFakeKVStore(), time.Minute, zap.NewNop())

	_, err := c.Get(context.Background())
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestReadingCache_CorruptValueIsMiss(t *testing.T) {
	kv := newFakeKVStore()
	kv.data[cache.AllReadingsKey] = "{not json"
	c := cache.NewReadingCache(kv, time.Minute, zap.NewNop())

	_, err := c.Get(context.Background())
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestReadingCache_BackendError(t *testing.T) {
	kv := newFakeKVStore()
	kv.getErr = errBackend
	c := cache.NewReadingCache(kv, time.Minute, zap.NewNop())

	_, err := c.Get(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, cache.ErrCacheMiss)
	require.ErrorIs(t, err, errBackend)
}

func TestReadingCache_Invalidate(t *testing.T) {
	kv := newFakeKVStore()
	c := cache.NewReadingCache(kv, time.Minute, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleReadings()))
	require.NoError(t, c.Invalidate(ctx))

	_, err := c.Get(ctx)
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}
