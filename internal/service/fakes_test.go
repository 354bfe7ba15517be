package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/internal/cache"
	"github.com/septivank/battery-drain-worker/internal/db"
	"github.com/septivank/battery-drain-worker/internal/repository"
)

var errDatabaseDown = errors.New("connection refused")

type publishedEvent struct {
	routingKey string
	event      any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{routingKey: routingKey, event: event})
	return nil
}

func (f *fakePublisher) byKey(routingKey string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.events {
		if e.routingKey == routingKey {
			out = append(out, e.event)
		}
	}
	return out
}

type fakeWriter struct {
	batches [][]db.BatteryReading
	err     error
}

func (f *fakeWriter) InsertBatch(ctx context.Context, rows []db.BatteryReading) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, rows)
	return nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(ctx context.Context) error {
	f.calls++
	return nil
}

type fakeStore struct {
	readings  []analysis.Reading
	err       error
	calls     int
	lastLimit int
}

func (f *fakeStore) AllValidReadings(ctx context.Context, limit int) ([]analysis.Reading, error) {
	f.calls++
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.readings) > limit {
		return f.readings[len(f.readings)-limit:], nil
	}
	return f.readings, nil
}

type fakeBatchCache struct {
	readings    []analysis.Reading
	getErr      error
	sets        int
	invalidated int
}

func (f *fakeBatchCache) Get(ctx context.Context) ([]analysis.Reading, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.readings == nil {
		return nil, cache.ErrCacheMiss
	}
	return f.readings, nil
}

func (f *fakeBatchCache) Set(ctx context.Context, readings []analysis.Reading) error {
	f.sets++
	f.readings = readings
	return nil
}

func (f *fakeBatchCache) Invalidate(ctx context.Context) error {
	f.invalidated++
	f.readings = nil
	return nil
}

type fakeQuerier struct {
	readings []analysis.Reading
	filters  []repository.Filter
}

func (f *fakeQuerier) matching(filter repository.Filter) []analysis.Reading {
	out := []analysis.Reading{}
	for _, r := range f.readings {
		if filter.SiteID != 0 && r.SiteID != filter.SiteID {
			continue
		}
		if filter.Serial != "" && r.Serial != filter.Serial {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (f *fakeQuerier) ListReadings(ctx context.Context, filter repository.Filter) ([]analysis.Reading, error) {
	f.filters = append(f.filters, filter)
	out := f.matching(filter)
	if filter.Newest {
		if filter.Limit > 0 && len(out) > filter.Limit {
			out = out[len(out)-filter.Limit:]
		}
		return out, nil
	}
	if filter.Offset >= len(out) {
		return []analysis.Reading{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeQuerier) CountReadings(ctx context.Context, filter repository.Filter) (int, error) {
	return len(f.matching(filter)), nil
}

type staticLoader struct {
	readings []analysis.Reading
	err      error
}

func (s staticLoader) Load(ctx context.Context) ([]analysis.Reading, error) {
	return s.readings, s.err
}

var day0 = time.Date(2019, 5, 17, 8, 0, 0, 0, time.UTC)

func reading(site int, serial string, level float64, hours int) analysis.Reading {
	return analysis.Reading{
		SiteID:     site,
		Level:      level,
		OperatorID: "T1007384",
		Serial:     serial,
		Timestamp:  day0.Add(time.Duration(hours) * time.Hour),
	}
}

// fleet has one critical-heavy site (two devices at 0.5/day) and one healthy site
func fleet() []analysis.Reading {
	return []analysis.Reading{
		reading(30006, "A1", 1.0, 0),
		reading(30006, "A1", 0.5, 24),
		reading(30006, "A2", 0.9, 0),
		reading(30006, "A2", 0.4, 24),
		reading(30007, "B1", 0.9, 0),
		reading(30007, "B1", 0.8, 24),
		reading(30007, "B2", 0.7, 0),
	}
}
