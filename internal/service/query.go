package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/internal/repository"
)

// ErrInvalidQuery wraps rejected query parameters
var ErrInvalidQuery = errors.New("invalid query")

// ReadingQuerier runs filtered reading queries against storage
type ReadingQuerier interface {
	ListReadings(ctx context.Context, f repository.Filter) ([]analysis.Reading, error)
	CountReadings(ctx context.Context, f repository.Filter) (int, error)
}

// BatchLoader returns the full valid reading batch
type BatchLoader interface {
	Load(ctx context.Context) ([]analysis.Reading, error)
}

// FetchOptions selects a page of readings
type FetchOptions struct {
	Page       int
	Limit      int
	SiteID     int
	OperatorID string
	Start      *time.Time
	End        *time.Time
	MinLevel   *float64
	MaxLevel   *float64
}

// FetchResult is one page of readings
type FetchResult struct {
	Data    []analysis.Reading `json:"data"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
	HasMore bool               `json:"hasMore"`
}

// QueryService answers read-side reading queries
type QueryService struct {
	querier         ReadingQuerier
	source          BatchLoader
	defaultPageSize int
	fullBatchLimit  int
	latestLimit     int
}

// NewQueryService creates a query service
func NewQueryService(querier ReadingQuerier, source BatchLoader, defaultPageSize, fullBatchLimit, latestLimit int) *QueryService {
	return &QueryService{
		querier:         querier,
		source:          source,
		defaultPageSize: defaultPageSize,
		fullBatchLimit:  fullBatchLimit,
		latestLimit:     latestLimit,
	}
}

// FetchReadings returns a page of valid readings. A limit at or above the
// full batch limit returns the whole batch, unfiltered, as a single page.
func (s *QueryService) FetchReadings(ctx context.Context, opts FetchOptions) (FetchResult, error) {
	if err := opts.validate(); err != nil {
		return FetchResult{}, err
	}
	if opts.Page == 0 {
		opts.Page = 1
	}
	if opts.Limit == 0 {
		opts.Limit = s.defaultPageSize
	}

	if s.fullBatchLimit > 0 && opts.Limit >= s.fullBatchLimit {
		readings, err := s.source.Load(ctx)
		if err != nil {
			return FetchResult{}, err
		}
		return FetchResult{
			Data:  readings,
			Total: len(readings),
			Page:  1,
			Limit: opts.Limit,
		}, nil
	}

	filter := opts.filter()
	filter.Limit = opts.Limit
	filter.Offset = (opts.Page - 1) * opts.Limit

	total, err := s.querier.CountReadings(ctx, filter)
	if err != nil {
		return FetchResult{}, err
	}
	readings, err := s.querier.ListReadings(ctx, filter)
	if err != nil {
		return FetchResult{}, err
	}

	return FetchResult{
		Data:    readings,
		Total:   total,
		Page:    opts.Page,
		Limit:   opts.Limit,
		HasMore: filter.Offset+len(readings) < total,
	}, nil
}

// ExportReadings returns every valid reading matching the filters in ingestion
// order. A positive limit keeps only the newest matching readings. Page is ignored.
func (s *QueryService) ExportReadings(ctx context.Context, opts FetchOptions, limit int) ([]analysis.Reading, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	filter := opts.filter()
	filter.Limit = limit
	filter.Newest = true
	return s.querier.ListReadings(ctx, filter)
}

func (o FetchOptions) validate() error {
	if o.Page < 0 || o.Limit < 0 {
		return fmt.Errorf("%w: page and limit must not be negative", ErrInvalidQuery)
	}
	if o.MinLevel != nil && o.MaxLevel != nil && *o.MinLevel > *o.MaxLevel {
		return fmt.Errorf("%w: min_level is above max_level", ErrInvalidQuery)
	}
	if o.Start != nil && o.End != nil && o.Start.After(*o.End) {
		return fmt.Errorf("%w: start is after end", ErrInvalidQuery)
	}
	return nil
}

func (o FetchOptions) filter() repository.Filter {
	return repository.Filter{
		SiteID:     o.SiteID,
		OperatorID: o.OperatorID,
		Start:      o.Start,
		End:        o.End,
		MinLevel:   o.MinLevel,
		MaxLevel:   o.MaxLevel,
	}
}

// Stats summarises the full batch
func (s *QueryService) Stats(ctx context.Context) (analysis.ReadingStats, error) {
	readings, err := s.source.Load(ctx)
	if err != nil {
		return analysis.ReadingStats{}, err
	}
	return analysis.Summarize(readings), nil
}

// DeviceReadings returns every valid reading of one device in ingestion order
func (s *QueryService) DeviceReadings(ctx context.Context, serial string) ([]analysis.Reading, error) {
	if serial == "" {
		return nil, fmt.Errorf("%w: serial number is required", ErrInvalidQuery)
	}
	return s.querier.ListReadings(ctx, repository.Filter{Serial: serial})
}

// LatestReadings returns the newest reading of each device, newest first
func (s *QueryService) LatestReadings(ctx context.Context, limit int) ([]analysis.Reading, error) {
	if limit <= 0 {
		limit = s.latestLimit
	}
	readings, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	return analysis.LatestPerDevice(readings, limit), nil
}

// PageStats runs the engine over a single page and returns its tier totals
func PageStats(readings []analysis.Reading) analysis.Totals {
	return analysis.Analyze(readings).Totals
}
