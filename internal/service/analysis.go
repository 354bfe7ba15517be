package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/internal/logging"
	"github.com/septivank/battery-drain-worker/internal/mq"
	"github.com/septivank/battery-drain-worker/internal/observability"
	"go.uber.org/zap"
)

// RunReport is the outcome of one published analysis run
type RunReport struct {
	RunID       string          `json:"runId"`
	CompletedAt time.Time       `json:"completedAt"`
	Result      analysis.Result `json:"result"`
}

// AnalysisRoutes holds the routing keys analysis events are published under
type AnalysisRoutes struct {
	Completed     string
	SiteAttention string
}

// RunArchiver keeps a durable copy of each published run
type RunArchiver interface {
	Archive(ctx context.Context, runID string, completedAt time.Time, result analysis.Result) error
}

// AnalysisService runs the drain analysis over the full reading batch
type AnalysisService struct {
	source    BatchLoader
	publisher EventPublisher
	archiver  RunArchiver
	routes    AnalysisRoutes
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnalysisService creates an analysis service; archiver may be nil
func NewAnalysisService(
	source BatchLoader,
	publisher EventPublisher,
	archiver RunArchiver,
	routes AnalysisRoutes,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		source:    source,
		publisher: publisher,
		archiver:  archiver,
		routes:    routes,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Current analyses the current batch without publishing anything
func (s *AnalysisService) Current(ctx context.Context) (analysis.Result, error) {
	readings, err := s.source.Load(ctx)
	if err != nil {
		return analysis.Result{}, err
	}

	start := s.now()
	result := analysis.Analyze(readings)
	s.metrics.AnalysisCompleted(s.now().Sub(start), result)

	return result, nil
}

// Run analyses the current batch and publishes the completion and site attention events
func (s *AnalysisService) Run(ctx context.Context) (RunReport, error) {
	runID := uuid.NewString()
	runLogger := logging.WithRunID(s.logger, runID)

	result, err := s.Current(ctx)
	if err != nil {
		runLogger.Error("analysis run failed", zap.Error(err))
		return RunReport{}, err
	}

	report := RunReport{
		RunID:       runID,
		CompletedAt: s.now().UTC(),
		Result:      result,
	}

	visits := analysis.FilterSites(result, analysis.FilterNeedsVisits)
	visitIDs := make([]int, 0, len(visits))
	for _, site := range visits {
		visitIDs = append(visitIDs, site.SiteID)
	}

	runLogger.Info("analysis completed",
		zap.Int("total_devices", result.Devices),
		zap.Int("critical", result.Critical),
		zap.Int("warning", result.Warning),
		zap.Int("healthy", result.Healthy),
		zap.Int("unknown", result.Unknown),
		zap.Int("sites", len(result.Sites)),
		zap.Int("sites_needing_visits", len(visitIDs)),
	)

	completed := mq.AnalysisCompletedEvent{
		RunID:              runID,
		CompletedAt:        report.CompletedAt,
		Totals:             result.Totals,
		Sites:              len(result.Sites),
		SitesNeedingVisits: visitIDs,
	}
	if err := s.publisher.Publish(ctx, s.routes.Completed, completed); err != nil {
		runLogger.Error("failed to publish analysis event", zap.Error(err))
	}

	for _, site := range result.Sites {
		if site.Priority != analysis.PriorityHigh {
			continue
		}
		critical := analysis.DevicesByTier(site, analysis.TierCritical)
		serials := make([]string, 0, len(critical))
		for _, d := range critical {
			serials = append(serials, d.Serial)
		}

		event := mq.SiteAttentionEvent{
			RunID:           runID,
			SiteID:          site.SiteID,
			Priority:        site.Priority,
			CriticalDevices: site.Critical,
			WarningDevices:  site.Warning,
			CriticalSerials: serials,
		}
		if err := s.publisher.Publish(ctx, s.routes.SiteAttention, event); err != nil {
			runLogger.Error("failed to publish site attention event",
				zap.Int("academy_id", site.SiteID),
				zap.Error(err),
			)
		}
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, runID, report.CompletedAt, result); err != nil {
			runLogger.Error("failed to archive analysis", zap.Error(err))
		}
	}

	return report, nil
}
