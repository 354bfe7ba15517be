package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/septivank/battery-drain-worker/internal/analysis"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	readingsAccepted  prometheus.Counter
	readingsRejected  prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	sourceFallbacks   prometheus.Counter
	analysisDuration  prometheus.Histogram
	devicesByTier     *prometheus.GaugeVec
	sitesNeedingVisit prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		readingsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battery_readings_accepted_total",
			Help: "Total battery readings that passed validation.",
		}),
		readingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battery_readings_rejected_total",
			Help: "Total battery readings rejected by validation.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reading_cache_hits_total",
			Help: "Total reading cache hits observed.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reading_cache_misses_total",
			Help: "Total reading cache misses observed.",
		}),
		sourceFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reading_source_fallbacks_total",
			Help: "Times the last good batch was served because the database failed.",
		}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "battery_analysis_duration_seconds",
			Help:    "Histogram of full-batch analysis durations.",
			Buckets: prometheus.DefBuckets,
		}),
		devicesByTier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "battery_devices",
			Help: "Devices per health tier in the last analysis.",
		}, []string{"tier"}),
		sitesNeedingVisit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battery_sites_needing_visit",
			Help: "Sites needing an on-site visit in the last analysis.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.readingsAccepted,
		m.readingsRejected,
		m.cacheHits,
		m.cacheMisses,
		m.sourceFallbacks,
		m.analysisDuration,
		m.devicesByTier,
		m.sitesNeedingVisit,
	)

	return m
}

// Registry exposes the underlying registry (for tests)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// GinMiddleware records request count and duration per route template
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReadingsIngested(accepted, rejected int) {
	if m == nil {
		return
	}
	m.readingsAccepted.Add(float64(accepted))
	m.readingsRejected.Add(float64(rejected))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) SourceFallback() {
	if m == nil {
		return
	}
	m.sourceFallbacks.Inc()
}

// AnalysisCompleted records the duration and tier totals of an analysis run
func (m *Metrics) AnalysisCompleted(duration time.Duration, result analysis.Result) {
	if m == nil {
		return
	}
	m.analysisDuration.Observe(duration.Seconds())
	m.devicesByTier.WithLabelValues(analysis.TierCritical.String()).Set(float64(result.Critical))
	m.devicesByTier.WithLabelValues(analysis.TierWarning.String()).Set(float64(result.Warning))
	m.devicesByTier.WithLabelValues(analysis.TierHealthy.String()).Set(float64(result.Healthy))
	m.devicesByTier.WithLabelValues(analysis.TierUnknown.String()).Set(float64(result.Unknown))
	m.sitesNeedingVisit.Set(float64(analysis.SitesNeedingVisits(result)))
}
