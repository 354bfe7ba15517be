package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/internal/observability"
	"github.com/septivank/battery-drain-worker/internal/service"
	"go.uber.org/zap"
)

// ReadingQueries answers the read-side reading endpoints
type ReadingQueries interface {
	FetchReadings(ctx context.Context, opts service.FetchOptions) (service.FetchResult, error)
	ExportReadings(ctx context.Context, opts service.FetchOptions, limit int) ([]analysis.Reading, error)
	Stats(ctx context.Context) (analysis.ReadingStats, error)
	DeviceReadings(ctx context.Context, serial string) ([]analysis.Reading, error)
	LatestReadings(ctx context.Context, limit int) ([]analysis.Reading, error)
}

// Analyzer runs the drain analysis
type Analyzer interface {
	Current(ctx context.Context) (analysis.Result, error)
	Run(ctx context.Context) (service.RunReport, error)
}

// Options configures the HTTP server
type Options struct {
	Addr        string
	BearerToken string
	// ExportLimit keeps only the newest matching readings in a CSV export; 0 exports all
	ExportLimit int
}

// Server bundles router and dependencies for the REST API
type Server struct {
	opts     Options
	queries  ReadingQueries
	analyzer Analyzer
	metrics  *observability.Metrics
	logger   *zap.Logger
	engine   *gin.Engine
	srv      *http.Server
	now      func() time.Time
}

// New constructs a server with routes and middleware
func New(opts Options, queries ReadingQueries, analyzer Analyzer, metrics *observability.Metrics, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(metrics.GinMiddleware())
	engine.Use(corsMiddleware())

	s := &Server{
		opts:     opts,
		queries:  queries,
		analyzer: analyzer,
		metrics:  metrics,
		logger:   logger,
		engine:   engine,
		now:      time.Now,
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start begins serving in the background
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped unexpectedly", zap.Error(err))
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", s.opts.Addr))
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.engine.Group("/api/v1")
	if s.opts.BearerToken != "" {
		v1.Use(bearerAuthMiddleware(s.opts.BearerToken))
	}

	v1.GET("/analysis", s.handleAnalysis)
	v1.POST("/analysis/run", s.handleRunAnalysis)
	v1.GET("/analysis/sites/:site_id/devices", s.handleSiteDevices)

	v1.GET("/readings", s.handleListReadings)
	v1.GET("/readings/latest", s.handleLatestReadings)
	v1.GET("/devices/:serial/readings", s.handleDeviceReadings)
	v1.GET("/stats", s.handleStats)

	v1.GET("/export/readings.csv", s.handleExportReadings)
	v1.GET("/export/stats.csv", s.handleExportStats)
	v1.GET("/export/analysis.xlsx", s.handleExportAnalysis)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
