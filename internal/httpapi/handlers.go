package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/internal/export"
	"github.com/septivank/battery-drain-worker/internal/service"
	"github.com/septivank/battery-drain-worker/tools/timeparser"
	"go.uber.org/zap"
)

const (
	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type analysisResponse struct {
	analysis.Result
	Filter             analysis.SiteFilter `json:"filter"`
	SitesNeedingVisits int                 `json:"schoolsNeedingVisits"`
}

type readingsResponse struct {
	service.FetchResult
	Stats analysis.Totals `json:"stats"`
}

// GET /api/v1/analysis?filter=all|critical|needs-visits
func (s *Server) handleAnalysis(c *gin.Context) {
	filter, err := analysis.ParseSiteFilter(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	result, err := s.analyzer.Current(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	needing := analysis.SitesNeedingVisits(result)
	result.Sites = analysis.FilterSites(result, filter)

	c.JSON(http.StatusOK, analysisResponse{
		Result:             result,
		Filter:             filter,
		SitesNeedingVisits: needing,
	})
}

// POST /api/v1/analysis/run
func (s *Server) handleRunAnalysis(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	report, err := s.analyzer.Run(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GET /api/v1/analysis/sites/:site_id/devices?tier=
func (s *Server) handleSiteDevices(c *gin.Context) {
	siteID, err := strconv.Atoi(c.Param("site_id"))
	if err != nil || siteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site_id"})
		return
	}

	var tier *analysis.Tier
	if name := c.Query("tier"); name != "" {
		parsed, err := analysis.ParseTier(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tier = &parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	result, err := s.analyzer.Current(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	site, ok := analysis.FindSite(result, siteID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
		return
	}

	devices := site.Devices
	if tier != nil {
		devices = analysis.DevicesByTier(site, *tier)
	}

	c.JSON(http.StatusOK, gin.H{
		"academyId": site.SiteID,
		"priority":  site.Priority,
		"count":     len(devices),
		"devices":   devices,
	})
}

// GET /api/v1/readings
func (s *Server) handleListReadings(c *gin.Context) {
	opts, err := parseFetchOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	page, err := s.queries.FetchReadings(ctx, opts)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, readingsResponse{
		FetchResult: page,
		Stats:       service.PageStats(page.Data),
	})
}

// GET /api/v1/readings/latest?limit=
func (s *Server) handleLatestReadings(c *gin.Context) {
	limit, err := optionalInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	readings, err := s.queries.LatestReadings(ctx, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": readings, "count": len(readings)})
}

// GET /api/v1/devices/:serial/readings
func (s *Server) handleDeviceReadings(c *gin.Context) {
	serial := c.Param("serial")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	readings, err := s.queries.DeviceReadings(ctx, serial)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if len(readings) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"serialNumber": serial,
		"count":        len(readings),
		"data":         readings,
	})
}

// GET /api/v1/stats
func (s *Server) handleStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	stats, err := s.queries.Stats(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GET /api/v1/export/readings.csv
func (s *Server) handleExportReadings(c *gin.Context) {
	opts, err := parseFetchOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	readings, err := s.queries.ExportReadings(ctx, opts, s.opts.ExportLimit)
	if err != nil {
		s.writeError(c, err)
		return
	}

	body, err := export.ReadingsCSV(readings)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.attachment(c, export.ReadingsFilename(s.now()), csvContentType, body)
}

// GET /api/v1/export/stats.csv
func (s *Server) handleExportStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	stats, err := s.queries.Stats(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	body, err := export.StatsCSV(stats)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.attachment(c, export.StatsFilename(s.now()), csvContentType, body)
}

// GET /api/v1/export/analysis.xlsx
func (s *Server) handleExportAnalysis(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	result, err := s.analyzer.Current(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	body, err := export.AnalysisWorkbook(result)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.attachment(c, export.AnalysisFilename(s.now()), xlsxContentType, body)
}

func (s *Server) attachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, contentType, body)
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, export.ErrNoData):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseFetchOptions(c *gin.Context) (service.FetchOptions, error) {
	var (
		opts service.FetchOptions
		err  error
	)

	if opts.Page, err = optionalInt(c, "page"); err != nil {
		return opts, err
	}
	if opts.Limit, err = optionalInt(c, "limit"); err != nil {
		return opts, err
	}
	if opts.SiteID, err = optionalInt(c, "academy_id"); err != nil {
		return opts, err
	}
	opts.OperatorID = c.Query("employee_id")

	if opts.Start, err = optionalTime(c, "start"); err != nil {
		return opts, err
	}
	if opts.End, err = optionalTime(c, "end"); err != nil {
		return opts, err
	}
	if opts.MinLevel, err = optionalFloat(c, "min_level"); err != nil {
		return opts, err
	}
	if opts.MaxLevel, err = optionalFloat(c, "max_level"); err != nil {
		return opts, err
	}

	return opts, nil
}

func optionalInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func optionalFloat(c *gin.Context, key string) (*float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return nil, fmt.Errorf("invalid %s", key)
	}
	return &v, nil
}

func optionalTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := timeparser.ParseReadingTimestamp(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s timestamp", key)
	}
	return &t, nil
}
