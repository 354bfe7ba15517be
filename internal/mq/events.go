package mq

import (
	"time"

	"github.com/septivank/battery-drain-worker/internal/analysis"
)

// ReadingsIngestedEvent is published after an ingest batch is committed
type ReadingsIngestedEvent struct {
	RequestID  string    `json:"request_id"`
	Source     string    `json:"source,omitempty"`
	Accepted   int       `json:"accepted"`
	Rejected   int       `json:"rejected"`
	ReceivedAt time.Time `json:"received_at"`
}

// AnalysisCompletedEvent summarises one analysis run
type AnalysisCompletedEvent struct {
	RunID              string          `json:"run_id"`
	CompletedAt        time.Time       `json:"completed_at"`
	Totals             analysis.Totals `json:"totals"`
	Sites              int             `json:"sites"`
	SitesNeedingVisits []int           `json:"sites_needing_visits"`
}

// SiteAttentionEvent flags a high priority site
type SiteAttentionEvent struct {
	RunID           string            `json:"run_id"`
	SiteID          int               `json:"academy_id"`
	Priority        analysis.Priority `json:"priority"`
	CriticalDevices int               `json:"critical_devices"`
	WarningDevices  int               `json:"warning_devices"`
	CriticalSerials []string          `json:"critical_serials"`
}
