package analysis

import (
	"slices"
	"sort"
)

const (
	// LowLevel marks a reading as low battery
	LowLevel = 0.2
	// CriticalLevel marks a reading as critically low battery
	CriticalLevel = 0.1
)

// SiteStats aggregates the readings of one site
type SiteStats struct {
	Count    int     `json:"count"`
	AvgLevel float64 `json:"avgLevel"`
}

// ReadingStats summarises raw battery levels across a batch
type ReadingStats struct {
	TotalDevices         int               `json:"totalDevices"`
	AverageBatteryLevel  float64           `json:"averageBatteryLevel"`
	LowBatteryCount      int               `json:"lowBatteryCount"`
	CriticalBatteryCount int               `json:"criticalBatteryCount"`
	SiteStats            map[int]SiteStats `json:"academyStats"`
}

// Summarize computes level statistics over readings. An empty batch averages to 0.
func Summarize(readings []Reading) ReadingStats {
	stats := ReadingStats{SiteStats: map[int]SiteStats{}}

	serials := make(map[string]struct{})
	totals := make(map[int]float64)
	var sum float64

	for _, r := range readings {
		serials[r.Serial] = struct{}{}
		sum += r.Level
		if r.Level < LowLevel {
			stats.LowBatteryCount++
		}
		if r.Level < CriticalLevel {
			stats.CriticalBatteryCount++
		}

		site := stats.SiteStats[r.SiteID]
		site.Count++
		stats.SiteStats[r.SiteID] = site
		totals[r.SiteID] += r.Level
	}

	for id, site := range stats.SiteStats {
		site.AvgLevel = totals[id] / float64(site.Count)
		stats.SiteStats[id] = site
	}

	stats.TotalDevices = len(serials)
	if len(readings) > 0 {
		stats.AverageBatteryLevel = sum / float64(len(readings))
	}
	return stats
}

// LatestPerDevice returns each device's newest reading, newest first, at most limit entries
func LatestPerDevice(readings []Reading, limit int) []Reading {
	latest := make(map[string]Reading)
	for _, r := range readings {
		existing, ok := latest[r.Serial]
		if !ok || r.Timestamp.After(existing.Timestamp) {
			latest[r.Serial] = r
		}
	}

	out := make([]Reading, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	// serial order first so equal timestamps come out deterministically
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	slices.SortStableFunc(out, func(a, b Reading) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
