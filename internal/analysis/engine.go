package analysis

import (
	"slices"
	"sort"
)

const (
	// CriticalRate is the daily drain above which a device is critical
	CriticalRate = 0.30
	// WarningRate is the daily drain above which a device needs watching
	WarningRate = 0.25

	// HighPriorityCritical is the critical device count that makes a site urgent
	HighPriorityCritical = 2
	// MediumPriorityWarning is the warning device count that raises a site to medium
	MediumPriorityWarning = 3

	hoursPerDay = 24
)

// Analyze runs the full pipeline over a batch of readings.
// The input slice is never modified.
func Analyze(readings []Reading) Result {
	groups := GroupByDevice(readings)

	serials := make([]string, 0, len(groups))
	for serial := range groups {
		serials = append(serials, serial)
	}
	sort.Strings(serials)

	devices := make([]DeviceRecord, 0, len(serials))
	for _, serial := range serials {
		devices = append(devices, EstimateDevice(serial, groups[serial]))
	}

	sites := AggregateSites(devices)
	slices.SortStableFunc(sites, func(a, b SiteRecord) int {
		return b.Critical - a.Critical
	})

	return Result{
		Sites:  sites,
		Totals: tally(devices),
	}
}

// GroupByDevice partitions readings by serial, keeping input order within each group
func GroupByDevice(readings []Reading) map[string][]Reading {
	groups := make(map[string][]Reading)
	for _, r := range readings {
		groups[r.Serial] = append(groups[r.Serial], r)
	}
	return groups
}

// EstimateDevice derives the drain rate and tier of one device from its readings
func EstimateDevice(serial string, readings []Reading) DeviceRecord {
	if len(readings) < 2 {
		record := DeviceRecord{
			Serial:   serial,
			Tier:     TierUnknown,
			Readings: slices.Clone(readings),
		}
		if len(readings) == 1 {
			last := readings[0]
			record.LastReading = &last
			record.SiteID = last.SiteID
			record.OperatorID = last.OperatorID
		}
		return record
	}

	sorted := slices.Clone(readings)
	slices.SortStableFunc(sorted, func(a, b Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	rate := DailyRate(sorted)
	last := sorted[len(sorted)-1]

	return DeviceRecord{
		Serial:      serial,
		Tier:        Classify(rate),
		DailyRate:   rate,
		LastReading: &last,
		Readings:    sorted,
		SiteID:      last.SiteID,
		OperatorID:  last.OperatorID,
	}
}

// DailyRate computes the time-weighted drain per 24h over chronologically sorted readings.
// An interval where the level stayed flat or rose is a charge event: it is dropped
// together with every interval before it, so only post-charge usage counts.
func DailyRate(sorted []Reading) float64 {
	var totalConsumption, totalHours float64
	for i := 0; i+1 < len(sorted); i++ {
		current, next := sorted[i], sorted[i+1]

		consumption := current.Level - next.Level
		if consumption <= 0 {
			totalConsumption, totalHours = 0, 0
			continue
		}

		totalConsumption += consumption
		totalHours += next.Timestamp.Sub(current.Timestamp).Hours()
	}

	if totalHours <= 0 {
		return 0
	}
	return totalConsumption / totalHours * hoursPerDay
}

// Classify maps a daily drain rate to a tier.
// A zero rate is unknown whether or not any drain interval existed.
func Classify(rate float64) Tier {
	switch {
	case rate == 0:
		return TierUnknown
	case rate > CriticalRate:
		return TierCritical
	case rate > WarningRate:
		return TierWarning
	default:
		return TierHealthy
	}
}

// AggregateSites groups devices by site in order of first appearance.
// Devices without a site are left out.
func AggregateSites(devices []DeviceRecord) []SiteRecord {
	index := make(map[int]int)
	var sites []SiteRecord

	for _, d := range devices {
		if d.SiteID == 0 {
			continue
		}
		i, ok := index[d.SiteID]
		if !ok {
			i = len(sites)
			index[d.SiteID] = i
			sites = append(sites, SiteRecord{SiteID: d.SiteID})
		}
		site := &sites[i]
		site.Devices = append(site.Devices, d)
		switch d.Tier {
		case TierCritical:
			site.Critical++
		case TierWarning:
			site.Warning++
		case TierHealthy:
			site.Healthy++
		case TierUnknown:
			site.Unknown++
		}
	}

	for i := range sites {
		sites[i].Priority = RankPriority(sites[i].Critical, sites[i].Warning)
	}
	if sites == nil {
		sites = []SiteRecord{}
	}
	return sites
}

// RankPriority derives a site priority from its critical and warning device counts
func RankPriority(critical, warning int) Priority {
	switch {
	case critical >= HighPriorityCritical:
		return PriorityHigh
	case critical == 1 || warning >= MediumPriorityWarning:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func tally(devices []DeviceRecord) Totals {
	totals := Totals{Devices: len(devices)}
	for _, d := range devices {
		switch d.Tier {
		case TierCritical:
			totals.Critical++
		case TierWarning:
			totals.Warning++
		case TierHealthy:
			totals.Healthy++
		case TierUnknown:
			totals.Unknown++
		}
	}
	return totals
}
