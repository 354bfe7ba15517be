package analysis_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bst = time.FixedZone("", 3600)

func at(hours float64) time.Time {
	base := time.Date(2019, 5, 17, 8, 0, 0, 0, bst)
	return base.Add(time.Duration(hours * float64(time.Hour)))
}

func reading(site int, serial string, level float64, hours float64) analysis.Reading {
	return analysis.Reading{
		SiteID:     site,
		Level:      level,
		OperatorID: "EMP-" + serial,
		Serial:     serial,
		Timestamp:  at(hours),
	}
}

// drainingDevice builds two readings whose daily rate equals rate over a 24h gap
func drainingDevice(site int, serial string, rate float64) []analysis.Reading {
	return []analysis.Reading{
		reading(site, serial, 1.0, 0),
		reading(site, serial, 1.0-rate, 24),
	}
}

func TestAnalyze_WeightedAverage(t *testing.T) {
	readings := []analysis.Reading{
		reading(30006, "DEVICE001", 1.0, 0),
		reading(30006, "DEVICE001", 0.9, 12),
		reading(30006, "DEVICE001", 0.8, 36),
		reading(30006, "DEVICE002", 1.0, 0),
		reading(30006, "DEVICE002", 0.95, 12),
	}

	result := analysis.Analyze(readings)

	require.Equal(t, 2, result.Devices)
	require.Len(t, result.Sites, 1)

	site := result.Sites[0]
	require.Len(t, site.Devices, 2)

	device := site.Devices[0]
	assert.Equal(t, "DEVICE001", device.Serial)
	assert.InDelta(t, 0.1333, device.DailyRate, 0.001)
	assert.Equal(t, analysis.TierHealthy, device.Tier)
	assert.Len(t, device.Readings, 3)
}

func TestEstimateDevice_ChargingExcluded(t *testing.T) {
	readings := []analysis.Reading{
		reading(1, "CHG", 1.0, 0),
		reading(1, "CHG", 0.5, 12),
		reading(1, "CHG", 1.0, 24),
		reading(1, "CHG", 0.9, 36),
	}

	device := analysis.EstimateDevice("CHG", readings)

	// only 1.0 -> 0.9 over the final 12h survives the recharge
	assert.InDelta(t, 0.2, device.DailyRate, 1e-9)
	assert.Equal(t, analysis.TierHealthy, device.Tier)
}

func TestEstimateDevice_ChargeAsLastInterval(t *testing.T) {
	readings := []analysis.Reading{
		reading(1, "CHG", 1.0, 0),
		reading(1, "CHG", 0.6, 12),
		reading(1, "CHG", 0.95, 18),
	}

	device := analysis.EstimateDevice("CHG", readings)

	assert.Equal(t, 0.0, device.DailyRate)
	assert.Equal(t, analysis.TierUnknown, device.Tier)
}

func TestEstimateDevice_ChargeIntervalDurationDropped(t *testing.T) {
	readings := []analysis.Reading{
		reading(1, "CHG", 0.5, 0),
		reading(1, "CHG", 1.0, 100),
		reading(1, "CHG", 0.9, 112),
	}

	device := analysis.EstimateDevice("CHG", readings)

	assert.InDelta(t, 0.2, device.DailyRate, 1e-9)
}

func TestEstimateDevice_AllIntervalsCharging(t *testing.T) {
	readings := []analysis.Reading{
		reading(1, "UP", 0.2, 0),
		reading(1, "UP", 0.6, 6),
		reading(1, "UP", 0.6, 12),
	}

	device := analysis.EstimateDevice("UP", readings)

	assert.Equal(t, 0.0, device.DailyRate)
	assert.Equal(t, analysis.TierUnknown, device.Tier)
	require.NotNil(t, device.LastReading)
	assert.Equal(t, at(12), device.LastReading.Timestamp)
}

func TestEstimateDevice_InsufficientReadings(t *testing.T) {
	single := analysis.EstimateDevice("ONE", []analysis.Reading{reading(7, "ONE", 0.4, 0)})
	assert.Equal(t, analysis.TierUnknown, single.Tier)
	assert.Equal(t, 0.0, single.DailyRate)
	require.NotNil(t, single.LastReading)
	assert.Equal(t, 7, single.SiteID)
	assert.Equal(t, "EMP-ONE", single.OperatorID)

	empty := analysis.EstimateDevice("NONE", nil)
	assert.Equal(t, analysis.TierUnknown, empty.Tier)
	assert.Equal(t, 0.0, empty.DailyRate)
	assert.Nil(t, empty.LastReading)
	assert.Equal(t, 0, empty.SiteID)
}

func TestEstimateDevice_SortsChronologicallyAndKeepsInput(t *testing.T) {
	readings := []analysis.Reading{
		{SiteID: 2, Level: 0.8, OperatorID: "LATE", Serial: "S", Timestamp: at(24)},
		{SiteID: 1, Level: 1.0, OperatorID: "EARLY", Serial: "S", Timestamp: at(0)},
	}

	device := analysis.EstimateDevice("S", readings)

	assert.Equal(t, 2, device.SiteID)
	assert.Equal(t, "LATE", device.OperatorID)
	assert.Equal(t, at(0), device.Readings[0].Timestamp)
	assert.InDelta(t, 0.2, device.DailyRate, 1e-9)
	assert.Equal(t, "LATE", readings[0].OperatorID, "input must not be reordered")
}

func TestEstimateDevice_OffsetsCompareByInstant(t *testing.T) {
	utc := time.Date(2019, 5, 17, 8, 0, 0, 0, time.UTC)
	// 10:00+01:00 is 09:00Z, one hour after the UTC reading
	plusOne := time.Date(2019, 5, 17, 10, 0, 0, 0, bst)

	readings := []analysis.Reading{
		{SiteID: 1, Level: 0.9, OperatorID: "B", Serial: "TZ", Timestamp: plusOne},
		{SiteID: 1, Level: 1.0, OperatorID: "A", Serial: "TZ", Timestamp: utc},
	}

	device := analysis.EstimateDevice("TZ", readings)

	assert.Equal(t, "B", device.OperatorID)
	assert.InDelta(t, 0.1*24, device.DailyRate, 1e-9)
}

func TestEstimateDevice_EqualTimestampsKeepInputOrder(t *testing.T) {
	readings := []analysis.Reading{
		{SiteID: 1, Level: 0.9, OperatorID: "FIRST", Serial: "EQ", Timestamp: at(0)},
		{SiteID: 1, Level: 0.8, OperatorID: "SECOND", Serial: "EQ", Timestamp: at(0)},
	}

	device := analysis.EstimateDevice("EQ", readings)

	assert.Equal(t, "SECOND", device.OperatorID)
	assert.Equal(t, "FIRST", device.Readings[0].OperatorID)
	// drained 0.1 over zero hours: no usable duration
	assert.Equal(t, analysis.TierUnknown, device.Tier)
}

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		rate float64
		want analysis.Tier
	}{
		{0, analysis.TierUnknown},
		{0.01, analysis.TierHealthy},
		{0.25, analysis.TierHealthy},
		{0.26, analysis.TierWarning},
		{0.30, analysis.TierWarning},
		{0.31, analysis.TierCritical},
		{1.5, analysis.TierCritical},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, analysis.Classify(tc.rate), "rate %v", tc.rate)
	}
}

func TestRankPriority(t *testing.T) {
	assert.Equal(t, analysis.PriorityHigh, analysis.RankPriority(2, 0))
	assert.Equal(t, analysis.PriorityHigh, analysis.RankPriority(5, 4))
	assert.Equal(t, analysis.PriorityMedium, analysis.RankPriority(1, 2))
	assert.Equal(t, analysis.PriorityMedium, analysis.RankPriority(1, 3))
	assert.Equal(t, analysis.PriorityMedium, analysis.RankPriority(0, 3))
	assert.Equal(t, analysis.PriorityLow, analysis.RankPriority(0, 2))
	assert.Equal(t, analysis.PriorityLow, analysis.RankPriority(0, 0))
}

func TestAnalyze_SitesSortedByCriticalCount(t *testing.T) {
	var readings []analysis.Reading
	readings = append(readings, drainingDevice(100, "A1", 0.5)...)
	readings = append(readings, drainingDevice(200, "B1", 0.5)...)
	readings = append(readings, drainingDevice(200, "B2", 0.4)...)

	result := analysis.Analyze(readings)

	require.Len(t, result.Sites, 2)
	assert.Equal(t, 200, result.Sites[0].SiteID)
	assert.Equal(t, 2, result.Sites[0].Critical)
	assert.Equal(t, analysis.PriorityHigh, result.Sites[0].Priority)
	assert.Equal(t, 100, result.Sites[1].SiteID)
	assert.Equal(t, analysis.PriorityMedium, result.Sites[1].Priority)
}

func TestAnalyze_EqualCriticalKeepsSerialOrder(t *testing.T) {
	var readings []analysis.Reading
	readings = append(readings, drainingDevice(300, "Z9", 0.1)...)
	readings = append(readings, drainingDevice(100, "M5", 0.1)...)
	readings = append(readings, drainingDevice(200, "A0", 0.1)...)

	result := analysis.Analyze(readings)

	require.Len(t, result.Sites, 3)
	assert.Equal(t, []int{200, 100, 300}, []int{
		result.Sites[0].SiteID, result.Sites[1].SiteID, result.Sites[2].SiteID,
	})
}

func TestAnalyze_MediumByWarnings(t *testing.T) {
	var readings []analysis.Reading
	readings = append(readings, drainingDevice(1, "W1", 0.27)...)
	readings = append(readings, drainingDevice(1, "W2", 0.28)...)
	readings = append(readings, drainingDevice(1, "W3", 0.29)...)
	readings = append(readings, drainingDevice(1, "C1", 0.5)...)

	result := analysis.Analyze(readings)

	require.Len(t, result.Sites, 1)
	site := result.Sites[0]
	assert.Equal(t, 1, site.Critical)
	assert.Equal(t, 3, site.Warning)
	assert.Equal(t, analysis.PriorityMedium, site.Priority)
}

func TestAnalyze_SiteZeroDroppedFromSites(t *testing.T) {
	readings := []analysis.Reading{
		reading(0, "ORPHAN", 1.0, 0),
		reading(0, "ORPHAN", 0.5, 24),
		reading(5, "HOMED", 1.0, 0),
	}

	result := analysis.Analyze(readings)

	assert.Equal(t, 2, result.Devices)
	assert.Equal(t, 1, result.Critical)
	assert.Equal(t, 1, result.Unknown)
	require.Len(t, result.Sites, 1)
	assert.Equal(t, 5, result.Sites[0].SiteID)
}

func TestAnalyze_EmptyBatch(t *testing.T) {
	result := analysis.Analyze(nil)

	assert.Equal(t, analysis.Totals{}, result.Totals)
	assert.NotNil(t, result.Sites)
	assert.Empty(t, result.Sites)
}

func TestAnalyze_CountsAreConsistent(t *testing.T) {
	var readings []analysis.Reading
	readings = append(readings, drainingDevice(1, "A", 0.5)...)
	readings = append(readings, drainingDevice(1, "B", 0.27)...)
	readings = append(readings, drainingDevice(2, "C", 0.1)...)
	readings = append(readings, reading(2, "D", 0.9, 0))
	readings = append(readings, drainingDevice(3, "E", 0.35)...)

	result := analysis.Analyze(readings)

	assert.Equal(t, 5, result.Devices)
	assert.Equal(t, result.Devices, result.Critical+result.Warning+result.Healthy+result.Unknown)
	for _, site := range result.Sites {
		assert.Equal(t, len(site.Devices), site.Critical+site.Warning+site.Healthy+site.Unknown)
	}
}

func TestAnalyze_IndependentOfInputOrder(t *testing.T) {
	var readings []analysis.Reading
	readings = append(readings, drainingDevice(1, "A", 0.5)...)
	readings = append(readings, drainingDevice(2, "B", 0.27)...)
	readings = append(readings, reading(2, "C", 1.0, 0), reading(2, "C", 0.7, 6), reading(2, "C", 0.9, 9))
	readings = append(readings, drainingDevice(3, "D", 0.35)...)

	reversed := make([]analysis.Reading, len(readings))
	for i, r := range readings {
		reversed[len(readings)-1-i] = r
	}

	first, err := json.Marshal(analysis.Analyze(readings))
	require.NoError(t, err)
	second, err := json.Marshal(analysis.Analyze(reversed))
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, first, second)
}

func TestResult_JSONShape(t *testing.T) {
	result := analysis.Analyze(drainingDevice(30006, "X", 0.5))

	body, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.EqualValues(t, 1, decoded["totalDevices"])
	assert.EqualValues(t, 1, decoded["totalCritical"])

	schools := decoded["schools"].([]any)
	school := schools[0].(map[string]any)
	assert.Equal(t, "medium", school["priority"])
	device := school["devices"].([]any)[0].(map[string]any)
	assert.Equal(t, "critical", device["status"])
	assert.Equal(t, "2019-05-17T08:00:00+01:00", device["readings"].([]any)[0].(map[string]any)["timestamp"])
}
