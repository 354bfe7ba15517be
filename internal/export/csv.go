package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/tools/timeparser"
)

// ErrNoData is returned when there is nothing to export
var ErrNoData = errors.New("no data to export")

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ReadingsHeader is the header row of the readings export
var ReadingsHeader = []string{"Academy ID", "Employee ID", "Serial Number", "Battery Level", "Timestamp"}

// ReadingsFilename returns the download name of a readings export taken at t
func ReadingsFilename(t time.Time) string {
	return fmt.Sprintf("battery-data-%s.csv", timeparser.DateStamp(t))
}

// StatsFilename returns the download name of a stats export taken at t
func StatsFilename(t time.Time) string {
	return fmt.Sprintf("battery-stats-%s.csv", timeparser.DateStamp(t))
}

// ReadingsCSV renders readings as CSV, one row per reading in input order
func ReadingsCSV(readings []analysis.Reading) ([]byte, error) {
	if len(readings) == 0 {
		return nil, ErrNoData
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ReadingsHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range readings {
		record := []string{
			strconv.Itoa(r.SiteID),
			r.OperatorID,
			r.Serial,
			levelPercent(r.Level),
			r.Timestamp.Format(timestampLayout),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write reading %s: %w", r.Serial, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// StatsCSV renders the summary statistics as Metric,Value rows
func StatsCSV(stats analysis.ReadingStats) ([]byte, error) {
	rows := [][]string{
		{"Metric", "Value"},
		{"Total Devices", strconv.Itoa(stats.TotalDevices)},
		{"Average Battery Level", levelPercent(stats.AverageBatteryLevel)},
		{"Low Battery Count", strconv.Itoa(stats.LowBatteryCount)},
		{"Critical Battery Count", strconv.Itoa(stats.CriticalBatteryCount)},
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write stats csv: %w", err)
	}
	return buf.Bytes(), nil
}

func levelPercent(level float64) string {
	return fmt.Sprintf("%.2f%%", level*100)
}
