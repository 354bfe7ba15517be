package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/tools/timeparser"
	"github.com/xuri/excelize/v2"
)

const (
	SitesSheet   = "Sites"
	DevicesSheet = "Devices"
)

var sitesHeader = []string{"Academy ID", "Priority", "Devices", "Critical", "Warning", "Healthy", "Unknown"}

var devicesHeader = []string{"Academy ID", "Serial Number", "Employee ID", "Status", "Daily Usage", "Readings", "Last Battery Level", "Last Reading"}

// AnalysisFilename returns the download name of an analysis workbook taken at t
func AnalysisFilename(t time.Time) string {
	return fmt.Sprintf("battery-analysis-%s.xlsx", timeparser.DateStamp(t))
}

// AnalysisWorkbook renders an analysis result as an XLSX workbook with
// one row per site (in ranking order) and one row per device
func AnalysisWorkbook(result analysis.Result) ([]byte, error) {
	if len(result.Sites) == 0 {
		return nil, ErrNoData
	}

	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(SitesSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(DevicesSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}
	// sheet indexes shift once the default sheet is gone
	index, err := f.GetSheetIndex(SitesSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to locate sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeHeader(f, SitesSheet, sitesHeader, headerStyle); err != nil {
		return nil, err
	}
	if err := writeHeader(f, DevicesSheet, devicesHeader, headerStyle); err != nil {
		return nil, err
	}

	deviceRow := 2
	for i, site := range result.Sites {
		values := []any{
			site.SiteID,
			site.Priority.String(),
			len(site.Devices),
			site.Critical,
			site.Warning,
			site.Healthy,
			site.Unknown,
		}
		if err := writeRow(f, SitesSheet, i+2, values); err != nil {
			return nil, err
		}

		for _, device := range site.Devices {
			if err := writeRow(f, DevicesSheet, deviceRow, deviceValues(site.SiteID, device)); err != nil {
				return nil, err
			}
			deviceRow++
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func deviceValues(siteID int, device analysis.DeviceRecord) []any {
	usage := "n/a"
	if device.Tier != analysis.TierUnknown {
		usage = analysis.FormatPercentage(device.DailyRate) + "/day"
	}

	lastLevel, lastSeen := "", ""
	if device.LastReading != nil {
		lastLevel = analysis.FormatPercentage(device.LastReading.Level)
		lastSeen = analysis.FormatDate(device.LastReading.Timestamp)
	}

	return []any{
		siteID,
		device.Serial,
		device.OperatorID,
		device.Tier.String(),
		usage,
		len(device.Readings),
		lastLevel,
		lastSeen,
	}
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := writeRow(f, sheet, 1, values); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
