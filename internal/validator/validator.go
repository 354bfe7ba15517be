package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/tools/timeparser"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid         bool
	RejectionReason string
}

// RawReading is a battery reading as received from a device feed.
// Fields are pointers so missing values can be told apart from zero values.
type RawReading struct {
	AcademyID    *float64 `json:"academyId"`
	BatteryLevel *float64 `json:"batteryLevel"`
	EmployeeID   *string  `json:"employeeId"`
	SerialNumber *string  `json:"serialNumber"`
	Timestamp    *string  `json:"timestamp"`
}

// DecodeRawReading decodes one reading object; type mismatches are returned as errors
func DecodeRawReading(data []byte) (RawReading, error) {
	var raw RawReading
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawReading{}, fmt.Errorf("malformed reading: %w", err)
	}
	return raw, nil
}

// Validator handles reading validation with configurable parameters
type Validator struct {
	futureSkewMinutes int
}

// NewValidator creates a new validator with the specified future skew tolerance
func NewValidator(futureSkewMinutes int) *Validator {
	return &Validator{
		futureSkewMinutes: futureSkewMinutes,
	}
}

func invalid(reason string) ValidationResult {
	return ValidationResult{IsValid: false, RejectionReason: reason}
}

// ValidateReading validates a single raw reading
func (v *Validator) ValidateReading(raw RawReading, receivedAt time.Time) (analysis.Reading, ValidationResult) {
	if raw.AcademyID == nil {
		return analysis.Reading{}, invalid("missing academy id")
	}
	siteID := *raw.AcademyID
	if siteID != math.Trunc(siteID) || siteID > math.MaxInt32 {
		return analysis.Reading{}, invalid(fmt.Sprintf("academy id %v is not an integer", siteID))
	}
	if siteID <= 0 {
		return analysis.Reading{}, invalid("missing academy id")
	}

	if raw.BatteryLevel == nil {
		return analysis.Reading{}, invalid("missing battery level")
	}
	level := *raw.BatteryLevel
	if math.IsNaN(level) || level < 0 || level > 1 {
		return analysis.Reading{}, invalid(fmt.Sprintf("battery level %v outside [0,1]", level))
	}

	if raw.EmployeeID == nil || strings.TrimSpace(*raw.EmployeeID) == "" {
		return analysis.Reading{}, invalid("empty employee id")
	}
	if raw.SerialNumber == nil || strings.TrimSpace(*raw.SerialNumber) == "" {
		return analysis.Reading{}, invalid("empty serial number")
	}

	if raw.Timestamp == nil {
		return analysis.Reading{}, invalid("missing timestamp")
	}
	readingTime, err := timeparser.ParseReadingTimestamp(*raw.Timestamp)
	if err != nil {
		return analysis.Reading{}, invalid(fmt.Sprintf("invalid timestamp format: %v", err))
	}

	reading := analysis.Reading{
		SiteID:     int(siteID),
		Level:      level,
		OperatorID: *raw.EmployeeID,
		Serial:     *raw.SerialNumber,
		Timestamp:  readingTime,
	}

	if !receivedAt.IsZero() && timeparser.IsAheadOf(readingTime, receivedAt, v.futureSkewMinutes) {
		return reading, invalid(fmt.Sprintf("timestamp more than %d minutes after receipt", v.futureSkewMinutes))
	}

	return reading, ValidationResult{IsValid: true}
}

// SanitizeReadings keeps only the valid readings of a raw batch
func (v *Validator) SanitizeReadings(raws []RawReading, receivedAt time.Time) []analysis.Reading {
	out := make([]analysis.Reading, 0, len(raws))
	for _, raw := range raws {
		reading, result := v.ValidateReading(raw, receivedAt)
		if result.IsValid {
			out = append(out, reading)
		}
	}
	return out
}
