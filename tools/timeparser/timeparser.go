package timeparser

import (
	"fmt"
	"time"
)

// readingFormats are the ISO-8601 layouts accepted from device feeds; all carry a UTC offset
var readingFormats = []string{
	time.RFC3339Nano,                // 2019-05-17T07:47:25.833+01:00
	"2006-01-02T15:04:05.000Z0700", // 2019-05-17T07:47:25.833+0100
	"2006-01-02T15:04:05Z0700",     // 2019-05-17T07:47:25+0100
	"2006-01-02 15:04:05Z07:00",    // space separated
}

// ParseReadingTimestamp parses a device timestamp, keeping its embedded offset
func ParseReadingTimestamp(value string) (time.Time, error) {
	var lastErr error
	for _, format := range readingFormats {
		t, err := time.Parse(format, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", value, lastErr)
}

// IsAheadOf reports whether readingTime lies more than skewMinutes after receivedTime.
// A non-positive skew disables the check.
func IsAheadOf(readingTime, receivedTime time.Time, skewMinutes int) bool {
	if skewMinutes <= 0 {
		return false
	}
	return readingTime.Sub(receivedTime) > time.Duration(skewMinutes)*time.Minute
}

// DateStamp renders the calendar date used in export file names
func DateStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
