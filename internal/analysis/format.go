package analysis

import (
	"fmt"
	"time"
)

const displayDateLayout = "Jan 2, 2006, 03:04 PM"

// FormatPercentage renders a fraction as a percentage with one decimal, e.g. 0.1333 -> "13.3%"
func FormatPercentage(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// FormatDate renders a timestamp for display in its own offset
func FormatDate(t time.Time) string {
	return t.Format(displayDateLayout)
}
