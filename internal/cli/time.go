package cli

import (
	"fmt"
	"math"
	"time"
)

// Accepted layouts for --after/--before values.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate converts a command-line date to a Unix timestamp, interpreted
// as UTC the way the recorder stores start_ts.
func parseDate(s string) (float64, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return float64(t.Unix()), nil
		}
	}
	return 0, fmt.Errorf("invalid date %q (expected YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", s)
}

// formatTS renders a recorder timestamp as a UTC datetime with second
// precision.
func formatTS(ts float64) string {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC().Format("2006-01-02 15:04:05")
}
