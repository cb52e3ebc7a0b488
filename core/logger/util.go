package logger

import (
	"strings"
	"time"
)

// Took is the time since start rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to the nearest millisecond; negative durations become 0.
func RoundMS(d time.Duration) time.Duration {
	return max(d, 0).Round(time.Millisecond)
}

// Preview joins at most limit values with ", " and reports how many were left out.
func Preview(values []string, limit int) (string, int) {
	limit = max(min(limit, len(values)), 0)
	return strings.Join(values[:limit], ", "), len(values) - limit
}
