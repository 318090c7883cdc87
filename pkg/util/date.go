package util

import (
	"strconv"
	"time"
)

// ParseTime tries the common date layouts used by upstream feeds:
// plain date, space-separated datetime, RFC3339, and unix seconds.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// DefaultWindow returns the trailing 365-day request window ending at now,
// aligned to calendar days.
func DefaultWindow(now time.Time) (time.Time, time.Time) {
	end := DayOf(now)
	return end.AddDate(0, 0, -365), end
}

// DayOf truncates a time to its calendar day in UTC.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDay renders a time as the wire date format.
func FormatDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
