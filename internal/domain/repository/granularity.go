package repository

// Granularity represents the bar resolution a caller asked for.
type Granularity string

const (
	Daily    Granularity = "daily"
	Intraday Granularity = "intraday"
)

// IsValidGranularity returns true if g is a supported resolution.
func IsValidGranularity(g Granularity) bool {
	switch g {
	case Daily, Intraday:
		return true
	default:
		return false
	}
}

// DefaultGranularity returns the default resolution.
func DefaultGranularity() Granularity { return Daily }

// NormalizeGranularity converts raw string to a valid granularity (or default).
func NormalizeGranularity(s string) Granularity {
	if s == "" {
		return DefaultGranularity()
	}
	g := Granularity(s)
	if IsValidGranularity(g) {
		return g
	}
	return DefaultGranularity()
}
