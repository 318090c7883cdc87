package models

// SourceLabel names which backends contributed rows to a fused series.
type SourceLabel string

const (
	SourceArchive SourceLabel = "archive"
	SourceLive    SourceLabel = "live"
	SourceHybrid  SourceLabel = "hybrid"
	SourceNone    SourceLabel = "none"
)

// FusionResult is the outcome of merging archive and live rows for
// one request window.
type FusionResult struct {
	Bars   []Bar
	Source SourceLabel
	// Fuzzy marks that the archive matched by instrument root instead of
	// the exact symbol, so rows may mix contracts.
	Fuzzy bool
}

// Label derives the source label from per-backend contribution counts.
func Label(archiveRows, liveRows int) SourceLabel {
	switch {
	case archiveRows > 0 && liveRows > 0:
		return SourceHybrid
	case archiveRows > 0:
		return SourceArchive
	case liveRows > 0:
		return SourceLive
	default:
		return SourceNone
	}
}
