package repository

import (
	"context"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
)

// FetchResult carries archive rows plus how the symbol was matched.
type FetchResult struct {
	Bars []models.Bar
	// Fuzzy is set when the exact symbol had no rows and the store fell
	// back to an instrument-root substring match.
	Fuzzy bool
}

// ArchiveStore reads and writes the cold columnar warehouse.
type ArchiveStore interface {
	FetchBars(ctx context.Context, symbol string, from, to time.Time, g Granularity) (*FetchResult, error)
	StoreBars(ctx context.Context, bars []models.Bar) error
	Health(ctx context.Context) error
	Close() error
}

// LiveFeed reads the session-authenticated realtime provider.
type LiveFeed interface {
	FetchBars(ctx context.Context, symbol string, from, to time.Time, g Granularity) ([]models.Bar, error)
	// QuotaRemaining reports how many live calls the current budget allows.
	QuotaRemaining() int
	Close() error
}

// BackfillPublisher hands gap-fill rows to the write path.
type BackfillPublisher interface {
	Publish(ctx context.Context, bars []models.Bar) error
	Close() error
}

// Metrics records operational counters for the fusion engine.
type Metrics interface {
	RecordSeriesRequest(source, granularity string)
	RecordError(backend, kind string)
	RecordRows(backend string, n int)
	RecordBackfill(route string, n int)
	RecordLastClose(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
