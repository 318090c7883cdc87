package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/errs"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	pkgch "github.com/gonghuaze999-design/QuantAgrify/pkg/clickhouse"
	applogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/util"
)

// WarehouseStore implements ArchiveStore backed by the ClickHouse
// minute table. Daily bars are aggregated from minute rows at query
// time; intraday reads return raw minute rows under a hard cap.
type WarehouseStore struct {
	client       *pkgch.Client
	db           *sql.DB
	table        string
	intradayCap  int
	rootFallback bool
	l            *applogger.Logger
	metrics      domrepo.Metrics
}

// WarehouseStoreOption configures optional collaborators.
type WarehouseStoreOption func(*WarehouseStore)

// WithWarehouseLogger injects a structured logger.
func WithWarehouseLogger(l *applogger.Logger) WarehouseStoreOption {
	return func(s *WarehouseStore) { s.l = l }
}

// WithWarehouseMetrics injects a metrics recorder.
func WithWarehouseMetrics(m domrepo.Metrics) WarehouseStoreOption {
	return func(s *WarehouseStore) { s.metrics = m }
}

// WithRootFallback enables the instrument-root substring retry when the
// exact symbol has no rows. Off by default: root matches can mix
// contracts and callers must opt in.
func WithRootFallback(enabled bool) WarehouseStoreOption {
	return func(s *WarehouseStore) { s.rootFallback = enabled }
}

func NewWarehouseStore(ch *pkgch.Client, table string, intradayCap int, opts ...WarehouseStoreOption) *WarehouseStore {
	if intradayCap <= 0 {
		intradayCap = 50000
	}
	s := &WarehouseStore{
		client:      ch,
		db:          ch.DB(),
		table:       table,
		intradayCap: intradayCap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WarehouseStore) FetchBars(ctx context.Context, symbol string, from, to time.Time, g domrepo.Granularity) (*domrepo.FetchResult, error) {
	start := time.Now()

	bars, err := s.query(ctx, "symbol = ?", symbol, from, to, g)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("archive", "query")
		}
		return nil, errs.NewQueryError("archive", err)
	}

	fuzzy := false
	if len(bars) == 0 && s.rootFallback {
		if root := util.ContractRoot(symbol); root != symbol {
			bars, err = s.query(ctx, "symbol LIKE ?", "%"+root+"%", from, to, g)
			if err != nil {
				if s.metrics != nil {
					s.metrics.RecordError("archive", "query")
				}
				return nil, errs.NewQueryError("archive", err)
			}
			fuzzy = len(bars) > 0
			if fuzzy && s.l != nil {
				// root matches can mix contracts sharing the prefix
				s.l.Warn("warehouse root fallback matched",
					applogger.String("symbol", symbol),
					applogger.String("root", root),
					applogger.Int("rows", len(bars)),
				)
			}
		}
	}

	bars, dropped := dropMalformed(bars)
	if dropped > 0 {
		if s.l != nil {
			s.l.Error("warehouse returned malformed rows",
				applogger.String("symbol", symbol),
				applogger.Int("dropped", dropped),
			)
		}
		if s.metrics != nil {
			s.metrics.RecordError("archive", "malformed")
		}
	}

	if s.l != nil {
		s.l.Info("warehouse fetch ok",
			applogger.String("symbol", symbol),
			applogger.String("granularity", string(g)),
			applogger.Int("rows", len(bars)),
			applogger.Bool("fuzzy", fuzzy),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	if s.metrics != nil {
		s.metrics.RecordLatency("warehouse_fetch", time.Since(start).Seconds())
	}
	return &domrepo.FetchResult{Bars: bars, Fuzzy: fuzzy}, nil
}

func (s *WarehouseStore) query(ctx context.Context, predicate string, symbolArg interface{}, from, to time.Time, g domrepo.Granularity) ([]models.Bar, error) {
	if g == domrepo.Daily {
		return s.queryDaily(ctx, predicate, symbolArg, from, to)
	}
	return s.queryIntraday(ctx, predicate, symbolArg, from, to)
}

// queryDaily folds minute rows into daily bars: first open, session
// extremes, last close, summed volume. Uncapped; one row per day
// bounds the result size already.
func (s *WarehouseStore) queryDaily(ctx context.Context, predicate string, symbolArg interface{}, from, to time.Time) ([]models.Bar, error) {
	q := fmt.Sprintf(`
        SELECT
            toDate(ts)        AS day,
            any(symbol)       AS symbol,
            argMin(open, ts)  AS open,
            max(high)         AS high,
            min(low)          AS low,
            argMax(close, ts) AS close,
            sum(volume)       AS volume
        FROM %s
        WHERE %s AND ts >= ? AND ts <= ?
        GROUP BY day
        ORDER BY day ASC
    `, s.table, predicate)

	rows, err := s.db.QueryContext(ctx, q, symbolArg, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 512)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan daily bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *WarehouseStore) queryIntraday(ctx context.Context, predicate string, symbolArg interface{}, from, to time.Time) ([]models.Bar, error) {
	q := fmt.Sprintf(`
        SELECT ts, symbol, open, high, low, close, volume
        FROM %s
        WHERE %s AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
        LIMIT ?
    `, s.table, predicate)

	rows, err := s.db.QueryContext(ctx, q, symbolArg, from, to, s.intradayCap)
	if err != nil {
		return nil, fmt.Errorf("intraday query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 4096)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan intraday bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(out) == s.intradayCap && s.l != nil {
		s.l.Warn("intraday result hit row cap",
			applogger.Int("cap", s.intradayCap),
		)
	}
	return out, nil
}

// StoreBars writes minute bars back to the warehouse. Used by the
// backfill path; daily bars never land here since the table is
// minute-grained.
func (s *WarehouseStore) StoreBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	// Chunk size tuned to 2000 rows per batch.
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, b := range bars[start:end] {
			if b.Symbol == "" || b.Date.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.Date, b.Symbol, b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return errs.NewQueryError("archive", fmt.Errorf("store bars: %w", err))
		}
	}
	return nil
}

func (s *WarehouseStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *WarehouseStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// dropMalformed filters out bars that fail validation, keeping order.
func dropMalformed(bars []models.Bar) ([]models.Bar, int) {
	out := bars[:0]
	dropped := 0
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			dropped++
			continue
		}
		out = append(out, bars[i])
	}
	return out, dropped
}
