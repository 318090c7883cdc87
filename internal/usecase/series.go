package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/errs"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	"github.com/gonghuaze999-design/QuantAgrify/internal/fusion"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/cache"
	applogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/util"
)

var errEmptySymbol = errors.New("symbol is empty")

// SeriesOrchestrator fuses archive and live rows for one request:
// archive first, gap detection, live top-up, freshness-preferring
// merge. Backend failures degrade the result instead of failing it;
// only the caller's input can produce an error here.
type SeriesOrchestrator struct {
	manager  *connection.Manager
	live     domrepo.LiveFeed
	backfill *BackfillProcessor
	cache    cache.Service
	cacheTTL time.Duration
	metrics  domrepo.Metrics
	l        *applogger.Logger
	now      func() time.Time
}

// SeriesOption configures optional collaborators.
type SeriesOption func(*SeriesOrchestrator)

// WithSeriesCache enables result caching.
func WithSeriesCache(c cache.Service, ttl time.Duration) SeriesOption {
	return func(o *SeriesOrchestrator) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithSeriesBackfill routes intraday gap fills back to the warehouse.
func WithSeriesBackfill(p *BackfillProcessor) SeriesOption {
	return func(o *SeriesOrchestrator) { o.backfill = p }
}

// WithSeriesLogger injects a structured logger.
func WithSeriesLogger(l *applogger.Logger) SeriesOption {
	return func(o *SeriesOrchestrator) { o.l = l }
}

// WithSeriesMetrics injects a metrics recorder.
func WithSeriesMetrics(m domrepo.Metrics) SeriesOption {
	return func(o *SeriesOrchestrator) { o.metrics = m }
}

// WithSeriesClock overrides the clock; tests pin the default window.
func WithSeriesClock(now func() time.Time) SeriesOption {
	return func(o *SeriesOrchestrator) { o.now = now }
}

func NewSeriesOrchestrator(manager *connection.Manager, live domrepo.LiveFeed, opts ...SeriesOption) *SeriesOrchestrator {
	o := &SeriesOrchestrator{
		manager: manager,
		live:    live,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type cachedSeries struct {
	Bars   []models.Bar       `json:"bars"`
	Source models.SourceLabel `json:"source"`
	Fuzzy  bool               `json:"fuzzy"`
}

// GetSeries resolves the request window and returns the fused series.
// Empty dates default to the trailing 365-day window.
func (o *SeriesOrchestrator) GetSeries(ctx context.Context, symbol, startDate, endDate string, g domrepo.Granularity) (*models.FusionResult, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, errs.NewQueryError("request", errEmptySymbol)
	}

	defFrom, defTo := util.DefaultWindow(o.now())
	from := util.ParseTimeDefault(startDate, defFrom)
	to := util.ParseTimeDefault(endDate, defTo)
	if to.Before(from) {
		from, to = to, from
	}

	key := cache.GenerateKeyWithParams("series", symbol, from.Unix(), to.Unix(), string(g))
	if o.cache != nil {
		var hit cachedSeries
		if err := o.cache.Get(ctx, key, &hit); err == nil {
			return &models.FusionResult{Bars: hit.Bars, Source: hit.Source, Fuzzy: hit.Fuzzy}, nil
		}
	}

	archiveBars, fuzzy := o.fetchArchive(ctx, symbol, from, to, g)

	var liveBars []models.Bar
	if gap, has := fusion.ComputeGap(archiveBars, from, to); has {
		liveBars = o.fetchLive(ctx, symbol, gap.From, gap.To, g)
	}

	res := fusion.Merge(archiveBars, liveBars)
	res.Fuzzy = fuzzy

	if g == domrepo.Intraday && len(liveBars) > 0 && o.backfill != nil {
		o.backfill.Enqueue(liveBars)
	}

	if o.metrics != nil {
		o.metrics.RecordSeriesRequest(string(res.Source), string(g))
		o.metrics.RecordRows("archive", len(archiveBars))
		o.metrics.RecordRows("live", len(liveBars))
		if n := len(res.Bars); n > 0 {
			o.metrics.RecordLastClose(symbol, res.Bars[n-1].Close)
		}
	}

	if o.cache != nil && res.Source != models.SourceNone {
		_ = o.cache.Set(ctx, key, cachedSeries{Bars: res.Bars, Source: res.Source, Fuzzy: res.Fuzzy}, o.cacheTTL)
	}

	return &res, nil
}

// InvalidateCache drops cached series. Hot-swapping credentials can
// point the engine at a different warehouse, so stale fusions must go.
func (o *SeriesOrchestrator) InvalidateCache(ctx context.Context) {
	if o.cache == nil {
		return
	}
	if err := o.cache.DeleteByPattern(ctx, cache.BuildPattern("series")); err != nil && o.l != nil {
		o.l.Warn("series cache invalidation failed", applogger.Error(err))
	}
}

// fetchArchive loads warehouse rows, degrading to empty on any backend
// failure. The failure still lands in state and metrics.
func (o *SeriesOrchestrator) fetchArchive(ctx context.Context, symbol string, from, to time.Time, g domrepo.Granularity) ([]models.Bar, bool) {
	store, err := o.manager.Warehouse()
	if err != nil {
		if o.l != nil {
			o.l.Warn("archive unavailable, serving live only",
				applogger.String("symbol", symbol),
			)
		}
		return nil, false
	}

	res, err := store.FetchBars(ctx, symbol, from, to, g)
	if err != nil {
		o.manager.RecordError(err)
		if o.l != nil {
			o.l.Error("archive fetch failed, degrading",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, false
	}
	return res.Bars, res.Fuzzy
}

// fetchLive tops up the gap, degrading to empty on quota, auth, or
// query failures. A stale-but-served series beats a failed request.
func (o *SeriesOrchestrator) fetchLive(ctx context.Context, symbol string, from, to time.Time, g domrepo.Granularity) []models.Bar {
	if o.live == nil {
		return nil
	}
	bars, err := o.live.FetchBars(ctx, symbol, from, to, g)
	if err != nil {
		o.manager.RecordError(err)
		if o.l != nil {
			o.l.Error("live fetch failed, degrading",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil
	}
	return bars
}
