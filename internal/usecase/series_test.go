package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/errs"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/cache"
)

type stubStore struct {
	bars    []models.Bar
	fuzzy   bool
	err     error
	fetches int
}

func (s *stubStore) FetchBars(ctx context.Context, symbol string, from, to time.Time, g domrepo.Granularity) (*domrepo.FetchResult, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return &domrepo.FetchResult{Bars: s.bars, Fuzzy: s.fuzzy}, nil
}
func (s *stubStore) StoreBars(ctx context.Context, bars []models.Bar) error { return nil }
func (s *stubStore) Health(ctx context.Context) error                       { return nil }
func (s *stubStore) Close() error                                           { return nil }

type stubFeed struct {
	bars    []models.Bar
	err     error
	fetches int
	lastGap [2]time.Time
}

func (f *stubFeed) FetchBars(ctx context.Context, symbol string, from, to time.Time, g domrepo.Granularity) ([]models.Bar, error) {
	f.fetches++
	f.lastGap = [2]time.Time{from, to}
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}
func (f *stubFeed) QuotaRemaining() int { return 42 }
func (f *stubFeed) Close() error        { return nil }

type stubOracle struct{}

func (stubOracle) Analyze(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (stubOracle) Close() error { return nil }

func managerWith(store *stubStore) *connection.Manager {
	m := connection.NewManager(
		func(cred *connection.ServiceCredential) (domrepo.ArchiveStore, error) { return store, nil },
		func(cred *connection.ServiceCredential) (connection.OracleAnalyzer, error) { return stubOracle{}, nil },
		"", "", nil,
	)
	_ = m.Connect(context.Background(), nil)
	return m
}

func testBar(d time.Time, close float64) models.Bar {
	return models.Bar{Symbol: "C9999.XDCE", Date: d, Open: close - 1, High: close + 1, Low: close - 2, Close: close, Volume: 10}
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
}

func TestGetSeriesArchiveOnly(t *testing.T) {
	store := &stubStore{bars: []models.Bar{
		testBar(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), 10),
		testBar(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), 11),
	}}
	feed := &stubFeed{}
	o := NewSeriesOrchestrator(managerWith(store), feed, WithSeriesClock(fixedNow))

	res, err := o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-01", "2025-03-15", domrepo.Daily)
	require.NoError(t, err)
	assert.Equal(t, models.SourceArchive, res.Source)
	assert.Len(t, res.Bars, 2)
	// archive covered through the end day, no live call
	assert.Equal(t, 0, feed.fetches)
}

func TestGetSeriesHybridGapTopUp(t *testing.T) {
	store := &stubStore{bars: []models.Bar{
		testBar(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), 10),
	}}
	feed := &stubFeed{bars: []models.Bar{
		testBar(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), 12),
	}}
	o := NewSeriesOrchestrator(managerWith(store), feed, WithSeriesClock(fixedNow))

	res, err := o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-01", "2025-03-15", domrepo.Daily)
	require.NoError(t, err)
	assert.Equal(t, models.SourceHybrid, res.Source)
	assert.Len(t, res.Bars, 2)

	// the live call only covers the gap, not the whole window
	assert.Equal(t, 1, feed.fetches)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), feed.lastGap[0])
}

func TestGetSeriesEmptyArchiveFallsToLive(t *testing.T) {
	store := &stubStore{}
	feed := &stubFeed{bars: []models.Bar{
		testBar(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), 14),
	}}
	o := NewSeriesOrchestrator(managerWith(store), feed, WithSeriesClock(fixedNow))

	res, err := o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-01", "2025-03-15", domrepo.Daily)
	require.NoError(t, err)
	assert.Equal(t, models.SourceLive, res.Source)
	assert.Len(t, res.Bars, 1)

	// empty archive widens the gap to the full window
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), feed.lastGap[0])
}

func TestGetSeriesDefaultWindow(t *testing.T) {
	store := &stubStore{}
	feed := &stubFeed{}
	o := NewSeriesOrchestrator(managerWith(store), feed, WithSeriesClock(fixedNow))

	_, err := o.GetSeries(context.Background(), "C9999.XDCE", "", "", domrepo.Daily)
	require.NoError(t, err)

	// empty archive: the live call spans the trailing-365-day default
	require.Equal(t, 1, feed.fetches)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), feed.lastGap[0])
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), feed.lastGap[1])
}

func TestGetSeriesDegradesOnArchiveError(t *testing.T) {
	store := &stubStore{err: errs.NewQueryError("archive", errors.New("connection reset"))}
	feed := &stubFeed{bars: []models.Bar{
		testBar(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), 12),
	}}
	m := managerWith(store)
	o := NewSeriesOrchestrator(m, feed, WithSeriesClock(fixedNow))

	res, err := o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-01", "2025-03-15", domrepo.Daily)
	require.NoError(t, err)
	assert.Equal(t, models.SourceLive, res.Source)
	assert.Contains(t, m.State().LastError, "connection reset")
}

func TestGetSeriesDegradesOnLiveError(t *testing.T) {
	store := &stubStore{bars: []models.Bar{
		testBar(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), 10),
	}}
	feed := &stubFeed{err: errs.ErrQuotaExhausted}
	o := NewSeriesOrchestrator(managerWith(store), feed, WithSeriesClock(fixedNow))

	res, err := o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-01", "2025-03-15", domrepo.Daily)
	require.NoError(t, err)
	assert.Equal(t, models.SourceArchive, res.Source)
	assert.Len(t, res.Bars, 1)
}

func TestGetSeriesNoData(t *testing.T) {
	store := &stubStore{}
	feed := &stubFeed{}
	o := NewSeriesOrchestrator(managerWith(store), feed, WithSeriesClock(fixedNow))

	res, err := o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-01", "2025-03-15", domrepo.Daily)
	require.NoError(t, err)
	assert.Equal(t, models.SourceNone, res.Source)
	assert.Empty(t, res.Bars)
}

func TestGetSeriesEmptySymbol(t *testing.T) {
	o := NewSeriesOrchestrator(managerWith(&stubStore{}), &stubFeed{}, WithSeriesClock(fixedNow))
	_, err := o.GetSeries(context.Background(), "   ", "", "", domrepo.Daily)
	assert.Error(t, err)
}

func TestGetSeriesCacheHitSkipsBackends(t *testing.T) {
	store := &stubStore{bars: []models.Bar{
		testBar(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), 11),
	}}
	feed := &stubFeed{}
	mem := cache.NewMemoryCache()
	o := NewSeriesOrchestrator(managerWith(store), feed,
		WithSeriesClock(fixedNow),
		WithSeriesCache(mem, time.Minute),
	)

	_, err := o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-01", "2025-03-15", domrepo.Daily)
	require.NoError(t, err)
	require.Equal(t, 1, store.fetches)

	res, err := o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-01", "2025-03-15", domrepo.Daily)
	require.NoError(t, err)
	assert.Equal(t, models.SourceArchive, res.Source)
	assert.Equal(t, 1, store.fetches)
}

func TestGetSeriesFuzzyPropagates(t *testing.T) {
	store := &stubStore{
		fuzzy: true,
		bars: []models.Bar{
			testBar(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), 11),
		},
	}
	o := NewSeriesOrchestrator(managerWith(store), &stubFeed{}, WithSeriesClock(fixedNow))

	res, err := o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-01", "2025-03-15", domrepo.Daily)
	require.NoError(t, err)
	assert.True(t, res.Fuzzy)
}

func TestGetSeriesIntradayEnqueuesBackfill(t *testing.T) {
	store := &stubStore{}
	liveBars := []models.Bar{
		testBar(time.Date(2025, 3, 15, 9, 31, 0, 0, time.UTC), 12),
		testBar(time.Date(2025, 3, 15, 9, 32, 0, 0, time.UTC), 13),
	}
	feed := &stubFeed{bars: liveBars}

	pub := &capturePublisher{}
	bp, err := NewBackfillProcessor(BackfillConfig{Backend: "kafka", BatchSize: 2, BatchTimeout: 10 * time.Millisecond}, pub, nil, nil, nil)
	require.NoError(t, err)
	bp.Start(context.Background())
	defer bp.Close()

	o := NewSeriesOrchestrator(managerWith(store), feed,
		WithSeriesClock(fixedNow),
		WithSeriesBackfill(bp),
	)

	_, err = o.GetSeries(context.Background(), "C9999.XDCE", "2025-03-15 09:30:00", "2025-03-15 10:00:00", domrepo.Intraday)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 10*time.Millisecond)
}
