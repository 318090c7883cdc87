package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	"github.com/gonghuaze999-design/QuantAgrify/internal/usecase"
	xlogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"
)

type fixedStore struct {
	bars []models.Bar
}

func (s *fixedStore) FetchBars(ctx context.Context, symbol string, from, to time.Time, g domrepo.Granularity) (*domrepo.FetchResult, error) {
	return &domrepo.FetchResult{Bars: s.bars}, nil
}
func (s *fixedStore) StoreBars(ctx context.Context, bars []models.Bar) error { return nil }
func (s *fixedStore) Health(ctx context.Context) error                       { return nil }
func (s *fixedStore) Close() error                                           { return nil }

type emptyFeed struct{}

func (emptyFeed) FetchBars(ctx context.Context, symbol string, from, to time.Time, g domrepo.Granularity) ([]models.Bar, error) {
	return nil, nil
}
func (emptyFeed) QuotaRemaining() int { return 7 }
func (emptyFeed) Close() error        { return nil }

type okOracle struct{}

func (okOracle) Analyze(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"verdict":"bullish"}`), nil
}
func (okOracle) Close() error { return nil }

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func setup(t *testing.T, store *fixedStore, withOracle bool) *echo.Echo {
	t.Helper()
	var of connection.OracleFactory
	if withOracle {
		of = func(cred *connection.ServiceCredential) (connection.OracleAnalyzer, error) { return okOracle{}, nil }
	}
	m := connection.NewManager(
		func(cred *connection.ServiceCredential) (domrepo.ArchiveStore, error) { return store, nil },
		of, "", "", nil,
	)
	require.NoError(t, m.Connect(context.Background(), nil))

	feed := emptyFeed{}
	o := usecase.NewSeriesOrchestrator(m, feed,
		usecase.WithSeriesClock(func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }),
	)

	h := NewSeriesHandler(testLogger(t), m, o, feed)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSeriesEndpointSuccess(t *testing.T) {
	store := &fixedStore{bars: []models.Bar{
		{Symbol: "C9999.XDCE", Date: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
	}}
	e := setup(t, store, true)

	rec := post(e, "/api/series", `{"symbol":"C9999.XDCE","start_date":"2025-03-01","end_date":"2025-03-15"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.SeriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, models.SourceArchive, resp.Source)
	assert.Equal(t, 1, resp.Rows)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "2025-03-15", resp.Data[0].Date)
	assert.Equal(t, 11.0, resp.Data[0].Close)
}

func TestSeriesEndpointMissingSymbol(t *testing.T) {
	e := setup(t, &fixedStore{}, true)

	rec := post(e, "/api/series", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.SeriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestSeriesEndpointNoData(t *testing.T) {
	e := setup(t, &fixedStore{}, true)

	rec := post(e, "/api/series", `{"symbol":"ZZ0000.NONE"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.SeriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "no data found")
}

func TestSeriesEndpointBadCredentials(t *testing.T) {
	e := setup(t, &fixedStore{}, true)

	rec := post(e, "/api/series", `{"symbol":"C9999.XDCE","credentials":{"host":"x"}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSeriesEndpointHotSwap(t *testing.T) {
	store := &fixedStore{bars: []models.Bar{
		{Symbol: "C9999.XDCE", Date: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
	}}
	e := setup(t, store, true)

	rec := post(e, "/api/series", `{"symbol":"C9999.XDCE","credentials":{"project_id":"proj-x"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// subsequent status reflects the swapped project
	st := post(e, "/api/status", `{}`)
	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(st.Body.Bytes(), &status))
	assert.Equal(t, "proj-x", status.ActiveProject)
	assert.Equal(t, "request", status.ResolvedFrom)
}

func TestStatusEndpoint(t *testing.T) {
	e := setup(t, &fixedStore{}, true)

	rec := post(e, "/api/status", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.WarehouseReady)
	assert.True(t, resp.OracleReady)
	assert.Equal(t, 7, resp.QuotaRemaining)
}

func TestOracleAnalyzeNotReady(t *testing.T) {
	e := setup(t, &fixedStore{}, false)

	rec := post(e, "/api/oracle/analyze", `{"payload":{"tiles":["a1"]}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOracleAnalyzePassthrough(t *testing.T) {
	e := setup(t, &fixedStore{}, true)

	rec := post(e, "/api/oracle/analyze", `{"payload":{"tiles":["a1"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"verdict":"bullish"}`, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	e := setup(t, &fixedStore{}, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
