package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/errs"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
)

// fakeProvider emulates the session-token RPC surface: /api/auth hands
// out tokens, /api/price rejects stale ones.
type fakeProvider struct {
	mu         chan struct{}
	authCalls  int64
	priceCalls int64
	validToken string
	expireOnce bool // first price call reports an expired token
	glitchOnce bool // first price call fails without auth wording
	rows       []priceRow
}

func newFakeProvider(rows []priceRow) *fakeProvider {
	return &fakeProvider{validToken: "tok-1", rows: rows}
}

func (f *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&f.authCalls, 1)
		var req authRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username == "" {
			_ = json.NewEncoder(w).Encode(authResponse{Success: false, Error: "bad credentials"})
			return
		}
		token := "tok-" + string(rune('0'+n))
		f.validToken = token
		_ = json.NewEncoder(w).Encode(authResponse{Success: true, Token: token})
	})
	mux.HandleFunc("/api/price", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.priceCalls, 1)
		var req priceRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if f.expireOnce {
			f.expireOnce = false
			_ = json.NewEncoder(w).Encode(priceResponse{Success: false, Error: "token expired"})
			return
		}
		if f.glitchOnce {
			f.glitchOnce = false
			_ = json.NewEncoder(w).Encode(priceResponse{Success: false, Error: "internal snapshot unavailable"})
			return
		}
		if req.Token != f.validToken {
			_ = json.NewEncoder(w).Encode(priceResponse{Success: false, Error: "invalid token"})
			return
		}
		_ = json.NewEncoder(w).Encode(priceResponse{Success: true, Data: f.rows})
	})
	return mux
}

func sampleRows() []priceRow {
	return []priceRow{
		{Date: "2025-03-10", Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
		{Date: "2025-03-11", Open: 11, High: 13, Low: 10, Close: 12, Volume: 150},
	}
}

func window() (time.Time, time.Time) {
	return time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
}

func TestFetchBarsLazyLogin(t *testing.T) {
	fp := newFakeProvider(sampleRows())
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "user", "pass")
	from, to := window()

	bars, err := c.FetchBars(context.Background(), "C9999.XDCE", from, to, domrepo.Daily)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "C9999.XDCE", bars[0].Symbol)
	assert.Equal(t, 11.0, bars[0].Close)
	assert.EqualValues(t, 1, atomic.LoadInt64(&fp.authCalls))

	// session is reused across calls
	_, err = c.FetchBars(context.Background(), "C9999.XDCE", from, to, domrepo.Daily)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&fp.authCalls))
}

func TestFetchBarsReauthExactlyOnce(t *testing.T) {
	fp := newFakeProvider(sampleRows())
	fp.expireOnce = true
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "user", "pass")
	from, to := window()

	bars, err := c.FetchBars(context.Background(), "C9999.XDCE", from, to, domrepo.Daily)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	// one lazy login plus one forced re-auth
	assert.EqualValues(t, 2, atomic.LoadInt64(&fp.authCalls))
	// one rejected price call plus one retry
	assert.EqualValues(t, 2, atomic.LoadInt64(&fp.priceCalls))
}

func TestFetchBarsRetriesAnyFirstFailure(t *testing.T) {
	fp := newFakeProvider(sampleRows())
	fp.glitchOnce = true
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "user", "pass")
	from, to := window()

	// the first failure carries no auth wording; the retry still runs
	// behind a forced re-auth
	bars, err := c.FetchBars(context.Background(), "C9999.XDCE", from, to, domrepo.Daily)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.EqualValues(t, 2, atomic.LoadInt64(&fp.authCalls))
	assert.EqualValues(t, 2, atomic.LoadInt64(&fp.priceCalls))
}

func TestFetchBarsRejectedAfterReauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth":
			_ = json.NewEncoder(w).Encode(authResponse{Success: true, Token: "tok"})
		default:
			// every price call claims the token expired
			_ = json.NewEncoder(w).Encode(priceResponse{Success: false, Error: "token expired"})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user", "pass")
	from, to := window()

	_, err := c.FetchBars(context.Background(), "C9999.XDCE", from, to, domrepo.Daily)
	require.Error(t, err)
	// the post-retry failure is a query failure, not an auth one
	assert.True(t, errs.IsQuery(err))
	assert.False(t, errs.IsAuth(err))
	assert.Contains(t, err.Error(), "rejected after re-auth")
}

func TestFetchBarsNoCredentials(t *testing.T) {
	c := NewClient("http://localhost:1", "", "")
	from, to := window()

	_, err := c.FetchBars(context.Background(), "C9999.XDCE", from, to, domrepo.Daily)
	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))
}

func TestFetchBarsQuotaFailsClosed(t *testing.T) {
	fp := newFakeProvider(sampleRows())
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	// burst of one call, essentially no refill
	c := NewClient(srv.URL, "user", "pass", WithQuota(1, time.Hour))
	from, to := window()

	_, err := c.FetchBars(context.Background(), "C9999.XDCE", from, to, domrepo.Daily)
	require.NoError(t, err)

	calls := atomic.LoadInt64(&fp.priceCalls)
	_, err = c.FetchBars(context.Background(), "C9999.XDCE", from, to, domrepo.Daily)
	assert.ErrorIs(t, err, errs.ErrQuotaExhausted)
	// rejection happens before any network traffic
	assert.Equal(t, calls, atomic.LoadInt64(&fp.priceCalls))
	assert.Equal(t, 0, c.QuotaRemaining())
}

func TestFetchBarsDropsMalformedRows(t *testing.T) {
	rows := []priceRow{
		{Date: "2025-03-10", Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
		{Date: "not-a-date", Open: 10, High: 12, Low: 9, Close: 11, Volume: 100},
		{Date: "2025-03-11", Open: 11, High: 8, Low: 10, Close: 12, Volume: 100}, // high below open
		{Date: "2025-03-12", Open: 11, High: 13, Low: 10, Close: 12, Volume: -5}, // negative volume
	}
	fp := newFakeProvider(rows)
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	c := NewClient(srv.URL, "user", "pass")
	from, to := window()

	bars, err := c.FetchBars(context.Background(), "C9999.XDCE", from, to, domrepo.Daily)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}
