package livefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/errs"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	"github.com/gonghuaze999-design/QuantAgrify/internal/service/ratelimit"
	pkghttp "github.com/gonghuaze999-design/QuantAgrify/pkg/http"
	applogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/util"
)

const limiterKey = "livefeed"

// Client speaks the session-token RPC protocol of the realtime
// provider: authenticate once, reuse the token across price calls,
// re-authenticate exactly once when the provider reports it expired.
type Client struct {
	http     *pkghttp.Client
	baseURL  string
	username string
	password string

	limiter     *ratelimit.Limiter
	quotaBurst  float64
	quotaRefill float64 // tokens per second

	mu    sync.Mutex
	token string
	gen   uint64 // bumped on every successful login

	l       *applogger.Logger
	metrics domrepo.Metrics
}

// Option configures Client.
type Option func(*Client)

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.l = l }
}

// WithMetrics injects a metrics recorder.
func WithMetrics(m domrepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithQuota sets the call budget: burst capacity and refill rate.
func WithQuota(burst int, refillEvery time.Duration) Option {
	return func(c *Client) {
		if burst > 0 {
			c.quotaBurst = float64(burst)
		}
		if refillEvery > 0 {
			c.quotaRefill = 1 / refillEvery.Seconds()
		}
	}
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = pkghttp.NewClient(pkghttp.WithTimeout(d))
	}
}

// NewClient creates a live feed client. No network traffic happens
// until the first fetch; the session is established lazily.
func NewClient(baseURL, username, password string, opts ...Option) *Client {
	c := &Client{
		http:        pkghttp.NewClient(pkghttp.WithTimeout(15 * time.Second)),
		baseURL:     strings.TrimRight(baseURL, "/"),
		username:    username,
		password:    password,
		limiter:     ratelimit.New(),
		quotaBurst:  60,
		quotaRefill: 1, // one call per second steady state
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Error   string `json:"error"`
}

type priceRequest struct {
	Token     string `json:"token"`
	Security  string `json:"security"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Frequency string `json:"frequency"`
}

type priceRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type priceResponse struct {
	Success bool       `json:"success"`
	Data    []priceRow `json:"data"`
	Error   string     `json:"error"`
}

type quotaRequest struct {
	Token string `json:"token"`
}

type quotaResponse struct {
	Success   bool `json:"success"`
	Remaining int  `json:"remaining"`
}

// FetchBars pulls bars for the window. The quota check runs before any
// network traffic and fails closed: an exhausted budget rejects the
// call rather than risking a provider-side lockout.
func (c *Client) FetchBars(ctx context.Context, symbol string, from, to time.Time, g domrepo.Granularity) ([]models.Bar, error) {
	if !c.limiter.Allow(limiterKey, c.quotaBurst, c.quotaRefill) {
		if c.metrics != nil {
			c.metrics.RecordError("live", "quota")
		}
		return nil, errs.ErrQuotaExhausted
	}

	token, gen, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := c.fetchPrices(ctx, token, symbol, from, to, g)
	if err != nil {
		// Any first-fetch failure forces a fresh login and exactly one
		// retry; the session may be stale in ways the provider does not
		// spell out. The generation counter coalesces concurrent
		// refreshes: only the first caller logs in again, the rest
		// reuse the fresh token.
		if c.l != nil {
			c.l.Warn("live fetch failed, forcing re-auth",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		token, err = c.reauth(ctx, gen)
		if err != nil {
			return nil, err
		}
		rows, err = c.fetchPrices(ctx, token, symbol, from, to, g)
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("live", "query")
		}
		if isSessionExpired(err) {
			// %v, not %w: after the one retry this is a query failure
			// and must not unwrap to an auth error
			return nil, errs.NewQueryError("live", fmt.Errorf("token rejected after re-auth: %v", err))
		}
		return nil, err
	}

	bars, dropped := c.decodeRows(symbol, rows, g)
	if dropped > 0 {
		if c.l != nil {
			c.l.Error("live feed returned malformed rows",
				applogger.String("symbol", symbol),
				applogger.Int("dropped", dropped),
			)
		}
		if c.metrics != nil {
			c.metrics.RecordError("live", "malformed")
		}
	}

	if c.l != nil {
		c.l.Info("live feed fetch ok",
			applogger.String("symbol", symbol),
			applogger.String("granularity", string(g)),
			applogger.Int("rows", len(bars)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	if c.metrics != nil {
		c.metrics.RecordLatency("live_fetch", time.Since(start).Seconds())
	}
	return bars, nil
}

// QuotaRemaining reports the local call budget. The provider-side
// quota is only visible through its own endpoint; this is the number
// of calls we will allow ourselves.
func (c *Client) QuotaRemaining() int {
	return c.limiter.Remaining(limiterKey, c.quotaBurst, c.quotaRefill)
}

// ProviderQuota asks the provider how many rows its own budget allows.
func (c *Client) ProviderQuota(ctx context.Context) (int, error) {
	token, _, err := c.session(ctx)
	if err != nil {
		return 0, err
	}
	var resp quotaResponse
	err = c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    c.baseURL + "/api/quota",
		Body:   quotaRequest{Token: token},
	}, &resp)
	if err != nil {
		return 0, errs.NewQueryError("live", fmt.Errorf("quota: %w", err))
	}
	return resp.Remaining, nil
}

func (c *Client) Close() error { return nil }

// session returns the current token, logging in if none exists yet.
// The returned generation identifies the token so callers can request
// a coalesced refresh when the provider rejects it.
func (c *Client) session(ctx context.Context) (string, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, c.gen, nil
	}
	if err := c.loginLocked(ctx); err != nil {
		return "", 0, err
	}
	return c.token, c.gen, nil
}

// reauth refreshes the session unless another caller already did.
func (c *Client) reauth(ctx context.Context, seenGen uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != seenGen && c.token != "" {
		return c.token, nil
	}
	c.token = ""
	if err := c.loginLocked(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

// loginLocked performs the auth call; c.mu must be held.
func (c *Client) loginLocked(ctx context.Context) error {
	if c.username == "" {
		return errs.NewAuthError("login", fmt.Errorf("no live feed credentials configured"))
	}

	var resp authResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    c.baseURL + "/api/auth",
		Body:   authRequest{Username: c.username, Password: c.password},
	}, &resp)
	if err != nil {
		return errs.NewAuthError("login", err)
	}
	if !resp.Success || resp.Token == "" {
		return errs.NewAuthError("login", fmt.Errorf("provider rejected login: %s", resp.Error))
	}

	c.token = resp.Token
	c.gen++
	if c.l != nil {
		c.l.Info("live feed session established",
			applogger.Uint64("generation", c.gen),
		)
	}
	return nil
}

func (c *Client) fetchPrices(ctx context.Context, token, symbol string, from, to time.Time, g domrepo.Granularity) ([]priceRow, error) {
	req := priceRequest{
		Token:     token,
		Security:  symbol,
		Frequency: "1d",
		StartDate: util.FormatDay(from),
		EndDate:   util.FormatDay(to),
	}
	if g == domrepo.Intraday {
		req.Frequency = "1m"
		req.StartDate = from.UTC().Format("2006-01-02 15:04:05")
		req.EndDate = to.UTC().Format("2006-01-02 15:04:05")
	}

	var resp priceResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    c.baseURL + "/api/price",
		Body:   req,
	}, &resp)
	if err != nil {
		return nil, errs.NewQueryError("live", err)
	}
	if !resp.Success {
		if looksLikeExpiredToken(resp.Error) {
			return nil, errs.NewAuthError("session", fmt.Errorf("provider: %s", resp.Error))
		}
		return nil, errs.NewQueryError("live", fmt.Errorf("provider: %s", resp.Error))
	}
	return resp.Data, nil
}

func (c *Client) decodeRows(symbol string, rows []priceRow, g domrepo.Granularity) ([]models.Bar, int) {
	bars := make([]models.Bar, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		ts, ok := util.ParseTime(r.Date)
		if !ok {
			dropped++
			continue
		}
		b := models.Bar{
			Symbol: symbol,
			Date:   ts,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
		if g == domrepo.Daily {
			b.Date = util.DayOf(b.Date)
		}
		if err := b.Validate(); err != nil {
			dropped++
			continue
		}
		bars = append(bars, b)
	}
	return bars, dropped
}

// isSessionExpired reports whether err is a provider-side token
// rejection, as opposed to a login failure or transport error.
func isSessionExpired(err error) bool {
	if err == nil {
		return false
	}
	var ae *errs.AuthError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Stage == "session"
}

func looksLikeExpiredToken(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "token") || strings.Contains(m, "expired") || strings.Contains(m, "auth")
}
