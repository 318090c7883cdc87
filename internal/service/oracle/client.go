package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/errs"
	pkghttp "github.com/gonghuaze999-design/QuantAgrify/pkg/http"
	applogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"
)

// Client forwards analysis payloads to the upstream imagery oracle.
// Payloads and results are opaque JSON; this service only owns the
// transport and the bearer token.
type Client struct {
	http    *pkghttp.Client
	baseURL string
	token   string
	l       *applogger.Logger
}

// Option configures Client.
type Option func(*Client)

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.l = l }
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = pkghttp.NewClient(pkghttp.WithTimeout(d))
	}
}

// NewClient creates an oracle client. An empty baseURL is an error:
// the manager treats a failed factory as a degraded backend.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("oracle base url not configured")
	}
	c := &Client{
		http:    pkghttp.NewClient(pkghttp.WithTimeout(20 * time.Second)),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Analyze posts the payload upstream and returns the raw result.
func (c *Client) Analyze(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	start := time.Now()

	headers := map[string]string{"Content-Type": "application/json"}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	var out json.RawMessage
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodPost,
		URL:     c.baseURL + "/analyze",
		Headers: headers,
		Body:    []byte(payload),
	}, &out)
	if err != nil {
		if c.l != nil {
			c.l.Error("oracle analyze failed", applogger.Error(err))
		}
		return nil, errs.NewQueryError("oracle", err)
	}

	if c.l != nil {
		c.l.Info("oracle analyze ok",
			applogger.Int("bytes", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (c *Client) Close() error { return nil }
