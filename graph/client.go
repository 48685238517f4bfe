package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenSource supplies a valid bearer token before each attempt chain.
// Implemented by token.Manager.
type TokenSource interface {
	GetValidToken(ctx context.Context, forceRefresh bool) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
// Useful for tests and for page tokens managed out of band.
type StaticToken string

func (s StaticToken) GetValidToken(context.Context, bool) (string, error) {
	if s == "" {
		return "", errors.New("graph: static token is empty")
	}
	return string(s), nil
}

// Client issues calls against the remote fanpage API. All side-effecting
// operations share one retry discipline: rate-limit codes back off
// exponentially, code 190 forces a token refresh, anything else is terminal.
type Client struct {
	http    *http.Client
	baseURL string
	version string
	tokens  TokenSource
	logger  *slog.Logger

	// nap is the blocking sleep between attempts. Overridable in tests;
	// always respects context cancellation.
	nap func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The default has a 10s timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSleeper overrides the inter-attempt sleep. Tests use this to observe
// backoff without waiting.
func WithSleeper(nap func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.nap = nap }
}

// New creates a Client. baseURL is the API host (no trailing slash needed),
// version the API version path segment (e.g. "v24.0").
func New(baseURL, version string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		tokens:  tokens,
		logger:  slog.Default(),
		nap:     sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + c.version + "/" + strings.TrimLeft(path, "/")
}

// get performs a GET with params in the query string. On non-2xx the
// returned error is an *APIError; transport failures come back as-is.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, params)
}

// postForm performs a POST with params form-encoded in the body.
func (c *Client) postForm(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, params)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	var req *http.Request
	var err error

	switch method {
	case http.MethodGet:
		u := c.endpoint(path)
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, c.endpoint(path),
			strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("graph: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("graph: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// isTimeout reports whether err is a request timeout (client deadline or a
// net-level timeout), as opposed to a connection failure or API error.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Client.Timeout surfaces as a *url.Error whose Timeout() is true, so
	// the net.Error check covers both transport and client deadlines.
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
