// Package client provides the HTTP client used to reach the npm registry REST
// API when the npm CLI cannot answer. Requests go through a DNS-caching dialer
// and a per-host circuit breaker.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/dnscache"
)

const (
	DefaultTimeout          = 10 * time.Second
	DefaultUserAgent        = "pubcheck"
	DefaultBreakerThreshold = 5

	dnsRefreshInterval = 5 * time.Minute
)

var (
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream registry unavailable")
)

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsNotFound returns true if the error represents a 404 response.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is an HTTPError carrying a 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.IsNotFound()
}

// Client issues registry requests. The zero value is not usable; use NewClient.
type Client struct {
	http             *http.Client
	timeout          time.Duration
	userAgent        string
	maxRetries       int
	baseDelay        time.Duration
	breakerThreshold int64
	breakers         *hostBreakers

	stop      chan struct{}
	closeOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The DNS cache is not used then.
// The caller's client is never modified; WithTimeout applies to a copy.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithMaxRetries sets how often GetJSON retries rate-limited or 5xx responses.
// Head never retries.
func WithMaxRetries(n int) Option {
	return func(cl *Client) {
		cl.maxRetries = n
	}
}

// WithBaseDelay sets the base delay for exponential backoff between retries.
func WithBaseDelay(d time.Duration) Option {
	return func(cl *Client) {
		cl.baseDelay = d
	}
}

// WithBreakerThreshold sets how many consecutive failures trip a host's breaker.
func WithBreakerThreshold(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.breakerThreshold = int64(n)
		}
	}
}

// DefaultClient returns a client with a 10s timeout, no retries and a
// five-failure breaker per registry host.
func DefaultClient() *Client {
	return NewClient()
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		userAgent:        DefaultUserAgent,
		baseDelay:        500 * time.Millisecond,
		breakerThreshold: DefaultBreakerThreshold,
		stop:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breakers = newHostBreakers(c.breakerThreshold)

	switch {
	case c.http == nil:
		timeout := c.timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout, Transport: c.cachingTransport()}
	case c.timeout > 0:
		custom := *c.http
		custom.Timeout = c.timeout
		c.http = &custom
	}
	return c
}

// cachingTransport dials through a DNS cache refreshed until Close is called.
func (c *Client) cachingTransport() *http.Transport {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(dnsRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				resolver.Refresh(true)
			case <-c.stop:
				return
			}
		}
	}()

	dialer := &net.Dialer{
		Timeout:   DefaultTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
		},
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   DefaultTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Close stops the DNS refresher and drops idle connections.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.http.CloseIdleConnections()
	})
	return nil
}

// Head issues a HEAD request and returns the status code. A non-nil error is
// returned for transport failures, an open breaker, or any non-2xx status
// (as *HTTPError).
func (c *Client) Head(ctx context.Context, url string) (int, error) {
	status, _, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return status, err
	}
	if status < 200 || status > 299 {
		return status, &HTTPError{StatusCode: status, URL: url}
	}
	return status, nil
}

// GetBody fetches url and returns the body of a 2xx response.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with 10% jitter
			delay := c.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			delay += time.Duration(float64(delay) * (rand.Float64() * 0.1))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		status, body, err := c.do(ctx, http.MethodGet, url)
		if err == nil {
			switch {
			case status >= 200 && status <= 299:
				return body, nil
			case status == http.StatusTooManyRequests:
				err = fmt.Errorf("%w: %w", ErrRateLimited, &HTTPError{StatusCode: status, URL: url})
			default:
				return nil, &HTTPError{StatusCode: status, URL: url, Body: truncate(body, 1024)}
			}
		}

		lastErr = err
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
			continue
		}
		return nil, err
	}

	return nil, lastErr
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.GetBody(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// do performs one request through the host's breaker. Transport errors and
// 5xx responses count as breaker failures; other statuses are returned as-is.
func (c *Client) do(ctx context.Context, method, url string) (int, []byte, error) {
	host, breaker := c.breakers.forURL(url)
	if !breaker.Ready() {
		return 0, nil, fmt.Errorf("circuit breaker open for registry %s: %w", host, ErrUpstreamDown)
	}

	var (
		status int
		body   []byte
	)
	err := breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if method == http.MethodGet {
			req.Header.Set("Accept", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, url, err)
		}
		defer func() { _ = resp.Body.Close() }()

		status = resp.StatusCode
		if method != http.MethodHead {
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading %s: %w", url, err)
			}
		}
		if status >= 500 {
			return fmt.Errorf("%w: %w", ErrUpstreamDown, &HTTPError{StatusCode: status, URL: url})
		}
		return nil
	}, 0)
	if err != nil {
		return status, nil, err
	}
	return status, body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// UserAgent returns the User-Agent header sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// StatusCode extracts the HTTP status from err, or 0 when there is none.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
