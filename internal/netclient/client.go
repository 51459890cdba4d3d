// Package netclient wraps outbound HTTP calls with mandatory timeouts and
// bounded, exponentially backed-off retries.
package netclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"notion2hexo/internal/logging"
)

const (
	// DefaultAPITimeout bounds a single document API attempt.
	DefaultAPITimeout = 15 * time.Second

	// DefaultImageTimeout bounds a single image download attempt.
	DefaultImageTimeout = 30 * time.Second

	// DefaultMaxBodyBytes limits how much of a response body is buffered.
	DefaultMaxBodyBytes = 64 << 20

	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// ErrNoTimeout is returned for requests that do not declare a timeout.
var ErrNoTimeout = errors.New("netclient: request has no timeout")

// Request describes one outbound call.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is a fully buffered HTTP response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Attempts int
}

// Client executes requests with the configured retry policy. It holds no
// mutable state between calls.
type Client struct {
	transport    http.RoundTripper
	policy       Policy
	logger       arbor.ILogger
	sleep        Sleeper
	maxBodyBytes int64
	userAgent    string
}

// Option configures the Client.
type Option func(*Client)

// WithTransport sets the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSleeper replaces the backoff wait, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// WithMaxBodyBytes sets the response body limit.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		c.maxBodyBytes = n
	}
}

// WithUserAgent sets the User-Agent sent when a request has none.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		transport:    http.DefaultTransport,
		policy:       DefaultPolicy(),
		logger:       logging.Discard(),
		sleep:        sleepContext,
		maxBodyBytes: DefaultMaxBodyBytes,
		userAgent:    defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the retry policy in use.
func (c *Client) Policy() Policy {
	return c.policy
}

// Do performs req. Transient failures (timeouts, connection errors, 408, 429,
// 5xx) of idempotent requests are retried; any other status is returned as is
// without consuming the retry budget.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpClient := &http.Client{Transport: c.transport}
	return c.execute(ctx, req, httpClient.Do)
}

// Get is a shorthand for an idempotent GET.
func (c *Client) Get(ctx context.Context, url string, header http.Header, timeout time.Duration) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: url, Header: header, Timeout: timeout})
}

type sendFunc func(*http.Request) (*http.Response, error)

func (c *Client) execute(ctx context.Context, req *Request, send sendFunc) (*Response, error) {
	if req.Timeout <= 0 {
		return nil, ErrNoTimeout
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	retries := 0
	if idempotent(method) {
		retries = c.policy.MaxRetries
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.attempt(ctx, method, req, send)
		var wait time.Duration

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			kind, transient := classify(err)
			if !transient {
				return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
			}
			if attempt >= retries {
				if retries > 0 {
					kind = KindExhaustedRetries
				}
				c.logger.Warn().
					Str("url", req.URL).
					Int("attempts", attempt+1).
					Err(err).
					Msg("Request failed")
				return nil, &NetworkError{Kind: kind, Method: method, URL: req.URL, Attempts: attempt + 1, Err: err}
			}
			wait = c.policy.Backoff(attempt)
			c.logger.Debug().
				Str("url", req.URL).
				Int("attempt", attempt+1).
				Err(err).
				Str("backoff", wait.String()).
				Msg("Retrying after transport error")

		case retryableStatus(resp.Status):
			if retries == 0 {
				resp.Attempts = attempt + 1
				return resp, nil
			}
			if attempt >= retries {
				c.logger.Warn().
					Str("url", req.URL).
					Int("attempts", attempt+1).
					Int("status_code", resp.Status).
					Msg("All retry attempts exhausted")
				return nil, &NetworkError{
					Kind:     KindExhaustedRetries,
					Method:   method,
					URL:      req.URL,
					Attempts: attempt + 1,
					Status:   resp.Status,
					Err:      fmt.Errorf("status %d: %s", resp.Status, truncate(resp.Body, 200)),
				}
			}
			if resp.Status == http.StatusTooManyRequests {
				wait = c.policy.RateLimitBackoff(attempt, resp.Header)
			} else {
				wait = c.policy.Backoff(attempt)
			}
			c.logger.Debug().
				Str("url", req.URL).
				Int("attempt", attempt+1).
				Int("status_code", resp.Status).
				Str("backoff", wait.String()).
				Msg("Retrying after backoff")

		default:
			resp.Attempts = attempt + 1
			return resp, nil
		}

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *Client) attempt(ctx context.Context, method string, req *Request, send sendFunc) (*Response, error) {
	actx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(actx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("User-Agent") == "" && c.userAgent != "" {
		hreq.Header.Set("User-Agent", c.userAgent)
	}

	hresp, err := send(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", c.maxBodyBytes)
	}

	return &Response{Status: hresp.StatusCode, Header: hresp.Header, Body: data}, nil
}

// Retry runs op until it succeeds, returns a Permanent error, or the retry
// budget is spent. Every attempt gets its own timeout.
func (c *Client) Retry(ctx context.Context, name string, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return ErrNoTimeout
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		err := op(actx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isPermanent(err) {
			return err
		}
		if attempt >= c.policy.MaxRetries {
			return &NetworkError{Kind: KindExhaustedRetries, Method: name, Attempts: attempt + 1, Err: err}
		}
		wait := c.policy.Backoff(attempt)
		c.logger.Debug().
			Str("operation", name).
			Int("attempt", attempt+1).
			Err(err).
			Str("backoff", wait.String()).
			Msg("Retrying operation")
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
