package netclient

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy defines retry behaviour with capped exponential backoff.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// RateLimitMultiplier stretches the backoff for 429 responses that carry no Retry-After hint.
	RateLimitMultiplier int
	// MaxRetryAfter caps a server supplied Retry-After hint.
	MaxRetryAfter time.Duration
}

// DefaultPolicy returns 3 retries, 500ms base doubling per attempt, capped at 8s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:          3,
		BaseDelay:           500 * time.Millisecond,
		MaxDelay:            8 * time.Second,
		RateLimitMultiplier: 2,
		MaxRetryAfter:       60 * time.Second,
	}
}

// Backoff returns the delay before retry number attempt (zero based).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RateLimitBackoff honours a Retry-After header when present, otherwise it
// stretches the regular backoff.
func (p Policy) RateLimitBackoff(attempt int, header http.Header) time.Duration {
	if wait, ok := parseRetryAfter(header); ok {
		if p.MaxRetryAfter > 0 && wait > p.MaxRetryAfter {
			return p.MaxRetryAfter
		}
		return wait
	}
	mult := p.RateLimitMultiplier
	if mult < 1 {
		mult = 1
	}
	return p.Backoff(attempt) * time.Duration(mult)
}

func parseRetryAfter(header http.Header) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(v); err == nil {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}
	return 0, false
}

// retryableStatus reports whether a response status is a transient failure.
func retryableStatus(status int) bool {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// idempotent reports whether a method is safe to replay.
func idempotent(method string) bool {
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
