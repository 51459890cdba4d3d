package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jomei/notionapi"

	"notion2hexo/internal/netclient"
)

var (
	// ErrUnauthorized means the token is invalid or the page is not shared
	// with the integration.
	ErrUnauthorized = errors.New("notion: unauthorized")
	ErrNotFound     = errors.New("notion: page not found")
	ErrRateLimited  = errors.New("notion: rate limited")
)

// APIError is a Notion API error response. It matches the sentinel of its
// class through errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion api %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// IsFatal reports errors that retrying cannot fix.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound)
}

// apiError converts SDK errors into *APIError. Rate limiting that outlived
// the retries, whether reported by the transport or by the SDK, becomes
// ErrRateLimited; other network errors pass through.
func apiError(op string, err error) error {
	var nerr *notionapi.Error
	if errors.As(err, &nerr) {
		return fmt.Errorf("%s: %w", op, &APIError{Status: nerr.Status, Code: string(nerr.Code), Message: nerr.Message})
	}
	var rlErr *notionapi.RateLimitedError
	if errors.As(err, &rlErr) {
		return fmt.Errorf("%s: %w: %w", op, ErrRateLimited, rlErr)
	}
	var netErr *netclient.NetworkError
	if errors.As(err, &netErr) && netErr.Status == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %w", op, ErrRateLimited, netErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}
