package netclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrorKind classifies a failed network call.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota + 1
	KindConnectionRefused
	KindExhaustedRetries
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection refused"
	case KindExhaustedRetries:
		return "exhausted retries"
	default:
		return "unknown"
	}
}

// NetworkError is returned when a request could not produce a usable response.
// Status holds the last HTTP status seen, zero when no response arrived.
type NetworkError struct {
	Kind     ErrorKind
	Method   string
	URL      string
	Attempts int
	Status   int
	Err      error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("%s %s: %s after %d attempt(s)", e.Method, e.URL, e.Kind, e.Attempts)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (last status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err carries a NetworkError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Kind == kind
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry gives up on it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// classify maps a transport error to a kind and reports whether it is transient.
func classify(err error) (ErrorKind, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused, true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindConnectionRefused, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnectionRefused, true
	}
	return KindConnectionRefused, false
}
