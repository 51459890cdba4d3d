package netclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport adapts the Client to http.RoundTripper so SDKs that take an
// *http.Client share the same timeout and retry policy.
type Transport struct {
	client  *Client
	timeout time.Duration
}

// Transport returns a round tripper applying timeout to every attempt.
func (c *Client) Transport(timeout time.Duration) *Transport {
	return &Transport{client: c, timeout: timeout}
}

// HTTPClient returns an *http.Client backed by Transport(timeout).
func (c *Client) HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Transport: c.Transport(timeout)}
}

// RoundTrip implements http.RoundTripper. When retries of a transient status
// run out it returns a *NetworkError rather than the last response.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		body = data
	}

	req := &Request{
		Method:  r.Method,
		URL:     r.URL.String(),
		Header:  r.Header.Clone(),
		Body:    body,
		Timeout: t.timeout,
	}
	resp, err := t.client.execute(r.Context(), req, t.client.transport.RoundTrip)
	if err != nil {
		return nil, err
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.Status, http.StatusText(resp.Status)),
		StatusCode:    resp.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        resp.Header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       r,
	}, nil
}
