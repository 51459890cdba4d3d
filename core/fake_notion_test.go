package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"notion2hexo/internal/netclient"
)

// fakeNotion serves canned API responses keyed by path. Children lists are
// split into pages of the configured size with numeric cursors.
type fakeNotion struct {
	mu       sync.Mutex
	pages    map[string]map[string]any
	children map[string][]map[string]any
	pageSize int
	status   map[string]int
	flaky    map[string]int
	files    map[string]string
	calls    map[string]int
}

func newFakeNotion() *fakeNotion {
	return &fakeNotion{
		pages:    map[string]map[string]any{},
		children: map[string][]map[string]any{},
		pageSize: 100,
		status:   map[string]int{},
		flaky:    map[string]int{},
		files:    map[string]string{},
		calls:    map[string]int{},
	}
}

func (f *fakeNotion) RoundTrip(r *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Host != "api.notion.com" {
		f.calls[r.URL.String()]++
		body, ok := f.files[r.URL.String()]
		if !ok {
			return jsonResponse(http.StatusNotFound, "not found"), nil
		}
		return jsonResponse(http.StatusOK, body), nil
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	f.calls[path]++
	if f.flaky[path] > 0 {
		f.flaky[path]--
		return jsonResponse(http.StatusServiceUnavailable, `{"object":"error","status":503,"code":"service_unavailable","message":"try again"}`), nil
	}
	if status, ok := f.status[path]; ok {
		return jsonResponse(status, fmt.Sprintf(`{"object":"error","status":%d,"code":"unauthorized","message":"API token is invalid."}`, status)), nil
	}

	switch {
	case strings.HasPrefix(path, "pages/"):
		page, ok := f.pages[strings.TrimPrefix(path, "pages/")]
		if !ok {
			return jsonResponse(http.StatusNotFound, `{"object":"error","status":404,"code":"object_not_found","message":"Could not find page."}`), nil
		}
		return marshalResponse(page), nil

	case strings.HasPrefix(path, "blocks/") && strings.HasSuffix(path, "/children"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "blocks/"), "/children")
		all := f.children[id]
		start := 0
		if c := r.URL.Query().Get("start_cursor"); c != "" {
			fmt.Sscanf(c, "%d", &start)
		}
		end := start + f.pageSize
		if end > len(all) {
			end = len(all)
		}
		results := all[start:end]
		if results == nil {
			results = []map[string]any{}
		}
		resp := map[string]any{
			"object":      "list",
			"results":     results,
			"has_more":    end < len(all),
			"next_cursor": nil,
		}
		if end < len(all) {
			resp["next_cursor"] = fmt.Sprint(end)
		}
		return marshalResponse(resp), nil
	}
	return jsonResponse(http.StatusNotFound, `{}`), nil
}

func (f *fakeNotion) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func marshalResponse(v any) *http.Response {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return jsonResponse(http.StatusOK, string(data))
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newTestDocumentClient(t *testing.T, f *fakeNotion) (*DocumentClient, *netclient.Client) {
	t.Helper()
	net := netclient.New(netclient.WithTransport(f), netclient.WithSleeper(noSleep))
	client := NewDocumentClient("secret_test", WithNetClient(net, time.Second), WithRateLimit(1e6))
	require.NotNil(t, client)
	return client, net
}

func richText(s string, annotations ...string) []map[string]any {
	ann := map[string]any{"bold": false, "italic": false, "strikethrough": false, "underline": false, "code": false, "color": "default"}
	for _, a := range annotations {
		ann[a] = true
	}
	return []map[string]any{{
		"type":        "text",
		"text":        map[string]any{"content": s},
		"annotations": ann,
		"plain_text":  s,
	}}
}

func blockJSON(id, typ string, hasChildren bool, content map[string]any) map[string]any {
	return map[string]any{
		"object":       "block",
		"id":           id,
		"type":         typ,
		"has_children": hasChildren,
		typ:            content,
	}
}

func paragraphJSON(id, text string, hasChildren bool) map[string]any {
	return blockJSON(id, "paragraph", hasChildren, map[string]any{"rich_text": richText(text), "color": "default"})
}

func pageJSON(id, title string, props map[string]any) map[string]any {
	properties := map[string]any{
		"Name": map[string]any{"id": "title", "type": "title", "title": richText(title)},
	}
	for k, v := range props {
		properties[k] = v
	}
	return map[string]any{
		"object":           "page",
		"id":               id,
		"created_time":     "2024-05-01T10:30:00.000Z",
		"last_edited_time": "2024-05-02T08:00:00.000Z",
		"url":              "https://www.notion.so/" + strings.ReplaceAll(id, "-", ""),
		"properties":       properties,
	}
}
