package core

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/otiai10/opengraph"
	"github.com/ternarybob/arbor"

	"notion2hexo/internal/logging"
	"notion2hexo/internal/netclient"
	translator "notion2hexo/pkg"
)

// PreviewResolver fills in bookmark titles from the target page's OpenGraph
// metadata.
type PreviewResolver struct {
	net     *netclient.Client
	timeout time.Duration
	logger  arbor.ILogger
}

func NewPreviewResolver(net *netclient.Client, timeout time.Duration, logger arbor.ILogger) *PreviewResolver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PreviewResolver{net: net, timeout: timeout, logger: logger}
}

// Resolve looks up the title of every bookmark without a caption and
// returns them keyed by URL. The blocks are not modified; a failed lookup is
// returned as a warning for each bookmark pointing at that URL.
func (r *PreviewResolver) Resolve(ctx context.Context, blocks []translator.Block) (map[string]string, []translator.Warning) {
	titles := map[string]string{}
	failed := map[string]error{}
	var warnings []translator.Warning

	var walk func([]translator.Block)
	walk = func(blocks []translator.Block) {
		for _, b := range blocks {
			if needsTitle(b) {
				_, done := titles[b.URL]
				err, bad := failed[b.URL]
				if !done && !bad {
					var title string
					title, err = r.title(ctx, b.URL)
					if err != nil {
						r.logger.Warn().Str("url", b.URL).Err(err).Msg("Bookmark preview failed")
						failed[b.URL] = err
					} else {
						titles[b.URL] = title
					}
				}
				if err != nil {
					warnings = append(warnings, translator.Warning{
						Kind:    translator.WarningBookmarkPreview,
						BlockID: b.ID,
						Detail:  err.Error(),
					})
				}
			}
			walk(b.Children)
		}
	}
	walk(blocks)
	return titles, warnings
}

// WithBookmarkTitles returns a copy of blocks in which bookmarks without a
// caption carry the title resolved for their URL.
func WithBookmarkTitles(blocks []translator.Block, titles map[string]string) []translator.Block {
	if blocks == nil {
		return nil
	}
	out := make([]translator.Block, len(blocks))
	for i, b := range blocks {
		if needsTitle(b) {
			if title, ok := titles[b.URL]; ok {
				b.Title = title
			}
		}
		b.Children = WithBookmarkTitles(b.Children, titles)
		out[i] = b
	}
	return out
}

func needsTitle(b translator.Block) bool {
	return b.Kind == translator.KindBookmark && b.URL != "" && len(b.Caption) == 0
}

func (r *PreviewResolver) title(ctx context.Context, url string) (string, error) {
	resp, err := r.net.Get(ctx, url, http.Header{"Accept": {"text/html"}}, r.timeout)
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", url, resp.Status)
	}

	og := opengraph.New(url)
	if err := og.Parse(bytes.NewReader(resp.Body)); err != nil {
		return "", fmt.Errorf("parsing %s: %w", url, err)
	}
	title := strings.TrimSpace(og.Title)
	if title == "" {
		return "", fmt.Errorf("%s has no title", url)
	}
	return title, nil
}
