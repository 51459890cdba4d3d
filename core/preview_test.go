package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion2hexo/internal/netclient"
	translator "notion2hexo/pkg"
)

func previewBlocks() []translator.Block {
	return []translator.Block{
		{ID: "a", Kind: translator.KindBookmark, URL: "https://blog.example.com/post"},
		{ID: "captioned", Kind: translator.KindBookmark, URL: "https://blog.example.com/captioned", Caption: []translator.RichText{{Text: "mine"}}},
		{ID: "toggle", Kind: translator.KindToggle, Children: []translator.Block{
			{ID: "b", Kind: translator.KindBookmark, URL: "https://blog.example.com/nested"},
			{ID: "again", Kind: translator.KindBookmark, URL: "https://blog.example.com/post"},
		}},
		{ID: "missing", Kind: translator.KindBookmark, URL: "https://blog.example.com/missing"},
		{ID: "bare", Kind: translator.KindBookmark, URL: "https://blog.example.com/bare"},
	}
}

func TestPreviewResolverResolve(t *testing.T) {
	f := newFakeNotion()
	f.files["https://blog.example.com/post"] = `<html><head><meta property="og:title" content="  A Post  "></head></html>`
	f.files["https://blog.example.com/nested"] = `<html><head><meta property="og:title" content="Nested"></head></html>`
	f.files["https://blog.example.com/bare"] = `<html><head></head><body>nothing</body></html>`
	net := netclient.New(netclient.WithTransport(f), netclient.WithSleeper(noSleep))
	r := NewPreviewResolver(net, time.Second, nil)

	blocks := previewBlocks()
	titles, warnings := r.Resolve(context.Background(), blocks)

	assert.Equal(t, map[string]string{
		"https://blog.example.com/post":   "A Post",
		"https://blog.example.com/nested": "Nested",
	}, titles)
	assert.Equal(t, previewBlocks(), blocks)
	assert.Equal(t, 1, f.callCount("https://blog.example.com/post"))
	assert.Zero(t, f.callCount("https://blog.example.com/captioned"))

	require.Len(t, warnings, 2)
	assert.Equal(t, "missing", warnings[0].BlockID)
	assert.Equal(t, "bare", warnings[1].BlockID)
	for _, w := range warnings {
		assert.Equal(t, translator.WarningBookmarkPreview, w.Kind)
	}
}

func TestWithBookmarkTitlesCopies(t *testing.T) {
	blocks := previewBlocks()
	titles := map[string]string{
		"https://blog.example.com/post":      "A Post",
		"https://blog.example.com/captioned": "ignored",
	}

	out := WithBookmarkTitles(blocks, titles)

	assert.Equal(t, "A Post", out[0].Title)
	assert.Empty(t, out[1].Title)
	assert.Equal(t, "A Post", out[2].Children[1].Title)
	assert.Empty(t, out[2].Children[0].Title)
	assert.Equal(t, previewBlocks(), blocks)
}
