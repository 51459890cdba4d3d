package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion2hexo/internal/netclient"
	translator "notion2hexo/pkg"
)

const pngMagic = "\x89PNG\r\n\x1a\n"

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (s *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memoryStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = data
	return nil
}

func (s *memoryStore) URL(key string) string {
	return "https://cdn.example.com/" + key
}

type imageServer struct {
	mu       sync.Mutex
	images   map[string]string
	requests int
	delay    func(url string) time.Duration
}

func (s *imageServer) RoundTrip(r *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.requests++
	body, ok := s.images[r.URL.String()]
	s.mu.Unlock()

	if s.delay != nil {
		time.Sleep(s.delay(r.URL.String()))
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newPipeline(srv *imageServer, store *memoryStore, opts ...Option) *Pipeline {
	client := netclient.New(netclient.WithTransport(srv), netclient.WithSleeper(noSleep))
	return New(client, store, opts...)
}

func markdownFor(refs []translator.ImageReference) string {
	var sb strings.Builder
	sb.WriteString("# Post\n\n")
	for i, ref := range refs {
		fmt.Fprintf(&sb, "Paragraph %d\n\n![%s](%s)\n\n", i, ref.Alt, ref.URL)
	}
	return sb.String()
}

func TestExternalizeIsolatesFailures(t *testing.T) {
	srv := &imageServer{images: map[string]string{
		"https://s3.example.com/ok.png?X-Amz-Signature=1": pngMagic + "ok",
	}}
	store := newMemoryStore()
	refs := []translator.ImageReference{
		{URL: "https://s3.example.com/ok.png?X-Amz-Signature=1", Alt: "ok", BlockID: "b1"},
		{URL: "https://s3.example.com/gone.png", Alt: "gone", BlockID: "b2"},
	}
	body := markdownFor(refs)

	out, failures, err := newPipeline(srv, store).Externalize(context.Background(), body, refs)
	require.NoError(t, err)

	key := DefaultKeyPrefix + ObjectKey([]byte(pngMagic+"ok"), refs[0].URL, ".png")
	assert.Contains(t, out, "![ok](https://cdn.example.com/"+key+")")
	assert.NotContains(t, out, refs[0].URL)
	assert.Contains(t, out, "![gone](https://s3.example.com/gone.png)")
	assert.Equal(t, strings.Replace(body, refs[0].URL, "https://cdn.example.com/"+key, 1), out)

	require.Len(t, failures, 1)
	assert.Equal(t, "b2", failures[0].Ref.BlockID)
	assert.Contains(t, failures[0].Error(), "status 404")
	assert.Equal(t, 1, store.puts)
}

func TestExternalizePoolMatchesSerial(t *testing.T) {
	images := map[string]string{}
	var refs []translator.ImageReference
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("https://s3.example.com/%02d.png?sig=%d", i, i)
		if i%7 != 3 {
			images[u] = fmt.Sprintf("%simage-%d", pngMagic, i)
		}
		refs = append(refs, translator.ImageReference{URL: u, Alt: fmt.Sprint(i)})
	}
	body := markdownFor(refs)
	delay := func(u string) time.Duration {
		return time.Duration(len(u)*7%5) * time.Millisecond
	}

	serial, serialFailures, err := newPipeline(&imageServer{images: images, delay: delay}, newMemoryStore(), WithConcurrency(1)).
		Externalize(context.Background(), body, refs)
	require.NoError(t, err)

	pooled, pooledFailures, err := newPipeline(&imageServer{images: images, delay: delay}, newMemoryStore(), WithConcurrency(8)).
		Externalize(context.Background(), body, refs)
	require.NoError(t, err)

	assert.Equal(t, serial, pooled)
	require.Len(t, pooledFailures, len(serialFailures))
	for i := range serialFailures {
		assert.Equal(t, serialFailures[i].Ref, pooledFailures[i].Ref)
	}
}

func TestExternalizeIsIdempotent(t *testing.T) {
	srv := &imageServer{images: map[string]string{
		"https://s3.example.com/a.png": pngMagic + "a",
		"https://s3.example.com/b.jpg": "\xff\xd8\xff" + "b",
	}}
	store := newMemoryStore()
	p := newPipeline(srv, store)
	refs := []translator.ImageReference{
		{URL: "https://s3.example.com/a.png"},
		{URL: "https://s3.example.com/b.jpg"},
	}

	first, failures, err := p.Externalize(context.Background(), markdownFor(refs), refs)
	require.NoError(t, err)
	require.Empty(t, failures)
	require.Equal(t, 2, store.puts)
	require.Equal(t, 2, srv.requests)

	second, failures, err := p.Externalize(context.Background(), first, Discover([]byte(first)))
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, store.puts)
	assert.Equal(t, 2, srv.requests)
}

func TestExternalizeSkipsUploadOfExistingObject(t *testing.T) {
	data := pngMagic + "same"
	srv := &imageServer{images: map[string]string{"https://s3.example.com/x.png": data}}
	store := newMemoryStore()
	key := DefaultKeyPrefix + ObjectKey([]byte(data), "https://s3.example.com/x.png", "")
	store.objects[key] = []byte(data)

	refs := []translator.ImageReference{{URL: "https://s3.example.com/x.png"}}
	out, failures, err := newPipeline(srv, store).Externalize(context.Background(), markdownFor(refs), refs)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Zero(t, store.puts)
	assert.Contains(t, out, "https://cdn.example.com/"+key)
}

func TestExternalizeDeduplicatesURLs(t *testing.T) {
	srv := &imageServer{images: map[string]string{"https://s3.example.com/x.png": pngMagic}}
	store := newMemoryStore()
	refs := []translator.ImageReference{
		{URL: "https://s3.example.com/x.png", BlockID: "1"},
		{URL: "https://s3.example.com/x.png", BlockID: "2"},
	}
	out, _, err := newPipeline(srv, store).Externalize(context.Background(), markdownFor(refs), refs)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.requests)
	assert.Equal(t, 2, strings.Count(out, "https://cdn.example.com/"))
}

func TestExternalizeUploadFailure(t *testing.T) {
	srv := &imageServer{images: map[string]string{"https://s3.example.com/x.png": pngMagic}}
	store := newMemoryStore()
	store.putErr = netclient.Permanent(errors.New("access denied"))

	refs := []translator.ImageReference{{URL: "https://s3.example.com/x.png"}}
	body := markdownFor(refs)
	out, failures, err := newPipeline(srv, store).Externalize(context.Background(), body, refs)
	require.NoError(t, err)
	assert.Equal(t, body, out)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Err.Error(), "access denied")
	assert.Equal(t, 1, store.puts)
}

func TestExternalizeCancelled(t *testing.T) {
	var started atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	srv := &imageServer{images: map[string]string{}, delay: func(string) time.Duration {
		if started.Add(1) == 1 {
			cancel()
		}
		return 0
	}}
	var refs []translator.ImageReference
	for i := 0; i < 10; i++ {
		refs = append(refs, translator.ImageReference{URL: fmt.Sprintf("https://s3.example.com/%d.png", i)})
	}
	body := markdownFor(refs)

	out, failures, err := newPipeline(srv, newMemoryStore(), WithConcurrency(1)).Externalize(ctx, body, refs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, body, out)
	assert.Nil(t, failures)
	assert.Less(t, int(started.Load()), 10)
}

func TestExternalizeSkipsNonHTTP(t *testing.T) {
	srv := &imageServer{images: map[string]string{}}
	refs := []translator.ImageReference{{URL: "/images/local.png"}, {URL: "data:image/png;base64,AAAA"}}
	body := markdownFor(refs)
	out, failures, err := newPipeline(srv, newMemoryStore()).Externalize(context.Background(), body, refs)
	require.NoError(t, err)
	assert.Equal(t, body, out)
	assert.Empty(t, failures)
	assert.Zero(t, srv.requests)
}

func TestExternalizeLeavesLinksToTheSameURL(t *testing.T) {
	const src = "https://s3.example.com/original.png"
	srv := &imageServer{images: map[string]string{src: pngMagic + "orig"}}
	rendered := translator.Convert([]translator.Block{
		{ID: "p", Kind: translator.KindParagraph, RichText: []translator.RichText{
			{Text: "see the "},
			{Text: "original file", Link: src},
		}},
		{ID: "img", Kind: translator.KindImage, URL: src},
	}, translator.DefaultConvertOptions())

	out, failures, err := newPipeline(srv, newMemoryStore()).Externalize(context.Background(), rendered.Markdown, rendered.Images)
	require.NoError(t, err)
	require.Empty(t, failures)

	key := DefaultKeyPrefix + ObjectKey([]byte(pngMagic+"orig"), src, "")
	assert.Equal(t, "see the [original file]("+src+")\n\n![](https://cdn.example.com/"+key+")\n", out)
}

func TestRewriteImages(t *testing.T) {
	rewrites := map[string]string{
		"https://a.example.com/x.png":   "https://cdn.example.com/x.png",
		"https://a.example.com/(1).png": "https://cdn.example.com/1.png",
	}
	tests := []struct {
		name, in, want string
	}{
		{"image", "![x](https://a.example.com/x.png)", "![x](https://cdn.example.com/x.png)"},
		{"link", "[x](https://a.example.com/x.png)", "[x](https://a.example.com/x.png)"},
		{"link around image", "[![x](https://a.example.com/x.png)](https://a.example.com/x.png)", "[![x](https://cdn.example.com/x.png)](https://a.example.com/x.png)"},
		{"nested brackets in alt", "![a [b] c](https://a.example.com/x.png)", "![a [b] c](https://cdn.example.com/x.png)"},
		{"escaped bang", `\![x](https://a.example.com/x.png)`, `\![x](https://a.example.com/x.png)`},
		{"escaped bracket in alt", `![a \] b](https://a.example.com/x.png)`, `![a \] b](https://cdn.example.com/x.png)`},
		{"parentheses in url", "![p](https://a.example.com/(1).png)", "![p](https://cdn.example.com/1.png)"},
		{"other url", "![y](https://a.example.com/y.png)", "![y](https://a.example.com/y.png)"},
		{"bang in previous paragraph", "!\n\n[x](https://a.example.com/x.png)", "!\n\n[x](https://a.example.com/x.png)"},
		{"bare text", "https://a.example.com/x.png", "https://a.example.com/x.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rewriteImages(tt.in, rewrites))
		})
	}
}

func TestObjectKey(t *testing.T) {
	data := []byte("content")
	a := ObjectKey(data, "https://s3.example.com/path/Photo.JPG?sig=1", ".png")
	b := ObjectKey(data, "https://other.example.com/x.jpg", ".png")
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.Equal(t, a, b)
	assert.Len(t, strings.TrimSuffix(a, ".jpg"), keyHashLength)

	assert.True(t, strings.HasSuffix(ObjectKey(data, "https://s3.example.com/noext", ".png"), ".png"))
	assert.True(t, strings.HasSuffix(ObjectKey(data, "https://s3.example.com/a.tar%20gz", ".gif"), ".gif"))
	assert.NotEqual(t, a, ObjectKey([]byte("other"), "https://s3.example.com/x.jpg", ""))
}
