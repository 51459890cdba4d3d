// Package images moves images referenced by a Markdown body to durable
// storage and rewrites the body to point at their public URLs.
package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"notion2hexo/internal/logging"
	"notion2hexo/internal/netclient"
	"notion2hexo/internal/storage"
	translator "notion2hexo/pkg"
)

const (
	DefaultConcurrency = 4
	DefaultKeyPrefix   = "img/"

	// hex characters of the content digest used in object keys
	keyHashLength = 32
)

// Failure is one image that could not be externalized. Its reference is left
// pointing at the original URL.
type Failure struct {
	Ref translator.ImageReference
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Ref.URL, f.Err)
}

// Pipeline downloads images and re-uploads them under content derived keys.
type Pipeline struct {
	client      *netclient.Client
	store       storage.ObjectStore
	logger      arbor.ILogger
	keyPrefix   string
	concurrency int
	timeout     time.Duration
}

type Option func(*Pipeline)

func WithLogger(logger arbor.ILogger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(p *Pipeline) {
		p.keyPrefix = prefix
	}
}

// WithConcurrency sets how many images are processed at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithTimeout bounds each download and upload attempt.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func New(client *netclient.Client, store storage.ObjectStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:      client,
		store:       store,
		logger:      logging.Discard(),
		keyPrefix:   DefaultKeyPrefix,
		concurrency: DefaultConcurrency,
		timeout:     netclient.DefaultImageTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type result struct {
	url string
	err error
}

// Externalize processes refs and rewrites body. Images already served from
// the store and non-HTTP references are skipped. A failed image is reported
// in the returned failures and keeps its original URL.
//
// The error is non-nil only when ctx ends; the body is then returned
// unchanged and must not be persisted.
func (p *Pipeline) Externalize(ctx context.Context, body string, refs []translator.ImageReference) (string, []Failure, error) {
	var tasks []translator.ImageReference
	seen := map[string]bool{}
	for _, ref := range refs {
		if seen[ref.URL] || p.skip(ref.URL) {
			continue
		}
		seen[ref.URL] = true
		tasks = append(tasks, ref)
	}
	if len(tasks) == 0 {
		return body, nil, nil
	}

	results := make([]result, len(tasks))
	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for i, ref := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			newURL, err := p.externalize(ctx, ref)
			results[i] = result{url: newURL, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return body, nil, err
	}

	var (
		rewrites = map[string]string{}
		failures []Failure
	)
	for i, ref := range tasks {
		res := results[i]
		if res.err != nil {
			p.logger.Warn().
				Str("url", ref.URL).
				Str("block_id", ref.BlockID).
				Err(res.err).
				Msg("Image left at original URL")
			failures = append(failures, Failure{Ref: ref, Err: res.err})
			continue
		}
		rewrites[ref.URL] = res.url
	}

	p.logger.Info().
		Int("images", len(tasks)).
		Int("failed", len(failures)).
		Msg("Images externalized")

	if len(rewrites) == 0 {
		return body, failures, nil
	}
	return rewriteImages(body, rewrites), failures, nil
}

// rewriteImages swaps the destination of image tokens ![alt](url) whose url
// is in rewrites. Plain links to the same url are left alone.
func rewriteImages(body string, rewrites map[string]string) string {
	urls := make([]string, 0, len(rewrites))
	for u := range rewrites {
		urls = append(urls, u)
	}
	// longest first, so "](a)b)" resolves to "a)b" rather than "a"
	sort.Slice(urls, func(i, j int) bool { return len(urls[i]) > len(urls[j]) })

	var sb strings.Builder
	last := 0
	for i := 0; ; {
		j := strings.Index(body[i:], "](")
		if j < 0 {
			break
		}
		j += i
		i = j + 2
		if escaped(body, j) || !closesImage(body, j) {
			continue
		}
		for _, u := range urls {
			if strings.HasPrefix(body[j+2:], u+")") {
				sb.WriteString(body[last : j+2])
				sb.WriteString(rewrites[u])
				last = j + 2 + len(u)
				i = last
				break
			}
		}
	}
	if last == 0 {
		return body
	}
	sb.WriteString(body[last:])
	return sb.String()
}

// closesImage reports whether the ']' at body[end] closes a bracket opened
// by an unescaped "![" on the same paragraph.
func closesImage(body string, end int) bool {
	depth := 0
	for k := end - 1; k >= 0; k-- {
		switch body[k] {
		case '\n':
			if k > 0 && body[k-1] == '\n' {
				return false
			}
		case ']':
			if !escaped(body, k) {
				depth++
			}
		case '[':
			if escaped(body, k) {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			return k > 0 && body[k-1] == '!' && !escaped(body, k-1)
		}
	}
	return false
}

// escaped reports whether body[i] is preceded by an odd run of backslashes.
func escaped(body string, i int) bool {
	n := 0
	for k := i - 1; k >= 0 && body[k] == '\\'; k-- {
		n++
	}
	return n%2 == 1
}

func (p *Pipeline) skip(raw string) bool {
	if prefix := p.store.URL(""); prefix != "" && strings.HasPrefix(raw, prefix) {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	return u.Scheme != "http" && u.Scheme != "https"
}

func (p *Pipeline) externalize(ctx context.Context, ref translator.ImageReference) (string, error) {
	start := time.Now()

	resp, err := p.client.Get(ctx, ref.URL, nil, p.timeout)
	if err != nil {
		return "", fmt.Errorf("downloading: %w", err)
	}
	if resp.Status != http.StatusOK {
		return "", fmt.Errorf("downloading: status %d", resp.Status)
	}
	if len(resp.Body) == 0 {
		return "", fmt.Errorf("downloading: empty body")
	}

	mtype := mimetype.Detect(resp.Body)
	key := p.keyPrefix + ObjectKey(resp.Body, ref.URL, mtype.Extension())

	var exists bool
	err = p.client.Retry(ctx, "exists "+key, p.timeout, func(ctx context.Context) error {
		var err error
		exists, err = p.store.Exists(ctx, key)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", key, err)
	}

	if !exists {
		err = p.client.Retry(ctx, "put "+key, p.timeout, func(ctx context.Context) error {
			return p.store.Put(ctx, key, resp.Body, mtype.String())
		})
		if err != nil {
			return "", fmt.Errorf("uploading %s: %w", key, err)
		}
	}

	p.logger.Debug().
		Str("key", key).
		Int("bytes", len(resp.Body)).
		Bool("uploaded", !exists).
		Str("duration", time.Since(start).String()).
		Msg("Image externalized")

	return p.store.URL(key), nil
}

// ObjectKey names content by its digest plus the extension of the source
// URL's path, falling back to the detected one.
func ObjectKey(data []byte, sourceURL, detectedExt string) string {
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:])[:keyHashLength]

	ext := ""
	if u, err := url.Parse(sourceURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	if !validExt(ext) {
		ext = detectedExt
	}
	return name + ext
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
