package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/ternarybob/arbor"

	"notion2hexo/internal/images"
	"notion2hexo/internal/logging"
	translator "notion2hexo/pkg"
)

// Fetcher is the part of DocumentClient the pipeline needs.
type Fetcher interface {
	FetchPage(ctx context.Context, pageID string) (*translator.PageDocument, error)
}

// Externalizer is the part of images.Pipeline the pipeline needs.
type Externalizer interface {
	Externalize(ctx context.Context, body string, refs []translator.ImageReference) (string, []images.Failure, error)
}

// Pipeline turns a page into a finished article: fetch, convert, move
// images, build the front matter.
type Pipeline struct {
	docs     Fetcher
	images   Externalizer
	previews *PreviewResolver
	config   translator.TransferConfig
	logger   arbor.ILogger
	now      func() time.Time
}

type PipelineOption func(*Pipeline)

// WithImages enables image externalization.
func WithImages(e Externalizer) PipelineOption {
	return func(p *Pipeline) {
		p.images = e
	}
}

// WithPreviews enables bookmark title lookups.
func WithPreviews(r *PreviewResolver) PipelineOption {
	return func(p *Pipeline) {
		p.previews = r
	}
}

func WithPipelineLogger(logger arbor.ILogger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock replaces time.Now for the front matter date.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

func NewPipeline(docs Fetcher, config translator.TransferConfig, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		docs:   docs,
		config: config,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run converts the page. Unauthorized, not found, exhausted retries and
// cancellation fail the run; degraded output is reported in the result's
// warnings.
func (p *Pipeline) Run(ctx context.Context, pageID string, overrides translator.Overrides) (*translator.ConversionResult, error) {
	doc, err := p.docs.FetchPage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	var warnings []translator.Warning
	blocks := doc.Blocks
	if p.previews != nil {
		titles, previewWarnings := p.previews.Resolve(ctx, doc.Blocks)
		warnings = append(warnings, previewWarnings...)
		blocks = WithBookmarkTitles(doc.Blocks, titles)
	}

	rendered := translator.Convert(blocks, p.config.ConvertOptions())
	warnings = append(warnings, rendered.Warnings...)

	body := rendered.Markdown
	if p.images != nil && len(rendered.Images) > 0 {
		var failures []images.Failure
		body, failures, err = p.images.Externalize(ctx, body, rendered.Images)
		if err != nil {
			return nil, fmt.Errorf("externalizing images: %w", err)
		}
		warnings = append(warnings, imageWarnings(failures)...)
	}

	fm := translator.MakeFrontMatter(doc, rendered.MathNeeded, overrides, p.config.Properties, p.config.Hexo, p.now())

	for _, w := range warnings {
		p.logger.Warn().Str("page_id", pageID).Msg(w.String())
	}

	return &translator.ConversionResult{
		Title:       fm.Title,
		FrontMatter: fm,
		Body:        body,
		MathNeeded:  rendered.MathNeeded,
		Images:      rendered.Images,
		Warnings:    warnings,
	}, nil
}

func imageWarnings(failures []images.Failure) []translator.Warning {
	var warnings []translator.Warning
	for _, f := range failures {
		warnings = append(warnings, translator.Warning{
			Kind:    translator.WarningImageFailed,
			BlockID: f.Ref.BlockID,
			Detail:  f.Error(),
		})
	}
	return warnings
}

var (
	unsafeFilename = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	dashRun        = regexp.MustCompile(`-+`)
)

// ArticleName returns the post file name for title: characters that are
// illegal in file names and whitespace become dashes, runs of dashes are
// collapsed.
func ArticleName(title string) string {
	name := strings.ToValidUTF8(title, "")
	name = unsafeFilename.ReplaceAllString(name, "-")
	name = whitespaceRun.ReplaceAllString(name, "-")
	name = dashRun.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "untitled"
	}
	return name + ".md"
}

// WriteArticle writes the article into dir and returns its path. When the
// post already exists its date is kept so republishing does not move it.
func WriteArticle(dir string, res *translator.ConversionResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("couldn't create posts folder: %w", err)
	}
	path := filepath.Join(dir, ArticleName(res.Title))

	if date, ok, err := existingDate(path); err != nil {
		return "", err
	} else if ok {
		res.FrontMatter.Date = date
	}

	var buf bytes.Buffer
	if err := translator.Generate(&buf, res); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func existingDate(path string) (time.Time, bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	defer f.Close()

	var header struct {
		Date string `yaml:"date"`
	}
	if _, err := frontmatter.Parse(f, &header); err != nil {
		// an unreadable header is overwritten
		return time.Time{}, false, nil
	}
	date, err := time.ParseInLocation(translator.DateLayout, header.Date, time.Local)
	if err != nil {
		return time.Time{}, false, nil
	}
	return date, true, nil
}

// ExternalizeFile runs the image pipeline over a post written earlier and
// rewrites it in place when anything changed.
func ExternalizeFile(ctx context.Context, e Externalizer, path string) ([]translator.Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	refs := images.Discover(data)
	if len(refs) == 0 {
		return nil, nil
	}

	body, failures, err := e.Externalize(ctx, string(data), refs)
	if err != nil {
		return nil, fmt.Errorf("externalizing images: %w", err)
	}
	if body != string(data) {
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return imageWarnings(failures), nil
}
