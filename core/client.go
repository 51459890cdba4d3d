package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"notion2hexo/internal/logging"
	"notion2hexo/internal/netclient"
	translator "notion2hexo/pkg"
)

const (
	DefaultRequestsPerSecond = 3
	DefaultPageSize          = 100
)

// DocumentClient fetches pages and their complete block trees. Transient
// failures are retried by the netclient transport underneath the SDK.
type DocumentClient struct {
	api      *notionapi.Client
	limiter  *rate.Limiter
	logger   arbor.ILogger
	pageSize int
	requests int
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	net      *netclient.Client
	timeout  time.Duration
	logger   arbor.ILogger
	limit    rate.Limit
	pageSize int
}

// WithNetClient routes SDK traffic through c.
func WithNetClient(c *netclient.Client, attemptTimeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.net = c
		o.timeout = attemptTimeout
	}
}

func WithClientLogger(logger arbor.ILogger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithRateLimit caps API calls per second.
func WithRateLimit(rps float64) ClientOption {
	return func(o *clientOptions) {
		if rps > 0 {
			o.limit = rate.Limit(rps)
		}
	}
}

func WithPageSize(n int) ClientOption {
	return func(o *clientOptions) {
		if n > 0 && n <= DefaultPageSize {
			o.pageSize = n
		}
	}
}

// NewDocumentClient authenticates with an integration token.
func NewDocumentClient(token string, opts ...ClientOption) *DocumentClient {
	o := &clientOptions{
		timeout:  netclient.DefaultAPITimeout,
		logger:   logging.Discard(),
		limit:    DefaultRequestsPerSecond,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.net == nil {
		o.net = netclient.New(netclient.WithLogger(o.logger))
	}

	// A single SDK attempt: the transport owns retries, so a 429 reaching
	// the SDK is returned as *notionapi.RateLimitedError instead of waited on.
	api := notionapi.NewClient(notionapi.Token(token),
		notionapi.WithHTTPClient(o.net.HTTPClient(o.timeout)),
		notionapi.WithRetry(1),
	)

	return &DocumentClient{
		api:      api,
		limiter:  rate.NewLimiter(o.limit, 1),
		logger:   o.logger,
		pageSize: o.pageSize,
	}
}

// Requests returns the number of API calls issued so far.
func (c *DocumentClient) Requests() int {
	return c.requests
}

func (c *DocumentClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	c.requests++
	return nil
}

// FetchPage retrieves the page properties and its full block tree.
func (c *DocumentClient) FetchPage(ctx context.Context, pageID string) (*translator.PageDocument, error) {
	start := time.Now()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	page, err := c.api.Page.Get(ctx, notionapi.PageID(pageID))
	if err != nil {
		return nil, apiError("retrieving page "+pageID, err)
	}

	title, props := convertProperties(page.Properties)
	doc := &translator.PageDocument{
		ID:             string(page.ID),
		Title:          title,
		URL:            page.URL,
		CreatedTime:    page.CreatedTime,
		LastEditedTime: page.LastEditedTime,
		Properties:     props,
	}

	doc.Blocks, err = c.children(ctx, notionapi.BlockID(pageID), 0)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("page_id", pageID).
		Str("title", title).
		Int("blocks", countBlocks(doc.Blocks)).
		Int("requests", c.requests).
		Str("duration", time.Since(start).String()).
		Msg("Page fetched")

	return doc, nil
}

// children lists every child of blockID, following the cursor until the API
// reports no more results, then descends into blocks that have children.
func (c *DocumentClient) children(ctx context.Context, blockID notionapi.BlockID, depth int) ([]translator.Block, error) {
	var (
		blocks []translator.Block
		parent []bool
		cursor string
	)
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		res, err := c.api.Block.GetChildren(ctx, blockID, &notionapi.Pagination{
			StartCursor: notionapi.Cursor(cursor),
			PageSize:    c.pageSize,
		})
		if err != nil {
			return nil, apiError(fmt.Sprintf("listing children of %s", blockID), err)
		}

		for _, b := range res.Results {
			blocks = append(blocks, convertBlock(b))
			parent = append(parent, b.GetHasChildren())
		}

		c.logger.Debug().
			Str("block_id", string(blockID)).
			Int("depth", depth).
			Int("results", len(res.Results)).
			Bool("has_more", res.HasMore).
			Msg("Children page fetched")

		if !res.HasMore {
			break
		}
		if res.NextCursor == "" {
			return nil, fmt.Errorf("listing children of %s: has_more without next_cursor", blockID)
		}
		cursor = string(res.NextCursor)
	}

	for i := range blocks {
		if !parent[i] {
			continue
		}
		kids, err := c.children(ctx, notionapi.BlockID(blocks[i].ID), depth+1)
		if err != nil {
			return nil, err
		}
		blocks[i].Children = kids
	}
	return blocks, nil
}

func countBlocks(blocks []translator.Block) int {
	n := len(blocks)
	for _, b := range blocks {
		n += countBlocks(b.Children)
	}
	return n
}
