package notion_blog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	StorageOSS        = "oss"
	StorageFilesystem = "filesystem"
)

type TransferConfig struct {
	Notion     NotionConfig    `json:"notion"`
	OSS        OSSConfig       `json:"oss"`
	Hexo       HexoConfig      `json:"hexo"`
	Images     ImagesConfig    `json:"images"`
	Properties PropertyMapping `json:"properties"`
	Markdown   MarkdownConfig  `json:"markdown"`
	Network    NetworkConfig   `json:"network"`

	LogLevel string `json:"log_level" usage:"Log level: debug, info, warn or error." validate:"oneof=debug info warn error"`
}

type NotionConfig struct {
	Token             string  `json:"token" usage:"Notion integration token (NOTION_TOKEN)." validate:"required"`
	RequestsPerSecond float64 `json:"requests_per_second" usage:"Client side limit of Notion API requests per second." validate:"gt=0"`
	PageSize          int     `json:"page_size" usage:"Block children fetched per request." validate:"min=1,max=100"`
}

// OSSConfig is the Aliyun OSS bucket images are uploaded to.
type OSSConfig struct {
	AccessKeyID     string `json:"access_key_id" usage:"OSS access key id."`
	AccessKeySecret string `json:"access_key_secret" usage:"OSS access key secret."`
	BucketName      string `json:"bucket_name" usage:"OSS bucket name."`
	Endpoint        string `json:"endpoint" usage:"OSS endpoint, e.g. oss-cn-hangzhou.aliyuncs.com"`
	CDNDomain       string `json:"cdn_domain" usage:"Public domain serving the bucket, e.g. cdn.example.com"`
}

type HexoConfig struct {
	BlogPath    string `json:"blog_path" usage:"Root of the Hexo blog (HEXO_ROOT)."`
	PostsFolder string `json:"posts_folder" usage:"Directory posts are written to. Defaults to <blog_path>/source/_posts."`
	TestFolder  string `json:"test_folder" usage:"Directory used by test exports. Defaults to <blog_path>/test."`

	DefaultTitle       string   `json:"default_title" usage:"Title used when the page has none."`
	DefaultCategory    string   `json:"default_category" usage:"Category used when the page has none."`
	DefaultTags        []string `json:"default_tags" usage:"Tags used when the page has none."`
	DefaultDescription string   `json:"default_description" usage:"Description used when the page has none."`
	DefaultMathJax     bool     `json:"default_mathjax" usage:"Enable MathJax unless the page disables it."`
}

// ImagesConfig selects where images are externalized to. The filesystem
// backend copies them under Folder and links them through Link.
type ImagesConfig struct {
	Storage     string `json:"storage" usage:"Image storage backend: oss or filesystem." validate:"oneof=oss filesystem"`
	Folder      string `json:"folder" usage:"Directory in which the static images will be stored. E.g.: ./source/images"`
	Link        string `json:"link" usage:"URL beggining to link the static images. E.g.: /images"`
	KeyPrefix   string `json:"key_prefix" usage:"Prefix of uploaded object keys."`
	Concurrency int    `json:"concurrency" usage:"Images processed in parallel." validate:"min=1,max=32"`
}

// PropertyMapping names the Notion properties read into the front matter.
type PropertyMapping struct {
	Tags        string `json:"tags" usage:"Tags multi-select property name in Notion."`
	Category    string `json:"category" usage:"Category select property name in Notion."`
	Description string `json:"description" usage:"Description text property name in Notion."`
	MathJax     string `json:"mathjax" usage:"MathJax checkbox property name in Notion."`

	// Categories mapping from notion to final markdown front matter, optional:
	CategoryMap map[string]string `json:"category_map" usage:"Map of categories in Notion to categories in Hexo."`
}

type MarkdownConfig struct {
	ListIndent          int  `json:"list_indent" usage:"Spaces per nested list level." validate:"min=1,max=8"`
	ToggleAsDetails     bool `json:"toggle_as_details" usage:"Render toggles as <details> instead of expanding them."`
	FetchBookmarkTitles bool `json:"fetch_bookmark_titles" usage:"Fetch OpenGraph titles for bookmark blocks."`
}

// NetworkConfig is the retry and timeout policy shared by all outbound calls.
type NetworkConfig struct {
	MaxRetries   int           `json:"max_retries" usage:"Retries of transient failures." validate:"min=0,max=10"`
	BaseDelay    time.Duration `json:"-" usage:"First retry backoff, doubled per attempt."`
	MaxDelay     time.Duration `json:"-" usage:"Backoff cap."`
	APITimeout   time.Duration `json:"-" usage:"Timeout of one Notion API attempt."`
	ImageTimeout time.Duration `json:"-" usage:"Timeout of one image download or upload attempt."`
}

// DefaultConfig returns the configuration used before the config file,
// environment and flags are applied.
func DefaultConfig() TransferConfig {
	return TransferConfig{
		Notion: NotionConfig{
			RequestsPerSecond: 3,
			PageSize:          100,
		},
		Hexo: HexoConfig{
			DefaultCategory: "学习笔记",
		},
		Images: ImagesConfig{
			Storage:     StorageOSS,
			KeyPrefix:   "img/",
			Concurrency: 4,
		},
		Properties: PropertyMapping{
			Tags:        "Tags",
			Category:    "Category",
			Description: "Description",
			MathJax:     "MathJax",
		},
		Markdown: MarkdownConfig{
			ListIndent: 4,
		},
		Network: NetworkConfig{
			MaxRetries:   3,
			BaseDelay:    500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			APITimeout:   15 * time.Second,
			ImageTimeout: 30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Environment variables overriding the config file.
const (
	EnvNotionToken        = "NOTION_TOKEN"
	EnvOSSAccessKeyID     = "NOTION_OSS_ACCESS_KEY_ID"
	EnvOSSAccessKeySecret = "NOTION_OSS_ACCESS_KEY_SECRET"
	EnvOSSBucketName      = "NOTION_OSS_BUCKET_NAME"
	EnvOSSEndpoint        = "NOTION_OSS_ENDPOINT"
	EnvOSSCDNDomain       = "NOTION_OSS_CDN_DOMAIN"
	EnvHexoRoot           = "HEXO_ROOT"
)

// ApplyEnv overrides fields with the non-empty environment values.
func (c *TransferConfig) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Notion.Token, EnvNotionToken)
	set(&c.OSS.AccessKeyID, EnvOSSAccessKeyID)
	set(&c.OSS.AccessKeySecret, EnvOSSAccessKeySecret)
	set(&c.OSS.BucketName, EnvOSSBucketName)
	set(&c.OSS.Endpoint, EnvOSSEndpoint)
	set(&c.OSS.CDNDomain, EnvOSSCDNDomain)
	set(&c.Hexo.BlogPath, EnvHexoRoot)
}

// Validate checks field constraints and the settings the chosen storage
// backend requires.
func (c *TransferConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var missing []string
	switch c.Images.Storage {
	case StorageOSS:
		for name, v := range map[string]string{
			"oss.access_key_id":     c.OSS.AccessKeyID,
			"oss.access_key_secret": c.OSS.AccessKeySecret,
			"oss.bucket_name":       c.OSS.BucketName,
			"oss.endpoint":          c.OSS.Endpoint,
			"oss.cdn_domain":        c.OSS.CDNDomain,
		} {
			if v == "" {
				missing = append(missing, name)
			}
		}
	case StorageFilesystem:
		if c.Images.Folder == "" {
			missing = append(missing, "images.folder")
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("invalid config: missing %s", strings.Join(missing, ", "))
	}
	if c.Network.APITimeout <= 0 || c.Network.ImageTimeout <= 0 {
		return fmt.Errorf("invalid config: network timeouts must be positive")
	}
	return nil
}

// PostsDir is where published articles go.
func (c *TransferConfig) PostsDir() string {
	if c.Hexo.PostsFolder != "" {
		return c.Hexo.PostsFolder
	}
	return filepath.Join(c.Hexo.BlogPath, "source", "_posts")
}

// TestDir is where test exports go.
func (c *TransferConfig) TestDir() string {
	if c.Hexo.TestFolder != "" {
		return c.Hexo.TestFolder
	}
	return filepath.Join(c.Hexo.BlogPath, "test")
}

// ConvertOptions derives converter options from the Markdown settings.
func (c *TransferConfig) ConvertOptions() ConvertOptions {
	indent := c.Markdown.ListIndent
	if indent <= 0 {
		indent = 4
	}
	return ConvertOptions{
		Indent:          strings.Repeat(" ", indent),
		ToggleAsDetails: c.Markdown.ToggleAsDetails,
	}
}
