package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/itzg/go-flagsfiller"
	"github.com/janeczku/go-spinner"
	"github.com/joho/godotenv"
	"github.com/ternarybob/arbor"

	"notion2hexo/core"
	"notion2hexo/internal/images"
	"notion2hexo/internal/logging"
	"notion2hexo/internal/netclient"
	"notion2hexo/internal/storage"
	translator "notion2hexo/pkg"
)

const configFileName = "notionblog.config.json"

var config = translator.DefaultConfig()

var (
	pageFlag        = flag.String("page", "", "Notion page URL or id to publish.")
	testFlag        = flag.Bool("test", false, "Export to the test folder instead of the posts folder.")
	externalizeFlag = flag.String("externalize", "", "Move the images of an existing post to storage and rewrite it.")
	titleFlag       = flag.String("title", "", "Override the article title.")
	tagsFlag        = flag.String("tags", "", "Override the tags, comma separated.")
	categoryFlag    = flag.String("category", "", "Override the category.")
	descriptionFlag = flag.String("description", "", "Override the description.")
	mathjaxFlag     = flag.String("mathjax", "", "Force MathJax on or off (true/false).")
)

func parseJSONConfig() error {
	wkspc := "."
	if os.Getenv("GITHUB_WORKSPACE") != "" {
		wkspc = os.Getenv("GITHUB_WORKSPACE")
	}
	configPath := filepath.Join(wkspc, configFileName)
	content, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := json.Unmarshal(content, &config); err != nil {
		return fmt.Errorf("error parsing %s: %w", configPath, err)
	}
	return nil
}

func parseFlagsConfig() {
	// create a FlagSetFiller
	filler := flagsfiller.New()
	// fill and map struct fields to flags
	err := filler.Fill(flag.CommandLine, &config)
	if err != nil {
		log.Fatal(err)
	}

	// parse command-line like usual
	flag.Parse()
}

func overridesFromFlags() (translator.Overrides, error) {
	o := translator.Overrides{
		Title:       *titleFlag,
		Category:    *categoryFlag,
		Description: *descriptionFlag,
	}
	if *tagsFlag != "" {
		o.Tags = []string{}
		for _, t := range strings.Split(*tagsFlag, ",") {
			if t = strings.TrimSpace(t); t != "" {
				o.Tags = append(o.Tags, t)
			}
		}
	}
	if *mathjaxFlag != "" {
		v, err := strconv.ParseBool(*mathjaxFlag)
		if err != nil {
			return o, fmt.Errorf("invalid -mathjax value %q", *mathjaxFlag)
		}
		o.MathJax = &v
	}
	return o, nil
}

func newStore() (storage.ObjectStore, error) {
	switch config.Images.Storage {
	case translator.StorageFilesystem:
		return storage.NewFilesystemStore(config.Images.Folder, config.Images.Link), nil
	default:
		return storage.NewOSSStore(storage.OSSConfig{
			Endpoint:        config.OSS.Endpoint,
			AccessKeyID:     config.OSS.AccessKeyID,
			AccessKeySecret: config.OSS.AccessKeySecret,
			BucketName:      config.OSS.BucketName,
			CDNDomain:       config.OSS.CDNDomain,
		})
	}
}

func run(ctx context.Context, logger arbor.ILogger) error {
	policy := netclient.DefaultPolicy()
	policy.MaxRetries = config.Network.MaxRetries
	policy.BaseDelay = config.Network.BaseDelay
	policy.MaxDelay = config.Network.MaxDelay
	net := netclient.New(netclient.WithLogger(logger), netclient.WithPolicy(policy))

	store, err := newStore()
	if err != nil {
		return err
	}
	imagePipeline := images.New(net, store,
		images.WithLogger(logger),
		images.WithKeyPrefix(config.Images.KeyPrefix),
		images.WithConcurrency(config.Images.Concurrency),
		images.WithTimeout(config.Network.ImageTimeout),
	)

	if *externalizeFlag != "" {
		spin := spinner.StartNew("Externalizing images")
		warnings, err := core.ExternalizeFile(ctx, imagePipeline, *externalizeFlag)
		spin.Stop()
		if err != nil {
			return fmt.Errorf("❌ Externalizing images: %w", err)
		}
		printWarnings(warnings)
		fmt.Printf("✔ Externalizing images: %s\n", *externalizeFlag)
		return nil
	}

	if *pageFlag == "" {
		return errors.New("missing -page")
	}
	pageID, err := core.ExtractPageID(*pageFlag)
	if err != nil {
		return err
	}
	overrides, err := overridesFromFlags()
	if err != nil {
		return err
	}

	docs := core.NewDocumentClient(config.Notion.Token,
		core.WithNetClient(net, config.Network.APITimeout),
		core.WithClientLogger(logger),
		core.WithRateLimit(config.Notion.RequestsPerSecond),
		core.WithPageSize(config.Notion.PageSize),
	)
	opts := []core.PipelineOption{
		core.WithImages(imagePipeline),
		core.WithPipelineLogger(logger),
	}
	if config.Markdown.FetchBookmarkTitles {
		opts = append(opts, core.WithPreviews(core.NewPreviewResolver(net, config.Network.APITimeout, logger)))
	}
	pipeline := core.NewPipeline(docs, config, opts...)

	spin := spinner.StartNew("Converting Notion page")
	res, err := pipeline.Run(ctx, pageID, overrides)
	spin.Stop()
	if err != nil {
		if core.IsFatal(err) {
			return fmt.Errorf("❌ Converting Notion page: %w (is the page shared with the integration?)", err)
		}
		return fmt.Errorf("❌ Converting Notion page: %w", err)
	}
	fmt.Printf("✔ Converting Notion page: %s\n", res.Title)
	printWarnings(res.Warnings)

	dir := config.PostsDir()
	if *testFlag {
		dir = config.TestDir()
	}
	path, err := core.WriteArticle(dir, res)
	if err != nil {
		return fmt.Errorf("❌ Writing article: %w", err)
	}
	fmt.Printf("✔ Writing article: %s\n", path)

	// Set GITHUB_ACTIONS info variables
	// https://docs.github.com/en/actions/learn-github-actions/workflow-commands-for-github-actions
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		fmt.Printf("::set-output name=article_path::%s\n", path)
		fmt.Printf("::set-output name=warnings::%d\n", len(res.Warnings))
	}
	return nil
}

func printWarnings(warnings []translator.Warning) {
	for _, w := range warnings {
		fmt.Println("⚠", w.String())
	}
}

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file provided")
	}

	if err := parseJSONConfig(); err != nil {
		log.Fatal(err)
	}
	config.ApplyEnv(os.Getenv)
	parseFlagsConfig()

	if err := config.Validate(); err != nil {
		log.Fatal(err)
	}
	logger := logging.New(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		stop()
		os.Exit(1)
	}
}
