package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"notion2hexo/internal/netclient"
)

// OSSConfig holds the bucket credentials and the CDN domain serving it.
type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	BucketName      string
	CDNDomain       string
}

// OSSStore stores objects in an Aliyun OSS bucket.
type OSSStore struct {
	bucket    *oss.Bucket
	cdnDomain string
}

// NewOSSStore connects to the bucket. No request is made until first use.
func NewOSSStore(cfg OSSConfig) (*OSSStore, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("creating oss client: %w", err)
	}
	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", cfg.BucketName, err)
	}
	return &OSSStore{bucket: bucket, cdnDomain: cfg.CDNDomain}, nil
}

func (s *OSSStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.IsObjectExist(key, oss.WithContext(ctx))
	if err != nil {
		return false, classifyOSSError(err)
	}
	return ok, nil
}

func (s *OSSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	opts := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	if err := s.bucket.PutObject(key, bytes.NewReader(data), opts...); err != nil {
		return classifyOSSError(err)
	}
	return nil
}

func (s *OSSStore) URL(key string) string {
	return CDNURL(s.cdnDomain, key)
}

// CDNURL joins a CDN domain, with or without scheme, and an object key.
func CDNURL(domain, key string) string {
	domain = strings.TrimRight(domain, "/")
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return domain + "/" + strings.TrimLeft(key, "/")
}

// classifyOSSError marks client errors other than throttling as permanent so
// they are not retried.
func classifyOSSError(err error) error {
	var se oss.ServiceError
	if errors.As(err, &se) {
		if se.StatusCode >= 400 && se.StatusCode < 500 &&
			se.StatusCode != http.StatusTooManyRequests && se.StatusCode != http.StatusRequestTimeout {
			return netclient.Permanent(fmt.Errorf("oss %s: %w", se.Code, err))
		}
	}
	return err
}
