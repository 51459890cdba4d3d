// Package storage puts externalized images somewhere durable and tells the
// caller the public URL they are served from.
package storage

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("storage: invalid object key")

// ObjectStore is a keyed blob store with public URLs. Put must overwrite an
// existing object with the same key.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	URL(key string) string
}
