package objectstore

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
	// Hash is the hex BLAKE3 digest of the content.
	Hash string `json:"hash"`
	ETag string `json:"etag,omitempty"`
}

type Client interface {
	Upload(ctx context.Context, key string, content io.Reader) (ObjectInfo, error)
	// Download returns an error wrapping ErrNotFound for missing keys.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete succeeds for missing keys.
	Delete(ctx context.Context, key string) error
}
