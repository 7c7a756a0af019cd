package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/beanbocchi/stowage/internal/client/objectstore"
)

var errIncompleteRead = errors.New("reader closed before end of object")

// EvictionPolicy decides which cached keys to drop.
type EvictionPolicy interface {
	OnAccess(key string)
	// OnAdd returns the keys that must be evicted to make room for key.
	OnAdd(key string, size int64) []string
	OnRemove(key string)
}

type CacheConfig struct {
	Cache objectstore.Client
	// Primary is the authoritative store, usually the remote bucket.
	Primary        objectstore.Client
	EvictionPolicy EvictionPolicy
}

// CacheClient is a read-through cache in front of a primary store. Writes
// go to the primary only and invalidate the cached copy.
type CacheClient struct {
	cache          objectstore.Client
	primary        objectstore.Client
	evictionPolicy EvictionPolicy

	// writes is bumped by every Upload and Delete. A fill started before a
	// write drops its copy.
	writes atomic.Uint64
}

func NewCacheClient(cfg CacheConfig) (*CacheClient, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache storage client is required")
	}
	if cfg.Primary == nil {
		return nil, fmt.Errorf("primary storage client is required")
	}
	if cfg.EvictionPolicy == nil {
		return nil, fmt.Errorf("eviction policy is required")
	}

	return &CacheClient{
		cache:          cfg.Cache,
		primary:        cfg.Primary,
		evictionPolicy: cfg.EvictionPolicy,
	}, nil
}

func (c *CacheClient) Upload(ctx context.Context, key string, content io.Reader) (objectstore.ObjectInfo, error) {
	info, err := c.primary.Upload(ctx, key, content)
	if err != nil {
		return objectstore.ObjectInfo{}, fmt.Errorf("upload to primary: %w", err)
	}

	c.writes.Add(1)
	c.invalidate(ctx, key)
	return info, nil
}

// Download serves from the cache when possible. On a miss the primary
// stream is copied into the cache while the caller reads it; the copy is
// kept only if the caller reads to the end.
func (c *CacheClient) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := c.cache.Download(ctx, key)
	if err == nil {
		c.evictionPolicy.OnAccess(key)
		return reader, nil
	}
	if !errors.Is(err, objectstore.ErrNotFound) {
		slog.Warn("cache read failed, falling back to primary", "key", key, "error", err)
	}

	generation := c.writes.Load()
	primaryReader, err := c.primary.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get from primary: %w", err)
	}

	pr, pw := io.Pipe()
	filled := make(chan struct{})
	go func() {
		defer close(filled)
		c.fill(context.WithoutCancel(ctx), key, generation, pr)
	}()

	return &fillReader{src: primaryReader, pw: pw, filled: filled}, nil
}

func (c *CacheClient) fill(ctx context.Context, key string, generation uint64, pr *io.PipeReader) {
	info, err := c.cache.Upload(ctx, key, pr)
	if err != nil {
		pr.CloseWithError(err)
		if !errors.Is(err, errIncompleteRead) {
			slog.Warn("failed to cache object", "key", key, "error", err)
		}
		return
	}

	if c.writes.Load() != generation {
		if err := c.cache.Delete(ctx, key); err != nil {
			slog.Warn("failed to drop outdated cached object", "key", key, "error", err)
		}
		return
	}

	for _, evictKey := range c.evictionPolicy.OnAdd(key, info.Size) {
		if err := c.cache.Delete(ctx, evictKey); err != nil {
			slog.Warn("failed to evict cached object", "key", evictKey, "error", err)
		}
	}
}

func (c *CacheClient) Delete(ctx context.Context, key string) error {
	err := c.primary.Delete(ctx, key)

	c.writes.Add(1)
	c.invalidate(ctx, key)

	if err != nil {
		return fmt.Errorf("delete from primary: %w", err)
	}
	return nil
}

func (c *CacheClient) invalidate(ctx context.Context, key string) {
	if err := c.cache.Delete(ctx, key); err != nil {
		slog.Warn("failed to delete cached object", "key", key, "error", err)
		return
	}
	c.evictionPolicy.OnRemove(key)
}

// fillReader copies what the caller reads into pw. A failing cache write
// never fails the caller's read. Reaching the end of src and Close both wait
// for the cache write to settle, so locks held by the caller cover it.
type fillReader struct {
	src    io.ReadCloser
	pw     *io.PipeWriter
	filled <-chan struct{}
	failed bool
	done   bool
}

func (r *fillReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 && !r.failed {
		if _, werr := r.pw.Write(p[:n]); werr != nil {
			r.failed = true
		}
	}
	switch {
	case err == io.EOF:
		r.done = true
		r.pw.Close()
		<-r.filled
	case err != nil:
		r.done = true
		r.pw.CloseWithError(err)
		<-r.filled
	}
	return n, err
}

func (r *fillReader) Close() error {
	if !r.done {
		r.done = true
		r.pw.CloseWithError(errIncompleteRead)
	}
	<-r.filled
	return r.src.Close()
}
