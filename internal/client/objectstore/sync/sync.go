package sync

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/beanbocchi/stowage/internal/client/objectstore"
	"github.com/beanbocchi/stowage/internal/utils/ioutil"
)

type SyncConfig struct {
	Client objectstore.Client
}

// keyLock is shared by every caller holding or waiting on the same key.
type keyLock struct {
	sync.RWMutex
	refs int
}

// SyncClient serializes writers of a key against its readers and other
// writers. Different keys proceed in parallel.
type SyncClient struct {
	client objectstore.Client

	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewSyncClient(cfg SyncConfig) (*SyncClient, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}

	return &SyncClient{
		client: cfg.Client,
		locks:  make(map[string]*keyLock),
	}, nil
}

func (c *SyncClient) acquire(key string) *keyLock {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[key]
	if !ok {
		lock = &keyLock{}
		c.locks[key] = lock
	}
	lock.refs++
	return lock
}

// release drops the entry once nobody references the key.
func (c *SyncClient) release(key string, lock *keyLock) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(c.locks, key)
	}
}

func (c *SyncClient) Upload(ctx context.Context, key string, content io.Reader) (objectstore.ObjectInfo, error) {
	lock := c.acquire(key)
	defer c.release(key, lock)
	lock.Lock()
	defer lock.Unlock()

	return c.client.Upload(ctx, key, content)
}

// Download holds the read lock until the returned reader is closed.
func (c *SyncClient) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	lock := c.acquire(key)
	lock.RLock()
	unlock := func() {
		lock.RUnlock()
		c.release(key, lock)
	}

	file, err := c.client.Download(ctx, key)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("download: %w", err)
	}

	return ioutil.NewReleaseReadCloser(file, unlock), nil
}

func (c *SyncClient) Delete(ctx context.Context, key string) error {
	lock := c.acquire(key)
	defer c.release(key, lock)
	lock.Lock()
	defer lock.Unlock()

	return c.client.Delete(ctx, key)
}

// lockedKeys reports how many keys currently have a lock entry.
func (c *SyncClient) lockedKeys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
