package service

import (
	"fmt"
	"strings"

	"github.com/beanbocchi/stowage/config"
	"github.com/beanbocchi/stowage/internal/client/objectstore"
	"github.com/beanbocchi/stowage/internal/client/objectstore/cache"
	"github.com/beanbocchi/stowage/internal/client/objectstore/local"
	"github.com/beanbocchi/stowage/internal/client/objectstore/remote"
	"github.com/beanbocchi/stowage/internal/client/objectstore/sync"
	"github.com/beanbocchi/stowage/internal/journal"
	"github.com/beanbocchi/stowage/pkg/sdk"
)

type Service struct {
	objectStore objectstore.Client
	journal     *journal.Journal
}

// New builds a service over an already assembled store.
func New(store objectstore.Client, j *journal.Journal) *Service {
	return &Service{objectStore: store, journal: j}
}

// NewService assembles the store stack from config: the remote bucket,
// optionally behind a local read-through cache, with per-key locking on top.
func NewService(cfg *config.Config, client *sdk.Client, j *journal.Journal) (*Service, error) {
	remoteStore, err := remote.NewClient(remote.RemoteConfig{
		Client:         client,
		Credential:     cfg.Credential.SDK(),
		Namespace:      cfg.Objectstore.Namespace,
		Bucket:         cfg.Objectstore.Bucket,
		Prefix:         cfg.Objectstore.Prefix,
		PartSize:       cfg.Objectstore.PartSize,
		AbortOnFailure: cfg.Objectstore.AbortOnFailure,
	})
	if err != nil {
		return nil, fmt.Errorf("create remote store: %w", err)
	}

	var store objectstore.Client = remoteStore
	if cfg.Objectstore.Cache.Enabled {
		localStore, err := local.NewClient(local.LocalConfig{Root: cfg.Objectstore.Cache.Root})
		if err != nil {
			return nil, fmt.Errorf("create local store: %w", err)
		}

		// MaxSize is in MB.
		maxSizeBytes := cfg.Objectstore.Cache.MaxSize * 1024 * 1024
		store, err = cache.NewCacheClient(cache.CacheConfig{
			Cache:          localStore,
			Primary:        remoteStore,
			EvictionPolicy: cache.NewLRUEvictionPolicy(maxSizeBytes),
		})
		if err != nil {
			return nil, fmt.Errorf("create cache store: %w", err)
		}
	}

	syncStore, err := sync.NewSyncClient(sync.SyncConfig{Client: store})
	if err != nil {
		return nil, fmt.Errorf("create sync store: %w", err)
	}

	return New(syncStore, j), nil
}

// normalizeKey strips leading slashes so "/a/b" and "a/b" name the same object.
func normalizeKey(key string) string {
	return strings.TrimLeft(key, "/")
}
