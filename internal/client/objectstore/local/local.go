package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/beanbocchi/stowage/internal/client/objectstore"
	"github.com/beanbocchi/stowage/internal/utils/blake3"
	"github.com/beanbocchi/stowage/internal/utils/progressr"
)

// ClientImpl stores objects as files under a root directory. It is used as
// the cache tier in front of the remote store.
type ClientImpl struct {
	root string
}

type LocalConfig struct {
	// Root is the base directory where objects are stored on disk (e.g., ./cache)
	Root string
}

func NewClient(cfg LocalConfig) (*ClientImpl, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("local root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}
	return &ClientImpl{root: cfg.Root}, nil
}

func (c *ClientImpl) fullPath(key string) string {
	// Rooting the key before cleaning keeps ".." from escaping root.
	return filepath.Join(c.root, filepath.FromSlash(filepath.Clean("/"+key)))
}

func (c *ClientImpl) Upload(ctx context.Context, key string, content io.Reader) (objectstore.ObjectInfo, error) {
	path := c.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return objectstore.ObjectInfo{}, fmt.Errorf("mkdir: %w", err)
	}

	//! Write to a temp file first, a crash mid-write must not leave a partial object behind.
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return objectstore.ObjectInfo{}, fmt.Errorf("create file: %w", err)
	}
	tmpPath := f.Name()

	hashed := blake3.NewReader(content)
	counted := progressr.NewReader(hashed, -1)
	if _, err := io.Copy(f, counted); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return objectstore.ObjectInfo{}, fmt.Errorf("write file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return objectstore.ObjectInfo{}, fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return objectstore.ObjectInfo{}, fmt.Errorf("rename file: %w", err)
	}

	return objectstore.ObjectInfo{Key: key, Size: counted.Current(), Hash: hashed.Sum()}, nil
}

func (c *ClientImpl) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(c.fullPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open %s: %w", key, objectstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

func (c *ClientImpl) Delete(ctx context.Context, key string) error {
	if err := os.Remove(c.fullPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
