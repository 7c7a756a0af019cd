package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/beanbocchi/stowage/internal/client/objectstore"
	"github.com/beanbocchi/stowage/internal/utils/progressr"
	"github.com/beanbocchi/stowage/pkg/validator"
)

type PushParams struct {
	Key     string    `validate:"required,max=1024,objectkey"`
	Content io.Reader `validate:"required"`
	// Size is the expected content length, or -1 when unknown. Only used to
	// report progress.
	Size int64
}

const progressInterval = 5 * time.Second

func (s *Service) Push(ctx context.Context, params PushParams) (objectstore.ObjectInfo, error) {
	if err := validator.Validate(params); err != nil {
		return objectstore.ObjectInfo{}, err
	}
	key := normalizeKey(params.Key)

	progressReader := progressr.NewReader(params.Content, params.Size)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				slog.Info("pushing object", "key", key, "bytes", progressReader.Current(), "progress", progressReader.Progress())
			}
		}
	}()

	info, err := s.objectStore.Upload(ctx, key, progressReader)
	if err != nil {
		return objectstore.ObjectInfo{}, fmt.Errorf("upload object: %w", err)
	}

	slog.Info("pushed object", "key", key, "size", info.Size, "hash", info.Hash)
	return info, nil
}
