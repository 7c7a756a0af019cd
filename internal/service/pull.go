package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/beanbocchi/stowage/internal/client/objectstore"
	"github.com/beanbocchi/stowage/internal/model"
	"github.com/beanbocchi/stowage/pkg/validator"
)

type PullParams struct {
	Key string `validate:"required,max=1024,objectkey"`
}

func (s *Service) Pull(ctx context.Context, params PullParams) (io.ReadCloser, error) {
	if err := validator.Validate(params); err != nil {
		return nil, err
	}
	key := normalizeKey(params.Key)

	reader, err := s.objectStore.Download(ctx, key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, model.ErrObjectNotFound.Fmt(key)
	}
	if err != nil {
		return nil, fmt.Errorf("download object: %w", err)
	}

	return reader, nil
}

type DeleteParams struct {
	Key string `validate:"required,max=1024,objectkey"`
}

func (s *Service) Delete(ctx context.Context, params DeleteParams) error {
	if err := validator.Validate(params); err != nil {
		return err
	}

	if err := s.objectStore.Delete(ctx, normalizeKey(params.Key)); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
