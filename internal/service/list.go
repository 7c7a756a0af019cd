package service

import (
	"context"
	"fmt"

	"github.com/beanbocchi/stowage/internal/journal"
	"github.com/beanbocchi/stowage/internal/model"
	"github.com/beanbocchi/stowage/pkg/validator"
)

func (s *Service) ListUploads(ctx context.Context, params journal.ListParams) (model.PaginateResult[journal.Upload], error) {
	if err := validator.Validate(params); err != nil {
		return model.PaginateResult[journal.Upload]{}, err
	}

	uploads, err := s.journal.List(ctx, params)
	if err != nil {
		return model.PaginateResult[journal.Upload]{}, fmt.Errorf("list uploads: %w", err)
	}
	return uploads, nil
}

type GetUploadParams struct {
	UploadID string `validate:"required"`
}

func (s *Service) GetUpload(ctx context.Context, params GetUploadParams) (journal.Upload, error) {
	if err := validator.Validate(params); err != nil {
		return journal.Upload{}, err
	}

	// Not-found errors are coded already.
	return s.journal.Get(ctx, params.UploadID)
}
