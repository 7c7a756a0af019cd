package transport

import (
	"net/http"

	"github.com/guregu/null/v6"
	"github.com/labstack/echo/v4"

	"github.com/beanbocchi/stowage/internal/journal"
	"github.com/beanbocchi/stowage/internal/model"
	"github.com/beanbocchi/stowage/internal/service"
	"github.com/beanbocchi/stowage/pkg/response"
)

type ListUploadsRequest struct {
	model.PaginationParams
	State null.String `query:"state"`
}

func (h *Handler) ListUploads(c echo.Context) error {
	var req ListUploadsRequest
	if err := c.Bind(&req); err != nil {
		return response.FromError(c.Response(), http.StatusBadRequest, model.ErrValidation.Fmt(err.Error()))
	}

	uploads, err := h.svc.ListUploads(c.Request().Context(), journal.ListParams{
		PaginationParams: req.PaginationParams,
		State:            req.State,
	})
	if err != nil {
		return writeError(c, err)
	}
	return response.FromPaginate(c.Response(), http.StatusOK, uploads)
}

type GetUploadRequest struct {
	UploadID string `param:"id" validate:"required"`
}

func (h *Handler) GetUpload(c echo.Context) error {
	var req GetUploadRequest
	if err := c.Bind(&req); err != nil {
		return response.FromError(c.Response(), http.StatusBadRequest, model.ErrValidation.Fmt(err.Error()))
	}
	if err := c.Validate(&req); err != nil {
		return writeError(c, err)
	}

	upload, err := h.svc.GetUpload(c.Request().Context(), service.GetUploadParams{UploadID: req.UploadID})
	if err != nil {
		return writeError(c, err)
	}
	return response.FromDTO(c.Response(), http.StatusOK, upload)
}
