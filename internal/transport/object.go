package transport

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/beanbocchi/stowage/internal/service"
	"github.com/beanbocchi/stowage/pkg/response"
)

func (h *Handler) Push(c echo.Context) error {
	req := c.Request()
	info, err := h.svc.Push(req.Context(), service.PushParams{
		Key:     c.Param("*"),
		Content: req.Body,
		Size:    req.ContentLength,
	})
	if err != nil {
		return writeError(c, err)
	}

	return response.FromDTO(c.Response(), http.StatusCreated, info)
}

func (h *Handler) Pull(c echo.Context) error {
	reader, err := h.svc.Pull(c.Request().Context(), service.PullParams{Key: c.Param("*")})
	if err != nil {
		return writeError(c, err)
	}
	defer reader.Close()

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	c.Response().WriteHeader(http.StatusOK)

	// Headers are gone, a failure here can only cut the body short.
	if _, err := io.Copy(c.Response(), reader); err != nil {
		slog.Warn("object stream interrupted", "key", c.Param("*"), "error", err)
	}
	return nil
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), service.DeleteParams{Key: c.Param("*")}); err != nil {
		return writeError(c, err)
	}

	return response.FromMessage(c.Response(), http.StatusOK, "Object deleted")
}
