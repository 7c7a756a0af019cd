package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/beanbocchi/stowage/internal/model"
	"github.com/beanbocchi/stowage/pkg/response"
	"github.com/beanbocchi/stowage/pkg/sdk"
)

// statusOf maps an error to the gateway's status code. Client errors of the
// storage service pass through; its server errors become 502.
func statusOf(err error) int {
	var perr *sdk.ProtocolError
	if errors.As(err, &perr) {
		if perr.StatusCode >= 400 && perr.StatusCode < 500 {
			return perr.StatusCode
		}
		return http.StatusBadGateway
	}

	var terr *sdk.TransportError
	if errors.As(err, &terr) {
		return http.StatusBadGateway
	}

	var coded model.Error
	if errors.As(err, &coded) {
		switch {
		case coded.ErrCode == model.ErrValidation.ErrCode:
			return http.StatusBadRequest
		case strings.HasSuffix(coded.ErrCode, ".not_found"):
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

func writeError(c echo.Context, err error) error {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request().URL.Path, "error", err)
	}

	var terr *sdk.TransportError
	if errors.As(err, &terr) {
		err = model.ErrUpstream
	}
	return response.FromError(c.Response(), status, err)
}

// errorHandler reports errors that never reached a handler, such as unknown
// routes, in the same envelope as handler errors.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var herr *echo.HTTPError
	if !errors.As(err, &herr) {
		writeError(c, err)
		return
	}

	coded := model.NewError("http", http.StatusText(herr.Code))
	switch herr.Code {
	case http.StatusNotFound:
		coded = model.ErrResourceNotFound
	case http.StatusInternalServerError:
		coded = model.ErrInternal
	}
	if err := response.FromError(c.Response(), herr.Code, coded); err != nil {
		slog.Warn("write error response", "error", err)
	}
}
