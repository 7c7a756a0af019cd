package transport

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/beanbocchi/stowage/internal/service"
	"github.com/beanbocchi/stowage/pkg/sdk"
	"github.com/beanbocchi/stowage/pkg/validator"
)

// NewEcho creates the gateway. Gateway metrics are registered on the sdk
// client's registry so /metrics serves both.
func NewEcho(svc *service.Service, metrics *sdk.Metrics) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())

	customVal, err := validator.New()
	if err != nil {
		return nil, err
	}
	e.Validator = customVal

	if metrics != nil {
		gatewayMetrics, err := newGatewayMetrics(metrics.Registry())
		if err != nil {
			return nil, err
		}
		e.Use(gatewayMetrics.middleware())
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	SetupRoute(e, svc)

	return e, nil
}
