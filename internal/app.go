package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/beanbocchi/stowage/config"
	"github.com/beanbocchi/stowage/internal/journal"
	"github.com/beanbocchi/stowage/internal/service"
	"github.com/beanbocchi/stowage/internal/transport"
	"github.com/beanbocchi/stowage/pkg/endpoint"
	"github.com/beanbocchi/stowage/pkg/sdk"
)

func SetupLogger(cfg config.Log) {
	SetupLoggerTo(os.Stdout, cfg)
}

func SetupLoggerTo(w io.Writer, cfg config.Log) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// NewSDKClient builds a client for the configured region. observer may be nil.
func NewSDKClient(cfg *config.Config, metrics *sdk.Metrics, observer sdk.UploadObserver) *sdk.Client {
	opts := []sdk.Option{
		sdk.WithHTTPClient(&http.Client{Timeout: cfg.Objectstore.Timeout}),
		sdk.WithMetrics(metrics),
		sdk.WithLogger(slog.Default()),
	}
	if cfg.Objectstore.Endpoint != "" {
		opts = append(opts, sdk.WithResolver(endpoint.FixedResolver(cfg.Objectstore.Endpoint)))
	}
	if observer != nil {
		opts = append(opts, sdk.WithObserver(observer))
	}
	return sdk.NewClient(opts...)
}

// Start serves the gateway until ctx is cancelled, then shuts down
// gracefully.
func Start(ctx context.Context, cfg *config.Config) error {
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	metrics := sdk.NewMetrics()
	client := NewSDKClient(cfg, metrics, j)

	svc, err := service.NewService(cfg, client, j)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	e, err := transport.NewEcho(svc, metrics)
	if err != nil {
		return fmt.Errorf("create echo: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Server.Addr, "bucket", cfg.Objectstore.Bucket)
		errCh <- e.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
