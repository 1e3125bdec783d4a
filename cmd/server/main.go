package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/unclebandit/offerhub/internal/app"
	"github.com/unclebandit/offerhub/internal/config"
	"github.com/unclebandit/offerhub/internal/controller"
	"github.com/unclebandit/offerhub/internal/handler"
	"github.com/unclebandit/offerhub/internal/service"
	"github.com/unclebandit/offerhub/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.TracingEnabled)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// the in-memory queue only reaches workers inside this process
	if cfg.PipelineMode == config.PipelineQueue && cfg.QueueBackend == config.QueueMemory {
		if err := service.NewWorker(a.Service, 10*time.Minute, logger).Start(a.Queue); err != nil {
			return err
		}
		logger.Info("in-process pipeline worker subscribed")
	}

	router := controller.NewRouter(
		controller.NewTenantController(a.Service),
		controller.NewCampaignController(a.Service),
		handler.NewCampaignHandler(a.Service),
		logger,
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "offerhub"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", "addr", cfg.HTTPAddr, "pipeline_mode", cfg.PipelineMode, "queue_backend", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
