package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/offerhub/internal/app"
	"github.com/unclebandit/offerhub/internal/config"
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
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

// checkConfig rejects setups in which a separate worker process would never
// receive a job.
func checkConfig(cfg *config.Config) error {
	if cfg.QueueBackend != config.QueueAMQP {
		return fmt.Errorf("the standalone worker needs QUEUE_BACKEND=%s, got %q", config.QueueAMQP, cfg.QueueBackend)
	}
	return nil
}

const jobTimeout = 10 * time.Minute

func newWorker(runner service.JobRunner, logger *slog.Logger) *service.Worker {
	return service.NewWorker(runner, jobTimeout, logger)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := checkConfig(cfg); err != nil {
		return err
	}

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

	// jobs run inline here; publishing again would loop
	a.Service.Async = false

	if err := newWorker(a.Service, logger).Start(a.Queue); err != nil {
		return err
	}

	logger.Info("worker running, waiting for jobs", "queue", cfg.AMQPQueue)
	<-ctx.Done()
	return nil
}
