package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/unclebandit/offerhub/internal/queue"
)

// JobRunner is the part of CampaignService the worker needs.
type JobRunner interface {
	RunJob(ctx context.Context, job queue.Job) error
}

// Worker processes pipeline jobs delivered by a queue.
type Worker struct {
	Runner  JobRunner
	Timeout time.Duration
	Logger  *slog.Logger
}

// Constructor
func NewWorker(runner JobRunner, timeout time.Duration, logger *slog.Logger) *Worker {
	return &Worker{Runner: runner, Timeout: timeout, Logger: logger}
}

// Start subscribes the worker to q. Jobs are then handled until q is closed.
func (w *Worker) Start(q queue.Queue) error {
	return q.Subscribe(w.Handle)
}

// Handle runs one job with the worker's timeout. Its error drives the queue's retry.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := w.Runner.RunJob(ctx, job)
	log := logger(w.Logger).With("job", job.String(), "took", time.Since(start))
	if err != nil {
		log.Warn("job failed", "error", err)
		return err
	}
	log.Info("job done")
	return nil
}
