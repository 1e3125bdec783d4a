package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JobKind names the side effect a campaign status transition triggers.
type JobKind string

const (
	JobMaterialize JobKind = "materialize"
	JobNotify      JobKind = "notify"
)

// Job is the payload carried by every queue backend.
type Job struct {
	Kind       JobKind `json:"kind"`
	Tenant     string  `json:"tenant"`
	CampaignID int64   `json:"campaign_id"`
}

func (j Job) String() string {
	return fmt.Sprintf("%s campaign %d (tenant %s)", j.Kind, j.CampaignID, j.Tenant)
}

// Handler processes one job. A non-nil error triggers a retry.
type Handler func(ctx context.Context, job Job) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, job Job) error
	Subscribe(handler Handler) error
	Close() error
}

var ErrNoSubscribers = errors.New("queue has no subscribers")

// InMemoryQueue runs jobs in goroutines of the current process, with retry.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   []Handler
	wg         sync.WaitGroup
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(maxRetries int, logger *slog.Logger) *InMemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryQueue{
		MaxRetries: maxRetries,
		Backoff:    500 * time.Millisecond,
		Logger:     logger,
	}
}

// Publish hands the job to every subscriber.
func (q *InMemoryQueue) Publish(ctx context.Context, job Job) error {
	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return ErrNoSubscribers
	}

	for _, handler := range handlers {
		handler := handler
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.processJob(context.WithoutCancel(ctx), handler, job)
		}()
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, job Job) {
	for attempt := 0; ; attempt++ {
		err := handler(ctx, job)
		if err == nil {
			q.Logger.Info("job processed", "job", job.String(), "attempts", attempt+1)
			return
		}
		if attempt >= q.MaxRetries {
			q.Logger.Error("job permanently failed", "job", job.String(), "attempts", attempt+1, "error", err)
			return
		}
		q.Logger.Warn("job failed, retrying", "job", job.String(), "attempt", attempt+1, "error", err)
		time.Sleep(time.Duration(attempt+1) * q.Backoff)
	}
}

// Subscribe adds a handler
func (q *InMemoryQueue) Subscribe(handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers = append(q.handlers, handler)
	return nil
}

// Wait blocks until every published job has finished or given up.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

func (q *InMemoryQueue) Close() error {
	q.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
