// Package app wires configuration, storage and services for the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/unclebandit/offerhub/internal/config"
	"github.com/unclebandit/offerhub/internal/db"
	"github.com/unclebandit/offerhub/internal/notify"
	"github.com/unclebandit/offerhub/internal/query"
	"github.com/unclebandit/offerhub/internal/queue"
	"github.com/unclebandit/offerhub/internal/repository"
	"github.com/unclebandit/offerhub/internal/service"
)

type App struct {
	Config  *config.Config
	DB      *sql.DB
	Queue   queue.Queue
	Service *service.CampaignService
	Logger  *slog.Logger
}

// New opens the database and the queue backend and builds the campaign service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}

	q, err := NewQueue(cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &App{
		Config:  cfg,
		DB:      conn,
		Queue:   q,
		Service: NewService(cfg, conn, q, logger),
		Logger:  logger,
	}, nil
}

// NewQueue picks the queue backend named by QUEUE_BACKEND.
func NewQueue(cfg *config.Config, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case config.QueueAMQP:
		q, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.AMQPQueue, cfg.QueueMaxRetries, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		return q, nil
	case config.QueueMemory:
		return queue.NewInMemoryQueue(cfg.QueueMaxRetries, logger), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
}

// NewService builds the campaign service on top of conn.
func NewService(cfg *config.Config, conn *sql.DB, q queue.Queue, logger *slog.Logger) *service.CampaignService {
	customers := &repository.CustomerRepository{DB: conn}
	associations := &repository.CampaignCustomerRepository{DB: conn}
	offers := &repository.OfferRepository{DB: conn}

	pipeline := service.NewApprovalPipeline(
		query.NewBuilder(&repository.CatalogRepository{DB: conn}),
		&service.Resolver{Customers: customers},
		&service.Materializer{Associations: associations, Logger: logger},
		logger,
	)
	notifier := &service.Notifier{
		Associations: associations,
		Offers:       offers,
		Sender: notify.NewEmailSender(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom,
			cfg.EmailRatePerSec, service.ComposeOfferEmail),
		Concurrency: cfg.NotifyConcurrency,
		Logger:      logger,
	}

	return &service.CampaignService{
		CampaignRepo:    &repository.CampaignRepository{DB: conn},
		AssociationRepo: associations,
		OfferRepo:       offers,
		TenantRepo:      &repository.TenantRepository{DB: conn},
		Pipeline:        pipeline,
		Notifier:        notifier,
		Async:           cfg.PipelineMode == config.PipelineQueue,
		Queue:           q,
		Logger:          logger,
	}
}

func (a *App) Close() error {
	qerr := a.Queue.Close()
	if err := a.DB.Close(); err != nil {
		return err
	}
	return qerr
}
