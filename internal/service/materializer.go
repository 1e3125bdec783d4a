package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/unclebandit/offerhub/internal/metrics"
	"github.com/unclebandit/offerhub/internal/repository"
)

// Materializer turns resolved customer ids into pending campaign associations.
type Materializer struct {
	Associations repository.CampaignCustomerRepositoryInterface
	Logger       *slog.Logger
}

// Materialize inserts one pending row per id not yet associated with the
// campaign and returns how many were new. Re-running with the same ids adds 0.
func (m *Materializer) Materialize(ctx context.Context, tenant string, campaignID int64, offerID *int64, ids []uuid.UUID) (int, error) {
	added, err := m.Associations.InsertPending(ctx, tenant, campaignID, offerID, ids)
	if err != nil {
		return 0, err
	}
	metrics.MaterializedTotal.WithLabelValues(tenant).Add(float64(added))
	logger(m.Logger).Info("campaign customers materialized",
		"tenant", tenant,
		"campaign_id", campaignID,
		"resolved", len(ids),
		"added", added,
		"skipped", len(ids)-added,
	)
	return added, nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
