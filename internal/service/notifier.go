package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/metrics"
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/notify"
	"github.com/unclebandit/offerhub/internal/repository"
	"github.com/unclebandit/offerhub/internal/telemetry"
)

// ActivationReport aggregates one notifier run.
type ActivationReport struct {
	CampaignID  int64                      `json:"campaign_id"`
	Deliverable int                        `json:"deliverable"`
	Notified    []uuid.UUID                `json:"notified"`
	Failures    []*appErrors.DispatchError `json:"-"`
	Errors      map[string]string          `json:"errors,omitempty"`
}

func (r *ActivationReport) Summary() string {
	return fmt.Sprintf("notified %d of %d; %d failed", len(r.Notified), r.Deliverable, len(r.Failures))
}

// Notifier sends the offer to every pending association of a campaign whose
// customer has an email address.
type Notifier struct {
	Associations repository.CampaignCustomerRepositoryInterface
	Offers       repository.OfferRepositoryInterface
	Sender       notify.Sender
	Concurrency  int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Activate dispatches to all deliverable recipients. A failed recipient stays
// pending and does not stop the others. Successful recipients are marked sent
// in a single commit once dispatch is over. Runs for the same campaign are
// serialised; a run that waited only sees rows still pending.
func (n *Notifier) Activate(ctx context.Context, c *model.Campaign) (*ActivationReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.notify")
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("notify").Observe(time.Since(start).Seconds())
	}()

	log := logger(n.Logger).With("tenant", c.TenantName, "campaign_id", c.ID)

	// overlapping runs would read the same pending rows and email them twice
	release, err := n.Associations.LockCampaign(ctx, c.ID)
	if err != nil {
		return nil, fail(span, log, "notify", err)
	}
	defer release()

	recipients, err := n.Associations.ListDeliverable(ctx, c.TenantName, c.ID)
	if err != nil {
		return nil, fail(span, log, "notify", err)
	}

	attrs, err := n.offerAttributes(ctx, c)
	if err != nil {
		return nil, fail(span, log, "notify", err)
	}

	report := &ActivationReport{CampaignID: c.ID, Deliverable: len(recipients), Notified: []uuid.UUID{}}
	if len(recipients) == 0 {
		log.Info("no pending recipients")
		return report, nil
	}

	// results[i] belongs to recipients[i]; each goroutine writes only its own slot
	results := make([]error, len(recipients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, n.Concurrency))
	for i, r := range recipients {
		i, r := i, r
		g.Go(func() error {
			results[i] = n.Sender.Send(gctx, notify.Notification{
				RecipientAddress:    r.Email,
				CampaignName:        c.Name,
				CustomerDisplayName: r.FullName,
				OfferAttributes:     attrs,
			})
			return nil
		})
	}
	g.Wait()

	sent := make([]uuid.UUID, 0, len(recipients))
	for i, r := range recipients {
		if results[i] != nil {
			de := &appErrors.DispatchError{CustomerID: r.CustomerID.String(), Err: results[i]}
			report.Failures = append(report.Failures, de)
			metrics.NotificationsTotal.WithLabelValues(c.TenantName, "failed").Inc()
			log.Warn("offer dispatch failed", "customer_id", r.CustomerID, "error", results[i])
			continue
		}
		sent = append(sent, r.CustomerID)
		metrics.NotificationsTotal.WithLabelValues(c.TenantName, "sent").Inc()
	}

	if len(sent) > 0 {
		// emails already left; record them even if the caller went away
		if _, err := n.Associations.MarkSent(context.WithoutCancel(ctx), c.TenantName, c.ID, sent, n.now()); err != nil {
			return report, fail(span, log, "notify", fmt.Errorf("mark %d associations sent: %w", len(sent), err))
		}
	}
	report.Notified = sent

	if len(report.Failures) > 0 {
		report.Errors = make(map[string]string, len(report.Failures))
		for _, f := range report.Failures {
			report.Errors[f.CustomerID] = f.Err.Error()
		}
	}

	span.SetAttributes(attribute.Int("notified", len(sent)), attribute.Int("failed", len(report.Failures)))
	log.Info("activation finished", "summary", report.Summary())
	return report, nil
}

// offerAttributes loads the attached offer's data. A campaign without an
// offer, or whose offer was deleted, is notified without offer details.
func (n *Notifier) offerAttributes(ctx context.Context, c *model.Campaign) (model.Attributes, error) {
	if c.OfferID == nil || n.Offers == nil {
		return nil, nil
	}
	o, err := n.Offers.GetByID(ctx, c.TenantName, *c.OfferID)
	if err != nil {
		var nf *appErrors.ErrNotFound
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, fmt.Errorf("load offer %d: %w", *c.OfferID, err)
	}
	return o.Data, nil
}

func (n *Notifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now().UTC()
}
