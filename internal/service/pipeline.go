package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unclebandit/offerhub/internal/criteria"
	appErrors "github.com/unclebandit/offerhub/internal/errors"
	"github.com/unclebandit/offerhub/internal/metrics"
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/query"
	"github.com/unclebandit/offerhub/internal/telemetry"
)

// PipelineResult is what one approval run produced.
type PipelineResult struct {
	Predicates []string `json:"predicates"`
	Matched    int      `json:"matched"`
	Added      int      `json:"added"`
}

// ApprovalPipeline runs compile -> build -> resolve -> materialize for a campaign.
// A failure in any stage stops the run before anything is written.
type ApprovalPipeline struct {
	Builder      *query.Builder
	Resolver     *Resolver
	Materializer *Materializer
	Entity       model.Entity
	Logger       *slog.Logger
}

func NewApprovalPipeline(b *query.Builder, r *Resolver, m *Materializer, l *slog.Logger) *ApprovalPipeline {
	return &ApprovalPipeline{Builder: b, Resolver: r, Materializer: m, Entity: model.CustomerEntity, Logger: l}
}

func (p *ApprovalPipeline) Run(ctx context.Context, c *model.Campaign) (*PipelineResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.approve", trace.WithAttributes(
		attribute.String("tenant", c.TenantName),
		attribute.Int64("campaign_id", c.ID),
	))
	defer span.End()

	log := logger(p.Logger).With("tenant", c.TenantName, "campaign_id", c.ID)
	res := &PipelineResult{}

	var preds []criteria.Predicate
	err := stage(ctx, "compile", func(ctx context.Context) error {
		var err error
		preds, err = criteria.Compile(c.SelectionCriteria)
		return err
	})
	if err != nil {
		return nil, fail(span, log, "compile", err)
	}
	for _, pr := range preds {
		res.Predicates = append(res.Predicates, pr.String())
	}
	log.Debug("criteria compiled", "predicates", res.Predicates)

	var q *query.Query
	err = stage(ctx, "build", func(ctx context.Context) error {
		var err error
		q, err = p.Builder.Build(ctx, p.Entity, preds)
		return err
	})
	if err != nil {
		return nil, fail(span, log, "build", err)
	}
	log.Debug("customer query built", "sql", q.SQL)

	var ids []uuid.UUID
	err = stage(ctx, "resolve", func(ctx context.Context) error {
		var err error
		ids, err = p.Resolver.Resolve(ctx, q)
		return err
	})
	if err != nil {
		return nil, fail(span, log, "resolve", err)
	}
	res.Matched = len(ids)

	err = stage(ctx, "materialize", func(ctx context.Context) error {
		var err error
		res.Added, err = p.Materializer.Materialize(ctx, c.TenantName, c.ID, c.OfferID, ids)
		return err
	})
	if err != nil {
		return nil, fail(span, log, "materialize", err)
	}

	span.SetAttributes(attribute.Int("matched", res.Matched), attribute.Int("added", res.Added))
	return res, nil
}

// stage times fn and wraps it in a child span.
func stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func fail(span trace.Span, log *slog.Logger, stageName string, err error) error {
	reason := errorClass(err)
	metrics.PipelineFailuresTotal.WithLabelValues(stageName, reason).Inc()
	span.SetStatus(codes.Error, err.Error())
	log.Error("pipeline stage failed", "stage", stageName, "reason", reason, "error", err)
	return err
}

func errorClass(err error) string {
	var (
		ce *appErrors.CompileError
		se *appErrors.SchemaMismatchError
		re *appErrors.ResolutionError
	)
	switch {
	case errors.As(err, &ce):
		return "compile"
	case errors.As(err, &se):
		return "schema_mismatch"
	case errors.As(err, &re):
		return "resolution"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "internal"
}
