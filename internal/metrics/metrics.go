// Package metrics holds the prometheus collectors of the campaign pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offerhub_campaign_transitions_total",
		Help: "Committed campaign status transitions.",
	}, []string{"from", "to"})

	MaterializedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offerhub_campaign_customers_materialized_total",
		Help: "New campaign-customer associations created.",
	}, []string{"tenant"})

	PipelineFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offerhub_pipeline_failures_total",
		Help: "Pipeline stage failures by stage and error class.",
	}, []string{"stage", "reason"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offerhub_notifications_total",
		Help: "Offer notifications attempted, by result.",
	}, []string{"tenant", "result"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offerhub_pipeline_stage_duration_seconds",
		Help:    "Duration of each pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
)
