package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook delivery metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clerksync_webhook_deliveries_total",
			Help: "Total number of webhook deliveries processed",
		},
		[]string{"event_type", "outcome"},
	)

	VerificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clerksync_webhook_verification_failures_total",
			Help: "Total number of webhook signature verification failures",
		},
		[]string{"reason"},
	)

	ReplaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clerksync_webhook_replays_total",
			Help: "Total number of duplicate deliveries short-circuited by the replay cache",
		},
	)

	// Reconciliation metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clerksync_sync_duration_seconds",
			Help:    "Duration of reconciliation operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Outbound call metrics
	NotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clerksync_notify_failures_total",
			Help: "Total number of failed metadata push-backs to Clerk",
		},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clerksync_event_publish_failures_total",
			Help: "Total number of failed sync event publications",
		},
	)
)
