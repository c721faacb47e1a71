// Package metrics holds the Prometheus surface: counters the workers
// and the channel client record into, and a collector that reads queue
// depth and pause state from the database on every scrape.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "channelsync"

// Outcome labels for outbox_events_processed_total.
const (
	OutcomeCompleted   = "completed"
	OutcomeRescheduled = "rescheduled"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
)

// Set bundles every counter and histogram the engine records. One
// instance per process, registered on the registry that /metrics serves.
type Set struct {
	OutboxProcessed      *prometheus.CounterVec
	WebhookClaimed       prometheus.Counter
	WebhookBatchErrors   prometheus.Counter
	LifecycleTransitions *prometheus.CounterVec
	ScheduledEnqueues    *prometheus.CounterVec
	ChannelRequests      *prometheus.CounterVec
	ChannelLatency       *prometheus.HistogramVec
}

// New registers the full set on reg. Tests pass a fresh
// prometheus.NewRegistry so parallel packages never collide.
func New(reg prometheus.Registerer) *Set {
	f := promauto.With(reg)
	return &Set{
		OutboxProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Outbox events handled by the sync worker, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		WebhookClaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_claimed_total",
			Help:      "Webhook events claimed by the inbound worker.",
		}),
		WebhookBatchErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_batch_errors_total",
			Help:      "Inbound worker batches that failed before processing any event.",
		}),
		LifecycleTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Automatic booking transitions applied by the lifecycle job.",
		}, []string{"transition"}),
		ScheduledEnqueues: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_syncs_total",
			Help:      "Price syncs enqueued by the cron scheduler, by result.",
		}, []string{"result"}),
		ChannelRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_requests_total",
			Help:      "Outbound channel API attempts, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		ChannelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_request_duration_seconds",
			Help:      "Outbound channel API attempt latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

// endpointLabel collapses paths like /properties/<id>/bookings to the
// leading segment so label cardinality stays bounded.
func endpointLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
