package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/ratelimit"
	"github.com/mnamhq/channelsync/internal/repository"
)

const collectTimeout = 5 * time.Second

// QueueCollector exports queue depth and pause state as gauges read
// from the database at scrape time. A failed read logs a warning and
// drops that gauge from the scrape instead of failing it.
type QueueCollector struct {
	repos *repository.Set
	rates *ratelimit.Store
	log   zerolog.Logger

	outboxDepth    *prometheus.Desc
	webhookDepth   *prometheus.Desc
	unmatchedDepth *prometheus.Desc
	pausedProps    *prometheus.Desc
}

func NewQueueCollector(repos *repository.Set, rates *ratelimit.Store, logger zerolog.Logger) *QueueCollector {
	return &QueueCollector{
		repos: repos,
		rates: rates,
		log:   logger.With().Str("component", "metrics").Logger(),
		outboxDepth: prometheus.NewDesc(
			namespace+"_outbox_events",
			"Outbox events currently in each status.",
			[]string{"status"}, nil,
		),
		webhookDepth: prometheus.NewDesc(
			namespace+"_webhook_events",
			"Webhook event log rows currently in each status.",
			[]string{"status"}, nil,
		),
		unmatchedDepth: prometheus.NewDesc(
			namespace+"_unmatched_events_pending",
			"Unmatched webhook events waiting for manual resolution.",
			nil, nil,
		),
		pausedProps: prometheus.NewDesc(
			namespace+"_paused_properties",
			"Properties currently paused after a channel 429.",
			nil, nil,
		),
	}
}

func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.outboxDepth
	ch <- c.webhookDepth
	ch <- c.unmatchedDepth
	ch <- c.pausedProps
}

func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	if counts, err := c.repos.Outbox.CountByStatus(ctx); err != nil {
		c.log.Warn().Err(err).Msg("collect outbox depth")
	} else {
		for status, n := range counts {
			ch <- prometheus.MustNewConstMetric(c.outboxDepth, prometheus.GaugeValue, float64(n), status)
		}
	}

	if counts, err := c.repos.WebhookLogs.CountByStatus(ctx); err != nil {
		c.log.Warn().Err(err).Msg("collect webhook depth")
	} else {
		for status, n := range counts {
			ch <- prometheus.MustNewConstMetric(c.webhookDepth, prometheus.GaugeValue, float64(n), status)
		}
	}

	if n, err := c.repos.Unmatched.PendingCount(ctx); err != nil {
		c.log.Warn().Err(err).Msg("collect unmatched depth")
	} else {
		ch <- prometheus.MustNewConstMetric(c.unmatchedDepth, prometheus.GaugeValue, float64(n))
	}

	if states, err := c.rates.Paused(ctx); err != nil {
		c.log.Warn().Err(err).Msg("collect paused properties")
	} else {
		ch <- prometheus.MustNewConstMetric(c.pausedProps, prometheus.GaugeValue, float64(len(states)))
	}
}
