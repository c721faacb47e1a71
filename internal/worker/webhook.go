package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/metrics"
	"github.com/mnamhq/channelsync/internal/service"
)

const (
	defaultWebhookInterval = 10 * time.Second
	defaultWebhookBatch    = 50
)

// WebhookWorker feeds received webhook rows through the inbound
// processor on a fixed cadence. Per-event failures are settled on the
// rows themselves; only a failure to claim a batch surfaces here.
type WebhookWorker struct {
	processor *service.ProcessorService
	metrics   *metrics.Set
	log       zerolog.Logger
	interval  time.Duration
	batch     int
}

func NewWebhookWorker(processor *service.ProcessorService, set *metrics.Set, logger zerolog.Logger, interval time.Duration, batch int) *WebhookWorker {
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	if batch <= 0 {
		batch = defaultWebhookBatch
	}
	return &WebhookWorker{
		processor: processor,
		metrics:   set,
		log:       logger.With().Str("component", "webhook_worker").Logger(),
		interval:  interval,
		batch:     batch,
	}
}

// Run polls until ctx is cancelled, draining immediately on start.
func (w *WebhookWorker) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Int("batch", w.batch).Msg("webhook worker started")
	w.drain(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("webhook worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *WebhookWorker) drain(ctx context.Context) {
	for {
		n, err := w.processor.ProcessBatch(ctx, w.batch)
		if err != nil {
			w.metrics.WebhookBatchErrors.Inc()
			w.log.Error().Err(err).Msg("webhook batch failed")
			return
		}
		if n > 0 {
			w.metrics.WebhookClaimed.Add(float64(n))
		}
		if n < w.batch || ctx.Err() != nil {
			return
		}
	}
}
