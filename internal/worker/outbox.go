package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/metrics"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/service"
)

const (
	defaultOutboxInterval = 10 * time.Second
	defaultOutboxBatch    = 50
)

// OutboxWorker drains the outbound queue: claim a due batch, push each
// event to the channel through the sync service, and settle the row as
// completed, retrying, or failed.
type OutboxWorker struct {
	repos    *repository.Set
	sync     *service.SyncService
	metrics  *metrics.Set
	log      zerolog.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewOutboxWorker(repos *repository.Set, syncSvc *service.SyncService, set *metrics.Set, logger zerolog.Logger, interval time.Duration, batch int, now func() time.Time) *OutboxWorker {
	if interval <= 0 {
		interval = defaultOutboxInterval
	}
	if batch <= 0 {
		batch = defaultOutboxBatch
	}
	if now == nil {
		now = time.Now
	}
	return &OutboxWorker{
		repos:    repos,
		sync:     syncSvc,
		metrics:  set,
		log:      logger.With().Str("component", "outbox_worker").Logger(),
		interval: interval,
		batch:    batch,
		now:      now,
	}
}

// Run polls until ctx is cancelled. The first drain fires immediately
// so a restart does not sit out a full interval with work queued.
func (w *OutboxWorker) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Int("batch", w.batch).Msg("outbox worker started")
	w.drain(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain claims batches until the queue has no more due work.
func (w *OutboxWorker) drain(ctx context.Context) {
	for {
		n, err := w.runBatch(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("outbox batch failed")
			return
		}
		if n < w.batch || ctx.Err() != nil {
			return
		}
	}
}

// runBatch claims one batch and executes every surviving event. The
// claim already merged duplicates and bumped attempts, so each event
// here is the newest of its (unit, type) group and owned by us.
func (w *OutboxWorker) runBatch(ctx context.Context) (int, error) {
	events, err := w.repos.Outbox.ClaimBatch(ctx, w.now(), w.batch)
	if err != nil {
		return 0, err
	}
	for i := range events {
		select {
		case <-ctx.Done():
			return len(events), nil
		default:
		}
		w.execute(ctx, &events[i])
	}
	return len(events), nil
}

func (w *OutboxWorker) execute(ctx context.Context, ev *model.IntegrationOutbox) {
	log := w.log.With().
		Str("event_id", ev.ID.String()).
		Str("event_type", ev.EventType).
		Str("unit_id", ev.UnitID.String()).
		Int("attempt", ev.Attempts).
		Logger()

	response, execErr := w.sync.Execute(ctx, ev)
	if execErr == nil {
		now := w.now()
		if err := w.repos.Outbox.MarkCompleted(ctx, ev.ID, response, now); err != nil {
			log.Error().Err(err).Msg("complete outbox event")
			return
		}
		if err := w.repos.Connections.MarkSynced(ctx, ev.ConnectionID, now); err != nil {
			log.Error().Err(err).Msg("mark connection synced")
		}
		w.metrics.OutboxProcessed.WithLabelValues(ev.EventType, metrics.OutcomeCompleted).Inc()
		log.Info().Msg("outbox event completed")
		return
	}

	var pauseErr *channex.PauseError
	if errors.As(execErr, &pauseErr) {
		wait := pauseErr.RetryAfter
		if wait <= 0 {
			wait = time.Minute
		}
		if err := w.repos.Outbox.Reschedule(ctx, ev.ID, w.now().Add(wait), "property rate-limited"); err != nil {
			log.Error().Err(err).Msg("reschedule paused event")
			return
		}
		w.metrics.OutboxProcessed.WithLabelValues(ev.EventType, metrics.OutcomeRateLimited).Inc()
		log.Warn().Str("property_id", pauseErr.PropertyID).Dur("retry_after", wait).Msg("property rate-limited")
		return
	}

	maxAttempts := ev.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultOutboxMaxAttempts
	}
	if ev.Attempts >= maxAttempts {
		if err := w.repos.Outbox.MarkFailed(ctx, ev.ID, execErr.Error()); err != nil {
			log.Error().Err(err).Msg("fail outbox event")
			return
		}
		w.metrics.OutboxProcessed.WithLabelValues(ev.EventType, metrics.OutcomeFailed).Inc()
		log.Error().Err(execErr).Msg("outbox event permanently failed")
		return
	}

	next := w.now().Add(retryBackoff(ev.Attempts))
	if err := w.repos.Outbox.Reschedule(ctx, ev.ID, next, execErr.Error()); err != nil {
		log.Error().Err(err).Msg("reschedule outbox event")
		return
	}
	w.metrics.OutboxProcessed.WithLabelValues(ev.EventType, metrics.OutcomeRescheduled).Inc()
	log.Warn().Err(execErr).Time("next_attempt", next).Msg("outbox event rescheduled")
}

// retryBackoff doubles per attempt, capped at an hour: 1m, 2m, 4m, ...
func retryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 7 {
		return 60 * time.Minute
	}
	mins := 1 << (attempts - 1)
	if mins > 60 {
		mins = 60
	}
	return time.Duration(mins) * time.Minute
}
