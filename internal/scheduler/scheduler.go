// Package scheduler drives the cron-shaped work: periodic price pushes
// on the channel's local clock, plus housekeeping for expired refresh
// tokens. The heavy lifting stays in the outbox; a tick only enqueues.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/metrics"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/service"
)

// priceSyncSpec fires at the channel's rollover hours in local time:
// midnight plus the afternoon and late-evening repricing windows.
const priceSyncSpec = "0 0,16,21,23 * * *"

// tokenPurgeSpec sweeps expired refresh tokens nightly, off the price
// ticks.
const tokenPurgeSpec = "0 3 * * *"

// tickHourFormat stamps idempotency keys with the tick's local hour.
const tickHourFormat = "2006010215"

type Scheduler struct {
	repos   *repository.Set
	auth    *service.AuthService
	metrics *metrics.Set
	cron    *cron.Cron
	log     zerolog.Logger
	loc     *time.Location
	now     func() time.Time
}

func New(repos *repository.Set, auth *service.AuthService, set *metrics.Set, loc *time.Location, logger zerolog.Logger, now func() time.Time) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		repos:   repos,
		auth:    auth,
		metrics: set,
		cron:    cron.New(cron.WithLocation(loc)),
		log:     logger.With().Str("component", "scheduler").Logger(),
		loc:     loc,
		now:     now,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(priceSyncSpec, func() {
		if _, err := s.EnqueuePriceSyncs(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("scheduled price sync tick failed")
		}
	}); err != nil {
		return fmt.Errorf("register price sync job: %w", err)
	}
	if _, err := s.cron.AddFunc(tokenPurgeSpec, func() {
		s.purgeTokens(context.Background())
	}); err != nil {
		return fmt.Errorf("register token purge job: %w", err)
	}
	s.cron.Start()
	s.log.Info().Str("timezone", s.loc.String()).Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// EnqueuePriceSyncs queues one price_update per syncable unit: every
// active mapping with a rate plan on an active connection. The
// idempotency key carries the tick's local hour, so a restarted
// scheduler or a second instance adds nothing on a repeat. Returns how
// many events were newly queued.
func (s *Scheduler) EnqueuePriceSyncs(ctx context.Context) (int, error) {
	mappings, err := s.repos.Mappings.ActiveWithRatePlans(ctx)
	if err != nil {
		return 0, fmt.Errorf("list syncable mappings: %w", err)
	}

	tick := s.now().In(s.loc).Format(tickHourFormat)
	queued := 0
	for i := range mappings {
		m := &mappings[i]
		key := fmt.Sprintf("scheduled_price_%s_%s", m.UnitID, tick)
		payload, _ := json.Marshal(model.OutboxPayload{UnitID: m.UnitID.String(), Reason: "scheduled"})
		ev := &model.IntegrationOutbox{
			ConnectionID:   m.ConnectionID,
			EventType:      model.OutboxEventPriceUpdate,
			UnitID:         m.UnitID,
			Payload:        payload,
			Status:         model.OutboxStatusPending,
			NextAttemptAt:  s.now(),
			IdempotencyKey: &key,
		}
		err := s.repos.Outbox.Enqueue(ctx, ev)
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			s.metrics.ScheduledEnqueues.WithLabelValues("duplicate").Inc()
		case err != nil:
			s.log.Error().Err(err).Str("unit_id", m.UnitID.String()).Msg("enqueue scheduled price sync")
		default:
			s.metrics.ScheduledEnqueues.WithLabelValues("enqueued").Inc()
			queued++
		}
	}
	if queued > 0 {
		s.log.Info().Int("events", queued).Str("tick", tick).Msg("scheduled price syncs queued")
	}
	return queued, nil
}

func (s *Scheduler) purgeTokens(ctx context.Context) {
	n, err := s.auth.PurgeExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("purge refresh tokens")
		return
	}
	if n > 0 {
		s.log.Info().Int64("tokens", n).Msg("expired refresh tokens purged")
	}
}
