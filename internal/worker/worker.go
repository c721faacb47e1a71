// Package worker hosts the long-running loops: the outbox drainer that
// pushes queued syncs to the channel, the inbound processor that turns
// webhook rows into bookings, and the lifecycle job that ages bookings
// through their stay. Every loop blocks in Run until its context is
// cancelled; the Manager fans them out and waits on shutdown.
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/repository"
)

// Runner is one background loop. Run blocks until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// Manager runs a set of loops on their own goroutines and waits for
// all of them to drain on shutdown.
type Manager struct {
	runners []Runner
	wg      sync.WaitGroup
}

func NewManager(runners ...Runner) *Manager {
	return &Manager{runners: runners}
}

// Start launches every runner against ctx.
func (m *Manager) Start(ctx context.Context) {
	for _, r := range m.runners {
		r := r
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			r.Run(ctx)
		}()
	}
}

// Wait blocks until every runner has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// RecoverStale resets work left in processing by a worker that died
// mid-batch. Runs once at startup, before any loop begins, so crashed
// claims become claimable again instead of sticking forever.
func RecoverStale(ctx context.Context, repos *repository.Set, logger zerolog.Logger) {
	log := logger.With().Str("component", "worker").Logger()
	if n, err := repos.Outbox.RecoverStale(ctx); err != nil {
		log.Error().Err(err).Msg("outbox stale recovery failed")
	} else if n > 0 {
		log.Warn().Int64("events", n).Msg("recovered stale outbox events")
	}
	if n, err := repos.WebhookLogs.RecoverStale(ctx); err != nil {
		log.Error().Err(err).Msg("webhook stale recovery failed")
	} else if n > 0 {
		log.Warn().Int64("events", n).Msg("recovered stale webhook events")
	}
}
