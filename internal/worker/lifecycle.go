package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/metrics"
	"github.com/mnamhq/channelsync/internal/service"
)

const defaultLifecycleInterval = time.Hour

// LifecycleWorker ages bookings through their stay on a slow cadence:
// finished stays complete and flag the unit for housekeeping, and
// overdue confirmed bookings cancel as no-shows when that rule is on.
type LifecycleWorker struct {
	bookings  *service.BookingService
	settings  *service.SettingsService
	metrics   *metrics.Set
	log       zerolog.Logger
	interval  time.Duration
	noShowEnv bool
}

// NewLifecycleWorker builds the job. noShowEnv forces no-show
// cancellation on regardless of the stored settings flag.
func NewLifecycleWorker(bookings *service.BookingService, settings *service.SettingsService, set *metrics.Set, logger zerolog.Logger, interval time.Duration, noShowEnv bool) *LifecycleWorker {
	if interval <= 0 {
		interval = defaultLifecycleInterval
	}
	return &LifecycleWorker{
		bookings:  bookings,
		settings:  settings,
		metrics:   set,
		log:       logger.With().Str("component", "lifecycle").Logger(),
		interval:  interval,
		noShowEnv: noShowEnv,
	}
}

// Run applies transitions until ctx is cancelled, starting with an
// immediate pass.
func (w *LifecycleWorker) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("lifecycle job started")
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("lifecycle job stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *LifecycleWorker) runOnce(ctx context.Context) {
	n, err := w.bookings.CompleteDueStays(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("complete due stays")
	} else if n > 0 {
		w.metrics.LifecycleTransitions.WithLabelValues("completed").Add(float64(n))
		w.log.Info().Int("bookings", n).Msg("stays completed")
	}

	if !w.noShowEnabled(ctx) {
		return
	}
	n, err = w.bookings.CancelNoShows(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("cancel no-shows")
	} else if n > 0 {
		w.metrics.LifecycleTransitions.WithLabelValues("no_show_cancelled").Add(float64(n))
		w.log.Info().Int("bookings", n).Msg("no-shows cancelled")
	}
}

// noShowEnabled is true when either the environment override or the
// stored settings switch the rule on.
func (w *LifecycleWorker) noShowEnabled(ctx context.Context) bool {
	if w.noShowEnv {
		return true
	}
	settings, err := w.settings.Get(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("load settings")
		return false
	}
	return settings.NoShowCancelEnabled
}
