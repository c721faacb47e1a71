package worker

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/service"
)

func (e *env) lifecycleWorker(noShowEnv bool) *LifecycleWorker {
	settings := service.NewSettingsService(e.repos, zerolog.Nop())
	return NewLifecycleWorker(e.bookingService(), settings, e.set, zerolog.Nop(), time.Hour, noShowEnv)
}

func TestLifecycleCompletesDueStays(t *testing.T) {
	e := newEnv(t)
	unit := e.seedUnit()
	// Checked in, checkout passed two days ago.
	b := seedBooking(t, e.db, unit.ID, day(2026, 3, 5), day(2026, 3, 8), model.BookingStatusCheckedIn)

	w := e.lifecycleWorker(false)
	w.runOnce(context.Background())

	var got model.Booking
	require.NoError(t, e.db.First(&got, "id = ?", b.ID).Error)
	assert.Equal(t, model.BookingStatusCompleted, got.Status)

	var freshUnit model.Unit
	require.NoError(t, e.db.First(&freshUnit, "id = ?", unit.ID).Error)
	assert.Equal(t, model.UnitStatusNeedsCleaning, freshUnit.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.set.LifecycleTransitions.WithLabelValues("completed")))
}

func TestLifecycleLeavesCurrentStaysAlone(t *testing.T) {
	e := newEnv(t)
	unit := e.seedUnit()
	// Checkout is today; the stay completes tomorrow, not yet.
	b := seedBooking(t, e.db, unit.ID, day(2026, 3, 8), day(2026, 3, 10), model.BookingStatusCheckedIn)

	w := e.lifecycleWorker(false)
	w.runOnce(context.Background())

	var got model.Booking
	require.NoError(t, e.db.First(&got, "id = ?", b.ID).Error)
	assert.Equal(t, model.BookingStatusCheckedIn, got.Status)
}

func TestLifecycleNoShowOffByDefault(t *testing.T) {
	e := newEnv(t)
	unit := e.seedUnit()
	b := seedBooking(t, e.db, unit.ID, day(2026, 3, 5), day(2026, 3, 8), model.BookingStatusConfirmed)

	w := e.lifecycleWorker(false)
	w.runOnce(context.Background())

	var got model.Booking
	require.NoError(t, e.db.First(&got, "id = ?", b.ID).Error)
	assert.Equal(t, model.BookingStatusConfirmed, got.Status)
}

func TestLifecycleNoShowEnabledBySettings(t *testing.T) {
	e := newEnv(t)
	unit := e.seedUnit()
	b := seedBooking(t, e.db, unit.ID, day(2026, 3, 5), day(2026, 3, 8), model.BookingStatusConfirmed)

	settings := service.NewSettingsService(e.repos, zerolog.Nop())
	ctx := context.Background()
	enabled := true
	_, err := settings.Update(ctx, service.UpdateSettingsInput{NoShowCancelEnabled: &enabled})
	require.NoError(t, err)

	w := e.lifecycleWorker(false)
	w.runOnce(ctx)

	var got model.Booking
	require.NoError(t, e.db.First(&got, "id = ?", b.ID).Error)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.set.LifecycleTransitions.WithLabelValues("no_show_cancelled")))
}

func TestLifecycleNoShowEnvOverride(t *testing.T) {
	e := newEnv(t)
	unit := e.seedUnit()
	b := seedBooking(t, e.db, unit.ID, day(2026, 3, 5), day(2026, 3, 8), model.BookingStatusConfirmed)

	w := e.lifecycleWorker(true)
	w.runOnce(context.Background())

	var got model.Booking
	require.NoError(t, e.db.First(&got, "id = ?", b.ID).Error)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
}
