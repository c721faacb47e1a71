package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/testdb"
)

func TestInventoryUpsertReplacesExistingDates(t *testing.T) {
	db := testdb.Open(t)
	repo := NewInventoryRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	bookingID := uuid.New()

	require.NoError(t, repo.Upsert(ctx, []model.InventoryCalendar{
		{UnitID: unit, Date: day(2026, 3, 1), IsAvailable: true},
		{UnitID: unit, Date: day(2026, 3, 2), IsAvailable: true},
	}))

	// The same dates again, now blocked by a booking.
	require.NoError(t, repo.Upsert(ctx, []model.InventoryCalendar{
		{UnitID: unit, Date: day(2026, 3, 1), IsAvailable: false, IsBlocked: true,
			BlockReason: "booking", BookingID: &bookingID, SyncPending: true},
	}))

	rows, err := repo.Range(ctx, unit, day(2026, 3, 1), day(2026, 3, 3))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.False(t, rows[0].IsAvailable)
	assert.True(t, rows[0].IsBlocked)
	assert.Equal(t, "booking", rows[0].BlockReason)
	require.NotNil(t, rows[0].BookingID)
	assert.Equal(t, bookingID, *rows[0].BookingID)
	assert.True(t, rows[0].SyncPending)

	assert.True(t, rows[1].IsAvailable)
}

func TestInventoryRangeIsHalfOpen(t *testing.T) {
	db := testdb.Open(t)
	repo := NewInventoryRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	require.NoError(t, repo.Upsert(ctx, []model.InventoryCalendar{
		{UnitID: unit, Date: day(2026, 3, 1), IsAvailable: true},
		{UnitID: unit, Date: day(2026, 3, 2), IsAvailable: true},
		{UnitID: unit, Date: day(2026, 3, 3), IsAvailable: true},
	}))

	rows, err := repo.Range(ctx, unit, day(2026, 3, 1), day(2026, 3, 3))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Date.Equal(day(2026, 3, 1)))
	assert.True(t, rows[1].Date.Equal(day(2026, 3, 2)))
}

func TestInventoryClearSyncPending(t *testing.T) {
	db := testdb.Open(t)
	repo := NewInventoryRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	otherUnit := uuid.New()
	require.NoError(t, repo.Upsert(ctx, []model.InventoryCalendar{
		{UnitID: unit, Date: day(2026, 3, 1), SyncPending: true},
		{UnitID: unit, Date: day(2026, 3, 2), SyncPending: true},
		{UnitID: otherUnit, Date: day(2026, 3, 1), SyncPending: true},
	}))

	require.NoError(t, repo.ClearSyncPending(ctx, unit))

	rows, err := repo.Range(ctx, unit, day(2026, 3, 1), day(2026, 3, 5))
	require.NoError(t, err)
	for _, row := range rows {
		assert.False(t, row.SyncPending)
	}

	others, err := repo.Range(ctx, otherUnit, day(2026, 3, 1), day(2026, 3, 5))
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.True(t, others[0].SyncPending)
}
