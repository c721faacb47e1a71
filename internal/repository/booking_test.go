package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/testdb"
)

func day(yy, mm, dd int) time.Time {
	return time.Date(yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
}

func seedBooking(t *testing.T, db *gorm.DB, unitID uuid.UUID, in, out time.Time, status, externalID string) *model.Booking {
	t.Helper()
	b := &model.Booking{
		UnitID:       unitID,
		GuestName:    "Guest",
		GuestPhone:   "0501234567",
		CheckInDate:  in,
		CheckOutDate: out,
		TotalPrice:   decimal.NewFromInt(1000),
		Currency:     "SAR",
		Status:       status,
		SourceType:   model.SourceTypeChannex,
	}
	if externalID != "" {
		b.ExternalReservationID = &externalID
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

func TestBookingFindConflictsHalfOpen(t *testing.T) {
	db := testdb.Open(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	seedBooking(t, db, unit, day(2026, 3, 3), day(2026, 3, 6), model.BookingStatusConfirmed, "R1")

	// Back-to-back: new check-in on the existing checkout day is fine.
	conflicts, err := repo.FindConflicts(ctx, unit, day(2026, 3, 6), day(2026, 3, 8), "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = repo.FindConflicts(ctx, unit, day(2026, 3, 5), day(2026, 3, 7), "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	conflicts, err = repo.FindConflicts(ctx, unit, day(2026, 3, 1), day(2026, 3, 4), "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
}

func TestBookingFindConflictsIgnoresCancelled(t *testing.T) {
	db := testdb.Open(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	seedBooking(t, db, unit, day(2026, 3, 3), day(2026, 3, 6), model.BookingStatusCancelled, "R1")

	conflicts, err := repo.FindConflicts(ctx, unit, day(2026, 3, 4), day(2026, 3, 5), "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestBookingFindConflictsExcludesSameReservation(t *testing.T) {
	db := testdb.Open(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	seedBooking(t, db, unit, day(2026, 3, 3), day(2026, 3, 6), model.BookingStatusConfirmed, "R1")
	manual := seedBooking(t, db, unit, day(2026, 3, 10), day(2026, 3, 12), model.BookingStatusConfirmed, "")

	// A modification of R1 does not conflict with itself.
	conflicts, err := repo.FindConflicts(ctx, unit, day(2026, 3, 4), day(2026, 3, 7), "R1")
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	// It does conflict with a manual booking that has no external id.
	conflicts, err = repo.FindConflicts(ctx, unit, day(2026, 3, 9), day(2026, 3, 11), "R1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, manual.ID, conflicts[0].ID)
}

func TestBookingStaysForUnitIncludesCheckoutDay(t *testing.T) {
	db := testdb.Open(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	departing := seedBooking(t, db, unit, day(2026, 3, 1), day(2026, 3, 5), model.BookingStatusCheckedIn, "R1")
	seedBooking(t, db, unit, day(2026, 3, 1), day(2026, 3, 4), model.BookingStatusCheckedOut, "R2")
	future := seedBooking(t, db, unit, day(2026, 3, 8), day(2026, 3, 10), model.BookingStatusConfirmed, "R3")
	seedBooking(t, db, unit, day(2026, 3, 20), day(2026, 3, 22), model.BookingStatusConfirmed, "R4")

	stays, err := repo.StaysForUnit(ctx, unit, day(2026, 3, 5), day(2026, 3, 15))
	require.NoError(t, err)
	require.Len(t, stays, 2)
	assert.Equal(t, departing.ID, stays[0].ID)
	assert.Equal(t, future.ID, stays[1].ID)
}

func TestBookingFindByExternalID(t *testing.T) {
	db := testdb.Open(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	created := seedBooking(t, db, unit, day(2026, 3, 3), day(2026, 3, 6), model.BookingStatusConfirmed, "R1")

	found, err := repo.FindByExternalID(ctx, "R1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	missing, err := repo.FindByExternalID(ctx, "R9")
	require.NoError(t, err)
	assert.Nil(t, missing)

	locked, err := repo.FindByExternalIDForUpdate(ctx, "R1")
	require.NoError(t, err)
	require.NotNil(t, locked)
	assert.Equal(t, created.ID, locked.ID)
}

func TestBookingLifecycleDueQueries(t *testing.T) {
	db := testdb.Open(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	past := seedBooking(t, db, unit, day(2026, 3, 1), day(2026, 3, 5), model.BookingStatusCheckedIn, "R1")
	seedBooking(t, db, unit, day(2026, 3, 8), day(2026, 3, 10), model.BookingStatusCheckedIn, "R2")
	noShow := seedBooking(t, db, unit, day(2026, 3, 2), day(2026, 3, 4), model.BookingStatusConfirmed, "R3")

	today := day(2026, 3, 10)

	due, err := repo.DueForCompletion(ctx, today)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, past.ID, due[0].ID)

	// Checkout today is not past yet.
	due, err = repo.DueForCompletion(ctx, day(2026, 3, 5))
	require.NoError(t, err)
	assert.Empty(t, due)

	shows, err := repo.DueForNoShow(ctx, today)
	require.NoError(t, err)
	require.Len(t, shows, 1)
	assert.Equal(t, noShow.ID, shows[0].ID)
}

func TestBookingListFilters(t *testing.T) {
	db := testdb.Open(t)
	repo := NewBookingRepository(db)
	ctx := context.Background()

	unit := uuid.New()
	seedBooking(t, db, unit, day(2026, 3, 1), day(2026, 3, 5), model.BookingStatusConfirmed, "R1")
	seedBooking(t, db, unit, day(2026, 3, 8), day(2026, 3, 10), model.BookingStatusCancelled, "R2")
	seedBooking(t, db, uuid.New(), day(2026, 3, 1), day(2026, 3, 3), model.BookingStatusConfirmed, "R3")

	got, total, err := repo.List(ctx, BookingFilter{UnitID: unit})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, got, 2)

	got, total, err = repo.List(ctx, BookingFilter{Status: model.BookingStatusConfirmed})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, got, 2)

	got, total, err = repo.List(ctx, BookingFilter{From: day(2026, 3, 6), To: day(2026, 3, 20)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "R2", *got[0].ExternalReservationID)
}
