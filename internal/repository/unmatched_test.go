package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/testdb"
)

func seedUnmatched(t *testing.T, db *gorm.DB, reason, status string) *model.UnmatchedWebhookEvent {
	t.Helper()
	ev := &model.UnmatchedWebhookEvent{
		EventType:             "booking",
		ExternalReservationID: "R-" + uuid.NewString()[:8],
		PropertyID:            "prop-1",
		RawPayload:            []byte(`{"event":"booking"}`),
		Reason:                reason,
		Status:                status,
	}
	require.NoError(t, db.Create(ev).Error)
	return ev
}

func TestUnmatchedResolveLifecycle(t *testing.T) {
	db := testdb.Open(t)
	repo := NewUnmatchedRepository(db)
	ctx := context.Background()

	ev := seedUnmatched(t, db, model.UnmatchedReasonNoMapping, model.UnmatchedStatusPending)
	bookingID := uuid.New()
	operator := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Resolve(ctx, ev.ID, bookingID, &operator, now))

	got, err := repo.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnmatchedStatusResolved, got.Status)
	require.NotNil(t, got.ResolvedBookingID)
	assert.Equal(t, bookingID, *got.ResolvedBookingID)
	require.NotNil(t, got.ResolvedByID)
	assert.Equal(t, operator, *got.ResolvedByID)
	require.NotNil(t, got.ResolvedAt)

	// Closed rows cannot be resolved twice.
	err = repo.Resolve(ctx, ev.ID, uuid.New(), nil, now)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUnmatchedIgnore(t *testing.T) {
	db := testdb.Open(t)
	repo := NewUnmatchedRepository(db)
	ctx := context.Background()

	ev := seedUnmatched(t, db, model.UnmatchedReasonDateConflict, model.UnmatchedStatusPending)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Ignore(ctx, ev.ID, nil, now))

	got, err := repo.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnmatchedStatusIgnored, got.Status)
	assert.Nil(t, got.ResolvedBookingID)
}

func TestUnmatchedListAndPendingCount(t *testing.T) {
	db := testdb.Open(t)
	repo := NewUnmatchedRepository(db)
	ctx := context.Background()

	seedUnmatched(t, db, model.UnmatchedReasonNoMapping, model.UnmatchedStatusPending)
	seedUnmatched(t, db, model.UnmatchedReasonDateConflict, model.UnmatchedStatusPending)
	seedUnmatched(t, db, model.UnmatchedReasonNoMapping, model.UnmatchedStatusIgnored)

	got, total, err := repo.List(ctx, UnmatchedFilter{Status: model.UnmatchedStatusPending})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, got, 2)

	got, total, err = repo.List(ctx, UnmatchedFilter{Reason: model.UnmatchedReasonNoMapping})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, got, 2)

	pending, err := repo.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)
}
