package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/testdb"
)

func TestRevisionCreateAndReplay(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	rev := &model.BookingRevision{
		ExternalBookingID: "R1",
		RevisionID:        "rev-1",
		EventType:         model.RevisionEventNew,
		Applied:           true,
	}
	require.NoError(t, repo.Create(ctx, rev))

	err := repo.Create(ctx, &model.BookingRevision{
		ExternalBookingID: "R1",
		RevisionID:        "rev-1",
		EventType:         model.RevisionEventModification,
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Same revision id under a different reservation is a new row.
	require.NoError(t, repo.Create(ctx, &model.BookingRevision{
		ExternalBookingID: "R2",
		RevisionID:        "rev-1",
		EventType:         model.RevisionEventNew,
	}))
}

func TestRevisionExists(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.BookingRevision{
		ExternalBookingID: "R1",
		RevisionID:        "rev-1",
		EventType:         model.RevisionEventNew,
	}))

	ok, err := repo.Exists(ctx, "R1", "rev-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, "R1", "rev-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevisionListForBooking(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRevisionRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"rev-1", "rev-2", "rev-3"} {
		require.NoError(t, repo.Create(ctx, &model.BookingRevision{
			ExternalBookingID: "R1",
			RevisionID:        id,
			EventType:         model.RevisionEventModification,
			CreatedAt:         base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.Create(ctx, &model.BookingRevision{
		ExternalBookingID: "R2",
		RevisionID:        "rev-1",
		EventType:         model.RevisionEventNew,
	}))

	got, err := repo.ListForBooking(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "rev-1", got[0].RevisionID)
	assert.Equal(t, "rev-3", got[2].RevisionID)
}
