package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/database"
	"github.com/mnamhq/channelsync/internal/model"
)

// RevisionRepository owns booking_revisions, the append-only history of
// channel revisions per reservation.
type RevisionRepository struct {
	db *gorm.DB
}

func NewRevisionRepository(db *gorm.DB) *RevisionRepository {
	return &RevisionRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *RevisionRepository) WithTx(tx *gorm.DB) *RevisionRepository {
	return &RevisionRepository{db: tx}
}

// Create appends a revision row. A replay of an already recorded
// (reservation, revision) pair returns ErrDuplicate.
func (r *RevisionRepository) Create(ctx context.Context, rev *model.BookingRevision) error {
	err := r.db.WithContext(ctx).Create(rev).Error
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Exists reports whether a revision id was already recorded for a
// reservation.
func (r *RevisionRepository) Exists(ctx context.Context, externalBookingID, revisionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.BookingRevision{}).
		Where("external_booking_id = ? AND revision_id = ?", externalBookingID, revisionID).
		Count(&count).Error
	return count > 0, err
}

// ListForBooking returns the recorded history, oldest first.
func (r *RevisionRepository) ListForBooking(ctx context.Context, externalBookingID string) ([]model.BookingRevision, error) {
	var revisions []model.BookingRevision
	err := r.db.WithContext(ctx).
		Where("external_booking_id = ?", externalBookingID).
		Order("created_at").
		Find(&revisions).Error
	if err != nil {
		return nil, err
	}
	return revisions, nil
}
