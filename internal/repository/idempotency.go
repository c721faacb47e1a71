package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/database"
	"github.com/mnamhq/channelsync/internal/model"
)

// IdempotencyRepository owns inbound_idempotency, the terminal-outcome
// record per provider event id.
type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *IdempotencyRepository) WithTx(tx *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: tx}
}

// Record stores the outcome for an event id. A second delivery of the
// same id returns ErrDuplicate.
func (r *IdempotencyRepository) Record(ctx context.Context, provider, eventID string, bookingID *uuid.UUID, action string) error {
	row := model.InboundIdempotency{
		Provider:          provider,
		ExternalEventID:   eventID,
		InternalBookingID: bookingID,
		ResultAction:      action,
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Find returns the recorded outcome for an event id, nil when none.
func (r *IdempotencyRepository) Find(ctx context.Context, provider, eventID string) (*model.InboundIdempotency, error) {
	var row model.InboundIdempotency
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_event_id = ?", provider, eventID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
