package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
)

// UnmatchedRepository owns the quarantine table for inbound events that
// could not produce a booking.
type UnmatchedRepository struct {
	db *gorm.DB
}

func NewUnmatchedRepository(db *gorm.DB) *UnmatchedRepository {
	return &UnmatchedRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *UnmatchedRepository) WithTx(tx *gorm.DB) *UnmatchedRepository {
	return &UnmatchedRepository{db: tx}
}

func (r *UnmatchedRepository) Create(ctx context.Context, ev *model.UnmatchedWebhookEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *UnmatchedRepository) Get(ctx context.Context, id uuid.UUID) (*model.UnmatchedWebhookEvent, error) {
	var ev model.UnmatchedWebhookEvent
	if err := r.db.WithContext(ctx).First(&ev, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// UnmatchedFilter narrows List.
type UnmatchedFilter struct {
	Status string
	Reason string
	Limit  int
	Offset int
}

func (r *UnmatchedRepository) List(ctx context.Context, f UnmatchedFilter) ([]model.UnmatchedWebhookEvent, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.UnmatchedWebhookEvent{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Reason != "" {
		q = q.Where("reason = ?", f.Reason)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []model.UnmatchedWebhookEvent
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&events).Error
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Resolve closes a pending row with the booking an operator attached
// it to.
func (r *UnmatchedRepository) Resolve(ctx context.Context, id, bookingID uuid.UUID, resolvedBy *uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.UnmatchedWebhookEvent{}).
		Where("id = ?", id).
		Where("status = ?", model.UnmatchedStatusPending).
		Updates(map[string]any{
			"status":              model.UnmatchedStatusResolved,
			"resolved_booking_id": bookingID,
			"resolved_at":         now,
			"resolved_by_id":      resolvedBy,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Ignore closes a pending row without a booking.
func (r *UnmatchedRepository) Ignore(ctx context.Context, id uuid.UUID, resolvedBy *uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.UnmatchedWebhookEvent{}).
		Where("id = ?", id).
		Where("status = ?", model.UnmatchedStatusPending).
		Updates(map[string]any{
			"status":         model.UnmatchedStatusIgnored,
			"resolved_at":    now,
			"resolved_by_id": resolvedBy,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// PendingCount feeds the health snapshot and the queue-depth gauges.
func (r *UnmatchedRepository) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UnmatchedWebhookEvent{}).
		Where("status = ?", model.UnmatchedStatusPending).
		Count(&count).Error
	return count, err
}
