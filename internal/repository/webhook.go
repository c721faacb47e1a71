package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
)

// WebhookLogRepository owns webhook_event_logs. The receiver inserts,
// the processor claims and finishes.
type WebhookLogRepository struct {
	db *gorm.DB
}

func NewWebhookLogRepository(db *gorm.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *WebhookLogRepository) WithTx(tx *gorm.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: tx}
}

func (r *WebhookLogRepository) Insert(ctx context.Context, ev *model.WebhookEventLog) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

// FindDuplicate looks for an earlier delivery of the same event: the
// same provider event id already processed or in flight, or the same
// payload hash still sitting in a non-terminal state. Returns nil when
// the event is new.
func (r *WebhookLogRepository) FindDuplicate(ctx context.Context, provider string, eventID *string, payloadHash string) (*model.WebhookEventLog, error) {
	var ev model.WebhookEventLog

	if eventID != nil && *eventID != "" {
		err := r.db.WithContext(ctx).
			Where("provider = ? AND event_id = ?", provider, *eventID).
			Where("status IN ?", []string{model.WebhookStatusProcessed, model.WebhookStatusProcessing}).
			First(&ev).Error
		if err == nil {
			return &ev, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	err := r.db.WithContext(ctx).
		Where("provider = ? AND payload_hash = ?", provider, payloadHash).
		Where("status IN ?", []string{model.WebhookStatusReceived, model.WebhookStatusProcessing}).
		First(&ev).Error
	if err == nil {
		return &ev, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

// ClaimBatch takes the oldest received events and marks them processing
// in one transaction.
func (r *WebhookLogRepository) ClaimBatch(ctx context.Context, limit int) ([]model.WebhookEventLog, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []model.WebhookEventLog
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []model.WebhookEventLog
		q := claimLock(tx).
			Where("status = ?", model.WebhookStatusReceived).
			Order("received_at").
			Limit(limit)
		if err := q.Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(due))
		for i, ev := range due {
			ids[i] = ev.ID
		}
		err := tx.Model(&model.WebhookEventLog{}).
			Where("id IN ?", ids).
			Update("status", model.WebhookStatusProcessing).Error
		if err != nil {
			return err
		}

		for i := range due {
			due[i].Status = model.WebhookStatusProcessing
		}
		claimed = due
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkProcessed finishes an event with the action taken and the booking
// it touched, if any.
func (r *WebhookLogRepository) MarkProcessed(ctx context.Context, id uuid.UUID, action string, bookingID *uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.WebhookEventLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            model.WebhookStatusProcessed,
			"result_action":     action,
			"result_booking_id": bookingID,
			"processed_at":      now,
		}).Error
}

// MarkSkipped finishes an event that was deliberately not applied.
func (r *WebhookLogRepository) MarkSkipped(ctx context.Context, id uuid.UUID, action string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.WebhookEventLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        model.WebhookStatusSkipped,
			"result_action": action,
			"processed_at":  now,
		}).Error
}

// MarkFailed records a processing error. The row stays terminal; a
// re-delivery with a fresh event id starts over.
func (r *WebhookLogRepository) MarkFailed(ctx context.Context, id uuid.UUID, msg string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.WebhookEventLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        model.WebhookStatusFailed,
			"error_message": truncateError(msg),
			"processed_at":  now,
		}).Error
}

// RecoverStale reverts events left in processing by a crashed
// processor so they are claimed again.
func (r *WebhookLogRepository) RecoverStale(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.WebhookEventLog{}).
		Where("status = ?", model.WebhookStatusProcessing).
		Update("status", model.WebhookStatusReceived)
	return res.RowsAffected, res.Error
}

func (r *WebhookLogRepository) Get(ctx context.Context, id uuid.UUID) (*model.WebhookEventLog, error) {
	var ev model.WebhookEventLog
	if err := r.db.WithContext(ctx).First(&ev, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// WebhookFilter narrows List.
type WebhookFilter struct {
	Status     string
	EventType  string
	ExternalID string
	Limit      int
	Offset     int
}

func (r *WebhookLogRepository) List(ctx context.Context, f WebhookFilter) ([]model.WebhookEventLog, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.WebhookEventLog{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.ExternalID != "" {
		q = q.Where("external_id = ?", f.ExternalID)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []model.WebhookEventLog
	err := q.Order("received_at DESC").Limit(limit).Offset(f.Offset).Find(&events).Error
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Backlog reports how many events await processing and the oldest
// received_at among them.
func (r *WebhookLogRepository) Backlog(ctx context.Context) (int64, *time.Time, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WebhookEventLog{}).
		Where("status = ?", model.WebhookStatusReceived).
		Count(&count).Error
	if err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var oldest time.Time
	err = r.db.WithContext(ctx).Model(&model.WebhookEventLog{}).
		Where("status = ?", model.WebhookStatusReceived).
		Select("MIN(received_at)").
		Scan(&oldest).Error
	if err != nil {
		return 0, nil, err
	}
	return count, &oldest, nil
}

// LastReceivedAt returns when the most recent event arrived, nil when
// none ever has.
func (r *WebhookLogRepository) LastReceivedAt(ctx context.Context) (*time.Time, error) {
	var ev model.WebhookEventLog
	err := r.db.WithContext(ctx).Order("received_at DESC").First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev.ReceivedAt, nil
}

// CountByStatus returns event counts keyed by status.
func (r *WebhookLogRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.WebhookEventLog{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
