package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/database"
	"github.com/mnamhq/channelsync/internal/model"
)

// MergeNote is written to outbox events superseded during claim-time
// deduplication.
const MergeNote = "merged with newer event"

// OutboxRepository owns the integration_outbox table. Only the outbox
// worker mutates claimed rows; everything else just enqueues.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *OutboxRepository) WithTx(tx *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: tx}
}

// Enqueue inserts a new event. A duplicate idempotency key returns
// ErrDuplicate and leaves the existing event untouched.
func (r *OutboxRepository) Enqueue(ctx context.Context, ev *model.IntegrationOutbox) error {
	err := r.db.WithContext(ctx).Create(ev).Error
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// ClaimBatch selects due events, collapses duplicates per
// (unit, event type) keeping the newest, and marks the survivors
// processing with attempts incremented. All of it happens in one
// transaction so a crash leaves nothing half-claimed.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]model.IntegrationOutbox, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []model.IntegrationOutbox
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []model.IntegrationOutbox
		q := claimLock(tx).
			Where("status IN ?", []string{model.OutboxStatusPending, model.OutboxStatusRetrying}).
			Where("next_attempt_at <= ?", now).
			Where("attempts < max_attempts").
			Order("next_attempt_at").
			Limit(limit)
		if err := q.Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		survivors, superseded := splitMerged(due)

		if len(superseded) > 0 {
			ids := eventIDs(superseded)
			err := tx.Model(&model.IntegrationOutbox{}).
				Where("id IN ?", ids).
				Updates(map[string]any{
					"status":       model.OutboxStatusCompleted,
					"last_error":   MergeNote,
					"completed_at": now,
				}).Error
			if err != nil {
				return err
			}
		}

		ids := eventIDs(survivors)
		err := tx.Model(&model.IntegrationOutbox{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":   model.OutboxStatusProcessing,
				"attempts": gorm.Expr("attempts + 1"),
			}).Error
		if err != nil {
			return err
		}

		for i := range survivors {
			survivors[i].Status = model.OutboxStatusProcessing
			survivors[i].Attempts++
		}
		claimed = survivors
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// splitMerged partitions a claimed batch into the events to execute and
// the older duplicates they supersede. Survivor order follows the claim
// order.
func splitMerged(due []model.IntegrationOutbox) (survivors, superseded []model.IntegrationOutbox) {
	type key struct {
		unit  uuid.UUID
		event string
	}
	newest := make(map[key]int, len(due))
	for i, ev := range due {
		k := key{unit: ev.UnitID, event: ev.EventType}
		if j, ok := newest[k]; !ok || ev.CreatedAt.After(due[j].CreatedAt) {
			newest[k] = i
		}
	}
	for i, ev := range due {
		k := key{unit: ev.UnitID, event: ev.EventType}
		if newest[k] == i {
			survivors = append(survivors, ev)
		} else {
			superseded = append(superseded, ev)
		}
	}
	return survivors, superseded
}

func eventIDs(events []model.IntegrationOutbox) []uuid.UUID {
	ids := make([]uuid.UUID, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}

// MarkCompleted finishes an event with the channel's response attached.
func (r *OutboxRepository) MarkCompleted(ctx context.Context, id uuid.UUID, response []byte, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.IntegrationOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        model.OutboxStatusCompleted,
			"response_data": response,
			"completed_at":  now,
			"last_error":    "",
		}).Error
}

// CompleteWithNote finishes an event that performed no channel call,
// recording why.
func (r *OutboxRepository) CompleteWithNote(ctx context.Context, id uuid.UUID, note string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.IntegrationOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.OutboxStatusCompleted,
			"completed_at": now,
			"last_error":   truncateError(note),
		}).Error
}

// Reschedule puts a claimed event back in the queue for a later attempt.
// The attempts count keeps the value set at claim time.
func (r *OutboxRepository) Reschedule(ctx context.Context, id uuid.UUID, next time.Time, lastErr string) error {
	return r.db.WithContext(ctx).Model(&model.IntegrationOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          model.OutboxStatusRetrying,
			"next_attempt_at": next,
			"last_error":      truncateError(lastErr),
		}).Error
}

// MarkFailed moves an event to its terminal failure state.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error {
	return r.db.WithContext(ctx).Model(&model.IntegrationOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     model.OutboxStatusFailed,
			"last_error": truncateError(lastErr),
		}).Error
}

// RetryNow resets a failed or stuck event so the worker picks it up on
// the next tick. Used by the ops API.
func (r *OutboxRepository) RetryNow(ctx context.Context, id uuid.UUID, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.IntegrationOutbox{}).
		Where("id = ?", id).
		Where("status IN ?", []string{model.OutboxStatusFailed, model.OutboxStatusRetrying}).
		Updates(map[string]any{
			"status":          model.OutboxStatusPending,
			"attempts":        0,
			"next_attempt_at": now,
			"last_error":      "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecoverStale reverts events left in processing by a crashed worker.
// They keep their attempts count and become due immediately.
func (r *OutboxRepository) RecoverStale(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.IntegrationOutbox{}).
		Where("status = ?", model.OutboxStatusProcessing).
		Update("status", model.OutboxStatusRetrying)
	return res.RowsAffected, res.Error
}

func (r *OutboxRepository) Get(ctx context.Context, id uuid.UUID) (*model.IntegrationOutbox, error) {
	var ev model.IntegrationOutbox
	if err := r.db.WithContext(ctx).First(&ev, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// OutboxFilter narrows List.
type OutboxFilter struct {
	Status    string
	EventType string
	UnitID    uuid.UUID
	Limit     int
	Offset    int
}

func (r *OutboxRepository) List(ctx context.Context, f OutboxFilter) ([]model.IntegrationOutbox, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.IntegrationOutbox{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.UnitID != uuid.Nil {
		q = q.Where("unit_id = ?", f.UnitID)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []model.IntegrationOutbox
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&events).Error
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// CountByStatus returns event counts keyed by status.
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.IntegrationOutbox{}).
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

// Backlog reports how many events are waiting and how old the oldest
// one is.
func (r *OutboxRepository) Backlog(ctx context.Context) (int64, *time.Time, error) {
	waiting := []string{model.OutboxStatusPending, model.OutboxStatusRetrying}

	var count int64
	err := r.db.WithContext(ctx).Model(&model.IntegrationOutbox{}).
		Where("status IN ?", waiting).
		Count(&count).Error
	if err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var oldest time.Time
	err = r.db.WithContext(ctx).Model(&model.IntegrationOutbox{}).
		Where("status IN ?", waiting).
		Select("MIN(created_at)").
		Scan(&oldest).Error
	if err != nil {
		return 0, nil, err
	}
	return count, &oldest, nil
}
