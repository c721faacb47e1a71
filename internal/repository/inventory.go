package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mnamhq/channelsync/internal/model"
)

// InventoryRepository owns the inventory_calendar projection rows.
type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *InventoryRepository) WithTx(tx *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: tx}
}

// Upsert writes projection rows, replacing any existing row for the
// same unit and date.
func (r *InventoryRepository) Upsert(ctx context.Context, rows []model.InventoryCalendar) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "unit_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_available", "is_blocked", "block_reason", "booking_id",
			"sync_pending", "updated_at",
		}),
	}).Create(&rows).Error
}

// Range returns the stored projection for [from, to), ordered by date.
func (r *InventoryRepository) Range(ctx context.Context, unitID uuid.UUID, from, to time.Time) ([]model.InventoryCalendar, error) {
	var rows []model.InventoryCalendar
	err := r.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Where("date >= ? AND date < ?", from, to).
		Order("date").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ClearSyncPending marks a unit's rows as pushed.
func (r *InventoryRepository) ClearSyncPending(ctx context.Context, unitID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.InventoryCalendar{}).
		Where("unit_id = ? AND sync_pending = ?", unitID, true).
		Update("sync_pending", false).Error
}
