package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
)

// UnitRepository reads unit state for the availability projector and
// writes the manual status the lifecycle job sets.
type UnitRepository struct {
	db *gorm.DB
}

func NewUnitRepository(db *gorm.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *UnitRepository) WithTx(tx *gorm.DB) *UnitRepository {
	return &UnitRepository{db: tx}
}

func (r *UnitRepository) Get(ctx context.Context, id uuid.UUID) (*model.Unit, error) {
	var u model.Unit
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetForUpdate loads a unit under a row lock.
func (r *UnitRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Unit, error) {
	var u model.Unit
	if err := forUpdate(r.db.WithContext(ctx)).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UnitRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	res := r.db.WithContext(ctx).Model(&model.Unit{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
