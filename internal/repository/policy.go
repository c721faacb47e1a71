package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mnamhq/channelsync/internal/model"
)

// PolicyRepository reads the host-owned pricing policies.
type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// ForUnit returns the unit's pricing policy, nil when it has none.
func (r *PolicyRepository) ForUnit(ctx context.Context, unitID uuid.UUID) (*model.PricingPolicy, error) {
	var p model.PricingPolicy
	err := r.db.WithContext(ctx).Where("unit_id = ?", unitID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert writes a policy, replacing any existing one for the unit.
func (r *PolicyRepository) Upsert(ctx context.Context, p *model.PricingPolicy) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "unit_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"base_weekday_price", "currency", "weekend_markup_percent",
			"discount_16_percent", "discount_21_percent", "discount_23_percent",
			"timezone", "weekend_days", "updated_at",
		}),
	}).Create(p).Error
}
