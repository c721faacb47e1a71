package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
)

// SettingsRepository owns the singleton integration_settings row.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the settings row, creating it with defaults on first
// read.
func (r *SettingsRepository) Get(ctx context.Context) (*model.IntegrationSetting, error) {
	var s model.IntegrationSetting
	err := r.db.WithContext(ctx).Order("created_at").First(&s).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	s = model.IntegrationSetting{
		ChannelEnabled:     true,
		SyncHorizonDays:    365,
		MaxPayloadBytes:    10_000_000,
		CleaningBufferDays: 1,
		WeekendDays:        model.DefaultWeekendDays,
	}
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes the row back.
func (r *SettingsRepository) Save(ctx context.Context, s *model.IntegrationSetting) error {
	return r.db.WithContext(ctx).Save(s).Error
}
