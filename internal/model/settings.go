package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// IntegrationSetting is the single runtime-tunable settings row. Config
// supplies defaults at boot; values here override them when present.
type IntegrationSetting struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelEnabled      bool           `gorm:"not null;default:true" json:"channel_enabled"`
	SyncHorizonDays     int            `gorm:"not null;default:365" json:"sync_horizon_days"`
	MaxPayloadBytes     int            `gorm:"not null;default:10000000" json:"max_payload_bytes"`
	CleaningBufferDays  int            `gorm:"not null;default:1" json:"cleaning_buffer_days"`
	WeekendDays         string         `gorm:"size:20;not null;default:4,5" json:"weekend_days"`
	EnabledEventTypes   pq.StringArray `gorm:"type:text" json:"enabled_event_types"`
	NoShowCancelEnabled bool           `gorm:"not null;default:false" json:"no_show_cancel_enabled"`
	UpdatedByID         *uuid.UUID     `gorm:"type:uuid" json:"updated_by_id,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (IntegrationSetting) TableName() string { return "integration_settings" }

func (s *IntegrationSetting) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// EventTypeEnabled reports whether an inbound event type should be
// dispatched. An empty list means everything is enabled.
func (s *IntegrationSetting) EventTypeEnabled(eventType string) bool {
	if len(s.EnabledEventTypes) == 0 {
		return true
	}
	for _, t := range s.EnabledEventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}
