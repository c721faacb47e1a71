package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel connection statuses.
const (
	ConnectionStatusPending  = "pending"
	ConnectionStatusActive   = "active"
	ConnectionStatusInactive = "inactive"
	ConnectionStatusError    = "error"
)

// ProviderChannex is the only channel provider this engine speaks to.
const ProviderChannex = "channex"

// Connection links one project to one channel-manager property.
type Connection struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_connection_project_provider" json:"project_id"`
	Provider           string     `gorm:"size:50;not null;default:channex;uniqueIndex:idx_connection_project_provider" json:"provider"`
	APIKey             string     `gorm:"size:255;not null" json:"-"`
	ExternalPropertyID string     `gorm:"size:100;not null;index" json:"external_property_id"`
	WebhookSecret      string     `gorm:"size:255" json:"-"`
	Status             string     `gorm:"size:20;not null;default:pending;index" json:"status"`
	LastSyncAt         *time.Time `json:"last_sync_at,omitempty"`
	LastError          string     `gorm:"type:text" json:"last_error,omitempty"`
	ErrorCount         int        `gorm:"not null;default:0" json:"error_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Mappings []ExternalMapping `gorm:"foreignKey:ConnectionID;constraint:OnDelete:CASCADE" json:"mappings,omitempty"`
}

func (Connection) TableName() string { return "integration_connections" }

func (c *Connection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the connection may carry traffic.
func (c *Connection) IsActive() bool {
	return c.Status == ConnectionStatusActive
}

// ExternalMapping ties a unit to the channel's room type and rate plan
// within one connection.
type ExternalMapping struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectionID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_mapping_connection_unit" json:"connection_id"`
	UnitID             uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_mapping_connection_unit;index" json:"unit_id"`
	ExternalRoomTypeID string     `gorm:"size:100;index" json:"external_room_type_id"`
	ExternalRatePlanID string     `gorm:"size:100;index" json:"external_rate_plan_id"`
	IsActive           bool       `gorm:"not null;default:true;index" json:"is_active"`
	LastPriceSyncAt    *time.Time `json:"last_price_sync_at,omitempty"`
	LastAvailSyncAt    *time.Time `json:"last_avail_sync_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Connection *Connection `gorm:"foreignKey:ConnectionID" json:"-"`
}

func (ExternalMapping) TableName() string { return "integration_external_mappings" }

func (m *ExternalMapping) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
