package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryCalendar caches the per-date availability projection. It is a
// projection only; the availability projector recomputes it from bookings
// and unit state and it is never consulted as the source of truth.
type InventoryCalendar struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UnitID            uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_unit_date" json:"unit_id"`
	Date              time.Time  `gorm:"not null;uniqueIndex:idx_inventory_unit_date" json:"date"`
	IsAvailable       bool       `gorm:"not null;default:true" json:"is_available"`
	IsBlocked         bool       `gorm:"not null;default:false" json:"is_blocked"`
	BlockReason       string     `gorm:"size:100" json:"block_reason,omitempty"`
	BookingID         *uuid.UUID `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	MinStay           int        `gorm:"not null;default:0" json:"min_stay,omitempty"`
	ClosedToArrival   bool       `gorm:"not null;default:false" json:"closed_to_arrival"`
	ClosedToDeparture bool       `gorm:"not null;default:false" json:"closed_to_departure"`
	SyncPending       bool       `gorm:"not null;default:false;index" json:"sync_pending"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (InventoryCalendar) TableName() string { return "inventory_calendar" }

func (i *InventoryCalendar) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
