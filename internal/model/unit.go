package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Manual unit statuses. available and booked are derived; the other
// three are operator-set and override bookings for the current day.
const (
	UnitStatusAvailable     = "available"
	UnitStatusBooked        = "booked"
	UnitStatusMaintenance   = "maintenance"
	UnitStatusNeedsCleaning = "needs_cleaning"
	UnitStatusHidden        = "hidden"
)

// Unit is the slice of the host-owned unit table the engine touches:
// the manual status (read by the availability projector, written by the
// lifecycle job) and the project linkage used to find the connection.
type Unit struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Name      string    `gorm:"size:255" json:"name"`
	Status    string    `gorm:"size:20;not null;default:available" json:"status"`
	IsDeleted bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Unit) TableName() string { return "units" }

func (u *Unit) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasManualBlock reports whether the stored status is an operator block.
func (u *Unit) HasManualBlock() bool {
	switch u.Status {
	case UnitStatusMaintenance, UnitStatusNeedsCleaning, UnitStatusHidden:
		return true
	}
	return false
}

// Project is the host-owned grouping a connection belongs to.
type Project struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	IsDeleted bool      `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
