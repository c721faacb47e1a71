package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer is the slice of the host-owned customer table the engine
// upserts. Lookup is by normalized phone; counters are written with
// atomic SQL increments, never read-modify-write.
type Customer struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name                  string          `gorm:"size:255" json:"name"`
	Phone                 string          `gorm:"size:50;not null;uniqueIndex" json:"phone"`
	Email                 string          `gorm:"size:255" json:"email,omitempty"`
	Gender                *string         `gorm:"size:20" json:"gender,omitempty"`
	BookingCount          int             `gorm:"not null;default:0" json:"booking_count"`
	CompletedBookingCount int             `gorm:"not null;default:0" json:"completed_booking_count"`
	TotalRevenue          decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"total_revenue"`
	IsBanned              bool            `gorm:"not null;default:false" json:"is_banned"`
	BanReason             string          `gorm:"type:text" json:"ban_reason,omitempty"`
	IsProfileComplete     bool            `gorm:"not null;default:false" json:"is_profile_complete"`
	IsDeleted             bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ProfileComplete is the completeness rule applied on every upsert.
func ProfileComplete(name, phone string) bool {
	return len([]rune(name)) >= 2 && len(phone) >= 9
}
