package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Pricing policy defaults.
const (
	DefaultCurrency    = "SAR"
	DefaultTimezone    = "Asia/Riyadh"
	DefaultWeekendDays = "4,5"
)

// PricingPolicy holds the per-unit inputs of the daily price formula:
// a weekday base, a weekend markup, and three intraday discount windows.
// weekend_days is stored as comma-separated weekday numbers in Monday=0
// numbering, so the default "4,5" is Friday and Saturday.
type PricingPolicy struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UnitID               uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"unit_id"`
	BaseWeekdayPrice     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"base_weekday_price"`
	Currency             string          `gorm:"size:3;not null;default:SAR" json:"currency"`
	WeekendMarkupPercent decimal.Decimal `gorm:"type:numeric(6,2);not null;default:0" json:"weekend_markup_percent"`
	Discount16Percent    decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"discount_16_percent"`
	Discount21Percent    decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"discount_21_percent"`
	Discount23Percent    decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"discount_23_percent"`
	Timezone             string          `gorm:"size:50;not null;default:Asia/Riyadh" json:"timezone"`
	WeekendDays          string          `gorm:"size:20;not null;default:4,5" json:"weekend_days"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (PricingPolicy) TableName() string { return "pricing_policies" }

func (p *PricingPolicy) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
