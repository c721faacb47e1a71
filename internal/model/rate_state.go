package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Token-bucket parameters shared by both buckets of every property.
const (
	RateBucketCapacity   = 10.0
	RateRefillPerMinute  = 10.0
	RatePauseBaseSeconds = 60
	RatePauseMaxSeconds  = 600
)

// Rate-limit buckets. price covers rates and restrictions; avail covers
// availability pushes.
const (
	RateBucketPrice = "price"
	RateBucketAvail = "avail"
)

// PropertyRateState persists the two token buckets and the 429 pause
// state for one external property, so restarts keep rate credits.
type PropertyRateState struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalPropertyID string     `gorm:"size:100;not null;uniqueIndex" json:"external_property_id"`
	PriceTokens        float64    `gorm:"not null;default:10" json:"price_tokens"`
	PriceLastRefillAt  time.Time  `gorm:"not null" json:"price_last_refill_at"`
	AvailTokens        float64    `gorm:"not null;default:10" json:"avail_tokens"`
	AvailLastRefillAt  time.Time  `gorm:"not null" json:"avail_last_refill_at"`
	PausedUntil        *time.Time `json:"paused_until,omitempty"`
	PauseCount         int        `gorm:"not null;default:0" json:"pause_count"`
	Last429At          *time.Time `json:"last_429_at,omitempty"`
	TotalRequests      int64      `gorm:"not null;default:0" json:"total_requests"`
	Total429s          int64      `gorm:"not null;default:0" json:"total_429s"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (PropertyRateState) TableName() string { return "property_rate_states" }

func (s *PropertyRateState) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	if s.PriceLastRefillAt.IsZero() {
		s.PriceLastRefillAt = now
	}
	if s.AvailLastRefillAt.IsZero() {
		s.AvailLastRefillAt = now
	}
	return nil
}
