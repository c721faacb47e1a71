package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Booking statuses.
const (
	BookingStatusPending    = "pending"
	BookingStatusConfirmed  = "confirmed"
	BookingStatusCheckedIn  = "checked_in"
	BookingStatusCheckedOut = "checked_out"
	BookingStatusCompleted  = "completed"
	BookingStatusCancelled  = "cancelled"
)

// Booking source types.
const (
	SourceTypeManual    = "manual"
	SourceTypeChannex   = "channex"
	SourceTypeDirectAPI = "direct_api"
)

// bookingTransitions is the closed transition table of the lifecycle
// state machine. checked_in bookings cannot be cancelled.
var bookingTransitions = map[string][]string{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:  {BookingStatusCheckedIn, BookingStatusCancelled},
	BookingStatusCheckedIn:  {BookingStatusCheckedOut, BookingStatusCompleted},
	BookingStatusCheckedOut: {BookingStatusCompleted},
}

// CanTransition reports whether a booking may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Booking is the slice of the host-owned booking table the integration
// engine reads and writes. check_out is exclusive; the stay occupies
// [check_in, check_out).
type Booking struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UnitID                uuid.UUID       `gorm:"type:uuid;not null;index" json:"unit_id"`
	CustomerID            *uuid.UUID      `gorm:"type:uuid;index" json:"customer_id,omitempty"`
	GuestName             string          `gorm:"size:255" json:"guest_name"`
	GuestPhone            string          `gorm:"size:50" json:"guest_phone"`
	GuestEmail            string          `gorm:"size:255" json:"guest_email,omitempty"`
	CheckInDate           time.Time       `gorm:"not null;index" json:"check_in_date"`
	CheckOutDate          time.Time       `gorm:"not null;index" json:"check_out_date"`
	TotalPrice            decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total_price"`
	Currency              string          `gorm:"size:3;not null;default:SAR" json:"currency"`
	Status                string          `gorm:"size:20;not null;default:confirmed;index" json:"status"`
	SourceType            string          `gorm:"size:20;not null;default:manual;index" json:"source_type"`
	ChannelSource         string          `gorm:"size:100" json:"channel_source,omitempty"`
	ExternalReservationID *string         `gorm:"size:100;uniqueIndex" json:"external_reservation_id,omitempty"`
	ExternalRevisionID    string          `gorm:"size:100" json:"external_revision_id,omitempty"`
	LastAppliedRevisionID string          `gorm:"size:100" json:"last_applied_revision_id,omitempty"`
	LastAppliedRevisionAt *time.Time      `json:"last_applied_revision_at,omitempty"`
	ChannelData           datatypes.JSON  `json:"channel_data,omitempty"`
	CustomerSnapshot      datatypes.JSON  `json:"customer_snapshot,omitempty"`
	Notes                 string          `gorm:"type:text" json:"notes,omitempty"`
	IsDeleted             bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsActiveStay reports whether the booking blocks inventory.
func (b *Booking) IsActiveStay() bool {
	return !b.IsDeleted && b.Status != BookingStatusCancelled
}

// Overlaps applies the half-open overlap rule against another date range.
func (b *Booking) Overlaps(checkIn, checkOut time.Time) bool {
	return b.CheckInDate.Before(checkOut) && b.CheckOutDate.After(checkIn)
}

// CustomerSnapshotData is what gets frozen onto a booking at creation.
type CustomerSnapshotData struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Country string `json:"country,omitempty"`
}
