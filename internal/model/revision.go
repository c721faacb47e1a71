package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Revision event types.
const (
	RevisionEventNew          = "new"
	RevisionEventModification = "modification"
	RevisionEventCancellation = "cancellation"
)

// BookingRevision is the per-revision audit row for a channel booking.
// applied is false when the revision arrived after a newer one and was
// recorded without mutating the booking.
type BookingRevision struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalBookingID string         `gorm:"size:100;not null;uniqueIndex:idx_revision_booking_rev" json:"external_booking_id"`
	RevisionID        string         `gorm:"size:100;not null;uniqueIndex:idx_revision_booking_rev" json:"revision_id"`
	BookingID         *uuid.UUID     `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	EventType         string         `gorm:"size:20;not null" json:"event_type"`
	Payload           datatypes.JSON `json:"payload,omitempty"`
	Applied           bool           `gorm:"not null;default:true" json:"applied"`
	RevisionAt        *time.Time     `json:"revision_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (BookingRevision) TableName() string { return "booking_revisions" }

func (r *BookingRevision) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
