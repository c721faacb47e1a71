package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Quarantine reasons for inbound events that could not be routed or
// validated. The set is closed; anything new must extend it explicitly.
const (
	UnmatchedReasonNoConnection     = "no_connection"
	UnmatchedReasonNoMapping        = "no_mapping"
	UnmatchedReasonMissingDates     = "missing_dates"
	UnmatchedReasonInvalidDateRange = "invalid_date_range"
	UnmatchedReasonDatesInPast      = "dates_in_past"
	UnmatchedReasonDatesTooFar      = "dates_too_far"
	UnmatchedReasonDurationTooShort = "duration_too_short"
	UnmatchedReasonDurationTooLong  = "duration_too_long"
	UnmatchedReasonInvalidPrice     = "invalid_price"
	UnmatchedReasonDateConflict     = "date_conflict"
	UnmatchedReasonMissingGuest     = "missing_guest"
	UnmatchedReasonInvalidPayload   = "invalid_payload"
)

// Unmatched event statuses.
const (
	UnmatchedStatusPending  = "pending"
	UnmatchedStatusResolved = "resolved"
	UnmatchedStatusIgnored  = "ignored"
)

// UnmatchedWebhookEvent parks webhook payloads that could not produce a
// booking. Rows stay visible until an operator resolves or ignores them;
// nothing is ever silently dropped.
type UnmatchedWebhookEvent struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventType             string         `gorm:"size:100" json:"event_type"`
	ExternalReservationID string         `gorm:"size:100;index" json:"external_reservation_id"`
	PropertyID            string         `gorm:"size:100;index" json:"property_id"`
	RoomTypeID            string         `gorm:"size:100" json:"room_type_id,omitempty"`
	RatePlanID            string         `gorm:"size:100" json:"rate_plan_id,omitempty"`
	RawPayload            datatypes.JSON `json:"raw_payload"`
	Reason                string         `gorm:"size:30;not null;index" json:"reason"`
	Status                string         `gorm:"size:20;not null;default:pending;index" json:"status"`
	ResolvedBookingID     *uuid.UUID     `gorm:"type:uuid" json:"resolved_booking_id,omitempty"`
	ResolvedAt            *time.Time     `json:"resolved_at,omitempty"`
	ResolvedByID          *uuid.UUID     `gorm:"type:uuid" json:"resolved_by_id,omitempty"`
	CreatedAt             time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

func (UnmatchedWebhookEvent) TableName() string { return "unmatched_webhook_events" }

func (u *UnmatchedWebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
