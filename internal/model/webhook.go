package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Webhook event log statuses.
const (
	WebhookStatusReceived   = "received"
	WebhookStatusProcessing = "processing"
	WebhookStatusProcessed  = "processed"
	WebhookStatusFailed     = "failed"
	WebhookStatusSkipped    = "skipped"
)

// Result actions recorded after processing an inbound event.
const (
	ResultActionCreated           = "created"
	ResultActionUpdated           = "updated"
	ResultActionCancelled         = "cancelled"
	ResultActionSkipped           = "skipped"
	ResultActionSkippedOutOfOrder = "skipped_out_of_order"
	ResultActionUnmatched         = "unmatched"
	ResultActionNotFound          = "not_found"
	ResultActionIgnored           = "ignored"
)

// WebhookEventLog stores every inbound payload verbatim. The receiver
// inserts rows in status received; the processor owns them afterwards.
type WebhookEventLog struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Provider        string         `gorm:"size:50;not null;default:channex;index:idx_webhook_provider_event" json:"provider"`
	EventID         *string        `gorm:"size:100;index:idx_webhook_provider_event" json:"event_id,omitempty"`
	EventType       string         `gorm:"size:100;index" json:"event_type"`
	ExternalID      string         `gorm:"size:100;index" json:"external_id,omitempty"`
	RevisionID      string         `gorm:"size:100" json:"revision_id,omitempty"`
	PayloadJSON     datatypes.JSON `json:"payload_json"`
	PayloadHash     string         `gorm:"size:64;index" json:"payload_hash"`
	RequestHeaders  datatypes.JSON `json:"request_headers,omitempty"`
	Status          string         `gorm:"size:20;not null;default:received;index" json:"status"`
	ReceivedAt      time.Time      `gorm:"not null;index" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	ResultAction    string         `gorm:"size:30" json:"result_action,omitempty"`
	ResultBookingID *uuid.UUID     `gorm:"type:uuid" json:"result_booking_id,omitempty"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
}

func (WebhookEventLog) TableName() string { return "webhook_event_logs" }

func (w *WebhookEventLog) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.ReceivedAt.IsZero() {
		w.ReceivedAt = time.Now().UTC()
	}
	return nil
}

// InboundIdempotency records the terminal outcome per provider event id so
// re-deliveries short-circuit without touching domain state.
type InboundIdempotency struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Provider          string     `gorm:"size:50;not null;uniqueIndex:idx_inbound_idem" json:"provider"`
	ExternalEventID   string     `gorm:"size:100;not null;uniqueIndex:idx_inbound_idem" json:"external_event_id"`
	InternalBookingID *uuid.UUID `gorm:"type:uuid" json:"internal_booking_id,omitempty"`
	ResultAction      string     `gorm:"size:30" json:"result_action"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (InboundIdempotency) TableName() string { return "inbound_idempotency" }

func (i *InboundIdempotency) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
