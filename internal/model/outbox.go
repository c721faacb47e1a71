package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outbox event types.
const (
	OutboxEventPriceUpdate = "price_update"
	OutboxEventAvailUpdate = "avail_update"
	OutboxEventFullSync    = "full_sync"
)

// Outbox statuses. completed and failed are terminal.
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessing = "processing"
	OutboxStatusCompleted  = "completed"
	OutboxStatusFailed     = "failed"
	OutboxStatusRetrying   = "retrying"
)

// DefaultOutboxMaxAttempts bounds retries per event.
const DefaultOutboxMaxAttempts = 5

// IntegrationOutbox is the durable outbound queue. Rows are claimed and
// mutated by the outbox worker only, under row locks.
type IntegrationOutbox struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectionID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"connection_id"`
	EventType      string         `gorm:"size:30;not null;index:idx_outbox_unit_event" json:"event_type"`
	UnitID         uuid.UUID      `gorm:"type:uuid;index:idx_outbox_unit_event" json:"unit_id"`
	Payload        datatypes.JSON `json:"payload"`
	Status         string         `gorm:"size:20;not null;default:pending;index:idx_outbox_claim" json:"status"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts    int            `gorm:"not null;default:5" json:"max_attempts"`
	NextAttemptAt  time.Time      `gorm:"not null;index:idx_outbox_claim" json:"next_attempt_at"`
	LastError      string         `gorm:"type:text" json:"last_error,omitempty"`
	ResponseData   datatypes.JSON `json:"response_data,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	IdempotencyKey *string        `gorm:"size:255;uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (IntegrationOutbox) TableName() string { return "integration_outbox" }

func (o *IntegrationOutbox) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultOutboxMaxAttempts
	}
	if o.NextAttemptAt.IsZero() {
		o.NextAttemptAt = time.Now().UTC()
	}
	return nil
}

// IsTerminal reports whether the event may never be mutated again.
func (o *IntegrationOutbox) IsTerminal() bool {
	return o.Status == OutboxStatusCompleted || o.Status == OutboxStatusFailed
}

// OutboxPayload is the canonical structured payload of an outbox event.
type OutboxPayload struct {
	UnitID    string `json:"unit_id"`
	DaysAhead int    `json:"days_ahead,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
