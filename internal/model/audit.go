package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit directions.
const (
	AuditDirectionOutbound = "outbound"
	AuditDirectionInbound  = "inbound"
)

// Audit entity types.
const (
	AuditEntityRate         = "rate"
	AuditEntityAvailability = "availability"
	AuditEntityRestrictions = "restrictions"
	AuditEntityBooking      = "booking"
	AuditEntityFullSync     = "full_sync"
)

// IntegrationLog records one channel HTTP attempt: sanitized request,
// outcome, duration, correlation id. Written by the client on every
// attempt, success or not.
type IntegrationLog struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectionID  *uuid.UUID     `gorm:"type:uuid;index" json:"connection_id,omitempty"`
	Method        string         `gorm:"size:10;not null" json:"method"`
	Endpoint      string         `gorm:"size:255;not null" json:"endpoint"`
	RequestBody   datatypes.JSON `json:"request_body,omitempty"`
	ResponseBody  datatypes.JSON `json:"response_body,omitempty"`
	HTTPStatus    int            `gorm:"not null;default:0" json:"http_status"`
	Success       bool           `gorm:"not null;index" json:"success"`
	ErrorMessage  string         `gorm:"type:text" json:"error_message,omitempty"`
	DurationMs    int64          `gorm:"not null;default:0" json:"duration_ms"`
	CorrelationID string         `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

func (IntegrationLog) TableName() string { return "integration_logs" }

func (l *IntegrationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// IntegrationAudit records one sync attempt end to end. The payload hash
// proves what was sent without retaining bodies.
type IntegrationAudit struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectionID  *uuid.UUID `gorm:"type:uuid;index" json:"connection_id,omitempty"`
	UnitID        *uuid.UUID `gorm:"type:uuid;index" json:"unit_id,omitempty"`
	Direction     string     `gorm:"size:10;not null;index" json:"direction"`
	EntityType    string     `gorm:"size:20;not null;index" json:"entity_type"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	PayloadHash   string     `gorm:"size:64" json:"payload_hash"`
	RecordsCount  int        `gorm:"not null;default:0" json:"records_count"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	DurationMs    int64      `gorm:"not null;default:0" json:"duration_ms"`
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	CorrelationID string     `gorm:"size:64;index" json:"correlation_id"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
}

func (IntegrationAudit) TableName() string { return "integration_audits" }

func (a *IntegrationAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
