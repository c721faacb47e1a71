package repository

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Set bundles every repository over one database handle.
type Set struct {
	Outbox      *OutboxRepository
	WebhookLogs *WebhookLogRepository
	Idempotency *IdempotencyRepository
	Bookings    *BookingRepository
	Customers   *CustomerRepository
	Connections *ConnectionRepository
	Mappings    *MappingRepository
	Units       *UnitRepository
	Unmatched   *UnmatchedRepository
	Revisions   *RevisionRepository
	Inventory   *InventoryRepository
	Audit       *AuditRepository
	Policies    *PolicyRepository
	Settings    *SettingsRepository
	Tokens      *TokenRepository
}

// New builds the full set.
func New(db *gorm.DB, logger zerolog.Logger) *Set {
	return &Set{
		Outbox:      NewOutboxRepository(db),
		WebhookLogs: NewWebhookLogRepository(db),
		Idempotency: NewIdempotencyRepository(db),
		Bookings:    NewBookingRepository(db),
		Customers:   NewCustomerRepository(db),
		Connections: NewConnectionRepository(db),
		Mappings:    NewMappingRepository(db),
		Units:       NewUnitRepository(db),
		Unmatched:   NewUnmatchedRepository(db),
		Revisions:   NewRevisionRepository(db),
		Inventory:   NewInventoryRepository(db),
		Audit:       NewAuditRepository(db, logger),
		Policies:    NewPolicyRepository(db),
		Settings:    NewSettingsRepository(db),
		Tokens:      NewTokenRepository(db),
	}
}
