package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mnamhq/channelsync/internal/model"
)

// Open connects to the store named by dsn. Postgres DSNs (postgres://
// or key=value form) get the postgres driver; anything else is treated
// as a SQLite file, the local-development fallback.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	if isPostgresDSN(dsn) {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// Migrate creates or updates every table the engine owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Project{},
		&model.Unit{},
		&model.Customer{},
		&model.Booking{},
		&model.Connection{},
		&model.ExternalMapping{},
		&model.PricingPolicy{},
		&model.IntegrationOutbox{},
		&model.WebhookEventLog{},
		&model.InboundIdempotency{},
		&model.BookingRevision{},
		&model.UnmatchedWebhookEvent{},
		&model.PropertyRateState{},
		&model.InventoryCalendar{},
		&model.IntegrationLog{},
		&model.IntegrationAudit{},
		&model.IntegrationSetting{},
		&model.RefreshToken{},
	)
}

// SupportsRowLocking reports whether plain FOR UPDATE is available.
// SQLite serializes writers per transaction, which gives the same
// guarantee without the clause.
func SupportsRowLocking(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// SupportsSkipLocked reports whether the connected dialect can claim
// rows with FOR UPDATE SKIP LOCKED. Callers without it must run a
// single worker replica.
func SupportsSkipLocked(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// SupportsNoWait reports whether FOR UPDATE NOWAIT is available.
func SupportsNoWait(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// IsLockNotAvailable reports whether err is postgres refusing a NOWAIT
// lock because another transaction holds the row.
func IsLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

// IsUniqueViolation reports whether err is a unique-constraint failure
// on any supported dialect.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
