// Package repository holds the persistence layer. Each aggregate gets
// its own repository over a shared *gorm.DB; methods that participate
// in a larger transaction are reached through WithTx so the caller owns
// the transaction boundary.
package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mnamhq/channelsync/internal/database"
)

// ErrDuplicate reports an insert that lost to an existing row on a
// unique key. Callers that enqueue idempotently treat it as success.
var ErrDuplicate = errors.New("duplicate row")

// errTextLimit bounds stored error messages.
const errTextLimit = 1000

func truncateError(msg string) string {
	if len(msg) > errTextLimit {
		return msg[:errTextLimit]
	}
	return msg
}

// forUpdate adds FOR UPDATE on dialects that support it. SQLite holds a
// database-level write lock per transaction instead, which serializes
// the same way.
func forUpdate(db *gorm.DB) *gorm.DB {
	if database.SupportsRowLocking(db) {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// claimLock adds FOR UPDATE SKIP LOCKED so concurrent workers claim
// disjoint batches. Without it the deployment must run a single worker.
func claimLock(db *gorm.DB) *gorm.DB {
	if database.SupportsSkipLocked(db) {
		return db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return db
}

// noWaitLock adds FOR UPDATE NOWAIT so a second locker fails fast
// instead of queueing.
func noWaitLock(db *gorm.DB) *gorm.DB {
	if database.SupportsNoWait(db) {
		return db.Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"})
	}
	return db
}
