package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/model"
)

// AuditRepository owns integration_logs and integration_audits. It is
// the RequestRecorder the channel client writes through.
type AuditRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewAuditRepository(db *gorm.DB, logger zerolog.Logger) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: logger.With().Str("component", "audit").Logger(),
	}
}

// RecordRequest persists one channel HTTP attempt. A write failure is
// logged and swallowed; losing a log row must never fail the call that
// produced it.
func (r *AuditRepository) RecordRequest(ctx context.Context, entry channex.RequestLog) {
	row := model.IntegrationLog{
		Method:        entry.Method,
		Endpoint:      entry.Endpoint,
		RequestBody:   []byte(entry.RequestBody),
		ResponseBody:  []byte(entry.ResponseBody),
		HTTPStatus:    entry.HTTPStatus,
		Success:       entry.Success,
		ErrorMessage:  truncateError(entry.ErrorMessage),
		DurationMs:    entry.DurationMs,
		CorrelationID: entry.CorrelationID,
	}
	if id, err := uuid.Parse(entry.ConnectionID); err == nil {
		row.ConnectionID = &id
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		r.log.Error().Err(err).
			Str("endpoint", entry.Endpoint).
			Str("correlation_id", entry.CorrelationID).
			Msg("failed to persist integration log")
	}
}

// WriteAudit persists one end-to-end sync attempt record.
func (r *AuditRepository) WriteAudit(ctx context.Context, audit *model.IntegrationAudit) error {
	return r.db.WithContext(ctx).Create(audit).Error
}

// LogFilter narrows ListLogs.
type LogFilter struct {
	ConnectionID  uuid.UUID
	CorrelationID string
	OnlyFailed    bool
	Limit         int
	Offset        int
}

func (r *AuditRepository) ListLogs(ctx context.Context, f LogFilter) ([]model.IntegrationLog, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.IntegrationLog{})
	if f.ConnectionID != uuid.Nil {
		q = q.Where("connection_id = ?", f.ConnectionID)
	}
	if f.CorrelationID != "" {
		q = q.Where("correlation_id = ?", f.CorrelationID)
	}
	if f.OnlyFailed {
		q = q.Where("success = ?", false)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []model.IntegrationLog
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// AuditFilter narrows ListAudits.
type AuditFilter struct {
	ConnectionID uuid.UUID
	UnitID       uuid.UUID
	Direction    string
	EntityType   string
	Limit        int
	Offset       int
}

func (r *AuditRepository) ListAudits(ctx context.Context, f AuditFilter) ([]model.IntegrationAudit, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.IntegrationAudit{})
	if f.ConnectionID != uuid.Nil {
		q = q.Where("connection_id = ?", f.ConnectionID)
	}
	if f.UnitID != uuid.Nil {
		q = q.Where("unit_id = ?", f.UnitID)
	}
	if f.Direction != "" {
		q = q.Where("direction = ?", f.Direction)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var audits []model.IntegrationAudit
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&audits).Error
	if err != nil {
		return nil, 0, err
	}
	return audits, total, nil
}

// RequestStats counts attempts and failures since a cutoff, for the
// health snapshot's failure rate.
func (r *AuditRepository) RequestStats(ctx context.Context, since time.Time) (total, failed int64, err error) {
	err = r.db.WithContext(ctx).Model(&model.IntegrationLog{}).
		Where("created_at >= ?", since).
		Count(&total).Error
	if err != nil {
		return 0, 0, err
	}
	err = r.db.WithContext(ctx).Model(&model.IntegrationLog{}).
		Where("created_at >= ? AND success = ?", since, false).
		Count(&failed).Error
	if err != nil {
		return 0, 0, err
	}
	return total, failed, nil
}
