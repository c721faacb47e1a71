package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/database"
	"github.com/mnamhq/channelsync/internal/model"
)

// ConnectionRepository owns integration_connections.
type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *ConnectionRepository) WithTx(tx *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: tx}
}

func (r *ConnectionRepository) Create(ctx context.Context, c *model.Connection) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *ConnectionRepository) Save(ctx context.Context, c *model.Connection) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *ConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("connection_id = ?", id).Delete(&model.ExternalMapping{}).Error
		if err != nil {
			return err
		}
		res := tx.Delete(&model.Connection{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *ConnectionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Connection, error) {
	var c model.Connection
	err := r.db.WithContext(ctx).Preload("Mappings").First(&c, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConnectionRepository) List(ctx context.Context) ([]model.Connection, error) {
	var conns []model.Connection
	err := r.db.WithContext(ctx).Preload("Mappings").Order("created_at").Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

// ActiveByProperty returns the active connection owning a channel
// property id, nil when none.
func (r *ConnectionRepository) ActiveByProperty(ctx context.Context, externalPropertyID string) (*model.Connection, error) {
	var c model.Connection
	err := r.db.WithContext(ctx).
		Where("external_property_id = ?", externalPropertyID).
		Where("status = ?", model.ConnectionStatusActive).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ByProject returns a project's connection for one provider, nil when
// none.
func (r *ConnectionRepository) ByProject(ctx context.Context, projectID uuid.UUID, provider string) (*model.Connection, error) {
	var c model.Connection
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND provider = ?", projectID, provider).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkSynced records a successful sync and clears the error counter.
func (r *ConnectionRepository) MarkSynced(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_sync_at": now,
			"error_count":  0,
			"last_error":   "",
		}).Error
}

// MarkError bumps the error counter and keeps the latest message.
func (r *ConnectionRepository) MarkError(ctx context.Context, id uuid.UUID, msg string) error {
	return r.db.WithContext(ctx).Model(&model.Connection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"error_count": gorm.Expr("error_count + 1"),
			"last_error":  truncateError(msg),
		}).Error
}

func (r *ConnectionRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	res := r.db.WithContext(ctx).Model(&model.Connection{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MappingRepository owns integration_external_mappings.
type MappingRepository struct {
	db *gorm.DB
}

func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *MappingRepository) WithTx(tx *gorm.DB) *MappingRepository {
	return &MappingRepository{db: tx}
}

func (r *MappingRepository) Create(ctx context.Context, m *model.ExternalMapping) error {
	err := r.db.WithContext(ctx).Create(m).Error
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *MappingRepository) Save(ctx context.Context, m *model.ExternalMapping) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *MappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&model.ExternalMapping{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *MappingRepository) Get(ctx context.Context, id uuid.UUID) (*model.ExternalMapping, error) {
	var m model.ExternalMapping
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MappingRepository) ForConnection(ctx context.Context, connectionID uuid.UUID) ([]model.ExternalMapping, error) {
	var mappings []model.ExternalMapping
	err := r.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("created_at").
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// ByUnit returns the unit's active mapping with its connection loaded,
// nil when the unit is not mapped.
func (r *MappingRepository) ByUnit(ctx context.Context, unitID uuid.UUID) (*model.ExternalMapping, error) {
	var m model.ExternalMapping
	err := r.db.WithContext(ctx).
		Preload("Connection").
		Where("unit_id = ? AND is_active = ?", unitID, true).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ByRoomType returns the active mapping for a channel room type within
// one connection, nil when none.
func (r *MappingRepository) ByRoomType(ctx context.Context, connectionID uuid.UUID, roomTypeID string) (*model.ExternalMapping, error) {
	var m model.ExternalMapping
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND external_room_type_id = ? AND is_active = ?", connectionID, roomTypeID, true).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ByRatePlan is the fallback lookup when the payload names a rate plan
// but no room type.
func (r *MappingRepository) ByRatePlan(ctx context.Context, connectionID uuid.UUID, ratePlanID string) (*model.ExternalMapping, error) {
	var m model.ExternalMapping
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND external_rate_plan_id = ? AND is_active = ?", connectionID, ratePlanID, true).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ActiveWithRatePlans returns every active mapping that can carry a
// price push: mapping active, rate plan set, connection active.
// Connections come preloaded.
func (r *MappingRepository) ActiveWithRatePlans(ctx context.Context) ([]model.ExternalMapping, error) {
	var mappings []model.ExternalMapping
	err := r.db.WithContext(ctx).
		Preload("Connection").
		Joins("JOIN integration_connections ON integration_connections.id = integration_external_mappings.connection_id").
		Where("integration_external_mappings.is_active = ?", true).
		Where("integration_external_mappings.external_rate_plan_id <> ''").
		Where("integration_connections.status = ?", model.ConnectionStatusActive).
		Order("integration_external_mappings.created_at").
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// TouchPriceSync stamps the last successful price push.
func (r *MappingRepository) TouchPriceSync(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.ExternalMapping{}).
		Where("id = ?", id).
		Update("last_price_sync_at", now).Error
}

// TouchAvailSync stamps the last successful availability push.
func (r *MappingRepository) TouchAvailSync(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.ExternalMapping{}).
		Where("id = ?", id).
		Update("last_avail_sync_at", now).Error
}
