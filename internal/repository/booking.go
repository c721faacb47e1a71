package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
)

// BookingRepository reads and writes the host-owned bookings table.
// Channel-origin mutations always run inside a transaction that locked
// the row first.
type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *BookingRepository) WithTx(tx *gorm.DB) *BookingRepository {
	return &BookingRepository{db: tx}
}

func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// Save writes the full row back.
func (r *BookingRepository) Save(ctx context.Context, b *model.Booking) error {
	return r.db.WithContext(ctx).Save(b).Error
}

func (r *BookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// GetForUpdate loads a booking under a row lock.
func (r *BookingRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	if err := forUpdate(r.db.WithContext(ctx)).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// GetForUpdateNoWait loads a booking under a row lock, failing fast
// when another transaction already holds it.
func (r *BookingRepository) GetForUpdateNoWait(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	if err := noWaitLock(r.db.WithContext(ctx)).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// FindByExternalID returns the booking carrying a channel reservation
// id, nil when none exists.
func (r *BookingRepository) FindByExternalID(ctx context.Context, externalID string) (*model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).
		Where("external_reservation_id = ?", externalID).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FindByExternalIDForUpdate is FindByExternalID under a row lock, for
// the webhook processor's modify and cancel paths.
func (r *BookingRepository) FindByExternalIDForUpdate(ctx context.Context, externalID string) (*model.Booking, error) {
	var b model.Booking
	err := forUpdate(r.db.WithContext(ctx)).
		Where("external_reservation_id = ?", externalID).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FindConflicts returns live bookings on the unit whose stay overlaps
// [checkIn, checkOut). A booking holding excludeExternalID is not a
// conflict with itself.
func (r *BookingRepository) FindConflicts(ctx context.Context, unitID uuid.UUID, checkIn, checkOut time.Time, excludeExternalID string) ([]model.Booking, error) {
	q := r.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Where("is_deleted = ?", false).
		Where("status <> ?", model.BookingStatusCancelled).
		Where("check_in_date < ? AND check_out_date > ?", checkOut, checkIn)
	if excludeExternalID != "" {
		q = q.Where("external_reservation_id IS NULL OR external_reservation_id <> ?", excludeExternalID)
	}

	var conflicts []model.Booking
	if err := q.Order("check_in_date").Find(&conflicts).Error; err != nil {
		return nil, err
	}
	return conflicts, nil
}

// StaysForUnit returns live bookings whose stay touches [from, to).
// check_out_date == from is included so checkout-day rules still see
// the departing stay.
func (r *BookingRepository) StaysForUnit(ctx context.Context, unitID uuid.UUID, from, to time.Time) ([]model.Booking, error) {
	var stays []model.Booking
	err := r.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Where("is_deleted = ?", false).
		Where("status <> ?", model.BookingStatusCancelled).
		Where("check_in_date < ? AND check_out_date >= ?", to, from).
		Order("check_in_date").
		Find(&stays).Error
	if err != nil {
		return nil, err
	}
	return stays, nil
}

// DueForCompletion returns checked_in bookings whose checkout date has
// passed.
func (r *BookingRepository) DueForCompletion(ctx context.Context, today time.Time) ([]model.Booking, error) {
	var due []model.Booking
	err := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Where("status = ?", model.BookingStatusCheckedIn).
		Where("check_out_date < ?", today).
		Find(&due).Error
	if err != nil {
		return nil, err
	}
	return due, nil
}

// DueForNoShow returns confirmed bookings whose whole stay has passed
// without a check-in.
func (r *BookingRepository) DueForNoShow(ctx context.Context, today time.Time) ([]model.Booking, error) {
	var due []model.Booking
	err := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Where("status = ?", model.BookingStatusConfirmed).
		Where("check_out_date < ?", today).
		Find(&due).Error
	if err != nil {
		return nil, err
	}
	return due, nil
}

// BookingFilter narrows List.
type BookingFilter struct {
	UnitID     uuid.UUID
	Status     string
	SourceType string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

func (r *BookingRepository) List(ctx context.Context, f BookingFilter) ([]model.Booking, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Booking{}).Where("is_deleted = ?", false)
	if f.UnitID != uuid.Nil {
		q = q.Where("unit_id = ?", f.UnitID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.SourceType != "" {
		q = q.Where("source_type = ?", f.SourceType)
	}
	if !f.From.IsZero() {
		q = q.Where("check_out_date > ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("check_in_date < ?", f.To)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var bookings []model.Booking
	err := q.Order("check_in_date DESC").Limit(limit).Offset(f.Offset).Find(&bookings).Error
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}
