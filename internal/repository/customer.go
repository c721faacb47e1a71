package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
)

// CustomerRepository reads and writes the host-owned customers table.
// Upserts run under a phone-row lock; counters move with SQL
// increments so concurrent bookings never lose an update.
type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *CustomerRepository) WithTx(tx *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: tx}
}

func (r *CustomerRepository) Create(ctx context.Context, c *model.Customer) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *CustomerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	var c model.Customer
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByPhoneForUpdate looks up a customer by normalized phone under a
// row lock, nil when none exists.
func (r *CustomerRepository) FindByPhoneForUpdate(ctx context.Context, phone string) (*model.Customer, error) {
	var c model.Customer
	err := forUpdate(r.db.WithContext(ctx)).
		Where("phone = ?", phone).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Updates applies a prepared field map to one customer.
func (r *CustomerRepository) Updates(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Customer{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// AddBookingStats bumps the booking counter and revenue total in one
// statement.
func (r *CustomerRepository) AddBookingStats(ctx context.Context, id uuid.UUID, revenue decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&model.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"booking_count": gorm.Expr("booking_count + 1"),
			"total_revenue": gorm.Expr("total_revenue + ?", revenue),
		}).Error
}
