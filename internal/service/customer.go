package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
)

// GuestProfile is the guest identity a booking carries into the
// customer upsert. Fields arrive raw; the service normalizes them.
type GuestProfile struct {
	Name    string
	Phone   string
	Email   string
	Gender  *string
	Country string
}

// NormalizePhone canonicalizes Saudi numbers to the local 0XXXXXXXXX
// form: digits only, 966 and 00966 country prefixes stripped, and a
// bare nine-digit mobile starting with 5 gains the leading zero.
// Non-Saudi numbers come back digits-only, untouched beyond that.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "00966"):
		digits = digits[5:]
	case strings.HasPrefix(digits, "966"):
		digits = digits[3:]
	}
	if len(digits) == 9 && digits[0] == '5' {
		return "0" + digits
	}
	return digits
}

// SanitizeName keeps Latin and Arabic letters, collapses whitespace
// runs to single spaces, and trims the ends.
func SanitizeName(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.Is(unicode.Latin, r), unicode.Is(unicode.Arabic, r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// CustomerService owns guest identity: phone-keyed lookups and upserts
// with lifetime stats. Every method runs inside the caller's
// transaction so the phone row lock spans the caller's whole decision,
// banned checks included.
type CustomerService struct {
	customers *repository.CustomerRepository
	log       zerolog.Logger
}

func NewCustomerService(customers *repository.CustomerRepository, logger zerolog.Logger) *CustomerService {
	return &CustomerService{
		customers: customers,
		log:       logger.With().Str("component", "customer").Logger(),
	}
}

// LockByPhone normalizes the phone and row-locks the matching customer
// inside tx. A nil customer with no error means the phone is new.
func (s *CustomerService) LockByPhone(ctx context.Context, tx *gorm.DB, rawPhone string) (*model.Customer, string, error) {
	phone := NormalizePhone(rawPhone)
	if phone == "" {
		return nil, "", nil
	}
	existing, err := s.customers.WithTx(tx).FindByPhoneForUpdate(ctx, phone)
	if err != nil {
		return nil, phone, err
	}
	return existing, phone, nil
}

// Apply records one booking against the guest profile inside tx. With
// existing nil a new customer row is created; otherwise the locked row
// is updated: the name only ever upgrades to a longer one, a set
// gender is never overwritten, counters increment atomically, and
// profile completeness is recomputed from the result.
func (s *CustomerService) Apply(ctx context.Context, tx *gorm.DB, existing *model.Customer, guest GuestProfile, revenue decimal.Decimal) (*model.Customer, error) {
	repo := s.customers.WithTx(tx)
	name := SanitizeName(guest.Name)
	phone := NormalizePhone(guest.Phone)

	if existing == nil {
		c := &model.Customer{
			Name:              name,
			Phone:             phone,
			Email:             strings.TrimSpace(guest.Email),
			Gender:            guest.Gender,
			BookingCount:      1,
			TotalRevenue:      revenue,
			IsProfileComplete: model.ProfileComplete(name, phone),
		}
		if err := repo.Create(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}

	updates := map[string]any{}
	if len([]rune(name)) > len([]rune(existing.Name)) {
		updates["name"] = name
		existing.Name = name
	}
	if existing.Gender == nil && guest.Gender != nil {
		updates["gender"] = *guest.Gender
		existing.Gender = guest.Gender
	}
	if email := strings.TrimSpace(guest.Email); email != "" && existing.Email == "" {
		updates["email"] = email
		existing.Email = email
	}
	if complete := model.ProfileComplete(existing.Name, existing.Phone); complete != existing.IsProfileComplete {
		updates["is_profile_complete"] = complete
		existing.IsProfileComplete = complete
	}
	if err := repo.Updates(ctx, existing.ID, updates); err != nil {
		return nil, err
	}
	if err := repo.AddBookingStats(ctx, existing.ID, revenue); err != nil {
		return nil, err
	}
	existing.BookingCount++
	existing.TotalRevenue = existing.TotalRevenue.Add(revenue)
	return existing, nil
}
