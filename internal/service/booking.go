package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/availability"
	"github.com/mnamhq/channelsync/internal/database"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/pricing"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/timeutil"
)

// Booking service errors.
var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrUnitNotFound      = errors.New("unit not found")
	ErrDatesUnavailable  = errors.New("unit is not available for the requested dates")
	ErrCustomerBanned    = errors.New("customer is banned")
	ErrInvalidTransition = errors.New("invalid booking status transition")
)

// BookingService owns operator-facing booking writes: manual creation,
// the lifecycle state machine, and the stay-derived read surfaces.
type BookingService struct {
	db        *gorm.DB
	repos     *repository.Set
	customers *CustomerService
	pricing   *pricing.Engine
	loc       *time.Location
	log       zerolog.Logger
	now       func() time.Time
}

func NewBookingService(db *gorm.DB, repos *repository.Set, customers *CustomerService, engine *pricing.Engine, loc *time.Location, logger zerolog.Logger, now func() time.Time) *BookingService {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		db:        db,
		repos:     repos,
		customers: customers,
		pricing:   engine,
		loc:       loc,
		log:       logger.With().Str("component", "booking").Logger(),
		now:       now,
	}
}

// CreateInput is one manual booking request.
type CreateInput struct {
	UnitID     uuid.UUID
	GuestName  string
	GuestPhone string
	GuestEmail string
	CheckIn    time.Time
	CheckOut   time.Time
	TotalPrice decimal.Decimal
	Currency   string
	Notes      string
	SourceType string
}

// Create books a unit manually. The unit row is locked for the whole
// decision so two concurrent requests for the same dates cannot both
// pass the overlap check. Banned customers are rejected before any
// write.
func (s *BookingService) Create(ctx context.Context, in CreateInput) (*model.Booking, error) {
	if err := s.validateCreate(&in); err != nil {
		return nil, err
	}

	var booking *model.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repos.Units.WithTx(tx).GetForUpdate(ctx, in.UnitID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnitNotFound
			}
			return err
		}

		conflicts, err := s.repos.Bookings.WithTx(tx).FindConflicts(ctx, in.UnitID, in.CheckIn, in.CheckOut, "")
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return ErrDatesUnavailable
		}

		locked, phone, err := s.customers.LockByPhone(ctx, tx, in.GuestPhone)
		if err != nil {
			return err
		}
		if locked != nil && locked.IsBanned {
			return ErrCustomerBanned
		}

		var custID *uuid.UUID
		if phone != "" {
			cust, err := s.customers.Apply(ctx, tx, locked, GuestProfile{
				Name:  in.GuestName,
				Phone: in.GuestPhone,
				Email: in.GuestEmail,
			}, in.TotalPrice)
			if err != nil {
				return err
			}
			custID = &cust.ID
		}

		name := SanitizeName(in.GuestName)
		currency := in.Currency
		if currency == "" {
			currency = model.DefaultCurrency
		}
		sourceType := in.SourceType
		if sourceType == "" {
			sourceType = model.SourceTypeManual
		}

		snapshot := snapshotJSON(name, phone, strings.TrimSpace(in.GuestEmail))
		booking = &model.Booking{
			UnitID:           in.UnitID,
			CustomerID:       custID,
			GuestName:        name,
			GuestPhone:       phone,
			GuestEmail:       strings.TrimSpace(in.GuestEmail),
			CheckInDate:      timeutil.DateOnly(in.CheckIn),
			CheckOutDate:     timeutil.DateOnly(in.CheckOut),
			TotalPrice:       in.TotalPrice,
			Currency:         currency,
			Status:           model.BookingStatusConfirmed,
			SourceType:       sourceType,
			CustomerSnapshot: snapshot,
			Notes:            strings.TrimSpace(in.Notes),
		}
		if err := s.repos.Bookings.WithTx(tx).Create(ctx, booking); err != nil {
			return err
		}

		if err := occupyInventory(ctx, s.repos.Inventory.WithTx(tx), booking); err != nil {
			return err
		}
		return s.enqueueAvailIfMapped(ctx, tx, in.UnitID, "booking_created")
	})
	if err != nil {
		return nil, err
	}

	s.pricing.InvalidateCalendar(ctx, in.UnitID.String())
	s.log.Info().
		Str("booking_id", booking.ID.String()).
		Str("unit_id", in.UnitID.String()).
		Msg("manual booking created")
	return booking, nil
}

func (s *BookingService) validateCreate(in *CreateInput) error {
	if in.UnitID == uuid.Nil {
		return NewValidationError("unit_id", "unit_id is required")
	}
	if strings.TrimSpace(in.GuestName) == "" && strings.TrimSpace(in.GuestPhone) == "" {
		return NewValidationError("guest", "guest name or phone is required")
	}
	if in.CheckIn.IsZero() || in.CheckOut.IsZero() {
		return NewValidationError("dates", "check_in and check_out are required")
	}
	in.CheckIn = timeutil.DateOnly(in.CheckIn)
	in.CheckOut = timeutil.DateOnly(in.CheckOut)
	if !in.CheckOut.After(in.CheckIn) {
		return NewValidationError("dates", "check_out must be after check_in")
	}
	if in.TotalPrice.IsNegative() {
		return NewValidationError("total_price", "total_price cannot be negative")
	}
	return nil
}

// Get returns one booking.
func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	b, err := s.repos.Bookings.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// List returns bookings matching the filter.
func (s *BookingService) List(ctx context.Context, f repository.BookingFilter) ([]model.Booking, int64, error) {
	return s.repos.Bookings.List(ctx, f)
}

// CheckIn moves a confirmed booking to checked_in.
func (s *BookingService) CheckIn(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.transition(ctx, id, model.BookingStatusCheckedIn)
}

// CheckOut moves a checked_in booking to checked_out and flags the
// unit for cleaning.
func (s *BookingService) CheckOut(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.transition(ctx, id, model.BookingStatusCheckedOut)
}

// Cancel cancels a booking that has not checked in, frees its nights,
// and queues an availability push.
func (s *BookingService) Cancel(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return s.transition(ctx, id, model.BookingStatusCancelled)
}

// transition applies one lifecycle step under a fail-fast row lock.
func (s *BookingService) transition(ctx context.Context, id uuid.UUID, to string) (*model.Booking, error) {
	var booking *model.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookings := s.repos.Bookings.WithTx(tx)
		b, err := bookings.GetForUpdateNoWait(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			if database.IsLockNotAvailable(err) {
				return ErrLocked
			}
			return err
		}
		if !model.CanTransition(b.Status, to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, b.Status, to)
		}

		now := s.now().UTC()
		b.Status = to
		switch to {
		case model.BookingStatusCancelled:
			b.Notes = appendNote(b.Notes, fmt.Sprintf("Cancelled manually at %s", now.Format(time.RFC3339)))
		case model.BookingStatusCheckedOut:
			b.Notes = appendNote(b.Notes, fmt.Sprintf("Checked out at %s", now.Format(time.RFC3339)))
		}
		if err := bookings.Save(ctx, b); err != nil {
			return err
		}

		switch to {
		case model.BookingStatusCancelled:
			if err := freeInventory(ctx, s.repos.Inventory.WithTx(tx), b.UnitID, b.CheckInDate, b.CheckOutDate); err != nil {
				return err
			}
			if err := s.enqueueAvailIfMapped(ctx, tx, b.UnitID, "booking_cancelled"); err != nil {
				return err
			}
		case model.BookingStatusCheckedOut:
			if err := s.repos.Units.WithTx(tx).SetStatus(ctx, b.UnitID, model.UnitStatusNeedsCleaning); err != nil {
				return err
			}
		}

		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("booking_id", booking.ID.String()).
		Str("status", booking.Status).
		Msg("booking transitioned")
	return booking, nil
}

// CompleteDueStays closes out checked_in bookings whose checkout date
// has passed: the stay completes and the unit goes to needs_cleaning.
// Returns how many stays were completed.
func (s *BookingService) CompleteDueStays(ctx context.Context) (int, error) {
	today := timeutil.Today(s.now(), s.loc)
	due, err := s.repos.Bookings.DueForCompletion(ctx, today)
	if err != nil {
		return 0, err
	}

	completed := 0
	for i := range due {
		id := due[i].ID
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bookings := s.repos.Bookings.WithTx(tx)
			b, err := bookings.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			// Re-check under the lock; an operator may have raced us.
			if b.Status != model.BookingStatusCheckedIn || !timeutil.DateOnly(b.CheckOutDate).Before(today) {
				return nil
			}
			b.Status = model.BookingStatusCompleted
			if err := bookings.Save(ctx, b); err != nil {
				return err
			}
			if err := s.repos.Units.WithTx(tx).SetStatus(ctx, b.UnitID, model.UnitStatusNeedsCleaning); err != nil {
				return err
			}
			completed++
			return nil
		})
		if err != nil {
			s.log.Error().Err(err).Str("booking_id", id.String()).Msg("stay completion failed")
		}
	}
	return completed, nil
}

// CancelNoShows cancels confirmed bookings whose whole stay passed
// without a check-in. Runs only when the no-show flag is on.
func (s *BookingService) CancelNoShows(ctx context.Context) (int, error) {
	today := timeutil.Today(s.now(), s.loc)
	due, err := s.repos.Bookings.DueForNoShow(ctx, today)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for i := range due {
		id := due[i].ID
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bookings := s.repos.Bookings.WithTx(tx)
			b, err := bookings.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if b.Status != model.BookingStatusConfirmed || !timeutil.DateOnly(b.CheckOutDate).Before(today) {
				return nil
			}
			now := s.now().UTC()
			b.Status = model.BookingStatusCancelled
			b.Notes = appendNote(b.Notes, fmt.Sprintf("Cancelled as no-show at %s", now.Format(time.RFC3339)))
			if err := bookings.Save(ctx, b); err != nil {
				return err
			}
			if err := freeInventory(ctx, s.repos.Inventory.WithTx(tx), b.UnitID, b.CheckInDate, b.CheckOutDate); err != nil {
				return err
			}
			if err := s.enqueueAvailIfMapped(ctx, tx, b.UnitID, "no_show_cancelled"); err != nil {
				return err
			}
			cancelled++
			return nil
		})
		if err != nil {
			s.log.Error().Err(err).Str("booking_id", id.String()).Msg("no-show cancellation failed")
		}
	}
	return cancelled, nil
}

// QuoteResult is a priced stay plus whether the dates are free.
type QuoteResult struct {
	Quote     *pricing.Quote `json:"quote"`
	Available bool           `json:"available"`
}

// Quote prices a stay on a unit and reports date availability. The
// intraday discount window applies through the pricing engine.
func (s *BookingService) Quote(ctx context.Context, unitID uuid.UUID, checkIn, checkOut time.Time) (*QuoteResult, error) {
	policy, err := s.repos.Policies.ForUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	quote, err := s.pricing.QuoteStay(policy, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.repos.Bookings.FindConflicts(ctx, unitID, timeutil.DateOnly(checkIn), timeutil.DateOnly(checkOut), "")
	if err != nil {
		return nil, err
	}
	return &QuoteResult{Quote: quote, Available: len(conflicts) == 0}, nil
}

// UnitCalendarDay is one date of the combined price and availability
// calendar.
type UnitCalendarDay struct {
	Date      string          `json:"date"`
	Price     decimal.Decimal `json:"price"`
	Available int             `json:"availability"`
	StopSell  bool            `json:"stop_sell"`
	Reason    string          `json:"reason,omitempty"`
}

// Calendar merges the unit's price calendar with its availability
// projection over the coming days.
func (s *BookingService) Calendar(ctx context.Context, unitID uuid.UUID, days int) ([]UnitCalendarDay, error) {
	unit, err := s.repos.Units.Get(ctx, unitID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}
	settings, err := s.repos.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 30
	}
	today := timeutil.Today(s.now(), s.loc)

	policy, err := s.repos.Policies.ForUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	prices := map[string]decimal.Decimal{}
	if policy != nil {
		calendar, err := s.pricing.CalendarPrices(ctx, policy, today, days)
		if err != nil {
			return nil, err
		}
		for _, d := range calendar {
			prices[timeutil.FormatDate(d.Date)] = d.Price
		}
	}

	stays, err := s.repos.Bookings.StaysForUnit(ctx, unitID, today, timeutil.AddDays(today, days))
	if err != nil {
		return nil, err
	}
	projected := availability.Project(availability.Input{
		Unit:               unit,
		Bookings:           stays,
		Today:              today,
		Horizon:            days,
		CleaningBufferDays: settings.CleaningBufferDays,
	})

	out := make([]UnitCalendarDay, 0, len(projected))
	for _, d := range projected {
		key := timeutil.FormatDate(d.Date)
		out = append(out, UnitCalendarDay{
			Date:      key,
			Price:     prices[key],
			Available: d.Available,
			StopSell:  d.StopSell,
			Reason:    d.Reason,
		})
	}
	return out, nil
}

// enqueueAvailIfMapped queues an availability push when the unit is
// mapped to a channel; unmapped units stay local.
func (s *BookingService) enqueueAvailIfMapped(ctx context.Context, tx *gorm.DB, unitID uuid.UUID, reason string) error {
	m, err := s.repos.Mappings.WithTx(tx).ByUnit(ctx, unitID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	return enqueueAvail(ctx, s.repos.Outbox.WithTx(tx), m.ConnectionID, unitID, reason)
}

// snapshotJSON freezes the guest identity onto the booking row.
func snapshotJSON(name, phone, email string) []byte {
	raw, _ := json.Marshal(model.CustomerSnapshotData{Name: name, Phone: phone, Email: email})
	return raw
}
