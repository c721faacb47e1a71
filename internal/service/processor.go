package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/timeutil"
)

// Acceptance bounds for inbound stays.
const (
	maxAdvanceDays  = 730
	maxStayNights   = 365
	maxNightlyPrice = 1_000_000
)

// connCacheTTL bounds how stale a cached property-to-connection route
// can get.
const connCacheTTL = 30 * time.Second

// outcome is the terminal result of processing one inbound event.
type outcome struct {
	action    string
	bookingID *uuid.UUID
	reason    string
}

// ProcessorService turns stored webhook events into booking mutations.
// Each event is handled inside one transaction; quarantines commit,
// failures roll back and mark the event failed.
type ProcessorService struct {
	db        *gorm.DB
	repos     *repository.Set
	customers *CustomerService
	conns     *cache.Cache
	log       zerolog.Logger
	now       func() time.Time
}

func NewProcessorService(db *gorm.DB, repos *repository.Set, customers *CustomerService, logger zerolog.Logger, now func() time.Time) *ProcessorService {
	if now == nil {
		now = time.Now
	}
	return &ProcessorService{
		db:        db,
		repos:     repos,
		customers: customers,
		conns:     cache.New(connCacheTTL, time.Minute),
		log:       logger.With().Str("component", "webhook_processor").Logger(),
		now:       now,
	}
}

// activeConnection resolves a property's active connection through a
// short-lived cache. Only hits are cached, so a connection created
// after a miss is picked up on the next event.
func (s *ProcessorService) activeConnection(ctx context.Context, tx *gorm.DB, propertyID string) (*model.Connection, error) {
	if cached, ok := s.conns.Get(propertyID); ok {
		return cached.(*model.Connection), nil
	}
	conn, err := s.repos.Connections.WithTx(tx).ActiveByProperty(ctx, propertyID)
	if err != nil || conn == nil {
		return conn, err
	}
	s.conns.Set(propertyID, conn, cache.DefaultExpiration)
	return conn, nil
}

// ProcessBatch claims up to limit stored events and processes each to a
// terminal state. Returns how many events were claimed.
func (s *ProcessorService) ProcessBatch(ctx context.Context, limit int) (int, error) {
	settings, err := s.repos.Settings.Get(ctx)
	if err != nil {
		return 0, err
	}
	claimed, err := s.repos.WebhookLogs.ClaimBatch(ctx, limit)
	if err != nil {
		return 0, err
	}
	for i := range claimed {
		if err := s.ProcessOne(ctx, settings, &claimed[i]); err != nil {
			s.log.Error().Err(err).
				Str("event_id", claimed[i].ID.String()).
				Msg("event could not be finalized")
		}
	}
	return len(claimed), nil
}

// ProcessOne drives one claimed event to a terminal state. Handler
// errors are recorded on the event row; the returned error covers only
// failures to record the outcome itself.
func (s *ProcessorService) ProcessOne(ctx context.Context, settings *model.IntegrationSetting, ev *model.WebhookEventLog) error {
	now := s.now().UTC()

	canonical, handled := channex.ResolveEventType(ev.EventType)
	if !handled {
		return s.repos.WebhookLogs.MarkSkipped(ctx, ev.ID, model.ResultActionIgnored, now)
	}
	if settings != nil && !settings.EventTypeEnabled(canonical) {
		return s.repos.WebhookLogs.MarkSkipped(ctx, ev.ID, model.ResultActionIgnored, now)
	}

	var payload channex.WebhookPayload
	if err := json.Unmarshal(ev.PayloadJSON, &payload); err != nil {
		return s.quarantineInvalid(ctx, ev, now)
	}
	var data channex.BookingData
	if raw := payload.DataBlock(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return s.quarantineInvalid(ctx, ev, now)
		}
	}
	if data.ID == "" {
		data.ID = ev.ExternalID
	}
	if data.ID == "" {
		return s.quarantineInvalid(ctx, ev, now)
	}
	if data.PropertyID == "" {
		data.PropertyID = payload.PropertyID
	}
	if data.RevisionID == "" {
		data.RevisionID = payload.RevisionID
	}
	if data.RevisionID == "" {
		data.RevisionID = ev.RevisionID
	}

	var (
		out outcome
		err error
	)
	switch canonical {
	case channex.EventBookingNew:
		out, err = s.handleNew(ctx, ev, &data)
	case channex.EventBookingModified:
		out, err = s.handleModified(ctx, ev, &payload, &data)
	case channex.EventBookingCancelled:
		out, err = s.handleCancelled(ctx, ev, &data)
	}
	if err != nil {
		s.log.Error().Err(err).
			Str("event_id", ev.ID.String()).
			Str("event_type", canonical).
			Str("external_id", data.ID).
			Msg("webhook processing failed")
		return s.repos.WebhookLogs.MarkFailed(ctx, ev.ID, err.Error(), now)
	}

	s.recordIdempotency(ctx, ev, out)

	s.log.Info().
		Str("event_id", ev.ID.String()).
		Str("event_type", canonical).
		Str("external_id", data.ID).
		Str("action", out.action).
		Msg("webhook processed")

	switch out.action {
	case model.ResultActionSkipped, model.ResultActionSkippedOutOfOrder, model.ResultActionIgnored:
		return s.repos.WebhookLogs.MarkSkipped(ctx, ev.ID, out.action, now)
	default:
		return s.repos.WebhookLogs.MarkProcessed(ctx, ev.ID, out.action, out.bookingID, now)
	}
}

// handleNew imports a channel booking, quarantining anything that
// cannot be routed or validated.
func (s *ProcessorService) handleNew(ctx context.Context, ev *model.WebhookEventLog, data *channex.BookingData) (outcome, error) {
	var out outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.applyNew(ctx, tx, ev.PayloadJSON, ev.EventType, data, nil, true)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// applyNew is the shared booking-creation path, used by booking.new
// events, modifications for never-imported bookings, and operator
// replays. A replay routes by forceUnit instead of the payload's
// channel ids. With park false a routing failure is reported instead
// of written to the quarantine table.
func (s *ProcessorService) applyNew(ctx context.Context, tx *gorm.DB, raw datatypes.JSON, eventType string, data *channex.BookingData, forceUnit *uuid.UUID, park bool) (outcome, error) {
	now := s.now().UTC()

	conn, err := s.activeConnection(ctx, tx, data.PropertyID)
	if err != nil {
		return outcome{}, err
	}
	if conn == nil {
		return s.park(ctx, tx, raw, eventType, data, model.UnmatchedReasonNoConnection, park)
	}

	var mapping *model.ExternalMapping
	if forceUnit != nil {
		mapping, err = s.repos.Mappings.WithTx(tx).ByUnit(ctx, *forceUnit)
	} else {
		mapping, err = s.resolveMapping(ctx, tx, conn.ID, data)
	}
	if err != nil {
		return outcome{}, err
	}
	if mapping == nil {
		return s.park(ctx, tx, raw, eventType, data, model.UnmatchedReasonNoMapping, park)
	}

	existing, err := s.repos.Bookings.WithTx(tx).FindByExternalIDForUpdate(ctx, data.ID)
	if err != nil {
		return outcome{}, err
	}
	if existing != nil {
		return outcome{action: model.ResultActionSkipped, bookingID: &existing.ID}, nil
	}

	facts, reason := validateStay(data, timeutil.DateOnly(now))
	if reason != "" {
		return s.park(ctx, tx, raw, eventType, data, reason, park)
	}

	guest := data.GuestInfo()
	if guest == nil || (strings.TrimSpace(guest.FullName()) == "" && strings.TrimSpace(guest.Phone) == "") {
		return s.park(ctx, tx, raw, eventType, data, model.UnmatchedReasonMissingGuest, park)
	}

	conflicts, err := s.repos.Bookings.WithTx(tx).FindConflicts(ctx, mapping.UnitID, facts.checkIn, facts.checkOut, data.ID)
	if err != nil {
		return outcome{}, err
	}
	if len(conflicts) > 0 {
		return s.park(ctx, tx, raw, eventType, data, model.UnmatchedReasonDateConflict, park)
	}

	name := SanitizeName(guest.FullName())
	phone := NormalizePhone(guest.Phone)
	email := strings.TrimSpace(guest.Email)

	var (
		custID *uuid.UUID
		banned bool
	)
	if phone != "" {
		locked, _, err := s.customers.LockByPhone(ctx, tx, guest.Phone)
		if err != nil {
			return outcome{}, err
		}
		banned = locked != nil && locked.IsBanned
		cust, err := s.customers.Apply(ctx, tx, locked, GuestProfile{
			Name:    guest.FullName(),
			Phone:   guest.Phone,
			Email:   guest.Email,
			Country: guest.Country,
		}, facts.total)
		if err != nil {
			return outcome{}, err
		}
		custID = &cust.ID
	}

	snapshot, _ := json.Marshal(model.CustomerSnapshotData{
		Name:    name,
		Phone:   phone,
		Email:   email,
		Country: guest.Country,
	})

	currency := data.Currency
	if currency == "" {
		currency = model.DefaultCurrency
	}

	externalID := data.ID
	booking := &model.Booking{
		UnitID:                mapping.UnitID,
		CustomerID:            custID,
		GuestName:             name,
		GuestPhone:            phone,
		GuestEmail:            email,
		CheckInDate:           facts.checkIn,
		CheckOutDate:          facts.checkOut,
		TotalPrice:            facts.total,
		Currency:              currency,
		Status:                model.BookingStatusConfirmed,
		SourceType:            model.SourceTypeChannex,
		ChannelSource:         channex.OTALabel(data.OTAName),
		ExternalReservationID: &externalID,
		ExternalRevisionID:    data.RevisionID,
		LastAppliedRevisionID: data.RevisionID,
		LastAppliedRevisionAt: &now,
		ChannelData:           raw,
		CustomerSnapshot:      snapshot,
		Notes:                 strings.TrimSpace(data.Notes),
	}
	if banned {
		booking.Notes = appendNote(booking.Notes, "Guest is banned; booking imported from channel, review required.")
		s.log.Warn().
			Str("external_id", data.ID).
			Str("phone", phone).
			Msg("banned guest booking imported for review")
	}
	if err := s.repos.Bookings.WithTx(tx).Create(ctx, booking); err != nil {
		return outcome{}, err
	}

	rev := &model.BookingRevision{
		ExternalBookingID: data.ID,
		RevisionID:        data.RevisionID,
		BookingID:         &booking.ID,
		EventType:         model.RevisionEventNew,
		Payload:           raw,
		Applied:           true,
		RevisionAt:        parseRevisionTime(data.UpdatedAt),
	}
	if err := s.repos.Revisions.WithTx(tx).Create(ctx, rev); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return outcome{}, err
	}

	if err := occupyInventory(ctx, s.repos.Inventory.WithTx(tx), booking); err != nil {
		return outcome{}, err
	}
	if err := enqueueAvail(ctx, s.repos.Outbox.WithTx(tx), conn.ID, mapping.UnitID, "booking_created"); err != nil {
		return outcome{}, err
	}

	return outcome{action: model.ResultActionCreated, bookingID: &booking.ID}, nil
}

// handleModified applies a revision to an imported booking. Unknown
// bookings fall through to the creation path, replayed revisions are
// skipped, and revisions older than the last applied one are recorded
// without mutating anything.
func (s *ProcessorService) handleModified(ctx context.Context, ev *model.WebhookEventLog, payload *channex.WebhookPayload, data *channex.BookingData) (outcome, error) {
	var out outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookings := s.repos.Bookings.WithTx(tx)
		b, err := bookings.FindByExternalIDForUpdate(ctx, data.ID)
		if err != nil {
			return err
		}
		if b == nil {
			o, err := s.applyNew(ctx, tx, ev.PayloadJSON, ev.EventType, data, nil, true)
			if err != nil {
				return err
			}
			out = o
			return nil
		}

		if data.RevisionID != "" {
			seen, err := s.repos.Revisions.WithTx(tx).Exists(ctx, data.ID, data.RevisionID)
			if err != nil {
				return err
			}
			if seen {
				out = outcome{action: model.ResultActionSkipped, bookingID: &b.ID}
				return nil
			}
		}

		now := s.now().UTC()
		revAt := parseRevisionTime(payload.Timestamp, data.UpdatedAt)
		if b.LastAppliedRevisionAt != nil && revAt != nil && revAt.Before(*b.LastAppliedRevisionAt) {
			rev := &model.BookingRevision{
				ExternalBookingID: data.ID,
				RevisionID:        data.RevisionID,
				BookingID:         &b.ID,
				EventType:         model.RevisionEventModification,
				Payload:           ev.PayloadJSON,
				Applied:           false,
				RevisionAt:        revAt,
			}
			if err := s.repos.Revisions.WithTx(tx).Create(ctx, rev); err != nil && !errors.Is(err, repository.ErrDuplicate) {
				return err
			}
			out = outcome{action: model.ResultActionSkippedOutOfOrder, bookingID: &b.ID}
			return nil
		}

		oldUnit := b.UnitID
		oldIn := timeutil.DateOnly(b.CheckInDate)
		oldOut := timeutil.DateOnly(b.CheckOutDate)

		if guest := data.GuestInfo(); guest != nil {
			if name := SanitizeName(guest.FullName()); name != "" {
				b.GuestName = name
			}
			if phone := NormalizePhone(guest.Phone); phone != "" {
				b.GuestPhone = phone
			}
			if email := strings.TrimSpace(guest.Email); email != "" {
				b.GuestEmail = email
			}
		}

		if data.ArrivalDate != "" && data.DepartureDate != "" {
			checkIn, errIn := timeutil.ParseDate(data.ArrivalDate)
			checkOut, errOut := timeutil.ParseDate(data.DepartureDate)
			if errIn == nil && errOut == nil && checkOut.After(checkIn) {
				b.CheckInDate = checkIn
				b.CheckOutDate = checkOut
			}
		}

		if rawPrice := strings.TrimSpace(data.TotalPrice.String()); rawPrice != "" {
			if total, err := decimal.NewFromString(rawPrice); err == nil && !total.IsNegative() {
				b.TotalPrice = total
			}
		}
		if data.Currency != "" {
			b.Currency = data.Currency
		}
		if strings.EqualFold(data.Status, "cancelled") && b.Status != model.BookingStatusCancelled {
			b.Status = model.BookingStatusCancelled
			b.Notes = appendNote(b.Notes, cancellationNote(b.ChannelSource, now))
		}

		// A changed room type remaps the stay onto another unit.
		if data.RoomTypeID != "" {
			conn, err := s.activeConnection(ctx, tx, data.PropertyID)
			if err != nil {
				return err
			}
			if conn != nil {
				m, err := s.repos.Mappings.WithTx(tx).ByRoomType(ctx, conn.ID, data.RoomTypeID)
				if err != nil {
					return err
				}
				if m != nil && m.UnitID != b.UnitID {
					b.UnitID = m.UnitID
				}
			}
		}

		b.ExternalRevisionID = data.RevisionID
		b.LastAppliedRevisionID = data.RevisionID
		applied := now
		if revAt != nil {
			applied = *revAt
		}
		b.LastAppliedRevisionAt = &applied
		b.ChannelData = ev.PayloadJSON

		if err := bookings.Save(ctx, b); err != nil {
			return err
		}

		rev := &model.BookingRevision{
			ExternalBookingID: data.ID,
			RevisionID:        data.RevisionID,
			BookingID:         &b.ID,
			EventType:         model.RevisionEventModification,
			Payload:           ev.PayloadJSON,
			Applied:           true,
			RevisionAt:        revAt,
		}
		if err := s.repos.Revisions.WithTx(tx).Create(ctx, rev); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}

		newIn := timeutil.DateOnly(b.CheckInDate)
		newOut := timeutil.DateOnly(b.CheckOutDate)
		moved := b.UnitID != oldUnit
		datesChanged := !newIn.Equal(oldIn) || !newOut.Equal(oldOut)
		cancelled := b.Status == model.BookingStatusCancelled

		if moved || datesChanged || cancelled {
			if err := freeInventory(ctx, s.repos.Inventory.WithTx(tx), oldUnit, oldIn, oldOut); err != nil {
				return err
			}
			if !cancelled {
				if err := occupyInventory(ctx, s.repos.Inventory.WithTx(tx), b); err != nil {
					return err
				}
			}
			if err := s.enqueueAvailForUnit(ctx, tx, b.UnitID, "booking_modified"); err != nil {
				return err
			}
			if moved {
				if err := s.enqueueAvailForUnit(ctx, tx, oldUnit, "booking_moved"); err != nil {
					return err
				}
			}
		}

		out = outcome{action: model.ResultActionUpdated, bookingID: &b.ID}
		return nil
	})
	return out, err
}

// handleCancelled cancels an imported booking and frees its nights. A
// cancellation for an unknown booking records not_found and succeeds.
func (s *ProcessorService) handleCancelled(ctx context.Context, ev *model.WebhookEventLog, data *channex.BookingData) (outcome, error) {
	var out outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookings := s.repos.Bookings.WithTx(tx)
		b, err := bookings.FindByExternalIDForUpdate(ctx, data.ID)
		if err != nil {
			return err
		}
		if b == nil {
			out = outcome{action: model.ResultActionNotFound}
			return nil
		}
		if b.Status == model.BookingStatusCancelled {
			out = outcome{action: model.ResultActionSkipped, bookingID: &b.ID}
			return nil
		}

		now := s.now().UTC()
		b.Status = model.BookingStatusCancelled
		b.Notes = appendNote(b.Notes, cancellationNote(b.ChannelSource, now))
		if data.RevisionID != "" {
			b.ExternalRevisionID = data.RevisionID
			b.LastAppliedRevisionID = data.RevisionID
		}
		b.LastAppliedRevisionAt = &now
		b.ChannelData = ev.PayloadJSON
		if err := bookings.Save(ctx, b); err != nil {
			return err
		}

		rev := &model.BookingRevision{
			ExternalBookingID: data.ID,
			RevisionID:        data.RevisionID,
			BookingID:         &b.ID,
			EventType:         model.RevisionEventCancellation,
			Payload:           ev.PayloadJSON,
			Applied:           true,
			RevisionAt:        parseRevisionTime(data.UpdatedAt),
		}
		if err := s.repos.Revisions.WithTx(tx).Create(ctx, rev); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return err
		}

		if err := freeInventory(ctx, s.repos.Inventory.WithTx(tx), b.UnitID, b.CheckInDate, b.CheckOutDate); err != nil {
			return err
		}
		if err := s.enqueueAvailForUnit(ctx, tx, b.UnitID, "booking_cancelled"); err != nil {
			return err
		}

		out = outcome{action: model.ResultActionCancelled, bookingID: &b.ID}
		return nil
	})
	return out, err
}

// ReplayUnmatched pushes a quarantined payload back through the
// booking-creation path, routed onto the operator-chosen unit. No new
// quarantine row is written; a remaining reason comes back on the
// outcome instead.
func (s *ProcessorService) ReplayUnmatched(ctx context.Context, ue *model.UnmatchedWebhookEvent, unitID uuid.UUID) (outcome, error) {
	var payload channex.WebhookPayload
	if err := json.Unmarshal(ue.RawPayload, &payload); err != nil {
		return outcome{}, fmt.Errorf("stored payload does not parse: %w", err)
	}
	var data channex.BookingData
	if raw := payload.DataBlock(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return outcome{}, fmt.Errorf("stored booking data does not parse: %w", err)
		}
	}
	if data.ID == "" {
		data.ID = ue.ExternalReservationID
	}
	if data.PropertyID == "" {
		data.PropertyID = ue.PropertyID
	}
	if data.RoomTypeID == "" {
		data.RoomTypeID = ue.RoomTypeID
	}
	if data.RatePlanID == "" {
		data.RatePlanID = ue.RatePlanID
	}
	if data.RevisionID == "" {
		data.RevisionID = payload.RevisionID
	}

	var out outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.applyNew(ctx, tx, ue.RawPayload, ue.EventType, &data, &unitID, false)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// park writes one quarantine row and reports the unmatched outcome.
func (s *ProcessorService) park(ctx context.Context, tx *gorm.DB, raw datatypes.JSON, eventType string, data *channex.BookingData, reason string, park bool) (outcome, error) {
	if !park {
		return outcome{action: model.ResultActionUnmatched, reason: reason}, nil
	}
	ue := &model.UnmatchedWebhookEvent{
		EventType:             eventType,
		ExternalReservationID: data.ID,
		PropertyID:            data.PropertyID,
		RoomTypeID:            data.RoomTypeID,
		RatePlanID:            data.RatePlanID,
		RawPayload:            raw,
		Reason:                reason,
		Status:                model.UnmatchedStatusPending,
	}
	if err := s.repos.Unmatched.WithTx(tx).Create(ctx, ue); err != nil {
		return outcome{}, err
	}
	s.log.Warn().
		Str("external_id", data.ID).
		Str("property_id", data.PropertyID).
		Str("reason", reason).
		Msg("webhook event quarantined")
	return outcome{action: model.ResultActionUnmatched, reason: reason}, nil
}

// quarantineInvalid parks an event whose payload cannot be interpreted
// at all and closes it as unmatched.
func (s *ProcessorService) quarantineInvalid(ctx context.Context, ev *model.WebhookEventLog, now time.Time) error {
	ue := &model.UnmatchedWebhookEvent{
		EventType:             ev.EventType,
		ExternalReservationID: ev.ExternalID,
		RawPayload:            ev.PayloadJSON,
		Reason:                model.UnmatchedReasonInvalidPayload,
		Status:                model.UnmatchedStatusPending,
	}
	if err := s.repos.Unmatched.Create(ctx, ue); err != nil {
		return err
	}
	s.log.Warn().Str("event_id", ev.ID.String()).Msg("unparseable webhook payload quarantined")
	return s.repos.WebhookLogs.MarkProcessed(ctx, ev.ID, model.ResultActionUnmatched, nil, now)
}

// resolveMapping routes an inbound booking to a unit: by room type
// first, by rate plan when the room type is absent or unmapped.
func (s *ProcessorService) resolveMapping(ctx context.Context, tx *gorm.DB, connectionID uuid.UUID, data *channex.BookingData) (*model.ExternalMapping, error) {
	repo := s.repos.Mappings.WithTx(tx)
	if data.RoomTypeID != "" {
		m, err := repo.ByRoomType(ctx, connectionID, data.RoomTypeID)
		if err != nil || m != nil {
			return m, err
		}
	}
	if data.RatePlanID != "" {
		return repo.ByRatePlan(ctx, connectionID, data.RatePlanID)
	}
	return nil, nil
}

// enqueueAvailForUnit queues an availability push for whichever
// connection maps the unit. Unmapped units enqueue nothing.
func (s *ProcessorService) enqueueAvailForUnit(ctx context.Context, tx *gorm.DB, unitID uuid.UUID, reason string) error {
	m, err := s.repos.Mappings.WithTx(tx).ByUnit(ctx, unitID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	return enqueueAvail(ctx, s.repos.Outbox.WithTx(tx), m.ConnectionID, unitID, reason)
}

// recordIdempotency stores the terminal outcome per provider event id.
// Events without an id, and re-deliveries racing each other, are
// silently fine.
func (s *ProcessorService) recordIdempotency(ctx context.Context, ev *model.WebhookEventLog, out outcome) {
	if ev.EventID == nil || *ev.EventID == "" {
		return
	}
	err := s.repos.Idempotency.Record(ctx, ev.Provider, *ev.EventID, out.bookingID, out.action)
	if err != nil && !errors.Is(err, repository.ErrDuplicate) {
		s.log.Warn().Err(err).Str("provider_event_id", *ev.EventID).Msg("idempotency record failed")
	}
}

// stayFacts is the parsed and accepted stay of an inbound booking.
type stayFacts struct {
	checkIn  time.Time
	checkOut time.Time
	nights   int
	total    decimal.Decimal
}

// validateStay applies the inbound acceptance rules in order and
// returns the first failing quarantine reason, empty when the stay is
// accepted. A stay already in progress passes as long as its checkout
// has not gone by.
func validateStay(data *channex.BookingData, today time.Time) (stayFacts, string) {
	var facts stayFacts

	if data.ArrivalDate == "" || data.DepartureDate == "" {
		return facts, model.UnmatchedReasonMissingDates
	}
	checkIn, errIn := timeutil.ParseDate(data.ArrivalDate)
	checkOut, errOut := timeutil.ParseDate(data.DepartureDate)
	if errIn != nil || errOut != nil {
		return facts, model.UnmatchedReasonMissingDates
	}
	if !checkOut.After(checkIn) {
		return facts, model.UnmatchedReasonInvalidDateRange
	}
	if checkOut.Before(today) {
		return facts, model.UnmatchedReasonDatesInPast
	}
	if checkIn.After(timeutil.AddDays(today, maxAdvanceDays)) {
		return facts, model.UnmatchedReasonDatesTooFar
	}
	nights := timeutil.DaysBetween(checkIn, checkOut)
	if nights < 1 {
		return facts, model.UnmatchedReasonDurationTooShort
	}
	if nights > maxStayNights {
		return facts, model.UnmatchedReasonDurationTooLong
	}

	total := decimal.Zero
	if raw := strings.TrimSpace(data.TotalPrice.String()); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return facts, model.UnmatchedReasonInvalidPrice
		}
		total = parsed
	}
	if total.IsNegative() {
		return facts, model.UnmatchedReasonInvalidPrice
	}
	if total.Div(decimal.NewFromInt(int64(nights))).GreaterThan(decimal.NewFromInt(maxNightlyPrice)) {
		return facts, model.UnmatchedReasonInvalidPrice
	}

	facts = stayFacts{checkIn: checkIn, checkOut: checkOut, nights: nights, total: total}
	return facts, ""
}

// parseRevisionTime extracts the revision's own timestamp, trying each
// candidate string in order. Nil when none parses.
func parseRevisionTime(candidates ...string) *time.Time {
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, raw); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

// cancellationNote is the line appended to a booking's notes when a
// cancellation lands.
func cancellationNote(channelSource string, now time.Time) string {
	source := channelSource
	if source == "" {
		source = "channel"
	}
	return fmt.Sprintf("Cancelled via %s at %s", source, now.UTC().Format(time.RFC3339))
}

// appendNote adds a line to a notes blob, newline separated.
func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
