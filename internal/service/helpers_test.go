package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/pricing"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/testdb"
)

// env bundles a throwaway database with a frozen clock for service
// tests.
type env struct {
	t     *testing.T
	db    *gorm.DB
	repos *repository.Set
	now   time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testdb.Open(t)
	return &env{
		t:     t,
		db:    db,
		repos: repository.New(db, zerolog.Nop()),
		now:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (e *env) clock() time.Time { return e.now }

func day(yy, mm, dd int) time.Time {
	return time.Date(yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
}

func seedBooking(t *testing.T, db *gorm.DB, unitID uuid.UUID, in, out time.Time, status, externalID string) *model.Booking {
	t.Helper()
	b := &model.Booking{
		UnitID:       unitID,
		GuestName:    "Guest",
		GuestPhone:   "0501234567",
		CheckInDate:  in,
		CheckOutDate: out,
		TotalPrice:   decimal.NewFromInt(1000),
		Currency:     "SAR",
		Status:       status,
		SourceType:   model.SourceTypeChannex,
	}
	if externalID != "" {
		b.ExternalReservationID = &externalID
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

func (e *env) customerService() *CustomerService {
	return NewCustomerService(e.repos.Customers, zerolog.Nop())
}

func (e *env) processor() *ProcessorService {
	return NewProcessorService(e.db, e.repos, e.customerService(), zerolog.Nop(), e.clock)
}

func (e *env) receiver(secret string) *WebhookReceiver {
	return NewWebhookReceiver(e.repos.WebhookLogs, e.repos.Connections, secret, zerolog.Nop(), e.clock)
}

func (e *env) bookingService() *BookingService {
	engine := pricing.NewEngine(zerolog.Nop(), e.clock, nil, 0)
	return NewBookingService(e.db, e.repos, e.customerService(), engine, time.UTC, zerolog.Nop(), e.clock)
}

func (e *env) unmatchedService() *UnmatchedService {
	return NewUnmatchedService(e.repos, e.processor(), zerolog.Nop(), e.clock)
}

func (e *env) seedUnit() *model.Unit {
	e.t.Helper()
	u := &model.Unit{ProjectID: uuid.New(), Name: "Unit 101", Status: model.UnitStatusAvailable}
	require.NoError(e.t, e.db.Create(u).Error)
	return u
}

func (e *env) seedConnection(propertyID string) *model.Connection {
	e.t.Helper()
	c := &model.Connection{
		ProjectID:          uuid.New(),
		Provider:           model.ProviderChannex,
		APIKey:             "test-key",
		ExternalPropertyID: propertyID,
		Status:             model.ConnectionStatusActive,
	}
	require.NoError(e.t, e.db.Create(c).Error)
	return c
}

func (e *env) seedMapping(conn *model.Connection, unit *model.Unit, roomTypeID, ratePlanID string) *model.ExternalMapping {
	e.t.Helper()
	m := &model.ExternalMapping{
		ConnectionID:       conn.ID,
		UnitID:             unit.ID,
		ExternalRoomTypeID: roomTypeID,
		ExternalRatePlanID: ratePlanID,
		IsActive:           true,
	}
	require.NoError(e.t, e.db.Create(m).Error)
	return m
}

func (e *env) seedPolicy(unitID uuid.UUID, base int64) *model.PricingPolicy {
	e.t.Helper()
	p := &model.PricingPolicy{
		UnitID:           unitID,
		BaseWeekdayPrice: decimal.NewFromInt(base),
		Currency:         "SAR",
		Timezone:         "UTC",
		WeekendDays:      "4,5",
	}
	require.NoError(e.t, e.db.Create(p).Error)
	return p
}

// bookingPayload builds an inbound webhook body. Mutate the maps in fn
// to shape edge cases.
type payloadOpt func(envelope, data map[string]any)

func bookingPayload(event, reservationID, propertyID string, opts ...payloadOpt) []byte {
	data := map[string]any{
		"id":             reservationID,
		"property_id":    propertyID,
		"room_type_id":   "rt-1",
		"rate_plan_id":   "rp-1",
		"arrival_date":   "2026-03-15",
		"departure_date": "2026-03-18",
		"total_price":    "1500.00",
		"currency":       "SAR",
		"ota_name":       "airbnb",
		"guest": map[string]any{
			"name":    "Mohammed",
			"surname": "Alharbi",
			"phone":   "+966501234567",
			"email":   "guest@example.com",
			"country": "SA",
		},
	}
	envelope := map[string]any{
		"event":       event,
		"event_id":    "evt-" + reservationID,
		"property_id": propertyID,
		"revision_id": "rev-1",
	}
	for _, opt := range opts {
		opt(envelope, data)
	}
	envelope["data"] = data
	raw, err := json.Marshal(envelope)
	if err != nil {
		panic(err)
	}
	return raw
}

func withData(key string, value any) payloadOpt {
	return func(_, data map[string]any) { data[key] = value }
}

func withEnvelope(key string, value any) payloadOpt {
	return func(envelope, _ map[string]any) { envelope[key] = value }
}

func withoutData(key string) payloadOpt {
	return func(_, data map[string]any) { delete(data, key) }
}

// receive stores a payload through the receiver and returns the logged
// event ready for the processor.
func (e *env) receive(body []byte) *model.WebhookEventLog {
	e.t.Helper()
	res, err := e.receiver("").Receive(context.Background(), ReceiveInput{Body: body})
	require.NoError(e.t, err)
	require.False(e.t, res.AlreadyProcessed)
	return res.Event
}

// process receives and fully processes one payload, returning the
// refreshed event log row.
func (e *env) process(body []byte) *model.WebhookEventLog {
	e.t.Helper()
	ctx := context.Background()
	ev := e.receive(body)
	settings, err := e.repos.Settings.Get(ctx)
	require.NoError(e.t, err)

	claimed, err := e.repos.WebhookLogs.ClaimBatch(ctx, 10)
	require.NoError(e.t, err)
	var target *model.WebhookEventLog
	for i := range claimed {
		if claimed[i].ID == ev.ID {
			target = &claimed[i]
		}
	}
	require.NotNil(e.t, target, "event was not claimed")
	require.NoError(e.t, e.processor().ProcessOne(ctx, settings, target))

	got, err := e.repos.WebhookLogs.Get(ctx, ev.ID)
	require.NoError(e.t, err)
	return got
}

func (e *env) bookingByExternalID(externalID string) *model.Booking {
	e.t.Helper()
	b, err := e.repos.Bookings.FindByExternalID(context.Background(), externalID)
	require.NoError(e.t, err)
	require.NotNil(e.t, b, fmt.Sprintf("booking %s not found", externalID))
	return b
}

func (e *env) inventoryRows(unitID uuid.UUID, from, to time.Time) []model.InventoryCalendar {
	e.t.Helper()
	rows, err := e.repos.Inventory.Range(context.Background(), unitID, from, to)
	require.NoError(e.t, err)
	return rows
}

func (e *env) outboxEvents() []model.IntegrationOutbox {
	e.t.Helper()
	var events []model.IntegrationOutbox
	require.NoError(e.t, e.db.Order("created_at").Find(&events).Error)
	return events
}

func (e *env) unmatchedEvents() []model.UnmatchedWebhookEvent {
	e.t.Helper()
	var events []model.UnmatchedWebhookEvent
	require.NoError(e.t, e.db.Order("created_at").Find(&events).Error)
	return events
}
