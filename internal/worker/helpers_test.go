package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/metrics"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/pricing"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/service"
	"github.com/mnamhq/channelsync/internal/testdb"
)

// env bundles a throwaway database, a frozen clock, and an isolated
// metric set for worker tests.
type env struct {
	t     *testing.T
	db    *gorm.DB
	repos *repository.Set
	set   *metrics.Set
	now   time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testdb.Open(t)
	return &env{
		t:     t,
		db:    db,
		repos: repository.New(db, zerolog.Nop()),
		set:   metrics.New(prometheus.NewRegistry()),
		now:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (e *env) clock() time.Time { return e.now }

func (e *env) syncService(baseURL string, gate channex.RateGate) *service.SyncService {
	factory := service.ClientFactoryFunc(func(conn *model.Connection) service.ChannelClient {
		return channex.NewClient(channex.Options{
			BaseURL:      baseURL,
			APIKey:       conn.APIKey,
			ConnectionID: conn.ID.String(),
			Gate:         gate,
			Logger:       zerolog.Nop(),
			Sleep:        func(_ context.Context, _ time.Duration) error { return nil },
		})
	})
	engine := pricing.NewEngine(zerolog.Nop(), e.clock, nil, 0)
	return service.NewSyncService(e.repos, engine, factory, time.UTC, zerolog.Nop(), e.clock)
}

func (e *env) outboxWorker(baseURL string) *OutboxWorker {
	return NewOutboxWorker(e.repos, e.syncService(baseURL, nil), e.set, zerolog.Nop(), time.Second, 50, e.clock)
}

func (e *env) bookingService() *service.BookingService {
	customers := service.NewCustomerService(e.repos.Customers, zerolog.Nop())
	engine := pricing.NewEngine(zerolog.Nop(), e.clock, nil, 0)
	return service.NewBookingService(e.db, e.repos, customers, engine, time.UTC, zerolog.Nop(), e.clock)
}

func (e *env) processor() *service.ProcessorService {
	customers := service.NewCustomerService(e.repos.Customers, zerolog.Nop())
	return service.NewProcessorService(e.db, e.repos, customers, zerolog.Nop(), e.clock)
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

// enqueue inserts a due outbox event directly.
func (e *env) enqueue(conn *model.Connection, unitID uuid.UUID, eventType string, daysAhead int) *model.IntegrationOutbox {
	e.t.Helper()
	payload, err := json.Marshal(model.OutboxPayload{UnitID: unitID.String(), DaysAhead: daysAhead, Reason: "scheduled"})
	require.NoError(e.t, err)
	ev := &model.IntegrationOutbox{
		ConnectionID:  conn.ID,
		EventType:     eventType,
		UnitID:        unitID,
		Payload:       payload,
		Status:        model.OutboxStatusPending,
		NextAttemptAt: e.now,
	}
	require.NoError(e.t, e.db.Create(ev).Error)
	return ev
}

func (e *env) reloadOutbox(id uuid.UUID) *model.IntegrationOutbox {
	e.t.Helper()
	var ev model.IntegrationOutbox
	require.NoError(e.t, e.db.First(&ev, "id = ?", id).Error)
	return &ev
}

func day(yy, mm, dd int) time.Time {
	return time.Date(yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
}

func seedBooking(t *testing.T, db *gorm.DB, unitID uuid.UUID, in, out time.Time, status string) *model.Booking {
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
		SourceType:   model.SourceTypeManual,
	}
	require.NoError(t, db.Create(b).Error)
	return b
}
