package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/metrics"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/pricing"
	"github.com/mnamhq/channelsync/internal/ratelimit"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/service"
	"github.com/mnamhq/channelsync/internal/testdb"
)

const (
	testGlobalSecret = "global-secret"
	testAPIKey       = "svc-api-key"
)

// stubClient satisfies service.ChannelClient for routes that never
// reach the provider in these tests.
type stubClient struct{}

func (stubClient) GetProperty(context.Context, string) (*channex.Property, error) {
	return &channex.Property{ID: "P1", Title: "Test Property", IsActive: true}, nil
}

func (stubClient) GetRoomTypes(context.Context, string) ([]channex.RoomType, error) {
	return nil, nil
}

func (stubClient) GetRatePlans(context.Context, string) ([]channex.RatePlan, error) {
	return nil, nil
}

func (stubClient) PostRestrictions(context.Context, string, []channex.RestrictionValue) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (stubClient) PostAvailability(context.Context, string, []channex.AvailabilityValue) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type routerEnv struct {
	t      *testing.T
	db     *gorm.DB
	repos  *repository.Set
	now    time.Time
	router http.Handler
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	db := testdb.Open(t)
	repos := repository.New(db, zerolog.Nop())
	e := &routerEnv{
		t:     t,
		db:    db,
		repos: repos,
		now:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return e.now }

	rates := ratelimit.NewStore(db, zerolog.Nop(), clock)
	engine := pricing.NewEngine(zerolog.Nop(), clock, nil, 0)
	customers := service.NewCustomerService(repos.Customers, zerolog.Nop())
	bookings := service.NewBookingService(db, repos, customers, engine, time.UTC, zerolog.Nop(), clock)
	processor := service.NewProcessorService(db, repos, customers, zerolog.Nop(), clock)
	factory := service.ClientFactoryFunc(func(*model.Connection) service.ChannelClient { return stubClient{} })
	connections := service.NewConnectionService(repos, factory, zerolog.Nop(), clock)
	unmatched := service.NewUnmatchedService(repos, processor, zerolog.Nop(), clock)
	settings := service.NewSettingsService(repos, zerolog.Nop())
	health := service.NewHealthService(repos, rates, zerolog.Nop(), clock)
	receiver := service.NewWebhookReceiver(repos.WebhookLogs, repos.Connections, testGlobalSecret, zerolog.Nop(), clock)
	auth := service.NewAuthService(repos.Tokens, "jwt-test-secret", testAPIKey,
		15*time.Minute, 24*time.Hour, zerolog.Nop(), clock)

	registry := prometheus.NewRegistry()
	metrics.New(registry)

	e.router = NewRouter(RouterConfig{
		Auth:        NewAuthHandler(auth),
		Bookings:    NewBookingHandler(bookings),
		Connections: NewConnectionHandler(connections),
		Unmatched:   NewUnmatchedHandler(unmatched),
		Settings:    NewSettingsHandler(settings),
		Admin:       NewAdminHandler(repos, clock),
		Health:      NewHealthHandler(health),
		Webhook:     NewWebhookHandler(receiver, DefaultWebhookTokenHeader, 0),
		Verifier:    auth,
		Logger:      zerolog.Nop(),
		Metrics:     registry,
	})
	return e
}

func (e *routerEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *routerEnv) postWebhook(body []byte, secret string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/channex", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(DefaultWebhookTokenHeader, secret)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// token exchanges the service API key for an access token.
func (e *routerEnv) token() string {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{"api_key": testAPIKey})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	var pair service.TokenPair
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair.AccessToken
}

func webhookBody(eventID, reservationID string) []byte {
	return []byte(fmt.Sprintf(`{"event":"booking.new","event_id":%q,"property_id":"P1",`+
		`"data":{"id":%q,"room_type_id":"RT1","guest":{"name":"Sara","phone":"+966501234567"},`+
		`"arrival_date":"2030-05-10","departure_date":"2030-05-12","total_price":"400.00",`+
		`"currency":"SAR","revision_id":"v1","updated_at":"2030-05-01T10:00:00Z"}}`,
		eventID, reservationID))
}

func TestWebhookReceiveAndRedelivery(t *testing.T) {
	e := newRouterEnv(t)

	rec := e.postWebhook(webhookBody("ev-1", "R1"), testGlobalSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ack struct {
		OK               bool   `json:"ok"`
		EventID          string `json:"event_id"`
		AlreadyProcessed bool   `json:"already_processed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.True(t, ack.OK)
	assert.False(t, ack.AlreadyProcessed)
	assert.NotEmpty(t, ack.EventID)

	var count int64
	require.NoError(t, e.db.Model(&model.WebhookEventLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Same delivery again: acknowledged without a second row.
	rec = e.postWebhook(webhookBody("ev-1", "R1"), testGlobalSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.True(t, ack.AlreadyProcessed)
	require.NoError(t, e.db.Model(&model.WebhookEventLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	e := newRouterEnv(t)

	rec := e.postWebhook(webhookBody("ev-2", "R2"), "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var count int64
	require.NoError(t, e.db.Model(&model.WebhookEventLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWebhookRejectsEmptyBody(t *testing.T) {
	e := newRouterEnv(t)
	rec := e.postWebhook(nil, testGlobalSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsOversizeBody(t *testing.T) {
	receiver := service.NewWebhookReceiver(nil, nil, "", zerolog.Nop(), nil)
	h := NewWebhookHandler(receiver, "", 64)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/channex", bytes.NewReader(bytes.Repeat([]byte("a"), 128)))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAuthTokenRejectsBadKey(t *testing.T) {
	e := newRouterEnv(t)
	rec := e.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{"api_key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesNeedBearer(t *testing.T) {
	e := newRouterEnv(t)

	rec := e.do(http.MethodGet, "/api/v1/integration/settings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodGet, "/api/v1/integration/settings", e.token(), nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuthRefreshRotation(t *testing.T) {
	e := newRouterEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{"api_key": testAPIKey})
	require.Equal(t, http.StatusOK, rec.Code)
	var first service.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = e.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second service.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated-out token is dead.
	rec = e.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSettingsUpdate(t *testing.T) {
	e := newRouterEnv(t)
	token := e.token()

	rec := e.do(http.MethodPut, "/api/v1/integration/settings", token, map[string]any{
		"sync_horizon_days": 30,
		"weekend_days":      "5,6",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got model.IntegrationSetting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 30, got.SyncHorizonDays)
	assert.Equal(t, "5,6", got.WeekendDays)
}

func TestOutboxRetryEndpoint(t *testing.T) {
	e := newRouterEnv(t)
	token := e.token()

	conn := &model.Connection{
		Provider:           model.ProviderChannex,
		APIKey:             "k",
		ExternalPropertyID: "P1",
		Status:             model.ConnectionStatusActive,
	}
	require.NoError(t, e.db.Create(conn).Error)
	ev := &model.IntegrationOutbox{
		ConnectionID:  conn.ID,
		EventType:     model.OutboxEventPriceUpdate,
		Status:        model.OutboxStatusFailed,
		Attempts:      5,
		NextAttemptAt: e.now,
		LastError:     "boom",
	}
	require.NoError(t, e.db.Create(ev).Error)

	rec := e.do(http.MethodPost, "/api/v1/integration/outbox/"+ev.ID.String()+"/retry", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got model.IntegrationOutbox
	require.NoError(t, e.db.First(&got, "id = ?", ev.ID).Error)
	assert.Equal(t, model.OutboxStatusPending, got.Status)
	assert.Zero(t, got.Attempts)
	assert.Empty(t, got.LastError)

	// Completed events stay terminal.
	done := &model.IntegrationOutbox{
		ConnectionID:  conn.ID,
		EventType:     model.OutboxEventPriceUpdate,
		Status:        model.OutboxStatusCompleted,
		NextAttemptAt: e.now,
	}
	require.NoError(t, e.db.Create(done).Error)
	rec = e.do(http.MethodPost, "/api/v1/integration/outbox/"+done.ID.String()+"/retry", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpointIsOpen(t *testing.T) {
	e := newRouterEnv(t)
	rec := e.do(http.MethodGet, "/api/v1/integration/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report service.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.NotEmpty(t, report.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newRouterEnv(t)
	rec := e.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
