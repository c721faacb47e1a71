package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/metrics"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/service"
	"github.com/mnamhq/channelsync/internal/testdb"
)

type env struct {
	t     *testing.T
	db    *gorm.DB
	repos *repository.Set
	set   *metrics.Set
	loc   *time.Location
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
		loc:   time.FixedZone("AST", 3*3600),
		now:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (e *env) scheduler() *Scheduler {
	auth := service.NewAuthService(e.repos.Tokens, "secret", "api-key", time.Hour, 24*time.Hour, zerolog.Nop(), func() time.Time { return e.now })
	return New(e.repos, auth, e.set, e.loc, zerolog.Nop(), func() time.Time { return e.now })
}

func (e *env) seedConnection(status string) *model.Connection {
	e.t.Helper()
	c := &model.Connection{
		ProjectID:          uuid.New(),
		Provider:           model.ProviderChannex,
		APIKey:             "test-key",
		ExternalPropertyID: "prop-" + uuid.NewString()[:8],
		Status:             status,
	}
	require.NoError(e.t, e.db.Create(c).Error)
	return c
}

func (e *env) seedMapping(conn *model.Connection, ratePlanID string, active bool) *model.ExternalMapping {
	e.t.Helper()
	unit := &model.Unit{ProjectID: conn.ProjectID, Name: "Unit", Status: model.UnitStatusAvailable}
	require.NoError(e.t, e.db.Create(unit).Error)
	m := &model.ExternalMapping{
		ConnectionID:       conn.ID,
		UnitID:             unit.ID,
		ExternalRoomTypeID: "rt-1",
		ExternalRatePlanID: ratePlanID,
		IsActive:           active,
	}
	require.NoError(e.t, e.db.Create(m).Error)
	return m
}

func (e *env) outboxRows() []model.IntegrationOutbox {
	e.t.Helper()
	var events []model.IntegrationOutbox
	require.NoError(e.t, e.db.Order("created_at").Find(&events).Error)
	return events
}

func TestEnqueuePriceSyncsTargetsSyncableUnits(t *testing.T) {
	e := newEnv(t)
	conn := e.seedConnection(model.ConnectionStatusActive)
	first := e.seedMapping(conn, "rp-1", true)
	second := e.seedMapping(conn, "rp-2", true)
	e.seedMapping(conn, "rp-3", false)
	e.seedMapping(conn, "", true)
	inactive := e.seedConnection(model.ConnectionStatusInactive)
	e.seedMapping(inactive, "rp-9", true)

	s := e.scheduler()
	queued, err := s.EnqueuePriceSyncs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	events := e.outboxRows()
	require.Len(t, events, 2)
	byUnit := map[uuid.UUID]model.IntegrationOutbox{}
	for _, ev := range events {
		byUnit[ev.UnitID] = ev
	}
	require.Contains(t, byUnit, first.UnitID)
	require.Contains(t, byUnit, second.UnitID)

	// Noon UTC is 15:00 in the channel's zone, so the key carries hour 15.
	ev := byUnit[first.UnitID]
	assert.Equal(t, model.OutboxEventPriceUpdate, ev.EventType)
	assert.Equal(t, conn.ID, ev.ConnectionID)
	assert.Equal(t, model.OutboxStatusPending, ev.Status)
	require.NotNil(t, ev.IdempotencyKey)
	assert.Equal(t, fmt.Sprintf("scheduled_price_%s_2026031015", first.UnitID), *ev.IdempotencyKey)

	var payload model.OutboxPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, first.UnitID.String(), payload.UnitID)
	assert.Equal(t, "scheduled", payload.Reason)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.set.ScheduledEnqueues.WithLabelValues("enqueued")))
}

func TestEnqueuePriceSyncsIdempotentPerTick(t *testing.T) {
	e := newEnv(t)
	conn := e.seedConnection(model.ConnectionStatusActive)
	e.seedMapping(conn, "rp-1", true)

	s := e.scheduler()
	ctx := context.Background()

	queued, err := s.EnqueuePriceSyncs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	queued, err = s.EnqueuePriceSyncs(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued, "same tick enqueues nothing extra")
	assert.Len(t, e.outboxRows(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.set.ScheduledEnqueues.WithLabelValues("duplicate")))

	// The next tick carries a new hour and queues fresh work.
	e.now = e.now.Add(4 * time.Hour)
	queued, err = s.EnqueuePriceSyncs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	assert.Len(t, e.outboxRows(), 2)
}

func TestPurgeTokensDropsExpired(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.db.Create(&model.RefreshToken{
		Subject:   "ops",
		TokenHash: "aaaa",
		ExpiresAt: e.now.Add(-time.Hour),
	}).Error)
	require.NoError(t, e.db.Create(&model.RefreshToken{
		Subject:   "ops",
		TokenHash: "bbbb",
		ExpiresAt: e.now.Add(time.Hour),
	}).Error)

	s := e.scheduler()
	s.purgeTokens(context.Background())

	var remaining []model.RefreshToken
	require.NoError(t, e.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "bbbb", remaining[0].TokenHash)
}

func TestSchedulerStartStop(t *testing.T) {
	e := newEnv(t)
	s := e.scheduler()
	require.NoError(t, s.Start())
	s.Stop()
}
