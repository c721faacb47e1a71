package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/ratelimit"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/testdb"
)

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "restrictions", endpointLabel("/restrictions"))
	assert.Equal(t, "properties", endpointLabel("/properties/prop-1/bookings"))
	assert.Equal(t, "bookings", endpointLabel("/bookings/abc/confirm"))
	assert.Equal(t, "unknown", endpointLabel(""))
}

type captureRecorder struct {
	entries []channex.RequestLog
}

func (c *captureRecorder) RecordRequest(_ context.Context, entry channex.RequestLog) {
	c.entries = append(c.entries, entry)
}

func TestRequestObserverCountsAndChains(t *testing.T) {
	set := New(prometheus.NewRegistry())
	next := &captureRecorder{}
	obs := NewRequestObserver(set, next)
	ctx := context.Background()

	obs.RecordRequest(ctx, channex.RequestLog{Method: "POST", Endpoint: "/restrictions", Success: true, DurationMs: 120})
	obs.RecordRequest(ctx, channex.RequestLog{Method: "GET", Endpoint: "/properties/prop-1/bookings", Success: false, DurationMs: 40})

	assert.Equal(t, 1.0, testutil.ToFloat64(set.ChannelRequests.WithLabelValues("restrictions", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(set.ChannelRequests.WithLabelValues("properties", "failure")))
	assert.Equal(t, 2, testutil.CollectAndCount(set.ChannelLatency))

	require.Len(t, next.entries, 2)
	assert.Equal(t, "/restrictions", next.entries[0].Endpoint)
}

func TestRequestObserverWithoutNext(t *testing.T) {
	set := New(prometheus.NewRegistry())
	obs := NewRequestObserver(set, nil)

	obs.RecordRequest(context.Background(), channex.RequestLog{Endpoint: "/availability", Success: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(set.ChannelRequests.WithLabelValues("availability", "success")))
}

func TestQueueCollectorReadsQueues(t *testing.T) {
	db := testdb.Open(t)
	repos := repository.New(db, zerolog.Nop())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rates := ratelimit.NewStore(db, zerolog.Nop(), func() time.Time { return now })

	for i := 0; i < 2; i++ {
		require.NoError(t, db.Create(&model.IntegrationOutbox{
			ConnectionID:  uuid.New(),
			EventType:     model.OutboxEventPriceUpdate,
			UnitID:        uuid.New(),
			Payload:       []byte(`{}`),
			Status:        model.OutboxStatusPending,
			NextAttemptAt: now,
		}).Error)
	}
	require.NoError(t, db.Create(&model.IntegrationOutbox{
		ConnectionID:  uuid.New(),
		EventType:     model.OutboxEventAvailUpdate,
		UnitID:        uuid.New(),
		Payload:       []byte(`{}`),
		Status:        model.OutboxStatusFailed,
		NextAttemptAt: now,
	}).Error)
	require.NoError(t, db.Create(&model.WebhookEventLog{
		Provider:    model.ProviderChannex,
		EventType:   "booking.new",
		PayloadJSON: []byte(`{}`),
		PayloadHash: "cafe",
		Status:      model.WebhookStatusReceived,
		ReceivedAt:  now,
	}).Error)
	require.NoError(t, db.Create(&model.UnmatchedWebhookEvent{
		EventType:  "booking.new",
		PropertyID: "prop-9",
		RawPayload: []byte(`{}`),
		Reason:     model.UnmatchedReasonNoConnection,
		Status:     model.UnmatchedStatusPending,
	}).Error)
	until := now.Add(5 * time.Minute)
	require.NoError(t, db.Create(&model.PropertyRateState{
		ExternalPropertyID: "prop-429",
		PriceLastRefillAt:  now,
		AvailLastRefillAt:  now,
		PausedUntil:        &until,
	}).Error)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewQueueCollector(repos, rates, zerolog.Nop())))

	expected := `
# HELP channelsync_outbox_events Outbox events currently in each status.
# TYPE channelsync_outbox_events gauge
channelsync_outbox_events{status="failed"} 1
channelsync_outbox_events{status="pending"} 2
# HELP channelsync_paused_properties Properties currently paused after a channel 429.
# TYPE channelsync_paused_properties gauge
channelsync_paused_properties 1
# HELP channelsync_unmatched_events_pending Unmatched webhook events waiting for manual resolution.
# TYPE channelsync_unmatched_events_pending gauge
channelsync_unmatched_events_pending 1
# HELP channelsync_webhook_events Webhook event log rows currently in each status.
# TYPE channelsync_webhook_events gauge
channelsync_webhook_events{status="received"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"channelsync_outbox_events",
		"channelsync_webhook_events",
		"channelsync_unmatched_events_pending",
		"channelsync_paused_properties",
	))
}

func TestQueueCollectorExpiredPauseNotCounted(t *testing.T) {
	db := testdb.Open(t)
	repos := repository.New(db, zerolog.Nop())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rates := ratelimit.NewStore(db, zerolog.Nop(), func() time.Time { return now })

	until := now.Add(-time.Minute)
	require.NoError(t, db.Create(&model.PropertyRateState{
		ExternalPropertyID: "prop-old",
		PriceLastRefillAt:  now,
		AvailLastRefillAt:  now,
		PausedUntil:        &until,
	}).Error)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewQueueCollector(repos, rates, zerolog.Nop())))

	expected := `
# HELP channelsync_paused_properties Properties currently paused after a channel 429.
# TYPE channelsync_paused_properties gauge
channelsync_paused_properties 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"channelsync_paused_properties",
	))
}
