package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnamhq/channelsync/internal/metrics"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/ratelimit"
)

func TestOutboxWorkerCompletesEvent(t *testing.T) {
	e := newEnv(t)
	conn := e.seedConnection("prop-1")
	unit := e.seedUnit()
	e.seedMapping(conn, unit, "rt-1", "rp-1")
	e.seedPolicy(unit.ID, 100)
	ev := e.enqueue(conn, unit.ID, model.OutboxEventPriceUpdate, 14)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"accepted":true}}`))
	}))
	defer srv.Close()

	w := e.outboxWorker(srv.URL)
	n, err := w.runBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), calls.Load())

	got := e.reloadOutbox(ev.ID)
	assert.Equal(t, model.OutboxStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(e.now))
	assert.Empty(t, got.LastError)
	assert.JSONEq(t, `{"data":{"accepted":true}}`, string(got.ResponseData))

	var fresh model.Connection
	require.NoError(t, e.db.First(&fresh, "id = ?", conn.ID).Error)
	require.NotNil(t, fresh.LastSyncAt)
	assert.True(t, fresh.LastSyncAt.Equal(e.now))
	assert.Zero(t, fresh.ErrorCount)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.set.OutboxProcessed.WithLabelValues(model.OutboxEventPriceUpdate, metrics.OutcomeCompleted)))
}

func TestOutboxWorkerReschedulesOnServerError(t *testing.T) {
	e := newEnv(t)
	conn := e.seedConnection("prop-1")
	unit := e.seedUnit()
	e.seedMapping(conn, unit, "rt-1", "rp-1")
	e.seedPolicy(unit.ID, 100)
	ev := e.enqueue(conn, unit.ID, model.OutboxEventPriceUpdate, 14)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errors":{"title":"upstream exploded"}}`))
	}))
	defer srv.Close()

	w := e.outboxWorker(srv.URL)
	_, err := w.runBatch(context.Background())
	require.NoError(t, err)

	got := e.reloadOutbox(ev.ID)
	assert.Equal(t, model.OutboxStatusRetrying, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, got.NextAttemptAt.Equal(e.now.Add(time.Minute)), "first retry backs off one minute")
	assert.Contains(t, got.LastError, "upstream exploded")
	assert.Nil(t, got.CompletedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.set.OutboxProcessed.WithLabelValues(model.OutboxEventPriceUpdate, metrics.OutcomeRescheduled)))
}

func TestOutboxWorkerFailsAfterMaxAttempts(t *testing.T) {
	e := newEnv(t)
	conn := e.seedConnection("prop-1")
	unit := e.seedUnit()
	e.seedMapping(conn, unit, "rt-1", "rp-1")
	e.seedPolicy(unit.ID, 100)
	ev := e.enqueue(conn, unit.ID, model.OutboxEventPriceUpdate, 14)
	require.NoError(t, e.db.Model(ev).Update("attempts", model.DefaultOutboxMaxAttempts-1).Error)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := e.outboxWorker(srv.URL)
	_, err := w.runBatch(context.Background())
	require.NoError(t, err)

	got := e.reloadOutbox(ev.ID)
	assert.Equal(t, model.OutboxStatusFailed, got.Status)
	assert.Equal(t, model.DefaultOutboxMaxAttempts, got.Attempts)
	assert.NotEmpty(t, got.LastError)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.set.OutboxProcessed.WithLabelValues(model.OutboxEventPriceUpdate, metrics.OutcomeFailed)))

	// Terminal events are no longer claimable.
	n, err := w.runBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxWorkerNonChannelErrorStillBacksOff(t *testing.T) {
	e := newEnv(t)
	conn := e.seedConnection("prop-1")
	unit := e.seedUnit()
	e.seedMapping(conn, unit, "rt-1", "")
	ev := e.enqueue(conn, unit.ID, model.OutboxEventPriceUpdate, 14)

	w := e.outboxWorker("http://127.0.0.1:0")
	_, err := w.runBatch(context.Background())
	require.NoError(t, err)

	got := e.reloadOutbox(ev.ID)
	assert.Equal(t, model.OutboxStatusRetrying, got.Status)
	assert.Contains(t, got.LastError, "no rate plan mapped")
}

func TestOutboxWorkerBackoffDoubles(t *testing.T) {
	assert.Equal(t, time.Minute, retryBackoff(0))
	assert.Equal(t, time.Minute, retryBackoff(1))
	assert.Equal(t, 2*time.Minute, retryBackoff(2))
	assert.Equal(t, 4*time.Minute, retryBackoff(3))
	assert.Equal(t, 32*time.Minute, retryBackoff(6))
	assert.Equal(t, 60*time.Minute, retryBackoff(7))
	assert.Equal(t, 60*time.Minute, retryBackoff(40))
}

func TestOutboxWorkerDrainsWholeQueue(t *testing.T) {
	e := newEnv(t)
	conn := e.seedConnection("prop-1")
	unit := e.seedUnit()
	e.seedMapping(conn, unit, "rt-1", "rp-1")
	e.seedPolicy(unit.ID, 100)
	price := e.enqueue(conn, unit.ID, model.OutboxEventPriceUpdate, 14)
	avail := e.enqueue(conn, unit.ID, model.OutboxEventAvailUpdate, 14)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	// Batch size one forces a second claim before the queue is empty.
	w := NewOutboxWorker(e.repos, e.syncService(srv.URL, nil), e.set, zerolog.Nop(), time.Second, 1, e.clock)
	w.drain(context.Background())

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, model.OutboxStatusCompleted, e.reloadOutbox(price.ID).Status)
	assert.Equal(t, model.OutboxStatusCompleted, e.reloadOutbox(avail.ID).Status)
}

func TestOutboxWorkerPauseLeavesEventRetrying(t *testing.T) {
	e := newEnv(t)
	conn := e.seedConnection("prop-1")
	unit := e.seedUnit()
	e.seedMapping(conn, unit, "rt-1", "rp-1")
	e.seedPolicy(unit.ID, 100)
	ev := e.enqueue(conn, unit.ID, model.OutboxEventPriceUpdate, 14)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rates := ratelimit.NewStore(e.db, zerolog.Nop(), e.clock)
	w := NewOutboxWorker(e.repos, e.syncService(srv.URL, rates), e.set, zerolog.Nop(), time.Second, 50, e.clock)
	_, err := w.runBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	got := e.reloadOutbox(ev.ID)
	assert.Equal(t, model.OutboxStatusRetrying, got.Status)
	assert.Equal(t, "property rate-limited", got.LastError)
	pauseWindow := time.Duration(model.RatePauseBaseSeconds) * time.Second
	assert.True(t, got.NextAttemptAt.Equal(e.now.Add(pauseWindow)))

	assert.Equal(t, 1.0, testutil.ToFloat64(e.set.OutboxProcessed.WithLabelValues(model.OutboxEventPriceUpdate, metrics.OutcomeRateLimited)))

	// The retry lands after the pause window, so the next tick claims
	// nothing and the channel stays untouched.
	n, err := w.runBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOutboxWorkerRunStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	w := NewOutboxWorker(e.repos, e.syncService("http://127.0.0.1:0", nil), e.set, zerolog.Nop(), 5*time.Millisecond, 10, e.clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
