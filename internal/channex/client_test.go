package channex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGate struct {
	paused    bool
	remaining time.Duration
	grants    []bool
	waitHint  time.Duration
	pauseFor  time.Duration
	consumes  int
	pauses    int
	clears    int
}

func (g *fakeGate) IsPaused(_ context.Context, _ string) (bool, time.Duration, error) {
	return g.paused, g.remaining, nil
}

func (g *fakeGate) TryConsume(_ context.Context, _, _ string) (bool, time.Duration, error) {
	g.consumes++
	if len(g.grants) == 0 {
		return true, 0, nil
	}
	ok := g.grants[0]
	g.grants = g.grants[1:]
	return ok, g.waitHint, nil
}

func (g *fakeGate) PauseOn429(_ context.Context, _ string) (time.Duration, error) {
	g.pauses++
	if g.pauseFor == 0 {
		g.pauseFor = time.Minute
	}
	return g.pauseFor, nil
}

func (g *fakeGate) ClearPause(_ context.Context, _ string) error {
	g.clears++
	return nil
}

type fakeRecorder struct {
	entries []RequestLog
}

func (r *fakeRecorder) RecordRequest(_ context.Context, e RequestLog) {
	r.entries = append(r.entries, e)
}

func newTestClient(baseURL string, gate RateGate, rec RequestRecorder, slept *[]time.Duration) *Client {
	return NewClient(Options{
		BaseURL:      baseURL,
		APIKey:       "uak_test",
		ConnectionID: "conn-1",
		Gate:         gate,
		Recorder:     rec,
		Logger:       zerolog.Nop(),
		Sleep: func(_ context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return nil
		},
	})
}

func TestClientSendsAuthAndCorrelationHeaders(t *testing.T) {
	var gotKey, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(HeaderAPIKey)
		gotReqID = r.Header.Get(HeaderRequestID)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"id":"prop-1","attributes":{"title":"Seaside Loft","currency":"SAR"}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil, nil, nil)
	props, err := c.GetProperties(context.Background())
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "prop-1", props[0].ID)
	assert.Equal(t, "Seaside Loft", props[0].Title)
	assert.Equal(t, "uak_test", gotKey)
	assert.NotEmpty(t, gotReqID)
}

func TestClientPostRestrictions(t *testing.T) {
	var gotBody RestrictionsRequest
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"success":true}}`)
	}))
	defer srv.Close()

	gate := &fakeGate{}
	rec := &fakeRecorder{}
	c := newTestClient(srv.URL, gate, rec, nil)

	values := []RestrictionValue{{PropertyID: "prop-1", RatePlanID: "rp-1", Date: "2026-03-01", Rate: "450.00"}}
	raw, err := c.PostRestrictions(context.Background(), "prop-1", values)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"success":true}}`, string(raw))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/restrictions", gotPath)
	require.Len(t, gotBody.Values, 1)
	assert.Equal(t, "450.00", gotBody.Values[0].Rate)

	assert.Equal(t, 1, gate.consumes, "one price token per call")
	assert.Equal(t, 1, gate.clears, "2xx clears the pause state")

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.True(t, entry.Success)
	assert.Equal(t, http.StatusOK, entry.HTTPStatus)
	assert.Equal(t, http.MethodPost, entry.Method)
	assert.Equal(t, "/restrictions", entry.Endpoint)
	assert.Equal(t, "conn-1", entry.ConnectionID)
	assert.NotEmpty(t, entry.CorrelationID)
	assert.Contains(t, string(entry.RequestBody), "450.00")
}

func TestClientPausedPropertyShortCircuits(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	gate := &fakeGate{paused: true, remaining: 42 * time.Second}
	c := newTestClient(srv.URL, gate, nil, nil)

	_, err := c.PostAvailability(context.Background(), "prop-1", []AvailabilityValue{{PropertyID: "prop-1", RoomTypeID: "rt-1", Date: "2026-03-01", Availability: 1}})
	var pauseErr *PauseError
	require.ErrorAs(t, err, &pauseErr)
	assert.Equal(t, "prop-1", pauseErr.PropertyID)
	assert.Equal(t, 42*time.Second, pauseErr.RetryAfter)
	assert.Equal(t, int32(0), hits.Load(), "no HTTP while paused")
	assert.Equal(t, 0, gate.consumes, "no token burned while paused")
}

func TestClient429PausesAndStops(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"errors":{"title":"Too Many Requests"}}`)
	}))
	defer srv.Close()

	gate := &fakeGate{pauseFor: 60 * time.Second}
	rec := &fakeRecorder{}
	c := newTestClient(srv.URL, gate, rec, nil)

	_, err := c.PostRestrictions(context.Background(), "prop-1", []RestrictionValue{{PropertyID: "prop-1", RatePlanID: "rp-1", Date: "2026-03-01", Rate: "450.00"}})
	var pauseErr *PauseError
	require.ErrorAs(t, err, &pauseErr)
	assert.Equal(t, 60*time.Second, pauseErr.RetryAfter)

	assert.Equal(t, int32(1), hits.Load(), "no retries once the property is paused")
	assert.Equal(t, 1, gate.pauses)
	assert.Equal(t, 0, gate.clears)

	require.Len(t, rec.entries, 1)
	assert.False(t, rec.entries[0].Success)
	assert.Equal(t, http.StatusTooManyRequests, rec.entries[0].HTTPStatus)
}

func TestClient5xxRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"success":true}}`)
	}))
	defer srv.Close()

	gate := &fakeGate{}
	rec := &fakeRecorder{}
	var slept []time.Duration
	c := newTestClient(srv.URL, gate, rec, &slept)

	_, err := c.PostAvailability(context.Background(), "prop-1", []AvailabilityValue{{PropertyID: "prop-1", RoomTypeID: "rt-1", Date: "2026-03-01", Availability: 0}})
	require.NoError(t, err)

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept, "exponential backoff between attempts")
	require.Len(t, rec.entries, 3)
	assert.False(t, rec.entries[0].Success)
	assert.False(t, rec.entries[1].Success)
	assert.True(t, rec.entries[2].Success)
}

func TestClient5xxExhaustsAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var slept []time.Duration
	c := newTestClient(srv.URL, &fakeGate{}, nil, &slept)

	_, err := c.GetProperty(context.Background(), "prop-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrCodeBadGateway, apiErr.Code)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, int32(3), hits.Load(), "per-call attempt cap")
}

func TestClient4xxMapsWithoutRetry(t *testing.T) {
	tests := []struct {
		status   int
		wantCode string
	}{
		{http.StatusUnauthorized, ErrCodeUnauthorized},
		{http.StatusForbidden, ErrCodeForbidden},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusUnprocessableEntity, ErrCodeValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"errors":{"title":"nope"}}`)
			}))
			defer srv.Close()

			c := newTestClient(srv.URL, &fakeGate{}, nil, nil)
			_, err := c.GetProperty(context.Background(), "prop-1")

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.status, apiErr.HTTPStatus)
			assert.False(t, apiErr.Retryable)
			assert.Contains(t, apiErr.Message, "nope")
			assert.Equal(t, int32(1), hits.Load(), "4xx is not retried")
		})
	}
}

func TestClientWaitsForTokenRefill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	gate := &fakeGate{grants: []bool{false, true}, waitHint: 6 * time.Second}
	var slept []time.Duration
	c := newTestClient(srv.URL, gate, nil, &slept)

	_, err := c.PostRestrictions(context.Background(), "prop-1", []RestrictionValue{{PropertyID: "prop-1", RatePlanID: "rp-1", Date: "2026-03-01", Rate: "450.00"}})
	require.NoError(t, err)
	assert.Equal(t, 2, gate.consumes)
	assert.Equal(t, []time.Duration{6 * time.Second}, slept, "waits the refill hint once")
}

func TestClientGivesUpWhenTokensExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	gate := &fakeGate{grants: []bool{false, false}}
	var slept []time.Duration
	c := newTestClient(srv.URL, gate, nil, &slept)

	_, err := c.PostRestrictions(context.Background(), "prop-1", []RestrictionValue{{PropertyID: "prop-1", RatePlanID: "rp-1", Date: "2026-03-01", Rate: "450.00"}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrCodeRateLimited, apiErr.Code)
	assert.True(t, apiErr.Retryable)
	assert.Equal(t, int32(0), hits.Load(), "no HTTP without a token")
	assert.Equal(t, []time.Duration{tokenWaitCap}, slept, "waits the hard cap when no hint is given")
}

func TestClientNetworkErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // every dial now fails

	c := newTestClient(srv.URL, nil, nil, new([]time.Duration))
	_, err := c.GetProperties(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable)
	assert.True(t, apiErr.Code == ErrCodeNetworkError || apiErr.Code == ErrCodeTimeout)
}

func TestErrorMessageParsing(t *testing.T) {
	assert.Equal(t, "Invalid key: rotate it", errorMessage([]byte(`{"errors":{"title":"Invalid key","details":"rotate it"}}`)))
	assert.Equal(t, "boom", errorMessage([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "nope", errorMessage([]byte(`{"message":"nope"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text")))
	assert.Equal(t, "empty response body", errorMessage(nil))
}

func TestIsRetryableTaxonomy(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError(http.StatusTooManyRequests, "x")))
	assert.True(t, IsRetryable(NewAPIError(http.StatusInternalServerError, "x")))
	assert.True(t, IsRetryable(NewAPIError(http.StatusBadGateway, "x")))
	assert.True(t, IsRetryable(&PauseError{PropertyID: "p", RetryAfter: time.Minute}))
	assert.False(t, IsRetryable(NewAPIError(http.StatusUnauthorized, "x")))
	assert.False(t, IsRetryable(NewAPIError(http.StatusUnprocessableEntity, "x")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
