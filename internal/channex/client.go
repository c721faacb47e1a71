package channex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Request headers understood by the channel API.
const (
	HeaderAPIKey    = "user-api-key"
	HeaderRequestID = "X-Request-ID"
)

// Rate-limit buckets. Restrictions pushes consume price tokens,
// availability pushes consume avail tokens.
const (
	BucketPrice = "price"
	BucketAvail = "avail"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	tokenWaitCap       = 60 * time.Second
	backoffBase        = time.Second
	backoffCap         = 30 * time.Second
	errMessageLimit    = 500
)

// RateGate throttles outbound traffic per external property. Implemented
// over the persistent rate state table so all workers observe the same
// tokens and pauses.
type RateGate interface {
	IsPaused(ctx context.Context, propertyID string) (bool, time.Duration, error)
	TryConsume(ctx context.Context, propertyID, bucket string) (bool, time.Duration, error)
	PauseOn429(ctx context.Context, propertyID string) (time.Duration, error)
	ClearPause(ctx context.Context, propertyID string) error
}

// RequestRecorder persists one entry per outbound HTTP attempt.
type RequestRecorder interface {
	RecordRequest(ctx context.Context, entry RequestLog)
}

// RequestLog is one sanitized outbound attempt, ready to persist.
type RequestLog struct {
	Provider      string
	ConnectionID  string
	Method        string
	Endpoint      string
	RequestBody   json.RawMessage
	ResponseBody  json.RawMessage
	HTTPStatus    int
	Success       bool
	DurationMs    int64
	ErrorMessage  string
	CorrelationID string
}

// Options configures a Client. Gate and Recorder are optional; without
// a gate the client performs no throttling (used by the connection
// probe before any property is known).
type Options struct {
	BaseURL      string
	APIKey       string
	Provider     string
	ConnectionID string
	Timeout      time.Duration
	Gate         RateGate
	Recorder     RequestRecorder
	Logger       zerolog.Logger
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
}

// Client talks to the channel manager API. One instance per connection;
// safe for concurrent use.
type Client struct {
	http         *resty.Client
	gate         RateGate
	recorder     RequestRecorder
	log          zerolog.Logger
	provider     string
	connectionID string
	maxAttempts  int
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader(HeaderAPIKey, opts.APIKey)

	provider := opts.Provider
	if provider == "" {
		provider = "channex"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Client{
		http:         httpClient,
		gate:         opts.Gate,
		recorder:     opts.Recorder,
		log:          opts.Logger.With().Str("component", "channex_client").Logger(),
		provider:     provider,
		connectionID: opts.ConnectionID,
		maxAttempts:  defaultMaxAttempts,
		now:          now,
		sleep:        sleep,
		breakers:     make(map[string]*gobreaker.CircuitBreaker),
	}
}

// GetProperties lists properties visible to the connection's API key.
func (c *Client) GetProperties(ctx context.Context) ([]Property, error) {
	raw, err := c.do(ctx, callSpec{method: http.MethodGet, path: "/properties"})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data []struct {
			ID         string   `json:"id"`
			Attributes Property `json:"attributes"`
		} `json:"data"`
	}
	if err := decodeBody(raw, &envelope); err != nil {
		return nil, err
	}
	out := make([]Property, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		p := item.Attributes
		if p.ID == "" {
			p.ID = item.ID
		}
		out = append(out, p)
	}
	return out, nil
}

// GetProperty fetches a single property.
func (c *Client) GetProperty(ctx context.Context, propertyID string) (*Property, error) {
	raw, err := c.do(ctx, callSpec{
		method:     http.MethodGet,
		path:       "/properties/" + propertyID,
		propertyID: propertyID,
	})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data struct {
			ID         string   `json:"id"`
			Attributes Property `json:"attributes"`
		} `json:"data"`
	}
	if err := decodeBody(raw, &envelope); err != nil {
		return nil, err
	}
	p := envelope.Data.Attributes
	if p.ID == "" {
		p.ID = envelope.Data.ID
	}
	return &p, nil
}

// GetRoomTypes lists room types of one property.
func (c *Client) GetRoomTypes(ctx context.Context, propertyID string) ([]RoomType, error) {
	raw, err := c.do(ctx, callSpec{
		method:     http.MethodGet,
		path:       "/room_types",
		propertyID: propertyID,
		params:     map[string]string{"filter[property_id]": propertyID},
	})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data []struct {
			ID         string   `json:"id"`
			Attributes RoomType `json:"attributes"`
		} `json:"data"`
	}
	if err := decodeBody(raw, &envelope); err != nil {
		return nil, err
	}
	out := make([]RoomType, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		rt := item.Attributes
		if rt.ID == "" {
			rt.ID = item.ID
		}
		out = append(out, rt)
	}
	return out, nil
}

// GetRatePlans lists rate plans of one property.
func (c *Client) GetRatePlans(ctx context.Context, propertyID string) ([]RatePlan, error) {
	raw, err := c.do(ctx, callSpec{
		method:     http.MethodGet,
		path:       "/rate_plans",
		propertyID: propertyID,
		params:     map[string]string{"filter[property_id]": propertyID},
	})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data []struct {
			ID         string   `json:"id"`
			Attributes RatePlan `json:"attributes"`
		} `json:"data"`
	}
	if err := decodeBody(raw, &envelope); err != nil {
		return nil, err
	}
	out := make([]RatePlan, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		rp := item.Attributes
		if rp.ID == "" {
			rp.ID = item.ID
		}
		out = append(out, rp)
	}
	return out, nil
}

// PostRestrictions pushes rate and restriction values. Consumes one
// price token. Returns the raw response body for the outbox record.
func (c *Client) PostRestrictions(ctx context.Context, propertyID string, values []RestrictionValue) (json.RawMessage, error) {
	return c.do(ctx, callSpec{
		method:     http.MethodPost,
		path:       "/restrictions",
		propertyID: propertyID,
		bucket:     BucketPrice,
		body:       RestrictionsRequest{Values: values},
	})
}

// PostAvailability pushes availability values. Consumes one avail token.
func (c *Client) PostAvailability(ctx context.Context, propertyID string, values []AvailabilityValue) (json.RawMessage, error) {
	return c.do(ctx, callSpec{
		method:     http.MethodPost,
		path:       "/availability",
		propertyID: propertyID,
		bucket:     BucketAvail,
		body:       AvailabilityRequest{Values: values},
	})
}

// GetPropertyBookings lists the channel's bookings for one property.
func (c *Client) GetPropertyBookings(ctx context.Context, propertyID string) ([]BookingData, error) {
	raw, err := c.do(ctx, callSpec{
		method:     http.MethodGet,
		path:       fmt.Sprintf("/properties/%s/bookings", propertyID),
		propertyID: propertyID,
	})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data []struct {
			ID         string      `json:"id"`
			Attributes BookingData `json:"attributes"`
		} `json:"data"`
	}
	if err := decodeBody(raw, &envelope); err != nil {
		return nil, err
	}
	out := make([]BookingData, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		b := item.Attributes
		if b.ID == "" {
			b.ID = item.ID
		}
		out = append(out, b)
	}
	return out, nil
}

// GetBooking fetches one booking by the channel's booking id.
func (c *Client) GetBooking(ctx context.Context, propertyID, bookingID string) (*BookingData, error) {
	raw, err := c.do(ctx, callSpec{
		method:     http.MethodGet,
		path:       "/bookings/" + bookingID,
		propertyID: propertyID,
	})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data struct {
			ID         string      `json:"id"`
			Attributes BookingData `json:"attributes"`
		} `json:"data"`
	}
	if err := decodeBody(raw, &envelope); err != nil {
		return nil, err
	}
	b := envelope.Data.Attributes
	if b.ID == "" {
		b.ID = envelope.Data.ID
	}
	return &b, nil
}

// ConfirmBooking acknowledges a booking back to the channel.
func (c *Client) ConfirmBooking(ctx context.Context, propertyID, bookingID string) error {
	_, err := c.do(ctx, callSpec{
		method:     http.MethodPost,
		path:       fmt.Sprintf("/bookings/%s/confirm", bookingID),
		propertyID: propertyID,
	})
	return err
}

// CancelBooking cancels a booking on the channel side.
func (c *Client) CancelBooking(ctx context.Context, propertyID, bookingID string) error {
	_, err := c.do(ctx, callSpec{
		method:     http.MethodPost,
		path:       fmt.Sprintf("/bookings/%s/cancel", bookingID),
		propertyID: propertyID,
	})
	return err
}

type callSpec struct {
	method     string
	path       string
	propertyID string
	bucket     string
	body       any
	params     map[string]string
}

// do runs one channel call: pause check, token consumption, then the
// HTTP attempt loop. 429 pauses the property, 5xx and transport errors
// back off and retry, other 4xx map straight to the error taxonomy.
// Every attempt is recorded with sanitized payloads.
func (c *Client) do(ctx context.Context, call callSpec) (json.RawMessage, error) {
	correlationID := uuid.NewString()

	if call.propertyID != "" && c.gate != nil {
		paused, remaining, err := c.gate.IsPaused(ctx, call.propertyID)
		if err != nil {
			return nil, err
		}
		if paused {
			return nil, &PauseError{PropertyID: call.propertyID, RetryAfter: remaining}
		}
		if call.bucket != "" {
			if err := c.consumeToken(ctx, call.propertyID, call.bucket); err != nil {
				return nil, err
			}
		}
	}

	var reqBody []byte
	if call.body != nil {
		b, err := json.Marshal(call.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", call.method, call.path, err)
		}
		reqBody = b
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := c.now()
		resp, err := c.execute(ctx, call, reqBody, correlationID)
		duration := c.now().Sub(start)

		if err != nil {
			apiErr := asAPIError(err)
			var respBody []byte
			if resp != nil {
				respBody = resp.Body()
			}
			c.record(ctx, call, reqBody, respBody, apiErr.HTTPStatus, false, duration, apiErr.Error(), correlationID)
			lastErr = apiErr
			if !apiErr.Retryable || attempt == c.maxAttempts {
				return nil, lastErr
			}
			if err := c.sleep(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		status := resp.StatusCode()
		respBody := resp.Body()

		switch {
		case resp.IsSuccess():
			if call.propertyID != "" && c.gate != nil {
				if err := c.gate.ClearPause(ctx, call.propertyID); err != nil {
					c.log.Warn().Err(err).Str("property_id", call.propertyID).Msg("clear pause failed")
				}
			}
			c.record(ctx, call, reqBody, respBody, status, true, duration, "", correlationID)
			return respBody, nil

		case status == http.StatusTooManyRequests:
			apiErr := NewAPIError(status, errorMessage(respBody))
			c.record(ctx, call, reqBody, respBody, status, false, duration, apiErr.Error(), correlationID)
			if call.propertyID != "" && c.gate != nil {
				// The property is paused now; further attempts would
				// bounce off the pause check, so hand the wait back to
				// the caller instead of burning retries.
				pauseFor, perr := c.gate.PauseOn429(ctx, call.propertyID)
				if perr != nil {
					return nil, perr
				}
				return nil, &PauseError{PropertyID: call.propertyID, RetryAfter: pauseFor}
			}
			lastErr = apiErr
			if attempt == c.maxAttempts {
				return nil, lastErr
			}
			if err := c.sleep(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}

		default:
			apiErr := NewAPIError(status, errorMessage(respBody))
			c.record(ctx, call, reqBody, respBody, status, false, duration, apiErr.Error(), correlationID)
			return nil, apiErr
		}
	}
	return nil, lastErr
}

// consumeToken takes one token from the property bucket, waiting at
// most once for a refill.
func (c *Client) consumeToken(ctx context.Context, propertyID, bucket string) error {
	ok, wait, err := c.gate.TryConsume(ctx, propertyID, bucket)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if wait <= 0 || wait > tokenWaitCap {
		wait = tokenWaitCap
	}
	if err := c.sleep(ctx, wait); err != nil {
		return err
	}
	ok, _, err = c.gate.TryConsume(ctx, propertyID, bucket)
	if err != nil {
		return err
	}
	if !ok {
		return &APIError{
			Code:      ErrCodeRateLimited,
			Message:   fmt.Sprintf("no %s tokens available for property %s", bucket, propertyID),
			Retryable: true,
		}
	}
	return nil
}

// execute performs one HTTP attempt through the property's circuit
// breaker. Transport errors and 5xx trip the breaker; 4xx do not.
func (c *Client) execute(ctx context.Context, call callSpec, body []byte, correlationID string) (*resty.Response, error) {
	run := func() (*resty.Response, error) {
		req := c.http.R().
			SetContext(ctx).
			SetHeader(HeaderRequestID, correlationID)
		if len(call.params) > 0 {
			req.SetQueryParams(call.params)
		}
		if body != nil {
			req.SetHeader("Content-Type", "application/json")
			req.SetBody(body)
		}
		resp, err := req.Execute(call.method, call.path)
		if err != nil {
			return nil, transportError(err)
		}
		if resp.StatusCode() >= 500 {
			return resp, NewAPIError(resp.StatusCode(), errorMessage(resp.Body()))
		}
		return resp, nil
	}

	if call.propertyID == "" {
		return run()
	}
	result, err := c.breaker(call.propertyID).Execute(func() (any, error) {
		return run()
	})
	resp, _ := result.(*resty.Response)
	return resp, err
}

func (c *Client) breaker(propertyID string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if br, ok := c.breakers[propertyID]; ok {
		return br
	}
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "channex:" + propertyID,
		MaxRequests: 3,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[propertyID] = br
	return br
}

func (c *Client) record(ctx context.Context, call callSpec, reqBody, respBody []byte, status int, success bool, duration time.Duration, errMsg, correlationID string) {
	if c.recorder != nil {
		c.recorder.RecordRequest(ctx, RequestLog{
			Provider:      c.provider,
			ConnectionID:  c.connectionID,
			Method:        call.method,
			Endpoint:      call.path,
			RequestBody:   SanitizeJSON(reqBody),
			ResponseBody:  SanitizeJSON(respBody),
			HTTPStatus:    status,
			Success:       success,
			DurationMs:    duration.Milliseconds(),
			ErrorMessage:  errMsg,
			CorrelationID: correlationID,
		})
	}

	evt := c.log.Debug()
	if !success {
		evt = c.log.Warn()
	}
	evt.Str("method", call.method).
		Str("endpoint", call.path).
		Int("status", status).
		Int64("duration_ms", duration.Milliseconds()).
		Str("correlation_id", correlationID).
		Msg("channel call")
}

// backoffDelay doubles per attempt from backoffBase up to backoffCap.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func transportError(err error) *APIError {
	code := ErrCodeNetworkError
	var nerr net.Error
	if (errors.As(err, &nerr) && nerr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		code = ErrCodeTimeout
	}
	return &APIError{Code: code, Message: err.Error(), Retryable: true}
}

func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &APIError{Code: ErrCodeServiceUnavailable, Message: "channel circuit open", Retryable: true}
	}
	return &APIError{Code: ErrCodeNetworkError, Message: err.Error(), Retryable: true}
}

// errorMessage pulls a human message out of an error response body.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return "empty response body"
	}
	var parsed struct {
		Errors struct {
			Title   string `json:"title"`
			Details string `json:"details"`
		} `json:"errors"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Errors.Title != "":
			if parsed.Errors.Details != "" {
				return parsed.Errors.Title + ": " + parsed.Errors.Details
			}
			return parsed.Errors.Title
		case parsed.Error != "":
			return parsed.Error
		case parsed.Message != "":
			return parsed.Message
		}
	}
	msg := string(body)
	if len(msg) > errMessageLimit {
		msg = msg[:errMessageLimit]
	}
	return msg
}

func decodeBody(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Code: ErrCodeValidationError, Message: "decode response: " + err.Error()}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
