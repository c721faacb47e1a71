package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
)

// ErrBadSignature rejects a delivery whose shared secret does not
// match. The API layer renders it as a 401.
var ErrBadSignature = errors.New("webhook signature mismatch")

// ReceiveInput is one inbound delivery as the HTTP layer saw it. Body
// is the verbatim raw payload; Signature is the presented shared-secret
// header value, empty when the header was absent.
type ReceiveInput struct {
	Provider  string
	Body      []byte
	Headers   map[string]string
	Signature string
}

// ReceiveResult is the receiver's answer to one delivery.
type ReceiveResult struct {
	Event            *model.WebhookEventLog
	AlreadyProcessed bool
}

// WebhookReceiver ingests deliveries: verify, deduplicate, persist.
// It never runs domain logic; the processor picks stored events up
// asynchronously, so a slow database write is the only thing that can
// delay the 200.
type WebhookReceiver struct {
	logs   *repository.WebhookLogRepository
	conns  *repository.ConnectionRepository
	secret string
	log    zerolog.Logger
	now    func() time.Time
}

// NewWebhookReceiver builds the receiver. secret is the global shared
// secret; a connection-level secret overrides it per property.
func NewWebhookReceiver(logs *repository.WebhookLogRepository, conns *repository.ConnectionRepository, secret string, logger zerolog.Logger, now func() time.Time) *WebhookReceiver {
	if now == nil {
		now = time.Now
	}
	return &WebhookReceiver{
		logs:   logs,
		conns:  conns,
		secret: secret,
		log:    logger.With().Str("component", "webhook_receiver").Logger(),
		now:    now,
	}
}

// Receive stores one delivery. The payload is kept verbatim even when
// it does not parse; extraction of event fields is best effort. A
// duplicate delivery returns the earlier row with AlreadyProcessed set
// and writes nothing.
func (r *WebhookReceiver) Receive(ctx context.Context, in ReceiveInput) (*ReceiveResult, error) {
	provider := in.Provider
	if provider == "" {
		provider = model.ProviderChannex
	}

	var payload channex.WebhookPayload
	parseable := json.Unmarshal(in.Body, &payload) == nil

	propertyID := payload.PropertyID
	var data channex.BookingData
	if parseable {
		if raw := payload.DataBlock(); len(raw) > 0 {
			if json.Unmarshal(raw, &data) == nil && propertyID == "" {
				propertyID = data.PropertyID
			}
		}
	}

	if err := r.verifySecret(ctx, propertyID, in.Signature); err != nil {
		r.log.Warn().Str("property_id", propertyID).Msg("webhook rejected: signature mismatch")
		return nil, err
	}

	hash := channex.PayloadHash(in.Body)
	eventType := channex.CanonicalEventType(payload.Event, payload.EventType)

	var eventID *string
	if payload.EventID != "" {
		id := payload.EventID
		eventID = &id
	}

	dup, err := r.logs.FindDuplicate(ctx, provider, eventID, hash)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		r.log.Debug().
			Str("event_type", eventType).
			Str("duplicate_of", dup.ID.String()).
			Msg("webhook duplicate suppressed")
		return &ReceiveResult{Event: dup, AlreadyProcessed: true}, nil
	}

	revisionID := payload.RevisionID
	if revisionID == "" {
		revisionID = data.RevisionID
	}

	ev := &model.WebhookEventLog{
		Provider:    provider,
		EventID:     eventID,
		EventType:   eventType,
		ExternalID:  data.ID,
		RevisionID:  revisionID,
		PayloadJSON: datatypes.JSON(in.Body),
		PayloadHash: hash,
		Status:      model.WebhookStatusReceived,
		ReceivedAt:  r.now().UTC(),
	}
	if len(in.Headers) > 0 {
		if headers, err := json.Marshal(channex.SanitizeHeaders(in.Headers)); err == nil {
			ev.RequestHeaders = headers
		}
	}
	if err := r.logs.Insert(ctx, ev); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("event_id", ev.ID.String()).
		Str("event_type", eventType).
		Str("external_id", data.ID).
		Msg("webhook received")
	return &ReceiveResult{Event: ev}, nil
}

// verifySecret compares the presented secret in constant time. The
// connection's own secret wins over the global one; with neither
// configured every delivery passes.
func (r *WebhookReceiver) verifySecret(ctx context.Context, propertyID, presented string) error {
	expected := r.secret
	if propertyID != "" {
		conn, err := r.conns.ActiveByProperty(ctx, propertyID)
		if err != nil {
			return err
		}
		if conn != nil && conn.WebhookSecret != "" {
			expected = conn.WebhookSecret
		}
	}
	if expected == "" {
		return nil
	}
	if !channex.SecretEqual(expected, presented) {
		return ErrBadSignature
	}
	return nil
}
