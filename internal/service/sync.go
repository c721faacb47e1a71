package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/availability"
	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/pricing"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/timeutil"
)

// SyncService executes outbox events against the channel API: price
// calendars to rate-plan restrictions, availability projections to
// room-type availability. The outbox worker owns event state; this
// service only performs the push and its bookkeeping.
type SyncService struct {
	repos   *repository.Set
	pricing *pricing.Engine
	clients ClientFactory
	loc     *time.Location
	log     zerolog.Logger
	now     func() time.Time
}

func NewSyncService(repos *repository.Set, engine *pricing.Engine, clients ClientFactory, loc *time.Location, logger zerolog.Logger, now func() time.Time) *SyncService {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &SyncService{
		repos:   repos,
		pricing: engine,
		clients: clients,
		loc:     loc,
		log:     logger.With().Str("component", "sync").Logger(),
		now:     now,
	}
}

// Execute runs one claimed outbox event. The returned raw response is
// stored on the completed event; rate-limit pauses and API failures
// come back as errors for the worker to classify.
func (s *SyncService) Execute(ctx context.Context, ev *model.IntegrationOutbox) (json.RawMessage, error) {
	switch ev.EventType {
	case model.OutboxEventPriceUpdate:
		return s.executePriceUpdate(ctx, ev)
	case model.OutboxEventAvailUpdate:
		return s.executeAvailUpdate(ctx, ev)
	case model.OutboxEventFullSync:
		return nil, s.executeFullSync(ctx, ev)
	default:
		return nil, fmt.Errorf("unknown outbox event type %q", ev.EventType)
	}
}

// executePriceUpdate pushes the unit's price calendar to its mapped
// rate plan, compressed into date ranges and split under the payload
// cap.
func (s *SyncService) executePriceUpdate(ctx context.Context, ev *model.IntegrationOutbox) (json.RawMessage, error) {
	mapping, conn, err := s.routeUnit(ctx, ev)
	if err != nil {
		return nil, err
	}
	if mapping.ExternalRatePlanID == "" {
		return nil, fmt.Errorf("unit %s has no rate plan mapped", ev.UnitID)
	}

	policy, err := s.repos.Policies.ForUnit(ctx, ev.UnitID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, fmt.Errorf("unit %s: %w", ev.UnitID, pricing.ErrNoPolicy)
	}

	settings, err := s.repos.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	horizon := s.horizon(ev, settings)
	today := timeutil.Today(s.now(), s.loc)

	days, err := s.pricing.CalendarPrices(ctx, policy, today, horizon)
	if err != nil {
		return nil, err
	}
	points := make([]channex.RatePoint, 0, len(days))
	for _, d := range days {
		points = append(points, channex.RatePoint{Date: d.Date, Rate: d.Price})
	}
	values := channex.BuildRestrictionValues(conn.ExternalPropertyID, mapping.ExternalRatePlanID, points)
	chunks := channex.SplitRestrictionValues(values, settings.MaxPayloadBytes)
	rawValues, _ := json.Marshal(values)
	hash := channex.PayloadHash(rawValues)

	client := s.clients.ForConnection(conn)
	started := s.now()
	var response json.RawMessage
	for _, chunk := range chunks {
		resp, err := client.PostRestrictions(ctx, conn.ExternalPropertyID, chunk)
		if err != nil {
			s.writeAudit(ctx, ev, conn, model.AuditEntityRate, hash, len(values), today, horizon, started, err)
			return nil, err
		}
		response = resp
	}
	s.writeAudit(ctx, ev, conn, model.AuditEntityRate, hash, len(values), today, horizon, started, nil)

	if err := s.repos.Mappings.TouchPriceSync(ctx, mapping.ID, s.now().UTC()); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("unit_id", ev.UnitID.String()).
		Int("values", len(values)).
		Int("chunks", len(chunks)).
		Msg("price calendar pushed")
	return response, nil
}

// executeAvailUpdate pushes the unit's availability projection to its
// mapped room type and clears the pending flags it covered.
func (s *SyncService) executeAvailUpdate(ctx context.Context, ev *model.IntegrationOutbox) (json.RawMessage, error) {
	mapping, conn, err := s.routeUnit(ctx, ev)
	if err != nil {
		return nil, err
	}
	if mapping.ExternalRoomTypeID == "" {
		return nil, fmt.Errorf("unit %s has no room type mapped", ev.UnitID)
	}

	unit, err := s.repos.Units.Get(ctx, ev.UnitID)
	if err != nil {
		return nil, err
	}
	settings, err := s.repos.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	horizon := s.horizon(ev, settings)
	today := timeutil.Today(s.now(), s.loc)

	stays, err := s.repos.Bookings.StaysForUnit(ctx, ev.UnitID, today, timeutil.AddDays(today, horizon))
	if err != nil {
		return nil, err
	}
	projected := availability.Project(availability.Input{
		Unit:               unit,
		Bookings:           stays,
		Today:              today,
		Horizon:            horizon,
		CleaningBufferDays: settings.CleaningBufferDays,
	})
	points := make([]channex.AvailPoint, 0, len(projected))
	for _, d := range projected {
		points = append(points, channex.AvailPoint{Date: d.Date, Available: d.Available})
	}
	values := channex.BuildAvailabilityValues(conn.ExternalPropertyID, mapping.ExternalRoomTypeID, points)
	chunks := channex.SplitAvailabilityValues(values, settings.MaxPayloadBytes)
	rawValues, _ := json.Marshal(values)
	hash := channex.PayloadHash(rawValues)

	client := s.clients.ForConnection(conn)
	started := s.now()
	var response json.RawMessage
	for _, chunk := range chunks {
		resp, err := client.PostAvailability(ctx, conn.ExternalPropertyID, chunk)
		if err != nil {
			s.writeAudit(ctx, ev, conn, model.AuditEntityAvailability, hash, len(values), today, horizon, started, err)
			return nil, err
		}
		response = resp
	}
	s.writeAudit(ctx, ev, conn, model.AuditEntityAvailability, hash, len(values), today, horizon, started, nil)

	if err := s.repos.Mappings.TouchAvailSync(ctx, mapping.ID, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repos.Inventory.ClearSyncPending(ctx, ev.UnitID); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("unit_id", ev.UnitID.String()).
		Int("values", len(values)).
		Int("chunks", len(chunks)).
		Msg("availability pushed")
	return response, nil
}

// executeFullSync fans out into a price and an availability event for
// the unit and completes itself.
func (s *SyncService) executeFullSync(ctx context.Context, ev *model.IntegrationOutbox) error {
	var original model.OutboxPayload
	_ = json.Unmarshal(ev.Payload, &original)

	payload, _ := json.Marshal(model.OutboxPayload{
		UnitID:    ev.UnitID.String(),
		DaysAhead: original.DaysAhead,
		Reason:    "full_sync",
	})
	for _, eventType := range []string{model.OutboxEventPriceUpdate, model.OutboxEventAvailUpdate} {
		child := &model.IntegrationOutbox{
			ConnectionID: ev.ConnectionID,
			EventType:    eventType,
			UnitID:       ev.UnitID,
			Payload:      payload,
			Status:       model.OutboxStatusPending,
		}
		if err := s.repos.Outbox.Enqueue(ctx, child); err != nil {
			return err
		}
	}
	s.log.Info().Str("unit_id", ev.UnitID.String()).Msg("full sync fanned out")
	return nil
}

// routeUnit resolves the event's unit to its active mapping and
// connection.
func (s *SyncService) routeUnit(ctx context.Context, ev *model.IntegrationOutbox) (*model.ExternalMapping, *model.Connection, error) {
	mapping, err := s.repos.Mappings.ByUnit(ctx, ev.UnitID)
	if err != nil {
		return nil, nil, err
	}
	if mapping == nil {
		return nil, nil, fmt.Errorf("unit %s has no active mapping", ev.UnitID)
	}
	conn := mapping.Connection
	if conn == nil {
		loaded, err := s.repos.Connections.Get(ctx, mapping.ConnectionID)
		if err != nil {
			return nil, nil, err
		}
		conn = loaded
	}
	if !conn.IsActive() {
		return nil, nil, fmt.Errorf("connection %s is %s", conn.ID, conn.Status)
	}
	return mapping, conn, nil
}

// horizon picks the event's own day count when set, the settings
// default otherwise.
func (s *SyncService) horizon(ev *model.IntegrationOutbox, settings *model.IntegrationSetting) int {
	var payload model.OutboxPayload
	if err := json.Unmarshal(ev.Payload, &payload); err == nil && payload.DaysAhead > 0 {
		return payload.DaysAhead
	}
	if settings.SyncHorizonDays > 0 {
		return settings.SyncHorizonDays
	}
	return 365
}

// writeAudit records one sync attempt. Audit writes never fail the
// push that produced them.
func (s *SyncService) writeAudit(ctx context.Context, ev *model.IntegrationOutbox, conn *model.Connection, entityType, payloadHash string, records int, from time.Time, horizon int, started time.Time, pushErr error) {
	status := "success"
	errMsg := ""
	if pushErr != nil {
		status = "failed"
		errMsg = pushErr.Error()
	}
	connID := conn.ID
	unitID := ev.UnitID
	to := timeutil.AddDays(from, horizon-1)
	audit := &model.IntegrationAudit{
		ConnectionID:  &connID,
		UnitID:        &unitID,
		Direction:     model.AuditDirectionOutbound,
		EntityType:    entityType,
		Status:        status,
		PayloadHash:   payloadHash,
		RecordsCount:  records,
		DateFrom:      &from,
		DateTo:        &to,
		DurationMs:    s.now().Sub(started).Milliseconds(),
		RetryCount:    ev.Attempts,
		CorrelationID: ev.ID.String(),
		ErrorMessage:  errMsg,
	}
	if err := s.repos.Audit.WriteAudit(ctx, audit); err != nil {
		s.log.Warn().Err(err).Str("event_id", ev.ID.String()).Msg("audit write failed")
	}
}
