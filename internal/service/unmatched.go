package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
)

// ErrUnmatchedNotFound reports a missing quarantined event.
var ErrUnmatchedNotFound = errors.New("unmatched event not found")

// UnmatchedService runs the operator review queue for quarantined
// webhook events: assign a unit, replay the payload, or ignore it.
type UnmatchedService struct {
	repos     *repository.Set
	processor *ProcessorService
	log       zerolog.Logger
	now       func() time.Time
}

func NewUnmatchedService(repos *repository.Set, processor *ProcessorService, logger zerolog.Logger, now func() time.Time) *UnmatchedService {
	if now == nil {
		now = time.Now
	}
	return &UnmatchedService{
		repos:     repos,
		processor: processor,
		log:       logger.With().Str("component", "unmatched").Logger(),
		now:       now,
	}
}

func (s *UnmatchedService) Get(ctx context.Context, id uuid.UUID) (*model.UnmatchedWebhookEvent, error) {
	ue, err := s.repos.Unmatched.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnmatchedNotFound
	}
	return ue, err
}

func (s *UnmatchedService) List(ctx context.Context, f repository.UnmatchedFilter) ([]model.UnmatchedWebhookEvent, int64, error) {
	return s.repos.Unmatched.List(ctx, f)
}

// ResolveInput assigns the quarantined event to a unit.
type ResolveInput struct {
	UnitID     uuid.UUID
	ResolvedBy *uuid.UUID
}

// Resolve replays a quarantined event against an operator-chosen unit.
// When the event was parked for a missing mapping, the mapping is
// created from the event's channel ids before the replay. The replayed
// payload passes the same validation as a live webhook; an event that
// still cannot produce a booking stays pending with the new reason
// reported back.
func (s *UnmatchedService) Resolve(ctx context.Context, id uuid.UUID, in ResolveInput) (*model.UnmatchedWebhookEvent, error) {
	if in.UnitID == uuid.Nil {
		return nil, NewValidationError("unit_id", "unit_id is required")
	}
	ue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ue.Status != model.UnmatchedStatusPending {
		return nil, NewValidationError("status", fmt.Sprintf("event is already %s", ue.Status))
	}
	if _, err := s.repos.Units.Get(ctx, in.UnitID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}

	conn, err := s.repos.Connections.ActiveByProperty(ctx, ue.PropertyID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, NewValidationError("connection", fmt.Sprintf("no active connection for property %s", ue.PropertyID))
	}

	if err := s.ensureMapping(ctx, conn, ue, in.UnitID); err != nil {
		return nil, err
	}

	out, err := s.processor.ReplayUnmatched(ctx, ue, in.UnitID)
	if err != nil {
		return nil, err
	}
	if out.bookingID == nil {
		return nil, NewValidationError("event", fmt.Sprintf("event still cannot be applied: %s", out.reason))
	}

	if err := s.repos.Unmatched.Resolve(ctx, id, *out.bookingID, in.ResolvedBy, s.now().UTC()); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("unmatched_id", id.String()).
		Str("booking_id", out.bookingID.String()).
		Str("action", out.action).
		Msg("unmatched event resolved")
	return s.Get(ctx, id)
}

// ensureMapping makes the chosen unit routable for the event's channel
// ids. An existing mapping on the same connection is kept as is; a
// mapping on another connection is a conflict.
func (s *UnmatchedService) ensureMapping(ctx context.Context, conn *model.Connection, ue *model.UnmatchedWebhookEvent, unitID uuid.UUID) error {
	existing, err := s.repos.Mappings.ByUnit(ctx, unitID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.ConnectionID != conn.ID {
			return NewValidationError("unit_id", "unit is mapped to a different connection")
		}
		return nil
	}
	m := &model.ExternalMapping{
		ConnectionID:       conn.ID,
		UnitID:             unitID,
		ExternalRoomTypeID: ue.RoomTypeID,
		ExternalRatePlanID: ue.RatePlanID,
		IsActive:           true,
	}
	if err := s.repos.Mappings.Create(ctx, m); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	return nil
}

// Ignore closes a quarantined event without creating a booking.
func (s *UnmatchedService) Ignore(ctx context.Context, id uuid.UUID, resolvedBy *uuid.UUID) (*model.UnmatchedWebhookEvent, error) {
	ue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ue.Status != model.UnmatchedStatusPending {
		return nil, NewValidationError("status", fmt.Sprintf("event is already %s", ue.Status))
	}
	if err := s.repos.Unmatched.Ignore(ctx, id, resolvedBy, s.now().UTC()); err != nil {
		return nil, err
	}
	s.log.Info().Str("unmatched_id", id.String()).Msg("unmatched event ignored")
	return s.Get(ctx, id)
}
