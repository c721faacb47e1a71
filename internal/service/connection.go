package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/database"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
)

// Connection service errors.
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrMappingNotFound    = errors.New("mapping not found")
	ErrMappingExists      = errors.New("unit is already mapped on this connection")
)

// ConnectionService manages channel connections and their unit
// mappings, and drives on-demand syncs against the provider.
type ConnectionService struct {
	repos   *repository.Set
	clients ClientFactory
	log     zerolog.Logger
	now     func() time.Time
}

func NewConnectionService(repos *repository.Set, clients ClientFactory, logger zerolog.Logger, now func() time.Time) *ConnectionService {
	if now == nil {
		now = time.Now
	}
	return &ConnectionService{
		repos:   repos,
		clients: clients,
		log:     logger.With().Str("component", "connection").Logger(),
		now:     now,
	}
}

// CreateConnectionInput holds the fields of a new connection.
type CreateConnectionInput struct {
	ProjectID          uuid.UUID
	Provider           string
	APIKey             string
	ExternalPropertyID string
	WebhookSecret      string
}

// Create registers a channel connection in pending state. It goes
// active once a test probe succeeds.
func (s *ConnectionService) Create(ctx context.Context, in CreateConnectionInput) (*model.Connection, error) {
	if in.ProjectID == uuid.Nil {
		return nil, NewValidationError("project_id", "project_id is required")
	}
	if strings.TrimSpace(in.APIKey) == "" {
		return nil, NewValidationError("api_key", "api_key is required")
	}
	if strings.TrimSpace(in.ExternalPropertyID) == "" {
		return nil, NewValidationError("external_property_id", "external_property_id is required")
	}
	provider := in.Provider
	if provider == "" {
		provider = model.ProviderChannex
	}

	conn := &model.Connection{
		ProjectID:          in.ProjectID,
		Provider:           provider,
		APIKey:             strings.TrimSpace(in.APIKey),
		ExternalPropertyID: strings.TrimSpace(in.ExternalPropertyID),
		WebhookSecret:      in.WebhookSecret,
		Status:             model.ConnectionStatusPending,
	}
	if err := s.repos.Connections.Create(ctx, conn); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, NewValidationError("project_id", "project already has a connection for this provider")
		}
		return nil, err
	}
	s.log.Info().
		Str("connection_id", conn.ID.String()).
		Str("property_id", conn.ExternalPropertyID).
		Msg("connection created")
	return conn, nil
}

// UpdateConnectionInput carries partial connection changes; nil fields
// stay untouched.
type UpdateConnectionInput struct {
	APIKey             *string
	ExternalPropertyID *string
	WebhookSecret      *string
	Status             *string
}

func (s *ConnectionService) Update(ctx context.Context, id uuid.UUID, in UpdateConnectionInput) (*model.Connection, error) {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.APIKey != nil {
		if strings.TrimSpace(*in.APIKey) == "" {
			return nil, NewValidationError("api_key", "api_key cannot be empty")
		}
		conn.APIKey = strings.TrimSpace(*in.APIKey)
	}
	if in.ExternalPropertyID != nil {
		if strings.TrimSpace(*in.ExternalPropertyID) == "" {
			return nil, NewValidationError("external_property_id", "external_property_id cannot be empty")
		}
		conn.ExternalPropertyID = strings.TrimSpace(*in.ExternalPropertyID)
	}
	if in.WebhookSecret != nil {
		conn.WebhookSecret = *in.WebhookSecret
	}
	if in.Status != nil {
		switch *in.Status {
		case model.ConnectionStatusActive, model.ConnectionStatusInactive:
			conn.Status = *in.Status
		default:
			return nil, NewValidationError("status", "status must be active or inactive")
		}
	}
	if err := s.repos.Connections.Save(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *ConnectionService) Get(ctx context.Context, id uuid.UUID) (*model.Connection, error) {
	conn, err := s.repos.Connections.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConnectionNotFound
	}
	return conn, err
}

func (s *ConnectionService) List(ctx context.Context) ([]model.Connection, error) {
	return s.repos.Connections.List(ctx)
}

// Delete removes a connection and its mappings. Queued outbox events
// for the connection keep their rows and fail on execution.
func (s *ConnectionService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repos.Connections.Delete(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConnectionNotFound
	}
	return err
}

// TestResult reports a connection probe.
type TestResult struct {
	Success       bool   `json:"success"`
	PropertyID    string `json:"property_id,omitempty"`
	PropertyTitle string `json:"property_title,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Test probes the provider with the connection's credentials. Success
// activates the connection; failure records the error and moves it to
// error state.
func (s *ConnectionService) Test(ctx context.Context, id uuid.UUID) (*TestResult, error) {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	client := s.clients.ForConnection(conn)
	prop, probeErr := client.GetProperty(ctx, conn.ExternalPropertyID)
	if probeErr != nil {
		if err := s.repos.Connections.MarkError(ctx, id, probeErr.Error()); err != nil {
			return nil, err
		}
		if err := s.repos.Connections.SetStatus(ctx, id, model.ConnectionStatusError); err != nil {
			return nil, err
		}
		s.log.Warn().Err(probeErr).Str("connection_id", id.String()).Msg("connection test failed")
		return &TestResult{Success: false, Error: probeErr.Error()}, nil
	}

	if err := s.repos.Connections.MarkSynced(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repos.Connections.SetStatus(ctx, id, model.ConnectionStatusActive); err != nil {
		return nil, err
	}
	s.log.Info().Str("connection_id", id.String()).Msg("connection test succeeded")
	return &TestResult{Success: true, PropertyID: prop.ID, PropertyTitle: prop.Title}, nil
}

// FullSync queues a full price and availability push for every active
// mapping of the connection. Returns how many syncs were queued.
func (s *ConnectionService) FullSync(ctx context.Context, id uuid.UUID) (int, error) {
	conn, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if !conn.IsActive() {
		return 0, NewValidationError("status", "connection must be active to sync")
	}

	queued := 0
	for i := range conn.Mappings {
		m := &conn.Mappings[i]
		if !m.IsActive {
			continue
		}
		payload, err := json.Marshal(model.OutboxPayload{UnitID: m.UnitID.String(), Reason: "manual_full_sync"})
		if err != nil {
			return queued, err
		}
		ev := &model.IntegrationOutbox{
			ConnectionID: conn.ID,
			UnitID:       m.UnitID,
			EventType:    model.OutboxEventFullSync,
			Status:       model.OutboxStatusPending,
			Payload:      payload,
		}
		if err := s.repos.Outbox.Enqueue(ctx, ev); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return queued, err
		}
		queued++
	}
	s.log.Info().
		Str("connection_id", id.String()).
		Int("queued", queued).
		Msg("full sync queued")
	return queued, nil
}

// MappingInput holds the fields of a unit mapping.
type MappingInput struct {
	UnitID             uuid.UUID
	ExternalRoomTypeID string
	ExternalRatePlanID string
	IsActive           *bool
}

// CreateMapping ties a unit to the connection's room type and rate
// plan. Each unit maps at most once per connection.
func (s *ConnectionService) CreateMapping(ctx context.Context, connectionID uuid.UUID, in MappingInput) (*model.ExternalMapping, error) {
	if in.UnitID == uuid.Nil {
		return nil, NewValidationError("unit_id", "unit_id is required")
	}
	if in.ExternalRoomTypeID == "" && in.ExternalRatePlanID == "" {
		return nil, NewValidationError("mapping", "external_room_type_id or external_rate_plan_id is required")
	}
	conn, err := s.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Units.Get(ctx, in.UnitID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	m := &model.ExternalMapping{
		ConnectionID:       conn.ID,
		UnitID:             in.UnitID,
		ExternalRoomTypeID: in.ExternalRoomTypeID,
		ExternalRatePlanID: in.ExternalRatePlanID,
		IsActive:           active,
	}
	if err := s.repos.Mappings.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrMappingExists
		}
		return nil, err
	}
	return m, nil
}

// UpdateMapping changes a mapping's channel ids or active flag.
func (s *ConnectionService) UpdateMapping(ctx context.Context, id uuid.UUID, in MappingInput) (*model.ExternalMapping, error) {
	m, err := s.repos.Mappings.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}
	if in.ExternalRoomTypeID != "" {
		m.ExternalRoomTypeID = in.ExternalRoomTypeID
	}
	if in.ExternalRatePlanID != "" {
		m.ExternalRatePlanID = in.ExternalRatePlanID
	}
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
	if err := s.repos.Mappings.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *ConnectionService) DeleteMapping(ctx context.Context, id uuid.UUID) error {
	err := s.repos.Mappings.Delete(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMappingNotFound
	}
	return err
}

func (s *ConnectionService) ListMappings(ctx context.Context, connectionID uuid.UUID) ([]model.ExternalMapping, error) {
	if _, err := s.Get(ctx, connectionID); err != nil {
		return nil, err
	}
	return s.repos.Mappings.ForConnection(ctx, connectionID)
}

// ListRoomTypes fetches the provider's room types for mapping UIs.
func (s *ConnectionService) ListRoomTypes(ctx context.Context, connectionID uuid.UUID) ([]channex.RoomType, error) {
	conn, err := s.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.clients.ForConnection(conn).GetRoomTypes(ctx, conn.ExternalPropertyID)
}

// ListRatePlans fetches the provider's rate plans for mapping UIs.
func (s *ConnectionService) ListRatePlans(ctx context.Context, connectionID uuid.UUID) ([]channex.RatePlan, error) {
	conn, err := s.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.clients.ForConnection(conn).GetRatePlans(ctx, conn.ExternalPropertyID)
}
