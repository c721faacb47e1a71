package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/timeutil"
)

// SettingsService reads and updates the runtime-tunable engine
// settings.
type SettingsService struct {
	repos *repository.Set
	log   zerolog.Logger
}

func NewSettingsService(repos *repository.Set, logger zerolog.Logger) *SettingsService {
	return &SettingsService{
		repos: repos,
		log:   logger.With().Str("component", "settings").Logger(),
	}
}

func (s *SettingsService) Get(ctx context.Context) (*model.IntegrationSetting, error) {
	return s.repos.Settings.Get(ctx)
}

// UpdateSettingsInput carries partial settings changes; nil fields stay
// untouched.
type UpdateSettingsInput struct {
	ChannelEnabled      *bool
	SyncHorizonDays     *int
	MaxPayloadBytes     *int
	CleaningBufferDays  *int
	WeekendDays         *string
	EnabledEventTypes   *[]string
	NoShowCancelEnabled *bool
	UpdatedBy           *uuid.UUID
}

// Update validates and persists settings changes. The new values take
// effect on the next sync or webhook without a restart.
func (s *SettingsService) Update(ctx context.Context, in UpdateSettingsInput) (*model.IntegrationSetting, error) {
	settings, err := s.repos.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	if in.ChannelEnabled != nil {
		settings.ChannelEnabled = *in.ChannelEnabled
	}
	if in.SyncHorizonDays != nil {
		if *in.SyncHorizonDays < 1 || *in.SyncHorizonDays > 730 {
			return nil, NewValidationError("sync_horizon_days", "sync_horizon_days must be between 1 and 730")
		}
		settings.SyncHorizonDays = *in.SyncHorizonDays
	}
	if in.MaxPayloadBytes != nil {
		if *in.MaxPayloadBytes < 1024 {
			return nil, NewValidationError("max_payload_bytes", "max_payload_bytes must be at least 1024")
		}
		settings.MaxPayloadBytes = *in.MaxPayloadBytes
	}
	if in.CleaningBufferDays != nil {
		if *in.CleaningBufferDays < 0 || *in.CleaningBufferDays > 7 {
			return nil, NewValidationError("cleaning_buffer_days", "cleaning_buffer_days must be between 0 and 7")
		}
		settings.CleaningBufferDays = *in.CleaningBufferDays
	}
	if in.WeekendDays != nil {
		if _, err := timeutil.ParseWeekdays(*in.WeekendDays); err != nil {
			return nil, NewValidationError("weekend_days", err.Error())
		}
		settings.WeekendDays = *in.WeekendDays
	}
	if in.EnabledEventTypes != nil {
		types := *in.EnabledEventTypes
		for _, t := range types {
			if _, ok := channex.ResolveEventType(t); !ok {
				return nil, NewValidationError("enabled_event_types", "unknown event type "+t)
			}
		}
		settings.EnabledEventTypes = pq.StringArray(types)
	}
	if in.NoShowCancelEnabled != nil {
		settings.NoShowCancelEnabled = *in.NoShowCancelEnabled
	}
	settings.UpdatedByID = in.UpdatedBy

	if err := s.repos.Settings.Save(ctx, settings); err != nil {
		return nil, err
	}
	s.log.Info().Msg("settings updated")
	return settings, nil
}
