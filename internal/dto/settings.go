package dto

import (
	"github.com/go-openapi/strfmt"
)

// UpdateSettingsRequest tunes the integration at runtime. Every field
// is optional; absent fields keep their stored value. Range and enum
// checks live in the settings service, which is also what the workers
// call.
type UpdateSettingsRequest struct {
	ChannelEnabled      *bool       `json:"channel_enabled,omitempty"`
	SyncHorizonDays     *int64      `json:"sync_horizon_days,omitempty"`
	MaxPayloadBytes     *int64      `json:"max_payload_bytes,omitempty"`
	CleaningBufferDays  *int64      `json:"cleaning_buffer_days,omitempty"`
	WeekendDays         *string     `json:"weekend_days,omitempty"`
	EnabledEventTypes   []string    `json:"enabled_event_types,omitempty"`
	NoShowCancelEnabled *bool       `json:"no_show_cancel_enabled,omitempty"`
	UpdatedBy           strfmt.UUID `json:"updated_by,omitempty"`
}

// Validate validates this update settings request.
func (m *UpdateSettingsRequest) Validate(formats strfmt.Registry) error {
	return nil
}
