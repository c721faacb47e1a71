package dto

import (
	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"

	"github.com/mnamhq/channelsync/internal/model"
)

var connectionStatusEnum = []interface{}{
	model.ConnectionStatusPending,
	model.ConnectionStatusActive,
	model.ConnectionStatusInactive,
	model.ConnectionStatusError,
}

// CreateConnectionRequest registers a property connection with the
// channel provider.
type CreateConnectionRequest struct {
	ProjectID          *strfmt.UUID `json:"project_id"`
	Provider           string       `json:"provider,omitempty"`
	APIKey             *string      `json:"api_key"`
	ExternalPropertyID *string      `json:"external_property_id"`
	WebhookSecret      string       `json:"webhook_secret,omitempty"`
}

// Validate validates this create connection request.
func (m *CreateConnectionRequest) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("project_id", "body", m.ProjectID); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("api_key", "body", m.APIKey); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("external_property_id", "body", m.ExternalPropertyID); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// UpdateConnectionRequest changes credentials, secret, or status on an
// existing connection. Absent fields keep their stored value.
type UpdateConnectionRequest struct {
	APIKey             *string `json:"api_key,omitempty"`
	ExternalPropertyID *string `json:"external_property_id,omitempty"`
	WebhookSecret      *string `json:"webhook_secret,omitempty"`
	Status             *string `json:"status,omitempty"`
}

// Validate validates this update connection request.
func (m *UpdateConnectionRequest) Validate(formats strfmt.Registry) error {
	var res []error

	if m.Status != nil {
		if err := validate.Enum("status", "body", *m.Status, connectionStatusEnum); err != nil {
			res = append(res, err)
		}
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// CreateMappingRequest ties a unit to a room type and rate plan on one
// connection. A mapping without a rate plan syncs availability only.
type CreateMappingRequest struct {
	UnitID             *strfmt.UUID `json:"unit_id"`
	ExternalRoomTypeID string       `json:"external_room_type_id,omitempty"`
	ExternalRatePlanID string       `json:"external_rate_plan_id,omitempty"`
	IsActive           *bool        `json:"is_active,omitempty"`
}

// Validate validates this create mapping request.
func (m *CreateMappingRequest) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("unit_id", "body", m.UnitID); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// UpdateMappingRequest re-points or toggles an existing mapping.
type UpdateMappingRequest struct {
	ExternalRoomTypeID string `json:"external_room_type_id,omitempty"`
	ExternalRatePlanID string `json:"external_rate_plan_id,omitempty"`
	IsActive           *bool  `json:"is_active,omitempty"`
}

// Validate validates this update mapping request.
func (m *UpdateMappingRequest) Validate(formats strfmt.Registry) error {
	return nil
}
