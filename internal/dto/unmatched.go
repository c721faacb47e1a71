package dto

import (
	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// ResolveUnmatchedRequest replays a quarantined event against an
// operator-chosen unit. ResolvedBy records which user made the call.
type ResolveUnmatchedRequest struct {
	UnitID     *strfmt.UUID `json:"unit_id"`
	ResolvedBy strfmt.UUID  `json:"resolved_by,omitempty"`
}

// Validate validates this resolve unmatched request.
func (m *ResolveUnmatchedRequest) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("unit_id", "body", m.UnitID); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// IgnoreUnmatchedRequest dismisses a quarantined event without replay.
// The body is optional; an empty POST ignores anonymously.
type IgnoreUnmatchedRequest struct {
	ResolvedBy strfmt.UUID `json:"resolved_by,omitempty"`
}

// Validate validates this ignore unmatched request.
func (m *IgnoreUnmatchedRequest) Validate(formats strfmt.Registry) error {
	return nil
}
