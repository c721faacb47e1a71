package dto

import (
	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// CreateBookingRequest creates a manual booking. TotalPrice is a
// decimal string; callers price the stay through the quote endpoint
// first. Guest name and phone are individually optional but the
// service requires at least one.
type CreateBookingRequest struct {
	UnitID       *strfmt.UUID `json:"unit_id"`
	GuestName    *string      `json:"guest_name,omitempty"`
	GuestPhone   *string      `json:"guest_phone,omitempty"`
	GuestEmail   string       `json:"guest_email,omitempty"`
	CheckInDate  *strfmt.Date `json:"check_in_date"`
	CheckOutDate *strfmt.Date `json:"check_out_date"`
	TotalPrice   string       `json:"total_price,omitempty"`
	Currency     string       `json:"currency,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

// Validate validates this create booking request.
func (m *CreateBookingRequest) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("unit_id", "body", m.UnitID); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("check_in_date", "body", m.CheckInDate); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("check_out_date", "body", m.CheckOutDate); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}
