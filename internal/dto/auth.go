package dto

import (
	"github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// TokenRequest exchanges the service API key for a token pair.
type TokenRequest struct {
	APIKey *string `json:"api_key"`
}

// Validate validates this token request.
func (m *TokenRequest) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("api_key", "body", m.APIKey); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}

// RefreshRequest rotates a refresh token into a fresh pair.
type RefreshRequest struct {
	RefreshToken *string `json:"refresh_token"`
}

// Validate validates this refresh request.
func (m *RefreshRequest) Validate(formats strfmt.Registry) error {
	var res []error

	if err := validate.Required("refresh_token", "body", m.RefreshToken); err != nil {
		res = append(res, err)
	}

	if len(res) > 0 {
		return errors.CompositeValidationError(res...)
	}
	return nil
}
