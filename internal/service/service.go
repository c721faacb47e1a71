// Package service implements the engine's business operations over the
// repository layer: webhook intake and processing, outbound sync
// execution, booking and customer writes, and the operator surface.
// Services own transaction boundaries; handlers and workers stay thin.
package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/model"
)

// ErrLocked signals that another request holds the row lock. The API
// layer renders it as a 409.
var ErrLocked = errors.New("resource is locked by another request")

// ValidationError rejects an operation with a field-level message. The
// API layer renders it as a 400.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError builds a field-scoped validation failure.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ChannelClient is the slice of the channel manager API the services
// call. *channex.Client satisfies it.
type ChannelClient interface {
	GetProperty(ctx context.Context, propertyID string) (*channex.Property, error)
	GetRoomTypes(ctx context.Context, propertyID string) ([]channex.RoomType, error)
	GetRatePlans(ctx context.Context, propertyID string) ([]channex.RatePlan, error)
	PostRestrictions(ctx context.Context, propertyID string, values []channex.RestrictionValue) (json.RawMessage, error)
	PostAvailability(ctx context.Context, propertyID string, values []channex.AvailabilityValue) (json.RawMessage, error)
}

// ClientFactory builds a channel API client bound to one connection.
// The factory owns base URL, rate gate, and request recording; callers
// only supply the connection whose credentials the client should use.
type ClientFactory interface {
	ForConnection(conn *model.Connection) ChannelClient
}

// ClientFactoryFunc adapts a function to ClientFactory.
type ClientFactoryFunc func(conn *model.Connection) ChannelClient

func (f ClientFactoryFunc) ForConnection(conn *model.Connection) ChannelClient {
	return f(conn)
}
