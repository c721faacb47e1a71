package channex

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Stable error codes surfaced in logs and API responses.
const (
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeServerError        = "server_error"
	ErrCodeBadGateway         = "bad_gateway"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeTimeout            = "timeout"
	ErrCodeNetworkError       = "network_error"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
	ErrCodeValidationError    = "validation_error"
)

// APIError is the structured outcome of a failed channel call.
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("channex: %s (%d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("channex: %s: %s", e.Code, e.Message)
}

// NewAPIError maps an HTTP status to the taxonomy.
func NewAPIError(status int, message string) *APIError {
	switch {
	case status == http.StatusTooManyRequests:
		return &APIError{Code: ErrCodeRateLimited, Message: message, HTTPStatus: status, Retryable: true}
	case status == http.StatusUnauthorized:
		return &APIError{Code: ErrCodeUnauthorized, Message: message, HTTPStatus: status, Retryable: false}
	case status == http.StatusForbidden:
		return &APIError{Code: ErrCodeForbidden, Message: message, HTTPStatus: status, Retryable: false}
	case status == http.StatusNotFound:
		return &APIError{Code: ErrCodeNotFound, Message: message, HTTPStatus: status, Retryable: false}
	case status == http.StatusUnprocessableEntity:
		return &APIError{Code: ErrCodeValidationError, Message: message, HTTPStatus: status, Retryable: false}
	case status == http.StatusBadGateway:
		return &APIError{Code: ErrCodeBadGateway, Message: message, HTTPStatus: status, Retryable: true}
	case status == http.StatusServiceUnavailable:
		return &APIError{Code: ErrCodeServiceUnavailable, Message: message, HTTPStatus: status, Retryable: true}
	case status >= 500:
		return &APIError{Code: ErrCodeServerError, Message: message, HTTPStatus: status, Retryable: true}
	case status >= 400:
		return &APIError{Code: ErrCodeValidationError, Message: message, HTTPStatus: status, Retryable: false}
	default:
		return &APIError{Code: ErrCodeServerError, Message: message, HTTPStatus: status, Retryable: true}
	}
}

// IsRetryable reports whether err is a channel error worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	var pauseErr *PauseError
	return errors.As(err, &pauseErr)
}

// PauseError signals that the target property is rate-paused; callers
// should retry after RetryAfter rather than treating this as a failure.
type PauseError struct {
	PropertyID string
	RetryAfter time.Duration
}

func (e *PauseError) Error() string {
	return fmt.Sprintf("channex: property %s rate-limited, retry in %s", e.PropertyID, e.RetryAfter.Round(time.Second))
}
