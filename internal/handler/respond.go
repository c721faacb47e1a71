// Package handler exposes the engine over HTTP: the ops API, the
// booking surface, and the provider's webhook endpoint.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// errorResponse is the uniform error body. CorrelationID ties the
// response to the matching request log line.
type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, status, errorResponse{
		Error:         message,
		CorrelationID: chimw.GetReqID(r.Context()),
	})
}

// respondServiceError maps the service error surface onto HTTP status
// codes. fallback is the 500 message for errors no case claims.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		respondError(w, r, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrTokenInvalid),
		errors.Is(err, service.ErrBadSignature):
		respondError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrCustomerBanned):
		respondError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrBookingNotFound),
		errors.Is(err, service.ErrUnitNotFound),
		errors.Is(err, service.ErrConnectionNotFound),
		errors.Is(err, service.ErrMappingNotFound),
		errors.Is(err, service.ErrUnmatchedNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		respondError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDatesUnavailable),
		errors.Is(err, service.ErrMappingExists),
		errors.Is(err, service.ErrRefreshInFlight),
		errors.Is(err, service.ErrLocked):
		respondError(w, r, http.StatusConflict, err.Error())
	default:
		respondError(w, r, http.StatusInternalServerError, fallback)
	}
}

// parsePaging reads the limit and page query params. Pages are
// 1-based; limit is clamped to maxPageSize.
func parsePaging(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	return limit, offset
}
