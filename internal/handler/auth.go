package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mnamhq/channelsync/internal/dto"
	"github.com/mnamhq/channelsync/internal/middleware"
	"github.com/mnamhq/channelsync/internal/service"
)

// AuthHandler issues, rotates, and revokes the service tokens.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Token handles POST /api/v1/auth/token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(nil); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := h.auth.IssueForAPIKey(r.Context(), *req.APIKey)
	if err != nil {
		respondServiceError(w, r, err, "Failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(nil); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := h.auth.Refresh(r.Context(), *req.RefreshToken)
	if err != nil {
		respondServiceError(w, r, err, "Failed to refresh token")
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

// Revoke handles POST /api/v1/auth/revoke. Every refresh token of the
// calling subject is dropped; outstanding access tokens expire on
// their own.
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.auth.Revoke(r.Context(), subject); err != nil {
		respondServiceError(w, r, err, "Failed to revoke tokens")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
