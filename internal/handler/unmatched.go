package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mnamhq/channelsync/internal/dto"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/service"
)

// UnmatchedHandler works the quarantine queue: list what parked,
// inspect the raw payload, then replay or dismiss.
type UnmatchedHandler struct {
	svc *service.UnmatchedService
}

func NewUnmatchedHandler(svc *service.UnmatchedService) *UnmatchedHandler {
	return &UnmatchedHandler{svc: svc}
}

// List handles GET /api/v1/integration/unmatched.
func (h *UnmatchedHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)
	events, total, err := h.svc.List(r.Context(), repository.UnmatchedFilter{
		Status: r.URL.Query().Get("status"),
		Reason: r.URL.Query().Get("reason"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to list unmatched events")
		return
	}
	respondJSON(w, http.StatusOK, dto.UnmatchedListResponse{
		Items:      events,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

// Get handles GET /api/v1/integration/unmatched/{id}.
func (h *UnmatchedHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid unmatched event ID")
		return
	}

	ev, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load unmatched event")
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

// Resolve handles POST /api/v1/integration/unmatched/{id}/resolve.
func (h *UnmatchedHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid unmatched event ID")
		return
	}

	var req dto.ResolveUnmatchedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(nil); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	unitID, err := uuid.Parse(req.UnitID.String())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	in := service.ResolveInput{UnitID: unitID}
	if req.ResolvedBy != "" {
		by, err := uuid.Parse(req.ResolvedBy.String())
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid resolved_by ID")
			return
		}
		in.ResolvedBy = &by
	}

	ev, err := h.svc.Resolve(r.Context(), id, in)
	if err != nil {
		respondServiceError(w, r, err, "Failed to resolve unmatched event")
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

// Ignore handles POST /api/v1/integration/unmatched/{id}/ignore. The
// body is optional.
func (h *UnmatchedHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid unmatched event ID")
		return
	}

	var req dto.IgnoreUnmatchedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	var by *uuid.UUID
	if req.ResolvedBy != "" {
		parsed, err := uuid.Parse(req.ResolvedBy.String())
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid resolved_by ID")
			return
		}
		by = &parsed
	}

	ev, err := h.svc.Ignore(r.Context(), id, by)
	if err != nil {
		respondServiceError(w, r, err, "Failed to ignore unmatched event")
		return
	}
	respondJSON(w, http.StatusOK, ev)
}
