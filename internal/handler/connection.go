package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mnamhq/channelsync/internal/dto"
	"github.com/mnamhq/channelsync/internal/service"
)

// ConnectionHandler manages channel connections and their unit
// mappings.
type ConnectionHandler struct {
	svc *service.ConnectionService
}

func NewConnectionHandler(svc *service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{svc: svc}
}

// List handles GET /api/v1/integration/connections.
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.svc.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "Failed to list connections")
		return
	}
	respondJSON(w, http.StatusOK, dto.ConnectionListResponse{
		Items:      conns,
		TotalCount: int64(len(conns)),
	})
}

// Create handles POST /api/v1/integration/connections.
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(nil); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	projectID, err := uuid.Parse(req.ProjectID.String())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid project ID")
		return
	}

	conn, err := h.svc.Create(r.Context(), service.CreateConnectionInput{
		ProjectID:          projectID,
		Provider:           req.Provider,
		APIKey:             *req.APIKey,
		ExternalPropertyID: *req.ExternalPropertyID,
		WebhookSecret:      req.WebhookSecret,
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to create connection")
		return
	}
	respondJSON(w, http.StatusCreated, conn)
}

// Get handles GET /api/v1/integration/connections/{id}.
func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection ID")
		return
	}

	conn, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load connection")
		return
	}
	respondJSON(w, http.StatusOK, conn)
}

// Update handles PATCH /api/v1/integration/connections/{id}.
func (h *ConnectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection ID")
		return
	}

	var req dto.UpdateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(nil); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.svc.Update(r.Context(), id, service.UpdateConnectionInput{
		APIKey:             req.APIKey,
		ExternalPropertyID: req.ExternalPropertyID,
		WebhookSecret:      req.WebhookSecret,
		Status:             req.Status,
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to update connection")
		return
	}
	respondJSON(w, http.StatusOK, conn)
}

// Delete handles DELETE /api/v1/integration/connections/{id}.
func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection ID")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "Failed to delete connection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test handles POST /api/v1/integration/connections/{id}/test. A
// failed probe still answers 200; the result carries the outcome.
func (h *ConnectionHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection ID")
		return
	}

	result, err := h.svc.Test(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to test connection")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// FullSync handles POST /api/v1/integration/connections/{id}/full-sync.
// It only queues outbox events; the worker does the pushing.
func (h *ConnectionHandler) FullSync(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection ID")
		return
	}

	queued, err := h.svc.FullSync(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to queue full sync")
		return
	}
	respondJSON(w, http.StatusAccepted, dto.FullSyncResponse{Queued: queued})
}

// ListMappings handles GET /api/v1/integration/connections/{id}/mappings.
func (h *ConnectionHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection ID")
		return
	}

	mappings, err := h.svc.ListMappings(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list mappings")
		return
	}
	respondJSON(w, http.StatusOK, dto.MappingListResponse{
		Items:      mappings,
		TotalCount: int64(len(mappings)),
	})
}

// CreateMapping handles POST /api/v1/integration/connections/{id}/mappings.
func (h *ConnectionHandler) CreateMapping(w http.ResponseWriter, r *http.Request) {
	connID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection ID")
		return
	}

	var req dto.CreateMappingRequest
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

	m, err := h.svc.CreateMapping(r.Context(), connID, service.MappingInput{
		UnitID:             unitID,
		ExternalRoomTypeID: req.ExternalRoomTypeID,
		ExternalRatePlanID: req.ExternalRatePlanID,
		IsActive:           req.IsActive,
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to create mapping")
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// UpdateMapping handles PATCH /api/v1/integration/mappings/{id}.
func (h *ConnectionHandler) UpdateMapping(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid mapping ID")
		return
	}

	var req dto.UpdateMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(nil); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.UpdateMapping(r.Context(), id, service.MappingInput{
		ExternalRoomTypeID: req.ExternalRoomTypeID,
		ExternalRatePlanID: req.ExternalRatePlanID,
		IsActive:           req.IsActive,
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to update mapping")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// DeleteMapping handles DELETE /api/v1/integration/mappings/{id}.
func (h *ConnectionHandler) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid mapping ID")
		return
	}

	if err := h.svc.DeleteMapping(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "Failed to delete mapping")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RoomTypes handles GET /api/v1/integration/connections/{id}/room-types.
func (h *ConnectionHandler) RoomTypes(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection ID")
		return
	}

	types, err := h.svc.ListRoomTypes(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list room types")
		return
	}
	respondJSON(w, http.StatusOK, dto.RoomTypeListResponse{
		Items:      types,
		TotalCount: int64(len(types)),
	})
}

// RatePlans handles GET /api/v1/integration/connections/{id}/rate-plans.
func (h *ConnectionHandler) RatePlans(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection ID")
		return
	}

	plans, err := h.svc.ListRatePlans(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list rate plans")
		return
	}
	respondJSON(w, http.StatusOK, dto.RatePlanListResponse{
		Items:      plans,
		TotalCount: int64(len(plans)),
	})
}
