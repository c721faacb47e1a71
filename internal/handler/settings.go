package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-openapi/swag"
	"github.com/google/uuid"

	"github.com/mnamhq/channelsync/internal/dto"
	"github.com/mnamhq/channelsync/internal/service"
)

// SettingsHandler reads and tunes the integration settings row.
type SettingsHandler struct {
	svc *service.SettingsService
}

func NewSettingsHandler(svc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{svc: svc}
}

// Get handles GET /api/v1/integration/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Get(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "Failed to load settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// Update handles PUT /api/v1/integration/settings. Absent fields keep
// their stored value; changes apply on the next sync without a
// restart.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(nil); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in := service.UpdateSettingsInput{
		ChannelEnabled:      req.ChannelEnabled,
		WeekendDays:         req.WeekendDays,
		NoShowCancelEnabled: req.NoShowCancelEnabled,
	}
	if req.SyncHorizonDays != nil {
		in.SyncHorizonDays = swag.Int(int(*req.SyncHorizonDays))
	}
	if req.MaxPayloadBytes != nil {
		in.MaxPayloadBytes = swag.Int(int(*req.MaxPayloadBytes))
	}
	if req.CleaningBufferDays != nil {
		in.CleaningBufferDays = swag.Int(int(*req.CleaningBufferDays))
	}
	if req.EnabledEventTypes != nil {
		in.EnabledEventTypes = &req.EnabledEventTypes
	}
	if req.UpdatedBy != "" {
		by, err := uuid.Parse(req.UpdatedBy.String())
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid updated_by ID")
			return
		}
		in.UpdatedBy = &by
	}

	settings, err := h.svc.Update(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}
