package handler

import (
	"net/http"

	"github.com/mnamhq/channelsync/internal/service"
)

// HealthHandler reports the integration health snapshot.
type HealthHandler struct {
	svc *service.HealthService
}

func NewHealthHandler(svc *service.HealthService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Report handles GET /api/v1/integration/health. An unhealthy report
// answers 503 so probes can act on the status code alone; degraded
// still answers 200 with the detail in the body.
func (h *HealthHandler) Report(w http.ResponseWriter, r *http.Request) {
	report := h.svc.Report(r.Context())

	status := http.StatusOK
	if report.Status == service.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, report)
}
