package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mnamhq/channelsync/internal/dto"
	"github.com/mnamhq/channelsync/internal/repository"
)

// AdminHandler exposes the queues and logs to operators. These
// endpoints read repositories directly; there is no domain logic
// behind them.
type AdminHandler struct {
	repos *repository.Set
	now   func() time.Time
}

func NewAdminHandler(repos *repository.Set, now func() time.Time) *AdminHandler {
	if now == nil {
		now = time.Now
	}
	return &AdminHandler{repos: repos, now: now}
}

// ListOutbox handles GET /api/v1/integration/outbox.
func (h *AdminHandler) ListOutbox(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)
	f := repository.OutboxFilter{
		Status:    r.URL.Query().Get("status"),
		EventType: r.URL.Query().Get("event_type"),
		Limit:     limit,
		Offset:    offset,
	}
	if v := r.URL.Query().Get("unit_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid unit_id")
			return
		}
		f.UnitID = id
	}

	events, total, err := h.repos.Outbox.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list outbox events")
		return
	}
	respondJSON(w, http.StatusOK, dto.OutboxListResponse{
		Items:      events,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

// RetryOutbox handles POST /api/v1/integration/outbox/{id}/retry. Only
// failed or retrying events can be pushed back to pending; the retry
// resets their attempt count.
func (h *AdminHandler) RetryOutbox(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid event ID")
		return
	}

	if err := h.repos.Outbox.RetryNow(r.Context(), id, h.now()); err != nil {
		respondServiceError(w, r, err, "Failed to retry event")
		return
	}
	ev, err := h.repos.Outbox.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load event")
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

// OutboxStats handles GET /api/v1/integration/outbox/stats.
func (h *AdminHandler) OutboxStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repos.Outbox.CountByStatus(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "Failed to count outbox events")
		return
	}
	respondJSON(w, http.StatusOK, dto.OutboxStatsResponse{Counts: counts})
}

// ListWebhookEvents handles GET /api/v1/integration/webhook-events.
func (h *AdminHandler) ListWebhookEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)
	events, total, err := h.repos.WebhookLogs.List(r.Context(), repository.WebhookFilter{
		Status:     r.URL.Query().Get("status"),
		EventType:  r.URL.Query().Get("event_type"),
		ExternalID: r.URL.Query().Get("external_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to list webhook events")
		return
	}
	respondJSON(w, http.StatusOK, dto.WebhookEventListResponse{
		Items:      events,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

// ListRequestLogs handles GET /api/v1/integration/logs.
func (h *AdminHandler) ListRequestLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)
	f := repository.LogFilter{
		CorrelationID: r.URL.Query().Get("correlation_id"),
		Limit:         limit,
		Offset:        offset,
	}
	if v := r.URL.Query().Get("connection_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid connection_id")
			return
		}
		f.ConnectionID = id
	}
	if v := r.URL.Query().Get("only_failed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid only_failed")
			return
		}
		f.OnlyFailed = b
	}

	logs, total, err := h.repos.Audit.ListLogs(r.Context(), f)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list request logs")
		return
	}
	respondJSON(w, http.StatusOK, dto.RequestLogListResponse{
		Items:      logs,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

// ListAudits handles GET /api/v1/integration/audits.
func (h *AdminHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)
	f := repository.AuditFilter{
		Direction:  r.URL.Query().Get("direction"),
		EntityType: r.URL.Query().Get("entity_type"),
		Limit:      limit,
		Offset:     offset,
	}
	if v := r.URL.Query().Get("connection_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid connection_id")
			return
		}
		f.ConnectionID = id
	}
	if v := r.URL.Query().Get("unit_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid unit_id")
			return
		}
		f.UnitID = id
	}

	audits, total, err := h.repos.Audit.ListAudits(r.Context(), f)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list audits")
		return
	}
	respondJSON(w, http.StatusOK, dto.AuditListResponse{
		Items:      audits,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}
