package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/swag"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mnamhq/channelsync/internal/dto"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/service"
	"github.com/mnamhq/channelsync/internal/timeutil"
)

// maxCalendarDays caps the calendar projection a single request may
// ask for.
const maxCalendarDays = 365

// BookingHandler fronts the manual booking surface plus the unit
// quote and calendar reads.
type BookingHandler struct {
	svc *service.BookingService
}

func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// Create handles POST /api/v1/bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBookingRequest
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

	total := decimal.Zero
	if req.TotalPrice != "" {
		total, err = decimal.NewFromString(req.TotalPrice)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid total_price")
			return
		}
	}

	booking, err := h.svc.Create(r.Context(), service.CreateInput{
		UnitID:     unitID,
		GuestName:  swag.StringValue(req.GuestName),
		GuestPhone: swag.StringValue(req.GuestPhone),
		GuestEmail: req.GuestEmail,
		CheckIn:    time.Time(*req.CheckInDate),
		CheckOut:   time.Time(*req.CheckOutDate),
		TotalPrice: total,
		Currency:   req.Currency,
		Notes:      req.Notes,
	})
	if err != nil {
		respondServiceError(w, r, err, "Failed to create booking")
		return
	}
	respondJSON(w, http.StatusCreated, booking)
}

// List handles GET /api/v1/bookings.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)
	f := repository.BookingFilter{
		Status:     r.URL.Query().Get("status"),
		SourceType: r.URL.Query().Get("source_type"),
		Limit:      limit,
		Offset:     offset,
	}

	if v := r.URL.Query().Get("unit_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid unit_id")
			return
		}
		f.UnitID = id
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := timeutil.ParseDate(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD")
			return
		}
		f.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := timeutil.ParseDate(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Invalid to date, expected YYYY-MM-DD")
			return
		}
		f.To = t
	}

	bookings, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, r, err, "Failed to list bookings")
		return
	}
	respondJSON(w, http.StatusOK, dto.BookingListResponse{
		Items:      bookings,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

// Get handles GET /api/v1/bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid booking ID")
		return
	}

	booking, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load booking")
		return
	}
	respondJSON(w, http.StatusOK, booking)
}

// CheckIn handles POST /api/v1/bookings/{id}/check-in.
func (h *BookingHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CheckIn, "Failed to check in booking")
}

// CheckOut handles POST /api/v1/bookings/{id}/check-out.
func (h *BookingHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CheckOut, "Failed to check out booking")
}

// Cancel handles POST /api/v1/bookings/{id}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel, "Failed to cancel booking")
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID) (*model.Booking, error), fallback string) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid booking ID")
		return
	}

	booking, err := apply(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, fallback)
		return
	}
	respondJSON(w, http.StatusOK, booking)
}

// Quote handles GET /api/v1/units/{id}/quote.
func (h *BookingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	unitID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	checkIn, err := timeutil.ParseDate(r.URL.Query().Get("check_in"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid check_in, expected YYYY-MM-DD")
		return
	}
	checkOut, err := timeutil.ParseDate(r.URL.Query().Get("check_out"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid check_out, expected YYYY-MM-DD")
		return
	}

	result, err := h.svc.Quote(r.Context(), unitID, checkIn, checkOut)
	if err != nil {
		respondServiceError(w, r, err, "Failed to quote stay")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Calendar handles GET /api/v1/units/{id}/calendar.
func (h *BookingHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	unitID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid unit ID")
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	if days > maxCalendarDays {
		days = maxCalendarDays
	}

	calendar, err := h.svc.Calendar(r.Context(), unitID, days)
	if err != nil {
		respondServiceError(w, r, err, "Failed to build calendar")
		return
	}
	respondJSON(w, http.StatusOK, dto.CalendarResponse{
		UnitID: unitID.String(),
		Days:   calendar,
	})
}
