package channex

import (
	"encoding/json"
	"strings"
)

// RestrictionValue is one element of a POST /restrictions body. Rates
// travel as strings with two decimals, never as numbers. A value covers
// either a single date or a compressed date_from..date_to range.
type RestrictionValue struct {
	PropertyID      string `json:"property_id"`
	RatePlanID      string `json:"rate_plan_id"`
	Date            string `json:"date,omitempty"`
	DateFrom        string `json:"date_from,omitempty"`
	DateTo          string `json:"date_to,omitempty"`
	Rate            string `json:"rate,omitempty"`
	MinStayArrival  *int   `json:"min_stay_arrival,omitempty"`
	ClosedToArrival *bool  `json:"closed_to_arrival,omitempty"`
	StopSell        *bool  `json:"stop_sell,omitempty"`
}

// AvailabilityValue is one element of a POST /availability body.
// Availability is always integer 0 or 1 (units are single-inventory).
type AvailabilityValue struct {
	PropertyID   string `json:"property_id"`
	RoomTypeID   string `json:"room_type_id"`
	Date         string `json:"date,omitempty"`
	DateFrom     string `json:"date_from,omitempty"`
	DateTo       string `json:"date_to,omitempty"`
	Availability int    `json:"availability"`
}

// RestrictionsRequest is the envelope of POST /restrictions.
type RestrictionsRequest struct {
	Values []RestrictionValue `json:"values"`
}

// AvailabilityRequest is the envelope of POST /availability.
type AvailabilityRequest struct {
	Values []AvailabilityValue `json:"values"`
}

// Property is the channel's property resource.
type Property struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Currency string `json:"currency"`
	State    string `json:"state,omitempty"`
	IsActive bool   `json:"is_active"`
}

// RoomType is the channel's room type resource.
type RoomType struct {
	ID         string `json:"id"`
	PropertyID string `json:"property_id"`
	Title      string `json:"title"`
	OccAdults  int    `json:"occ_adults,omitempty"`
}

// RatePlan is the channel's rate plan resource.
type RatePlan struct {
	ID         string `json:"id"`
	PropertyID string `json:"property_id"`
	RoomTypeID string `json:"room_type_id"`
	Title      string `json:"title"`
	Currency   string `json:"currency,omitempty"`
}

// Guest is the guest block of an inbound booking payload.
type Guest struct {
	Name    string `json:"name"`
	Surname string `json:"surname,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Country string `json:"country,omitempty"`
}

// FullName joins name and surname, trimming emptiness.
func (g Guest) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(g.Name) + " " + strings.TrimSpace(g.Surname))
}

// BookingData is the data block of an inbound booking webhook. Prices
// arrive as strings or numbers depending on the OTA; json.Number keeps
// both parseable.
type BookingData struct {
	ID            string      `json:"id"`
	PropertyID    string      `json:"property_id,omitempty"`
	RoomTypeID    string      `json:"room_type_id,omitempty"`
	RatePlanID    string      `json:"rate_plan_id,omitempty"`
	Guest         *Guest      `json:"guest,omitempty"`
	Customer      *Guest      `json:"customer,omitempty"`
	ArrivalDate   string      `json:"arrival_date,omitempty"`
	DepartureDate string      `json:"departure_date,omitempty"`
	TotalPrice    json.Number `json:"total_price,omitempty"`
	Currency      string      `json:"currency,omitempty"`
	Status        string      `json:"status,omitempty"`
	RevisionID    string      `json:"revision_id,omitempty"`
	UpdatedAt     string      `json:"updated_at,omitempty"`
	OTAName       string      `json:"ota_name,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

// GuestInfo returns whichever guest block the payload carried.
func (d *BookingData) GuestInfo() *Guest {
	if d.Guest != nil {
		return d.Guest
	}
	return d.Customer
}

// WebhookPayload is the envelope of an inbound webhook. Providers send
// either a dotted event ("booking.new") or a split pair
// (event="booking", event_type="new"); both parses are preserved and
// canonicalized by CanonicalEventType.
type WebhookPayload struct {
	Event      string          `json:"event,omitempty"`
	EventType  string          `json:"event_type,omitempty"`
	EventID    string          `json:"event_id,omitempty"`
	PropertyID string          `json:"property_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RevisionID string          `json:"revision_id,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
}

// DataBlock returns whichever payload body block is present.
func (p *WebhookPayload) DataBlock() json.RawMessage {
	if len(p.Data) > 0 {
		return p.Data
	}
	return p.Payload
}

// CanonicalEventType folds the tolerated wire variants into one dotted
// lowercase form: ("booking.new","") -> booking.new,
// ("booking","new") -> booking.new, ("booking_created","") ->
// booking_created (underscore aliases resolve at dispatch).
func CanonicalEventType(event, eventType string) string {
	event = strings.ToLower(strings.TrimSpace(event))
	eventType = strings.ToLower(strings.TrimSpace(eventType))

	switch {
	case event == "" && eventType == "":
		return ""
	case event == "":
		return eventType
	case strings.Contains(event, "."):
		return event
	case eventType == "" || eventType == event:
		return event
	case strings.Contains(eventType, "."):
		return eventType
	default:
		return event + "." + eventType
	}
}

// Canonical inbound event types after alias folding.
const (
	EventBookingNew       = "booking.new"
	EventBookingModified  = "booking.modified"
	EventBookingCancelled = "booking.cancelled"
)

// eventAliases maps every accepted wire spelling to its canonical form.
var eventAliases = map[string]string{
	"booking.new":       EventBookingNew,
	"booking_created":   EventBookingNew,
	"booking.created":   EventBookingNew,
	"booking.modified":  EventBookingModified,
	"booking_updated":   EventBookingModified,
	"booking.updated":   EventBookingModified,
	"booking.cancelled": EventBookingCancelled,
	"booking_cancelled": EventBookingCancelled,
}

// ResolveEventType returns the canonical handled event type and whether
// the input names one at all.
func ResolveEventType(canonical string) (string, bool) {
	t, ok := eventAliases[canonical]
	return t, ok
}

// OTALabels maps ota_name wire values to the human channel_source label
// stored on bookings.
var otaLabels = map[string]string{
	"airbnb":      "Airbnb",
	"booking.com": "Booking.com",
	"booking":     "Booking.com",
	"agoda":       "Agoda",
	"expedia":     "Expedia",
	"vrbo":        "Vrbo",
}

// OTALabel returns the display label for an OTA name, falling back to
// the raw value when unknown.
func OTALabel(otaName string) string {
	if otaName == "" {
		return "Channel"
	}
	if label, ok := otaLabels[strings.ToLower(otaName)]; ok {
		return label
	}
	return otaName
}
