// Package dto holds the request and response shapes of the HTTP API.
// Request models validate themselves through go-openapi validators so
// handlers can reject malformed bodies before touching a service;
// response envelopes wrap persisted models, which carry their own JSON
// tags.
package dto

import (
	"github.com/mnamhq/channelsync/internal/channex"
	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/service"
)

// ConnectionListResponse lists every configured channel connection.
type ConnectionListResponse struct {
	Items      []model.Connection `json:"items"`
	TotalCount int64              `json:"total_count"`
}

// MappingListResponse lists the unit mappings of one connection.
type MappingListResponse struct {
	Items      []model.ExternalMapping `json:"items"`
	TotalCount int64                   `json:"total_count"`
}

// RoomTypeListResponse carries the provider's room types for mapping
// screens.
type RoomTypeListResponse struct {
	Items      []channex.RoomType `json:"items"`
	TotalCount int64              `json:"total_count"`
}

// RatePlanListResponse carries the provider's rate plans for mapping
// screens.
type RatePlanListResponse struct {
	Items      []channex.RatePlan `json:"items"`
	TotalCount int64              `json:"total_count"`
}

// BookingListResponse is one page of bookings.
type BookingListResponse struct {
	Items      []model.Booking `json:"items"`
	TotalCount int64           `json:"total_count"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
}

// OutboxListResponse is one page of outbox events.
type OutboxListResponse struct {
	Items      []model.IntegrationOutbox `json:"items"`
	TotalCount int64                     `json:"total_count"`
	Limit      int                       `json:"limit"`
	Offset     int                       `json:"offset"`
}

// WebhookEventListResponse is one page of stored webhook deliveries.
type WebhookEventListResponse struct {
	Items      []model.WebhookEventLog `json:"items"`
	TotalCount int64                   `json:"total_count"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
}

// UnmatchedListResponse is one page of quarantined events.
type UnmatchedListResponse struct {
	Items      []model.UnmatchedWebhookEvent `json:"items"`
	TotalCount int64                         `json:"total_count"`
	Limit      int                           `json:"limit"`
	Offset     int                           `json:"offset"`
}

// RequestLogListResponse is one page of outbound API call logs.
type RequestLogListResponse struct {
	Items      []model.IntegrationLog `json:"items"`
	TotalCount int64                  `json:"total_count"`
	Limit      int                    `json:"limit"`
	Offset     int                    `json:"offset"`
}

// AuditListResponse is one page of sync audit rows.
type AuditListResponse struct {
	Items      []model.IntegrationAudit `json:"items"`
	TotalCount int64                    `json:"total_count"`
	Limit      int                      `json:"limit"`
	Offset     int                      `json:"offset"`
}

// CalendarResponse merges price and availability per date for one
// unit.
type CalendarResponse struct {
	UnitID string                    `json:"unit_id"`
	Days   []service.UnitCalendarDay `json:"days"`
}

// FullSyncResponse reports how many outbox events a full sync queued.
type FullSyncResponse struct {
	Queued int `json:"queued"`
}

// OutboxStatsResponse is the queue depth per outbox status.
type OutboxStatsResponse struct {
	Counts map[string]int64 `json:"counts"`
}

// WebhookAckResponse is the receiver's answer to a delivery. EventID is
// the stored log row, not the provider's event id.
type WebhookAckResponse struct {
	OK               bool   `json:"ok"`
	EventID          string `json:"event_id"`
	AlreadyProcessed bool   `json:"already_processed"`
}
