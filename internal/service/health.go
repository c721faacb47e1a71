package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/ratelimit"
	"github.com/mnamhq/channelsync/internal/repository"
)

// Health statuses, per check and overall.
const (
	HealthOK        = "ok"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Degradation thresholds for the queue and provider checks.
const (
	outboxBacklogLimit   = 500
	outboxOldestLimit    = 30 * time.Minute
	webhookBacklogLimit  = 100
	webhookOldestLimit   = 10 * time.Minute
	providerFailureRatio = 0.5
	providerMinRequests  = 5
	providerStatsWindow  = 15 * time.Minute
)

// Check is one named health probe result.
type Check struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport aggregates every probe. Overall status is the worst
// individual check.
type HealthReport struct {
	Status string           `json:"status"`
	Time   time.Time        `json:"time"`
	Checks map[string]Check `json:"checks"`
}

// HealthService probes the engine's moving parts: queues, the provider
// API, connections, and rate-limit pauses.
type HealthService struct {
	repos *repository.Set
	rates *ratelimit.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewHealthService(repos *repository.Set, rates *ratelimit.Store, logger zerolog.Logger, now func() time.Time) *HealthService {
	if now == nil {
		now = time.Now
	}
	return &HealthService{
		repos: repos,
		rates: rates,
		log:   logger.With().Str("component", "health").Logger(),
		now:   now,
	}
}

// Report runs every probe. Probes are independent: one failing check
// never hides the others.
func (s *HealthService) Report(ctx context.Context) *HealthReport {
	now := s.now().UTC()
	report := &HealthReport{
		Status: HealthOK,
		Time:   now,
		Checks: map[string]Check{},
	}

	report.Checks["database"] = s.checkDatabase(ctx)
	report.Checks["connections"] = s.checkConnections(ctx)
	report.Checks["provider_api"] = s.checkProviderAPI(ctx, now)
	report.Checks["outbox"] = s.checkOutbox(ctx, now)
	report.Checks["webhooks"] = s.checkWebhooks(ctx, now)
	report.Checks["rate_limits"] = s.checkRateLimits(ctx)

	for _, c := range report.Checks {
		switch c.Status {
		case HealthUnhealthy:
			report.Status = HealthUnhealthy
		case HealthDegraded:
			if report.Status == HealthOK {
				report.Status = HealthDegraded
			}
		}
	}
	return report
}

func (s *HealthService) checkDatabase(ctx context.Context) Check {
	if _, err := s.repos.Settings.Get(ctx); err != nil {
		return Check{Status: HealthUnhealthy, Detail: err.Error()}
	}
	return Check{Status: HealthOK}
}

func (s *HealthService) checkConnections(ctx context.Context) Check {
	conns, err := s.repos.Connections.List(ctx)
	if err != nil {
		return Check{Status: HealthUnhealthy, Detail: err.Error()}
	}
	active, errored := 0, 0
	for i := range conns {
		switch {
		case conns[i].IsActive():
			active++
		case conns[i].Status == model.ConnectionStatusError:
			errored++
		}
	}
	detail := fmt.Sprintf("%d active, %d in error", active, errored)
	if errored > 0 {
		return Check{Status: HealthDegraded, Detail: detail}
	}
	return Check{Status: HealthOK, Detail: detail}
}

func (s *HealthService) checkProviderAPI(ctx context.Context, now time.Time) Check {
	total, failed, err := s.repos.Audit.RequestStats(ctx, now.Add(-providerStatsWindow))
	if err != nil {
		return Check{Status: HealthUnhealthy, Detail: err.Error()}
	}
	if total == 0 {
		return Check{Status: HealthOK, Detail: "no recent requests"}
	}
	detail := fmt.Sprintf("%d/%d failed in last %s", failed, total, providerStatsWindow)
	if total >= providerMinRequests && float64(failed)/float64(total) >= providerFailureRatio {
		return Check{Status: HealthDegraded, Detail: detail}
	}
	return Check{Status: HealthOK, Detail: detail}
}

func (s *HealthService) checkOutbox(ctx context.Context, now time.Time) Check {
	pending, oldest, err := s.repos.Outbox.Backlog(ctx)
	if err != nil {
		return Check{Status: HealthUnhealthy, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%d queued", pending)
	if oldest != nil {
		age := now.Sub(*oldest).Truncate(time.Second)
		detail = fmt.Sprintf("%d queued, oldest %s", pending, age)
		if age > outboxOldestLimit {
			return Check{Status: HealthDegraded, Detail: detail}
		}
	}
	if pending > outboxBacklogLimit {
		return Check{Status: HealthDegraded, Detail: detail}
	}
	return Check{Status: HealthOK, Detail: detail}
}

func (s *HealthService) checkWebhooks(ctx context.Context, now time.Time) Check {
	pending, oldest, err := s.repos.WebhookLogs.Backlog(ctx)
	if err != nil {
		return Check{Status: HealthUnhealthy, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%d unprocessed", pending)
	if last, err := s.repos.WebhookLogs.LastReceivedAt(ctx); err == nil && last != nil {
		detail += fmt.Sprintf(", last received %s ago", now.Sub(*last).Truncate(time.Second))
	}
	if oldest != nil && now.Sub(*oldest) > webhookOldestLimit {
		return Check{Status: HealthDegraded, Detail: detail}
	}
	if pending > webhookBacklogLimit {
		return Check{Status: HealthDegraded, Detail: detail}
	}
	return Check{Status: HealthOK, Detail: detail}
}

func (s *HealthService) checkRateLimits(ctx context.Context) Check {
	paused, err := s.rates.Paused(ctx)
	if err != nil {
		return Check{Status: HealthUnhealthy, Detail: err.Error()}
	}
	if len(paused) == 0 {
		return Check{Status: HealthOK}
	}
	ids := make([]string, 0, len(paused))
	for i := range paused {
		ids = append(ids, paused[i].ExternalPropertyID)
	}
	return Check{
		Status: HealthDegraded,
		Detail: "paused properties: " + strings.Join(ids, ", "),
	}
}
