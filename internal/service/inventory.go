package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
	"github.com/mnamhq/channelsync/internal/timeutil"
)

// occupyInventory writes the stay's nights into the projection cache,
// flagged for the next availability push.
func occupyInventory(ctx context.Context, inv *repository.InventoryRepository, b *model.Booking) error {
	from := timeutil.DateOnly(b.CheckInDate)
	nights := timeutil.DaysBetween(b.CheckInDate, b.CheckOutDate)
	if nights <= 0 {
		return nil
	}
	rows := make([]model.InventoryCalendar, 0, nights)
	for _, d := range timeutil.DateRange(from, nights) {
		bookingID := b.ID
		rows = append(rows, model.InventoryCalendar{
			UnitID:      b.UnitID,
			Date:        d,
			IsAvailable: false,
			BookingID:   &bookingID,
			SyncPending: true,
		})
	}
	return inv.Upsert(ctx, rows)
}

// freeInventory releases a date span previously held by a booking.
func freeInventory(ctx context.Context, inv *repository.InventoryRepository, unitID uuid.UUID, from, to time.Time) error {
	start := timeutil.DateOnly(from)
	nights := timeutil.DaysBetween(from, to)
	if nights <= 0 {
		return nil
	}
	rows := make([]model.InventoryCalendar, 0, nights)
	for _, d := range timeutil.DateRange(start, nights) {
		rows = append(rows, model.InventoryCalendar{
			UnitID:      unitID,
			Date:        d,
			IsAvailable: true,
			SyncPending: true,
		})
	}
	return inv.Upsert(ctx, rows)
}

// enqueueAvail queues an availability push for a unit. Bursts collapse
// in the outbox merge step, so every mutation may enqueue freely.
func enqueueAvail(ctx context.Context, outbox *repository.OutboxRepository, connectionID, unitID uuid.UUID, reason string) error {
	payload, _ := json.Marshal(model.OutboxPayload{UnitID: unitID.String(), Reason: reason})
	ev := &model.IntegrationOutbox{
		ConnectionID: connectionID,
		EventType:    model.OutboxEventAvailUpdate,
		UnitID:       unitID,
		Payload:      payload,
		Status:       model.OutboxStatusPending,
	}
	err := outbox.Enqueue(ctx, ev)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	return err
}
