// Package availability projects per-date unit availability from the
// unit's manual status and its booking set. The projection is pure:
// same inputs, same output, no clock reads.
package availability

import (
	"fmt"
	"time"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/timeutil"
)

// Day is one projected date. Available is the wire value 0 or 1.
type Day struct {
	Date      time.Time `json:"date"`
	Available int       `json:"availability"`
	StopSell  bool      `json:"stop_sell"`
	Reason    string    `json:"reason,omitempty"`
}

// Input is everything the projection depends on. Bookings may carry any
// status; cancelled and soft-deleted ones are ignored here.
type Input struct {
	Unit               *model.Unit
	Bookings           []model.Booking
	Today              time.Time
	Horizon            int
	CleaningBufferDays int
}

// EffectiveStatus derives the unit status shown to operators. A manual
// block wins over bookings; otherwise an in-house stay today makes the
// unit booked.
func EffectiveStatus(unit *model.Unit, bookings []model.Booking, today time.Time) string {
	if unit.HasManualBlock() {
		return unit.Status
	}
	day := timeutil.DateOnly(today)
	for i := range bookings {
		b := &bookings[i]
		if b.IsDeleted {
			continue
		}
		switch b.Status {
		case model.BookingStatusPending, model.BookingStatusConfirmed, model.BookingStatusCheckedIn:
		default:
			continue
		}
		// Inclusive on both ends: the check-out day still counts as
		// occupied for the status display.
		if !day.Before(timeutil.DateOnly(b.CheckInDate)) && !day.After(timeutil.DateOnly(b.CheckOutDate)) {
			return model.UnitStatusBooked
		}
	}
	return model.UnitStatusAvailable
}

// Project emits one Day per date in [today, today+horizon).
//
// A manual block closes today only; operational blocks are transient
// and never forward-close the calendar. Booked dates follow the
// half-open stay rule, and each stay additionally closes its check-out
// date as a cleaning buffer.
func Project(in Input) []Day {
	if in.Unit == nil || in.Horizon <= 0 {
		return nil
	}
	buffer := in.CleaningBufferDays
	if buffer < 0 {
		buffer = 0
	}

	today := timeutil.DateOnly(in.Today)
	active := make([]model.Booking, 0, len(in.Bookings))
	for _, b := range in.Bookings {
		if b.IsActiveStay() {
			active = append(active, b)
		}
	}

	manualToday := in.Unit.HasManualBlock()
	out := make([]Day, 0, in.Horizon)
	for _, d := range timeutil.DateRange(today, in.Horizon) {
		day := Day{Date: d, Available: 1}

		switch {
		case manualToday && d.Equal(today):
			day.Available = 0
			day.Reason = "manual:" + in.Unit.Status
		default:
			if b := overlapping(active, d); b != nil {
				day.Available = 0
				day.Reason = fmt.Sprintf("booking:%s", b.ID)
			} else if b := inCleaningBuffer(active, d, buffer); b != nil {
				day.Available = 0
				day.Reason = fmt.Sprintf("post_checkout_buffer:%s", b.ID)
			}
		}

		day.StopSell = day.Available == 0
		out = append(out, day)
	}
	return out
}

// overlapping returns the first active booking whose stay covers d
// under the half-open rule check_in <= d < check_out.
func overlapping(bookings []model.Booking, d time.Time) *model.Booking {
	for i := range bookings {
		b := &bookings[i]
		in := timeutil.DateOnly(b.CheckInDate)
		outDate := timeutil.DateOnly(b.CheckOutDate)
		if !d.Before(in) && d.Before(outDate) {
			return b
		}
	}
	return nil
}

// inCleaningBuffer returns the booking whose post-checkout buffer
// covers d: check_out <= d < check_out + buffer days.
func inCleaningBuffer(bookings []model.Booking, d time.Time, buffer int) *model.Booking {
	if buffer == 0 {
		return nil
	}
	for i := range bookings {
		b := &bookings[i]
		out := timeutil.DateOnly(b.CheckOutDate)
		if !d.Before(out) && d.Before(timeutil.AddDays(out, buffer)) {
			return b
		}
	}
	return nil
}

