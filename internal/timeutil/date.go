package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a UTC midnight instant.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatDate renders a date-only value as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateOnly truncates an instant to its calendar date as a UTC midnight.
// All date arithmetic in the integration layer runs on these normalized values.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc, normalized via DateOnly.
func Today(now time.Time, loc *time.Location) time.Time {
	return DateOnly(now.In(loc))
}

// AddDays shifts a normalized date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// DaysBetween returns the whole-day distance from from to to.
// Negative when to precedes from.
func DaysBetween(from, to time.Time) int {
	return int(DateOnly(to).Sub(DateOnly(from)).Hours() / 24)
}

// DateRange returns days consecutive dates starting at from (normalized).
func DateRange(from time.Time, days int) []time.Time {
	if days <= 0 {
		return nil
	}
	out := make([]time.Time, 0, days)
	d := DateOnly(from)
	for i := 0; i < days; i++ {
		out = append(out, AddDays(d, i))
	}
	return out
}

// ParseWeekdays parses a comma-separated weekday list in Monday=0 numbering
// (the stored pricing-policy format, where "4,5" means Friday and Saturday)
// into Go weekdays.
func ParseWeekdays(csv string) (map[time.Weekday]bool, error) {
	out := make(map[time.Weekday]bool)
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid weekday number %q", part)
		}
		out[time.Weekday((n+1)%7)] = true
	}
	return out, nil
}
