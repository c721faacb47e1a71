package channex

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mnamhq/channelsync/internal/timeutil"
)

// DefaultMaxPayloadBytes caps the serialized size of one push request.
const DefaultMaxPayloadBytes = 10_000_000

// RatePoint is one per-day rate tuple before compression.
type RatePoint struct {
	Date time.Time
	Rate decimal.Decimal
}

// AvailPoint is one per-day availability tuple before compression.
type AvailPoint struct {
	Date      time.Time
	Available int
}

// RateRange is a compressed run of consecutive dates sharing one rate.
// From and To are inclusive.
type RateRange struct {
	From time.Time
	To   time.Time
	Rate decimal.Decimal
}

// AvailRange is a compressed run of consecutive dates sharing one
// availability flag.
type AvailRange struct {
	From      time.Time
	To        time.Time
	Available int
}

// CompressRates merges consecutive same-rate dates into inclusive
// ranges. Input order does not matter; output is sorted by date and
// deterministic. A one-day gap always breaks the range.
func CompressRates(points []RatePoint) []RateRange {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]RatePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	out := make([]RateRange, 0, len(sorted))
	cur := RateRange{From: sorted[0].Date, To: sorted[0].Date, Rate: sorted[0].Rate}
	for _, p := range sorted[1:] {
		if timeutil.DaysBetween(cur.To, p.Date) == 1 && p.Rate.Equal(cur.Rate) {
			cur.To = p.Date
			continue
		}
		out = append(out, cur)
		cur = RateRange{From: p.Date, To: p.Date, Rate: p.Rate}
	}
	return append(out, cur)
}

// ExpandRates is the inverse of CompressRates.
func ExpandRates(ranges []RateRange) []RatePoint {
	var out []RatePoint
	for _, r := range ranges {
		for d := r.From; !d.After(r.To); d = timeutil.AddDays(d, 1) {
			out = append(out, RatePoint{Date: d, Rate: r.Rate})
		}
	}
	return out
}

// CompressAvailability merges consecutive same-value dates into
// inclusive ranges.
func CompressAvailability(points []AvailPoint) []AvailRange {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]AvailPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	out := make([]AvailRange, 0, len(sorted))
	cur := AvailRange{From: sorted[0].Date, To: sorted[0].Date, Available: sorted[0].Available}
	for _, p := range sorted[1:] {
		if timeutil.DaysBetween(cur.To, p.Date) == 1 && p.Available == cur.Available {
			cur.To = p.Date
			continue
		}
		out = append(out, cur)
		cur = AvailRange{From: p.Date, To: p.Date, Available: p.Available}
	}
	return append(out, cur)
}

// ExpandAvailability is the inverse of CompressAvailability.
func ExpandAvailability(ranges []AvailRange) []AvailPoint {
	var out []AvailPoint
	for _, r := range ranges {
		for d := r.From; !d.After(r.To); d = timeutil.AddDays(d, 1) {
			out = append(out, AvailPoint{Date: d, Available: r.Available})
		}
	}
	return out
}

// BuildRestrictionValues compresses per-day rates for one rate plan into
// wire values. Single-day runs emit date; longer runs emit
// date_from/date_to. Rates are fixed to two decimals.
func BuildRestrictionValues(propertyID, ratePlanID string, points []RatePoint) []RestrictionValue {
	ranges := CompressRates(points)
	out := make([]RestrictionValue, 0, len(ranges))
	for _, r := range ranges {
		v := RestrictionValue{
			PropertyID: propertyID,
			RatePlanID: ratePlanID,
			Rate:       r.Rate.StringFixed(2),
		}
		if r.From.Equal(r.To) {
			v.Date = timeutil.FormatDate(r.From)
		} else {
			v.DateFrom = timeutil.FormatDate(r.From)
			v.DateTo = timeutil.FormatDate(r.To)
		}
		out = append(out, v)
	}
	return out
}

// BuildAvailabilityValues compresses per-day availability for one room
// type into wire values.
func BuildAvailabilityValues(propertyID, roomTypeID string, points []AvailPoint) []AvailabilityValue {
	ranges := CompressAvailability(points)
	out := make([]AvailabilityValue, 0, len(ranges))
	for _, r := range ranges {
		v := AvailabilityValue{
			PropertyID:   propertyID,
			RoomTypeID:   roomTypeID,
			Availability: r.Available,
		}
		if r.From.Equal(r.To) {
			v.Date = timeutil.FormatDate(r.From)
		} else {
			v.DateFrom = timeutil.FormatDate(r.From)
			v.DateTo = timeutil.FormatDate(r.To)
		}
		out = append(out, v)
	}
	return out
}

// envelopeOverhead is the serialized size of the `{"values":[]}` wrapper.
const envelopeOverhead = len(`{"values":[]}`)

// SplitRestrictionValues packs values into chunks whose serialized
// request size stays at or under maxBytes. Order is preserved.
func SplitRestrictionValues(values []RestrictionValue, maxBytes int) [][]RestrictionValue {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	var (
		chunks  [][]RestrictionValue
		current []RestrictionValue
		size    = envelopeOverhead
	)
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		added := len(b)
		if len(current) > 0 {
			added++ // comma
		}
		if len(current) > 0 && size+added > maxBytes {
			chunks = append(chunks, current)
			current = nil
			size = envelopeOverhead
			added = len(b)
		}
		current = append(current, v)
		size += added
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// SplitAvailabilityValues packs values into chunks whose serialized
// request size stays at or under maxBytes.
func SplitAvailabilityValues(values []AvailabilityValue, maxBytes int) [][]AvailabilityValue {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	var (
		chunks  [][]AvailabilityValue
		current []AvailabilityValue
		size    = envelopeOverhead
	)
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		added := len(b)
		if len(current) > 0 {
			added++
		}
		if len(current) > 0 && size+added > maxBytes {
			chunks = append(chunks, current)
			current = nil
			size = envelopeOverhead
			added = len(b)
		}
		current = append(current, v)
		size += added
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
