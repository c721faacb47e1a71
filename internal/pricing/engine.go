// Package pricing computes daily unit prices from a policy: weekday
// base, weekend markup, and three evening discount windows.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/timeutil"
)

// Calendar pushes price the day as seen at a fixed morning hour, so a
// calendar generated at 22:00 equals one generated at 09:00.
const calendarReferenceHour = 10

const cacheKeyPrefix = "pricing:calendar:"

var (
	// ErrInvalidStay rejects quotes where check-out is not after check-in.
	ErrInvalidStay = errors.New("check_out must be after check_in")
	// ErrNoPolicy signals a unit without a pricing policy.
	ErrNoPolicy = errors.New("unit has no pricing policy")
)

var oneHundred = decimal.NewFromInt(100)

// CalendarDay is one priced date for a channel push.
type CalendarDay struct {
	Date  time.Time       `json:"-"`
	Price decimal.Decimal `json:"price"`

	// DateStr carries the date through the cache serialization.
	DateStr string `json:"date"`
}

// NightPrice is one night of a quoted stay.
type NightPrice struct {
	Date       time.Time       `json:"date"`
	Price      decimal.Decimal `json:"price"`
	Discounted bool            `json:"discounted"`
}

// Quote is a priced stay, nights in order.
type Quote struct {
	Nights   []NightPrice    `json:"nights"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// Engine prices stays and calendars. The redis client is optional; with
// one present, generated calendars are served read-through.
type Engine struct {
	log      zerolog.Logger
	now      func() time.Time
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewEngine(logger zerolog.Logger, now func() time.Time, cache *redis.Client, cacheTTL time.Duration) *Engine {
	if now == nil {
		now = time.Now
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Engine{
		log:      logger.With().Str("component", "pricing").Logger(),
		now:      now,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// DayPrice is the undiscounted price of one date: base, or base plus
// the weekend markup when the date falls on a configured weekend day.
func DayPrice(policy *model.PricingPolicy, date time.Time) decimal.Decimal {
	base := policy.BaseWeekdayPrice
	if isWeekend(policy, date) {
		markup := policy.WeekendMarkupPercent.Div(oneHundred)
		return base.Mul(decimal.NewFromInt(1).Add(markup))
	}
	return base
}

// DiscountPercent returns the discount window active at a local hour.
func DiscountPercent(policy *model.PricingPolicy, hour int) decimal.Decimal {
	switch {
	case hour >= 23:
		return policy.Discount23Percent
	case hour >= 21:
		return policy.Discount21Percent
	case hour >= 16:
		return policy.Discount16Percent
	default:
		return decimal.Zero
	}
}

// applyDiscount rounds half-up to two decimals after discounting.
func applyDiscount(price, percent decimal.Decimal) decimal.Decimal {
	if percent.IsZero() {
		return price.Round(2)
	}
	factor := decimal.NewFromInt(1).Sub(percent.Div(oneHundred))
	return price.Mul(factor).Round(2)
}

// CalendarPrices generates the channel-facing price per date starting
// at from. Intraday discounts never apply here; the calendar reflects
// the fixed reference hour regardless of when it is generated.
func (e *Engine) CalendarPrices(ctx context.Context, policy *model.PricingPolicy, from time.Time, days int) ([]CalendarDay, error) {
	if policy == nil {
		return nil, ErrNoPolicy
	}
	if days <= 0 {
		return nil, nil
	}

	key := e.calendarKey(policy, from, days)
	if cached, ok := e.cachedCalendar(ctx, key); ok {
		return cached, nil
	}

	out := make([]CalendarDay, 0, days)
	for _, d := range timeutil.DateRange(from, days) {
		out = append(out, CalendarDay{
			Date:    d,
			DateStr: timeutil.FormatDate(d),
			Price:   DayPrice(policy, d).Round(2),
		})
	}
	e.storeCalendar(ctx, key, out)
	return out, nil
}

// QuoteStay prices the nights of [checkIn, checkOut). The intraday
// discount applies only to a night falling on the current local date;
// every other night uses the plain day price.
func (e *Engine) QuoteStay(policy *model.PricingPolicy, checkIn, checkOut time.Time) (*Quote, error) {
	if policy == nil {
		return nil, ErrNoPolicy
	}
	nights := timeutil.DaysBetween(checkIn, checkOut)
	if nights <= 0 {
		return nil, ErrInvalidStay
	}

	loc := policyLocation(policy)
	localNow := e.now().In(loc)
	today := timeutil.DateOnly(localNow)
	discount := DiscountPercent(policy, localNow.Hour())

	quote := &Quote{
		Nights:   make([]NightPrice, 0, nights),
		Total:    decimal.Zero,
		Currency: policy.Currency,
	}
	for _, d := range timeutil.DateRange(timeutil.DateOnly(checkIn), nights) {
		price := DayPrice(policy, d)
		discounted := false
		if d.Equal(today) && discount.IsPositive() {
			price = applyDiscount(price, discount)
			discounted = true
		} else {
			price = price.Round(2)
		}
		quote.Nights = append(quote.Nights, NightPrice{Date: d, Price: price, Discounted: discounted})
		quote.Total = quote.Total.Add(price)
	}
	return quote, nil
}

// InvalidateCalendar drops every cached calendar of one unit.
func (e *Engine) InvalidateCalendar(ctx context.Context, unitID string) {
	if e.cache == nil {
		return
	}
	pattern := cacheKeyPrefix + unitID + ":*"
	iter := e.cache.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		e.log.Debug().Err(err).Msg("calendar cache scan failed")
		return
	}
	if len(keys) > 0 {
		if err := e.cache.Del(ctx, keys...).Err(); err != nil {
			e.log.Debug().Err(err).Msg("calendar cache invalidation failed")
		}
	}
}

func (e *Engine) calendarKey(policy *model.PricingPolicy, from time.Time, days int) string {
	return fmt.Sprintf("%s%s:%s:%d:%d", cacheKeyPrefix, policy.UnitID, timeutil.FormatDate(from), days, policy.UpdatedAt.Unix())
}

func (e *Engine) cachedCalendar(ctx context.Context, key string) ([]CalendarDay, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, err := e.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			e.log.Debug().Err(err).Msg("calendar cache read failed")
		}
		return nil, false
	}
	var days []CalendarDay
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, false
	}
	for i := range days {
		d, err := timeutil.ParseDate(days[i].DateStr)
		if err != nil {
			return nil, false
		}
		days[i].Date = d
	}
	return days, true
}

func (e *Engine) storeCalendar(ctx context.Context, key string, days []CalendarDay) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(days)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, raw, e.cacheTTL).Err(); err != nil {
		e.log.Debug().Err(err).Msg("calendar cache write failed")
	}
}

func isWeekend(policy *model.PricingPolicy, date time.Time) bool {
	days := policy.WeekendDays
	if days == "" {
		days = model.DefaultWeekendDays
	}
	set, err := timeutil.ParseWeekdays(days)
	if err != nil {
		set, _ = timeutil.ParseWeekdays(model.DefaultWeekendDays)
	}
	return set[date.Weekday()]
}

func policyLocation(policy *model.PricingPolicy) *time.Location {
	tz := policy.Timezone
	if tz == "" {
		tz = model.DefaultTimezone
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(model.DefaultTimezone); err == nil {
		return loc
	}
	// Riyadh offset; the default zone has no DST so this is exact.
	return time.FixedZone("UTC+3", 3*60*60)
}
