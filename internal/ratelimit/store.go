// Package ratelimit persists per-property token buckets and 429 pause
// state, shared by every worker through the database.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mnamhq/channelsync/internal/database"
	"github.com/mnamhq/channelsync/internal/model"
)

// Store implements the HTTP client's RateGate over the
// property_rate_states table. Mutations run inside a transaction
// holding the property row lock, so token consumption and pauses are
// observed consistently across workers.
type Store struct {
	db      *gorm.DB
	log     zerolog.Logger
	now     func() time.Time
	rowLock bool
}

// NewStore wires a Store. A nil clock means wall time.
func NewStore(db *gorm.DB, logger zerolog.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		db:      db,
		log:     logger.With().Str("component", "ratelimit").Logger(),
		now:     now,
		rowLock: database.SupportsRowLocking(db),
	}
}

// IsPaused reports whether the property is rate-paused and for how much
// longer. Properties without state are never paused.
func (s *Store) IsPaused(ctx context.Context, propertyID string) (bool, time.Duration, error) {
	var state model.PropertyRateState
	err := s.db.WithContext(ctx).
		Where("external_property_id = ?", propertyID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("load rate state: %w", err)
	}
	now := s.now()
	if state.PausedUntil != nil && state.PausedUntil.After(now) {
		return true, state.PausedUntil.Sub(now), nil
	}
	return false, 0, nil
}

// TryConsume refills the bucket, then takes one token if available.
// When empty it returns false plus the time until the next full token.
func (s *Store) TryConsume(ctx context.Context, propertyID, bucket string) (bool, time.Duration, error) {
	var (
		granted bool
		wait    time.Duration
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.lockState(tx, propertyID)
		if err != nil {
			return err
		}
		tokens, lastRefill, err := bucketFields(state, bucket)
		if err != nil {
			return err
		}
		refill(tokens, lastRefill, s.now())

		if *tokens >= 1 {
			*tokens--
			state.TotalRequests++
			granted = true
		} else {
			missing := 1 - *tokens
			wait = time.Duration(missing * 60.0 / model.RateRefillPerMinute * float64(time.Second))
		}
		return tx.Save(state).Error
	})
	if err != nil {
		return false, 0, err
	}
	return granted, wait, nil
}

// PauseOn429 escalates the pause: 60s doubling per consecutive pause,
// capped at 600s. Returns the pause duration applied.
func (s *Store) PauseOn429(ctx context.Context, propertyID string) (time.Duration, error) {
	var pauseFor time.Duration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.lockState(tx, propertyID)
		if err != nil {
			return err
		}
		now := s.now()
		state.PauseCount++
		pauseFor = time.Duration(pauseSeconds(state.PauseCount)) * time.Second
		until := now.Add(pauseFor)
		state.PausedUntil = &until
		state.Last429At = &now
		state.Total429s++

		s.log.Warn().
			Str("property_id", propertyID).
			Int("pause_count", state.PauseCount).
			Dur("paused_for", pauseFor).
			Msg("property paused after 429")
		return tx.Save(state).Error
	})
	if err != nil {
		return 0, err
	}
	return pauseFor, nil
}

// ClearPause drops an elapsed pause and decays pause_count by one. The
// count never snaps to zero in one step, so a property that keeps
// tripping 429s escalates instead of thrashing. An active pause is left
// untouched.
func (s *Store) ClearPause(ctx context.Context, propertyID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if s.rowLock {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var state model.PropertyRateState
		err := q.Where("external_property_id = ?", propertyID).First(&state).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock rate state: %w", err)
		}

		now := s.now()
		if state.PausedUntil != nil && state.PausedUntil.After(now) {
			return nil
		}
		if state.PausedUntil == nil && state.PauseCount == 0 {
			return nil
		}
		state.PausedUntil = nil
		if state.PauseCount > 0 {
			state.PauseCount--
		}
		return tx.Save(&state).Error
	})
}

// Refill updates one bucket to its current level and persists it.
// Returns the refreshed token count.
func (s *Store) Refill(ctx context.Context, propertyID, bucket string) (float64, error) {
	var level float64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.lockState(tx, propertyID)
		if err != nil {
			return err
		}
		tokens, lastRefill, err := bucketFields(state, bucket)
		if err != nil {
			return err
		}
		refill(tokens, lastRefill, s.now())
		level = *tokens
		return tx.Save(state).Error
	})
	if err != nil {
		return 0, err
	}
	return level, nil
}

// Snapshot returns a refreshed view of the property state without
// consuming tokens or writing anything.
func (s *Store) Snapshot(ctx context.Context, propertyID string) (*model.PropertyRateState, error) {
	var state model.PropertyRateState
	err := s.db.WithContext(ctx).
		Where("external_property_id = ?", propertyID).
		First(&state).Error
	if err != nil {
		return nil, err
	}
	now := s.now()
	refill(&state.PriceTokens, &state.PriceLastRefillAt, now)
	refill(&state.AvailTokens, &state.AvailLastRefillAt, now)
	return &state, nil
}

// Paused lists the properties whose pause is still active.
func (s *Store) Paused(ctx context.Context) ([]model.PropertyRateState, error) {
	var states []model.PropertyRateState
	err := s.db.WithContext(ctx).
		Where("paused_until IS NOT NULL AND paused_until > ?", s.now()).
		Order("paused_until").
		Find(&states).Error
	if err != nil {
		return nil, fmt.Errorf("list paused properties: %w", err)
	}
	return states, nil
}

// lockState loads the property row under FOR UPDATE, seeding a full
// bucket on first contact. The seed insert is ON CONFLICT DO NOTHING so
// a concurrent first contact cannot abort the transaction.
func (s *Store) lockState(tx *gorm.DB, propertyID string) (*model.PropertyRateState, error) {
	q := tx
	if s.rowLock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var state model.PropertyRateState
	err := q.Where("external_property_id = ?", propertyID).First(&state).Error
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lock rate state: %w", err)
	}

	now := s.now()
	seed := model.PropertyRateState{
		ExternalPropertyID: propertyID,
		PriceTokens:        model.RateBucketCapacity,
		PriceLastRefillAt:  now,
		AvailTokens:        model.RateBucketCapacity,
		AvailLastRefillAt:  now,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_property_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("seed rate state: %w", err)
	}
	if err := q.Where("external_property_id = ?", propertyID).First(&state).Error; err != nil {
		return nil, fmt.Errorf("reload rate state: %w", err)
	}
	return &state, nil
}

func bucketFields(state *model.PropertyRateState, bucket string) (*float64, *time.Time, error) {
	switch bucket {
	case model.RateBucketPrice:
		return &state.PriceTokens, &state.PriceLastRefillAt, nil
	case model.RateBucketAvail:
		return &state.AvailTokens, &state.AvailLastRefillAt, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate bucket %q", bucket)
	}
}

// refill credits elapsed time at the refill rate, capped at capacity.
func refill(tokens *float64, lastRefill *time.Time, now time.Time) {
	elapsed := now.Sub(*lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	*tokens = math.Min(model.RateBucketCapacity, *tokens+elapsed*(model.RateRefillPerMinute/60.0))
	*lastRefill = now
}

// pauseSeconds is 60 * 2^(count-1) capped at 600.
func pauseSeconds(count int) int {
	if count < 1 {
		count = 1
	}
	secs := model.RatePauseBaseSeconds
	for i := 1; i < count; i++ {
		secs *= 2
		if secs >= model.RatePauseMaxSeconds {
			return model.RatePauseMaxSeconds
		}
	}
	if secs > model.RatePauseMaxSeconds {
		return model.RatePauseMaxSeconds
	}
	return secs
}
