package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/database"
	"github.com/mnamhq/channelsync/internal/model"
)

// Rotation failures the auth service turns into API errors.
var (
	// ErrTokenUnusable means the presented token was already rotated,
	// revoked, or has expired.
	ErrTokenUnusable = errors.New("refresh token unusable")
	// ErrTokenBusy means another rotation holds the row right now.
	ErrTokenBusy = errors.New("refresh token locked by concurrent rotation")
)

// TokenRepository owns refresh_tokens.
type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, t *model.RefreshToken) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// Rotate exchanges one token for its replacement. The row is locked
// with NOWAIT so a concurrent rotation of the same token fails fast
// with ErrTokenBusy instead of queueing; a token that is expired,
// revoked, or already rotated returns ErrTokenUnusable.
func (r *TokenRepository) Rotate(ctx context.Context, tokenHash string, replacement *model.RefreshToken, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.RefreshToken
		err := noWaitLock(tx).
			Where("token_hash = ?", tokenHash).
			First(&current).Error
		if database.IsLockNotAvailable(err) {
			return ErrTokenBusy
		}
		if err != nil {
			return err
		}
		if !current.Usable(now) {
			return ErrTokenUnusable
		}

		err = tx.Model(&model.RefreshToken{}).
			Where("id = ?", current.ID).
			Update("rotated_at", now).Error
		if err != nil {
			return err
		}

		replacement.Subject = current.Subject
		return tx.Create(replacement).Error
	})
}

// FindByHash returns the token row, nil when unknown.
func (r *TokenRepository) FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RevokeAll revokes every live token of a subject.
func (r *TokenRepository) RevokeAll(ctx context.Context, subject string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("subject = ? AND revoked_at IS NULL", subject).
		Update("revoked_at", now)
	return res.RowsAffected, res.Error
}

// DeleteExpired removes tokens past their expiry.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.RefreshToken{})
	return res.RowsAffected, res.Error
}
