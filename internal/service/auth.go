package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mnamhq/channelsync/internal/model"
	"github.com/mnamhq/channelsync/internal/repository"
)

// Auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
	// ErrRefreshInFlight means the same refresh token is being rotated
	// by a concurrent request; the caller should retry with the token
	// that rotation hands back.
	ErrRefreshInFlight = errors.New("refresh already in progress")
)

// ServiceSubject identifies tokens minted from the service API key.
const ServiceSubject = "service"

// TokenPair is an access token plus the refresh token that renews it.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthService issues and verifies the engine's service tokens. Access
// tokens are short-lived JWTs; refresh tokens are opaque, stored
// hashed, and single-use through rotation.
type AuthService struct {
	tokens     *repository.TokenRepository
	jwtSecret  []byte
	apiKey     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewAuthService(tokens *repository.TokenRepository, jwtSecret, apiKey string, accessTTL, refreshTTL time.Duration, logger zerolog.Logger, now func() time.Time) *AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		tokens:     tokens,
		jwtSecret:  []byte(jwtSecret),
		apiKey:     apiKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        logger.With().Str("component", "auth").Logger(),
		now:        now,
	}
}

// IssueForAPIKey exchanges the configured service API key for a token
// pair. The comparison is constant-time.
func (s *AuthService) IssueForAPIKey(ctx context.Context, presented string) (*TokenPair, error) {
	if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(s.apiKey)) != 1 {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, ServiceSubject)
}

// Refresh rotates a refresh token and mints a fresh pair. The old
// token becomes unusable the moment rotation commits; replaying it
// returns ErrTokenInvalid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	now := s.now().UTC()
	next, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	replacement := &model.RefreshToken{
		TokenHash: hashToken(next),
		ExpiresAt: now.Add(s.refreshTTL),
	}
	err = s.tokens.Rotate(ctx, hashToken(refreshToken), replacement, now)
	switch {
	case errors.Is(err, repository.ErrTokenBusy):
		return nil, ErrRefreshInFlight
	case errors.Is(err, repository.ErrTokenUnusable), errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrTokenInvalid
	case err != nil:
		return nil, err
	}

	access, err := s.mintAccess(replacement.Subject, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: next,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token and returns its subject.
func (s *AuthService) VerifyAccess(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// Revoke invalidates every refresh token of a subject. Outstanding
// access tokens ride out their short TTL.
func (s *AuthService) Revoke(ctx context.Context, subject string) error {
	n, err := s.tokens.RevokeAll(ctx, subject, s.now().UTC())
	if err != nil {
		return err
	}
	s.log.Info().Str("subject", subject).Int64("revoked", n).Msg("refresh tokens revoked")
	return nil
}

// PurgeExpired drops refresh tokens past expiry.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now().UTC())
}

func (s *AuthService) issue(ctx context.Context, subject string) (*TokenPair, error) {
	now := s.now().UTC()
	access, err := s.mintAccess(subject, now)
	if err != nil {
		return nil, err
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	err = s.tokens.Create(ctx, &model.RefreshToken{
		Subject:   subject,
		TokenHash: hashToken(refresh),
		ExpiresAt: now.Add(s.refreshTTL),
	})
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *AuthService) mintAccess(subject string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
