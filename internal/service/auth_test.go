package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) authService() *AuthService {
	return NewAuthService(e.repos.Tokens, "jwt-secret", "svc-api-key", 15*time.Minute, 720*time.Hour, zerolog.Nop(), e.clock)
}

func TestAuthIssueAndVerify(t *testing.T) {
	e := newEnv(t)
	svc := e.authService()

	pair, err := svc.IssueForAPIKey(context.Background(), "svc-api-key")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.EqualValues(t, 900, pair.ExpiresIn)
	assert.NotEmpty(t, pair.RefreshToken)

	subject, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, ServiceSubject, subject)
}

func TestAuthRejectsWrongAPIKey(t *testing.T) {
	e := newEnv(t)
	svc := e.authService()

	_, err := svc.IssueForAPIKey(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// With no key configured nothing can authenticate, not even the
	// empty string.
	unconfigured := NewAuthService(e.repos.Tokens, "jwt-secret", "", time.Minute, time.Hour, zerolog.Nop(), e.clock)
	_, err = unconfigured.IssueForAPIKey(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthRefreshRotation(t *testing.T) {
	e := newEnv(t)
	svc := e.authService()
	ctx := context.Background()

	pair, err := svc.IssueForAPIKey(ctx, "svc-api-key")
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	subject, err := svc.VerifyAccess(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, ServiceSubject, subject)

	// The rotated-out token is single use.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// The replacement still works.
	_, err = svc.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthRefreshUnknownToken(t *testing.T) {
	e := newEnv(t)
	svc := e.authService()

	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthAccessTokenExpires(t *testing.T) {
	e := newEnv(t)
	svc := e.authService()

	pair, err := svc.IssueForAPIKey(context.Background(), "svc-api-key")
	require.NoError(t, err)

	// Same secret, clock one hour ahead of the 15 minute TTL.
	later := *e
	later.now = e.now.Add(time.Hour)
	expired := later.authService()

	_, err = expired.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthVerifyRejectsGarbage(t *testing.T) {
	e := newEnv(t)
	svc := e.authService()

	_, err := svc.VerifyAccess("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// A token signed under a different secret fails too.
	other := NewAuthService(e.repos.Tokens, "other-secret", "svc-api-key", time.Minute, time.Hour, zerolog.Nop(), e.clock)
	pair, err := other.IssueForAPIKey(context.Background(), "svc-api-key")
	require.NoError(t, err)
	_, err = svc.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthRevokeAll(t *testing.T) {
	e := newEnv(t)
	svc := e.authService()
	ctx := context.Background()

	pair, err := svc.IssueForAPIKey(ctx, "svc-api-key")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, ServiceSubject))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthPurgeExpired(t *testing.T) {
	e := newEnv(t)
	short := NewAuthService(e.repos.Tokens, "jwt-secret", "svc-api-key", time.Minute, time.Minute, zerolog.Nop(), e.clock)
	ctx := context.Background()

	_, err := short.IssueForAPIKey(ctx, "svc-api-key")
	require.NoError(t, err)

	later := *e
	later.now = e.now.Add(time.Hour)
	purger := later.authService()

	n, err := purger.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
