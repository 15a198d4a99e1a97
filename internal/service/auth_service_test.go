package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository/memstore"
)

func newAuthTestService() *AuthService {
	cfg := config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 60,
		OTPTTLMinutes:         5,
		OTPMaxAttempts:        3,
		DemoMode:              true,
	}
	return NewAuthService(AuthDependencies{
		PatronRepo:   memstore.New().Patrons(),
		OTPStore:     auth.NewOTPStore(5*time.Minute, 3, true),
		TokenManager: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		Config:       cfg,
	})
}

func TestVerifyOTPCreatesAccountOnFirstLogin(t *testing.T) {
	svc := newAuthTestService()
	ctx := context.Background()

	code, err := svc.SendOTP(ctx, "+15559990001")
	require.NoError(t, err)
	require.Equal(t, "123456", code, "demo mode returns the fixed code")

	result, err := svc.VerifyOTP(ctx, "+15559990001", code)
	require.NoError(t, err)
	assert.True(t, result.NewAccount)
	assert.True(t, result.Patron.Verified)
	assert.Equal(t, domain.RolePatron, result.Patron.Role)
	assert.NotEmpty(t, result.AccessToken)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	// Second login finds the same account.
	code, err = svc.SendOTP(ctx, "+15559990001")
	require.NoError(t, err)
	again, err := svc.VerifyOTP(ctx, "+15559990001", code)
	require.NoError(t, err)
	assert.False(t, again.NewAccount)
	assert.Equal(t, result.Patron.ID, again.Patron.ID)
}

func TestVerifyOTPRejectsWrongCode(t *testing.T) {
	svc := newAuthTestService()
	ctx := context.Background()

	_, err := svc.SendOTP(ctx, "+15559990002")
	require.NoError(t, err)

	_, err = svc.VerifyOTP(ctx, "+15559990002", "999999")
	assert.Equal(t, "UNAUTHORIZED", errCode(t, err))
}

func TestSendOTPValidatesPhone(t *testing.T) {
	svc := newAuthTestService()

	_, err := svc.SendOTP(context.Background(), "not-a-phone")
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))
}

func TestUpdateProfile(t *testing.T) {
	svc := newAuthTestService()
	ctx := context.Background()

	code, err := svc.SendOTP(ctx, "+15559990003")
	require.NoError(t, err)
	login, err := svc.VerifyOTP(ctx, "+15559990003", code)
	require.NoError(t, err)

	name := "Dana"
	updated, err := svc.UpdateProfile(ctx, login.Patron.ID, ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Dana", updated.Name)
	assert.Equal(t, login.Patron.Phone, updated.Phone)
}
