package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// AuthService implements the phone plus one-time-code login flow.
type AuthService struct {
	patrons repository.PatronRepository
	otp     *auth.OTPStore
	tokens  *auth.TokenManager
	cfg     config.AuthConfig
}

// AuthDependencies bundles collaborators for auth service.
type AuthDependencies struct {
	PatronRepo   repository.PatronRepository
	OTPStore     *auth.OTPStore
	TokenManager *auth.TokenManager
	Config       config.AuthConfig
}

// LoginResult carries the issued session after a verified code.
type LoginResult struct {
	Patron      *domain.Patron
	AccessToken string
	ExpiresAt   time.Time
	NewAccount  bool
}

// ProfileUpdate carries the editable patron fields.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// NewAuthService constructs the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	return &AuthService{
		patrons: deps.PatronRepo,
		otp:     deps.OTPStore,
		tokens:  deps.TokenManager,
		cfg:     deps.Config,
	}
}

// SendOTP generates a one-time code for the phone number. In demo mode the
// code is returned to the caller; in production it would go out via SMS.
func (s *AuthService) SendOTP(ctx context.Context, phone string) (string, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return "", err
	}
	code, err := s.otp.Generate(phone)
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	if !s.cfg.DemoMode {
		code = ""
	}
	return code, nil
}

// VerifyOTP checks the code and issues a session token, creating the patron
// account on first login.
func (s *AuthService) VerifyOTP(ctx context.Context, phone, code string) (*LoginResult, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return nil, err
	}

	result := s.otp.Verify(phone, code)
	if !result.Valid {
		return nil, apperrors.NewUnauthorized(result.Message)
	}

	newAccount := false
	patron, err := s.patrons.GetByPhone(ctx, phone)
	switch {
	case err == pgx.ErrNoRows:
		patron = &domain.Patron{
			Phone:    phone,
			Role:     domain.RolePatron,
			Verified: true,
		}
		if err := s.patrons.Create(ctx, patron); err != nil {
			return nil, apperrors.MapError(err)
		}
		newAccount = true
	case err != nil:
		return nil, apperrors.MapError(err)
	case !patron.Verified:
		patron.Verified = true
		if err := s.patrons.Update(ctx, patron); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	accessToken, expiresAt, err := s.tokens.GenerateToken(patron.ID, patron.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{
		Patron:      patron,
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		NewAccount:  newAccount,
	}, nil
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, patronID string) (*domain.Patron, error) {
	patron, err := s.patrons.GetByID(ctx, patronID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("patron", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return patron, nil
}

// UpdateProfile applies name and email changes.
func (s *AuthService) UpdateProfile(ctx context.Context, patronID string, update ProfileUpdate) (*domain.Patron, error) {
	patron, err := s.Me(ctx, patronID)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		patron.Name = strings.TrimSpace(*update.Name)
	}
	if update.Email != nil {
		patron.Email = strings.TrimSpace(*update.Email)
	}
	if err := s.patrons.Update(ctx, patron); err != nil {
		return nil, apperrors.MapError(err)
	}
	return patron, nil
}

func normalizePhone(phone string) (string, error) {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	if !phonePattern.MatchString(phone) {
		return "", apperrors.NewValidationError("invalid phone number", map[string]any{"phone": phone})
	}
	return phone, nil
}
