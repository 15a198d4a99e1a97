package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// SendOTPRequest payload.
type SendOTPRequest struct {
	Phone string `json:"phone"`
}

// SendOTPResponse acknowledges the code. DemoCode is populated only when
// demo mode is on.
type SendOTPResponse struct {
	Message  string `json:"message"`
	DemoCode string `json:"demo_code,omitempty"`
}

// VerifyOTPRequest payload.
type VerifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// LoginResponse carries the session after a verified code.
type LoginResponse struct {
	AccessToken string         `json:"access_token"`
	ExpiresAt   time.Time      `json:"expires_at"`
	NewAccount  bool           `json:"new_account"`
	Patron      PatronResponse `json:"patron"`
}

// PatronResponse represents the account.
type PatronResponse struct {
	ID        string      `json:"id"`
	Phone     string      `json:"phone"`
	Name      string      `json:"name,omitempty"`
	Email     string      `json:"email,omitempty"`
	Role      domain.Role `json:"role"`
	Verified  bool        `json:"verified"`
	CreatedAt time.Time   `json:"created_at"`
}

// UpdateProfileRequest payload.
type UpdateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// NewPatronResponse maps the domain model.
func NewPatronResponse(patron *domain.Patron) PatronResponse {
	return PatronResponse{
		ID:        patron.ID,
		Phone:     patron.Phone,
		Name:      patron.Name,
		Email:     patron.Email,
		Role:      patron.Role,
		Verified:  patron.Verified,
		CreatedAt: patron.CreatedAt,
	}
}
