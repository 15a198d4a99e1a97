package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
)

// BookTokenRequest payload.
type BookTokenRequest struct {
	QueueID    string `json:"queue_id"`
	IsPriority bool   `json:"is_priority"`
	Notes      string `json:"notes"`
}

// TokenResponse represents one token.
type TokenResponse struct {
	ID               string             `json:"id"`
	QueueID          string             `json:"queue_id"`
	BusinessID       string             `json:"business_id"`
	TokenNumber      int                `json:"token_number"`
	Status           domain.TokenStatus `json:"status"`
	IsPriority       bool               `json:"is_priority"`
	CheckInTime      *time.Time         `json:"check_in_time,omitempty"`
	ServiceStartTime *time.Time         `json:"service_start_time,omitempty"`
	ServiceEndTime   *time.Time         `json:"service_end_time,omitempty"`
	EstimatedTime    *time.Time         `json:"estimated_time,omitempty"`
	Notes            string             `json:"notes,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// TokenPositionResponse pairs a token with its live position.
type TokenPositionResponse struct {
	TokenResponse
	PeopleAhead          int `json:"people_ahead"`
	EstimatedWaitMinutes int `json:"estimated_wait_minutes"`
}

// NewTokenResponse maps the domain model.
func NewTokenResponse(token *domain.Token) TokenResponse {
	return TokenResponse{
		ID:               token.ID,
		QueueID:          token.QueueID,
		BusinessID:       token.BusinessID,
		TokenNumber:      token.TokenNumber,
		Status:           token.Status,
		IsPriority:       token.IsPriority,
		CheckInTime:      token.CheckInTime,
		ServiceStartTime: token.ServiceStartTime,
		ServiceEndTime:   token.ServiceEndTime,
		EstimatedTime:    token.EstimatedTime,
		Notes:            token.Notes,
		CreatedAt:        token.CreatedAt,
	}
}

// NewTokenListResponse maps a slice.
func NewTokenListResponse(tokens []domain.Token) []TokenResponse {
	result := make([]TokenResponse, 0, len(tokens))
	for i := range tokens {
		result = append(result, NewTokenResponse(&tokens[i]))
	}
	return result
}

// NewTokenPositionResponse maps the service projection.
func NewTokenPositionResponse(entry *service.TokenWithPosition) TokenPositionResponse {
	return TokenPositionResponse{
		TokenResponse:        NewTokenResponse(&entry.Token),
		PeopleAhead:          entry.PeopleAhead,
		EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
	}
}

// NewTokenPositionListResponse maps a slice of projections.
func NewTokenPositionListResponse(entries []service.TokenWithPosition) []TokenPositionResponse {
	result := make([]TokenPositionResponse, 0, len(entries))
	for i := range entries {
		result = append(result, NewTokenPositionResponse(&entries[i]))
	}
	return result
}
