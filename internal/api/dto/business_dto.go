package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// CreateBusinessRequest payload.
type CreateBusinessRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Category    domain.BusinessCategory `json:"category"`
}

// BusinessResponse represents one directory entry.
type BusinessResponse struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Category    domain.BusinessCategory `json:"category"`
	OwnerID     string                  `json:"owner_id"`
	CreatedAt   time.Time               `json:"created_at"`
}

// AssignStaffRequest payload.
type AssignStaffRequest struct {
	Phone     string `json:"phone"`
	AccessPIN string `json:"access_pin"`
}

// VerifyStaffPINRequest payload.
type VerifyStaffPINRequest struct {
	PIN string `json:"pin"`
}

// NewBusinessResponse maps the domain model.
func NewBusinessResponse(business *domain.Business) BusinessResponse {
	return BusinessResponse{
		ID:          business.ID,
		Name:        business.Name,
		Description: business.Description,
		Category:    business.Category,
		OwnerID:     business.OwnerID,
		CreatedAt:   business.CreatedAt,
	}
}

// NewBusinessListResponse maps a slice.
func NewBusinessListResponse(businesses []domain.Business) []BusinessResponse {
	result := make([]BusinessResponse, 0, len(businesses))
	for i := range businesses {
		result = append(result, NewBusinessResponse(&businesses[i]))
	}
	return result
}
