package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
)

// CreateQueueRequest payload.
type CreateQueueRequest struct {
	BusinessID            string `json:"business_id"`
	Name                  string `json:"name"`
	Purpose               string `json:"purpose"`
	AvgServiceTimeMinutes int    `json:"avg_service_time_minutes"`
	MaxTokensPerDay       int    `json:"max_tokens_per_day"`
	AllowPriority         bool   `json:"allow_priority"`
}

// UpdateQueueRequest carries the owner-editable settings; nil fields are
// left unchanged.
type UpdateQueueRequest struct {
	Name                  *string `json:"name"`
	Purpose               *string `json:"purpose"`
	AvgServiceTimeMinutes *int    `json:"avg_service_time_minutes"`
	MaxTokensPerDay       *int    `json:"max_tokens_per_day"`
	AllowPriority         *bool   `json:"allow_priority"`
}

// SetQueueStatusRequest payload.
type SetQueueStatusRequest struct {
	Status domain.QueueStatus `json:"status"`
}

// AdvanceRequest payload.
type AdvanceRequest struct {
	SkipCurrent bool `json:"skip_current"`
}

// QueueResponse represents one queue.
type QueueResponse struct {
	ID                    string             `json:"id"`
	DisplayID             string             `json:"display_id"`
	BusinessID            string             `json:"business_id"`
	Name                  string             `json:"name"`
	Purpose               string             `json:"purpose,omitempty"`
	CurrentToken          int                `json:"current_token"`
	Status                domain.QueueStatus `json:"status"`
	AvgServiceTimeMinutes int                `json:"avg_service_time_minutes"`
	MaxTokensPerDay       int                `json:"max_tokens_per_day"`
	AllowPriority         bool               `json:"allow_priority"`
	CreatedAt             time.Time          `json:"created_at"`
}

// QueueOverviewResponse pairs a queue with its live waiting count.
type QueueOverviewResponse struct {
	QueueResponse
	WaitingCount int `json:"waiting_count"`
}

// QueueSnapshotResponse is the public projection.
type QueueSnapshotResponse struct {
	QueueResponse
	WaitingCount         int             `json:"waiting_count"`
	EstimatedWaitMinutes int             `json:"estimated_wait_minutes"`
	NextTokens           []TokenResponse `json:"next_tokens"`
}

// AdvanceResponse reports one serving-pointer move.
type AdvanceResponse struct {
	Queue   QueueResponse `json:"queue"`
	Serving TokenResponse `json:"serving"`
}

// AuditEntryResponse represents one activity record.
type AuditEntryResponse struct {
	ID        string             `json:"id"`
	Action    domain.AuditAction `json:"action"`
	QueueID   string             `json:"queue_id,omitempty"`
	TokenID   string             `json:"token_id,omitempty"`
	ActorID   string             `json:"actor_id,omitempty"`
	ActorRole domain.Role        `json:"actor_role,omitempty"`
	FromToken int                `json:"from_token,omitempty"`
	ToToken   int                `json:"to_token,omitempty"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// NewQueueResponse maps the domain model.
func NewQueueResponse(queue *domain.Queue) QueueResponse {
	return QueueResponse{
		ID:                    queue.ID,
		DisplayID:             queue.DisplayID,
		BusinessID:            queue.BusinessID,
		Name:                  queue.Name,
		Purpose:               queue.Purpose,
		CurrentToken:          queue.CurrentToken,
		Status:                queue.Status,
		AvgServiceTimeMinutes: queue.AvgServiceTimeMinutes,
		MaxTokensPerDay:       queue.MaxTokensPerDay,
		AllowPriority:         queue.AllowPriority,
		CreatedAt:             queue.CreatedAt,
	}
}

// NewQueueSnapshotResponse maps the service projection.
func NewQueueSnapshotResponse(snapshot *service.QueueSnapshot) QueueSnapshotResponse {
	return QueueSnapshotResponse{
		QueueResponse:        NewQueueResponse(&snapshot.Queue),
		WaitingCount:         snapshot.WaitingCount,
		EstimatedWaitMinutes: snapshot.EstimatedWaitMinutes,
		NextTokens:           NewTokenListResponse(snapshot.NextTokens),
	}
}

// NewQueueOverviewListResponse maps the dashboard listing.
func NewQueueOverviewListResponse(overviews []service.QueueOverview) []QueueOverviewResponse {
	result := make([]QueueOverviewResponse, 0, len(overviews))
	for i := range overviews {
		result = append(result, QueueOverviewResponse{
			QueueResponse: NewQueueResponse(&overviews[i].Queue),
			WaitingCount:  overviews[i].WaitingCount,
		})
	}
	return result
}

// NewAuditEntryListResponse maps the activity trail.
func NewAuditEntryListResponse(entries []domain.AuditEntry) []AuditEntryResponse {
	result := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		result = append(result, AuditEntryResponse{
			ID:        entry.ID,
			Action:    entry.Action,
			QueueID:   entry.QueueID,
			TokenID:   entry.TokenID,
			ActorID:   entry.ActorID,
			ActorRole: entry.ActorRole,
			FromToken: entry.FromToken,
			ToToken:   entry.ToToken,
			Metadata:  entry.Metadata,
			CreatedAt: entry.CreatedAt,
		})
	}
	return result
}
