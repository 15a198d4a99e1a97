package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueuesHandler manages queue lifecycle and the staff serving actions.
type QueuesHandler struct {
	service *service.QueueService
	metrics *observability.Metrics
}

// NewQueuesHandler constructs handler.
func NewQueuesHandler(queueService *service.QueueService, metrics *observability.Metrics) *QueuesHandler {
	return &QueuesHandler{service: queueService, metrics: metrics}
}

// Create POST /queues.
func (h *QueuesHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.CreateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.BusinessID == "" || req.Name == "" {
		return apperrors.NewValidationError("business_id and name required", nil)
	}
	queue, err := h.service.Create(c.Context(), principal.Patron.ID, service.CreateQueueInput{
		BusinessID:            req.BusinessID,
		Name:                  req.Name,
		Purpose:               req.Purpose,
		AvgServiceTimeMinutes: req.AvgServiceTimeMinutes,
		MaxTokensPerDay:       req.MaxTokensPerDay,
		AllowPriority:         req.AllowPriority,
	})
	if err != nil {
		return err
	}
	h.record("create")
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewQueueResponse(queue)})
}

// Search GET /queues/search?display_id=Q1KX93F.
func (h *QueuesHandler) Search(c *fiber.Ctx) error {
	displayID := c.Query("display_id")
	if displayID == "" {
		return apperrors.NewValidationError("display_id required", nil)
	}
	snapshot, err := h.service.SearchByDisplayID(c.Context(), displayID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewQueueSnapshotResponse(snapshot)})
}

// Get GET /queues/:id.
func (h *QueuesHandler) Get(c *fiber.Ctx) error {
	snapshot, err := h.service.GetSnapshot(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewQueueSnapshotResponse(snapshot)})
}

// ListByBusiness GET /queues/business/:businessId.
func (h *QueuesHandler) ListByBusiness(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	overviews, err := h.service.ListByBusiness(c.Context(), principal.Patron.ID, c.Params("businessId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewQueueOverviewListResponse(overviews)})
}

// UpdateSettings PUT /queues/:id.
func (h *QueuesHandler) UpdateSettings(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.UpdateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	queue, err := h.service.UpdateSettings(c.Context(), principal.Patron.ID, c.Params("id"), domain.QueueSettingsUpdate{
		Name:                  req.Name,
		Purpose:               req.Purpose,
		AvgServiceTimeMinutes: req.AvgServiceTimeMinutes,
		MaxTokensPerDay:       req.MaxTokensPerDay,
		AllowPriority:         req.AllowPriority,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewQueueResponse(queue)})
}

// Pause POST /queues/:id/pause.
func (h *QueuesHandler) Pause(c *fiber.Ctx) error {
	return h.setStatus(c, domain.QueueStatusPaused)
}

// Resume POST /queues/:id/resume.
func (h *QueuesHandler) Resume(c *fiber.Ctx) error {
	return h.setStatus(c, domain.QueueStatusActive)
}

func (h *QueuesHandler) setStatus(c *fiber.Ctx, status domain.QueueStatus) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	queue, err := h.service.SetStatus(c.Context(), principal.Patron.ID, c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewQueueResponse(queue)})
}

// Advance POST /queues/:id/next.
func (h *QueuesHandler) Advance(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.AdvanceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	result, err := h.service.Advance(c.Context(), principal.Patron.ID, c.Params("id"), req.SkipCurrent)
	if err != nil {
		return err
	}
	h.record("advance")
	return c.JSON(fiber.Map{"data": dto.AdvanceResponse{
		Queue:   dto.NewQueueResponse(result.Queue),
		Serving: dto.NewTokenResponse(result.Serving),
	}})
}

// Skip POST /queues/:id/skip/:tokenNumber.
func (h *QueuesHandler) Skip(c *fiber.Ctx) error {
	return h.forceToken(c, h.service.Skip, "skip")
}

// NoShow POST /queues/:id/noshow/:tokenNumber.
func (h *QueuesHandler) NoShow(c *fiber.Ctx) error {
	return h.forceToken(c, h.service.NoShow, "noshow")
}

func (h *QueuesHandler) forceToken(c *fiber.Ctx, op func(ctx context.Context, actorID, queueID string, tokenNumber int) (*domain.Token, error), name string) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	tokenNumber, err := strconv.Atoi(c.Params("tokenNumber"))
	if err != nil || tokenNumber <= 0 {
		return apperrors.NewValidationError("invalid token number", nil)
	}
	token, err := op(c.Context(), principal.Patron.ID, c.Params("id"), tokenNumber)
	if err != nil {
		return err
	}
	h.record(name)
	return c.JSON(fiber.Map{"data": dto.NewTokenResponse(token)})
}

func (h *QueuesHandler) record(op string) {
	if h.metrics != nil {
		h.metrics.RecordQueueOp(op)
	}
}

// ListActivity GET /queues/:id/activity.
func (h *QueuesHandler) ListActivity(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	entries, err := h.service.ListActivity(c.Context(), principal.Patron.ID, c.Params("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuditEntryListResponse(entries)})
}
