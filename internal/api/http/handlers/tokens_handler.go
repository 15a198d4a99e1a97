package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// TokensHandler manages the patron-facing token endpoints.
type TokensHandler struct {
	service *service.TokenService
	metrics *observability.Metrics
}

// NewTokensHandler constructs handler.
func NewTokensHandler(tokenService *service.TokenService, metrics *observability.Metrics) *TokensHandler {
	return &TokensHandler{service: tokenService, metrics: metrics}
}

// Book POST /tokens.
func (h *TokensHandler) Book(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.BookTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.QueueID == "" {
		return apperrors.NewValidationError("queue_id required", nil)
	}
	token, err := h.service.Issue(c.Context(), principal.Patron.ID, service.IssueInput{
		QueueID:    req.QueueID,
		IsPriority: req.IsPriority,
		Notes:      req.Notes,
	})
	if err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordQueueOp("book")
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTokenResponse(token)})
}

// Get GET /tokens/:id.
func (h *TokensHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	entry, err := h.service.GetForPatron(c.Context(), principal.Patron.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenPositionResponse(entry)})
}

// ListActive GET /tokens/my-tokens.
func (h *TokensHandler) ListActive(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	entries, err := h.service.ListActive(c.Context(), principal.Patron.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenPositionListResponse(entries)})
}

// ListHistory GET /tokens/history.
func (h *TokensHandler) ListHistory(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	tokens, err := h.service.ListHistory(c.Context(), principal.Patron.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenListResponse(tokens)})
}

// ListForQueue GET /tokens/queue/:queueId.
func (h *TokensHandler) ListForQueue(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	statuses := parseStatuses(c.Query("status"))
	tokens, err := h.service.ListForQueue(c.Context(), principal.Patron.ID, c.Params("queueId"), statuses)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenListResponse(tokens)})
}

// CheckIn POST /tokens/:id/checkin.
func (h *TokensHandler) CheckIn(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	token, err := h.service.CheckIn(c.Context(), principal.Patron.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenResponse(token)})
}

// ManualCheckIn POST /tokens/:id/manual-checkin.
func (h *TokensHandler) ManualCheckIn(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	token, err := h.service.ManualCheckIn(c.Context(), principal.Patron.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTokenResponse(token)})
}

// Cancel POST /tokens/:id/cancel.
func (h *TokensHandler) Cancel(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	if err := h.service.Cancel(c.Context(), principal.Patron.ID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"cancelled": true}})
}

func parseStatuses(raw string) []domain.TokenStatus {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	statuses := make([]domain.TokenStatus, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			statuses = append(statuses, domain.TokenStatus(part))
		}
	}
	return statuses
}
