package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// BusinessesHandler manages directory and roster endpoints.
type BusinessesHandler struct {
	service *service.BusinessService
}

// NewBusinessesHandler constructs handler.
func NewBusinessesHandler(businessService *service.BusinessService) *BusinessesHandler {
	return &BusinessesHandler{service: businessService}
}

// Create POST /businesses.
func (h *BusinessesHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.CreateBusinessRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	business, err := h.service.Create(c.Context(), principal.Patron.ID, service.CreateBusinessInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewBusinessResponse(business)})
}

// List GET /businesses.
func (h *BusinessesHandler) List(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	businesses, err := h.service.List(c.Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBusinessListResponse(businesses)})
}

// Get GET /businesses/:id.
func (h *BusinessesHandler) Get(c *fiber.Ctx) error {
	business, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBusinessResponse(business)})
}

// ListMine GET /businesses/my-businesses.
func (h *BusinessesHandler) ListMine(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	businesses, err := h.service.ListMine(c.Context(), principal.Patron.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewBusinessListResponse(businesses)})
}

// AssignStaff POST /businesses/:id/staff.
func (h *BusinessesHandler) AssignStaff(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.AssignStaffRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Phone == "" {
		return apperrors.NewValidationError("phone required", nil)
	}
	err := h.service.AssignStaff(c.Context(), principal.Patron.ID, service.AssignStaffInput{
		BusinessID: c.Params("id"),
		Phone:      req.Phone,
		AccessPIN:  req.AccessPIN,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"assigned": true}})
}

// RemoveStaff DELETE /businesses/:id/staff/:patronId.
func (h *BusinessesHandler) RemoveStaff(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	if err := h.service.RemoveStaff(c.Context(), principal.Patron.ID, c.Params("id"), c.Params("patronId")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"removed": true}})
}

// VerifyStaffPIN POST /businesses/:id/staff/verify-pin.
func (h *BusinessesHandler) VerifyStaffPIN(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	var req dto.VerifyStaffPINRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.service.VerifyStaffPIN(c.Context(), c.Params("id"), principal.Patron.ID, req.PIN); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"verified": true}})
}

// ListActivity GET /businesses/:id/activity.
func (h *BusinessesHandler) ListActivity(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Patron == nil {
		return apperrors.NewUnauthorized("login required")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	entries, err := h.service.ListAudit(c.Context(), principal.Patron.ID, c.Params("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuditEntryListResponse(entries)})
}
