package service

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// BusinessService manages the business directory and staff roster.
type BusinessService struct {
	businesses repository.BusinessRepository
	patrons    repository.PatronRepository
	audit      repository.AuditRepository
	cfg        config.AuthConfig
}

// BusinessDependencies bundles repositories for business service.
type BusinessDependencies struct {
	BusinessRepo repository.BusinessRepository
	PatronRepo   repository.PatronRepository
	AuditRepo    repository.AuditRepository
	Config       config.AuthConfig
}

// CreateBusinessInput describes a directory registration.
type CreateBusinessInput struct {
	Name        string
	Description string
	Category    domain.BusinessCategory
}

// AssignStaffInput adds a patron to the business roster.
type AssignStaffInput struct {
	BusinessID string
	Phone      string
	AccessPIN  string
}

// NewBusinessService constructs the service.
func NewBusinessService(deps BusinessDependencies) *BusinessService {
	return &BusinessService{
		businesses: deps.BusinessRepo,
		patrons:    deps.PatronRepo,
		audit:      deps.AuditRepo,
		cfg:        deps.Config,
	}
}

// Create registers a business owned by the caller and promotes their
// account to owner.
func (s *BusinessService) Create(ctx context.Context, ownerID string, input CreateBusinessInput) (*domain.Business, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("business name is required", nil)
	}
	category := input.Category
	if category == "" {
		category = domain.CategoryOther
	}

	business := &domain.Business{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Category:    category,
		OwnerID:     ownerID,
	}
	if err := s.businesses.Create(ctx, business); err != nil {
		return nil, apperrors.MapError(err)
	}

	if owner, err := s.patrons.GetByID(ctx, ownerID); err == nil && owner.Role == domain.RolePatron {
		owner.Role = domain.RoleOwner
		_ = s.patrons.Update(ctx, owner)
	}
	return business, nil
}

// Get returns one business.
func (s *BusinessService) Get(ctx context.Context, id string) (*domain.Business, error) {
	business, err := s.businesses.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("business", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return business, nil
}

// List pages through the public directory.
func (s *BusinessService) List(ctx context.Context, limit, offset int) ([]domain.Business, error) {
	businesses, err := s.businesses.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return businesses, nil
}

// ListMine returns the businesses the caller owns or staffs.
func (s *BusinessService) ListMine(ctx context.Context, patronID string) ([]domain.Business, error) {
	owned, err := s.businesses.ListByOwner(ctx, patronID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	staffed, err := s.businesses.ListByStaff(ctx, patronID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	seen := make(map[string]bool, len(owned))
	result := make([]domain.Business, 0, len(owned)+len(staffed))
	for _, b := range owned {
		seen[b.ID] = true
		result = append(result, b)
	}
	for _, b := range staffed {
		if !seen[b.ID] {
			result = append(result, b)
		}
	}
	return result, nil
}

// AssignStaff adds the patron with the given phone to the roster, hashing
// their dashboard PIN. Owner only.
func (s *BusinessService) AssignStaff(ctx context.Context, actorID string, input AssignStaffInput) error {
	business, err := s.Get(ctx, input.BusinessID)
	if err != nil {
		return err
	}
	if business.OwnerID != actorID {
		return apperrors.NewForbidden("only the business owner can manage staff")
	}

	phone, err := normalizePhone(input.Phone)
	if err != nil {
		return err
	}
	staff, err := s.patrons.GetByPhone(ctx, phone)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("patron", map[string]any{"phone": phone})
		}
		return apperrors.MapError(err)
	}

	assignment := &domain.StaffAssignment{
		BusinessID: input.BusinessID,
		PatronID:   staff.ID,
	}
	if pin := strings.TrimSpace(input.AccessPIN); pin != "" {
		hash, err := auth.HashPIN(pin, s.cfg.BcryptCost)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		assignment.AccessPINHash = hash
	}
	if err := s.businesses.AssignStaff(ctx, assignment); err != nil {
		return apperrors.MapError(err)
	}

	if staff.Role == domain.RolePatron {
		staff.Role = domain.RoleStaff
		_ = s.patrons.Update(ctx, staff)
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditStaffAssigned,
		BusinessID: input.BusinessID,
		ActorID:    actorID,
		ActorRole:  domain.RoleOwner,
		Metadata:   map[string]any{"staff_id": staff.ID},
	}); err != nil {
		return err
	}
	return nil
}

// RemoveStaff drops the patron from the roster. Owner only.
func (s *BusinessService) RemoveStaff(ctx context.Context, actorID, businessID, patronID string) error {
	business, err := s.Get(ctx, businessID)
	if err != nil {
		return err
	}
	if business.OwnerID != actorID {
		return apperrors.NewForbidden("only the business owner can manage staff")
	}

	if err := s.businesses.RemoveStaff(ctx, businessID, patronID); err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("staff assignment", nil)
		}
		return apperrors.MapError(err)
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditStaffRemoved,
		BusinessID: businessID,
		ActorID:    actorID,
		ActorRole:  domain.RoleOwner,
		Metadata:   map[string]any{"staff_id": patronID},
	}); err != nil {
		return err
	}
	return nil
}

// VerifyStaffPIN checks the staff dashboard PIN for the caller.
func (s *BusinessService) VerifyStaffPIN(ctx context.Context, businessID, patronID, pin string) error {
	assignment, err := s.businesses.GetStaffAssignment(ctx, businessID, patronID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewForbidden("not on the staff roster")
		}
		return apperrors.MapError(err)
	}
	if assignment.AccessPINHash == "" {
		return nil
	}
	if err := auth.ComparePIN(assignment.AccessPINHash, pin); err != nil {
		return apperrors.NewUnauthorized("incorrect access PIN")
	}
	return nil
}

// ListAudit returns the business-wide audit trail.
func (s *BusinessService) ListAudit(ctx context.Context, actorID, businessID string, limit int) ([]domain.AuditEntry, error) {
	role, err := s.businesses.Membership(ctx, businessID, actorID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("business", nil)
		}
		return nil, apperrors.MapError(err)
	}
	if role == "" {
		return nil, apperrors.NewForbidden("not authorized for this business")
	}
	entries, err := s.audit.ListByBusiness(ctx, businessID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *BusinessService) appendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}
