package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// BusinessRepository encapsulates business directory persistence, including
// the staff membership rows that gate staff-initiated queue operations.
type BusinessRepository interface {
	Create(ctx context.Context, business *domain.Business) error
	GetByID(ctx context.Context, id string) (*domain.Business, error)
	List(ctx context.Context, limit, offset int) ([]domain.Business, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Business, error)
	ListByStaff(ctx context.Context, patronID string) ([]domain.Business, error)
	AssignStaff(ctx context.Context, assignment *domain.StaffAssignment) error
	RemoveStaff(ctx context.Context, businessID, patronID string) error
	GetStaffAssignment(ctx context.Context, businessID, patronID string) (*domain.StaffAssignment, error)
	// Membership reports the caller's relationship to the business:
	// RoleOwner, RoleStaff, or "" for no membership.
	Membership(ctx context.Context, businessID, patronID string) (domain.Role, error)
}

type businessRepository struct {
	pool *pgxpool.Pool
}

// NewBusinessRepository instantiates repository.
func NewBusinessRepository(pool *pgxpool.Pool) BusinessRepository {
	return &businessRepository{pool: pool}
}

const businessColumns = `id, name, description, category, owner_id, is_active, created_at`

func (r *businessRepository) Create(ctx context.Context, business *domain.Business) error {
	const query = `
        INSERT INTO businesses (name, description, category, owner_id)
        VALUES ($1,$2,$3,$4)
        RETURNING id, is_active, created_at`
	return r.pool.QueryRow(ctx, query,
		business.Name,
		business.Description,
		business.Category,
		business.OwnerID,
	).Scan(&business.ID, &business.IsActive, &business.CreatedAt)
}

func (r *businessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	const query = `SELECT ` + businessColumns + ` FROM businesses WHERE id=$1`
	var business domain.Business
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&business.ID,
		&business.Name,
		&business.Description,
		&business.Category,
		&business.OwnerID,
		&business.IsActive,
		&business.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &business, nil
}

func (r *businessRepository) List(ctx context.Context, limit, offset int) ([]domain.Business, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT ` + businessColumns + ` FROM businesses
        WHERE is_active ORDER BY name LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBusinesses(rows)
}

func (r *businessRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Business, error) {
	const query = `SELECT ` + businessColumns + ` FROM businesses
        WHERE owner_id=$1 AND is_active ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBusinesses(rows)
}

func (r *businessRepository) ListByStaff(ctx context.Context, patronID string) ([]domain.Business, error) {
	const query = `
        SELECT b.id, b.name, b.description, b.category, b.owner_id, b.is_active, b.created_at
        FROM businesses b
        JOIN business_staff s ON s.business_id = b.id
        WHERE s.patron_id=$1 AND b.is_active
        ORDER BY s.assigned_at`
	rows, err := r.pool.Query(ctx, query, patronID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBusinesses(rows)
}

func (r *businessRepository) AssignStaff(ctx context.Context, assignment *domain.StaffAssignment) error {
	const query = `
        INSERT INTO business_staff (business_id, patron_id, access_pin_hash)
        VALUES ($1,$2,$3)
        ON CONFLICT (business_id, patron_id) DO UPDATE SET access_pin_hash=EXCLUDED.access_pin_hash
        RETURNING assigned_at`
	return r.pool.QueryRow(ctx, query,
		assignment.BusinessID,
		assignment.PatronID,
		assignment.AccessPINHash,
	).Scan(&assignment.AssignedAt)
}

func (r *businessRepository) RemoveStaff(ctx context.Context, businessID, patronID string) error {
	const query = `DELETE FROM business_staff WHERE business_id=$1 AND patron_id=$2`
	cmd, err := r.pool.Exec(ctx, query, businessID, patronID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *businessRepository) GetStaffAssignment(ctx context.Context, businessID, patronID string) (*domain.StaffAssignment, error) {
	const query = `SELECT business_id, patron_id, access_pin_hash, assigned_at
        FROM business_staff WHERE business_id=$1 AND patron_id=$2`
	var assignment domain.StaffAssignment
	if err := r.pool.QueryRow(ctx, query, businessID, patronID).Scan(
		&assignment.BusinessID,
		&assignment.PatronID,
		&assignment.AccessPINHash,
		&assignment.AssignedAt,
	); err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *businessRepository) Membership(ctx context.Context, businessID, patronID string) (domain.Role, error) {
	business, err := r.GetByID(ctx, businessID)
	if err != nil {
		return "", err
	}
	if business.OwnerID == patronID {
		return domain.RoleOwner, nil
	}
	if _, err := r.GetStaffAssignment(ctx, businessID, patronID); err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return domain.RoleStaff, nil
}

func scanBusinesses(rows pgx.Rows) ([]domain.Business, error) {
	var result []domain.Business
	for rows.Next() {
		var business domain.Business
		if err := rows.Scan(
			&business.ID,
			&business.Name,
			&business.Description,
			&business.Category,
			&business.OwnerID,
			&business.IsActive,
			&business.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, business)
	}
	return result, rows.Err()
}
