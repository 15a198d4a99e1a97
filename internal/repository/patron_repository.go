package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// PatronRepository encapsulates account persistence.
type PatronRepository interface {
	Create(ctx context.Context, patron *domain.Patron) error
	GetByID(ctx context.Context, id string) (*domain.Patron, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Patron, error)
	Update(ctx context.Context, patron *domain.Patron) error
}

type patronRepository struct {
	pool *pgxpool.Pool
}

// NewPatronRepository instantiates repository.
func NewPatronRepository(pool *pgxpool.Pool) PatronRepository {
	return &patronRepository{pool: pool}
}

const patronColumns = `id, phone, name, email, role, verified, created_at, updated_at`

func (r *patronRepository) Create(ctx context.Context, patron *domain.Patron) error {
	const query = `
        INSERT INTO patrons (phone, name, email, role, verified)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		patron.Phone,
		patron.Name,
		patron.Email,
		patron.Role,
		patron.Verified,
	).Scan(&patron.ID, &patron.CreatedAt, &patron.UpdatedAt)
}

func (r *patronRepository) GetByID(ctx context.Context, id string) (*domain.Patron, error) {
	const query = `SELECT ` + patronColumns + ` FROM patrons WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *patronRepository) GetByPhone(ctx context.Context, phone string) (*domain.Patron, error) {
	const query = `SELECT ` + patronColumns + ` FROM patrons WHERE phone=$1`
	return r.fetchSingle(ctx, query, phone)
}

func (r *patronRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Patron, error) {
	var patron domain.Patron
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&patron.ID,
		&patron.Phone,
		&patron.Name,
		&patron.Email,
		&patron.Role,
		&patron.Verified,
		&patron.CreatedAt,
		&patron.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &patron, nil
}

func (r *patronRepository) Update(ctx context.Context, patron *domain.Patron) error {
	const query = `
        UPDATE patrons SET name=$1, email=$2, role=$3, verified=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		patron.Name,
		patron.Email,
		patron.Role,
		patron.Verified,
		patron.ID,
	).Scan(&patron.UpdatedAt)
	if err == pgx.ErrNoRows {
		return pgx.ErrNoRows
	}
	return err
}
