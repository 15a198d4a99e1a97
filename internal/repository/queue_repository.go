package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// QueueAllocation is the queue-side result of atomically claiming the next
// token number.
type QueueAllocation struct {
	TokenNumber           int
	CurrentToken          int
	AvgServiceTimeMinutes int
	BusinessID            string
}

// QueueRepository encapsulates queue persistence.
type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	GetByID(ctx context.Context, id string) (*domain.Queue, error)
	GetByDisplayID(ctx context.Context, displayID string) (*domain.Queue, error)
	ListByBusiness(ctx context.Context, businessID string) ([]domain.Queue, error)
	UpdateSettings(ctx context.Context, id string, update domain.QueueSettingsUpdate) error
	SetStatus(ctx context.Context, id string, status domain.QueueStatus) error
	// AllocateNext atomically claims and increments the queue's next token
	// number. It matches only active queues; pgx.ErrNoRows means the queue
	// is missing or not active, which the caller disambiguates.
	AllocateNext(ctx context.Context, id string) (*QueueAllocation, error)
	// AdvanceCurrent moves the serving pointer from the expected value to
	// the new one. pgx.ErrNoRows signals a compare-and-swap miss.
	AdvanceCurrent(ctx context.Context, id string, from, to int) error
}

type queueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository instantiates repository.
func NewQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &queueRepository{pool: pool}
}

const queueColumns = `id, display_id, business_id, name, purpose, current_token, next_token,
        status, avg_service_time_minutes, max_tokens_per_day, allow_priority, is_active, created_at`

func (r *queueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	const query = `
        INSERT INTO queues (display_id, business_id, name, purpose, status,
            avg_service_time_minutes, max_tokens_per_day, allow_priority)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, current_token, next_token, is_active, created_at`
	return r.pool.QueryRow(ctx, query,
		queue.DisplayID,
		queue.BusinessID,
		queue.Name,
		queue.Purpose,
		queue.Status,
		queue.AvgServiceTimeMinutes,
		queue.MaxTokensPerDay,
		queue.AllowPriority,
	).Scan(&queue.ID, &queue.CurrentToken, &queue.NextToken, &queue.IsActive, &queue.CreatedAt)
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*domain.Queue, error) {
	const query = `SELECT ` + queueColumns + ` FROM queues WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *queueRepository) GetByDisplayID(ctx context.Context, displayID string) (*domain.Queue, error) {
	const query = `SELECT ` + queueColumns + ` FROM queues WHERE display_id=$1 AND is_active`
	return r.fetchSingle(ctx, query, displayID)
}

func (r *queueRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Queue, error) {
	var queue domain.Queue
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&queue.ID,
		&queue.DisplayID,
		&queue.BusinessID,
		&queue.Name,
		&queue.Purpose,
		&queue.CurrentToken,
		&queue.NextToken,
		&queue.Status,
		&queue.AvgServiceTimeMinutes,
		&queue.MaxTokensPerDay,
		&queue.AllowPriority,
		&queue.IsActive,
		&queue.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &queue, nil
}

func (r *queueRepository) ListByBusiness(ctx context.Context, businessID string) ([]domain.Queue, error) {
	const query = `SELECT ` + queueColumns + ` FROM queues
        WHERE business_id=$1 AND is_active ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Queue
	for rows.Next() {
		var queue domain.Queue
		if err := rows.Scan(
			&queue.ID,
			&queue.DisplayID,
			&queue.BusinessID,
			&queue.Name,
			&queue.Purpose,
			&queue.CurrentToken,
			&queue.NextToken,
			&queue.Status,
			&queue.AvgServiceTimeMinutes,
			&queue.MaxTokensPerDay,
			&queue.AllowPriority,
			&queue.IsActive,
			&queue.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, queue)
	}
	return result, rows.Err()
}

func (r *queueRepository) UpdateSettings(ctx context.Context, id string, update domain.QueueSettingsUpdate) error {
	const query = `
        UPDATE queues SET
            name = COALESCE($1, name),
            purpose = COALESCE($2, purpose),
            avg_service_time_minutes = COALESCE($3, avg_service_time_minutes),
            max_tokens_per_day = COALESCE($4, max_tokens_per_day),
            allow_priority = COALESCE($5, allow_priority)
        WHERE id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		update.Name,
		update.Purpose,
		update.AvgServiceTimeMinutes,
		update.MaxTokensPerDay,
		update.AllowPriority,
		id,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *queueRepository) SetStatus(ctx context.Context, id string, status domain.QueueStatus) error {
	const query = `UPDATE queues SET status=$1 WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *queueRepository) AllocateNext(ctx context.Context, id string) (*QueueAllocation, error) {
	// Single-statement read-and-increment; two concurrent calls can never
	// observe the same next_token value.
	const query = `
        UPDATE queues SET next_token = next_token + 1
        WHERE id=$1 AND status='active'
        RETURNING next_token - 1, current_token, avg_service_time_minutes, business_id`
	var alloc QueueAllocation
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&alloc.TokenNumber,
		&alloc.CurrentToken,
		&alloc.AvgServiceTimeMinutes,
		&alloc.BusinessID,
	); err != nil {
		return nil, err
	}
	return &alloc, nil
}

func (r *queueRepository) AdvanceCurrent(ctx context.Context, id string, from, to int) error {
	const query = `UPDATE queues SET current_token=$1 WHERE id=$2 AND current_token=$3`
	cmd, err := r.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
