package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// TokenRepository encapsulates queue-token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *domain.Token) error
	GetByID(ctx context.Context, id string) (*domain.Token, error)
	GetByQueueAndNumber(ctx context.Context, queueID string, number int) (*domain.Token, error)
	// FindActive returns the patron's active token in the queue, or
	// pgx.ErrNoRows when they hold none.
	FindActive(ctx context.Context, patronID, queueID string) (*domain.Token, error)
	// NextEligible returns the waiting or checked-in token with the smallest
	// number strictly greater than after, or pgx.ErrNoRows.
	NextEligible(ctx context.Context, queueID string, after int) (*domain.Token, error)
	ListActiveByPatron(ctx context.Context, patronID string) ([]domain.Token, error)
	ListHistoryByPatron(ctx context.Context, patronID string) ([]domain.Token, error)
	ListByQueue(ctx context.Context, queueID string, statuses []domain.TokenStatus, limit int) ([]domain.Token, error)
	// CountAhead counts waiting/checked-in tokens with a smaller number.
	CountAhead(ctx context.Context, queueID string, beforeNumber int) (int, error)
	CountWaiting(ctx context.Context, queueID string) (int, error)
	// TransitionStatus conditionally moves the token to next when its current
	// status is one of expected, stamping the timestamp that belongs to the
	// target state. Returns false on a miss (optimistic concurrency).
	TransitionStatus(ctx context.Context, id string, expected []domain.TokenStatus, next domain.TokenStatus) (bool, error)
	// CompleteServing finishes the being-served token with the given number,
	// stamping service end time. Returns false when none matched.
	CompleteServing(ctx context.Context, queueID string, number int) (bool, error)
	// ForceStatus sets the status unconditionally, addressed by queue and
	// token number. Staff override path for skip and no-show.
	ForceStatus(ctx context.Context, queueID string, number int, next domain.TokenStatus) (*domain.Token, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository instantiates repository.
func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

const tokenColumns = `id, patron_id, queue_id, business_id, token_number, status, is_priority,
        check_in_time, service_start_time, service_end_time, estimated_time, notes, created_at`

func (r *tokenRepository) Create(ctx context.Context, token *domain.Token) error {
	const query = `
        INSERT INTO tokens (patron_id, queue_id, business_id, token_number, status,
            is_priority, estimated_time, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		token.PatronID,
		token.QueueID,
		token.BusinessID,
		token.TokenNumber,
		token.Status,
		token.IsPriority,
		token.EstimatedTime,
		token.Notes,
	).Scan(&token.ID, &token.CreatedAt)
}

func (r *tokenRepository) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *tokenRepository) GetByQueueAndNumber(ctx context.Context, queueID string, number int) (*domain.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens WHERE queue_id=$1 AND token_number=$2`
	return r.fetchSingle(ctx, query, queueID, number)
}

func (r *tokenRepository) FindActive(ctx context.Context, patronID, queueID string) (*domain.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens
        WHERE patron_id=$1 AND queue_id=$2 AND status = ANY($3)
        LIMIT 1`
	return r.fetchSingle(ctx, query, patronID, queueID, statusStrings(domain.ActiveTokenStatuses))
}

func (r *tokenRepository) NextEligible(ctx context.Context, queueID string, after int) (*domain.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens
        WHERE queue_id=$1 AND token_number > $2 AND status = ANY($3)
        ORDER BY token_number ASC
        LIMIT 1`
	eligible := []string{string(domain.TokenStatusWaiting), string(domain.TokenStatusCheckedIn)}
	return r.fetchSingle(ctx, query, queueID, after, eligible)
}

func (r *tokenRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Token, error) {
	var token domain.Token
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&token.ID,
		&token.PatronID,
		&token.QueueID,
		&token.BusinessID,
		&token.TokenNumber,
		&token.Status,
		&token.IsPriority,
		&token.CheckInTime,
		&token.ServiceStartTime,
		&token.ServiceEndTime,
		&token.EstimatedTime,
		&token.Notes,
		&token.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) ListActiveByPatron(ctx context.Context, patronID string) ([]domain.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens
        WHERE patron_id=$1 AND status = ANY($2)
        ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, patronID, statusStrings(domain.ActiveTokenStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokens(rows)
}

func (r *tokenRepository) ListHistoryByPatron(ctx context.Context, patronID string) ([]domain.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens
        WHERE patron_id=$1 AND status = ANY($2)
        ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, patronID, statusStrings(domain.TerminalTokenStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokens(rows)
}

func (r *tokenRepository) ListByQueue(ctx context.Context, queueID string, statuses []domain.TokenStatus, limit int) ([]domain.Token, error) {
	if len(statuses) == 0 {
		statuses = domain.ActiveTokenStatuses
	}
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT ` + tokenColumns + ` FROM tokens
        WHERE queue_id=$1 AND status = ANY($2)
        ORDER BY token_number ASC
        LIMIT $3`
	rows, err := r.pool.Query(ctx, query, queueID, statusStrings(statuses), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokens(rows)
}

func (r *tokenRepository) CountAhead(ctx context.Context, queueID string, beforeNumber int) (int, error) {
	const query = `SELECT COUNT(*) FROM tokens
        WHERE queue_id=$1 AND token_number < $2 AND status = ANY($3)`
	eligible := []string{string(domain.TokenStatusWaiting), string(domain.TokenStatusCheckedIn)}
	var count int
	err := r.pool.QueryRow(ctx, query, queueID, beforeNumber, eligible).Scan(&count)
	return count, err
}

func (r *tokenRepository) CountWaiting(ctx context.Context, queueID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tokens WHERE queue_id=$1 AND status = ANY($2)`
	eligible := []string{string(domain.TokenStatusWaiting), string(domain.TokenStatusCheckedIn)}
	var count int
	err := r.pool.QueryRow(ctx, query, queueID, eligible).Scan(&count)
	return count, err
}

func (r *tokenRepository) TransitionStatus(ctx context.Context, id string, expected []domain.TokenStatus, next domain.TokenStatus) (bool, error) {
	const query = `
        UPDATE tokens SET status=$2,
            check_in_time      = CASE WHEN $2='checked-in'   THEN NOW() ELSE check_in_time END,
            service_start_time = CASE WHEN $2='being-served' THEN NOW() ELSE service_start_time END,
            service_end_time   = CASE WHEN $2='completed'    THEN NOW() ELSE service_end_time END
        WHERE id=$1 AND status = ANY($3)`
	cmd, err := r.pool.Exec(ctx, query, id, next, statusStrings(expected))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *tokenRepository) CompleteServing(ctx context.Context, queueID string, number int) (bool, error) {
	const query = `
        UPDATE tokens SET status='completed', service_end_time=NOW()
        WHERE queue_id=$1 AND token_number=$2 AND status='being-served'`
	cmd, err := r.pool.Exec(ctx, query, queueID, number)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *tokenRepository) ForceStatus(ctx context.Context, queueID string, number int, next domain.TokenStatus) (*domain.Token, error) {
	const query = `
        UPDATE tokens SET status=$3
        WHERE queue_id=$1 AND token_number=$2
        RETURNING ` + tokenColumns
	return r.fetchSingle(ctx, query, queueID, number, next)
}

func scanTokens(rows pgx.Rows) ([]domain.Token, error) {
	var result []domain.Token
	for rows.Next() {
		var token domain.Token
		if err := rows.Scan(
			&token.ID,
			&token.PatronID,
			&token.QueueID,
			&token.BusinessID,
			&token.TokenNumber,
			&token.Status,
			&token.IsPriority,
			&token.CheckInTime,
			&token.ServiceStartTime,
			&token.ServiceEndTime,
			&token.EstimatedTime,
			&token.Notes,
			&token.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, token)
	}
	return result, rows.Err()
}

func statusStrings(statuses []domain.TokenStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
