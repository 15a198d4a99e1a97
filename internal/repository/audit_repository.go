package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-service/internal/domain"
)

// AuditRepository is the append-only sink for committed transitions.
// Entries are never updated or deleted.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByQueue(ctx context.Context, queueID string, limit int) ([]domain.AuditEntry, error)
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository instantiates repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

const auditColumns = `id, action, queue_id, token_id, business_id, actor_id, actor_role,
        from_token, to_token, metadata, created_at`

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_entries (action, queue_id, token_id, business_id, actor_id,
            actor_role, from_token, to_token, metadata)
        VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), $6, $7, $8, $9)
        RETURNING id, created_at`
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return r.pool.QueryRow(ctx, query,
		entry.Action,
		entry.QueueID,
		entry.TokenID,
		entry.BusinessID,
		entry.ActorID,
		entry.ActorRole,
		entry.FromToken,
		entry.ToToken,
		metadata,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *auditRepository) ListByQueue(ctx context.Context, queueID string, limit int) ([]domain.AuditEntry, error) {
	const query = `SELECT ` + auditColumns + ` FROM audit_entries
        WHERE queue_id=$1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, queueID, normalizeLimit(limit))
}

func (r *auditRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]domain.AuditEntry, error) {
	const query = `SELECT ` + auditColumns + ` FROM audit_entries
        WHERE business_id=$1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, businessID, normalizeLimit(limit))
}

func (r *auditRepository) list(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows pgx.Rows) ([]domain.AuditEntry, error) {
	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var queueID, tokenID, businessID, actorID *string
		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&queueID,
			&tokenID,
			&businessID,
			&actorID,
			&entry.ActorRole,
			&entry.FromToken,
			&entry.ToToken,
			&entry.Metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.QueueID = deref(queueID)
		entry.TokenID = deref(tokenID)
		entry.BusinessID = deref(businessID)
		entry.ActorID = deref(actorID)
		result = append(result, entry)
	}
	return result, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
