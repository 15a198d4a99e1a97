package domain

import "time"

// AuditAction captures what kind of transition an audit entry records.
type AuditAction string

const (
	AuditTokenCreated   AuditAction = "token_created"
	AuditTokenCancelled AuditAction = "token_cancelled"
	AuditTokenCheckedIn AuditAction = "token_checked_in"
	AuditTokenSkipped   AuditAction = "token_skipped"
	AuditTokenNoShow    AuditAction = "token_no_show"
	AuditQueueNext      AuditAction = "queue_next"
	AuditQueueCreated   AuditAction = "queue_created"
	AuditQueueUpdated   AuditAction = "queue_updated"
	AuditStaffAssigned  AuditAction = "staff_assigned"
	AuditStaffRemoved   AuditAction = "staff_removed"
)

// AuditEntry is an immutable record of one committed transition. Entries are
// appended once and never updated or deleted.
type AuditEntry struct {
	ID         string
	Action     AuditAction
	QueueID    string
	TokenID    string
	BusinessID string
	ActorID    string
	ActorRole  Role
	// FromToken/ToToken record the serving pointer movement for queue_next;
	// zero for token-level actions.
	FromToken int
	ToToken   int
	Metadata  map[string]any
	CreatedAt time.Time
}
