package service

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// TokenService coordinates the patron-facing token workflows: booking,
// check-in, cancellation and the read projections.
type TokenService struct {
	tokens     repository.TokenRepository
	queues     repository.QueueRepository
	businesses repository.BusinessRepository
	audit      repository.AuditRepository
	publisher  events.Publisher
	locks      *QueueLocks
	cfg        config.QueueConfig
}

// TokenDependencies bundles repositories for token service.
type TokenDependencies struct {
	TokenRepo    repository.TokenRepository
	QueueRepo    repository.QueueRepository
	BusinessRepo repository.BusinessRepository
	AuditRepo    repository.AuditRepository
	Publisher    events.Publisher
	Locks        *QueueLocks
	Config       config.QueueConfig
}

// IssueInput describes a booking request.
type IssueInput struct {
	QueueID    string
	IsPriority bool
	Notes      string
}

// TokenWithPosition pairs a token with the count of people ahead of it.
type TokenWithPosition struct {
	Token                domain.Token
	PeopleAhead          int
	EstimatedWaitMinutes int
}

// NewTokenService constructs the service.
func NewTokenService(deps TokenDependencies) *TokenService {
	locks := deps.Locks
	if locks == nil {
		locks = NewQueueLocks()
	}
	return &TokenService{
		tokens:     deps.TokenRepo,
		queues:     deps.QueueRepo,
		businesses: deps.BusinessRepo,
		audit:      deps.AuditRepo,
		publisher:  deps.Publisher,
		locks:      locks,
		cfg:        deps.Config,
	}
}

// Issue books a new token for the patron. The duplicate-booking check, the
// counter increment and the insert form one atomic unit per queue.
func (s *TokenService) Issue(ctx context.Context, patronID string, input IssueInput) (*domain.Token, error) {
	unlock := s.locks.Lock(input.QueueID)
	token, serving, err := s.issueLocked(ctx, patronID, input)
	unlock()
	if err != nil {
		return nil, err
	}

	// Fanout happens after the commit, outside the critical section.
	s.publish(events.Event{
		Type:         events.EventTokenCreated,
		QueueID:      token.QueueID,
		TokenID:      token.ID,
		TokenNumber:  token.TokenNumber,
		CurrentToken: serving,
	})
	return token, nil
}

func (s *TokenService) issueLocked(ctx context.Context, patronID string, input IssueInput) (*domain.Token, int, error) {
	queue, err := s.queues.GetByID(ctx, input.QueueID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, 0, apperrors.NewNotFound("queue", map[string]any{"queue_id": input.QueueID})
		}
		return nil, 0, apperrors.MapError(err)
	}
	if queue.Status != domain.QueueStatusActive {
		return nil, 0, apperrors.NewQueueInactive(string(queue.Status))
	}

	existing, err := s.tokens.FindActive(ctx, patronID, input.QueueID)
	if err == nil {
		return nil, 0, apperrors.NewDuplicateActiveToken(existing.TokenNumber)
	}
	if err != pgx.ErrNoRows {
		return nil, 0, apperrors.MapError(err)
	}

	alloc, err := s.queues.AllocateNext(ctx, input.QueueID)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Queue flipped away from active between the read and the claim.
			return nil, 0, apperrors.NewQueueInactive("")
		}
		return nil, 0, apperrors.MapError(err)
	}

	estimatedMinutes := (alloc.TokenNumber - alloc.CurrentToken) * alloc.AvgServiceTimeMinutes
	estimated := time.Now().Add(time.Duration(estimatedMinutes) * time.Minute)

	token := &domain.Token{
		PatronID:      patronID,
		QueueID:       input.QueueID,
		BusinessID:    alloc.BusinessID,
		TokenNumber:   alloc.TokenNumber,
		Status:        domain.TokenStatusWaiting,
		IsPriority:    input.IsPriority,
		EstimatedTime: &estimated,
		Notes:         strings.TrimSpace(input.Notes),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, 0, apperrors.MapError(err)
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditTokenCreated,
		QueueID:    token.QueueID,
		TokenID:    token.ID,
		BusinessID: token.BusinessID,
		ActorID:    patronID,
		ActorRole:  domain.RolePatron,
		Metadata: map[string]any{
			"token_number": token.TokenNumber,
			"is_priority":  token.IsPriority,
		},
	}); err != nil {
		return nil, 0, err
	}
	return token, alloc.CurrentToken, nil
}

// CheckIn transitions the patron's own token from waiting to checked-in.
// The second call fails with INVALID_STATE and leaves the first check-in
// timestamp untouched.
func (s *TokenService) CheckIn(ctx context.Context, patronID, tokenID string) (*domain.Token, error) {
	token, err := s.ownedToken(ctx, patronID, tokenID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, token,
		[]domain.TokenStatus{domain.TokenStatusWaiting}, domain.TokenStatusCheckedIn,
		"token is not in waiting status")
	if err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditTokenCheckedIn,
		QueueID:    updated.QueueID,
		TokenID:    updated.ID,
		BusinessID: updated.BusinessID,
		ActorID:    patronID,
		ActorRole:  domain.RolePatron,
		Metadata:   map[string]any{"token_number": updated.TokenNumber},
	}); err != nil {
		return nil, err
	}
	s.publish(events.Event{
		Type:        events.EventTokenCheckedIn,
		QueueID:     updated.QueueID,
		TokenID:     updated.ID,
		TokenNumber: updated.TokenNumber,
	})
	return updated, nil
}

// ManualCheckIn is the staff-side check-in, identical in effect and
// distinguished only in the audit metadata.
func (s *TokenService) ManualCheckIn(ctx context.Context, actorID, tokenID string) (*domain.Token, error) {
	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("token", nil)
		}
		return nil, apperrors.MapError(err)
	}

	role, err := s.membership(ctx, token.BusinessID, actorID)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, token,
		[]domain.TokenStatus{domain.TokenStatusWaiting}, domain.TokenStatusCheckedIn,
		"token is not in waiting status")
	if err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditTokenCheckedIn,
		QueueID:    updated.QueueID,
		TokenID:    updated.ID,
		BusinessID: updated.BusinessID,
		ActorID:    actorID,
		ActorRole:  role,
		Metadata: map[string]any{
			"token_number": updated.TokenNumber,
			"manual":       true,
		},
	}); err != nil {
		return nil, err
	}
	s.publish(events.Event{
		Type:        events.EventTokenCheckedIn,
		QueueID:     updated.QueueID,
		TokenID:     updated.ID,
		TokenNumber: updated.TokenNumber,
	})
	return updated, nil
}

// Cancel releases the patron's place in line. Only waiting and checked-in
// tokens can be cancelled.
func (s *TokenService) Cancel(ctx context.Context, patronID, tokenID string) error {
	token, err := s.ownedToken(ctx, patronID, tokenID)
	if err != nil {
		return err
	}

	updated, err := s.transition(ctx, token,
		[]domain.TokenStatus{domain.TokenStatusWaiting, domain.TokenStatusCheckedIn},
		domain.TokenStatusCancelled,
		"cannot cancel this token")
	if err != nil {
		return err
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditTokenCancelled,
		QueueID:    updated.QueueID,
		TokenID:    updated.ID,
		BusinessID: updated.BusinessID,
		ActorID:    patronID,
		ActorRole:  domain.RolePatron,
		Metadata:   map[string]any{"token_number": updated.TokenNumber},
	}); err != nil {
		return err
	}
	s.publish(events.Event{
		Type:        events.EventTokenCancelled,
		QueueID:     updated.QueueID,
		TokenID:     updated.ID,
		TokenNumber: updated.TokenNumber,
	})
	return nil
}

// GetForPatron returns the patron's token along with its live position.
func (s *TokenService) GetForPatron(ctx context.Context, patronID, tokenID string) (*TokenWithPosition, error) {
	token, err := s.ownedToken(ctx, patronID, tokenID)
	if err != nil {
		return nil, err
	}
	return s.withPosition(ctx, token)
}

// ListActive returns the patron's active tokens with positions.
func (s *TokenService) ListActive(ctx context.Context, patronID string) ([]TokenWithPosition, error) {
	tokens, err := s.tokens.ListActiveByPatron(ctx, patronID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	result := make([]TokenWithPosition, 0, len(tokens))
	for i := range tokens {
		entry, err := s.withPosition(ctx, &tokens[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, nil
}

// ListHistory returns the patron's terminal tokens.
func (s *TokenService) ListHistory(ctx context.Context, patronID string) ([]domain.Token, error) {
	tokens, err := s.tokens.ListHistoryByPatron(ctx, patronID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tokens, nil
}

// ListForQueue returns a queue's tokens for staff, ordered by number.
func (s *TokenService) ListForQueue(ctx context.Context, actorID, queueID string, statuses []domain.TokenStatus) ([]domain.Token, error) {
	queue, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("queue", nil)
		}
		return nil, apperrors.MapError(err)
	}
	if _, err := s.membership(ctx, queue.BusinessID, actorID); err != nil {
		return nil, err
	}
	tokens, err := s.tokens.ListByQueue(ctx, queueID, statuses, 0)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tokens, nil
}

func (s *TokenService) withPosition(ctx context.Context, token *domain.Token) (*TokenWithPosition, error) {
	ahead, err := s.tokens.CountAhead(ctx, token.QueueID, token.TokenNumber)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	avg := s.cfg.DefaultAvgServiceTimeMinutes
	if queue, err := s.queues.GetByID(ctx, token.QueueID); err == nil {
		avg = queue.AvgServiceTimeMinutes
	}
	return &TokenWithPosition{
		Token:                *token,
		PeopleAhead:          ahead,
		EstimatedWaitMinutes: ahead * avg,
	}, nil
}

// ownedToken loads a token and enforces patron ownership. Ownership misses
// read as not-found, matching what the patron can observe.
func (s *TokenService) ownedToken(ctx context.Context, patronID, tokenID string) (*domain.Token, error) {
	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("token", nil)
		}
		return nil, apperrors.MapError(err)
	}
	if token.PatronID != patronID {
		return nil, apperrors.NewNotFound("token", nil)
	}
	return token, nil
}

func (s *TokenService) transition(ctx context.Context, token *domain.Token, expected []domain.TokenStatus, next domain.TokenStatus, failureMsg string) (*domain.Token, error) {
	ok, err := s.tokens.TransitionStatus(ctx, token.ID, expected, next)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		current, err := s.tokens.GetByID(ctx, token.ID)
		details := map[string]any{}
		if err == nil {
			details["status"] = current.Status
		}
		return nil, apperrors.NewInvalidState(failureMsg, details)
	}
	updated, err := s.tokens.GetByID(ctx, token.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return updated, nil
}

func (s *TokenService) membership(ctx context.Context, businessID, actorID string) (domain.Role, error) {
	role, err := s.businesses.Membership(ctx, businessID, actorID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", apperrors.NewNotFound("business", nil)
		}
		return "", apperrors.MapError(err)
	}
	if role == "" {
		return "", apperrors.NewForbidden("not authorized for this business")
	}
	return role, nil
}

func (s *TokenService) appendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *TokenService) publish(event events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}
