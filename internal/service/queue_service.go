package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueueService covers the business-side queue workflows: lifecycle, the
// serving-pointer advancement and the staff override actions.
type QueueService struct {
	queues     repository.QueueRepository
	tokens     repository.TokenRepository
	businesses repository.BusinessRepository
	audit      repository.AuditRepository
	publisher  events.Publisher
	locks      *QueueLocks
	cfg        config.QueueConfig
}

// QueueDependencies bundles repositories for queue service.
type QueueDependencies struct {
	QueueRepo    repository.QueueRepository
	TokenRepo    repository.TokenRepository
	BusinessRepo repository.BusinessRepository
	AuditRepo    repository.AuditRepository
	Publisher    events.Publisher
	Locks        *QueueLocks
	Config       config.QueueConfig
}

// CreateQueueInput describes a queue creation request.
type CreateQueueInput struct {
	BusinessID            string
	Name                  string
	Purpose               string
	AvgServiceTimeMinutes int
	MaxTokensPerDay       int
	AllowPriority         bool
}

// QueueOverview pairs a queue with its live waiting count.
type QueueOverview struct {
	Queue        domain.Queue
	WaitingCount int
}

// QueueSnapshot is the public read projection for one queue.
type QueueSnapshot struct {
	Queue                domain.Queue
	WaitingCount         int
	EstimatedWaitMinutes int
	NextTokens           []domain.Token
}

// AdvanceResult reports the outcome of one serving-pointer move.
type AdvanceResult struct {
	Queue   *domain.Queue
	Serving *domain.Token
}

// NewQueueService constructs the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	locks := deps.Locks
	if locks == nil {
		locks = NewQueueLocks()
	}
	return &QueueService{
		queues:     deps.QueueRepo,
		tokens:     deps.TokenRepo,
		businesses: deps.BusinessRepo,
		audit:      deps.AuditRepo,
		publisher:  deps.Publisher,
		locks:      locks,
		cfg:        deps.Config,
	}
}

// Create opens a new queue under the business. Only the owner can create
// queues.
func (s *QueueService) Create(ctx context.Context, actorID string, input CreateQueueInput) (*domain.Queue, error) {
	role, err := s.membership(ctx, input.BusinessID, actorID)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleOwner {
		return nil, apperrors.NewForbidden("only the business owner can create queues")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("queue name is required", nil)
	}
	avg := input.AvgServiceTimeMinutes
	if avg <= 0 {
		avg = s.cfg.DefaultAvgServiceTimeMinutes
	}
	maxPerDay := input.MaxTokensPerDay
	if maxPerDay <= 0 {
		maxPerDay = s.cfg.DefaultMaxTokensPerDay
	}

	queue := &domain.Queue{
		DisplayID:             newDisplayID(),
		BusinessID:            input.BusinessID,
		Name:                  name,
		Purpose:               strings.TrimSpace(input.Purpose),
		Status:                domain.QueueStatusActive,
		AvgServiceTimeMinutes: avg,
		MaxTokensPerDay:       maxPerDay,
		AllowPriority:         input.AllowPriority,
	}
	if err := s.queues.Create(ctx, queue); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditQueueCreated,
		QueueID:    queue.ID,
		BusinessID: queue.BusinessID,
		ActorID:    actorID,
		ActorRole:  role,
		Metadata:   map[string]any{"display_id": queue.DisplayID, "name": queue.Name},
	}); err != nil {
		return nil, err
	}
	return queue, nil
}

// SearchByDisplayID resolves the short code printed on signage.
func (s *QueueService) SearchByDisplayID(ctx context.Context, displayID string) (*QueueSnapshot, error) {
	queue, err := s.queues.GetByDisplayID(ctx, strings.ToUpper(strings.TrimSpace(displayID)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("queue", map[string]any{"display_id": displayID})
		}
		return nil, apperrors.MapError(err)
	}
	return s.snapshot(ctx, queue)
}

// GetSnapshot returns the queue's public projection.
func (s *QueueService) GetSnapshot(ctx context.Context, queueID string) (*QueueSnapshot, error) {
	queue, err := s.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, queue)
}

// ListByBusiness returns the business' queues with waiting counts, for the
// staff dashboard.
func (s *QueueService) ListByBusiness(ctx context.Context, actorID, businessID string) ([]QueueOverview, error) {
	if _, err := s.membership(ctx, businessID, actorID); err != nil {
		return nil, err
	}
	queues, err := s.queues.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	result := make([]QueueOverview, 0, len(queues))
	for i := range queues {
		waiting, err := s.tokens.CountWaiting(ctx, queues[i].ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		result = append(result, QueueOverview{Queue: queues[i], WaitingCount: waiting})
	}
	return result, nil
}

// UpdateSettings applies the owner-editable queue fields.
func (s *QueueService) UpdateSettings(ctx context.Context, actorID, queueID string, update domain.QueueSettingsUpdate) (*domain.Queue, error) {
	queue, err := s.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	role, err := s.membership(ctx, queue.BusinessID, actorID)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleOwner {
		return nil, apperrors.NewForbidden("only the business owner can change queue settings")
	}

	if err := s.queues.UpdateSettings(ctx, queueID, update); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("queue", nil)
		}
		return nil, apperrors.MapError(err)
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditQueueUpdated,
		QueueID:    queueID,
		BusinessID: queue.BusinessID,
		ActorID:    actorID,
		ActorRole:  role,
	}); err != nil {
		return nil, err
	}
	return s.loadQueue(ctx, queueID)
}

// SetStatus pauses, resumes or closes the queue. Pausing stops new bookings
// but never blocks advancement over tokens already issued.
func (s *QueueService) SetStatus(ctx context.Context, actorID, queueID string, status domain.QueueStatus) (*domain.Queue, error) {
	switch status {
	case domain.QueueStatusActive, domain.QueueStatusPaused, domain.QueueStatusClosed:
	default:
		return nil, apperrors.NewValidationError("unknown queue status", map[string]any{"status": status})
	}

	queue, err := s.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	role, err := s.membership(ctx, queue.BusinessID, actorID)
	if err != nil {
		return nil, err
	}

	if err := s.queues.SetStatus(ctx, queueID, status); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("queue", nil)
		}
		return nil, apperrors.MapError(err)
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditQueueUpdated,
		QueueID:    queueID,
		BusinessID: queue.BusinessID,
		ActorID:    actorID,
		ActorRole:  role,
		Metadata:   map[string]any{"status": status},
	}); err != nil {
		return nil, err
	}
	queue.Status = status
	return queue, nil
}

// Advance moves the serving pointer to the next eligible token. The token
// being left behind completes; with skipCurrent it is marked skipped
// instead. When nothing is eligible the call is a pure no-op and reports
// NO_TICKETS_AVAILABLE.
func (s *QueueService) Advance(ctx context.Context, actorID, queueID string, skipCurrent bool) (*AdvanceResult, error) {
	queue, err := s.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	role, err := s.membership(ctx, queue.BusinessID, actorID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(queueID)
	result, err := s.advanceLocked(ctx, actorID, role, queueID, skipCurrent)
	unlock()
	if err != nil {
		return nil, err
	}

	s.publish(events.Event{
		Type:         events.EventQueueAdvanced,
		QueueID:      queueID,
		TokenID:      result.Serving.ID,
		TokenNumber:  result.Serving.TokenNumber,
		CurrentToken: result.Queue.CurrentToken,
	})
	return result, nil
}

func (s *QueueService) advanceLocked(ctx context.Context, actorID string, role domain.Role, queueID string, skipCurrent bool) (*AdvanceResult, error) {
	// Re-read under the lock so the pointer is current.
	queue, err := s.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}

	var serving *domain.Token
	var claimedFrom domain.TokenStatus
	for attempt := 0; attempt <= s.cfg.AllocationMaxRetries; attempt++ {
		next, err := s.tokens.NextEligible(ctx, queueID, queue.CurrentToken)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, apperrors.NewNoTokensAvailable()
			}
			return nil, apperrors.MapError(err)
		}
		// Claim the candidate first; a concurrent cancellation makes the
		// conditional update miss, in which case we pick the next one.
		ok, err := s.tokens.TransitionStatus(ctx, next.ID,
			[]domain.TokenStatus{domain.TokenStatusWaiting, domain.TokenStatusCheckedIn},
			domain.TokenStatusBeingServed)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if ok {
			claimedFrom = next.Status
			serving, err = s.tokens.GetByID(ctx, next.ID)
			if err != nil {
				s.releaseClaim(ctx, next.ID, claimedFrom)
				return nil, apperrors.MapError(err)
			}
			break
		}
	}
	if serving == nil {
		return nil, apperrors.NewConflict("could not claim the next token", nil)
	}

	// The outgoing token resolves only once the new one is secured. Any
	// failure before the pointer moves surrenders the claim, so the token
	// stays eligible instead of stranded in being-served.
	if queue.CurrentToken > 0 {
		if skipCurrent {
			if _, err := s.tokens.ForceStatus(ctx, queueID, queue.CurrentToken, domain.TokenStatusSkipped); err != nil && err != pgx.ErrNoRows {
				s.releaseClaim(ctx, serving.ID, claimedFrom)
				return nil, apperrors.MapError(err)
			}
		} else if _, err := s.tokens.CompleteServing(ctx, queueID, queue.CurrentToken); err != nil {
			s.releaseClaim(ctx, serving.ID, claimedFrom)
			return nil, apperrors.MapError(err)
		}
	}

	from := queue.CurrentToken
	if err := s.queues.AdvanceCurrent(ctx, queueID, from, serving.TokenNumber); err != nil {
		s.releaseClaim(ctx, serving.ID, claimedFrom)
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewConflict("serving pointer moved concurrently", nil)
		}
		return nil, apperrors.MapError(err)
	}
	queue.CurrentToken = serving.TokenNumber

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     domain.AuditQueueNext,
		QueueID:    queueID,
		TokenID:    serving.ID,
		BusinessID: queue.BusinessID,
		ActorID:    actorID,
		ActorRole:  role,
		FromToken:  from,
		ToToken:    serving.TokenNumber,
		Metadata:   map[string]any{"skip_current": skipCurrent},
	}); err != nil {
		return nil, err
	}
	return &AdvanceResult{Queue: queue, Serving: serving}, nil
}

// Skip marks the token skipped regardless of its current status. Staff
// override for a patron who stepped away.
func (s *QueueService) Skip(ctx context.Context, actorID, queueID string, tokenNumber int) (*domain.Token, error) {
	return s.forceToken(ctx, actorID, queueID, tokenNumber,
		domain.TokenStatusSkipped, domain.AuditTokenSkipped, events.EventTokenSkipped)
}

// NoShow marks the token no-show regardless of its current status.
func (s *QueueService) NoShow(ctx context.Context, actorID, queueID string, tokenNumber int) (*domain.Token, error) {
	return s.forceToken(ctx, actorID, queueID, tokenNumber,
		domain.TokenStatusNoShow, domain.AuditTokenNoShow, events.EventTokenNoShow)
}

func (s *QueueService) forceToken(ctx context.Context, actorID, queueID string, tokenNumber int, status domain.TokenStatus, action domain.AuditAction, eventType events.EventType) (*domain.Token, error) {
	queue, err := s.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	role, err := s.membership(ctx, queue.BusinessID, actorID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.ForceStatus(ctx, queueID, tokenNumber, status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("token", map[string]any{"token_number": tokenNumber})
		}
		return nil, apperrors.MapError(err)
	}

	if err := s.appendAudit(ctx, &domain.AuditEntry{
		Action:     action,
		QueueID:    queueID,
		TokenID:    token.ID,
		BusinessID: queue.BusinessID,
		ActorID:    actorID,
		ActorRole:  role,
		Metadata:   map[string]any{"token_number": tokenNumber},
	}); err != nil {
		return nil, err
	}
	s.publish(events.Event{
		Type:         eventType,
		QueueID:      queueID,
		TokenID:      token.ID,
		TokenNumber:  token.TokenNumber,
		CurrentToken: queue.CurrentToken,
	})
	return token, nil
}

// ListActivity returns the queue's audit trail, newest first.
func (s *QueueService) ListActivity(ctx context.Context, actorID, queueID string, limit int) ([]domain.AuditEntry, error) {
	queue, err := s.loadQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if _, err := s.membership(ctx, queue.BusinessID, actorID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByQueue(ctx, queueID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *QueueService) snapshot(ctx context.Context, queue *domain.Queue) (*QueueSnapshot, error) {
	waiting, err := s.tokens.CountWaiting(ctx, queue.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	next, err := s.tokens.ListByQueue(ctx, queue.ID,
		[]domain.TokenStatus{domain.TokenStatusWaiting, domain.TokenStatusCheckedIn},
		s.cfg.SnapshotNextTokens)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &QueueSnapshot{
		Queue:                *queue,
		WaitingCount:         waiting,
		EstimatedWaitMinutes: waiting * queue.AvgServiceTimeMinutes,
		NextTokens:           next,
	}, nil
}

func (s *QueueService) loadQueue(ctx context.Context, queueID string) (*domain.Queue, error) {
	queue, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("queue", map[string]any{"queue_id": queueID})
		}
		return nil, apperrors.MapError(err)
	}
	return queue, nil
}

func (s *QueueService) membership(ctx context.Context, businessID, actorID string) (domain.Role, error) {
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

// releaseClaim returns a claimed token to its prior status after a failed
// advance, so it stays visible to the next eligibility scan instead of
// stranded in being-served.
func (s *QueueService) releaseClaim(ctx context.Context, tokenID string, prior domain.TokenStatus) {
	_, _ = s.tokens.TransitionStatus(ctx, tokenID,
		[]domain.TokenStatus{domain.TokenStatusBeingServed}, prior)
}

func (s *QueueService) appendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *QueueService) publish(event events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

// newDisplayID builds the short public code patrons type in, e.g. Q1KX93F.
func newDisplayID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	n := binary.BigEndian.Uint64(buf[:]) % (36 * 36 * 36 * 36 * 36 * 36)
	code := strconv.FormatUint(n, 36)
	for len(code) < 6 {
		code = "0" + code
	}
	return "Q" + strings.ToUpper(code)
}
