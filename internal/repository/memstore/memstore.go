// Package memstore provides in-memory implementations of the repository
// interfaces. It backs the unit tests and the DSN-less development mode.
// Each operation is an atomic unit under the store mutex, matching the
// single-statement atomicity the Postgres implementations get from SQL.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
)

// Store holds all records behind one mutex. Lock hold times are bounded to
// single map operations; cross-queue parallelism is the job of the service
// layer's keyed locks, not the store.
type Store struct {
	mu         sync.RWMutex
	queues     map[string]*domain.Queue
	tokens     map[string]*domain.Token
	patrons    map[string]*domain.Patron
	businesses map[string]*domain.Business
	staff      map[string]map[string]*domain.StaffAssignment
	audit      []domain.AuditEntry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		queues:     make(map[string]*domain.Queue),
		tokens:     make(map[string]*domain.Token),
		patrons:    make(map[string]*domain.Patron),
		businesses: make(map[string]*domain.Business),
		staff:      make(map[string]map[string]*domain.StaffAssignment),
	}
}

// Queues returns the queue repository view of the store.
func (s *Store) Queues() repository.QueueRepository { return (*queueStore)(s) }

// Tokens returns the token repository view of the store.
func (s *Store) Tokens() repository.TokenRepository { return (*tokenStore)(s) }

// Patrons returns the patron repository view of the store.
func (s *Store) Patrons() repository.PatronRepository { return (*patronStore)(s) }

// Businesses returns the business repository view of the store.
func (s *Store) Businesses() repository.BusinessRepository { return (*businessStore)(s) }

// Audit returns the audit repository view of the store.
func (s *Store) Audit() repository.AuditRepository { return (*auditStore)(s) }

type queueStore Store

func (s *queueStore) Create(_ context.Context, queue *domain.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue.ID = uuid.NewString()
	queue.CurrentToken = 0
	queue.NextToken = 1
	queue.IsActive = true
	queue.CreatedAt = time.Now()
	copied := *queue
	s.queues[queue.ID] = &copied
	return nil
}

func (s *queueStore) GetByID(_ context.Context, id string) (*domain.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	queue, ok := s.queues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *queue
	return &copied, nil
}

func (s *queueStore) GetByDisplayID(_ context.Context, displayID string) (*domain.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, queue := range s.queues {
		if queue.DisplayID == displayID && queue.IsActive {
			copied := *queue
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *queueStore) ListByBusiness(_ context.Context, businessID string) ([]domain.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Queue
	for _, queue := range s.queues {
		if queue.BusinessID == businessID && queue.IsActive {
			result = append(result, *queue)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *queueStore) UpdateSettings(_ context.Context, id string, update domain.QueueSettingsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.queues[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if update.Name != nil {
		queue.Name = *update.Name
	}
	if update.Purpose != nil {
		queue.Purpose = *update.Purpose
	}
	if update.AvgServiceTimeMinutes != nil {
		queue.AvgServiceTimeMinutes = *update.AvgServiceTimeMinutes
	}
	if update.MaxTokensPerDay != nil {
		queue.MaxTokensPerDay = *update.MaxTokensPerDay
	}
	if update.AllowPriority != nil {
		queue.AllowPriority = *update.AllowPriority
	}
	return nil
}

func (s *queueStore) SetStatus(_ context.Context, id string, status domain.QueueStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.queues[id]
	if !ok {
		return pgx.ErrNoRows
	}
	queue.Status = status
	return nil
}

func (s *queueStore) AllocateNext(_ context.Context, id string) (*repository.QueueAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.queues[id]
	if !ok || queue.Status != domain.QueueStatusActive {
		return nil, pgx.ErrNoRows
	}
	number := queue.NextToken
	queue.NextToken++
	return &repository.QueueAllocation{
		TokenNumber:           number,
		CurrentToken:          queue.CurrentToken,
		AvgServiceTimeMinutes: queue.AvgServiceTimeMinutes,
		BusinessID:            queue.BusinessID,
	}, nil
}

func (s *queueStore) AdvanceCurrent(_ context.Context, id string, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.queues[id]
	if !ok || queue.CurrentToken != from {
		return pgx.ErrNoRows
	}
	queue.CurrentToken = to
	return nil
}

type tokenStore Store

func (s *tokenStore) Create(_ context.Context, token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token.ID = uuid.NewString()
	token.CreatedAt = time.Now()
	copied := *token
	s.tokens[token.ID] = &copied
	return nil
}

func (s *tokenStore) GetByID(_ context.Context, id string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *token
	return &copied, nil
}

func (s *tokenStore) GetByQueueAndNumber(_ context.Context, queueID string, number int) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token := s.findByNumber(queueID, number)
	if token == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *token
	return &copied, nil
}

func (s *tokenStore) FindActive(_ context.Context, patronID, queueID string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, token := range s.tokens {
		if token.PatronID == patronID && token.QueueID == queueID && token.Status.IsActive() {
			copied := *token
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *tokenStore) NextEligible(_ context.Context, queueID string, after int) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Token
	for _, token := range s.tokens {
		if token.QueueID != queueID || token.TokenNumber <= after {
			continue
		}
		if token.Status != domain.TokenStatusWaiting && token.Status != domain.TokenStatusCheckedIn {
			continue
		}
		if best == nil || token.TokenNumber < best.TokenNumber {
			best = token
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *best
	return &copied, nil
}

func (s *tokenStore) ListActiveByPatron(_ context.Context, patronID string) ([]domain.Token, error) {
	return s.listByPatron(patronID, func(status domain.TokenStatus) bool { return status.IsActive() })
}

func (s *tokenStore) ListHistoryByPatron(_ context.Context, patronID string) ([]domain.Token, error) {
	return s.listByPatron(patronID, func(status domain.TokenStatus) bool { return status.IsTerminal() })
}

func (s *tokenStore) listByPatron(patronID string, match func(domain.TokenStatus) bool) ([]domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Token
	for _, token := range s.tokens {
		if token.PatronID == patronID && match(token.Status) {
			result = append(result, *token)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *tokenStore) ListByQueue(_ context.Context, queueID string, statuses []domain.TokenStatus, limit int) ([]domain.Token, error) {
	if len(statuses) == 0 {
		statuses = domain.ActiveTokenStatuses
	}
	if limit <= 0 {
		limit = 100
	}
	wanted := make(map[domain.TokenStatus]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Token
	for _, token := range s.tokens {
		if token.QueueID != queueID {
			continue
		}
		if _, ok := wanted[token.Status]; !ok {
			continue
		}
		result = append(result, *token)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TokenNumber < result[j].TokenNumber })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *tokenStore) CountAhead(_ context.Context, queueID string, beforeNumber int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, token := range s.tokens {
		if token.QueueID != queueID || token.TokenNumber >= beforeNumber {
			continue
		}
		if token.Status == domain.TokenStatusWaiting || token.Status == domain.TokenStatusCheckedIn {
			count++
		}
	}
	return count, nil
}

func (s *tokenStore) CountWaiting(_ context.Context, queueID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, token := range s.tokens {
		if token.QueueID != queueID {
			continue
		}
		if token.Status == domain.TokenStatusWaiting || token.Status == domain.TokenStatusCheckedIn {
			count++
		}
	}
	return count, nil
}

func (s *tokenStore) TransitionStatus(_ context.Context, id string, expected []domain.TokenStatus, next domain.TokenStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range expected {
		if token.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	stamp(token, next)
	token.Status = next
	return true, nil
}

func (s *tokenStore) CompleteServing(_ context.Context, queueID string, number int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.findByNumber(queueID, number)
	if token == nil || token.Status != domain.TokenStatusBeingServed {
		return false, nil
	}
	stamp(token, domain.TokenStatusCompleted)
	token.Status = domain.TokenStatusCompleted
	return true, nil
}

func (s *tokenStore) ForceStatus(_ context.Context, queueID string, number int, next domain.TokenStatus) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.findByNumber(queueID, number)
	if token == nil {
		return nil, pgx.ErrNoRows
	}
	token.Status = next
	copied := *token
	return &copied, nil
}

func (s *tokenStore) findByNumber(queueID string, number int) *domain.Token {
	for _, token := range s.tokens {
		if token.QueueID == queueID && token.TokenNumber == number {
			return token
		}
	}
	return nil
}

func stamp(token *domain.Token, next domain.TokenStatus) {
	now := time.Now()
	switch next {
	case domain.TokenStatusCheckedIn:
		token.CheckInTime = &now
	case domain.TokenStatusBeingServed:
		token.ServiceStartTime = &now
	case domain.TokenStatusCompleted:
		token.ServiceEndTime = &now
	}
}

type patronStore Store

func (s *patronStore) Create(_ context.Context, patron *domain.Patron) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	patron.ID = uuid.NewString()
	patron.CreatedAt = time.Now()
	patron.UpdatedAt = patron.CreatedAt
	copied := *patron
	s.patrons[patron.ID] = &copied
	return nil
}

func (s *patronStore) GetByID(_ context.Context, id string) (*domain.Patron, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patron, ok := s.patrons[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *patron
	return &copied, nil
}

func (s *patronStore) GetByPhone(_ context.Context, phone string) (*domain.Patron, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, patron := range s.patrons {
		if patron.Phone == phone {
			copied := *patron
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *patronStore) Update(_ context.Context, patron *domain.Patron) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.patrons[patron.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	existing.Name = patron.Name
	existing.Email = patron.Email
	existing.Role = patron.Role
	existing.Verified = patron.Verified
	existing.UpdatedAt = time.Now()
	patron.UpdatedAt = existing.UpdatedAt
	return nil
}

type businessStore Store

func (s *businessStore) Create(_ context.Context, business *domain.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	business.ID = uuid.NewString()
	business.IsActive = true
	business.CreatedAt = time.Now()
	copied := *business
	s.businesses[business.ID] = &copied
	return nil
}

func (s *businessStore) GetByID(_ context.Context, id string) (*domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	business, ok := s.businesses[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *business
	return &copied, nil
}

func (s *businessStore) List(_ context.Context, limit, offset int) ([]domain.Business, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Business
	for _, business := range s.businesses {
		if business.IsActive {
			result = append(result, *business)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *businessStore) ListByOwner(_ context.Context, ownerID string) ([]domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Business
	for _, business := range s.businesses {
		if business.OwnerID == ownerID && business.IsActive {
			result = append(result, *business)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *businessStore) ListByStaff(_ context.Context, patronID string) ([]domain.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Business
	for businessID, assignments := range s.staff {
		if _, ok := assignments[patronID]; !ok {
			continue
		}
		if business, ok := s.businesses[businessID]; ok && business.IsActive {
			result = append(result, *business)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *businessStore) AssignStaff(_ context.Context, assignment *domain.StaffAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignments, ok := s.staff[assignment.BusinessID]
	if !ok {
		assignments = make(map[string]*domain.StaffAssignment)
		s.staff[assignment.BusinessID] = assignments
	}
	assignment.AssignedAt = time.Now()
	copied := *assignment
	assignments[assignment.PatronID] = &copied
	return nil
}

func (s *businessStore) RemoveStaff(_ context.Context, businessID, patronID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignments, ok := s.staff[businessID]
	if !ok {
		return pgx.ErrNoRows
	}
	if _, ok := assignments[patronID]; !ok {
		return pgx.ErrNoRows
	}
	delete(assignments, patronID)
	return nil
}

func (s *businessStore) GetStaffAssignment(_ context.Context, businessID, patronID string) (*domain.StaffAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assignments, ok := s.staff[businessID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	assignment, ok := assignments[patronID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *assignment
	return &copied, nil
}

func (s *businessStore) Membership(_ context.Context, businessID, patronID string) (domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	business, ok := s.businesses[businessID]
	if !ok {
		return "", pgx.ErrNoRows
	}
	if business.OwnerID == patronID {
		return domain.RoleOwner, nil
	}
	if assignments, ok := s.staff[businessID]; ok {
		if _, ok := assignments[patronID]; ok {
			return domain.RoleStaff, nil
		}
	}
	return "", nil
}

type auditStore Store

func (s *auditStore) Append(_ context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *auditStore) ListByQueue(_ context.Context, queueID string, limit int) ([]domain.AuditEntry, error) {
	return s.list(limit, func(entry domain.AuditEntry) bool { return entry.QueueID == queueID })
}

func (s *auditStore) ListByBusiness(_ context.Context, businessID string, limit int) ([]domain.AuditEntry, error) {
	return s.list(limit, func(entry domain.AuditEntry) bool { return entry.BusinessID == businessID })
}

func (s *auditStore) list(limit int, match func(domain.AuditEntry) bool) ([]domain.AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.AuditEntry
	for i := len(s.audit) - 1; i >= 0 && len(result) < limit; i-- {
		if match(s.audit[i]) {
			result = append(result, s.audit[i])
		}
	}
	return result, nil
}
