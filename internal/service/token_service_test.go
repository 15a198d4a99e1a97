package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository/memstore"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

type testEnv struct {
	store   *memstore.Store
	hub     *events.Hub
	cfg     config.QueueConfig
	tokens  *TokenService
	queues  *QueueService
	owner   *domain.Patron
	staff   *domain.Patron
	biz     *domain.Business
	queue   *domain.Queue
	patrons []*domain.Patron
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := memstore.New()
	hub := events.NewHub(64, nil)
	locks := NewQueueLocks()
	cfg := config.QueueConfig{
		DefaultAvgServiceTimeMinutes: 10,
		DefaultMaxTokensPerDay:       100,
		SnapshotNextTokens:           5,
		AllocationMaxRetries:         3,
		EventBufferSize:              64,
	}

	owner := &domain.Patron{Phone: "+15550000001", Role: domain.RoleOwner, Verified: true}
	require.NoError(t, store.Patrons().Create(ctx, owner))
	staff := &domain.Patron{Phone: "+15550000002", Role: domain.RoleStaff, Verified: true}
	require.NoError(t, store.Patrons().Create(ctx, staff))

	biz := &domain.Business{Name: "Corner Clinic", Category: domain.CategoryClinic, OwnerID: owner.ID}
	require.NoError(t, store.Businesses().Create(ctx, biz))
	require.NoError(t, store.Businesses().AssignStaff(ctx, &domain.StaffAssignment{
		BusinessID: biz.ID,
		PatronID:   staff.ID,
	}))

	queue := &domain.Queue{
		DisplayID:             "QTEST01",
		BusinessID:            biz.ID,
		Name:                  "Walk-ins",
		Status:                domain.QueueStatusActive,
		AvgServiceTimeMinutes: 10,
		MaxTokensPerDay:       100,
	}
	require.NoError(t, store.Queues().Create(ctx, queue))

	tokens := NewTokenService(TokenDependencies{
		TokenRepo:    store.Tokens(),
		QueueRepo:    store.Queues(),
		BusinessRepo: store.Businesses(),
		AuditRepo:    store.Audit(),
		Publisher:    hub,
		Locks:        locks,
		Config:       cfg,
	})
	queues := NewQueueService(QueueDependencies{
		QueueRepo:    store.Queues(),
		TokenRepo:    store.Tokens(),
		BusinessRepo: store.Businesses(),
		AuditRepo:    store.Audit(),
		Publisher:    hub,
		Locks:        locks,
		Config:       cfg,
	})

	return &testEnv{store: store, hub: hub, cfg: cfg, tokens: tokens, queues: queues,
		owner: owner, staff: staff, biz: biz, queue: queue}
}

func (e *testEnv) newPatron(t *testing.T) *domain.Patron {
	t.Helper()
	patron := &domain.Patron{
		Phone:    fmt.Sprintf("+1555100%04d", len(e.patrons)),
		Role:     domain.RolePatron,
		Verified: true,
	}
	require.NoError(t, e.store.Patrons().Create(context.Background(), patron))
	e.patrons = append(e.patrons, patron)
	return patron
}

func (e *testEnv) issue(t *testing.T, patron *domain.Patron) *domain.Token {
	t.Helper()
	token, err := e.tokens.Issue(context.Background(), patron.ID, IssueInput{QueueID: e.queue.ID})
	require.NoError(t, err)
	return token
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return apperrors.ToDomainError(err).Code
}

func TestIssueAssignsGaplessSequentialNumbers(t *testing.T) {
	env := newTestEnv(t)
	const n = 25

	patrons := make([]*domain.Patron, n)
	for i := range patrons {
		patrons[i] = env.newPatron(t)
	}

	var wg sync.WaitGroup
	results := make(chan int, n)
	for _, patron := range patrons {
		wg.Add(1)
		go func(p *domain.Patron) {
			defer wg.Done()
			token, err := env.tokens.Issue(context.Background(), p.ID, IssueInput{QueueID: env.queue.ID})
			if assert.NoError(t, err) {
				results <- token.TokenNumber
			}
		}(patron)
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool, n)
	for number := range results {
		assert.False(t, seen[number], "token number %d issued twice", number)
		seen[number] = true
	}
	require.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		assert.True(t, seen[i], "missing token number %d", i)
	}
}

func TestIssueRejectsSecondActiveToken(t *testing.T) {
	env := newTestEnv(t)
	patron := env.newPatron(t)

	first := env.issue(t, patron)
	assert.Equal(t, 1, first.TokenNumber)

	_, err := env.tokens.Issue(context.Background(), patron.ID, IssueInput{QueueID: env.queue.ID})
	assert.Equal(t, "DUPLICATE_ACTIVE_TICKET", errCode(t, err))
}

func TestIssueAllowsRebookingAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	patron := env.newPatron(t)

	first := env.issue(t, patron)
	require.NoError(t, env.tokens.Cancel(context.Background(), patron.ID, first.ID))

	second := env.issue(t, patron)
	assert.Equal(t, 2, second.TokenNumber, "cancelled numbers are never reused")
}

func TestIssueRejectsInactiveQueue(t *testing.T) {
	env := newTestEnv(t)
	patron := env.newPatron(t)

	_, err := env.queues.SetStatus(context.Background(), env.owner.ID, env.queue.ID, domain.QueueStatusPaused)
	require.NoError(t, err)

	_, issueErr := env.tokens.Issue(context.Background(), patron.ID, IssueInput{QueueID: env.queue.ID})
	assert.Equal(t, "QUEUE_INACTIVE", errCode(t, issueErr))
}

func TestIssueUnknownQueue(t *testing.T) {
	env := newTestEnv(t)
	patron := env.newPatron(t)

	_, err := env.tokens.Issue(context.Background(), patron.ID, IssueInput{QueueID: "no-such-queue"})
	assert.Equal(t, "NOT_FOUND", errCode(t, err))
}

func TestIssueSetsEstimatedTime(t *testing.T) {
	env := newTestEnv(t)

	first := env.issue(t, env.newPatron(t))
	second := env.issue(t, env.newPatron(t))

	require.NotNil(t, first.EstimatedTime)
	require.NotNil(t, second.EstimatedTime)
	assert.True(t, second.EstimatedTime.After(*first.EstimatedTime))
}

func TestIssuePublishesCreatedEvent(t *testing.T) {
	env := newTestEnv(t)
	sub := env.hub.SubscribeQueue(env.queue.ID)
	defer sub.Close()

	token := env.issue(t, env.newPatron(t))

	event := <-sub.C
	assert.Equal(t, events.EventTokenCreated, event.Type)
	assert.Equal(t, token.ID, event.TokenID)
	assert.Equal(t, token.TokenNumber, event.TokenNumber)
	assert.Equal(t, 0, event.CurrentToken)
}

func TestCheckInIsOneShot(t *testing.T) {
	env := newTestEnv(t)
	patron := env.newPatron(t)
	token := env.issue(t, patron)

	checked, err := env.tokens.CheckIn(context.Background(), patron.ID, token.ID)
	require.NoError(t, err)
	require.NotNil(t, checked.CheckInTime)
	firstStamp := *checked.CheckInTime

	_, err = env.tokens.CheckIn(context.Background(), patron.ID, token.ID)
	assert.Equal(t, "INVALID_STATE", errCode(t, err))

	reloaded, err := env.store.Tokens().GetByID(context.Background(), token.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.CheckInTime)
	assert.Equal(t, firstStamp, *reloaded.CheckInTime, "failed retry must not touch the first stamp")
	assert.Equal(t, domain.TokenStatusCheckedIn, reloaded.Status)
}

func TestCheckInRequiresOwnership(t *testing.T) {
	env := newTestEnv(t)
	patron := env.newPatron(t)
	other := env.newPatron(t)
	token := env.issue(t, patron)

	// The other patron cannot even observe the token.
	_, err := env.tokens.CheckIn(context.Background(), other.ID, token.ID)
	assert.Equal(t, "NOT_FOUND", errCode(t, err))
}

func TestManualCheckInRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	patron := env.newPatron(t)
	outsider := env.newPatron(t)
	token := env.issue(t, patron)

	_, err := env.tokens.ManualCheckIn(context.Background(), outsider.ID, token.ID)
	assert.Equal(t, "FORBIDDEN", errCode(t, err))

	checked, err := env.tokens.ManualCheckIn(context.Background(), env.staff.ID, token.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusCheckedIn, checked.Status)
}

func TestCancelOnlyFromActiveStates(t *testing.T) {
	env := newTestEnv(t)
	patron := env.newPatron(t)
	token := env.issue(t, patron)

	_, err := env.store.Tokens().ForceStatus(context.Background(), env.queue.ID, token.TokenNumber, domain.TokenStatusCompleted)
	require.NoError(t, err)

	cancelErr := env.tokens.Cancel(context.Background(), patron.ID, token.ID)
	assert.Equal(t, "INVALID_STATE", errCode(t, cancelErr))
}

func TestListActiveReportsPosition(t *testing.T) {
	env := newTestEnv(t)
	first := env.newPatron(t)
	second := env.newPatron(t)

	env.issue(t, first)
	env.issue(t, second)

	entries, err := env.tokens.ListActive(context.Background(), second.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].PeopleAhead)
	assert.Equal(t, 10, entries[0].EstimatedWaitMinutes)
}

func TestListHistoryOnlyTerminal(t *testing.T) {
	env := newTestEnv(t)
	patron := env.newPatron(t)
	token := env.issue(t, patron)

	history, err := env.tokens.ListHistory(context.Background(), patron.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, env.tokens.Cancel(context.Background(), patron.ID, token.ID))

	history, err = env.tokens.ListHistory(context.Background(), patron.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TokenStatusCancelled, history[0].Status)
}
