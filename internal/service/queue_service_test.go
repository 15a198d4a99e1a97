package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
)

func TestCreateQueueOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.queues.Create(ctx, env.staff.ID, CreateQueueInput{
		BusinessID: env.biz.ID,
		Name:       "Staff Attempt",
	})
	assert.Equal(t, "FORBIDDEN", errCode(t, err))

	queue, err := env.queues.Create(ctx, env.owner.ID, CreateQueueInput{
		BusinessID: env.biz.ID,
		Name:       "Billing Desk",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(queue.DisplayID, "Q"))
	assert.Len(t, queue.DisplayID, 7)
	assert.Equal(t, domain.QueueStatusActive, queue.Status)
	assert.Equal(t, 10, queue.AvgServiceTimeMinutes, "defaults applied when unset")
}

func TestAdvanceServesTokensInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.issue(t, env.newPatron(t))
	}

	result, err := env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Serving.TokenNumber)
	assert.Equal(t, domain.TokenStatusBeingServed, result.Serving.Status)
	assert.Equal(t, 1, result.Queue.CurrentToken)

	result, err = env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Serving.TokenNumber)

	// The previous token completed when the pointer moved past it.
	prev, err := env.store.Tokens().GetByQueueAndNumber(ctx, env.queue.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusCompleted, prev.Status)
	assert.NotNil(t, prev.ServiceEndTime)

	result, err = env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Serving.TokenNumber)

	_, err = env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	assert.Equal(t, "NO_TICKETS_AVAILABLE", errCode(t, err))

	queue, err := env.store.Queues().GetByID(ctx, env.queue.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, queue.CurrentToken, "failed advance must not move the pointer")
}

func TestAdvanceSkipCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.issue(t, env.newPatron(t))
	env.issue(t, env.newPatron(t))

	_, err := env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)

	result, err := env.queues.Advance(ctx, env.owner.ID, env.queue.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Serving.TokenNumber)

	skipped, err := env.store.Tokens().GetByQueueAndNumber(ctx, env.queue.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusSkipped, skipped.Status)
}

func TestAdvancePassesOverCancelledTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.newPatron(t)
	second := env.newPatron(t)
	third := env.newPatron(t)
	env.issue(t, first)
	cancelled := env.issue(t, second)
	env.issue(t, third)

	require.NoError(t, env.tokens.Cancel(ctx, second.ID, cancelled.ID))

	result, err := env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Serving.TokenNumber)

	result, err = env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Serving.TokenNumber, "cancelled number 2 is never served")
}

func TestAdvanceWorksWhilePaused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.issue(t, env.newPatron(t))

	_, err := env.queues.SetStatus(ctx, env.owner.ID, env.queue.ID, domain.QueueStatusPaused)
	require.NoError(t, err)

	// Pausing stops bookings, not service of the line already formed.
	result, err := env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Serving.TokenNumber)
}

func TestAdvanceUnauthorizedLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	outsider := env.newPatron(t)

	token := env.issue(t, outsider)

	_, err := env.queues.Advance(ctx, outsider.ID, env.queue.ID, false)
	assert.Equal(t, "FORBIDDEN", errCode(t, err))

	queue, err := env.store.Queues().GetByID(ctx, env.queue.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.CurrentToken)

	reloaded, err := env.store.Tokens().GetByID(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusWaiting, reloaded.Status)

	entries, err := env.queues.ListActivity(ctx, env.owner.ID, env.queue.ID, 50)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotEqual(t, domain.AuditQueueNext, entry.Action, "rejected advance must not be audited")
	}
}

func TestAdvancePublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token := env.issue(t, env.newPatron(t))

	sub := env.hub.SubscribeQueue(env.queue.ID)
	defer sub.Close()

	_, err := env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)

	event := <-sub.C
	assert.Equal(t, events.EventQueueAdvanced, event.Type)
	assert.Equal(t, token.ID, event.TokenID)
	assert.Equal(t, 1, event.CurrentToken)
}

// failingAuditRepo refuses every append.
type failingAuditRepo struct {
	repository.AuditRepository
}

func (r *failingAuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	return errors.New("audit store unavailable")
}

func TestAdvanceSurfacesAuditFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	queues := NewQueueService(QueueDependencies{
		QueueRepo:    env.store.Queues(),
		TokenRepo:    env.store.Tokens(),
		BusinessRepo: env.store.Businesses(),
		AuditRepo:    &failingAuditRepo{AuditRepository: env.store.Audit()},
		Publisher:    env.hub,
		Locks:        NewQueueLocks(),
		Config:       env.cfg,
	})

	env.issue(t, env.newPatron(t))

	_, err := queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.Error(t, err)
	assert.Equal(t, "INTERNAL_ERROR", errCode(t, err))
}

// pointerMissQueueRepo makes AdvanceCurrent miss as if another instance
// had moved the serving pointer between the eligibility scan and the CAS.
type pointerMissQueueRepo struct {
	repository.QueueRepository
	misses int
}

func (r *pointerMissQueueRepo) AdvanceCurrent(ctx context.Context, id string, from, to int) error {
	if r.misses > 0 {
		r.misses--
		return pgx.ErrNoRows
	}
	return r.QueueRepository.AdvanceCurrent(ctx, id, from, to)
}

func TestAdvanceReleasesClaimWhenPointerCASMisses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	repo := &pointerMissQueueRepo{QueueRepository: env.store.Queues(), misses: 1}
	queues := NewQueueService(QueueDependencies{
		QueueRepo:    repo,
		TokenRepo:    env.store.Tokens(),
		BusinessRepo: env.store.Businesses(),
		AuditRepo:    env.store.Audit(),
		Publisher:    env.hub,
		Locks:        NewQueueLocks(),
		Config:       env.cfg,
	})

	token := env.issue(t, env.newPatron(t))

	_, err := queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	assert.Equal(t, "CONFLICT", errCode(t, err))

	// The failed advance must surrender its claim, not strand the token
	// in being-served where no eligibility scan would ever find it.
	released, err := env.store.Tokens().GetByID(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusWaiting, released.Status)

	result, err := queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)
	assert.Equal(t, token.TokenNumber, result.Serving.TokenNumber)
}

func TestSkipIsUnconditional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patron := env.newPatron(t)
	token := env.issue(t, patron)

	// Even a terminal token can be re-marked by staff.
	_, err := env.store.Tokens().ForceStatus(ctx, env.queue.ID, token.TokenNumber, domain.TokenStatusCompleted)
	require.NoError(t, err)

	skipped, err := env.queues.Skip(ctx, env.staff.ID, env.queue.ID, token.TokenNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusSkipped, skipped.Status)
}

func TestNoShowIsUnconditional(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patron := env.newPatron(t)
	token := env.issue(t, patron)

	_, err := env.store.Tokens().ForceStatus(ctx, env.queue.ID, token.TokenNumber, domain.TokenStatusCompleted)
	require.NoError(t, err)

	noShow, err := env.queues.NoShow(ctx, env.staff.ID, env.queue.ID, token.TokenNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusNoShow, noShow.Status)
}

func TestNoShowUnknownNumber(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.queues.NoShow(context.Background(), env.staff.ID, env.queue.ID, 42)
	assert.Equal(t, "NOT_FOUND", errCode(t, err))
}

func TestForceActionsRequireMembership(t *testing.T) {
	env := newTestEnv(t)
	outsider := env.newPatron(t)
	token := env.issue(t, env.newPatron(t))

	_, err := env.queues.Skip(context.Background(), outsider.ID, env.queue.ID, token.TokenNumber)
	assert.Equal(t, "FORBIDDEN", errCode(t, err))

	_, err = env.queues.NoShow(context.Background(), outsider.ID, env.queue.ID, token.TokenNumber)
	assert.Equal(t, "FORBIDDEN", errCode(t, err))
}

func TestUpdateSettingsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	newAvg := 20

	_, err := env.queues.UpdateSettings(ctx, env.staff.ID, env.queue.ID, domain.QueueSettingsUpdate{
		AvgServiceTimeMinutes: &newAvg,
	})
	assert.Equal(t, "FORBIDDEN", errCode(t, err))

	queue, err := env.queues.UpdateSettings(ctx, env.owner.ID, env.queue.ID, domain.QueueSettingsUpdate{
		AvgServiceTimeMinutes: &newAvg,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, queue.AvgServiceTimeMinutes)
	assert.Equal(t, "Walk-ins", queue.Name, "nil fields stay untouched")
}

func TestSnapshotCountsAndUpcoming(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.issue(t, env.newPatron(t))
	}
	_, err := env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)

	snapshot, err := env.queues.GetSnapshot(ctx, env.queue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Queue.CurrentToken)
	assert.Equal(t, 2, snapshot.WaitingCount)
	assert.Equal(t, 20, snapshot.EstimatedWaitMinutes)
	require.Len(t, snapshot.NextTokens, 2)
	assert.Equal(t, 2, snapshot.NextTokens[0].TokenNumber)
	assert.Equal(t, 3, snapshot.NextTokens[1].TokenNumber)
}

func TestSearchByDisplayID(t *testing.T) {
	env := newTestEnv(t)

	snapshot, err := env.queues.SearchByDisplayID(context.Background(), "qtest01")
	require.NoError(t, err)
	assert.Equal(t, env.queue.ID, snapshot.Queue.ID)

	_, err = env.queues.SearchByDisplayID(context.Background(), "QNOPE99")
	assert.Equal(t, "NOT_FOUND", errCode(t, err))
}

func TestListActivityRecordsAdvance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.issue(t, env.newPatron(t))
	_, err := env.queues.Advance(ctx, env.owner.ID, env.queue.ID, false)
	require.NoError(t, err)

	entries, err := env.queues.ListActivity(ctx, env.owner.ID, env.queue.ID, 50)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	// Newest first.
	assert.Equal(t, domain.AuditQueueNext, entries[0].Action)
	assert.Equal(t, 0, entries[0].FromToken)
	assert.Equal(t, 1, entries[0].ToToken)
}
