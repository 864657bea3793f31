package applications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgig/quickgig/internal/domain/application"
	"github.com/quickgig/quickgig/internal/domain/engagement"
	"github.com/quickgig/quickgig/internal/domain/job"
	"github.com/quickgig/quickgig/internal/domain/notification"
	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/internal/services/notify"
	"github.com/quickgig/quickgig/internal/storage/memory"
)

type fixture struct {
	svc   *Service
	store *memory.Store
}

func newFixture() fixture {
	store := memory.New()
	emitter := notify.NewEmitter(store, store, nil, nil)
	return fixture{
		svc:   New(store, store, store, store, emitter, nil),
		store: store,
	}
}

func (f fixture) openJob(t *testing.T, ownerID, title string) job.Job {
	t.Helper()
	j, err := f.store.CreateJob(context.Background(), job.Job{OwnerID: ownerID, Title: title, MaxWorkers: 1})
	require.NoError(t, err)
	return j
}

func (f fixture) notifications(t *testing.T, userID string) []notification.Notification {
	t.Helper()
	list, err := f.store.ListNotificationsByUser(context.Background(), userID)
	require.NoError(t, err)
	return list
}

func TestApplyHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	j := f.openJob(t, "employer", "Walk the dog")

	app, err := f.svc.Apply(ctx, j.ID, "worker", "I love dogs")
	require.NoError(t, err)
	assert.Equal(t, application.StatusApplied, app.Status)
	assert.Equal(t, "I love dogs", app.Message)

	got, err := f.store.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ApplicantCount)

	owner := f.notifications(t, "employer")
	require.Len(t, owner, 1)
	assert.Equal(t, notification.TypeJobRequest, owner[0].Type)
	assert.Equal(t, j.ID, owner[0].Data["job_id"])
}

func TestApplyRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	j := f.openJob(t, "employer", "Walk the dog")

	_, err := f.svc.Apply(ctx, "missing", "worker", "")
	assert.True(t, errors.IsNotFound(err))

	_, err = f.svc.Apply(ctx, j.ID, "employer", "")
	assert.True(t, errors.IsConflict(err, errors.ReasonOwnJob))

	_, err = f.svc.Apply(ctx, j.ID, "worker", "")
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, j.ID, "worker", "second try")
	assert.True(t, errors.IsConflict(err, errors.ReasonDuplicateApplication))

	_, err = f.store.CloseJob(ctx, j.ID, time.Now().UTC())
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, j.ID, "other-worker", "")
	assert.True(t, errors.IsConflict(err, errors.ReasonJobClosed))
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	j := f.openJob(t, "employer", "Walk the dog")

	app, err := f.svc.Apply(ctx, j.ID, "worker", "")
	require.NoError(t, err)

	_, err = f.svc.Withdraw(ctx, app.ID, "intruder")
	assert.True(t, errors.IsForbidden(err))

	withdrawn, err := f.svc.Withdraw(ctx, app.ID, "worker")
	require.NoError(t, err)
	assert.Equal(t, application.StatusWithdrawn, withdrawn.Status)

	got, err := f.store.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ApplicantCount)

	_, err = f.svc.Withdraw(ctx, app.ID, "worker")
	assert.True(t, errors.IsConflict(err, errors.ReasonCannotWithdraw))

	// The pair key is permanent, so a withdrawn bid still blocks re-applying.
	_, err = f.svc.Apply(ctx, j.ID, "worker", "again")
	assert.True(t, errors.IsConflict(err, errors.ReasonDuplicateApplication))
}

func TestAcceptSettlesSiblingsAndJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	j := f.openJob(t, "employer", "Walk the dog")

	winner, err := f.svc.Apply(ctx, j.ID, "worker-1", "")
	require.NoError(t, err)
	loser, err := f.svc.Apply(ctx, j.ID, "worker-2", "")
	require.NoError(t, err)

	_, _, err = f.svc.Accept(ctx, winner.ID, "worker-2")
	assert.True(t, errors.IsForbidden(err))

	accepted, eng, err := f.svc.Accept(ctx, winner.ID, "employer")
	require.NoError(t, err)
	assert.Equal(t, application.StatusAccepted, accepted.Status)
	assert.Equal(t, engagement.StatusActive, eng.Status)
	assert.Equal(t, "worker-1", eng.WorkerID)
	assert.Equal(t, "employer", eng.EmployerID)
	assert.NotEmpty(t, eng.ChatRoomID)

	got, err := f.store.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusInProgress, got.Status)

	sibling, err := f.store.GetApplication(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusRejected, sibling.Status)

	// The winner gets a push-worthy record; cascade rejections stay silent.
	winnerNotifs := f.notifications(t, "worker-1")
	require.Len(t, winnerNotifs, 1)
	assert.Equal(t, notification.TypeJobAccepted, winnerNotifs[0].Type)
	assert.Equal(t, eng.ChatRoomID, winnerNotifs[0].Data["chat_room_id"])
	assert.Empty(t, f.notifications(t, "worker-2"))

	_, _, err = f.svc.Accept(ctx, loser.ID, "employer")
	assert.True(t, errors.IsConflict(err, errors.ReasonAlreadyProcessed))
}

func TestAcceptConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	j := f.openJob(t, "employer", "Walk the dog")

	const workers = 8
	ids := make([]string, workers)
	for i := range ids {
		app, err := f.svc.Apply(ctx, j.ID, "worker-"+string(rune('a'+i)), "")
		require.NoError(t, err)
		ids[i] = app.ID
	}

	var wg sync.WaitGroup
	results := make([]error, workers)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, _, results[i] = f.svc.Accept(ctx, id, "employer")
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.True(t, errors.IsConflict(err, ""), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	j := f.openJob(t, "employer", "Walk the dog")

	app, err := f.svc.Apply(ctx, j.ID, "worker", "")
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, app.ID, "worker")
	assert.True(t, errors.IsForbidden(err))

	rejected, err := f.svc.Reject(ctx, app.ID, "employer")
	require.NoError(t, err)
	assert.Equal(t, application.StatusRejected, rejected.Status)

	notifs := f.notifications(t, "worker")
	require.Len(t, notifs, 1)
	assert.Equal(t, notification.TypeJobRejected, notifs[0].Type)

	_, err = f.svc.Reject(ctx, app.ID, "employer")
	assert.True(t, errors.IsConflict(err, errors.ReasonAlreadyProcessed))
}

func TestListVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	j := f.openJob(t, "employer", "Walk the dog")

	_, err := f.svc.Apply(ctx, j.ID, "worker-1", "")
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, j.ID, "worker-2", "")
	require.NoError(t, err)

	_, err = f.svc.ListByJob(ctx, j.ID, "worker-1")
	assert.True(t, errors.IsForbidden(err))

	byJob, err := f.svc.ListByJob(ctx, j.ID, "employer")
	require.NoError(t, err)
	assert.Len(t, byJob, 2)

	mine, err := f.svc.ListMine(ctx, "worker-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, j.ID, mine[0].JobID)
}
