package engagements

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgig/quickgig/internal/domain/application"
	"github.com/quickgig/quickgig/internal/domain/engagement"
	"github.com/quickgig/quickgig/internal/domain/job"
	"github.com/quickgig/quickgig/internal/domain/notification"
	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/internal/services/notify"
	"github.com/quickgig/quickgig/internal/services/rating"
	"github.com/quickgig/quickgig/internal/storage/memory"
)

type fixture struct {
	svc   *Service
	store *memory.Store
}

func newFixture() fixture {
	store := memory.New()
	emitter := notify.NewEmitter(store, store, nil, nil)
	agg := rating.New(store, nil)
	return fixture{
		svc:   New(store, store, agg, emitter, nil),
		store: store,
	}
}

// activeEngagement seeds a job with an accepted application.
func (f fixture) activeEngagement(t *testing.T, employer, worker string) engagement.Engagement {
	t.Helper()
	ctx := context.Background()

	j, err := f.store.CreateJob(ctx, job.Job{OwnerID: employer, Title: "Assemble shelves", MaxWorkers: 1})
	require.NoError(t, err)
	app, err := f.store.CreateApplication(ctx, application.Application{JobID: j.ID, ApplicantID: worker})
	require.NoError(t, err)
	_, eng, err := f.store.AcceptApplication(ctx, app.ID, engagement.Engagement{
		WorkerID:   worker,
		EmployerID: employer,
		ChatRoomID: "room-1",
	})
	require.NoError(t, err)
	return eng
}

func TestGetVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	eng := f.activeEngagement(t, "employer", "worker")

	_, err := f.svc.Get(ctx, eng.ID, "stranger")
	assert.True(t, errors.IsForbidden(err))

	got, err := f.svc.Get(ctx, eng.ID, "worker")
	require.NoError(t, err)
	assert.Equal(t, eng.ID, got.ID)

	byJob, err := f.svc.GetByJob(ctx, eng.JobID, "employer")
	require.NoError(t, err)
	assert.Equal(t, eng.ID, byJob.ID)

	_, err = f.svc.Get(ctx, "missing", "worker")
	assert.True(t, errors.IsNotFound(err))
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	eng := f.activeEngagement(t, "employer", "worker")

	_, err := f.svc.Complete(ctx, eng.ID, "worker")
	assert.True(t, errors.IsForbidden(err))

	done, err := f.svc.Complete(ctx, eng.ID, "employer")
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusCompleted, done.Status)
	assert.False(t, done.CompletedAt.IsZero())

	j, err := f.store.GetJob(ctx, eng.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, j.Status)

	notifs, err := f.store.ListNotificationsByUser(ctx, "worker")
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, notification.TypeJobCompleted, notifs[0].Type)

	_, err = f.svc.Complete(ctx, eng.ID, "employer")
	assert.True(t, errors.IsConflict(err, errors.ReasonAlreadyProcessed))
}

func TestCancelByJobCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	eng := f.activeEngagement(t, "employer", "worker")

	_, err := f.svc.CancelByJob(ctx, eng.JobID, "worker", "changed plans")
	assert.True(t, errors.IsForbidden(err))

	cancelled, err := f.svc.CancelByJob(ctx, eng.JobID, "employer", "changed plans")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, cancelled.Status)

	got, err := f.store.GetEngagement(ctx, eng.ID)
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusCancelled, got.Status)
	assert.Equal(t, "employer", got.CancelledBy)
	assert.Equal(t, "changed plans", got.CancelReason)

	notifs, err := f.store.ListNotificationsByUser(ctx, "worker")
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, notification.TypeJobCancelled, notifs[0].Type)

	_, err = f.svc.CancelByJob(ctx, eng.JobID, "employer", "again")
	assert.True(t, errors.IsConflict(err, errors.ReasonAlreadyCancelled))
}

func TestCancelByJobWithoutEngagement(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	j, err := f.store.CreateJob(ctx, job.Job{OwnerID: "employer", Title: "Empty job"})
	require.NoError(t, err)
	_, err = f.store.CreateApplication(ctx, application.Application{JobID: j.ID, ApplicantID: "worker"})
	require.NoError(t, err)

	cancelled, err := f.svc.CancelByJob(ctx, j.ID, "employer", "")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, cancelled.Status)

	apps, err := f.store.ListApplicationsByJob(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, application.StatusRejected, apps[0].Status)
}

type disputedStore struct {
	*memory.Store
}

func (d disputedStore) GetEngagementByJob(ctx context.Context, jobID string) (engagement.Engagement, error) {
	eng, err := d.Store.GetEngagementByJob(ctx, jobID)
	if err != nil {
		return eng, err
	}
	eng.Status = engagement.StatusDisputed
	return eng, nil
}

func TestCancelByJobBlockedByDispute(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(disputedStore{store}, store, nil, nil, nil)

	j, err := store.CreateJob(ctx, job.Job{OwnerID: "employer", Title: "Contested"})
	require.NoError(t, err)
	app, err := store.CreateApplication(ctx, application.Application{JobID: j.ID, ApplicantID: "worker"})
	require.NoError(t, err)
	_, _, err = store.AcceptApplication(ctx, app.ID, engagement.Engagement{WorkerID: "worker", EmployerID: "employer"})
	require.NoError(t, err)

	_, err = svc.CancelByJob(ctx, j.ID, "employer", "")
	assert.True(t, errors.IsConflict(err, errors.ReasonAlreadyProcessed))

	got, err := store.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusInProgress, got.Status)
}

func TestRate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	eng := f.activeEngagement(t, "employer", "worker")

	_, err := f.svc.Rate(ctx, eng.ID, "employer", 5, "too early")
	assert.True(t, errors.IsConflict(err, errors.ReasonJobNotCompleted))

	_, err = f.svc.Complete(ctx, eng.ID, "employer")
	require.NoError(t, err)

	_, err = f.svc.Rate(ctx, eng.ID, "employer", 0, "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalid))
	_, err = f.svc.Rate(ctx, eng.ID, "stranger", 4, "")
	assert.True(t, errors.IsForbidden(err))

	rated, err := f.svc.Rate(ctx, eng.ID, "employer", 4, "solid work")
	require.NoError(t, err)
	require.NotNil(t, rated.EmployerRating)
	assert.Equal(t, 4, rated.EmployerRating.Score)

	// The employer's rating rolls into the worker's aggregate.
	worker, err := f.store.GetUser(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, 1, worker.RatingCount)
	assert.InDelta(t, 4.0, worker.RatingAverage, 1e-9)

	_, err = f.svc.Rate(ctx, eng.ID, "employer", 5, "changed my mind")
	assert.True(t, errors.IsConflict(err, errors.ReasonAlreadyRated))

	// The other slot is independent.
	rated, err = f.svc.Rate(ctx, eng.ID, "worker", 3, "paid late")
	require.NoError(t, err)
	require.NotNil(t, rated.WorkerRating)

	employerUser, err := f.store.GetUser(ctx, "employer")
	require.NoError(t, err)
	assert.Equal(t, 1, employerUser.RatingCount)
	assert.InDelta(t, 3.0, employerUser.RatingAverage, 1e-9)
}
