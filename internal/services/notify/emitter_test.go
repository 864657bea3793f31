package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgig/quickgig/internal/domain/notification"
	"github.com/quickgig/quickgig/internal/domain/user"
	"github.com/quickgig/quickgig/internal/storage/memory"
)

type fakePusher struct {
	mu    sync.Mutex
	sends []string
	err   error
}

func (p *fakePusher) Send(_ context.Context, token, _, _ string, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sends = append(p.sends, token)
	return "msg-1", nil
}

func (p *fakePusher) tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sends...)
}

func TestNotifyRecordsAndPushes(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.EnsureUser(ctx, user.User{ID: "worker-1", DeviceToken: "tok-abc"})
	require.NoError(t, err)

	pusher := &fakePusher{}
	emitter := NewEmitter(store, store, pusher, nil)

	n, err := emitter.Notify(ctx, "worker-1", notification.TypeJobAccepted, "Accepted", "You got the gig", map[string]string{"job_id": "j1"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.IsRead)
	assert.Equal(t, []string{"tok-abc"}, pusher.tokens())

	list, err := emitter.List(ctx, "worker-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, notification.TypeJobAccepted, list[0].Type)
}

func TestNotifySurvivesPushFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.EnsureUser(ctx, user.User{ID: "worker-1", DeviceToken: "tok-abc"})
	require.NoError(t, err)

	pusher := &fakePusher{err: errors.New("gateway down")}
	emitter := NewEmitter(store, store, pusher, nil)

	n, err := emitter.Notify(ctx, "worker-1", notification.TypeJobRejected, "Rejected", "Better luck next time", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)

	list, err := emitter.List(ctx, "worker-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotifySkipsPushWithoutToken(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.EnsureUser(ctx, user.User{ID: "worker-1"})
	require.NoError(t, err)

	pusher := &fakePusher{}
	emitter := NewEmitter(store, store, pusher, nil)

	_, err = emitter.Notify(ctx, "worker-1", notification.TypeJobRequest, "New applicant", "Someone applied", nil)
	require.NoError(t, err)
	assert.Empty(t, pusher.tokens())

	// Unknown recipients still get a durable record.
	_, err = emitter.Notify(ctx, "ghost", notification.TypeJobRequest, "New applicant", "Someone applied", nil)
	require.NoError(t, err)
}

func TestNotifyRateLimitDropsPushNotRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.EnsureUser(ctx, user.User{ID: "worker-1", DeviceToken: "tok-abc"})
	require.NoError(t, err)

	pusher := &fakePusher{}
	emitter := NewEmitter(store, store, pusher, nil).WithRateLimit(1, 1)

	for i := 0; i < 3; i++ {
		_, err = emitter.Notify(ctx, "worker-1", notification.TypeJobRequest, "New applicant", "Someone applied", nil)
		require.NoError(t, err)
	}

	list, err := emitter.List(ctx, "worker-1")
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Len(t, pusher.tokens(), 1)
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	emitter := NewEmitter(store, store, nil, nil)

	n, err := emitter.Notify(ctx, "worker-1", notification.TypeJobCompleted, "Done", "Engagement completed", nil)
	require.NoError(t, err)

	read, err := emitter.MarkRead(ctx, n.ID, "worker-1")
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	assert.False(t, read.ReadAt.IsZero())

	_, err = emitter.MarkRead(ctx, n.ID, "someone-else")
	assert.Error(t, err)
}

func TestRetentionSweep(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	emitter := NewEmitter(store, store, nil, nil)

	_, err := emitter.Notify(ctx, "worker-1", notification.TypeJobRequest, "Old", "Stale entry", nil)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	sweeper := NewRetentionSweeper(store, time.Nanosecond, "", nil)
	sweeper.Sweep(ctx)

	list, err := emitter.List(ctx, "worker-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
