// Package notify records in-app notifications and attempts best-effort push
// delivery. Push is advisory: one attempt, never retried in the request path,
// and never allowed to fail the state transition that triggered it.
package notify

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/quickgig/quickgig/internal/domain/notification"
	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/internal/metrics"
	"github.com/quickgig/quickgig/internal/storage"
	"github.com/quickgig/quickgig/pkg/logger"
)

// Pusher delivers one push message to a device token, returning the
// gateway's message id.
type Pusher interface {
	Send(ctx context.Context, deviceToken, title, body string, data map[string]string) (string, error)
}

// Emitter records notifications and triggers pushes.
type Emitter struct {
	store   storage.NotificationStore
	users   storage.UserStore
	pusher  Pusher
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewEmitter constructs an emitter. A nil pusher disables push delivery.
func NewEmitter(store storage.NotificationStore, users storage.UserStore, pusher Pusher, log *logger.Logger) *Emitter {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	return &Emitter{
		store:   store,
		users:   users,
		pusher:  pusher,
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		log:     log,
	}
}

// WithRateLimit overrides the outbound push cap. Call before serving.
func (e *Emitter) WithRateLimit(perSecond float64, burst int) *Emitter {
	e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return e
}

// Notify durably records the notification, then attempts at most one push.
// Only the record write can fail; push failures are logged and swallowed.
func (e *Emitter) Notify(ctx context.Context, userID string, typ notification.Type, title, body string, data map[string]string) (notification.Notification, error) {
	n, err := e.store.CreateNotification(ctx, notification.Notification{
		UserID: userID,
		Type:   typ,
		Title:  title,
		Body:   body,
		Data:   data,
	})
	if err != nil {
		return notification.Notification{}, errors.Unavailable("notification store unavailable", err)
	}

	e.push(ctx, userID, title, body, data)
	return n, nil
}

// List returns a user's notifications, newest first.
func (e *Emitter) List(ctx context.Context, userID string) ([]notification.Notification, error) {
	list, err := e.store.ListNotificationsByUser(ctx, userID)
	if err != nil {
		return nil, errors.Unavailable("notification store unavailable", err)
	}
	return list, nil
}

// MarkRead flips the read flag on one of the caller's notifications. A
// notification owned by someone else is indistinguishable from a missing one.
func (e *Emitter) MarkRead(ctx context.Context, id, userID string) (notification.Notification, error) {
	n, err := e.store.MarkNotificationRead(ctx, id, userID, nowUTC())
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return notification.Notification{}, errors.NotFound("notification", id)
		}
		return notification.Notification{}, errors.Unavailable("notification store unavailable", err)
	}
	return n, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (e *Emitter) push(ctx context.Context, userID, title, body string, data map[string]string) {
	if e.pusher == nil {
		return
	}

	u, err := e.users.GetUser(ctx, userID)
	if err != nil {
		e.log.WithError(err).WithField("user_id", userID).Debug("push skipped: recipient lookup failed")
		return
	}
	if u.DeviceToken == "" {
		return
	}
	if !e.limiter.Allow() {
		metrics.RecordPushAttempt("throttled")
		e.log.WithField("user_id", userID).Warn("push skipped: outbound rate limit reached")
		return
	}

	messageID, err := e.pusher.Send(ctx, u.DeviceToken, title, body, data)
	if err != nil {
		metrics.RecordPushAttempt("failed")
		e.log.WithError(err).WithField("user_id", userID).Warn("push delivery failed")
		return
	}
	metrics.RecordPushAttempt("delivered")
	e.log.WithField("user_id", userID).WithField("message_id", messageID).Debug("push delivered")
}
