package notify

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quickgig/quickgig/internal/storage"
	"github.com/quickgig/quickgig/pkg/logger"
)

const defaultRetention = 90 * 24 * time.Hour

// RetentionSweeper periodically deletes notifications older than the
// retention window. It runs on a cron schedule and implements the system
// service lifecycle.
type RetentionSweeper struct {
	store     storage.NotificationStore
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	log       *logger.Logger
}

// NewRetentionSweeper builds a sweeper. Zero retention means the default
// 90 days; an empty schedule runs daily at 03:00.
func NewRetentionSweeper(store storage.NotificationStore, retention time.Duration, schedule string, log *logger.Logger) *RetentionSweeper {
	if retention <= 0 {
		retention = defaultRetention
	}
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if log == nil {
		log = logger.NewDefault("notify-retention")
	}
	return &RetentionSweeper{
		store:     store,
		retention: retention,
		schedule:  schedule,
		log:       log,
	}
}

func (s *RetentionSweeper) Name() string { return "notification-retention" }

func (s *RetentionSweeper) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.WithField("schedule", s.schedule).WithField("retention", s.retention.String()).Info("Notification retention sweeper started")
	return nil
}

func (s *RetentionSweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Sweep deletes notifications created before the retention cutoff. It is
// exported so operators can trigger a manual pass.
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)
	deleted, err := s.store.DeleteExpiredNotifications(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("Notification retention sweep failed")
		return
	}
	if deleted > 0 {
		s.log.WithField("deleted", deleted).WithField("cutoff", cutoff.Format(time.RFC3339)).Info("Expired notifications removed")
	}
}
