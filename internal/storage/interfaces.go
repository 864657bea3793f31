// Package storage defines the persistence contracts for the lifecycle
// engine. Implementations must enforce the uniqueness constraints stated on
// each method; services rely on them as serialization points, not as
// best-effort checks.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/quickgig/quickgig/internal/domain/application"
	"github.com/quickgig/quickgig/internal/domain/engagement"
	"github.com/quickgig/quickgig/internal/domain/job"
	"github.com/quickgig/quickgig/internal/domain/notification"
	"github.com/quickgig/quickgig/internal/domain/user"
)

// Sentinel errors returned by stores. Services map them onto the typed
// failure taxonomy at the operation boundary.
var (
	// ErrNotFound reports an absent record.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate reports a unique-key violation.
	ErrDuplicate = errors.New("storage: duplicate key")
	// ErrStale reports a conditional write whose precondition no longer held.
	ErrStale = errors.New("storage: conditional update failed")
)

// UserStore persists user profiles and the rating aggregate.
type UserStore interface {
	// EnsureUser creates the record if absent, otherwise refreshes mutable
	// profile fields. The rating aggregate is never touched here.
	EnsureUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	SetDeviceToken(ctx context.Context, id, token string) (user.User, error)
	// UpdateUserRating writes the aggregate only when the stored count still
	// equals expectedCount, returning ErrStale otherwise.
	UpdateUserRating(ctx context.Context, id string, average float64, count, expectedCount int) (user.User, error)
}

// JobStore persists job postings.
type JobStore interface {
	CreateJob(ctx context.Context, j job.Job) (job.Job, error)
	GetJob(ctx context.Context, id string) (job.Job, error)
	UpdateJob(ctx context.Context, j job.Job) (job.Job, error)
	ListJobsByOwner(ctx context.Context, ownerID string) ([]job.Job, error)
	ListOpenJobs(ctx context.Context) ([]job.Job, error)
	// CloseJob transitions open -> closed, returning ErrStale when the job is
	// no longer open.
	CloseJob(ctx context.Context, id string, at time.Time) (job.Job, error)
}

// ApplicationStore persists bids. CreateApplication and WithdrawApplication
// adjust the owning job's applicant count in the same atomic unit.
type ApplicationStore interface {
	// CreateApplication inserts the bid and increments the job's applicant
	// count. Returns ErrDuplicate when (JobID, ApplicantID) already exists
	// and ErrStale when the job is no longer open.
	CreateApplication(ctx context.Context, app application.Application) (application.Application, error)
	GetApplication(ctx context.Context, id string) (application.Application, error)
	ListApplicationsByJob(ctx context.Context, jobID string) ([]application.Application, error)
	ListApplicationsByApplicant(ctx context.Context, applicantID string) ([]application.Application, error)
	// RejectApplication transitions applied -> rejected, ErrStale otherwise.
	RejectApplication(ctx context.Context, id string, at time.Time) (application.Application, error)
	// WithdrawApplication transitions applied -> withdrawn and decrements the
	// job's applicant count atomically. ErrStale when not in applied state.
	WithdrawApplication(ctx context.Context, id string, at time.Time) (application.Application, job.Job, error)
}

// EngagementStore persists engagements and owns the multi-entity atomic
// mutations of the lifecycle engine.
type EngagementStore interface {
	GetEngagement(ctx context.Context, id string) (engagement.Engagement, error)
	GetEngagementByJob(ctx context.Context, jobID string) (engagement.Engagement, error)

	// AcceptApplication performs the accept protocol in one atomic unit:
	// insert eng (unique JobID is the exclusivity gate), transition the
	// application applied -> accepted, the job open -> in_progress, and every
	// sibling applied application -> rejected. ErrDuplicate when an
	// engagement already exists for the job, ErrStale when the application
	// left the applied state.
	AcceptApplication(ctx context.Context, applicationID string, eng engagement.Engagement) (application.Application, engagement.Engagement, error)

	// CompleteEngagement transitions active -> completed together with the
	// job's move to completed. ErrStale when the engagement is not active.
	CompleteEngagement(ctx context.Context, id string, at time.Time) (engagement.Engagement, job.Job, error)

	// CancelJobCascade cancels the job, rejects its pending applications and
	// cancels an active engagement if present, all atomically. ErrStale when
	// the job is not open or in progress.
	CancelJobCascade(ctx context.Context, jobID, cancelledBy, reason string, at time.Time) (job.Job, error)

	// SetEngagementRating writes one rating slot exactly once. ErrStale when
	// the slot is already populated or the engagement is absent from the
	// completed state.
	SetEngagementRating(ctx context.Context, id string, party engagement.Party, r engagement.Rating) (engagement.Engagement, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	ListNotificationsByUser(ctx context.Context, userID string) ([]notification.Notification, error)
	// MarkNotificationRead flips the read flag for the owning user only.
	MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) (notification.Notification, error)
	// DeleteExpiredNotifications removes records created before the cutoff.
	DeleteExpiredNotifications(ctx context.Context, before time.Time) (int, error)
}
