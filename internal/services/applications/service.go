// Package applications implements the bid lifecycle: workers apply to open
// jobs, withdraw pending bids, and employers accept or reject them. Accepting
// one bid is the pivot of the whole engine: it creates the engagement,
// closes the job to further work and rejects every sibling bid in one
// atomic step.
package applications

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quickgig/quickgig/internal/domain/application"
	"github.com/quickgig/quickgig/internal/domain/engagement"
	"github.com/quickgig/quickgig/internal/domain/job"
	"github.com/quickgig/quickgig/internal/domain/notification"
	"github.com/quickgig/quickgig/internal/domain/user"
	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/internal/services/notify"
	"github.com/quickgig/quickgig/internal/storage"
	"github.com/quickgig/quickgig/pkg/logger"
)

// Service coordinates job applications.
type Service struct {
	apps        storage.ApplicationStore
	jobs        storage.JobStore
	engagements storage.EngagementStore
	users       storage.UserStore
	notifier    *notify.Emitter
	log         *logger.Logger
}

// New creates a configured applications service. A nil notifier disables
// notification side effects.
func New(apps storage.ApplicationStore, jobs storage.JobStore, engagements storage.EngagementStore, users storage.UserStore, notifier *notify.Emitter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("applications")
	}
	return &Service{
		apps:        apps,
		jobs:        jobs,
		engagements: engagements,
		users:       users,
		notifier:    notifier,
		log:         log,
	}
}

// Apply submits a bid on an open job. The applicant cannot bid on their own
// posting and may hold at most one non-withdrawn bid per job.
func (s *Service) Apply(ctx context.Context, jobID, applicantID, message string) (application.Application, error) {
	jobID = strings.TrimSpace(jobID)
	applicantID = strings.TrimSpace(applicantID)
	if jobID == "" || applicantID == "" {
		return application.Application{}, errors.Invalid("job_id and applicant_id are required")
	}

	j, err := s.getJob(ctx, jobID)
	if err != nil {
		return application.Application{}, err
	}
	if j.OwnerID == applicantID {
		return application.Application{}, errors.Conflict(errors.ReasonOwnJob, "cannot apply to your own job")
	}
	if j.Status != job.StatusOpen {
		return application.Application{}, errors.Conflict(errors.ReasonJobClosed, "job is not accepting applications")
	}

	if s.users != nil {
		if _, err := s.users.EnsureUser(ctx, user.User{ID: applicantID}); err != nil {
			return application.Application{}, errors.Unavailable("user store unavailable", err)
		}
	}

	app, err := s.apps.CreateApplication(ctx, application.Application{
		JobID:       jobID,
		ApplicantID: applicantID,
		Message:     strings.TrimSpace(message),
	})
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrDuplicate):
			return application.Application{}, errors.Conflict(errors.ReasonDuplicateApplication, "already applied to this job")
		case stderrors.Is(err, storage.ErrStale):
			return application.Application{}, errors.Conflict(errors.ReasonJobClosed, "job is not accepting applications")
		case stderrors.Is(err, storage.ErrNotFound):
			return application.Application{}, errors.NotFound("job", jobID)
		default:
			return application.Application{}, errors.Unavailable("application store unavailable", err)
		}
	}

	s.notify(ctx, j.OwnerID, notification.TypeJobRequest,
		"New application",
		fmt.Sprintf("Someone applied to %q", j.Title),
		map[string]string{"job_id": j.ID, "application_id": app.ID})

	s.log.WithField("application_id", app.ID).
		WithField("job_id", jobID).
		WithField("applicant_id", applicantID).
		Info("application submitted")
	return app, nil
}

// Withdraw retracts the caller's pending bid. Accepted or rejected bids are
// settled and can no longer be withdrawn.
func (s *Service) Withdraw(ctx context.Context, applicationID, callerID string) (application.Application, error) {
	app, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return application.Application{}, err
	}
	if app.ApplicantID != callerID {
		return application.Application{}, errors.Forbidden("only the applicant may withdraw")
	}

	app, _, err = s.apps.WithdrawApplication(ctx, applicationID, time.Now().UTC())
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrStale):
			return application.Application{}, errors.Conflict(errors.ReasonCannotWithdraw, "application has already been processed")
		case stderrors.Is(err, storage.ErrNotFound):
			return application.Application{}, errors.NotFound("application", applicationID)
		default:
			return application.Application{}, errors.Unavailable("application store unavailable", err)
		}
	}

	s.log.WithField("application_id", applicationID).
		WithField("applicant_id", callerID).
		Info("application withdrawn")
	return app, nil
}

// Accept selects one bid as the winner. At most one bid per job can ever win:
// the engagement's unique job binding is the gate, so concurrent accepts on
// the same job resolve to exactly one winner regardless of interleaving.
func (s *Service) Accept(ctx context.Context, applicationID, callerID string) (application.Application, engagement.Engagement, error) {
	app, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return application.Application{}, engagement.Engagement{}, err
	}
	j, err := s.getJob(ctx, app.JobID)
	if err != nil {
		return application.Application{}, engagement.Engagement{}, err
	}
	if j.OwnerID != callerID {
		return application.Application{}, engagement.Engagement{}, errors.Forbidden("only the job owner may accept applications")
	}
	if app.Status != application.StatusApplied {
		return application.Application{}, engagement.Engagement{}, errors.Conflict(errors.ReasonAlreadyProcessed, "application has already been processed")
	}

	app, eng, err := s.engagements.AcceptApplication(ctx, applicationID, engagement.Engagement{
		JobID:      j.ID,
		WorkerID:   app.ApplicantID,
		EmployerID: j.OwnerID,
		ChatRoomID: uuid.NewString(),
	})
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrDuplicate):
			return application.Application{}, engagement.Engagement{}, errors.Conflict(errors.ReasonWorkerExists, "a worker has already been accepted for this job")
		case stderrors.Is(err, storage.ErrStale):
			return application.Application{}, engagement.Engagement{}, errors.Conflict(errors.ReasonAlreadyProcessed, "application has already been processed")
		case stderrors.Is(err, storage.ErrNotFound):
			return application.Application{}, engagement.Engagement{}, errors.NotFound("application", applicationID)
		default:
			return application.Application{}, engagement.Engagement{}, errors.Unavailable("engagement store unavailable", err)
		}
	}

	s.notify(ctx, app.ApplicantID, notification.TypeJobAccepted,
		"Application accepted",
		fmt.Sprintf("You were accepted for %q", j.Title),
		map[string]string{"job_id": j.ID, "engagement_id": eng.ID, "chat_room_id": eng.ChatRoomID})

	s.log.WithField("application_id", app.ID).
		WithField("job_id", j.ID).
		WithField("engagement_id", eng.ID).
		WithField("worker_id", app.ApplicantID).
		Info("application accepted")
	return app, eng, nil
}

// Reject declines a pending bid.
func (s *Service) Reject(ctx context.Context, applicationID, callerID string) (application.Application, error) {
	app, err := s.getApplication(ctx, applicationID)
	if err != nil {
		return application.Application{}, err
	}
	j, err := s.getJob(ctx, app.JobID)
	if err != nil {
		return application.Application{}, err
	}
	if j.OwnerID != callerID {
		return application.Application{}, errors.Forbidden("only the job owner may reject applications")
	}

	app, err = s.apps.RejectApplication(ctx, applicationID, time.Now().UTC())
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrStale):
			return application.Application{}, errors.Conflict(errors.ReasonAlreadyProcessed, "application has already been processed")
		case stderrors.Is(err, storage.ErrNotFound):
			return application.Application{}, errors.NotFound("application", applicationID)
		default:
			return application.Application{}, errors.Unavailable("application store unavailable", err)
		}
	}

	s.notify(ctx, app.ApplicantID, notification.TypeJobRejected,
		"Application rejected",
		fmt.Sprintf("Your application for %q was not selected", j.Title),
		map[string]string{"job_id": j.ID, "application_id": app.ID})

	s.log.WithField("application_id", app.ID).
		WithField("job_id", j.ID).
		Info("application rejected")
	return app, nil
}

// ListByJob returns all bids on a posting. Restricted to the job owner.
func (s *Service) ListByJob(ctx context.Context, jobID, callerID string) ([]application.Application, error) {
	j, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.OwnerID != callerID {
		return nil, errors.Forbidden("only the job owner may list its applications")
	}
	list, err := s.apps.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, errors.Unavailable("application store unavailable", err)
	}
	return list, nil
}

// ListMine returns the caller's own bids across jobs.
func (s *Service) ListMine(ctx context.Context, callerID string) ([]application.Application, error) {
	list, err := s.apps.ListApplicationsByApplicant(ctx, callerID)
	if err != nil {
		return nil, errors.Unavailable("application store unavailable", err)
	}
	return list, nil
}

func (s *Service) getJob(ctx context.Context, id string) (job.Job, error) {
	j, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return job.Job{}, errors.NotFound("job", id)
		}
		return job.Job{}, errors.Unavailable("job store unavailable", err)
	}
	return j, nil
}

func (s *Service) getApplication(ctx context.Context, id string) (application.Application, error) {
	app, err := s.apps.GetApplication(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return application.Application{}, errors.NotFound("application", id)
		}
		return application.Application{}, errors.Unavailable("application store unavailable", err)
	}
	return app, nil
}

func (s *Service) notify(ctx context.Context, userID string, typ notification.Type, title, body string, data map[string]string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, userID, typ, title, body, data); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("failed to record notification")
	}
}
