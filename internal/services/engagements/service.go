// Package engagements manages the life of an accepted job: completion by the
// employer, owner-initiated cancellation that cascades over the posting and
// its pending bids, and the mutual one-shot ratings both parties leave once
// the work is done.
package engagements

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/quickgig/quickgig/internal/domain/engagement"
	"github.com/quickgig/quickgig/internal/domain/job"
	"github.com/quickgig/quickgig/internal/domain/notification"
	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/internal/services/notify"
	"github.com/quickgig/quickgig/internal/services/rating"
	"github.com/quickgig/quickgig/internal/storage"
	"github.com/quickgig/quickgig/pkg/logger"
)

// Service coordinates engagements.
type Service struct {
	engagements storage.EngagementStore
	jobs        storage.JobStore
	ratings     *rating.Aggregator
	notifier    *notify.Emitter
	log         *logger.Logger
}

// New creates a configured engagements service. A nil notifier disables
// notification side effects; a nil aggregator disables rating rollups.
func New(engagements storage.EngagementStore, jobs storage.JobStore, ratings *rating.Aggregator, notifier *notify.Emitter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("engagements")
	}
	return &Service{
		engagements: engagements,
		jobs:        jobs,
		ratings:     ratings,
		notifier:    notifier,
		log:         log,
	}
}

// Get returns one engagement, visible only to its two participants.
func (s *Service) Get(ctx context.Context, id, callerID string) (engagement.Engagement, error) {
	eng, err := s.getEngagement(ctx, id)
	if err != nil {
		return engagement.Engagement{}, err
	}
	if eng.PartyOf(callerID) == "" {
		return engagement.Engagement{}, errors.Forbidden("not a participant of this engagement")
	}
	return eng, nil
}

// GetByJob returns the engagement bound to a job, participant-only.
func (s *Service) GetByJob(ctx context.Context, jobID, callerID string) (engagement.Engagement, error) {
	eng, err := s.engagements.GetEngagementByJob(ctx, jobID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return engagement.Engagement{}, errors.NotFound("engagement for job", jobID)
		}
		return engagement.Engagement{}, errors.Unavailable("engagement store unavailable", err)
	}
	if eng.PartyOf(callerID) == "" {
		return engagement.Engagement{}, errors.Forbidden("not a participant of this engagement")
	}
	return eng, nil
}

// Complete marks the work as done. Only the employer may complete, and only
// while the engagement is active. The job moves to completed in the same
// atomic step.
func (s *Service) Complete(ctx context.Context, engagementID, callerID string) (engagement.Engagement, error) {
	eng, err := s.getEngagement(ctx, engagementID)
	if err != nil {
		return engagement.Engagement{}, err
	}
	if eng.EmployerID != callerID {
		return engagement.Engagement{}, errors.Forbidden("only the employer may complete the engagement")
	}

	eng, j, err := s.engagements.CompleteEngagement(ctx, engagementID, time.Now().UTC())
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrStale):
			return engagement.Engagement{}, errors.Conflict(errors.ReasonAlreadyProcessed, "engagement is not active")
		case stderrors.Is(err, storage.ErrNotFound):
			return engagement.Engagement{}, errors.NotFound("engagement", engagementID)
		default:
			return engagement.Engagement{}, errors.Unavailable("engagement store unavailable", err)
		}
	}

	s.notify(ctx, eng.WorkerID, notification.TypeJobCompleted,
		"Job completed",
		fmt.Sprintf("%q was marked completed", j.Title),
		map[string]string{"job_id": j.ID, "engagement_id": eng.ID})

	s.log.WithField("engagement_id", eng.ID).
		WithField("job_id", j.ID).
		Info("engagement completed")
	return eng, nil
}

// CancelByJob cancels a posting and everything hanging off it: pending bids
// are rejected and an active engagement is cancelled, all in one atomic
// step. A disputed engagement pins the job until the dispute is resolved.
func (s *Service) CancelByJob(ctx context.Context, jobID, callerID, reason string) (job.Job, error) {
	j, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return job.Job{}, errors.NotFound("job", jobID)
		}
		return job.Job{}, errors.Unavailable("job store unavailable", err)
	}
	if j.OwnerID != callerID {
		return job.Job{}, errors.Forbidden("only the job owner may cancel it")
	}
	if j.Status == job.StatusCancelled {
		return job.Job{}, errors.Conflict(errors.ReasonAlreadyCancelled, "job is already cancelled")
	}

	if eng, err := s.engagements.GetEngagementByJob(ctx, jobID); err == nil {
		if eng.Status == engagement.StatusDisputed {
			return job.Job{}, errors.Conflict(errors.ReasonAlreadyProcessed, "engagement is under dispute")
		}
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return job.Job{}, errors.Unavailable("engagement store unavailable", err)
	}

	cancelled, err := s.engagements.CancelJobCascade(ctx, jobID, callerID, strings.TrimSpace(reason), time.Now().UTC())
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrStale):
			return job.Job{}, errors.Conflict(errors.ReasonAlreadyCancelled, "job is no longer cancellable")
		case stderrors.Is(err, storage.ErrNotFound):
			return job.Job{}, errors.NotFound("job", jobID)
		default:
			return job.Job{}, errors.Unavailable("engagement store unavailable", err)
		}
	}

	if eng, err := s.engagements.GetEngagementByJob(ctx, jobID); err == nil && eng.Status == engagement.StatusCancelled {
		s.notify(ctx, eng.WorkerID, notification.TypeJobCancelled,
			"Job cancelled",
			fmt.Sprintf("%q was cancelled by the employer", cancelled.Title),
			map[string]string{"job_id": jobID, "engagement_id": eng.ID})
	}

	s.log.WithField("job_id", jobID).
		WithField("owner_id", callerID).
		Info("job cancelled")
	return cancelled, nil
}

// Rate records the caller's one-shot review of the other party. Only allowed
// once the engagement is completed; each side's slot can be written exactly
// once, and the counterpart's aggregate is updated.
func (s *Service) Rate(ctx context.Context, engagementID, callerID string, score int, review string) (engagement.Engagement, error) {
	if score < 1 || score > 5 {
		return engagement.Engagement{}, errors.Invalid("score must be between 1 and 5")
	}

	eng, err := s.getEngagement(ctx, engagementID)
	if err != nil {
		return engagement.Engagement{}, err
	}
	party := eng.PartyOf(callerID)
	if party == "" {
		return engagement.Engagement{}, errors.Forbidden("not a participant of this engagement")
	}
	if eng.Status != engagement.StatusCompleted {
		return engagement.Engagement{}, errors.Conflict(errors.ReasonJobNotCompleted, "engagement is not completed")
	}
	if eng.RatingFor(party) != nil {
		return engagement.Engagement{}, errors.Conflict(errors.ReasonAlreadyRated, "rating already submitted")
	}

	eng, err = s.engagements.SetEngagementRating(ctx, engagementID, party, engagement.Rating{
		Score:   score,
		Review:  strings.TrimSpace(review),
		RatedAt: time.Now().UTC(),
	})
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrStale):
			return engagement.Engagement{}, s.classifyRatingConflict(ctx, engagementID)
		case stderrors.Is(err, storage.ErrNotFound):
			return engagement.Engagement{}, errors.NotFound("engagement", engagementID)
		default:
			return engagement.Engagement{}, errors.Unavailable("engagement store unavailable", err)
		}
	}

	ratedID := eng.WorkerID
	if party == engagement.PartyWorker {
		ratedID = eng.EmployerID
	}
	if s.ratings != nil {
		if _, err := s.ratings.Apply(ctx, ratedID, score); err != nil {
			s.log.WithError(err).
				WithField("engagement_id", engagementID).
				WithField("rated_id", ratedID).
				Error("failed to fold rating into user aggregate")
		}
	}

	s.log.WithField("engagement_id", engagementID).
		WithField("rated_id", ratedID).
		WithField("score", score).
		Info("rating recorded")
	return eng, nil
}

// classifyRatingConflict decides which invariant a racing rating write hit.
func (s *Service) classifyRatingConflict(ctx context.Context, engagementID string) error {
	eng, err := s.engagements.GetEngagement(ctx, engagementID)
	if err == nil && eng.Status != engagement.StatusCompleted {
		return errors.Conflict(errors.ReasonJobNotCompleted, "engagement is not completed")
	}
	return errors.Conflict(errors.ReasonAlreadyRated, "rating already submitted")
}

func (s *Service) getEngagement(ctx context.Context, id string) (engagement.Engagement, error) {
	eng, err := s.engagements.GetEngagement(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return engagement.Engagement{}, errors.NotFound("engagement", id)
		}
		return engagement.Engagement{}, errors.Unavailable("engagement store unavailable", err)
	}
	return eng, nil
}

func (s *Service) notify(ctx context.Context, userID string, typ notification.Type, title, body string, data map[string]string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, userID, typ, title, body, data); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("failed to record notification")
	}
}
