// Package jobs manages the posting side of the marketplace: employers create
// postings, browse their own, and close them to further applications.
package jobs

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/quickgig/quickgig/internal/domain/job"
	"github.com/quickgig/quickgig/internal/domain/user"
	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/internal/storage"
	"github.com/quickgig/quickgig/pkg/logger"
)

// Service coordinates job postings.
type Service struct {
	jobs  storage.JobStore
	users storage.UserStore
	log   *logger.Logger
}

// New creates a configured jobs service.
func New(jobs storage.JobStore, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	return &Service{jobs: jobs, users: users, log: log}
}

// CreateInput carries the employer-supplied fields of a new posting.
type CreateInput struct {
	Title          string
	Description    string
	Payment        string
	Location       string
	RequiredSkills []string
	MaxWorkers     int
}

// Create opens a new posting owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (job.Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	title := strings.TrimSpace(in.Title)

	if ownerID == "" {
		return job.Job{}, errors.Invalid("owner_id is required")
	}
	if title == "" {
		return job.Job{}, errors.Invalid("title is required")
	}
	if in.MaxWorkers < 0 {
		return job.Job{}, errors.Invalid("max_workers cannot be negative")
	}
	maxWorkers := in.MaxWorkers
	if maxWorkers == 0 {
		maxWorkers = 1
	}

	if s.users != nil {
		if _, err := s.users.EnsureUser(ctx, user.User{ID: ownerID}); err != nil {
			return job.Job{}, errors.Unavailable("job store unavailable", err)
		}
	}

	j, err := s.jobs.CreateJob(ctx, job.Job{
		OwnerID:        ownerID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Payment:        strings.TrimSpace(in.Payment),
		Location:       strings.TrimSpace(in.Location),
		RequiredSkills: in.RequiredSkills,
		MaxWorkers:     maxWorkers,
		Status:         job.StatusOpen,
	})
	if err != nil {
		return job.Job{}, errors.Unavailable("job store unavailable", err)
	}

	s.log.WithField("job_id", j.ID).
		WithField("owner_id", ownerID).
		Info("job created")
	return j, nil
}

// Get returns one posting.
func (s *Service) Get(ctx context.Context, id string) (job.Job, error) {
	j, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return job.Job{}, errors.NotFound("job", id)
		}
		return job.Job{}, errors.Unavailable("job store unavailable", err)
	}
	return j, nil
}

// ListOpen returns postings still accepting applications.
func (s *Service) ListOpen(ctx context.Context) ([]job.Job, error) {
	list, err := s.jobs.ListOpenJobs(ctx)
	if err != nil {
		return nil, errors.Unavailable("job store unavailable", err)
	}
	return list, nil
}

// ListByOwner returns the postings created by ownerID.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]job.Job, error) {
	list, err := s.jobs.ListJobsByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Unavailable("job store unavailable", err)
	}
	return list, nil
}

// Close stops further applications to the posting. Only the owner may close,
// and only while the job is still open.
func (s *Service) Close(ctx context.Context, jobID, callerID string) (job.Job, error) {
	j, err := s.Get(ctx, jobID)
	if err != nil {
		return job.Job{}, err
	}
	if j.OwnerID != callerID {
		return job.Job{}, errors.Forbidden("only the job owner may close it")
	}

	closed, err := s.jobs.CloseJob(ctx, jobID, time.Now().UTC())
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrStale):
			return job.Job{}, errors.Conflict(errors.ReasonJobClosed, "job is no longer open")
		case stderrors.Is(err, storage.ErrNotFound):
			return job.Job{}, errors.NotFound("job", jobID)
		default:
			return job.Job{}, errors.Unavailable("job store unavailable", err)
		}
	}

	s.log.WithField("job_id", jobID).
		WithField("owner_id", callerID).
		Info("job closed")
	return closed, nil
}
