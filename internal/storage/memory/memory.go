// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development; the same locking discipline gives it the
// atomicity guarantees the postgres store gets from transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quickgig/quickgig/internal/domain/application"
	"github.com/quickgig/quickgig/internal/domain/engagement"
	"github.com/quickgig/quickgig/internal/domain/job"
	"github.com/quickgig/quickgig/internal/domain/notification"
	"github.com/quickgig/quickgig/internal/domain/user"
	"github.com/quickgig/quickgig/internal/storage"
)

// Store is an in-memory implementation of every storage interface.
type Store struct {
	mu               sync.RWMutex
	users            map[string]user.User
	jobs             map[string]job.Job
	applications     map[string]application.Application
	applicationKeys  map[string]string // jobID+"\x00"+applicantID -> application id
	engagements      map[string]engagement.Engagement
	engagementByJob  map[string]string // jobID -> engagement id
	notifications    map[string]notification.Notification
	notificationSeq  int64
	notificationByID map[string]int64 // insertion order, for stable listings
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)
var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.EngagementStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:            make(map[string]user.User),
		jobs:             make(map[string]job.Job),
		applications:     make(map[string]application.Application),
		applicationKeys:  make(map[string]string),
		engagements:      make(map[string]engagement.Engagement),
		engagementByJob:  make(map[string]string),
		notifications:    make(map[string]notification.Notification),
		notificationByID: make(map[string]int64),
	}
}

func applicationKey(jobID, applicantID string) string {
	return jobID + "\x00" + applicantID
}

// UserStore implementation ----------------------------------------------------

func (s *Store) EnsureUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.users[u.ID]
	if !ok {
		u.CreatedAt = now
		u.UpdatedAt = now
		s.users[u.ID] = u
		return u, nil
	}

	if u.DisplayName != "" {
		existing.DisplayName = u.DisplayName
	}
	if u.Phone != "" {
		existing.Phone = u.Phone
	}
	if u.DeviceToken != "" {
		existing.DeviceToken = u.DeviceToken
	}
	existing.UpdatedAt = now
	s.users[u.ID] = existing
	return existing, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) SetDeviceToken(_ context.Context, id, token string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	u.DeviceToken = token
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return u, nil
}

func (s *Store) UpdateUserRating(_ context.Context, id string, average float64, count, expectedCount int) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	if u.RatingCount != expectedCount {
		return user.User{}, storage.ErrStale
	}
	u.RatingAverage = average
	u.RatingCount = count
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return u, nil
}

// JobStore implementation -----------------------------------------------------

func (s *Store) CreateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	} else if _, exists := s.jobs[j.ID]; exists {
		return job.Job{}, storage.ErrDuplicate
	}

	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = job.StatusOpen
	}
	j.RequiredSkills = cloneStrings(j.RequiredSkills)
	s.jobs[j.ID] = j
	return cloneJob(j), nil
}

func (s *Store) GetJob(_ context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, storage.ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *Store) UpdateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[j.ID]
	if !ok {
		return job.Job{}, storage.ErrNotFound
	}
	j.CreatedAt = existing.CreatedAt
	j.ApplicantCount = existing.ApplicantCount
	j.UpdatedAt = time.Now().UTC()
	j.RequiredSkills = cloneStrings(j.RequiredSkills)
	s.jobs[j.ID] = j
	return cloneJob(j), nil
}

func (s *Store) ListJobsByOwner(_ context.Context, ownerID string) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []job.Job
	for _, j := range s.jobs {
		if j.OwnerID == ownerID {
			result = append(result, cloneJob(j))
		}
	}
	sortJobs(result)
	return result, nil
}

func (s *Store) ListOpenJobs(_ context.Context) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []job.Job
	for _, j := range s.jobs {
		if j.Status == job.StatusOpen {
			result = append(result, cloneJob(j))
		}
	}
	sortJobs(result)
	return result, nil
}

func (s *Store) CloseJob(_ context.Context, id string, at time.Time) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, storage.ErrNotFound
	}
	if j.Status != job.StatusOpen {
		return job.Job{}, storage.ErrStale
	}
	j.Status = job.StatusClosed
	j.ClosedAt = at.UTC()
	j.UpdatedAt = at.UTC()
	s.jobs[id] = j
	return cloneJob(j), nil
}

// ApplicationStore implementation ---------------------------------------------

func (s *Store) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[app.JobID]
	if !ok {
		return application.Application{}, storage.ErrNotFound
	}
	if j.Status != job.StatusOpen {
		return application.Application{}, storage.ErrStale
	}

	key := applicationKey(app.JobID, app.ApplicantID)
	if _, exists := s.applicationKeys[key]; exists {
		return application.Application{}, storage.ErrDuplicate
	}

	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.Status = application.StatusApplied
	app.CreatedAt = now
	app.UpdatedAt = now

	s.applications[app.ID] = app
	s.applicationKeys[key] = app.ID

	j.ApplicantCount++
	j.UpdatedAt = now
	s.jobs[j.ID] = j

	return app, nil
}

func (s *Store) GetApplication(_ context.Context, id string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[id]
	if !ok {
		return application.Application{}, storage.ErrNotFound
	}
	return app, nil
}

func (s *Store) ListApplicationsByJob(_ context.Context, jobID string) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []application.Application
	for _, app := range s.applications {
		if app.JobID == jobID {
			result = append(result, app)
		}
	}
	sortApplications(result)
	return result, nil
}

func (s *Store) ListApplicationsByApplicant(_ context.Context, applicantID string) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []application.Application
	for _, app := range s.applications {
		if app.ApplicantID == applicantID {
			result = append(result, app)
		}
	}
	sortApplications(result)
	return result, nil
}

func (s *Store) RejectApplication(_ context.Context, id string, at time.Time) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return application.Application{}, storage.ErrNotFound
	}
	if app.Status != application.StatusApplied {
		return application.Application{}, storage.ErrStale
	}
	app.Status = application.StatusRejected
	app.RejectedAt = at.UTC()
	app.UpdatedAt = at.UTC()
	s.applications[id] = app
	return app, nil
}

func (s *Store) WithdrawApplication(_ context.Context, id string, at time.Time) (application.Application, job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return application.Application{}, job.Job{}, storage.ErrNotFound
	}
	if app.Status != application.StatusApplied {
		return application.Application{}, job.Job{}, storage.ErrStale
	}

	app.Status = application.StatusWithdrawn
	app.WithdrawnAt = at.UTC()
	app.UpdatedAt = at.UTC()
	s.applications[id] = app

	j, ok := s.jobs[app.JobID]
	if ok {
		j.ApplicantCount--
		j.UpdatedAt = at.UTC()
		s.jobs[j.ID] = j
	}
	return app, cloneJob(j), nil
}

// EngagementStore implementation ----------------------------------------------

func (s *Store) GetEngagement(_ context.Context, id string) (engagement.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eng, ok := s.engagements[id]
	if !ok {
		return engagement.Engagement{}, storage.ErrNotFound
	}
	return cloneEngagement(eng), nil
}

func (s *Store) GetEngagementByJob(_ context.Context, jobID string) (engagement.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.engagementByJob[jobID]
	if !ok {
		return engagement.Engagement{}, storage.ErrNotFound
	}
	return cloneEngagement(s.engagements[id]), nil
}

func (s *Store) AcceptApplication(_ context.Context, applicationID string, eng engagement.Engagement) (application.Application, engagement.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[applicationID]
	if !ok {
		return application.Application{}, engagement.Engagement{}, storage.ErrNotFound
	}

	// Exclusivity gate: one engagement per job, ever.
	if _, exists := s.engagementByJob[app.JobID]; exists {
		return application.Application{}, engagement.Engagement{}, storage.ErrDuplicate
	}
	if app.Status != application.StatusApplied {
		return application.Application{}, engagement.Engagement{}, storage.ErrStale
	}

	now := time.Now().UTC()

	if eng.ID == "" {
		eng.ID = uuid.NewString()
	}
	eng.JobID = app.JobID
	eng.Status = engagement.StatusActive
	eng.CreatedAt = now
	eng.UpdatedAt = now
	s.engagements[eng.ID] = eng
	s.engagementByJob[eng.JobID] = eng.ID

	app.Status = application.StatusAccepted
	app.AcceptedAt = now
	app.UpdatedAt = now
	s.applications[app.ID] = app

	if j, ok := s.jobs[app.JobID]; ok {
		j.Status = job.StatusInProgress
		j.UpdatedAt = now
		s.jobs[j.ID] = j
	}

	for id, sibling := range s.applications {
		if sibling.JobID == app.JobID && id != app.ID && sibling.Status == application.StatusApplied {
			sibling.Status = application.StatusRejected
			sibling.RejectedAt = now
			sibling.UpdatedAt = now
			s.applications[id] = sibling
		}
	}

	return app, cloneEngagement(eng), nil
}

func (s *Store) CompleteEngagement(_ context.Context, id string, at time.Time) (engagement.Engagement, job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eng, ok := s.engagements[id]
	if !ok {
		return engagement.Engagement{}, job.Job{}, storage.ErrNotFound
	}
	if eng.Status != engagement.StatusActive {
		return engagement.Engagement{}, job.Job{}, storage.ErrStale
	}

	at = at.UTC()
	eng.Status = engagement.StatusCompleted
	eng.CompletedAt = at
	eng.UpdatedAt = at
	s.engagements[id] = eng

	j, ok := s.jobs[eng.JobID]
	if ok {
		j.Status = job.StatusCompleted
		j.UpdatedAt = at
		s.jobs[j.ID] = j
	}
	return cloneEngagement(eng), cloneJob(j), nil
}

func (s *Store) CancelJobCascade(_ context.Context, jobID, cancelledBy, reason string, at time.Time) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return job.Job{}, storage.ErrNotFound
	}
	if j.Status != job.StatusOpen && j.Status != job.StatusInProgress {
		return job.Job{}, storage.ErrStale
	}

	at = at.UTC()
	j.Status = job.StatusCancelled
	j.ClosedAt = at
	j.UpdatedAt = at
	s.jobs[jobID] = j

	for id, app := range s.applications {
		if app.JobID == jobID && app.Status == application.StatusApplied {
			app.Status = application.StatusRejected
			app.RejectedAt = at
			app.UpdatedAt = at
			s.applications[id] = app
		}
	}

	if engID, ok := s.engagementByJob[jobID]; ok {
		eng := s.engagements[engID]
		if eng.Status == engagement.StatusActive {
			eng.Status = engagement.StatusCancelled
			eng.CancelledBy = cancelledBy
			eng.CancelReason = reason
			eng.CancelledAt = at
			eng.UpdatedAt = at
			s.engagements[engID] = eng
		}
	}

	return cloneJob(j), nil
}

func (s *Store) SetEngagementRating(_ context.Context, id string, party engagement.Party, r engagement.Rating) (engagement.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eng, ok := s.engagements[id]
	if !ok {
		return engagement.Engagement{}, storage.ErrNotFound
	}
	if eng.Status != engagement.StatusCompleted {
		return engagement.Engagement{}, storage.ErrStale
	}

	r.RatedAt = r.RatedAt.UTC()
	switch party {
	case engagement.PartyEmployer:
		if eng.EmployerRating != nil {
			return engagement.Engagement{}, storage.ErrStale
		}
		eng.EmployerRating = &r
	case engagement.PartyWorker:
		if eng.WorkerRating != nil {
			return engagement.Engagement{}, storage.ErrStale
		}
		eng.WorkerRating = &r
	default:
		return engagement.Engagement{}, storage.ErrStale
	}

	eng.UpdatedAt = time.Now().UTC()
	s.engagements[id] = eng
	return cloneEngagement(eng), nil
}

// NotificationStore implementation --------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	n.Data = cloneData(n.Data)
	s.notifications[n.ID] = n
	s.notificationSeq++
	s.notificationByID[n.ID] = s.notificationSeq
	return cloneNotification(n), nil
}

func (s *Store) ListNotificationsByUser(_ context.Context, userID string) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []notification.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			result = append(result, cloneNotification(n))
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return s.notificationByID[result[i].ID] > s.notificationByID[result[k].ID]
	})
	return result, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id, userID string, at time.Time) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return notification.Notification{}, storage.ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = at.UTC()
		s.notifications[id] = n
	}
	return cloneNotification(n), nil
}

func (s *Store) DeleteExpiredNotifications(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, n := range s.notifications {
		if n.CreatedAt.Before(before) {
			delete(s.notifications, id)
			delete(s.notificationByID, id)
			deleted++
		}
	}
	return deleted, nil
}

// clone helpers ----------------------------------------------------------------

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneData(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneJob(j job.Job) job.Job {
	j.RequiredSkills = cloneStrings(j.RequiredSkills)
	return j
}

func cloneEngagement(e engagement.Engagement) engagement.Engagement {
	if e.EmployerRating != nil {
		r := *e.EmployerRating
		e.EmployerRating = &r
	}
	if e.WorkerRating != nil {
		r := *e.WorkerRating
		e.WorkerRating = &r
	}
	return e
}

func cloneNotification(n notification.Notification) notification.Notification {
	n.Data = cloneData(n.Data)
	return n
}

func sortJobs(jobs []job.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}

func sortApplications(apps []application.Application) {
	sort.Slice(apps, func(i, k int) bool {
		if apps[i].CreatedAt.Equal(apps[k].CreatedAt) {
			return apps[i].ID < apps[k].ID
		}
		return apps[i].CreatedAt.Before(apps[k].CreatedAt)
	})
}
