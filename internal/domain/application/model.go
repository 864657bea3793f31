package application

import "time"

// Status is the lifecycle state of a worker's bid on a job.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// Application is one worker's bid on one job. The (JobID, ApplicantID) pair
// is unique per the store's constraint.
type Application struct {
	ID          string
	JobID       string
	ApplicantID string
	Message     string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AcceptedAt  time.Time
	RejectedAt  time.Time
	WithdrawnAt time.Time
}

// Terminal reports whether no transition may leave the status.
func (s Status) Terminal() bool { return s != StatusApplied }
