package job

import "time"

// Status is the lifecycle state of a posting.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
)

// Job is an employer's posting seeking workers. ApplicantCount is maintained
// incrementally by the store and always equals the number of non-withdrawn
// applications referencing the job.
type Job struct {
	ID             string
	OwnerID        string
	Title          string
	Description    string
	Payment        string
	Location       string
	RequiredSkills []string
	MaxWorkers     int
	Status         Status
	ApplicantCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       time.Time
}

// Terminal reports whether no owner-initiated edit may leave the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}
