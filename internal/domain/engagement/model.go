package engagement

import "time"

// Status is the lifecycle state of an engagement.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
)

// Party identifies which side of an engagement acted.
type Party string

const (
	PartyEmployer Party = "employer"
	PartyWorker   Party = "worker"
)

// Rating is a one-shot review left by one party about the other.
type Rating struct {
	Score   int
	Review  string
	RatedAt time.Time
}

// Engagement is the single accepted relationship for one job. JobID is
// unique across all engagements ever created; the store enforces it.
type Engagement struct {
	ID             string
	JobID          string
	WorkerID       string
	EmployerID     string
	Status         Status
	ChatRoomID     string
	EmployerRating *Rating // left by the employer, about the worker
	WorkerRating   *Rating // left by the worker, about the employer
	CancelledBy    string
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    time.Time
	CancelledAt    time.Time
}

// RatingFor returns the rating slot owned by the given party.
func (e Engagement) RatingFor(p Party) *Rating {
	if p == PartyEmployer {
		return e.EmployerRating
	}
	return e.WorkerRating
}

// PartyOf returns which side of the engagement userID is on, or "" if the
// user is neither participant.
func (e Engagement) PartyOf(userID string) Party {
	switch userID {
	case e.EmployerID:
		return PartyEmployer
	case e.WorkerID:
		return PartyWorker
	}
	return ""
}
