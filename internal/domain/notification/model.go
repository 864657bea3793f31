package notification

import "time"

// Type is the closed set of notification kinds the engine emits.
type Type string

const (
	TypeJobRequest   Type = "job_request"
	TypeJobAccepted  Type = "job_accepted"
	TypeJobRejected  Type = "job_rejected"
	TypeJobCompleted Type = "job_completed"
	TypeJobCancelled Type = "job_cancelled"
)

// Notification is an append-only in-app record. Push delivery is a separate
// best-effort attempt and leaves no trace here.
type Notification struct {
	ID        string
	UserID    string
	Type      Type
	Title     string
	Body      string
	Data      map[string]string
	IsRead    bool
	CreatedAt time.Time
	ReadAt    time.Time
}
