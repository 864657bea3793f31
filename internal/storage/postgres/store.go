// Package postgres implements the storage interfaces backed by PostgreSQL.
// The unique constraints on gig_job_applications (job_id, applicant_id) and
// gig_accepted_jobs (job_id) are the serialization points the lifecycle
// engine depends on; every multi-entity mutation runs in one transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/quickgig/quickgig/internal/domain/application"
	"github.com/quickgig/quickgig/internal/domain/engagement"
	"github.com/quickgig/quickgig/internal/domain/job"
	"github.com/quickgig/quickgig/internal/domain/notification"
	"github.com/quickgig/quickgig/internal/domain/user"
	"github.com/quickgig/quickgig/internal/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.JobStore = (*Store)(nil)
var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.EngagementStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrDuplicate
	}
	return err
}

// --- UserStore --------------------------------------------------------------

const userColumns = "id, display_name, phone, device_token, rating_average, rating_count, created_at, updated_at"

func scanUser(row interface{ Scan(...interface{}) error }) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Phone, &u.DeviceToken, &u.RatingAverage, &u.RatingCount, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) EnsureUser(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO gig_users (id, display_name, phone, device_token, rating_average, rating_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE gig_users.display_name END,
			phone        = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE gig_users.phone END,
			device_token = CASE WHEN EXCLUDED.device_token <> '' THEN EXCLUDED.device_token ELSE gig_users.device_token END,
			updated_at   = EXCLUDED.updated_at
		RETURNING `+userColumns, u.ID, u.DisplayName, u.Phone, u.DeviceToken, now)

	out, err := scanUser(row)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM gig_users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) SetDeviceToken(ctx context.Context, id, token string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE gig_users SET device_token = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+userColumns, id, token, time.Now().UTC())
	u, err := scanUser(row)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) UpdateUserRating(ctx context.Context, id string, average float64, count, expectedCount int) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE gig_users SET rating_average = $2, rating_count = $3, updated_at = $4
		WHERE id = $1 AND rating_count = $5
		RETURNING `+userColumns, id, average, count, time.Now().UTC(), expectedCount)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetUser(ctx, id); getErr != nil {
			return user.User{}, getErr
		}
		return user.User{}, storage.ErrStale
	}
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

// --- JobStore ---------------------------------------------------------------

const jobColumns = "id, owner_id, title, description, payment, location, required_skills, max_workers, status, applicant_count, created_at, updated_at, closed_at"

func scanJob(row interface{ Scan(...interface{}) error }) (job.Job, error) {
	var (
		j        job.Job
		closedAt sql.NullTime
	)
	err := row.Scan(&j.ID, &j.OwnerID, &j.Title, &j.Description, &j.Payment, &j.Location,
		pq.Array(&j.RequiredSkills), &j.MaxWorkers, &j.Status, &j.ApplicantCount,
		&j.CreatedAt, &j.UpdatedAt, &closedAt)
	if closedAt.Valid {
		j.ClosedAt = closedAt.Time.UTC()
	}
	return j, err
}

func (s *Store) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = job.StatusOpen
	}
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gig_jobs (id, owner_id, title, description, payment, location, required_skills, max_workers, status, applicant_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)
	`, j.ID, j.OwnerID, j.Title, j.Description, j.Payment, j.Location,
		pq.Array(j.RequiredSkills), j.MaxWorkers, j.Status, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return job.Job{}, mapError(err)
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM gig_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		return job.Job{}, mapError(err)
	}
	return j, nil
}

func (s *Store) UpdateJob(ctx context.Context, j job.Job) (job.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE gig_jobs
		SET title = $2, description = $3, payment = $4, location = $5, required_skills = $6, max_workers = $7, updated_at = $8
		WHERE id = $1
		RETURNING `+jobColumns,
		j.ID, j.Title, j.Description, j.Payment, j.Location, pq.Array(j.RequiredSkills), j.MaxWorkers, time.Now().UTC())
	out, err := scanJob(row)
	if err != nil {
		return job.Job{}, mapError(err)
	}
	return out, nil
}

func (s *Store) ListJobsByOwner(ctx context.Context, ownerID string) ([]job.Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM gig_jobs WHERE owner_id = $1 ORDER BY created_at`, ownerID)
}

func (s *Store) ListOpenJobs(ctx context.Context) ([]job.Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM gig_jobs WHERE status = 'open' ORDER BY created_at`)
}

func (s *Store) listJobs(ctx context.Context, query string, args ...interface{}) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func (s *Store) CloseJob(ctx context.Context, id string, at time.Time) (job.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE gig_jobs SET status = 'closed', closed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'open'
		RETURNING `+jobColumns, id, at.UTC())

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetJob(ctx, id); getErr != nil {
			return job.Job{}, getErr
		}
		return job.Job{}, storage.ErrStale
	}
	if err != nil {
		return job.Job{}, mapError(err)
	}
	return j, nil
}

// --- ApplicationStore -------------------------------------------------------

const applicationColumns = "id, job_id, applicant_id, message, status, created_at, updated_at, accepted_at, rejected_at, withdrawn_at"

func scanApplication(row interface{ Scan(...interface{}) error }) (application.Application, error) {
	var (
		app         application.Application
		acceptedAt  sql.NullTime
		rejectedAt  sql.NullTime
		withdrawnAt sql.NullTime
	)
	err := row.Scan(&app.ID, &app.JobID, &app.ApplicantID, &app.Message, &app.Status,
		&app.CreatedAt, &app.UpdatedAt, &acceptedAt, &rejectedAt, &withdrawnAt)
	if acceptedAt.Valid {
		app.AcceptedAt = acceptedAt.Time.UTC()
	}
	if rejectedAt.Valid {
		app.RejectedAt = rejectedAt.Time.UTC()
	}
	if withdrawnAt.Valid {
		app.WithdrawnAt = withdrawnAt.Time.UTC()
	}
	return app, err
}

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.Status = application.StatusApplied
	app.CreatedAt = now
	app.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return application.Application{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// The status predicate keeps the counter gated on an open job even when
	// the caller's precondition read raced a close.
	res, err := tx.ExecContext(ctx, `
		UPDATE gig_jobs SET applicant_count = applicant_count + 1, updated_at = $2
		WHERE id = $1 AND status = 'open'
	`, app.JobID, now)
	if err != nil {
		return application.Application{}, mapError(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM gig_jobs WHERE id = $1)`, app.JobID).Scan(&exists); err != nil {
			return application.Application{}, mapError(err)
		}
		if !exists {
			return application.Application{}, storage.ErrNotFound
		}
		return application.Application{}, storage.ErrStale
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gig_job_applications (id, job_id, applicant_id, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, app.ID, app.JobID, app.ApplicantID, app.Message, app.Status, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return application.Application{}, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return application.Application{}, mapError(err)
	}
	return app, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM gig_job_applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if err != nil {
		return application.Application{}, mapError(err)
	}
	return app, nil
}

func (s *Store) ListApplicationsByJob(ctx context.Context, jobID string) ([]application.Application, error) {
	return s.listApplications(ctx, `SELECT `+applicationColumns+` FROM gig_job_applications WHERE job_id = $1 ORDER BY created_at`, jobID)
}

func (s *Store) ListApplicationsByApplicant(ctx context.Context, applicantID string) ([]application.Application, error) {
	return s.listApplications(ctx, `SELECT `+applicationColumns+` FROM gig_job_applications WHERE applicant_id = $1 ORDER BY created_at`, applicantID)
}

func (s *Store) listApplications(ctx context.Context, query string, args ...interface{}) ([]application.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []application.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	return result, rows.Err()
}

func (s *Store) RejectApplication(ctx context.Context, id string, at time.Time) (application.Application, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE gig_job_applications SET status = 'rejected', rejected_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'applied'
		RETURNING `+applicationColumns, id, at.UTC())

	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetApplication(ctx, id); getErr != nil {
			return application.Application{}, getErr
		}
		return application.Application{}, storage.ErrStale
	}
	if err != nil {
		return application.Application{}, mapError(err)
	}
	return app, nil
}

func (s *Store) WithdrawApplication(ctx context.Context, id string, at time.Time) (application.Application, job.Job, error) {
	at = at.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return application.Application{}, job.Job{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		UPDATE gig_job_applications SET status = 'withdrawn', withdrawn_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'applied'
		RETURNING `+applicationColumns, id, at)

	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetApplication(ctx, id); getErr != nil {
			return application.Application{}, job.Job{}, getErr
		}
		return application.Application{}, job.Job{}, storage.ErrStale
	}
	if err != nil {
		return application.Application{}, job.Job{}, mapError(err)
	}

	jobRow := tx.QueryRowContext(ctx, `
		UPDATE gig_jobs SET applicant_count = applicant_count - 1, updated_at = $2
		WHERE id = $1
		RETURNING `+jobColumns, app.JobID, at)
	j, err := scanJob(jobRow)
	if err != nil {
		return application.Application{}, job.Job{}, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return application.Application{}, job.Job{}, mapError(err)
	}
	return app, j, nil
}

// --- EngagementStore --------------------------------------------------------

const engagementColumns = `id, job_id, worker_id, employer_id, status, chat_room_id,
	employer_rating_score, employer_rating_review, employer_rated_at,
	worker_rating_score, worker_rating_review, worker_rated_at,
	cancelled_by, cancel_reason, created_at, updated_at, completed_at, cancelled_at`

func scanEngagement(row interface{ Scan(...interface{}) error }) (engagement.Engagement, error) {
	var (
		e             engagement.Engagement
		empScore      sql.NullInt64
		empReview     sql.NullString
		empRatedAt    sql.NullTime
		workerScore   sql.NullInt64
		workerReview  sql.NullString
		workerRatedAt sql.NullTime
		completedAt   sql.NullTime
		cancelledAt   sql.NullTime
	)
	err := row.Scan(&e.ID, &e.JobID, &e.WorkerID, &e.EmployerID, &e.Status, &e.ChatRoomID,
		&empScore, &empReview, &empRatedAt,
		&workerScore, &workerReview, &workerRatedAt,
		&e.CancelledBy, &e.CancelReason, &e.CreatedAt, &e.UpdatedAt, &completedAt, &cancelledAt)
	if err != nil {
		return engagement.Engagement{}, err
	}
	if empScore.Valid {
		e.EmployerRating = &engagement.Rating{Score: int(empScore.Int64), Review: empReview.String, RatedAt: empRatedAt.Time.UTC()}
	}
	if workerScore.Valid {
		e.WorkerRating = &engagement.Rating{Score: int(workerScore.Int64), Review: workerReview.String, RatedAt: workerRatedAt.Time.UTC()}
	}
	if completedAt.Valid {
		e.CompletedAt = completedAt.Time.UTC()
	}
	if cancelledAt.Valid {
		e.CancelledAt = cancelledAt.Time.UTC()
	}
	return e, nil
}

func (s *Store) GetEngagement(ctx context.Context, id string) (engagement.Engagement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+engagementColumns+` FROM gig_accepted_jobs WHERE id = $1`, id)
	e, err := scanEngagement(row)
	if err != nil {
		return engagement.Engagement{}, mapError(err)
	}
	return e, nil
}

func (s *Store) GetEngagementByJob(ctx context.Context, jobID string) (engagement.Engagement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+engagementColumns+` FROM gig_accepted_jobs WHERE job_id = $1`, jobID)
	e, err := scanEngagement(row)
	if err != nil {
		return engagement.Engagement{}, mapError(err)
	}
	return e, nil
}

func (s *Store) AcceptApplication(ctx context.Context, applicationID string, eng engagement.Engagement) (application.Application, engagement.Engagement, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return application.Application{}, engagement.Engagement{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM gig_job_applications WHERE id = $1`, applicationID)
	app, err := scanApplication(row)
	if err != nil {
		return application.Application{}, engagement.Engagement{}, mapError(err)
	}

	if eng.ID == "" {
		eng.ID = uuid.NewString()
	}
	eng.JobID = app.JobID
	eng.Status = engagement.StatusActive
	eng.CreatedAt = now
	eng.UpdatedAt = now

	// The unique index on job_id is the exclusivity gate: the second of two
	// racing accepts fails here no matter what its precondition read saw.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO gig_accepted_jobs (id, job_id, worker_id, employer_id, status, chat_room_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, eng.ID, eng.JobID, eng.WorkerID, eng.EmployerID, eng.Status, eng.ChatRoomID, eng.CreatedAt, eng.UpdatedAt)
	if err != nil {
		return application.Application{}, engagement.Engagement{}, mapError(err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE gig_job_applications SET status = 'accepted', accepted_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'applied'
	`, app.ID, now)
	if err != nil {
		return application.Application{}, engagement.Engagement{}, mapError(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return application.Application{}, engagement.Engagement{}, storage.ErrStale
	}
	app.Status = application.StatusAccepted
	app.AcceptedAt = now
	app.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `
		UPDATE gig_jobs SET status = 'in_progress', updated_at = $2 WHERE id = $1
	`, app.JobID, now); err != nil {
		return application.Application{}, engagement.Engagement{}, mapError(err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE gig_job_applications SET status = 'rejected', rejected_at = $3, updated_at = $3
		WHERE job_id = $1 AND id <> $2 AND status = 'applied'
	`, app.JobID, app.ID, now); err != nil {
		return application.Application{}, engagement.Engagement{}, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return application.Application{}, engagement.Engagement{}, mapError(err)
	}
	return app, eng, nil
}

func (s *Store) CompleteEngagement(ctx context.Context, id string, at time.Time) (engagement.Engagement, job.Job, error) {
	at = at.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engagement.Engagement{}, job.Job{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		UPDATE gig_accepted_jobs SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING `+engagementColumns, id, at)

	eng, err := scanEngagement(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetEngagement(ctx, id); getErr != nil {
			return engagement.Engagement{}, job.Job{}, getErr
		}
		return engagement.Engagement{}, job.Job{}, storage.ErrStale
	}
	if err != nil {
		return engagement.Engagement{}, job.Job{}, mapError(err)
	}

	jobRow := tx.QueryRowContext(ctx, `
		UPDATE gig_jobs SET status = 'completed', updated_at = $2 WHERE id = $1
		RETURNING `+jobColumns, eng.JobID, at)
	j, err := scanJob(jobRow)
	if err != nil {
		return engagement.Engagement{}, job.Job{}, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return engagement.Engagement{}, job.Job{}, mapError(err)
	}
	return eng, j, nil
}

func (s *Store) CancelJobCascade(ctx context.Context, jobID, cancelledBy, reason string, at time.Time) (job.Job, error) {
	at = at.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return job.Job{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		UPDATE gig_jobs SET status = 'cancelled', closed_at = $2, updated_at = $2
		WHERE id = $1 AND status IN ('open', 'in_progress')
		RETURNING `+jobColumns, jobID, at)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return job.Job{}, getErr
		}
		return job.Job{}, storage.ErrStale
	}
	if err != nil {
		return job.Job{}, mapError(err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE gig_job_applications SET status = 'rejected', rejected_at = $2, updated_at = $2
		WHERE job_id = $1 AND status = 'applied'
	`, jobID, at); err != nil {
		return job.Job{}, mapError(err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE gig_accepted_jobs
		SET status = 'cancelled', cancelled_by = $2, cancel_reason = $3, cancelled_at = $4, updated_at = $4
		WHERE job_id = $1 AND status = 'active'
	`, jobID, cancelledBy, reason, at); err != nil {
		return job.Job{}, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return job.Job{}, mapError(err)
	}
	return j, nil
}

func (s *Store) SetEngagementRating(ctx context.Context, id string, party engagement.Party, r engagement.Rating) (engagement.Engagement, error) {
	ratedAt := r.RatedAt.UTC()

	var query string
	switch party {
	case engagement.PartyEmployer:
		query = `
			UPDATE gig_accepted_jobs
			SET employer_rating_score = $2, employer_rating_review = $3, employer_rated_at = $4, updated_at = $4
			WHERE id = $1 AND status = 'completed' AND employer_rating_score IS NULL
			RETURNING ` + engagementColumns
	case engagement.PartyWorker:
		query = `
			UPDATE gig_accepted_jobs
			SET worker_rating_score = $2, worker_rating_review = $3, worker_rated_at = $4, updated_at = $4
			WHERE id = $1 AND status = 'completed' AND worker_rating_score IS NULL
			RETURNING ` + engagementColumns
	default:
		return engagement.Engagement{}, storage.ErrStale
	}

	row := s.db.QueryRowContext(ctx, query, id, r.Score, r.Review, ratedAt)
	eng, err := scanEngagement(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetEngagement(ctx, id); getErr != nil {
			return engagement.Engagement{}, getErr
		}
		return engagement.Engagement{}, storage.ErrStale
	}
	if err != nil {
		return engagement.Engagement{}, mapError(err)
	}
	return eng, nil
}

// --- NotificationStore ------------------------------------------------------

const notificationColumns = "id, user_id, type, title, body, data, is_read, created_at, read_at"

func scanNotification(row interface{ Scan(...interface{}) error }) (notification.Notification, error) {
	var (
		n       notification.Notification
		dataRaw []byte
		readAt  sql.NullTime
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &dataRaw, &n.IsRead, &n.CreatedAt, &readAt)
	if err != nil {
		return notification.Notification{}, err
	}
	if len(dataRaw) > 0 {
		_ = json.Unmarshal(dataRaw, &n.Data)
	}
	if readAt.Valid {
		n.ReadAt = readAt.Time.UTC()
	}
	return n, nil
}

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()

	dataJSON, err := json.Marshal(n.Data)
	if err != nil {
		return notification.Notification{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gig_notifications (id, user_id, type, title, body, data, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`, n.ID, n.UserID, n.Type, n.Title, n.Body, dataJSON, n.CreatedAt)
	if err != nil {
		return notification.Notification{}, mapError(err)
	}
	return n, nil
}

func (s *Store) ListNotificationsByUser(ctx context.Context, userID string) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM gig_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) (notification.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE gig_notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID, at.UTC())
	n, err := scanNotification(row)
	if err != nil {
		return notification.Notification{}, mapError(err)
	}
	return n, nil
}

func (s *Store) DeleteExpiredNotifications(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM gig_notifications WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, mapError(err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}
