package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/clipcast/internal/models"
)

// ErrJobClaimed is returned by Claim when the job is no longer pending and
// eligible, usually because an overlapping run took it first. ScheduleRetry
// and MarkFailed return it when the job already left the expected state.
var ErrJobClaimed = errors.New("dispatch job already claimed or not eligible")

type CandidateQuery struct {
	Platform models.Platform
	OwnerID  string
	Now      time.Time
	MinScore float64
	Limit    int
}

type DispatchJobRepository interface {
	Create(ctx context.Context, job *models.DispatchJob) (bool, error)
	GetByID(ctx context.Context, id string) (*models.DispatchJob, error)
	ListByContentItem(ctx context.Context, contentItemID string) ([]*models.DispatchJob, error)
	ListCandidates(ctx context.Context, q CandidateQuery) ([]*models.Candidate, error)
	Claim(ctx context.Context, id string, now time.Time) (*models.DispatchJob, error)
	ScheduleRetry(ctx context.Context, id string, nextAttemptAt time.Time, lastError string, now time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string, now time.Time) error
	MarkCompleted(ctx context.Context, tx *sql.Tx, id string, completedAt time.Time) error
	ReconcileStale(ctx context.Context, cutoff, now time.Time) (completed int64, reset int64, err error)
	PendingCounts(ctx context.Context, platforms []models.Platform) (map[models.Platform]int, error)
}

type dispatchJobRepository struct {
	db *sql.DB
}

func NewDispatchJobRepository(db *sql.DB) DispatchJobRepository {
	return &dispatchJobRepository{db: db}
}

const jobColumns = `id, content_item_id, platform, status, attempts, next_attempt_at, last_error, completed_at, created_at, updated_at`

func (r *dispatchJobRepository) Create(ctx context.Context, job *models.DispatchJob) (bool, error) {
	query := `
		INSERT INTO dispatch_jobs (id, content_item_id, platform, status, attempts)
		VALUES ($1, $2, $3, 'pending', 0)
		ON CONFLICT (content_item_id, platform) DO NOTHING
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx, query, job.ID, job.ContentItemID, job.Platform).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return true, nil
}

func (r *dispatchJobRepository) GetByID(ctx context.Context, id string) (*models.DispatchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM dispatch_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return job, nil
}

func (r *dispatchJobRepository) ListByContentItem(ctx context.Context, contentItemID string) ([]*models.DispatchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM dispatch_jobs WHERE content_item_id = $1 ORDER BY platform`

	rows, err := r.db.QueryContext(ctx, query, contentItemID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.DispatchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListCandidates returns pending, retry-ready jobs for one platform, highest
// score first and oldest first among equal scores. Jobs whose content row is
// gone are included (Content == nil) so the caller can fail them.
func (r *dispatchJobRepository) ListCandidates(ctx context.Context, q CandidateQuery) ([]*models.Candidate, error) {
	query := `
		SELECT j.id, j.content_item_id, j.platform, j.status, j.attempts, j.next_attempt_at,
		       j.last_error, j.completed_at, j.created_at, j.updated_at,
		       c.id, c.owner_id, c.score, c.title, c.caption, c.media_key, c.created_at
		FROM dispatch_jobs j
		LEFT JOIN content_items c ON c.id = j.content_item_id
		WHERE j.platform = $1
		  AND j.status = 'pending'
		  AND (j.next_attempt_at IS NULL OR j.next_attempt_at <= $2)
		  AND (c.id IS NULL OR c.score >= $3)
		  AND ($4::text = '' OR c.owner_id = $4)
		ORDER BY c.score DESC NULLS FIRST, c.created_at ASC, j.id ASC
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query, q.Platform, q.Now, q.MinScore, q.OwnerID, q.Limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var candidates []*models.Candidate
	for rows.Next() {
		var (
			job                        models.DispatchJob
			nextAttemptAt, completedAt sql.NullTime
			lastError                  sql.NullString
			contentID, ownerID         sql.NullString
			title, caption, mediaKey   sql.NullString
			score                      sql.NullFloat64
			contentCreatedAt           sql.NullTime
		)
		err := rows.Scan(
			&job.ID, &job.ContentItemID, &job.Platform, &job.Status, &job.Attempts, &nextAttemptAt,
			&lastError, &completedAt, &job.CreatedAt, &job.UpdatedAt,
			&contentID, &ownerID, &score, &title, &caption, &mediaKey, &contentCreatedAt,
		)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		job.NextAttemptAt = nullTime(nextAttemptAt)
		job.CompletedAt = nullTime(completedAt)
		job.LastError = nullString(lastError)

		candidate := &models.Candidate{Job: &job}
		if contentID.Valid {
			candidate.Content = &models.ContentItem{
				ID:        contentID.String,
				OwnerID:   ownerID.String,
				Score:     score.Float64,
				Title:     title.String,
				Caption:   caption.String,
				MediaKey:  mediaKey.String,
				CreatedAt: contentCreatedAt.Time,
			}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// Claim moves a pending, eligible job to processing and increments its
// attempt count in a single conditional update.
func (r *dispatchJobRepository) Claim(ctx context.Context, id string, now time.Time) (*models.DispatchJob, error) {
	query := `
		UPDATE dispatch_jobs
		SET status = 'processing',
			attempts = attempts + 1,
			updated_at = $2
		WHERE id = $1
		  AND status = 'pending'
		  AND (next_attempt_at IS NULL OR next_attempt_at <= $2)
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobClaimed
		}
		slog.Info(err.Error())
		return nil, err
	}
	return job, nil
}

func (r *dispatchJobRepository) ScheduleRetry(ctx context.Context, id string, nextAttemptAt time.Time, lastError string, now time.Time) error {
	query := `
		UPDATE dispatch_jobs
		SET status = 'pending',
			next_attempt_at = $2,
			last_error = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'processing'
	`
	res, err := r.db.ExecContext(ctx, query, id, nextAttemptAt, lastError, now)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return requireAffected(res)
}

func (r *dispatchJobRepository) MarkFailed(ctx context.Context, id string, lastError string, now time.Time) error {
	query := `
		UPDATE dispatch_jobs
		SET status = 'failed',
			last_error = $2,
			next_attempt_at = NULL,
			updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	res, err := r.db.ExecContext(ctx, query, id, lastError, now)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return requireAffected(res)
}

func (r *dispatchJobRepository) MarkCompleted(ctx context.Context, tx *sql.Tx, id string, completedAt time.Time) error {
	query := `
		UPDATE dispatch_jobs
		SET status = 'completed',
			completed_at = $2,
			next_attempt_at = NULL,
			last_error = NULL,
			updated_at = $2
		WHERE id = $1 AND status <> 'completed'
	`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, id, completedAt)
	} else {
		_, err = r.db.ExecContext(ctx, query, id, completedAt)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ReconcileStale finishes jobs stuck in processing since before cutoff. Jobs
// whose publish already reached the ledger are completed; the rest go back
// to pending. Attempts are left untouched.
func (r *dispatchJobRepository) ReconcileStale(ctx context.Context, cutoff, now time.Time) (int64, int64, error) {
	completeQuery := `
		UPDATE dispatch_jobs j
		SET status = 'completed',
			completed_at = pr.published_at,
			next_attempt_at = NULL,
			updated_at = $2
		FROM publish_records pr
		WHERE pr.content_item_id = j.content_item_id
		  AND pr.platform = j.platform
		  AND j.status = 'processing'
		  AND j.updated_at < $1
	`
	resetQuery := `
		UPDATE dispatch_jobs
		SET status = 'pending',
			updated_at = $2
		WHERE status = 'processing'
		  AND updated_at < $1
	`

	res, err := r.db.ExecContext(ctx, completeQuery, cutoff, now)
	if err != nil {
		slog.Info(err.Error())
		return 0, 0, err
	}
	completed, _ := res.RowsAffected()

	res, err = r.db.ExecContext(ctx, resetQuery, cutoff, now)
	if err != nil {
		slog.Info(err.Error())
		return completed, 0, err
	}
	reset, _ := res.RowsAffected()

	return completed, reset, nil
}

func (r *dispatchJobRepository) PendingCounts(ctx context.Context, platforms []models.Platform) (map[models.Platform]int, error) {
	query := `
		SELECT platform, COUNT(*)
		FROM dispatch_jobs
		WHERE status = 'pending' AND platform = ANY($1)
		GROUP BY platform
	`

	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(names))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Platform]int, len(platforms))
	for _, p := range platforms {
		counts[p] = 0
	}
	for rows.Next() {
		var (
			platform models.Platform
			n        int
		)
		if err := rows.Scan(&platform, &n); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		counts[platform] = n
	}
	return counts, rows.Err()
}

// requireAffected reports ErrJobClaimed when a conditional transition matched
// no row, i.e. the job moved on without us.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if n == 0 {
		return ErrJobClaimed
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.DispatchJob, error) {
	var (
		job                        models.DispatchJob
		nextAttemptAt, completedAt sql.NullTime
		lastError                  sql.NullString
	)
	err := row.Scan(&job.ID, &job.ContentItemID, &job.Platform, &job.Status, &job.Attempts,
		&nextAttemptAt, &lastError, &completedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.NextAttemptAt = nullTime(nextAttemptAt)
	job.CompletedAt = nullTime(completedAt)
	job.LastError = nullString(lastError)
	return &job, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
