package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/clipcast/internal/models"
)

var jobColumnNames = []string{"id", "content_item_id", "platform", "status", "attempts", "next_attempt_at", "last_error", "completed_at", "created_at", "updated_at"}

func TestDispatchJobCreateIgnoresExistingPair(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO dispatch_jobs .* ON CONFLICT \(content_item_id, platform\) DO NOTHING`).
		WithArgs("job-1", "clip-1", "youtube").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1"))
	mock.ExpectQuery(`INSERT INTO dispatch_jobs`).
		WithArgs("job-2", "clip-1", "youtube").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewDispatchJobRepository(db)

	created, err := repo.Create(context.Background(), &models.DispatchJob{ID: "job-1", ContentItemID: "clip-1", Platform: models.PlatformYoutube})
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.Create(context.Background(), &models.DispatchJob{ID: "job-2", ContentItemID: "clip-1", Platform: models.PlatformYoutube})
	require.NoError(t, err)
	require.False(t, created)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchJobListCandidates(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-time.Hour)

	columns := append(append([]string{}, jobColumnNames...), "c_id", "owner_id", "score", "title", "caption", "media_key", "c_created_at")
	rows := sqlmock.NewRows(columns).
		AddRow("job-gone", "clip-gone", "tiktok", "pending", 0, nil, nil, nil, created, created,
			nil, nil, nil, nil, nil, nil, nil).
		AddRow("job-hi", "clip-hi", "tiktok", "pending", 2, now.Add(-time.Minute), "timeout", nil, created, created,
			"clip-hi", "owner-1", 0.9, "Ace", "clutch", "clips/hi.mp4", created)

	mock.ExpectQuery(`FROM dispatch_jobs j\s+LEFT JOIN content_items c .*ORDER BY c.score DESC NULLS FIRST, c.created_at ASC`).
		WithArgs("tiktok", now, 0.25, "", 200).
		WillReturnRows(rows)

	repo := NewDispatchJobRepository(db)
	candidates, err := repo.ListCandidates(context.Background(), CandidateQuery{
		Platform: models.PlatformTiktok,
		Now:      now,
		MinScore: 0.25,
		Limit:    200,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	require.Nil(t, candidates[0].Content)
	require.Nil(t, candidates[0].Job.NextAttemptAt)

	hi := candidates[1]
	require.Equal(t, models.PlatformTiktok, hi.Job.Platform)
	require.Equal(t, models.JobStatusPending, hi.Job.Status)
	require.Equal(t, 2, hi.Job.Attempts)
	require.NotNil(t, hi.Job.LastError)
	require.Equal(t, "timeout", *hi.Job.LastError)
	require.Equal(t, "owner-1", hi.Content.OwnerID)
	require.Equal(t, 0.9, hi.Content.Score)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchJobClaim(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("claimed", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`UPDATE dispatch_jobs\s+SET status = 'processing',\s+attempts = attempts \+ 1`).
			WithArgs("job-1", now).
			WillReturnRows(sqlmock.NewRows(jobColumnNames).
				AddRow("job-1", "clip-1", "youtube", "processing", 1, nil, nil, nil, now, now))

		job, err := NewDispatchJobRepository(db).Claim(context.Background(), "job-1", now)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusProcessing, job.Status)
		require.Equal(t, 1, job.Attempts)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`UPDATE dispatch_jobs`).
			WithArgs("job-1", now).
			WillReturnRows(sqlmock.NewRows(jobColumnNames))

		_, err = NewDispatchJobRepository(db).Claim(context.Background(), "job-1", now)
		require.True(t, errors.Is(err, ErrJobClaimed))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDispatchJobStateTransitions(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(15 * time.Minute)

	mock.ExpectExec(`SET status = 'pending',\s+next_attempt_at = \$2.*WHERE id = \$1 AND status = 'processing'`).
		WithArgs("job-1", next, "503 from upstream", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'failed'.*WHERE id = \$1 AND status IN \('pending', 'processing'\)`).
		WithArgs("job-2", "authorization revoked", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'completed'.*WHERE id = \$1 AND status <> 'completed'`).
		WithArgs("job-3", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewDispatchJobRepository(db)
	require.NoError(t, repo.ScheduleRetry(context.Background(), "job-1", next, "503 from upstream", now))
	require.NoError(t, repo.MarkFailed(context.Background(), "job-2", "authorization revoked", now))
	require.NoError(t, repo.MarkCompleted(context.Background(), nil, "job-3", now))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchJobTransitionsOnMovedJob(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(5 * time.Minute)

	// A reconcile sweep already put both jobs back to pending or failed them.
	mock.ExpectExec(`SET status = 'pending'`).
		WithArgs("job-1", next, "timeout", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SET status = 'failed'`).
		WithArgs("job-2", "authorization revoked", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewDispatchJobRepository(db)
	require.ErrorIs(t, repo.ScheduleRetry(context.Background(), "job-1", next, "timeout", now), ErrJobClaimed)
	require.ErrorIs(t, repo.MarkFailed(context.Background(), "job-2", "authorization revoked", now), ErrJobClaimed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchJobReconcileStale(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-10 * time.Minute)

	mock.ExpectExec(`UPDATE dispatch_jobs j\s+SET status = 'completed'.*FROM publish_records pr`).
		WithArgs(cutoff, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE dispatch_jobs\s+SET status = 'pending'.*WHERE status = 'processing'`).
		WithArgs(cutoff, now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	completed, reset, err := NewDispatchJobRepository(db).ReconcileStale(context.Background(), cutoff, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), completed)
	require.Equal(t, int64(3), reset)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchJobPendingCounts(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT platform, COUNT\(\*\)\s+FROM dispatch_jobs\s+WHERE status = 'pending' AND platform = ANY\(\$1\)`).
		WithArgs(`{"youtube","tiktok"}`).
		WillReturnRows(sqlmock.NewRows([]string{"platform", "count"}).AddRow("tiktok", 7))

	counts, err := NewDispatchJobRepository(db).PendingCounts(context.Background(),
		[]models.Platform{models.PlatformYoutube, models.PlatformTiktok})
	require.NoError(t, err)
	require.Equal(t, map[models.Platform]int{models.PlatformYoutube: 0, models.PlatformTiktok: 7}, counts)

	require.NoError(t, mock.ExpectationsWereMet())
}
