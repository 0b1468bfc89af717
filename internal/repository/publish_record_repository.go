package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
)

// PublishRecordRepository is the append-only ledger of successful publishes.
// Quota usage is always derived from it.
type PublishRecordRepository interface {
	Create(ctx context.Context, tx *sql.Tx, rec *models.PublishRecord) (bool, error)
	Get(ctx context.Context, contentItemID string, platform models.Platform) (*models.PublishRecord, error)
	DistinctContentSince(ctx context.Context, ownerID string, since time.Time) ([]string, error)
	CountByPlatformSince(ctx context.Context, ownerID string, platform models.Platform, since time.Time) (int, error)
}

type publishRecordRepository struct {
	db *sql.DB
}

func NewPublishRecordRepository(db *sql.DB) PublishRecordRepository {
	return &publishRecordRepository{db: db}
}

// Create appends a record. It reports false when a record for the same
// (content item, platform) pair already exists.
func (r *publishRecordRepository) Create(ctx context.Context, tx *sql.Tx, rec *models.PublishRecord) (bool, error) {
	query := `
		INSERT INTO publish_records (content_item_id, owner_id, platform, remote_post_id, remote_url, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (content_item_id, platform) DO NOTHING
	`

	args := []any{rec.ContentItemID, rec.OwnerID, rec.Platform, rec.RemotePostID, rec.RemoteURL, rec.PublishedAt}

	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, args...)
	} else {
		res, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *publishRecordRepository) Get(ctx context.Context, contentItemID string, platform models.Platform) (*models.PublishRecord, error) {
	query := `
		SELECT content_item_id, owner_id, platform, remote_post_id, remote_url, published_at
		FROM publish_records
		WHERE content_item_id = $1 AND platform = $2
	`

	var rec models.PublishRecord
	err := r.db.QueryRowContext(ctx, query, contentItemID, platform).Scan(
		&rec.ContentItemID, &rec.OwnerID, &rec.Platform, &rec.RemotePostID, &rec.RemoteURL, &rec.PublishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &rec, nil
}

func (r *publishRecordRepository) DistinctContentSince(ctx context.Context, ownerID string, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT content_item_id
		FROM publish_records
		WHERE owner_id = $1 AND published_at >= $2
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, since)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *publishRecordRepository) CountByPlatformSince(ctx context.Context, ownerID string, platform models.Platform, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM publish_records
		WHERE owner_id = $1 AND platform = $2 AND published_at >= $3
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, ownerID, platform, since).Scan(&count); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}
