package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/clipcast/internal/models"
)

type ContentItemRepository interface {
	GetByID(ctx context.Context, id string) (*models.ContentItem, error)
}

type contentItemRepository struct {
	db *sql.DB
}

func NewContentItemRepository(db *sql.DB) ContentItemRepository {
	return &contentItemRepository{db: db}
}

func (r *contentItemRepository) GetByID(ctx context.Context, id string) (*models.ContentItem, error) {
	query := `SELECT id, owner_id, score, title, caption, media_key, created_at FROM content_items WHERE id = $1`

	var item models.ContentItem
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.OwnerID, &item.Score, &item.Title, &item.Caption, &item.MediaKey, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &item, nil
}
