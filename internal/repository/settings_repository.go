package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/clipcast/internal/models"
)

type SettingsRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Settings, bool, error)
	UpsertScoreThreshold(ctx context.Context, userID string, threshold float64) (*models.Settings, error)
}

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetByUserID(ctx context.Context, userID string) (*models.Settings, bool, error) {
	query := `SELECT id, user_id, score_threshold, created_at, updated_at FROM settings WHERE user_id = $1`
	row := r.db.QueryRowContext(ctx, query, userID)

	var settings models.Settings
	err := row.Scan(&settings.ID, &settings.UserID, &settings.ScoreThreshold, &settings.CreatedAt, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}

	return &settings, true, nil
}

func (r *settingsRepository) UpsertScoreThreshold(ctx context.Context, userID string, threshold float64) (*models.Settings, error) {
	query := `
		INSERT INTO settings (user_id, score_threshold)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET score_threshold = EXCLUDED.score_threshold,
			updated_at = now()
		RETURNING id, user_id, score_threshold, created_at, updated_at
	`

	var settings models.Settings
	err := r.db.QueryRowContext(ctx, query, userID, threshold).
		Scan(&settings.ID, &settings.UserID, &settings.ScoreThreshold, &settings.CreatedAt, &settings.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &settings, nil
}
