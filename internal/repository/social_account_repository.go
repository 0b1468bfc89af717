package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/clipcast/internal/models"
)

type SocialAccountRepository interface {
	GetByUserAndPlatform(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

func (r *socialAccountRepository) GetByUserAndPlatform(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error) {
	query := `
		SELECT id, user_id, platform, account_id, account_username, access_token,
		       token_expires_at, account_status, created_at, updated_at
		FROM social_accounts
		WHERE user_id = $1 AND platform = $2
	`
	row := r.db.QueryRowContext(ctx, query, userID, platform)

	var sa models.SocialAccount
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountUsername,
		&sa.AccessToken, &sa.TokenExpiresAt, &sa.AccountStatus, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &sa, nil
}
