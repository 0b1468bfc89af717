package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/clipcast/internal/models"
)

type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Subscription, bool, error)
}

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.Subscription, bool, error) {
	var subscription models.Subscription
	var endDate sql.NullTime
	query := "SELECT id, user_id, tier, subscription_end_date, status FROM subscriptions WHERE user_id = $1"
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&subscription.ID, &subscription.UserID, &subscription.Tier, &endDate, &subscription.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	subscription.SubscriptionEndDate = endDate.Time
	return &subscription, true, nil
}
