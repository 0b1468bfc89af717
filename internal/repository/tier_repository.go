package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/clipcast/internal/models"
)

// ErrInvalidTierConfig marks a tier row that exists but cannot be decoded.
var ErrInvalidTierConfig = errors.New("invalid tier config")

type TierRepository interface {
	GetByName(ctx context.Context, name string) (*models.UserTierConfig, error)
}

type tierRepository struct {
	db *sql.DB
}

func NewTierRepository(db *sql.DB) TierRepository {
	return &tierRepository{db: db}
}

func (r *tierRepository) GetByName(ctx context.Context, name string) (*models.UserTierConfig, error) {
	query := `SELECT tier_name, unique_content_per_day, platform_caps FROM tier_configs WHERE tier_name = $1`

	var tier models.UserTierConfig
	var caps []byte
	err := r.db.QueryRowContext(ctx, query, name).Scan(&tier.TierName, &tier.UniqueContentPerDay, &caps)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	tier.PlatformDailyCap = map[models.Platform]int{}
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &tier.PlatformDailyCap); err != nil {
			return nil, fmt.Errorf("%w: platform_caps for tier %s: %v", ErrInvalidTierConfig, name, err)
		}
	}

	return &tier, nil
}
