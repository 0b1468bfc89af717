package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
)

const (
	ScoreFloor   = 0.25
	ScoreCeiling = 0.95
)

// DefaultTiers apply when tier_configs has no row for a tier.
var DefaultTiers = map[string]models.UserTierConfig{
	models.TierStarter: {
		TierName:            models.TierStarter,
		UniqueContentPerDay: 8,
		PlatformDailyCap: map[models.Platform]int{
			models.PlatformYoutube:   10,
			models.PlatformTiktok:    10,
			models.PlatformInstagram: 10,
		},
	},
	models.TierCreator: {
		TierName:            models.TierCreator,
		UniqueContentPerDay: 20,
		PlatformDailyCap: map[models.Platform]int{
			models.PlatformYoutube:   15,
			models.PlatformTiktok:    25,
			models.PlatformInstagram: 25,
		},
	},
	models.TierStudio: {
		TierName:            models.TierStudio,
		UniqueContentPerDay: 60,
		PlatformDailyCap: map[models.Platform]int{
			models.PlatformYoutube:   50,
			models.PlatformTiktok:    50,
			models.PlatformInstagram: 50,
		},
	},
}

type TierLimits struct {
	Tier                string
	UniqueContentPerDay int
	ScoreThreshold      float64
	PlatformDailyCap    map[models.Platform]int
}

func (l *TierLimits) DailyCap(p models.Platform) int {
	return l.PlatformDailyCap[p]
}

// MinScore is the effective score bar for this owner.
func (l *TierLimits) MinScore() float64 {
	return max(ScoreFloor, l.ScoreThreshold)
}

type TierService interface {
	Resolve(ctx context.Context, ownerID string) (*TierLimits, error)
}

type tierService struct {
	sr repository.SubscriptionRepository
	st repository.SettingsRepository
	tr repository.TierRepository

	defaultCaps      map[models.Platform]int
	defaultThreshold float64
	now              func() time.Time
}

func NewTierService(
	sr repository.SubscriptionRepository,
	st repository.SettingsRepository,
	tr repository.TierRepository,
	defaultCaps map[models.Platform]int,
	defaultThreshold float64) TierService {
	return &tierService{
		sr:               sr,
		st:               st,
		tr:               tr,
		defaultCaps:      defaultCaps,
		defaultThreshold: defaultThreshold,
		now:              time.Now,
	}
}

// Resolve never fails open: anything it cannot vouch for resolves to the
// starter tier.
func (s *tierService) Resolve(ctx context.Context, ownerID string) (*TierLimits, error) {
	tierName := models.TierStarter

	sub, ok, err := s.sr.GetByUserID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error fetching subscription for %s: %w", ownerID, err)
	}
	if ok && s.subscriptionActive(sub) && sub.Tier != "" {
		tierName = sub.Tier
	}

	tier, err := s.tierConfig(ctx, tierName)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		if tier, err = s.tierConfig(ctx, models.TierStarter); err != nil {
			return nil, err
		}
	}

	threshold := s.defaultThreshold
	settings, ok, err := s.st.GetByUserID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error fetching settings for %s: %w", ownerID, err)
	}
	if ok {
		threshold = settings.ScoreThreshold
	}

	caps := make(map[models.Platform]int, len(s.defaultCaps))
	for p, c := range s.defaultCaps {
		caps[p] = c
	}
	for p, c := range tier.PlatformDailyCap {
		caps[p] = c
	}

	return &TierLimits{
		Tier:                tier.TierName,
		UniqueContentPerDay: tier.UniqueContentPerDay,
		ScoreThreshold:      clamp(threshold, ScoreFloor, ScoreCeiling),
		PlatformDailyCap:    caps,
	}, nil
}

func (s *tierService) subscriptionActive(sub *models.Subscription) bool {
	if sub.Status != models.SubscriptionStatusActive {
		return false
	}
	return sub.SubscriptionEndDate.IsZero() || sub.SubscriptionEndDate.After(s.now())
}

func (s *tierService) tierConfig(ctx context.Context, name string) (*models.UserTierConfig, error) {
	tier, err := s.tr.GetByName(ctx, name)
	if errors.Is(err, repository.ErrInvalidTierConfig) {
		slog.Error("tier config unreadable, using starter limits", "tier", name, "error", err)
		def := DefaultTiers[models.TierStarter]
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching tier %s: %w", name, err)
	}
	if tier != nil {
		return tier, nil
	}
	if def, ok := DefaultTiers[name]; ok {
		return &def, nil
	}
	return nil, nil
}
