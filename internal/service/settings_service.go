package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

var ErrInvalidThreshold = errors.New("score threshold must be between 0 and 1")

// SettingsService exposes an owner's effective limits and today's usage, and
// lets operators tune the owner's score threshold.
type SettingsService interface {
	GetOwnerLimits(ctx context.Context, ownerID string) (*transfer.OwnerLimits, error)
	UpdateScoreThreshold(ctx context.Context, ownerID string, threshold float64) (*transfer.OwnerLimits, error)
}

type settingsService struct {
	sr  repository.SettingsRepository
	pr  repository.PublishRecordRepository
	ts  TierService
	reg *Registry
	loc *time.Location
	now func() time.Time
}

func NewSettingsService(
	sr repository.SettingsRepository,
	pr repository.PublishRecordRepository,
	ts TierService,
	reg *Registry,
	loc *time.Location) SettingsService {
	if loc == nil {
		loc = time.UTC
	}
	return &settingsService{
		sr:  sr,
		pr:  pr,
		ts:  ts,
		reg: reg,
		loc: loc,
		now: time.Now,
	}
}

func (s *settingsService) GetOwnerLimits(ctx context.Context, ownerID string) (*transfer.OwnerLimits, error) {
	limits, err := s.ts.Resolve(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	since := DayStart(s.now(), s.loc)
	ids, err := s.pr.DistinctContentSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("error reading ledger usage for %s: %w", ownerID, err)
	}

	out := &transfer.OwnerLimits{
		OwnerID:             ownerID,
		Tier:                limits.Tier,
		ScoreThreshold:      limits.MinScore(),
		UniqueContentPerDay: limits.UniqueContentPerDay,
		UniqueContentToday:  len(ids),
		WindowStart:         since,
		Platforms:           map[string]transfer.PlatformQuota{},
	}
	for _, p := range s.reg.Platforms() {
		n, err := s.pr.CountByPlatformSince(ctx, ownerID, p, since)
		if err != nil {
			return nil, fmt.Errorf("error reading ledger usage for %s: %w", ownerID, err)
		}
		out.Platforms[string(p)] = transfer.PlatformQuota{DailyCap: limits.DailyCap(p), PublishedToday: n}
	}
	return out, nil
}

// UpdateScoreThreshold stores the owner's preference. Resolution still
// clamps it into the global floor and ceiling.
func (s *settingsService) UpdateScoreThreshold(ctx context.Context, ownerID string, threshold float64) (*transfer.OwnerLimits, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	if _, err := s.sr.UpsertScoreThreshold(ctx, ownerID, threshold); err != nil {
		return nil, fmt.Errorf("error saving settings for %s: %w", ownerID, err)
	}
	return s.GetOwnerLimits(ctx, ownerID)
}
