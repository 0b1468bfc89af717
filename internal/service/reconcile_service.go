package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/clipcast/internal/metrics"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/transfer"
)

const DefaultProcessingTimeout = 10 * time.Minute

// ReconcileService recovers jobs left in processing by a run that died
// between claim and outcome.
type ReconcileService interface {
	Sweep(ctx context.Context) (*transfer.ReconcileSummary, error)
}

type reconcileService struct {
	jr      repository.DispatchJobRepository
	m       *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
}

func NewReconcileService(jr repository.DispatchJobRepository, m *metrics.Metrics, processingTimeout time.Duration) ReconcileService {
	if processingTimeout <= 0 {
		processingTimeout = DefaultProcessingTimeout
	}
	return &reconcileService{jr: jr, m: m, timeout: processingTimeout, now: time.Now}
}

func (s *reconcileService) Sweep(ctx context.Context) (*transfer.ReconcileSummary, error) {
	now := s.now()
	completed, reset, err := s.jr.ReconcileStale(ctx, now.Add(-s.timeout), now)
	s.m.Reconciled(completed, reset)
	if err != nil {
		return nil, fmt.Errorf("error reconciling stale jobs: %w", err)
	}

	if completed > 0 || reset > 0 {
		slog.Warn("reconciled stale processing jobs", "completed", completed, "reset", reset)
	}
	return &transfer.ReconcileSummary{Completed: completed, Reset: reset}, nil
}
