package job

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/queue"
	"github.com/robfig/cron"
)

// DispatchTriggerJob turns cron ticks into queued dispatch and reconcile
// tasks. Runs themselves happen on the asynq workers.
type DispatchTriggerJob struct {
	q         queue.Enqueuer
	platforms []models.Platform
	uniqueTTL time.Duration
}

func NewDispatchTriggerJob(q queue.Enqueuer, platforms []models.Platform, uniqueTTL time.Duration) *DispatchTriggerJob {
	return &DispatchTriggerJob{
		q:         q,
		platforms: platforms,
		uniqueTTL: uniqueTTL,
	}
}

// Register adds one entry per platform at schedule plus a reconcile entry
// every reconcileEvery.
func (j *DispatchTriggerJob) Register(c *cron.Cron, schedule string, reconcileEvery time.Duration) error {
	for _, p := range j.platforms {
		if err := c.AddFunc(schedule, j.Dispatch(p)); err != nil {
			return fmt.Errorf("error scheduling %s dispatch: %w", p, err)
		}
	}

	if reconcileEvery > 0 {
		if err := c.AddFunc("@every "+reconcileEvery.String(), j.Reconcile); err != nil {
			return fmt.Errorf("error scheduling reconcile: %w", err)
		}
	}
	return nil
}

func (j *DispatchTriggerJob) Dispatch(platform models.Platform) func() {
	return func() {
		queued, err := queue.EnqueueDispatch(j.q, queue.DispatchPayload{Platform: string(platform)}, j.uniqueTTL)
		if err != nil {
			slog.Error("unable to queue dispatch", "platform", platform, "error", err)
			return
		}
		if !queued {
			slog.Debug("dispatch still queued from previous tick", "platform", platform)
		}
	}
}

func (j *DispatchTriggerJob) Reconcile() {
	if _, err := queue.EnqueueReconcile(j.q, j.uniqueTTL); err != nil {
		slog.Error("unable to queue reconcile", "error", err)
	}
}
