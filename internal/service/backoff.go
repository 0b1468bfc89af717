package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/clipcast/internal/metrics"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
)

var DefaultBackoffSchedule = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute,
	180 * time.Minute,
	360 * time.Minute,
}

// RetryPolicy maps an attempt count to a delay. MaxAttempts of zero means
// retries never run out.
type RetryPolicy struct {
	Schedule    []time.Duration
	MaxAttempts int
}

func (p RetryPolicy) Delay(attempts int) time.Duration {
	schedule := p.Schedule
	if len(schedule) == 0 {
		schedule = DefaultBackoffSchedule
	}
	i := attempts - 1
	if i < 0 {
		i = 0
	}
	if i > len(schedule)-1 {
		i = len(schedule) - 1
	}
	return schedule[i]
}

func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

type RetryManager interface {
	HandleFailure(ctx context.Context, job *models.DispatchJob, cause error) (string, error)
}

type retryManager struct {
	jr     repository.DispatchJobRepository
	policy RetryPolicy
	m      *metrics.Metrics
	now    func() time.Time
}

func NewRetryManager(jr repository.DispatchJobRepository, policy RetryPolicy, m *metrics.Metrics) RetryManager {
	return &retryManager{jr: jr, policy: policy, m: m, now: time.Now}
}

// HandleFailure reschedules or fails a claimed job and returns the outcome
// it recorded. The job's Attempts already includes the failed attempt.
func (rm *retryManager) HandleFailure(ctx context.Context, job *models.DispatchJob, cause error) (string, error) {
	now := rm.now()
	msg := cause.Error()

	if IsRetryable(cause) && !rm.policy.Exhausted(job.Attempts) {
		next := now.Add(rm.policy.Delay(job.Attempts))
		if err := rm.jr.ScheduleRetry(ctx, job.ID, next, msg, now); err != nil {
			if errors.Is(err, repository.ErrJobClaimed) {
				return rm.moved(job, msg), nil
			}
			return "", fmt.Errorf("error scheduling retry for job %s: %w", job.ID, err)
		}
		slog.Warn("publish failed, retry scheduled",
			"job_id", job.ID,
			"platform", job.Platform,
			"attempts", job.Attempts,
			"next_attempt_at", next,
			"error", msg)
		rm.m.Outcome(string(job.Platform), metrics.OutcomeRetried)
		return metrics.OutcomeRetried, nil
	}

	if err := rm.jr.MarkFailed(ctx, job.ID, msg, now); err != nil {
		if errors.Is(err, repository.ErrJobClaimed) {
			return rm.moved(job, msg), nil
		}
		return "", fmt.Errorf("error failing job %s: %w", job.ID, err)
	}
	slog.Error("publish failed permanently",
		"job_id", job.ID,
		"platform", job.Platform,
		"attempts", job.Attempts,
		"error", msg)
	rm.m.Outcome(string(job.Platform), metrics.OutcomeFailed)
	return metrics.OutcomeFailed, nil
}

// moved records a failure whose job was reset or finished by someone else
// while the publish was in flight. The job row is left as they wrote it.
func (rm *retryManager) moved(job *models.DispatchJob, msg string) string {
	slog.Warn("job no longer processing, failure not recorded",
		"job_id", job.ID,
		"platform", job.Platform,
		"attempts", job.Attempts,
		"error", msg)
	rm.m.Outcome(string(job.Platform), metrics.OutcomeSkipped)
	return metrics.OutcomeSkipped
}
