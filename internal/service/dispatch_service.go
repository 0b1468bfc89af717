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
	"github.com/maheshrc27/clipcast/internal/transfer"
)

const DefaultBatchSize = 200

type RunRequest struct {
	Platform models.Platform
	OwnerID  string
}

type DispatchService interface {
	Run(ctx context.Context, req RunRequest) (*transfer.DispatchSummary, error)
}

type DispatchOptions struct {
	BatchSize int
	Location  *time.Location
}

type dispatchService struct {
	jr     repository.DispatchJobRepository
	pr     repository.PublishRecordRepository
	ledger repository.PublishLedger
	ts     TierService
	rm     RetryManager
	reg    *Registry
	m      *metrics.Metrics

	batchSize int
	loc       *time.Location
	now       func() time.Time
}

func NewDispatchService(
	jr repository.DispatchJobRepository,
	pr repository.PublishRecordRepository,
	ledger repository.PublishLedger,
	ts TierService,
	rm RetryManager,
	reg *Registry,
	m *metrics.Metrics,
	opts DispatchOptions) DispatchService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &dispatchService{
		jr:        jr,
		pr:        pr,
		ledger:    ledger,
		ts:        ts,
		rm:        rm,
		reg:       reg,
		m:         m,
		batchSize: opts.BatchSize,
		loc:       opts.Location,
		now:       time.Now,
	}
}

// ownerState is what a run knows about one owner: resolved limits, the
// ledger usage last read, and publishes made by this run since that read.
type ownerState struct {
	limits *TierLimits
	ledger Usage
	inRun  Usage
}

type runState struct {
	platform models.Platform
	adapter  PlatformAdapter
	dayStart time.Time
	owners   map[string]*ownerState
	summary  *transfer.DispatchSummary
}

// Run processes one batch of ready jobs for a platform, sequentially. A
// failing candidate never stops the batch; a failing store does.
func (s *dispatchService) Run(ctx context.Context, req RunRequest) (*transfer.DispatchSummary, error) {
	adapter, err := s.reg.Get(req.Platform)
	if err != nil {
		return nil, err
	}

	summary := &transfer.DispatchSummary{Platform: string(req.Platform), OwnerID: req.OwnerID}
	err = s.run(ctx, req, adapter, summary)
	s.m.Run(string(req.Platform), err)
	if err != nil {
		slog.Error("dispatch run aborted",
			"platform", req.Platform,
			"owner_id", req.OwnerID,
			"processed", summary.Processed,
			"error", err)
		return summary, err
	}

	slog.Info("dispatch run finished",
		"platform", req.Platform,
		"owner_id", req.OwnerID,
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"deferred", summary.Deferred,
		"retried", summary.Retried,
		"failed", summary.Failed,
		"skipped", summary.Skipped)
	return summary, nil
}

func (s *dispatchService) run(ctx context.Context, req RunRequest, adapter PlatformAdapter, summary *transfer.DispatchSummary) error {
	now := s.now()
	candidates, err := s.jr.ListCandidates(ctx, repository.CandidateQuery{
		Platform: req.Platform,
		OwnerID:  req.OwnerID,
		Now:      now,
		MinScore: ScoreFloor,
		Limit:    s.batchSize,
	})
	if err != nil {
		return fmt.Errorf("error listing candidates: %w", err)
	}

	rs := &runState{
		platform: req.Platform,
		adapter:  adapter,
		dayStart: DayStart(now, s.loc),
		owners:   map[string]*ownerState{},
		summary:  summary,
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary.Processed++
		if err := s.process(ctx, rs, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *dispatchService) process(ctx context.Context, rs *runState, c *models.Candidate) error {
	job := c.Job
	platform := string(rs.platform)

	if c.Content == nil {
		if err := s.jr.MarkFailed(ctx, job.ID, ErrContentNotFound.Error(), s.now()); err != nil {
			if errors.Is(err, repository.ErrJobClaimed) {
				slog.Debug("job finished elsewhere", "job_id", job.ID)
				rs.summary.Skipped++
				s.m.Outcome(platform, metrics.OutcomeSkipped)
				return nil
			}
			return fmt.Errorf("error failing job %s: %w", job.ID, err)
		}
		slog.Error("content item deleted, job failed", "job_id", job.ID, "content_item_id", job.ContentItemID)
		rs.summary.Failed++
		s.m.Outcome(platform, metrics.OutcomeFailed)
		return nil
	}
	content := c.Content

	existing, err := s.pr.Get(ctx, content.ID, rs.platform)
	if err != nil {
		return fmt.Errorf("error reading ledger: %w", err)
	}
	if existing != nil {
		if err := s.jr.MarkCompleted(ctx, nil, job.ID, existing.PublishedAt); err != nil {
			return fmt.Errorf("error completing job %s: %w", job.ID, err)
		}
		slog.Info("already published, job completed", "job_id", job.ID, "content_item_id", content.ID)
		rs.summary.Skipped++
		s.m.Outcome(platform, metrics.OutcomeSkipped)
		return nil
	}

	owner, err := s.ownerState(ctx, rs, content.OwnerID)
	if err != nil {
		return err
	}

	if d := Admit(content, rs.platform, owner.limits, owner.ledger, owner.inRun); d != Allow {
		s.deferJob(rs, job, content, d)
		return nil
	}

	if a, ok := rs.adapter.Publisher.(availability); ok && !a.Available() {
		slog.Debug("publisher unavailable, job deferred", "job_id", job.ID, "platform", platform)
		rs.summary.Deferred++
		s.m.Outcome(platform, metrics.OutcomeDeferCircuit)
		return nil
	}

	// Another run may have published for this owner since the snapshot.
	fresh, err := s.usage(ctx, content.OwnerID, rs.platform, rs.dayStart)
	if err != nil {
		return err
	}
	owner.ledger, owner.inRun = fresh, NewUsage()
	if d := Admit(content, rs.platform, owner.limits, owner.ledger, owner.inRun); d != Allow {
		s.deferJob(rs, job, content, d)
		return nil
	}

	claimed, err := s.jr.Claim(ctx, job.ID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrJobClaimed) {
			slog.Debug("job claimed elsewhere", "job_id", job.ID)
			rs.summary.Skipped++
			s.m.Outcome(platform, metrics.OutcomeSkipped)
			return nil
		}
		return fmt.Errorf("error claiming job %s: %w", job.ID, err)
	}

	receipt, perr := s.publish(ctx, rs.adapter, content.ID)

	// The claim has been taken; record the outcome even if the run was
	// cancelled meanwhile.
	wctx := context.WithoutCancel(ctx)

	if perr != nil {
		outcome, err := s.rm.HandleFailure(wctx, claimed, perr)
		if err != nil {
			return err
		}
		switch outcome {
		case metrics.OutcomeRetried:
			rs.summary.Retried++
		case metrics.OutcomeSkipped:
			rs.summary.Skipped++
		default:
			rs.summary.Failed++
		}
		return nil
	}

	rec := &models.PublishRecord{
		ContentItemID: content.ID,
		OwnerID:       content.OwnerID,
		Platform:      rs.platform,
		RemotePostID:  receipt.RemotePostID,
		RemoteURL:     receipt.RemoteURL,
		PublishedAt:   s.now(),
	}
	if err := s.ledger.RecordPublish(wctx, claimed.ID, rec); err != nil {
		// The post is live; this line is the only trace of it until reconciled by hand.
		slog.Error("published but ledger write failed",
			"job_id", claimed.ID,
			"content_item_id", content.ID,
			"platform", platform,
			"remote_post_id", receipt.RemotePostID,
			"remote_url", receipt.RemoteURL,
			"error", err)
		return fmt.Errorf("error recording publish for job %s: %w", claimed.ID, err)
	}

	owner.inRun.Add(content.ID)
	rs.summary.Succeeded++
	s.m.Outcome(platform, metrics.OutcomeSucceeded)
	slog.Info("content published",
		"job_id", claimed.ID,
		"content_item_id", content.ID,
		"platform", platform,
		"remote_post_id", receipt.RemotePostID,
		"attempts", claimed.Attempts)
	return nil
}

func (s *dispatchService) deferJob(rs *runState, job *models.DispatchJob, content *models.ContentItem, d Decision) {
	slog.Debug("job deferred",
		"job_id", job.ID,
		"owner_id", content.OwnerID,
		"platform", rs.platform,
		"decision", d.String())
	rs.summary.Deferred++
	outcome := metrics.OutcomeDeferQuota
	if d == DeferScore {
		outcome = metrics.OutcomeDeferScore
	}
	s.m.Outcome(string(rs.platform), outcome)
}

func (s *dispatchService) ownerState(ctx context.Context, rs *runState, ownerID string) (*ownerState, error) {
	if st, ok := rs.owners[ownerID]; ok {
		return st, nil
	}

	limits, err := s.ts.Resolve(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error resolving tier for %s: %w", ownerID, err)
	}
	usage, err := s.usage(ctx, ownerID, rs.platform, rs.dayStart)
	if err != nil {
		return nil, err
	}

	st := &ownerState{limits: limits, ledger: usage, inRun: NewUsage()}
	rs.owners[ownerID] = st
	return st, nil
}

func (s *dispatchService) usage(ctx context.Context, ownerID string, platform models.Platform, since time.Time) (Usage, error) {
	ids, err := s.pr.DistinctContentSince(ctx, ownerID, since)
	if err != nil {
		return Usage{}, fmt.Errorf("error reading ledger usage for %s: %w", ownerID, err)
	}
	count, err := s.pr.CountByPlatformSince(ctx, ownerID, platform, since)
	if err != nil {
		return Usage{}, fmt.Errorf("error reading ledger usage for %s: %w", ownerID, err)
	}

	u := NewUsage()
	for _, id := range ids {
		u.ContentIDs[id] = struct{}{}
	}
	u.PlatformPublished = count
	return u, nil
}

// publish calls the adapter and turns a panic into a retryable failure so
// one bad publisher call cannot take down the batch.
func (s *dispatchService) publish(ctx context.Context, adapter PlatformAdapter, contentItemID string) (receipt *PublishReceipt, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			receipt = nil
			err = Retryable("publisher panic", fmt.Errorf("%v", p))
		}
		s.m.PublishDuration(string(adapter.Platform), time.Since(start))
	}()

	receipt, err = adapter.Publisher.Publish(ctx, contentItemID)
	if err == nil && receipt == nil {
		err = Retryable("publisher returned no receipt", nil)
	}
	return receipt, err
}
