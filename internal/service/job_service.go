package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrInvalidJobRequest = errors.New("invalid job request")

type JobService interface {
	Enqueue(ctx context.Context, contentItemID string, platforms []string) (*transfer.EnqueueJobsResponse, error)
	ListByContentItem(ctx context.Context, contentItemID string) ([]*transfer.DispatchJobInfo, error)
	Backlog(ctx context.Context) (map[models.Platform]int, error)
}

type jobService struct {
	jr  repository.DispatchJobRepository
	cr  repository.ContentItemRepository
	reg *Registry
}

func NewJobService(jr repository.DispatchJobRepository, cr repository.ContentItemRepository, reg *Registry) JobService {
	return &jobService{jr: jr, cr: cr, reg: reg}
}

// Enqueue creates one pending job per platform. Pairs that already have a
// job are reported in Existed and left alone.
func (s *jobService) Enqueue(ctx context.Context, contentItemID string, platforms []string) (*transfer.EnqueueJobsResponse, error) {
	if contentItemID == "" {
		return nil, fmt.Errorf("%w: content_item_id is required", ErrInvalidJobRequest)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", ErrInvalidJobRequest)
	}

	targets := make([]models.Platform, 0, len(platforms))
	seen := map[models.Platform]bool{}
	for _, name := range platforms {
		p, err := models.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
		}
		if _, err := s.reg.Get(p); err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			targets = append(targets, p)
		}
	}

	content, err := s.cr.GetByID(ctx, contentItemID)
	if err != nil {
		return nil, fmt.Errorf("error fetching content item: %w", err)
	}
	if content == nil {
		return nil, ErrContentNotFound
	}

	resp := &transfer.EnqueueJobsResponse{Created: []*transfer.DispatchJobInfo{}, Existed: []string{}}
	for _, p := range targets {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("error generating job id: %w", err)
		}

		job := &models.DispatchJob{
			ID:            id,
			ContentItemID: content.ID,
			Platform:      p,
			Status:        models.JobStatusPending,
		}
		created, err := s.jr.Create(ctx, job)
		if err != nil {
			return nil, fmt.Errorf("error creating %s job: %w", p, err)
		}
		if !created {
			resp.Existed = append(resp.Existed, string(p))
			continue
		}
		resp.Created = append(resp.Created, jobInfo(job))
	}

	return resp, nil
}

func (s *jobService) ListByContentItem(ctx context.Context, contentItemID string) ([]*transfer.DispatchJobInfo, error) {
	jobs, err := s.jr.ListByContentItem(ctx, contentItemID)
	if err != nil {
		return nil, err
	}

	infos := make([]*transfer.DispatchJobInfo, 0, len(jobs))
	for _, j := range jobs {
		infos = append(infos, jobInfo(j))
	}
	return infos, nil
}

func (s *jobService) Backlog(ctx context.Context) (map[models.Platform]int, error) {
	return s.jr.PendingCounts(ctx, s.reg.Platforms())
}

func jobInfo(j *models.DispatchJob) *transfer.DispatchJobInfo {
	return &transfer.DispatchJobInfo{
		ID:            j.ID,
		ContentItemID: j.ContentItemID,
		Platform:      string(j.Platform),
		Status:        string(j.Status),
		Attempts:      j.Attempts,
		NextAttemptAt: j.NextAttemptAt,
		LastError:     j.LastError,
		CompletedAt:   j.CompletedAt,
	}
}
