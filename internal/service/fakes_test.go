package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
)

var errStoreDown = errors.New("store unreachable")

type recordKey struct {
	contentItemID string
	platform      models.Platform
}

// memDB backs every fake repository so that jobs, ledger and content stay
// consistent with each other the way the real tables do.
type memDB struct {
	mu       sync.Mutex
	content  map[string]*models.ContentItem
	jobs     map[string]*models.DispatchJob
	records  map[recordKey]*models.PublishRecord
	subs     map[string]*models.Subscription
	settings map[string]*models.Settings
	tiers    map[string]*models.UserTierConfig
	accounts map[string]*models.SocialAccount

	// fail makes the named operation return errStoreDown.
	fail map[string]bool
	// badTiers names tier rows that exist but do not decode.
	badTiers map[string]bool
	// beforeClaim runs inside Claim before the row is inspected.
	beforeClaim func(job *models.DispatchJob)
	// beforeFail runs inside MarkFailed before the row is inspected.
	beforeFail func(job *models.DispatchJob)
}

func newMemDB() *memDB {
	return &memDB{
		content:  map[string]*models.ContentItem{},
		jobs:     map[string]*models.DispatchJob{},
		records:  map[recordKey]*models.PublishRecord{},
		subs:     map[string]*models.Subscription{},
		settings: map[string]*models.Settings{},
		tiers:    map[string]*models.UserTierConfig{},
		accounts: map[string]*models.SocialAccount{},
		fail:     map[string]bool{},
		badTiers: map[string]bool{},
	}
}

func (db *memDB) check(op string) error {
	if db.fail[op] {
		return fmt.Errorf("%s: %w", op, errStoreDown)
	}
	return nil
}

func (db *memDB) addContent(id, owner string, score float64, createdAt time.Time) *models.ContentItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := &models.ContentItem{ID: id, OwnerID: owner, Score: score, Title: "clip " + id, MediaKey: "clips/" + id + ".mp4", CreatedAt: createdAt}
	db.content[id] = c
	return c
}

func (db *memDB) addJob(id, contentItemID string, platform models.Platform, createdAt time.Time) *models.DispatchJob {
	db.mu.Lock()
	defer db.mu.Unlock()
	j := &models.DispatchJob{ID: id, ContentItemID: contentItemID, Platform: platform, Status: models.JobStatusPending, CreatedAt: createdAt, UpdatedAt: createdAt}
	db.jobs[id] = j
	return j
}

func (db *memDB) addRecord(contentItemID, owner string, platform models.Platform, at time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.records[recordKey{contentItemID, platform}] = &models.PublishRecord{
		ContentItemID: contentItemID, OwnerID: owner, Platform: platform, RemotePostID: "seed-" + contentItemID, PublishedAt: at,
	}
}

func (db *memDB) job(id string) models.DispatchJob {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.jobs[id]
}

func (db *memDB) recordCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.records)
}

func (db *memDB) hasRecord(contentItemID string, platform models.Platform) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.records[recordKey{contentItemID, platform}]
	return ok
}

type fakeJobRepo struct{ db *memDB }

func (r fakeJobRepo) Create(ctx context.Context, job *models.DispatchJob) (bool, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("jobs.create"); err != nil {
		return false, err
	}
	for _, j := range db.jobs {
		if j.ContentItemID == job.ContentItemID && j.Platform == job.Platform {
			return false, nil
		}
	}
	cp := *job
	cp.Status = models.JobStatusPending
	db.jobs[job.ID] = &cp
	return true, nil
}

func (r fakeJobRepo) GetByID(ctx context.Context, id string) (*models.DispatchJob, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	j, ok := db.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r fakeJobRepo) ListByContentItem(ctx context.Context, contentItemID string) ([]*models.DispatchJob, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*models.DispatchJob
	for _, j := range db.jobs {
		if j.ContentItemID == contentItemID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Platform < out[k].Platform })
	return out, nil
}

func (r fakeJobRepo) ListCandidates(ctx context.Context, q repository.CandidateQuery) ([]*models.Candidate, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("jobs.candidates"); err != nil {
		return nil, err
	}

	var out []*models.Candidate
	for _, j := range db.jobs {
		if j.Platform != q.Platform || j.Status != models.JobStatusPending {
			continue
		}
		if j.NextAttemptAt != nil && j.NextAttemptAt.After(q.Now) {
			continue
		}
		c := db.content[j.ContentItemID]
		if c != nil && c.Score < q.MinScore {
			continue
		}
		if q.OwnerID != "" && (c == nil || c.OwnerID != q.OwnerID) {
			continue
		}
		jc := *j
		cand := &models.Candidate{Job: &jc}
		if c != nil {
			cc := *c
			cand.Content = &cc
		}
		out = append(out, cand)
	}

	sort.Slice(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if (a.Content == nil) != (b.Content == nil) {
			return a.Content == nil
		}
		if a.Content != nil {
			if a.Content.Score != b.Content.Score {
				return a.Content.Score > b.Content.Score
			}
			if !a.Content.CreatedAt.Equal(b.Content.CreatedAt) {
				return a.Content.CreatedAt.Before(b.Content.CreatedAt)
			}
		}
		return a.Job.ID < b.Job.ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r fakeJobRepo) Claim(ctx context.Context, id string, now time.Time) (*models.DispatchJob, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("jobs.claim"); err != nil {
		return nil, err
	}
	j, ok := db.jobs[id]
	if !ok {
		return nil, repository.ErrJobClaimed
	}
	if db.beforeClaim != nil {
		db.beforeClaim(j)
	}
	if j.Status != models.JobStatusPending || (j.NextAttemptAt != nil && j.NextAttemptAt.After(now)) {
		return nil, repository.ErrJobClaimed
	}
	j.Status = models.JobStatusProcessing
	j.Attempts++
	j.UpdatedAt = now
	cp := *j
	return &cp, nil
}

func (r fakeJobRepo) ScheduleRetry(ctx context.Context, id string, next time.Time, lastError string, now time.Time) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("jobs.retry"); err != nil {
		return err
	}
	j := db.jobs[id]
	if j == nil || j.Status != models.JobStatusProcessing {
		return repository.ErrJobClaimed
	}
	j.Status = models.JobStatusPending
	j.NextAttemptAt = &next
	j.LastError = &lastError
	j.UpdatedAt = now
	return nil
}

func (r fakeJobRepo) MarkFailed(ctx context.Context, id string, lastError string, now time.Time) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("jobs.fail"); err != nil {
		return err
	}
	j := db.jobs[id]
	if j != nil && db.beforeFail != nil {
		db.beforeFail(j)
	}
	if j == nil || (j.Status != models.JobStatusPending && j.Status != models.JobStatusProcessing) {
		return repository.ErrJobClaimed
	}
	j.Status = models.JobStatusFailed
	j.LastError = &lastError
	j.NextAttemptAt = nil
	j.UpdatedAt = now
	return nil
}

func (r fakeJobRepo) MarkCompleted(ctx context.Context, tx *sql.Tx, id string, completedAt time.Time) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	db.complete(id, completedAt)
	return nil
}

// complete expects db.mu to be held.
func (db *memDB) complete(id string, at time.Time) {
	j := db.jobs[id]
	if j == nil || j.Status == models.JobStatusCompleted {
		return
	}
	j.Status = models.JobStatusCompleted
	j.CompletedAt = &at
	j.NextAttemptAt = nil
	j.LastError = nil
	j.UpdatedAt = at
}

func (r fakeJobRepo) ReconcileStale(ctx context.Context, cutoff, now time.Time) (int64, int64, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("jobs.reconcile"); err != nil {
		return 0, 0, err
	}
	var completed, reset int64
	for _, j := range db.jobs {
		if j.Status != models.JobStatusProcessing || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		if rec, ok := db.records[recordKey{j.ContentItemID, j.Platform}]; ok {
			db.complete(j.ID, rec.PublishedAt)
			j.UpdatedAt = now
			completed++
			continue
		}
		j.Status = models.JobStatusPending
		j.UpdatedAt = now
		reset++
	}
	return completed, reset, nil
}

func (r fakeJobRepo) PendingCounts(ctx context.Context, platforms []models.Platform) (map[models.Platform]int, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	counts := map[models.Platform]int{}
	for _, p := range platforms {
		counts[p] = 0
	}
	for _, j := range db.jobs {
		if _, ok := counts[j.Platform]; ok && j.Status == models.JobStatusPending {
			counts[j.Platform]++
		}
	}
	return counts, nil
}

type fakeRecordRepo struct{ db *memDB }

func (r fakeRecordRepo) Create(ctx context.Context, tx *sql.Tx, rec *models.PublishRecord) (bool, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.insertRecord(rec), nil
}

// insertRecord expects db.mu to be held.
func (db *memDB) insertRecord(rec *models.PublishRecord) bool {
	k := recordKey{rec.ContentItemID, rec.Platform}
	if _, ok := db.records[k]; ok {
		return false
	}
	cp := *rec
	db.records[k] = &cp
	return true
}

func (r fakeRecordRepo) Get(ctx context.Context, contentItemID string, platform models.Platform) (*models.PublishRecord, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("records.get"); err != nil {
		return nil, err
	}
	rec, ok := db.records[recordKey{contentItemID, platform}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r fakeRecordRepo) DistinctContentSince(ctx context.Context, ownerID string, since time.Time) ([]string, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("records.usage"); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var ids []string
	for _, rec := range db.records {
		if rec.OwnerID == ownerID && !rec.PublishedAt.Before(since) && !seen[rec.ContentItemID] {
			seen[rec.ContentItemID] = true
			ids = append(ids, rec.ContentItemID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r fakeRecordRepo) CountByPlatformSince(ctx context.Context, ownerID string, platform models.Platform, since time.Time) (int, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("records.usage"); err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range db.records {
		if rec.OwnerID == ownerID && rec.Platform == platform && !rec.PublishedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type fakeLedger struct{ db *memDB }

func (l fakeLedger) RecordPublish(ctx context.Context, jobID string, rec *models.PublishRecord) error {
	db := l.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("ledger.record"); err != nil {
		return err
	}
	db.insertRecord(rec)
	db.complete(jobID, rec.PublishedAt)
	return nil
}

type fakeContentRepo struct{ db *memDB }

func (r fakeContentRepo) GetByID(ctx context.Context, id string) (*models.ContentItem, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("content.get"); err != nil {
		return nil, err
	}
	c, ok := db.content[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

type fakeSubscriptionRepo struct{ db *memDB }

func (r fakeSubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*models.Subscription, bool, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("subs.get"); err != nil {
		return nil, false, err
	}
	s, ok := db.subs[userID]
	return s, ok, nil
}

type fakeSettingsRepo struct{ db *memDB }

func (r fakeSettingsRepo) GetByUserID(ctx context.Context, userID string) (*models.Settings, bool, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.settings[userID]
	return s, ok, nil
}

func (r fakeSettingsRepo) UpsertScoreThreshold(ctx context.Context, userID string, threshold float64) (*models.Settings, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("settings.upsert"); err != nil {
		return nil, err
	}
	s, ok := db.settings[userID]
	if !ok {
		s = &models.Settings{ID: int64(len(db.settings) + 1), UserID: userID}
		db.settings[userID] = s
	}
	s.ScoreThreshold = threshold
	cp := *s
	return &cp, nil
}

type fakeTierRepo struct{ db *memDB }

func (r fakeTierRepo) GetByName(ctx context.Context, name string) (*models.UserTierConfig, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check("tiers.get"); err != nil {
		return nil, err
	}
	if db.badTiers[name] {
		return nil, fmt.Errorf("%w: platform_caps for tier %s", repository.ErrInvalidTierConfig, name)
	}
	t, ok := db.tiers[name]
	if !ok {
		return nil, nil
	}
	return t, nil
}

type fakeAccountRepo struct{ db *memDB }

func (r fakeAccountRepo) GetByUserAndPlatform(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	a, ok := db.accounts[userID+"/"+string(platform)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakePublisher records every call and answers with fn.
type fakePublisher struct {
	mu    sync.Mutex
	calls []string
	fn    func(contentItemID string) (*PublishReceipt, error)
}

func (p *fakePublisher) Publish(ctx context.Context, contentItemID string) (*PublishReceipt, error) {
	p.mu.Lock()
	p.calls = append(p.calls, contentItemID)
	fn := p.fn
	p.mu.Unlock()
	if fn == nil {
		return &PublishReceipt{RemotePostID: "remote-" + contentItemID}, nil
	}
	return fn(contentItemID)
}

func (p *fakePublisher) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}
