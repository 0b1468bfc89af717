package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/clipcast/internal/models"
)

func newJobHarness(t *testing.T) (*memDB, JobService) {
	t.Helper()
	db := newMemDB()
	reg := NewRegistry(
		PlatformAdapter{Platform: models.PlatformYoutube, Publisher: &fakePublisher{}, DailyCap: 10},
		PlatformAdapter{Platform: models.PlatformTiktok, Publisher: &fakePublisher{}, DailyCap: 15},
	)
	return db, NewJobService(fakeJobRepo{db}, fakeContentRepo{db}, reg)
}

func TestEnqueueCreatesOneJobPerPlatform(t *testing.T) {
	db, js := newJobHarness(t)
	db.addContent("clip-1", "owner-1", 0.8, runStart)

	resp, err := js.Enqueue(context.Background(), "clip-1", []string{"youtube", "tiktok", "youtube"})
	require.NoError(t, err)
	require.Len(t, resp.Created, 2)
	require.Empty(t, resp.Existed)
	for _, j := range resp.Created {
		require.Len(t, j.ID, 21)
		require.Equal(t, string(models.JobStatusPending), j.Status)
	}

	again, err := js.Enqueue(context.Background(), "clip-1", []string{"tiktok"})
	require.NoError(t, err)
	require.Empty(t, again.Created)
	require.Equal(t, []string{"tiktok"}, again.Existed)

	jobs, err := js.ListByContentItem(context.Background(), "clip-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "tiktok", jobs[0].Platform)
	require.Equal(t, "youtube", jobs[1].Platform)

	backlog, err := js.Backlog(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[models.Platform]int{models.PlatformTiktok: 1, models.PlatformYoutube: 1}, backlog)
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	db, js := newJobHarness(t)
	db.addContent("clip-1", "owner-1", 0.8, runStart)

	_, err := js.Enqueue(context.Background(), "clip-1", []string{"myspace"})
	require.ErrorIs(t, err, ErrUnknownPlatform)

	// Known platform, but not registered here.
	_, err = js.Enqueue(context.Background(), "clip-1", []string{"instagram"})
	require.ErrorIs(t, err, ErrUnknownPlatform)

	_, err = js.Enqueue(context.Background(), "missing", []string{"youtube"})
	require.ErrorIs(t, err, ErrContentNotFound)

	_, err = js.Enqueue(context.Background(), "clip-1", nil)
	require.ErrorIs(t, err, ErrInvalidJobRequest)

	_, err = js.Enqueue(context.Background(), "", []string{"youtube"})
	require.ErrorIs(t, err, ErrInvalidJobRequest)

	require.Empty(t, db.jobs)
}
