package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

func TestJobStore_InsertAndGetScrapeJob(t *testing.T) {
	db, cleanup := setupJobsTestDB(t)
	defer cleanup()

	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	job := testScrapeJob("scrape_20260101120000_ab12cd34")
	job.ZipFile = "/tmp/scrape/archive.zip"
	require.NoError(t, store.InsertScrapeJob(ctx, job))

	got, err := store.GetScrapeJob(ctx, job.Label)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, job.Label, got.Label)
	assert.Equal(t, job.Description, got.Description)
	assert.Equal(t, job.LogPath, got.LogPath)
	assert.Equal(t, models.ScrapeModeList, got.Mode)
	assert.Equal(t, models.StatusInitialized, got.Status)
	assert.Equal(t, job.DownloadDir, got.DownloadDir)
	assert.Equal(t, job.ZipFile, got.ZipFile)
	assert.False(t, got.Parsed)
	assert.Equal(t, job.Date.Unix(), got.Date.Unix())
}

func TestJobStore_GetMissingJobReturnsNil(t *testing.T) {
	db, cleanup := setupJobsTestDB(t)
	defer cleanup()

	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	got, err := store.GetScrapeJob(ctx, "no-such-label")
	require.NoError(t, err)
	assert.Nil(t, got)

	core, err := store.GetCore(ctx, models.StageParse, "no-such-label")
	require.NoError(t, err)
	assert.Nil(t, core)
}

func TestJobStore_DuplicateLabelRejected(t *testing.T) {
	db, cleanup := setupJobsTestDB(t)
	defer cleanup()

	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	job := testParseJob("parse_dup")
	require.NoError(t, store.InsertParseJob(ctx, job))
	err := store.InsertParseJob(ctx, job)
	assert.Error(t, err)
}

func TestJobStore_UpdateColumn(t *testing.T) {
	db, cleanup := setupJobsTestDB(t)
	defer cleanup()

	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	job := testScrapeJob("scrape_update")
	require.NoError(t, store.InsertScrapeJob(ctx, job))

	require.NoError(t, store.UpdateColumn(ctx, models.StageScrape, job.Label, ColStatus, string(models.StatusWaiting)))
	require.NoError(t, store.UpdateColumn(ctx, models.StageScrape, job.Label, ColStep, 3))
	require.NoError(t, store.UpdateColumn(ctx, models.StageScrape, job.Label, ColJobParsed, true))

	got, err := store.GetScrapeJob(ctx, job.Label)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusWaiting, got.Status)
	assert.Equal(t, 3, got.Step)
	assert.True(t, got.Parsed)
}

func TestJobStore_UpdateColumnMissingJob(t *testing.T) {
	db, cleanup := setupJobsTestDB(t)
	defer cleanup()

	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	err := store.UpdateColumn(ctx, models.StageScrape, "ghost", ColStatus, string(models.StatusRunning))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobStore_UpdateColumnRejectsUnregistered(t *testing.T) {
	db, cleanup := setupJobsTestDB(t)
	defer cleanup()

	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	job := testCommitJob("commit_guard")
	require.NoError(t, store.InsertCommitJob(ctx, job))

	// download_dir belongs to scrape_jobs, not commit_jobs
	err := store.UpdateColumn(ctx, models.StageCommit, job.Label, ColDownloadDir, "/tmp")
	assert.Error(t, err)

	// an identifier that is no column at all must never reach the SQL text
	err = store.UpdateColumn(ctx, models.StageCommit, job.Label, Column("status = 'X'; DROP TABLE commit_jobs; --"), "x")
	assert.Error(t, err)

	got, err := store.GetCommitJob(ctx, job.Label)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusInitialized, got.Status)
}

func TestJobStore_DeleteCascadesToActions(t *testing.T) {
	db, cleanup := setupJobsTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	jobs := NewJobStore(db, logger)
	actions := NewActionStore(db, logger)
	ctx := context.Background()

	job := testScrapeJob("scrape_cascade")
	require.NoError(t, jobs.InsertScrapeJob(ctx, job))
	require.NoError(t, actions.InsertScrapeActions(ctx, []*models.ScrapeAction{
		testScrapeAction(job.Label, 0),
		testScrapeAction(job.Label, 1),
	}))

	require.NoError(t, jobs.DeleteJob(ctx, models.StageScrape, job.Label))

	got, err := jobs.GetScrapeJob(ctx, job.Label)
	require.NoError(t, err)
	assert.Nil(t, got)

	remaining, err := actions.SearchScrapeActions(ctx, And, []Cond{Eq(ColJobLabel, job.Label)})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	err = jobs.DeleteJob(ctx, models.StageScrape, job.Label)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobStore_SearchByStatus(t *testing.T) {
	db, cleanup := setupJobsTestDB(t)
	defer cleanup()

	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	a := testScrapeJob("scrape_a")
	a.Status = models.StatusExecuted
	b := testScrapeJob("scrape_b")
	b.Status = models.StatusError
	c := testScrapeJob("scrape_c")
	c.Status = models.StatusWaiting
	for _, j := range []*models.ScrapeJob{a, b, c} {
		require.NoError(t, store.InsertScrapeJob(ctx, j))
	}

	executed, err := store.SearchScrapeJobs(ctx, And, []Cond{Eq(ColStatus, string(models.StatusExecuted))})
	require.NoError(t, err)
	require.Len(t, executed, 1)
	assert.Equal(t, "scrape_a", executed[0].Label)

	// Or over two statuses
	either, err := store.SearchScrapeJobs(ctx, Or, []Cond{
		Eq(ColStatus, string(models.StatusError)),
		Eq(ColStatus, string(models.StatusWaiting)),
	})
	require.NoError(t, err)
	assert.Len(t, either, 2)

	// no conditions returns everything
	all, err := store.SearchScrapeJobs(ctx, And, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestJobStore_NotExecuted(t *testing.T) {
	db, cleanup := setupJobsTestDB(t)
	defer cleanup()

	store := NewJobStore(db, arbor.NewLogger())
	ctx := context.Background()

	done := testParseJob("parse_done")
	done.Status = models.StatusExecuted
	stuck := testParseJob("parse_stuck")
	stuck.Status = models.StatusRunning
	failed := testParseJob("parse_failed")
	failed.Status = models.StatusError
	for _, j := range []*models.ParseJob{done, stuck, failed} {
		require.NoError(t, store.InsertParseJob(ctx, j))
	}

	bad, err := store.NotExecuted(ctx, models.StageParse)
	require.NoError(t, err)
	require.Len(t, bad, 2)

	labels := []string{bad[0].Label, bad[1].Label}
	assert.Contains(t, labels, "parse_stuck")
	assert.Contains(t, labels, "parse_failed")
}
