package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

func setupActionStores(t *testing.T) (*JobStore, *ActionStore, func()) {
	db, cleanup := setupJobsTestDB(t)
	logger := arbor.NewLogger()
	return NewJobStore(db, logger), NewActionStore(db, logger), cleanup
}

func TestActionStore_InsertAndGetScrapeActions(t *testing.T) {
	jobs, actions, cleanup := setupActionStores(t)
	defer cleanup()
	ctx := context.Background()

	job := testScrapeJob("scrape_actions")
	require.NoError(t, jobs.InsertScrapeJob(ctx, job))

	batch := []*models.ScrapeAction{
		testScrapeAction(job.Label, 0),
		testScrapeAction(job.Label, 1),
		testScrapeAction(job.Label, 2),
	}
	batch[1].Method = "skip"
	batch[1].Journal = "invalid_url"
	require.NoError(t, actions.InsertScrapeActions(ctx, batch))

	got, err := actions.GetScrapeAction(ctx, job.Label, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "skip", got.Method)
	assert.Equal(t, "invalid_url", got.Journal)
	assert.Equal(t, models.StatusWaiting, got.Status)
	assert.False(t, got.Success)
	assert.False(t, got.Parsed)

	missing, err := actions.GetScrapeAction(ctx, job.Label, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestActionStore_UpdateColumn(t *testing.T) {
	jobs, actions, cleanup := setupActionStores(t)
	defer cleanup()
	ctx := context.Background()

	job := testScrapeJob("scrape_upd")
	require.NoError(t, jobs.InsertScrapeJob(ctx, job))
	require.NoError(t, actions.InsertScrapeActions(ctx, []*models.ScrapeAction{testScrapeAction(job.Label, 0)}))

	require.NoError(t, actions.UpdateColumn(ctx, models.StageScrape, job.Label, 0, ColStatus, string(models.StatusExecuted)))
	require.NoError(t, actions.UpdateColumn(ctx, models.StageScrape, job.Label, 0, ColSuccess, true))
	require.NoError(t, actions.UpdateColumn(ctx, models.StageScrape, job.Label, 0, ColOutFile, "/tmp/downloads/0.html"))

	got, err := actions.GetScrapeAction(ctx, job.Label, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusExecuted, got.Status)
	assert.True(t, got.Success)
	assert.Equal(t, "/tmp/downloads/0.html", got.OutFile)

	err = actions.UpdateColumn(ctx, models.StageScrape, job.Label, 42, ColStatus, string(models.StatusRunning))
	assert.ErrorIs(t, err, ErrNotFound)

	err = actions.UpdateColumn(ctx, models.StageScrape, job.Label, 0, ColDOI, "10.1000/x")
	assert.Error(t, err, "doi is not a scrapes column")
}

func TestActionStore_ParseActionRoundTrip(t *testing.T) {
	jobs, actions, cleanup := setupActionStores(t)
	defer cleanup()
	ctx := context.Background()

	job := testParseJob("parse_rt")
	require.NoError(t, jobs.InsertParseJob(ctx, job))

	scrapeLabel := "scrape_origin"
	scrapeIdx := 4
	withProvenance := &models.ParseAction{
		JobLabel:    job.Label,
		Index:       0,
		Date:        time.Now(),
		Status:      models.StatusWaiting,
		ScrapeLabel: &scrapeLabel,
		ScrapeIndex: &scrapeIdx,
		InputFile:   "/tmp/downloads/4.html",
		Affiliations: []string{
			"Department of Chemistry, University of Bristol",
			"School of Materials, University of Manchester",
		},
	}
	fromFile := &models.ParseAction{
		JobLabel:  job.Label,
		Index:     1,
		Date:      time.Now(),
		Status:    models.StatusWaiting,
		InputFile: "/tmp/handoff/papers/a.html",
	}
	require.NoError(t, actions.InsertParseActions(ctx, []*models.ParseAction{withProvenance, fromFile}))

	got, err := actions.GetParseAction(ctx, job.Label, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.ScrapeLabel)
	require.NotNil(t, got.ScrapeIndex)
	assert.Equal(t, scrapeLabel, *got.ScrapeLabel)
	assert.Equal(t, scrapeIdx, *got.ScrapeIndex)
	assert.Equal(t, withProvenance.Affiliations, got.Affiliations)

	got, err = actions.GetParseAction(ctx, job.Label, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.ScrapeLabel)
	assert.Nil(t, got.ScrapeIndex)
	assert.Empty(t, got.Affiliations)
}

func TestActionStore_UnparsedScrapeActions(t *testing.T) {
	jobs, actions, cleanup := setupActionStores(t)
	defer cleanup()
	ctx := context.Background()

	job := testScrapeJob("scrape_views")
	require.NoError(t, jobs.InsertScrapeJob(ctx, job))

	executedParsed := testScrapeAction(job.Label, 0)
	executedParsed.Status = models.StatusExecuted
	executedParsed.Success = true
	executedParsed.Parsed = true

	executedUnparsed := testScrapeAction(job.Label, 1)
	executedUnparsed.Status = models.StatusExecuted
	executedUnparsed.Success = true

	waiting := testScrapeAction(job.Label, 2)

	require.NoError(t, actions.InsertScrapeActions(ctx, []*models.ScrapeAction{executedParsed, executedUnparsed, waiting}))

	unparsed, err := actions.UnparsedScrapeActions(ctx)
	require.NoError(t, err)
	require.Len(t, unparsed, 1)
	assert.Equal(t, 1, unparsed[0].Index)
}

func TestActionStore_UncommittedParseActions(t *testing.T) {
	jobs, actions, cleanup := setupActionStores(t)
	defer cleanup()
	ctx := context.Background()

	job := testParseJob("parse_views")
	require.NoError(t, jobs.InsertParseJob(ctx, job))

	committed := &models.ParseAction{
		JobLabel: job.Label, Index: 0, Date: time.Now(),
		Status: models.StatusExecuted, Success: true, Committed: true,
	}
	uncommitted := &models.ParseAction{
		JobLabel: job.Label, Index: 1, Date: time.Now(),
		Status: models.StatusExecuted, Success: true,
	}
	require.NoError(t, actions.InsertParseActions(ctx, []*models.ParseAction{committed, uncommitted}))

	got, err := actions.UncommittedParseActions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Index)
}

func TestActionStore_Counts(t *testing.T) {
	jobs, actions, cleanup := setupActionStores(t)
	defer cleanup()
	ctx := context.Background()

	job := testScrapeJob("scrape_counts")
	require.NoError(t, jobs.InsertScrapeJob(ctx, job))

	parsedOK := testScrapeAction(job.Label, 0)
	parsedOK.Success = true
	parsedOK.Parsed = true
	pendingOK := testScrapeAction(job.Label, 1)
	pendingOK.Success = true
	failed := testScrapeAction(job.Label, 2) // success=false never counts

	require.NoError(t, actions.InsertScrapeActions(ctx, []*models.ScrapeAction{parsedOK, pendingOK, failed}))

	n, err := actions.UnparsedCount(ctx, job.Label)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, actions.UpdateColumn(ctx, models.StageScrape, job.Label, 1, ColParsed, true))
	n, err = actions.UnparsedCount(ctx, job.Label)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestActionStore_UnmarkParsed(t *testing.T) {
	jobs, actions, cleanup := setupActionStores(t)
	defer cleanup()
	ctx := context.Background()

	job := testScrapeJob("scrape_unmark")
	require.NoError(t, jobs.InsertScrapeJob(ctx, job))

	a0 := testScrapeAction(job.Label, 0)
	a0.Status = models.StatusExecuted
	a0.Success = true
	a0.Parsed = true
	a1 := testScrapeAction(job.Label, 1)
	a1.Status = models.StatusExecuted
	a1.Success = true
	a1.Parsed = true
	require.NoError(t, actions.InsertScrapeActions(ctx, []*models.ScrapeAction{a0, a1}))
	require.NoError(t, jobs.UpdateColumn(ctx, models.StageScrape, job.Label, ColJobParsed, true))

	require.NoError(t, actions.UnmarkParsed(ctx, job.Label))

	for i := 0; i < 2; i++ {
		got, err := actions.GetScrapeAction(ctx, job.Label, i)
		require.NoError(t, err)
		assert.False(t, got.Parsed)
	}
	sj, err := jobs.GetScrapeJob(ctx, job.Label)
	require.NoError(t, err)
	assert.False(t, sj.Parsed)

	n, err := actions.UnparsedCount(ctx, job.Label)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "unmarked actions are eligible for re-parse again")
}

func TestActionStore_UnmarkCommitted(t *testing.T) {
	jobs, actions, cleanup := setupActionStores(t)
	defer cleanup()
	ctx := context.Background()

	job := testParseJob("parse_unmark")
	require.NoError(t, jobs.InsertParseJob(ctx, job))
	require.NoError(t, actions.InsertParseActions(ctx, []*models.ParseAction{{
		JobLabel: job.Label, Index: 0, Date: time.Now(),
		Status: models.StatusExecuted, Success: true, Committed: true,
	}}))
	require.NoError(t, jobs.UpdateColumn(ctx, models.StageParse, job.Label, ColJobCommitted, true))

	require.NoError(t, actions.UnmarkCommitted(ctx, job.Label))

	got, err := actions.GetParseAction(ctx, job.Label, 0)
	require.NoError(t, err)
	assert.False(t, got.Committed)
	pj, err := jobs.GetParseJob(ctx, job.Label)
	require.NoError(t, err)
	assert.False(t, pj.Committed)
}
