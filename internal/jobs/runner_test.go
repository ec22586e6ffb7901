package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

func setupStores(t *testing.T) (*sqlite.JobStore, *sqlite.ActionStore, string) {
	dir := t.TempDir()

	config := sqlite.Config{
		Path:          filepath.Join(dir, "jobs.db"),
		CacheSizeMB:   10,
		BusyTimeoutMS: 5000,
		WALMode:       false,
	}

	logger := arbor.NewLogger()
	db, err := sqlite.OpenJobsDB(logger, config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlite.NewJobStore(db, logger), sqlite.NewActionStore(db, logger), dir
}

// seedScrapeJob inserts a packed scrape job in W with one action per URL.
func seedScrapeJob(t *testing.T, jobs *sqlite.JobStore, actions *sqlite.ActionStore, dir, label string, urls []string) {
	ctx := context.Background()

	job := &models.ScrapeJob{
		JobCore: models.JobCore{
			Label:        label,
			Description:  "runner test batch",
			Date:         time.Now(),
			LogPath:      filepath.Join(dir, label+".log"),
			Mode:         models.ScrapeModeList,
			Status:       models.StatusWaiting,
			Publications: len(urls),
		},
		DownloadDir: filepath.Join(dir, "downloads", label),
	}
	require.NoError(t, jobs.InsertScrapeJob(ctx, job))

	var batch []*models.ScrapeAction
	for i, url := range urls {
		batch = append(batch, &models.ScrapeAction{
			JobLabel: label,
			Index:    i,
			Date:     time.Now(),
			Status:   models.StatusWaiting,
			URL:      url,
			Journal:  "unknown",
			Method:   "get_html",
		})
	}
	if len(batch) > 0 {
		require.NoError(t, actions.InsertScrapeActions(ctx, batch))
	}
}

// fakeExecutor drives the runner without real work. Indices listed in errs
// blow up; indices listed in failures report success=false.
type fakeExecutor struct {
	errs        map[int]error
	failures    map[int]bool
	ran         []int
	finalized   bool
	finalizeErr error
	onAction    func(rc *RunContext, index int)
}

func (f *fakeExecutor) Stage() models.Stage { return models.StageScrape }

func (f *fakeExecutor) RunAction(ctx context.Context, rc *RunContext, index int) (bool, error) {
	f.ran = append(f.ran, index)
	if f.onAction != nil {
		f.onAction(rc, index)
	}
	if err := f.errs[index]; err != nil {
		return false, err
	}
	if f.failures[index] {
		return false, nil
	}
	return true, nil
}

func (f *fakeExecutor) Finalize(ctx context.Context, rc *RunContext) error {
	f.finalized = true
	return f.finalizeErr
}

func TestRunner_DrivesActionsInOrder(t *testing.T) {
	jobs, actions, dir := setupStores(t)
	ctx := context.Background()
	label := "scrape_20260301080000_aaaa0001"
	seedScrapeJob(t, jobs, actions, dir, label, []string{
		"https://example.org/a",
		"https://example.org/b",
		"https://example.org/c",
	})

	exec := &fakeExecutor{}
	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)

	report, err := runner.Run(ctx, exec, label, FromScratch)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, exec.ran)
	assert.True(t, exec.finalized)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, models.StatusExecuted, report.Final)
	assert.Empty(t, report.Failing)

	job, err := jobs.GetScrapeJob(ctx, label)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, models.StatusExecuted, job.Status)
	assert.Equal(t, 3, job.Step)
	assert.Equal(t, 3, job.Successes)
	assert.Equal(t, 0, job.Fails)

	for i := 0; i < 3; i++ {
		a, err := actions.GetScrapeAction(ctx, label, i)
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.Equal(t, models.StatusExecuted, a.Status)
		assert.True(t, a.Success)
	}

	data, err := os.ReadFile(filepath.Join(dir, label+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "run started")
	assert.Contains(t, string(data), "report: succeeded 3/3 failed 0/3 status=X")
}

func TestRunner_ContainsActionFailures(t *testing.T) {
	jobs, actions, dir := setupStores(t)
	ctx := context.Background()
	label := "scrape_20260301080000_aaaa0002"
	seedScrapeJob(t, jobs, actions, dir, label, []string{
		"https://example.org/ok",
		"https://example.org/boom",
		"not_a_url",
	})

	exec := &fakeExecutor{
		errs:     map[int]error{1: fmt.Errorf("connection refused")},
		failures: map[int]bool{2: true},
	}
	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)

	report, err := runner.Run(ctx, exec, label, FromScratch)
	require.NoError(t, err)

	// The job runs to completion despite per-action failures.
	assert.Equal(t, []int{0, 1, 2}, exec.ran)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, models.StatusExecuted, report.Final)
	require.Len(t, report.Failing, 2)
	assert.Equal(t, 1, report.Failing[0].Index)
	assert.Equal(t, "https://example.org/boom", report.Failing[0].Input)
	assert.Equal(t, 2, report.Failing[1].Index)
	assert.Equal(t, "not_a_url", report.Failing[1].Input)

	// An executor error marks the action E; a plain failure leaves it X.
	blown, err := actions.GetScrapeAction(ctx, label, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, blown.Status)
	assert.False(t, blown.Success)

	failed, err := actions.GetScrapeAction(ctx, label, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, failed.Status)
	assert.False(t, failed.Success)

	data, err := os.ReadFile(filepath.Join(dir, label+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ERR action 1: connection refused")
}

func TestRunner_ZeroPublications(t *testing.T) {
	jobs, actions, dir := setupStores(t)
	ctx := context.Background()
	label := "scrape_20260301080000_aaaa0003"
	seedScrapeJob(t, jobs, actions, dir, label, nil)

	exec := &fakeExecutor{}
	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)

	report, err := runner.Run(ctx, exec, label, FromScratch)
	assert.ErrorIs(t, err, ErrNoActions)
	require.NotNil(t, report)
	assert.Equal(t, models.StatusError, report.Final)
	assert.Empty(t, exec.ran)
	assert.False(t, exec.finalized)

	job, err := jobs.GetScrapeJob(ctx, label)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, job.Status)
}

func TestRunner_MissingJob(t *testing.T) {
	jobs, actions, _ := setupStores(t)

	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)
	_, err := runner.Run(context.Background(), &fakeExecutor{}, "scrape_nope", FromScratch)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestRunner_RunningJobNeedsResume(t *testing.T) {
	jobs, actions, dir := setupStores(t)
	ctx := context.Background()
	label := "scrape_20260301080000_aaaa0004"
	seedScrapeJob(t, jobs, actions, dir, label, []string{"https://example.org/a"})
	require.NoError(t, jobs.UpdateColumn(ctx, models.StageScrape, label, sqlite.ColStatus, string(models.StatusRunning)))

	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)

	_, err := runner.Run(ctx, &fakeExecutor{}, label, FromScratch)
	assert.ErrorIs(t, err, ErrJobRunning)

	report, err := runner.Run(ctx, &fakeExecutor{}, label, Resume)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, report.Final)
}

func TestRunner_FinalizedJobNeedsFromScratch(t *testing.T) {
	jobs, actions, dir := setupStores(t)
	ctx := context.Background()
	label := "scrape_20260301080000_aaaa0005"
	seedScrapeJob(t, jobs, actions, dir, label, []string{"https://example.org/a", "https://example.org/b"})

	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)
	first := &fakeExecutor{}
	_, err := runner.Run(ctx, first, label, FromScratch)
	require.NoError(t, err)

	_, err = runner.Run(ctx, &fakeExecutor{}, label, Resume)
	assert.ErrorIs(t, err, ErrJobFinalized)

	// A from-scratch rerun resets the counters instead of accumulating.
	second := &fakeExecutor{}
	report, err := runner.Run(ctx, second, label, FromScratch)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, second.ran)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, report.Failed)

	job, err := jobs.GetScrapeJob(ctx, label)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Successes)
	assert.Equal(t, 2, job.Step)
}

func TestRunner_ResumeContinuesFromStep(t *testing.T) {
	jobs, actions, dir := setupStores(t)
	ctx := context.Background()
	label := "scrape_20260301080000_aaaa0006"

	var urls []string
	for i := 0; i < 10; i++ {
		urls = append(urls, fmt.Sprintf("https://example.org/%d", i))
	}
	seedScrapeJob(t, jobs, actions, dir, label, urls)

	// Simulate a driver killed after four actions: counters persisted,
	// job left in R.
	for i := 0; i < 4; i++ {
		require.NoError(t, actions.UpdateColumn(ctx, models.StageScrape, label, i, sqlite.ColStatus, string(models.StatusExecuted)))
		require.NoError(t, actions.UpdateColumn(ctx, models.StageScrape, label, i, sqlite.ColSuccess, true))
	}
	require.NoError(t, jobs.UpdateColumn(ctx, models.StageScrape, label, sqlite.ColStep, 4))
	require.NoError(t, jobs.UpdateColumn(ctx, models.StageScrape, label, sqlite.ColSuccesses, 4))
	require.NoError(t, jobs.UpdateColumn(ctx, models.StageScrape, label, sqlite.ColStatus, string(models.StatusRunning)))

	exec := &fakeExecutor{}
	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)

	report, err := runner.Run(ctx, exec, label, Resume)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, exec.ran)
	assert.Equal(t, 10, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, models.StatusExecuted, report.Final)

	job, err := jobs.GetScrapeJob(ctx, label)
	require.NoError(t, err)
	assert.Equal(t, 10, job.Step)
	assert.Equal(t, 10, job.Successes)
}

func TestRunner_CooperativeStop(t *testing.T) {
	jobs, actions, dir := setupStores(t)
	ctx := context.Background()
	label := "scrape_20260301080000_aaaa0007"
	seedScrapeJob(t, jobs, actions, dir, label, []string{
		"https://example.org/0",
		"https://example.org/1",
		"https://example.org/2",
		"https://example.org/3",
		"https://example.org/4",
	})

	exec := &fakeExecutor{}
	exec.onAction = func(rc *RunContext, index int) {
		// An external writer aborts the job while action 1 runs; the loop
		// must notice at the next boundary.
		if index == 1 {
			require.NoError(t, jobs.UpdateColumn(context.Background(), models.StageScrape, label, sqlite.ColStatus, string(models.StatusWaiting)))
		}
	}
	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)

	report, err := runner.Run(ctx, exec, label, FromScratch)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, exec.ran)
	assert.False(t, exec.finalized)
	assert.Equal(t, models.StatusWaiting, report.Final)

	// The job keeps the externally observed status.
	job, err := jobs.GetScrapeJob(ctx, label)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, job.Status)
	assert.Equal(t, 2, job.Step)
}

func TestRunner_FinalizeErrorMarksJobError(t *testing.T) {
	jobs, actions, dir := setupStores(t)
	ctx := context.Background()
	label := "scrape_20260301080000_aaaa0008"
	seedScrapeJob(t, jobs, actions, dir, label, []string{"https://example.org/a"})

	exec := &fakeExecutor{finalizeErr: fmt.Errorf("zip write failed")}
	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)

	report, err := runner.Run(ctx, exec, label, FromScratch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip write failed")
	require.NotNil(t, report)
	assert.Equal(t, models.StatusError, report.Final)

	job, err := jobs.GetScrapeJob(ctx, label)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, job.Status)
}

func TestRunner_CanceledContextLeavesJobRunning(t *testing.T) {
	jobs, actions, dir := setupStores(t)
	label := "scrape_20260301080000_aaaa0009"
	seedScrapeJob(t, jobs, actions, dir, label, []string{
		"https://example.org/0",
		"https://example.org/1",
		"https://example.org/2",
	})

	runCtx, cancel := context.WithCancel(context.Background())
	exec := &fakeExecutor{}
	exec.onAction = func(rc *RunContext, index int) {
		if index == 0 {
			cancel()
		}
	}
	runner := NewRunner(jobs, actions, arbor.NewLogger(), 0)

	// Action 0 itself succeeds; the stop happens at the next boundary. The
	// completed action's bookkeeping must land despite the canceled context.
	_, err := runner.Run(runCtx, exec, label, FromScratch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{0}, exec.ran)

	job, getErr := jobs.GetScrapeJob(context.Background(), label)
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusRunning, job.Status)
	assert.Equal(t, 1, job.Step)
	assert.Equal(t, 1, job.Successes)

	done, getErr := actions.GetScrapeAction(context.Background(), label, 0)
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusExecuted, done.Status)
	assert.True(t, done.Success)
}
