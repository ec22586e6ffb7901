// -----------------------------------------------------------------------
// Scrape engine - runs packed URL actions through the planned method
// (skip, get_html, resolve_doi) and archives the batch on completion
// -----------------------------------------------------------------------

package scrape

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/logs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

// JobOptions configures a new scrape job.
type JobOptions struct {
	// Label overrides the generated <stage>_<timestamp>_<rand> label. It must
	// contain no whitespace or path separators.
	Label string

	// Description is a free-form note stored on the job row and echoed in the
	// log preamble.
	Description string
}

// Engine creates scrape jobs from URL inputs and executes their actions: one
// HTTP acquisition per action, dispatched on the method the planner stamped.
// It implements jobs.Executor.
type Engine struct {
	fetcher *Fetcher
	jobs    *sqlite.JobStore
	actions *sqlite.ActionStore
	paths   common.DataPaths
	logger  arbor.ILogger

	// cleanup removes the download directory after the end-of-job archive is
	// written.
	cleanup bool
}

// NewEngine creates a scrape engine over the given stores.
func NewEngine(jobStore *sqlite.JobStore, actionStore *sqlite.ActionStore, fetcher *Fetcher, paths common.DataPaths, logger arbor.ILogger, cleanup bool) *Engine {
	return &Engine{
		fetcher: fetcher,
		jobs:    jobStore,
		actions: actionStore,
		paths:   paths,
		logger:  logger,
		cleanup: cleanup,
	}
}

// Stage identifies the engine to the runner.
func (e *Engine) Stage() models.Stage {
	return models.StageScrape
}

// NewJobFromList creates a scrape job from an in-memory URL list (mode L).
func (e *Engine) NewJobFromList(ctx context.Context, urls []string, opts JobOptions) (*models.ScrapeJob, error) {
	return e.newJob(ctx, FromList(urls), models.ScrapeModeList, opts)
}

// NewJobFromJSONFile creates a scrape job from a JSON input file (mode J).
func (e *Engine) NewJobFromJSONFile(ctx context.Context, path string, opts JobOptions) (*models.ScrapeJob, error) {
	urls, err := FromJSONFile(path)
	if err != nil {
		return nil, err
	}
	return e.newJob(ctx, urls, models.ScrapeModeJSON, opts)
}

// NewJobFromTextFile creates a scrape job from a plaintext input file, one URL
// or DOI per line (mode T).
func (e *Engine) NewJobFromTextFile(ctx context.Context, path string, opts JobOptions) (*models.ScrapeJob, error) {
	urls, err := FromTextFile(path)
	if err != nil {
		return nil, err
	}
	return e.newJob(ctx, urls, models.ScrapeModeText, opts)
}

// newJob inserts the job row in I, plans one action per URL, packs them in W,
// and moves the job to W. A job packed with zero URLs stays valid; running it
// finalizes to E immediately.
func (e *Engine) newJob(ctx context.Context, urls []string, mode string, opts JobOptions) (*models.ScrapeJob, error) {
	now := time.Now()
	label := opts.Label
	if label == "" {
		label = jobs.NewLabel(models.StageScrape, now)
	}
	if err := jobs.ValidateLabel(label); err != nil {
		return nil, err
	}

	job := &models.ScrapeJob{
		JobCore: models.JobCore{
			Label:       label,
			Description: opts.Description,
			Date:        now,
			LogPath:     e.paths.JobLog(string(models.StageScrape), label),
			Mode:        mode,
			Status:      models.StatusInitialized,
		},
		DownloadDir: e.paths.DownloadDir(label),
		ZipFile:     e.paths.ZipFile(label),
	}
	if err := e.jobs.InsertScrapeJob(ctx, job); err != nil {
		return nil, err
	}

	sink, err := logs.OpenFileSink(e.logger, job.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	jobLog := logs.NewJobLogger(e.logger, sink, label)
	defer jobLog.Close()
	jobLog.Preamble(string(models.StageScrape), opts.Description, now)

	batch := make([]*models.ScrapeAction, 0, len(urls))
	for i, url := range urls {
		plan := PlanURL(url)
		batch = append(batch, &models.ScrapeAction{
			JobLabel: label,
			Index:    i,
			Date:     now,
			Status:   models.StatusWaiting,
			URL:      url,
			Journal:  plan.Journal,
			Method:   plan.Method,
		})
		jobLog.Infof("planned %d: %s journal=%s strategy=%s", i, url, plan.Journal, plan.Strategy)
	}

	if err := PackScrapeActions(ctx, e.jobs, e.actions, label, batch); err != nil {
		return nil, err
	}
	jobLog.Infof("packed %d actions", len(batch))

	return e.jobs.GetScrapeJob(ctx, label)
}

// PackScrapeActions appends planned actions to a job still in I or W, bumps
// the publication count, and moves the job to W. Packing a running or
// finalized job fails with jobs.ErrJobNotPackable.
func PackScrapeActions(ctx context.Context, jobStore *sqlite.JobStore, actionStore *sqlite.ActionStore, label string, batch []*models.ScrapeAction) error {
	w, err := jobs.OpenScrapeJob(ctx, jobStore, label)
	if err != nil {
		return err
	}
	core := w.Core()
	if core.Status != models.StatusInitialized && core.Status != models.StatusWaiting {
		return fmt.Errorf("scrape job %q is %s: %w", label, core.Status, jobs.ErrJobNotPackable)
	}

	// Indices continue the contiguous range the job already holds.
	for i, a := range batch {
		a.JobLabel = label
		a.Index = core.Publications + i
	}
	if len(batch) > 0 {
		if err := actionStore.InsertScrapeActions(ctx, batch); err != nil {
			return err
		}
	}
	if err := w.SetPublications(ctx, core.Publications+len(batch)); err != nil {
		return err
	}
	return w.SetStatus(ctx, models.StatusWaiting)
}

// RunAction drives one scrape action: dispatch on the planned method, download
// if the strategy calls for it, and record the out_file. The returned flag is
// the action's success; errors are contained by the runner.
func (e *Engine) RunAction(ctx context.Context, rc *jobs.RunContext, index int) (bool, error) {
	aw, err := jobs.OpenScrapeAction(ctx, rc.Actions, rc.Label, index)
	if err != nil {
		return false, err
	}
	action := aw.Snapshot()

	switch action.Method {
	case MethodSkip:
		rc.Log.Warnf("action %d: skipped (%s)", index, action.URL)
		return false, nil
	case MethodGetHTML:
		return e.getHTML(ctx, rc, aw, index)
	case MethodResolveDOI:
		return e.resolveDOI(ctx, rc, aw, index)
	default:
		return false, fmt.Errorf("unknown scrape method %q", action.Method)
	}
}

// getHTML issues one budgeted GET and writes the body verbatim to
// <download_dir>/<index>.html.
func (e *Engine) getHTML(ctx context.Context, rc *jobs.RunContext, aw *jobs.ScrapeActionWriter, index int) (bool, error) {
	action := aw.Snapshot()
	job, err := rc.Jobs.GetScrapeJob(ctx, rc.Label)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, fmt.Errorf("scrape job %q: %w", rc.Label, sqlite.ErrNotFound)
	}

	body, err := e.fetcher.Get(ctx, action.URL)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(job.DownloadDir, 0755); err != nil {
		return false, fmt.Errorf("failed to create download directory: %w", err)
	}
	name := fmt.Sprintf("%d.html", index)
	if err := os.WriteFile(filepath.Join(job.DownloadDir, name), body, 0644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := aw.SetOutFile(ctx, name); err != nil {
		return false, err
	}

	rc.Log.Infof("action %d: fetched %s (%d bytes) -> %s", index, action.URL, len(body), name)
	return true, nil
}

// resolveDOI follows the DOI resolver's redirects, replans the resolved URL,
// persists the new plan on the action, and invokes the new method.
func (e *Engine) resolveDOI(ctx context.Context, rc *jobs.RunContext, aw *jobs.ScrapeActionWriter, index int) (bool, error) {
	action := aw.Snapshot()
	resolved, err := e.fetcher.ResolveDOI(ctx, action.URL)
	if err != nil {
		return false, err
	}

	plan := PlanURL(resolved)
	if plan.Method == MethodResolveDOI {
		return false, fmt.Errorf("DOI %s did not resolve past the resolver host (%s)", action.URL, resolved)
	}

	if err := aw.SetURL(ctx, resolved); err != nil {
		return false, err
	}
	if err := aw.SetJournal(ctx, plan.Journal); err != nil {
		return false, err
	}
	if err := aw.SetMethod(ctx, plan.Method); err != nil {
		return false, err
	}
	rc.Log.Infof("action %d: DOI resolved to %s journal=%s method=%s", index, resolved, plan.Journal, plan.Method)

	switch plan.Method {
	case MethodSkip:
		rc.Log.Warnf("action %d: resolved URL is not fetchable, skipped", index)
		return false, nil
	default:
		return e.getHTML(ctx, rc, aw, index)
	}
}

// Finalize archives the successful actions' output files into the job's zip
// and, when the engine was created with cleanup, removes the download
// directory.
func (e *Engine) Finalize(ctx context.Context, rc *jobs.RunContext) error {
	jw, err := jobs.OpenScrapeJob(ctx, rc.Jobs, rc.Label)
	if err != nil {
		return err
	}
	job := jw.Snapshot()

	actions, err := rc.Actions.SearchScrapeActions(ctx, sqlite.And, []sqlite.Cond{
		sqlite.Eq(sqlite.ColJobLabel, rc.Label),
		sqlite.Eq(sqlite.ColSuccess, true),
	})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(actions))
	for _, a := range actions {
		if a.OutFile != "" {
			names = append(names, a.OutFile)
		}
	}

	if len(names) == 0 {
		rc.Log.Warnf("no successful downloads, archive skipped")
	} else {
		if err := BuildArchive(job.ZipFile, job.DownloadDir, names); err != nil {
			return err
		}
		rc.Log.Infof("archived %d files to %s", len(names), job.ZipFile)
	}

	if e.cleanup {
		if err := os.RemoveAll(job.DownloadDir); err != nil {
			return fmt.Errorf("failed to remove download directory: %w", err)
		}
		rc.Log.Infof("removed download directory %s", job.DownloadDir)
	}
	return nil
}
