package parse

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/logs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

// JobOptions configures a new parse job.
type JobOptions struct {
	// Label overrides the generated <stage>_<timestamp>_<rand> label. It must
	// contain no whitespace or path separators.
	Label string

	// Description is a free-form note stored on the job row and echoed in the
	// log preamble.
	Description string
}

// packInput is one candidate input file, with scrape provenance when the file
// came out of a scrape action.
type packInput struct {
	file        string
	scrapeLabel *string
	scrapeIndex *int
}

// NewJobAuto creates a parse job over every successful, not-yet-parsed scrape
// action of every executed scrape job (mode A).
func (e *Engine) NewJobAuto(ctx context.Context, opts JobOptions) (*models.ParseJob, error) {
	inputs, err := e.collectExecuted(ctx, true)
	if err != nil {
		return nil, err
	}
	return e.newJob(ctx, inputs, models.ParseModeAll, opts)
}

// NewJobEverything creates a parse job over every successful scrape action of
// every executed scrape job, parsed before or not (mode E).
func (e *Engine) NewJobEverything(ctx context.Context, opts JobOptions) (*models.ParseJob, error) {
	inputs, err := e.collectExecuted(ctx, false)
	if err != nil {
		return nil, err
	}
	return e.newJob(ctx, inputs, models.ParseModeEvery, opts)
}

// NewJobFromScrapeJobs creates a parse job over the successful actions of the
// named scrape jobs (mode S). Every named job must exist and be executed.
func (e *Engine) NewJobFromScrapeJobs(ctx context.Context, labels []string, opts JobOptions) (*models.ParseJob, error) {
	var inputs []packInput
	for _, label := range labels {
		job, err := e.jobs.GetScrapeJob(ctx, label)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, fmt.Errorf("scrape job %q: %w", label, sqlite.ErrNotFound)
		}
		if job.Status != models.StatusExecuted {
			return nil, fmt.Errorf("scrape job %q is %s, not executed", label, job.Status)
		}
		collected, err := e.collectFromJob(ctx, job, false)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, collected...)
	}
	return e.newJob(ctx, inputs, models.ParseModeSelected, opts)
}

// NewJobFromFiles creates a parse job over an explicit file list with no
// scrape provenance (mode F). Back-propagation does not apply to these jobs.
func (e *Engine) NewJobFromFiles(ctx context.Context, files []string, opts JobOptions) (*models.ParseJob, error) {
	inputs := make([]packInput, 0, len(files))
	for _, f := range files {
		inputs = append(inputs, packInput{file: f})
	}
	return e.newJob(ctx, inputs, models.ParseModeFiles, opts)
}

// collectExecuted gathers successful scrape actions across every executed
// scrape job. With onlyUnparsed, actions the parse stage already consumed are
// left out.
func (e *Engine) collectExecuted(ctx context.Context, onlyUnparsed bool) ([]packInput, error) {
	executed, err := e.jobs.SearchScrapeJobs(ctx, sqlite.And, []sqlite.Cond{
		sqlite.Eq(sqlite.ColStatus, string(models.StatusExecuted)),
	})
	if err != nil {
		return nil, err
	}

	var inputs []packInput
	for _, job := range executed {
		collected, err := e.collectFromJob(ctx, job, onlyUnparsed)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, collected...)
	}
	return inputs, nil
}

func (e *Engine) collectFromJob(ctx context.Context, job *models.ScrapeJob, onlyUnparsed bool) ([]packInput, error) {
	conds := []sqlite.Cond{
		sqlite.Eq(sqlite.ColJobLabel, job.Label),
		sqlite.Eq(sqlite.ColSuccess, true),
	}
	if onlyUnparsed {
		conds = append(conds, sqlite.Eq(sqlite.ColParsed, false))
	}
	actions, err := e.actions.SearchScrapeActions(ctx, sqlite.And, conds)
	if err != nil {
		return nil, err
	}

	inputs := make([]packInput, 0, len(actions))
	for _, a := range actions {
		label := a.JobLabel
		idx := a.Index
		inputs = append(inputs, packInput{
			file:        filepath.Join(job.DownloadDir, a.OutFile),
			scrapeLabel: &label,
			scrapeIndex: &idx,
		})
	}
	return inputs, nil
}

// newJob inserts the job row in I, checks every input for readability, packs
// the readable ones as actions in W, and moves the job to W. Unreadable
// inputs are dropped with a log line; a job packed with zero readable inputs
// stays valid and finalizes to E when run.
func (e *Engine) newJob(ctx context.Context, inputs []packInput, mode string, opts JobOptions) (*models.ParseJob, error) {
	now := time.Now()
	label := opts.Label
	if label == "" {
		label = jobs.NewLabel(models.StageParse, now)
	}
	if err := jobs.ValidateLabel(label); err != nil {
		return nil, err
	}

	job := &models.ParseJob{
		JobCore: models.JobCore{
			Label:       label,
			Description: opts.Description,
			Date:        now,
			LogPath:     e.paths.JobLog(string(models.StageParse), label),
			Mode:        mode,
			Status:      models.StatusInitialized,
		},
		ParseDir: e.paths.ParseDir(label),
	}
	if err := e.jobs.InsertParseJob(ctx, job); err != nil {
		return nil, err
	}

	sink, err := logs.OpenFileSink(e.logger, job.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	jobLog := logs.NewJobLogger(e.logger, sink, label)
	defer jobLog.Close()
	jobLog.Preamble(string(models.StageParse), opts.Description, now)

	batch := make([]*models.ParseAction, 0, len(inputs))
	dropped := 0
	for _, in := range inputs {
		if err := CheckReadable(in.file); err != nil {
			jobLog.Warnf("dropped unreadable input %s: %v", in.file, err)
			dropped++
			continue
		}
		i := len(batch)
		batch = append(batch, &models.ParseAction{
			JobLabel:    label,
			Index:       i,
			Date:        now,
			Status:      models.StatusWaiting,
			ScrapeLabel: in.scrapeLabel,
			ScrapeIndex: in.scrapeIndex,
			InputFile:   in.file,
		})
		jobLog.Infof("packed %d: %s", i, in.file)
	}

	if err := PackParseActions(ctx, e.jobs, e.actions, label, batch); err != nil {
		return nil, err
	}
	jobLog.Infof("packed %d actions, dropped %d", len(batch), dropped)

	return e.jobs.GetParseJob(ctx, label)
}

// PackParseActions appends actions to a parse job still in I or W, bumps the
// publication count, and moves the job to W. Packing a running or finalized
// job fails with jobs.ErrJobNotPackable.
func PackParseActions(ctx context.Context, jobStore *sqlite.JobStore, actionStore *sqlite.ActionStore, label string, batch []*models.ParseAction) error {
	w, err := jobs.OpenParseJob(ctx, jobStore, label)
	if err != nil {
		return err
	}
	core := w.Core()
	if core.Status != models.StatusInitialized && core.Status != models.StatusWaiting {
		return fmt.Errorf("parse job %q is %s: %w", label, core.Status, jobs.ErrJobNotPackable)
	}

	// Indices continue the contiguous range the job already holds.
	for i, a := range batch {
		a.JobLabel = label
		a.Index = core.Publications + i
	}
	if len(batch) > 0 {
		if err := actionStore.InsertParseActions(ctx, batch); err != nil {
			return err
		}
	}
	if err := w.SetPublications(ctx, core.Publications+len(batch)); err != nil {
		return err
	}
	return w.SetStatus(ctx, models.StatusWaiting)
}
