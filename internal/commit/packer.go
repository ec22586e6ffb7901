package commit

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/logs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

// JobOptions configures a new commit job.
type JobOptions struct {
	// Label overrides the generated <stage>_<timestamp>_<rand> label. It must
	// contain no whitespace or path separators.
	Label string

	// Description is a free-form note stored on the job row and echoed in the
	// log preamble.
	Description string
}

// NewJobAuto creates a commit job over every successful, not-yet-committed
// parse action of every executed parse job (mode A).
func (e *Engine) NewJobAuto(ctx context.Context, opts JobOptions) (*models.CommitJob, error) {
	sources, err := e.collectExecuted(ctx, true)
	if err != nil {
		return nil, err
	}
	return e.newJob(ctx, sources, models.CommitModeAll, opts)
}

// NewJobEverything creates a commit job over every successful parse action of
// every executed parse job, committed before or not (mode E). The duplicate
// policy makes recommits harmless without overwrite.
func (e *Engine) NewJobEverything(ctx context.Context, opts JobOptions) (*models.CommitJob, error) {
	sources, err := e.collectExecuted(ctx, false)
	if err != nil {
		return nil, err
	}
	return e.newJob(ctx, sources, models.CommitModeEvery, opts)
}

// NewJobFromParseJobs creates a commit job over the successful actions of the
// named parse jobs (mode P). Every named job must exist and be executed.
func (e *Engine) NewJobFromParseJobs(ctx context.Context, labels []string, opts JobOptions) (*models.CommitJob, error) {
	var sources []*models.ParseAction
	for _, label := range labels {
		job, err := e.jobs.GetParseJob(ctx, label)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, fmt.Errorf("parse job %q: %w", label, sqlite.ErrNotFound)
		}
		if job.Status != models.StatusExecuted {
			return nil, fmt.Errorf("parse job %q is %s, not executed", label, job.Status)
		}
		actions, err := e.actions.SearchParseActions(ctx, sqlite.And, []sqlite.Cond{
			sqlite.Eq(sqlite.ColJobLabel, label),
			sqlite.Eq(sqlite.ColSuccess, true),
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, actions...)
	}
	return e.newJob(ctx, sources, models.CommitModeSelected, opts)
}

// collectExecuted gathers successful parse actions across every executed
// parse job. With onlyUncommitted, actions the commit stage already consumed
// are left out.
func (e *Engine) collectExecuted(ctx context.Context, onlyUncommitted bool) ([]*models.ParseAction, error) {
	executed, err := e.jobs.SearchParseJobs(ctx, sqlite.And, []sqlite.Cond{
		sqlite.Eq(sqlite.ColStatus, string(models.StatusExecuted)),
	})
	if err != nil {
		return nil, err
	}

	var sources []*models.ParseAction
	for _, job := range executed {
		conds := []sqlite.Cond{
			sqlite.Eq(sqlite.ColJobLabel, job.Label),
			sqlite.Eq(sqlite.ColSuccess, true),
		}
		if onlyUncommitted {
			conds = append(conds, sqlite.Eq(sqlite.ColCommitted, false))
		}
		actions, err := e.actions.SearchParseActions(ctx, sqlite.And, conds)
		if err != nil {
			return nil, err
		}
		sources = append(sources, actions...)
	}
	return sources, nil
}

// newJob inserts the job row in I, packs one action per source parse action
// with the metadata echoed, and moves the job to W. The echo makes the commit
// run independent of later changes to the parse rows.
func (e *Engine) newJob(ctx context.Context, sources []*models.ParseAction, mode string, opts JobOptions) (*models.CommitJob, error) {
	now := time.Now()
	label := opts.Label
	if label == "" {
		label = jobs.NewLabel(models.StageCommit, now)
	}
	if err := jobs.ValidateLabel(label); err != nil {
		return nil, err
	}

	job := &models.CommitJob{
		JobCore: models.JobCore{
			Label:       label,
			Description: opts.Description,
			Date:        now,
			LogPath:     e.paths.JobLog(string(models.StageCommit), label),
			Mode:        mode,
			Status:      models.StatusInitialized,
		},
	}
	if err := e.jobs.InsertCommitJob(ctx, job); err != nil {
		return nil, err
	}

	sink, err := logs.OpenFileSink(e.logger, job.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	jobLog := logs.NewJobLogger(e.logger, sink, label)
	defer jobLog.Close()
	jobLog.Preamble(string(models.StageCommit), opts.Description, now)

	batch := make([]*models.CommitAction, 0, len(sources))
	for i, src := range sources {
		batch = append(batch, echoAction(src, label, i, now))
		jobLog.Infof("packed %d: %s from %s[%d]", i, src.DOI, src.JobLabel, src.Index)
	}

	if err := PackCommitActions(ctx, e.jobs, e.actions, label, batch); err != nil {
		return nil, err
	}
	jobLog.Infof("packed %d actions", len(batch))

	return e.jobs.GetCommitJob(ctx, label)
}

// echoAction copies a parse action's metadata onto a fresh commit action.
func echoAction(src *models.ParseAction, label string, index int, now time.Time) *models.CommitAction {
	return &models.CommitAction{
		JobLabel:   label,
		Index:      index,
		Date:       now,
		Status:     models.StatusWaiting,
		ParseLabel: src.JobLabel,
		ParseIndex: src.Index,

		DOI:          src.DOI,
		Publisher:    src.Publisher,
		Journal:      src.Journal,
		Title:        src.Title,
		PubType:      src.PubType,
		Affiliations: src.Affiliations,
		Received:     src.Received,
		Accepted:     src.Accepted,
		Published:    src.Published,

		NormPublisher: src.NormPublisher,
		NormJournal:   src.NormJournal,
		NormReceived:  src.NormReceived,
		NormAccepted:  src.NormAccepted,
		NormPublished: src.NormPublished,
	}
}

// PackCommitActions appends actions to a commit job still in I or W, bumps
// the publication count, and moves the job to W. Packing a running or
// finalized job fails with jobs.ErrJobNotPackable.
func PackCommitActions(ctx context.Context, jobStore *sqlite.JobStore, actionStore *sqlite.ActionStore, label string, batch []*models.CommitAction) error {
	w, err := jobs.OpenCommitJob(ctx, jobStore, label)
	if err != nil {
		return err
	}
	core := w.Core()
	if core.Status != models.StatusInitialized && core.Status != models.StatusWaiting {
		return fmt.Errorf("commit job %q is %s: %w", label, core.Status, jobs.ErrJobNotPackable)
	}

	// Indices continue the contiguous range the job already holds.
	for i, a := range batch {
		a.JobLabel = label
		a.Index = core.Publications + i
	}
	if len(batch) > 0 {
		if err := actionStore.InsertCommitActions(ctx, batch); err != nil {
			return err
		}
	}
	if err := w.SetPublications(ctx, core.Publications+len(batch)); err != nil {
		return err
	}
	return w.SetStatus(ctx, models.StatusWaiting)
}
