// Package commit moves parsed metadata into the publication table. A commit
// job packs successful parse actions, echoing their fields onto the commit
// action rows, so the run itself only reads its own rows and applies the
// duplicate policy per DOI.
package commit

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

// Options carries the commit run flags.
type Options struct {
	// Overwrite replaces the stored publication on DOI collision instead of
	// refusing the write.
	Overwrite bool

	// NoParseMark disables writing committed=T back to the originating parse
	// actions and jobs.
	NoParseMark bool
}

// Engine creates commit jobs and executes their actions: one publication
// insert per action. It implements jobs.Executor.
type Engine struct {
	jobs    *sqlite.JobStore
	actions *sqlite.ActionStore
	pubs    *sqlite.PubStore
	paths   common.DataPaths
	logger  arbor.ILogger
	opts    Options
}

// NewEngine creates a commit engine over the given stores.
func NewEngine(jobStore *sqlite.JobStore, actionStore *sqlite.ActionStore, pubStore *sqlite.PubStore, paths common.DataPaths, logger arbor.ILogger, opts Options) *Engine {
	return &Engine{
		jobs:    jobStore,
		actions: actionStore,
		pubs:    pubStore,
		paths:   paths,
		logger:  logger,
		opts:    opts,
	}
}

// Stage identifies the engine to the runner.
func (e *Engine) Stage() models.Stage {
	return models.StageCommit
}

// RunAction drives one commit action: apply the duplicate policy to the
// echoed metadata and record the verdict. A refused duplicate is still a
// successful action; only storage failures fail it.
func (e *Engine) RunAction(ctx context.Context, rc *jobs.RunContext, index int) (bool, error) {
	aw, err := jobs.OpenCommitAction(ctx, rc.Actions, rc.Label, index)
	if err != nil {
		return false, err
	}
	action := aw.Snapshot()

	duplicate, inserted, err := e.pubs.Insert(ctx, action.Publication(time.Now()), e.opts.Overwrite)
	if err != nil {
		return false, err
	}
	if err := aw.SetDuplicate(ctx, duplicate); err != nil {
		return false, err
	}
	if err := aw.SetPassed(ctx, inserted); err != nil {
		return false, err
	}

	switch {
	case inserted && duplicate:
		rc.Log.Infof("action %d: %s overwritten", index, action.DOI)
	case inserted:
		rc.Log.Infof("action %d: %s committed", index, action.DOI)
	default:
		rc.Log.Warnf("action %d: %s already present, refused", index, action.DOI)
	}

	// The publication is in the table whether this action wrote it or an
	// earlier one did, so the parse action counts as committed either way.
	if !e.opts.NoParseMark {
		if err := e.markParseAction(ctx, rc, action.ParseLabel, action.ParseIndex); err != nil {
			return false, err
		}
	}
	return true, nil
}

// markParseAction back-propagates committed=T to the originating parse
// action. A vanished parse action is logged and skipped.
func (e *Engine) markParseAction(ctx context.Context, rc *jobs.RunContext, parseLabel string, parseIndex int) error {
	pw, err := jobs.OpenParseAction(ctx, rc.Actions, parseLabel, parseIndex)
	if errors.Is(err, sqlite.ErrNotFound) {
		rc.Log.Warnf("parse action %s[%d] is gone, committed mark skipped", parseLabel, parseIndex)
		return nil
	}
	if err != nil {
		return err
	}
	return pw.SetCommitted(ctx, true)
}

// Finalize back-propagates the job-level committed mark: every parse job this
// commit job drew from is marked committed once none of its successful
// actions remain uncommitted.
func (e *Engine) Finalize(ctx context.Context, rc *jobs.RunContext) error {
	if e.opts.NoParseMark {
		return nil
	}

	actions, err := rc.Actions.SearchCommitActions(ctx, sqlite.And, []sqlite.Cond{
		sqlite.Eq(sqlite.ColJobLabel, rc.Label),
	})
	if err != nil {
		return err
	}

	touched := make(map[string]struct{})
	for _, a := range actions {
		touched[a.ParseLabel] = struct{}{}
	}

	for parseLabel := range touched {
		remaining, err := rc.Actions.UncommittedCount(ctx, parseLabel)
		if err != nil {
			return err
		}
		if remaining > 0 {
			continue
		}
		pw, err := jobs.OpenParseJob(ctx, rc.Jobs, parseLabel)
		if errors.Is(err, sqlite.ErrNotFound) {
			rc.Log.Warnf("parse job %s is gone, committed mark skipped", parseLabel)
			continue
		}
		if err != nil {
			return err
		}
		if err := pw.SetCommitted(ctx, true); err != nil {
			return err
		}
		rc.Log.Infof("parse job %s fully committed", parseLabel)
	}
	return nil
}
