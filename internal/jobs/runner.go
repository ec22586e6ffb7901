// -----------------------------------------------------------------------
// Job runner - drives packed actions through a stage executor with
// durable per-action progress and contained failures
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/logs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

// RestartMode selects how a run treats the job's persisted progress.
type RestartMode int

const (
	// FromScratch zeroes step and counters and drives every action again.
	// Allowed from W, X and E; refused for a job observed in R.
	FromScratch RestartMode = iota

	// Resume preserves counters and continues from the persisted step. The
	// only way to run a job observed in R.
	Resume
)

func (m RestartMode) String() string {
	if m == Resume {
		return "resume"
	}
	return "from_scratch"
}

// RunContext is handed to the stage executor for every action. It carries the
// stores the executor mutates rows through and the job's log.
type RunContext struct {
	Stage   models.Stage
	Label   string
	Jobs    *sqlite.JobStore
	Actions *sqlite.ActionStore
	Log     *logs.JobLogger
}

// Executor is the stage-specific half of a job run. The runner owns the
// action state machine: it marks each action R before delegating and writes
// the terminal status and counters after. RunAction returns the action's
// success flag; a non-nil error is contained (action E, success=F) and the
// job continues. Finalize runs once after the loop for archival and
// back-propagation.
type Executor interface {
	Stage() models.Stage
	RunAction(ctx context.Context, rc *RunContext, index int) (bool, error)
	Finalize(ctx context.Context, rc *RunContext) error
}

// Runner drives one job at a time: gate the requested restart mode against
// the persisted status, loop the actions in index order, contain per-action
// failures, and finalize. Store failures while writing the job's own state
// are fatal and leave the job in R so resume stays well-defined.
type Runner struct {
	jobs    *sqlite.JobStore
	actions *sqlite.ActionStore
	logger  arbor.ILogger
	sleep   time.Duration
}

// NewRunner creates a runner. sleep is the pause between consecutive actions.
func NewRunner(jobs *sqlite.JobStore, actions *sqlite.ActionStore, logger arbor.ILogger, sleep time.Duration) *Runner {
	return &Runner{
		jobs:    jobs,
		actions: actions,
		logger:  logger,
		sleep:   sleep,
	}
}

// Run executes the job's actions through the stage executor and returns the
// end-of-job report. The report is also appended to the job's log file.
//
// Cancellation is cooperative: ctx is honored between actions and inside
// them, but the job's own state writes use a detached context so an
// interrupted run always leaves counters and step consistent for resume.
func (r *Runner) Run(ctx context.Context, exec Executor, label string, mode RestartMode) (*Report, error) {
	stage := exec.Stage()
	book := context.WithoutCancel(ctx)

	core, err := r.jobs.GetCore(book, stage, label)
	if err != nil {
		return nil, err
	}
	if core == nil {
		return nil, fmt.Errorf("%s job %q: %w", stage, label, sqlite.ErrNotFound)
	}

	switch core.Status {
	case models.StatusRunning:
		if mode != Resume {
			return nil, fmt.Errorf("%s job %q: %w", stage, label, ErrJobRunning)
		}
	case models.StatusExecuted, models.StatusError:
		if mode != FromScratch {
			return nil, fmt.Errorf("%s job %q: %w", stage, label, ErrJobFinalized)
		}
	}

	sink, err := logs.OpenFileSink(r.logger, core.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	jobLog := logs.NewJobLogger(r.logger, sink, label)
	defer jobLog.Close()

	rc := &RunContext{
		Stage:   stage,
		Label:   label,
		Jobs:    r.jobs,
		Actions: r.actions,
		Log:     jobLog,
	}

	writer := &jobWriter{store: r.jobs, stage: stage, core: core}

	if core.Publications == 0 {
		jobLog.Errorf("job has no publications, nothing to run")
		if err := writer.SetStatus(book, models.StatusError); err != nil {
			return nil, err
		}
		report := r.buildReport(book, rc, writer.Core())
		jobLog.Infof("%s", report)
		return report, fmt.Errorf("%s job %q: %w", stage, label, ErrNoActions)
	}

	if mode == FromScratch {
		if err := writer.SetStep(book, 0); err != nil {
			return nil, err
		}
		if err := writer.SetSuccesses(book, 0); err != nil {
			return nil, err
		}
		if err := writer.SetFails(book, 0); err != nil {
			return nil, err
		}
	}
	if err := writer.SetStatus(book, models.StatusRunning); err != nil {
		return nil, err
	}

	start := writer.Core().Step
	jobLog.Infof("run started: mode=%s step=%d publications=%d", mode, start, core.Publications)

	for step := start; step < core.Publications; step++ {
		if step > start {
			// Cooperative cancellation: an external writer flipping the job
			// out of R stops the loop at the next action boundary.
			status, err := writer.CurrentStatus(book)
			if err != nil {
				return nil, err
			}
			if status != models.StatusRunning {
				jobLog.Warnf("job status changed to %s, stopping before action %d", status, step)
				report := r.buildReport(book, rc, writer.Core())
				jobLog.Infof("%s", report)
				return report, nil
			}
			if err := r.pause(ctx); err != nil {
				jobLog.Warnf("run interrupted before action %d", step)
				return r.buildReport(book, rc, writer.Core()), err
			}
		}

		if err := r.actions.UpdateColumn(book, stage, label, step, sqlite.ColStatus, string(models.StatusRunning)); err != nil {
			return nil, err
		}

		ok, actionErr := exec.RunAction(ctx, rc, step)
		if actionErr != nil {
			// Only the run's own context counts as an interruption: executors
			// time out individual attempts with derived contexts, and those
			// failures are contained. An interrupted action stays non-terminal
			// so resume re-drives it.
			if ctx.Err() != nil {
				jobLog.Warnf("run interrupted during action %d", step)
				return r.buildReport(book, rc, writer.Core()), actionErr
			}
			jobLog.Errorf("action %d: %v", step, actionErr)
			ok = false
		}

		terminal := models.StatusExecuted
		if actionErr != nil {
			terminal = models.StatusError
		}
		if err := r.actions.UpdateColumn(book, stage, label, step, sqlite.ColSuccess, ok); err != nil {
			return nil, err
		}
		if err := r.actions.UpdateColumn(book, stage, label, step, sqlite.ColStatus, string(terminal)); err != nil {
			return nil, err
		}

		if ok {
			if err := writer.SetSuccesses(book, writer.Core().Successes+1); err != nil {
				return nil, err
			}
		} else {
			if err := writer.SetFails(book, writer.Core().Fails+1); err != nil {
				return nil, err
			}
		}
		if err := writer.SetStep(book, step+1); err != nil {
			return nil, err
		}
	}

	if err := exec.Finalize(ctx, rc); err != nil {
		if ctx.Err() != nil {
			jobLog.Warnf("run interrupted during finalization")
			return r.buildReport(book, rc, writer.Core()), err
		}
		jobLog.Errorf("finalize: %v", err)
		if serr := writer.SetStatus(book, models.StatusError); serr != nil {
			return nil, serr
		}
		report := r.buildReport(book, rc, writer.Core())
		jobLog.Infof("%s", report)
		return report, fmt.Errorf("failed to finalize %s job %q: %w", stage, label, err)
	}

	if err := writer.SetStatus(book, models.StatusExecuted); err != nil {
		return nil, err
	}

	report := r.buildReport(book, rc, writer.Core())
	jobLog.Infof("%s", report)
	r.logger.Info().
		Str("stage", string(stage)).
		Str("label", label).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("Job finished")
	return report, nil
}

// pause sleeps the between-action interval, returning early if the context is
// canceled.
func (r *Runner) pause(ctx context.Context) error {
	if r.sleep <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
