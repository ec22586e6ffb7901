package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

// FailedAction names one action that finished without success, together with
// the input it was driving: the URL for scrape, the input file for parse, the
// DOI for commit.
type FailedAction struct {
	Index int
	Input string
}

// Report is the end-of-job summary. It is appended to the job log and
// returned to the caller of Run.
type Report struct {
	Stage     models.Stage
	Label     string
	Total     int
	Succeeded int
	Failed    int
	Failing   []FailedAction
	Final     models.Status
}

// String renders the report as a single log-friendly line.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "report: succeeded %d/%d failed %d/%d status=%s",
		r.Succeeded, r.Total, r.Failed, r.Total, r.Final)
	if len(r.Failing) > 0 {
		b.WriteString(" failing:")
		for _, f := range r.Failing {
			fmt.Fprintf(&b, " [%d]=%s", f.Index, f.Input)
		}
	}
	return b.String()
}

// buildReport assembles the summary from the job's persisted counters. The
// failing list is best-effort: a read error leaves it empty rather than
// failing the run.
func (r *Runner) buildReport(ctx context.Context, rc *RunContext, core models.JobCore) *Report {
	return &Report{
		Stage:     rc.Stage,
		Label:     core.Label,
		Total:     core.Publications,
		Succeeded: core.Successes,
		Failed:    core.Fails,
		Failing:   r.failingActions(ctx, rc),
		Final:     core.Status,
	}
}

// failingActions lists the terminal, unsuccessful actions of the job in index
// order.
func (r *Runner) failingActions(ctx context.Context, rc *RunContext) []FailedAction {
	conds := []sqlite.Cond{sqlite.Eq(sqlite.ColJobLabel, rc.Label)}

	var failing []FailedAction
	appendFailing := func(idx int, status models.Status, success bool, input string) {
		if !status.Terminal() || success {
			return
		}
		failing = append(failing, FailedAction{Index: idx, Input: input})
	}

	switch rc.Stage {
	case models.StageScrape:
		actions, err := r.actions.SearchScrapeActions(ctx, sqlite.And, conds)
		if err != nil {
			r.logger.Warn().Err(err).Str("label", rc.Label).Msg("Failed to list failing actions")
			return nil
		}
		for _, a := range actions {
			appendFailing(a.Index, a.Status, a.Success, a.URL)
		}
	case models.StageParse:
		actions, err := r.actions.SearchParseActions(ctx, sqlite.And, conds)
		if err != nil {
			r.logger.Warn().Err(err).Str("label", rc.Label).Msg("Failed to list failing actions")
			return nil
		}
		for _, a := range actions {
			appendFailing(a.Index, a.Status, a.Success, a.InputFile)
		}
	case models.StageCommit:
		actions, err := r.actions.SearchCommitActions(ctx, sqlite.And, conds)
		if err != nil {
			r.logger.Warn().Err(err).Str("label", rc.Label).Msg("Failed to list failing actions")
			return nil
		}
		for _, a := range actions {
			appendFailing(a.Index, a.Status, a.Success, a.DOI)
		}
	}
	return failing
}
