package jobs

import (
	"context"
	"fmt"

	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

// Job and action rows come out of the stores as plain snapshots. Mutation goes
// through the writers below: each writer is opened against an existing row,
// caches it, and every Set issues one single-column update before refreshing
// the cache. Opening a writer for a missing row fails with sqlite.ErrNotFound.

// jobWriter carries the stage-independent setters shared by the three job
// writers.
type jobWriter struct {
	store *sqlite.JobStore
	stage models.Stage
	core  *models.JobCore
}

// Label returns the job label.
func (w *jobWriter) Label() string {
	return w.core.Label
}

// Core returns a copy of the cached common columns.
func (w *jobWriter) Core() models.JobCore {
	return *w.core
}

func (w *jobWriter) set(ctx context.Context, col sqlite.Column, value interface{}) error {
	return w.store.UpdateColumn(ctx, w.stage, w.core.Label, col, value)
}

// SetStatus moves the job to a new lifecycle status.
func (w *jobWriter) SetStatus(ctx context.Context, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := w.set(ctx, sqlite.ColStatus, string(status)); err != nil {
		return err
	}
	w.core.Status = status
	return nil
}

// SetStep records the index of the next action to drive.
func (w *jobWriter) SetStep(ctx context.Context, step int) error {
	if err := w.set(ctx, sqlite.ColStep, step); err != nil {
		return err
	}
	w.core.Step = step
	return nil
}

// SetSuccesses updates the succeeded-action counter.
func (w *jobWriter) SetSuccesses(ctx context.Context, n int) error {
	if err := w.set(ctx, sqlite.ColSuccesses, n); err != nil {
		return err
	}
	w.core.Successes = n
	return nil
}

// SetFails updates the failed-action counter.
func (w *jobWriter) SetFails(ctx context.Context, n int) error {
	if err := w.set(ctx, sqlite.ColFails, n); err != nil {
		return err
	}
	w.core.Fails = n
	return nil
}

// SetPublications records how many actions the job was packed with.
func (w *jobWriter) SetPublications(ctx context.Context, n int) error {
	if err := w.set(ctx, sqlite.ColPublications, n); err != nil {
		return err
	}
	w.core.Publications = n
	return nil
}

// SetLogPath records where the job's log file lives.
func (w *jobWriter) SetLogPath(ctx context.Context, path string) error {
	if err := w.set(ctx, sqlite.ColLogPath, path); err != nil {
		return err
	}
	w.core.LogPath = path
	return nil
}

// CurrentStatus re-reads the job's status from the store. The runner polls
// this between actions so an abort written by another process takes effect at
// the next action boundary.
func (w *jobWriter) CurrentStatus(ctx context.Context) (models.Status, error) {
	core, err := w.store.GetCore(ctx, w.stage, w.core.Label)
	if err != nil {
		return "", err
	}
	if core == nil {
		return "", fmt.Errorf("%s job %q: %w", w.stage, w.core.Label, sqlite.ErrNotFound)
	}
	w.core.Status = core.Status
	return core.Status, nil
}

// ScrapeJobWriter mutates one scrape job row.
type ScrapeJobWriter struct {
	jobWriter
	job *models.ScrapeJob
}

// OpenScrapeJob loads a scrape job and wraps it for writing.
func OpenScrapeJob(ctx context.Context, store *sqlite.JobStore, label string) (*ScrapeJobWriter, error) {
	job, err := store.GetScrapeJob(ctx, label)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("scrape job %q: %w", label, sqlite.ErrNotFound)
	}
	return &ScrapeJobWriter{
		jobWriter: jobWriter{store: store, stage: models.StageScrape, core: &job.JobCore},
		job:       job,
	}, nil
}

// Snapshot returns a copy of the cached row.
func (w *ScrapeJobWriter) Snapshot() models.ScrapeJob {
	return *w.job
}

// SetZipFile records the archive written at the end of the job.
func (w *ScrapeJobWriter) SetZipFile(ctx context.Context, path string) error {
	if err := w.set(ctx, sqlite.ColZipFile, path); err != nil {
		return err
	}
	w.job.ZipFile = path
	return nil
}

// SetParsed flips the job-level parsed mark.
func (w *ScrapeJobWriter) SetParsed(ctx context.Context, parsed bool) error {
	if err := w.set(ctx, sqlite.ColJobParsed, parsed); err != nil {
		return err
	}
	w.job.Parsed = parsed
	return nil
}

// ParseJobWriter mutates one parse job row.
type ParseJobWriter struct {
	jobWriter
	job *models.ParseJob
}

// OpenParseJob loads a parse job and wraps it for writing.
func OpenParseJob(ctx context.Context, store *sqlite.JobStore, label string) (*ParseJobWriter, error) {
	job, err := store.GetParseJob(ctx, label)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("parse job %q: %w", label, sqlite.ErrNotFound)
	}
	return &ParseJobWriter{
		jobWriter: jobWriter{store: store, stage: models.StageParse, core: &job.JobCore},
		job:       job,
	}, nil
}

// Snapshot returns a copy of the cached row.
func (w *ParseJobWriter) Snapshot() models.ParseJob {
	return *w.job
}

// SetCommitted flips the job-level committed mark.
func (w *ParseJobWriter) SetCommitted(ctx context.Context, committed bool) error {
	if err := w.set(ctx, sqlite.ColJobCommitted, committed); err != nil {
		return err
	}
	w.job.Committed = committed
	return nil
}

// CommitJobWriter mutates one commit job row.
type CommitJobWriter struct {
	jobWriter
	job *models.CommitJob
}

// OpenCommitJob loads a commit job and wraps it for writing.
func OpenCommitJob(ctx context.Context, store *sqlite.JobStore, label string) (*CommitJobWriter, error) {
	job, err := store.GetCommitJob(ctx, label)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("commit job %q: %w", label, sqlite.ErrNotFound)
	}
	return &CommitJobWriter{
		jobWriter: jobWriter{store: store, stage: models.StageCommit, core: &job.JobCore},
		job:       job,
	}, nil
}

// Snapshot returns a copy of the cached row.
func (w *CommitJobWriter) Snapshot() models.CommitJob {
	return *w.job
}

// actionWriter carries the setters shared by the three action writers.
type actionWriter struct {
	store *sqlite.ActionStore
	stage models.Stage
	label string
	index int
}

func (w *actionWriter) set(ctx context.Context, col sqlite.Column, value interface{}) error {
	return w.store.UpdateColumn(ctx, w.stage, w.label, w.index, col, value)
}

// ScrapeActionWriter mutates one scrape action row.
type ScrapeActionWriter struct {
	actionWriter
	action *models.ScrapeAction
}

// OpenScrapeAction loads a scrape action and wraps it for writing.
func OpenScrapeAction(ctx context.Context, store *sqlite.ActionStore, label string, idx int) (*ScrapeActionWriter, error) {
	action, err := store.GetScrapeAction(ctx, label, idx)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, fmt.Errorf("scrape action %s[%d]: %w", label, idx, sqlite.ErrNotFound)
	}
	return &ScrapeActionWriter{
		actionWriter: actionWriter{store: store, stage: models.StageScrape, label: label, index: idx},
		action:       action,
	}, nil
}

// Snapshot returns a copy of the cached row.
func (w *ScrapeActionWriter) Snapshot() models.ScrapeAction {
	return *w.action
}

// SetStatus moves the action to a new lifecycle status.
func (w *ScrapeActionWriter) SetStatus(ctx context.Context, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := w.set(ctx, sqlite.ColStatus, string(status)); err != nil {
		return err
	}
	w.action.Status = status
	return nil
}

// SetSuccess records the action outcome.
func (w *ScrapeActionWriter) SetSuccess(ctx context.Context, success bool) error {
	if err := w.set(ctx, sqlite.ColSuccess, success); err != nil {
		return err
	}
	w.action.Success = success
	return nil
}

// SetURL replaces the action's target URL. Used when a DOI resolves to a
// publisher page so the rerun fetches the resolved address directly.
func (w *ScrapeActionWriter) SetURL(ctx context.Context, url string) error {
	if err := w.set(ctx, sqlite.ColURL, url); err != nil {
		return err
	}
	w.action.URL = url
	return nil
}

// SetJournal replaces the planner's journal code.
func (w *ScrapeActionWriter) SetJournal(ctx context.Context, journal string) error {
	if err := w.set(ctx, sqlite.ColJournal, journal); err != nil {
		return err
	}
	w.action.Journal = journal
	return nil
}

// SetMethod replaces the planner's scrape method.
func (w *ScrapeActionWriter) SetMethod(ctx context.Context, method string) error {
	if err := w.set(ctx, sqlite.ColMethod, method); err != nil {
		return err
	}
	w.action.Method = method
	return nil
}

// SetOutFile records the downloaded file name, relative to the job's download
// directory.
func (w *ScrapeActionWriter) SetOutFile(ctx context.Context, name string) error {
	if err := w.set(ctx, sqlite.ColOutFile, name); err != nil {
		return err
	}
	w.action.OutFile = name
	return nil
}

// SetParsed flips the parse-stage consumption mark.
func (w *ScrapeActionWriter) SetParsed(ctx context.Context, parsed bool) error {
	if err := w.set(ctx, sqlite.ColParsed, parsed); err != nil {
		return err
	}
	w.action.Parsed = parsed
	return nil
}

// ParseActionWriter mutates one parse action row.
type ParseActionWriter struct {
	actionWriter
	action *models.ParseAction
}

// OpenParseAction loads a parse action and wraps it for writing.
func OpenParseAction(ctx context.Context, store *sqlite.ActionStore, label string, idx int) (*ParseActionWriter, error) {
	action, err := store.GetParseAction(ctx, label, idx)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, fmt.Errorf("parse action %s[%d]: %w", label, idx, sqlite.ErrNotFound)
	}
	return &ParseActionWriter{
		actionWriter: actionWriter{store: store, stage: models.StageParse, label: label, index: idx},
		action:       action,
	}, nil
}

// Snapshot returns a copy of the cached row.
func (w *ParseActionWriter) Snapshot() models.ParseAction {
	return *w.action
}

// SetStatus moves the action to a new lifecycle status.
func (w *ParseActionWriter) SetStatus(ctx context.Context, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := w.set(ctx, sqlite.ColStatus, string(status)); err != nil {
		return err
	}
	w.action.Status = status
	return nil
}

// SetSuccess records the action outcome.
func (w *ParseActionWriter) SetSuccess(ctx context.Context, success bool) error {
	if err := w.set(ctx, sqlite.ColSuccess, success); err != nil {
		return err
	}
	w.action.Success = success
	return nil
}

// SetParser records the code of the parser that produced the fields.
func (w *ParseActionWriter) SetParser(ctx context.Context, code string) error {
	if err := w.set(ctx, sqlite.ColParser, code); err != nil {
		return err
	}
	w.action.Parser = code
	return nil
}

// SetField writes one raw metadata column. The column must be one of the nine
// extraction fields.
func (w *ParseActionWriter) SetField(ctx context.Context, col sqlite.Column, value string) error {
	if err := w.set(ctx, col, value); err != nil {
		return err
	}
	switch col {
	case sqlite.ColDOI:
		w.action.DOI = value
	case sqlite.ColPublisher:
		w.action.Publisher = value
	case sqlite.ColJournal:
		w.action.Journal = value
	case sqlite.ColTitle:
		w.action.Title = value
	case sqlite.ColPubType:
		w.action.PubType = value
	case sqlite.ColReceived:
		w.action.Received = value
	case sqlite.ColAccepted:
		w.action.Accepted = value
	case sqlite.ColPublished:
		w.action.Published = value
	default:
		return fmt.Errorf("column %q is not a metadata field", col)
	}
	return nil
}

// SetAffiliations writes the affiliation list as a JSON array.
func (w *ParseActionWriter) SetAffiliations(ctx context.Context, affiliations []string) error {
	encoded, err := sqlite.EncodeAffiliations(affiliations)
	if err != nil {
		return err
	}
	if err := w.set(ctx, sqlite.ColAffiliations, encoded); err != nil {
		return err
	}
	w.action.Affiliations = affiliations
	return nil
}

// SetNormalized writes one normalized metadata column.
func (w *ParseActionWriter) SetNormalized(ctx context.Context, col sqlite.Column, value string) error {
	if err := w.set(ctx, col, value); err != nil {
		return err
	}
	switch col {
	case sqlite.ColNormPub:
		w.action.NormPublisher = value
	case sqlite.ColNormJournal:
		w.action.NormJournal = value
	case sqlite.ColNormReceived:
		w.action.NormReceived = value
	case sqlite.ColNormAccepted:
		w.action.NormAccepted = value
	case sqlite.ColNormPubDate:
		w.action.NormPublished = value
	default:
		return fmt.Errorf("column %q is not a normalized field", col)
	}
	return nil
}

// SetCommitted flips the commit-stage consumption mark.
func (w *ParseActionWriter) SetCommitted(ctx context.Context, committed bool) error {
	if err := w.set(ctx, sqlite.ColCommitted, committed); err != nil {
		return err
	}
	w.action.Committed = committed
	return nil
}

// CommitActionWriter mutates one commit action row.
type CommitActionWriter struct {
	actionWriter
	action *models.CommitAction
}

// OpenCommitAction loads a commit action and wraps it for writing.
func OpenCommitAction(ctx context.Context, store *sqlite.ActionStore, label string, idx int) (*CommitActionWriter, error) {
	action, err := store.GetCommitAction(ctx, label, idx)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, fmt.Errorf("commit action %s[%d]: %w", label, idx, sqlite.ErrNotFound)
	}
	return &CommitActionWriter{
		actionWriter: actionWriter{store: store, stage: models.StageCommit, label: label, index: idx},
		action:       action,
	}, nil
}

// Snapshot returns a copy of the cached row.
func (w *CommitActionWriter) Snapshot() models.CommitAction {
	return *w.action
}

// SetStatus moves the action to a new lifecycle status.
func (w *CommitActionWriter) SetStatus(ctx context.Context, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := w.set(ctx, sqlite.ColStatus, string(status)); err != nil {
		return err
	}
	w.action.Status = status
	return nil
}

// SetSuccess records the action outcome.
func (w *CommitActionWriter) SetSuccess(ctx context.Context, success bool) error {
	if err := w.set(ctx, sqlite.ColSuccess, success); err != nil {
		return err
	}
	w.action.Success = success
	return nil
}

// SetDOI records the DOI the commit addressed.
func (w *CommitActionWriter) SetDOI(ctx context.Context, doi string) error {
	if err := w.set(ctx, sqlite.ColDOI, doi); err != nil {
		return err
	}
	w.action.DOI = doi
	return nil
}

// SetDuplicate records that the DOI was already present.
func (w *CommitActionWriter) SetDuplicate(ctx context.Context, duplicate bool) error {
	if err := w.set(ctx, sqlite.ColDuplicate, duplicate); err != nil {
		return err
	}
	w.action.Duplicate = duplicate
	return nil
}

// SetPassed records that a publication row was written.
func (w *CommitActionWriter) SetPassed(ctx context.Context, passed bool) error {
	if err := w.set(ctx, sqlite.ColPassed, passed); err != nil {
		return err
	}
	w.action.Passed = passed
	return nil
}
