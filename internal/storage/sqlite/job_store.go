package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

// unixToTime converts Unix timestamp to time.Time
func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0)
}

const jobCoreSelect = "label, description, date, log_path, mode, status, step, successes, fails, publications"

// JobStore persists the three job tables. All writes are single-column or
// single-row and run in their own implicit transaction.
type JobStore struct {
	db     *DB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStore creates a job store over the jobs database.
func NewJobStore(db *DB, logger arbor.ILogger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
	}
}

// InsertScrapeJob creates a new scrape job row. The label must be unused.
func (s *JobStore) InsertScrapeJob(ctx context.Context, job *models.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO scrape_jobs (
			label, description, date, log_path, mode, status, step, successes, fails, publications,
			download_dir, zip_file, parsed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.db.ExecContext(ctx, query,
		job.Label, job.Description, job.Date.Unix(), job.LogPath, job.Mode,
		string(job.Status), job.Step, job.Successes, job.Fails, job.Publications,
		job.DownloadDir, job.ZipFile, job.Parsed,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("label", job.Label).Msg("Failed to insert scrape job")
		return fmt.Errorf("failed to insert scrape job: %w", err)
	}
	s.logger.Debug().Str("label", job.Label).Msg("Scrape job inserted")
	return nil
}

// InsertParseJob creates a new parse job row. The label must be unused.
func (s *JobStore) InsertParseJob(ctx context.Context, job *models.ParseJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO parse_jobs (
			label, description, date, log_path, mode, status, step, successes, fails, publications,
			parse_dir, committed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.db.ExecContext(ctx, query,
		job.Label, job.Description, job.Date.Unix(), job.LogPath, job.Mode,
		string(job.Status), job.Step, job.Successes, job.Fails, job.Publications,
		job.ParseDir, job.Committed,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("label", job.Label).Msg("Failed to insert parse job")
		return fmt.Errorf("failed to insert parse job: %w", err)
	}
	s.logger.Debug().Str("label", job.Label).Msg("Parse job inserted")
	return nil
}

// InsertCommitJob creates a new commit job row. The label must be unused.
func (s *JobStore) InsertCommitJob(ctx context.Context, job *models.CommitJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO commit_jobs (
			label, description, date, log_path, mode, status, step, successes, fails, publications
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.db.ExecContext(ctx, query,
		job.Label, job.Description, job.Date.Unix(), job.LogPath, job.Mode,
		string(job.Status), job.Step, job.Successes, job.Fails, job.Publications,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("label", job.Label).Msg("Failed to insert commit job")
		return fmt.Errorf("failed to insert commit job: %w", err)
	}
	s.logger.Debug().Str("label", job.Label).Msg("Commit job inserted")
	return nil
}

// GetScrapeJob retrieves a scrape job by label, (nil, nil) when absent.
func (s *JobStore) GetScrapeJob(ctx context.Context, label string) (*models.ScrapeJob, error) {
	query := "SELECT " + jobCoreSelect + ", download_dir, zip_file, parsed FROM scrape_jobs WHERE label = ?"
	row := s.db.db.QueryRowContext(ctx, query, label)
	job, err := scanScrapeJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// GetParseJob retrieves a parse job by label, (nil, nil) when absent.
func (s *JobStore) GetParseJob(ctx context.Context, label string) (*models.ParseJob, error) {
	query := "SELECT " + jobCoreSelect + ", parse_dir, committed FROM parse_jobs WHERE label = ?"
	row := s.db.db.QueryRowContext(ctx, query, label)
	job, err := scanParseJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// GetCommitJob retrieves a commit job by label, (nil, nil) when absent.
func (s *JobStore) GetCommitJob(ctx context.Context, label string) (*models.CommitJob, error) {
	query := "SELECT " + jobCoreSelect + " FROM commit_jobs WHERE label = ?"
	row := s.db.db.QueryRowContext(ctx, query, label)
	var job models.CommitJob
	err := scanJobCore(row, &job.JobCore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetCore retrieves the stage-independent columns of any job, (nil, nil) when
// absent. The runner uses this for status checks between actions.
func (s *JobStore) GetCore(ctx context.Context, stage models.Stage, label string) (*models.JobCore, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	query := "SELECT " + jobCoreSelect + " FROM " + stage.JobTable() + " WHERE label = ?"
	row := s.db.db.QueryRowContext(ctx, query, label)
	var core models.JobCore
	err := scanJobCore(row, &core)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &core, nil
}

// UpdateColumn sets one registered column of a job row. Addressing a missing
// job returns ErrNotFound.
func (s *JobStore) UpdateColumn(ctx context.Context, stage models.Stage, label string, col Column, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", stage)
	}
	t := Table(stage.JobTable())
	if err := CheckColumn(t, col); err != nil {
		return err
	}

	query := "UPDATE " + string(t) + " SET " + string(col) + " = ? WHERE label = ?"
	res, err := s.db.db.ExecContext(ctx, query, value, label)
	if err != nil {
		s.logger.Error().Err(err).Str("label", label).Str("column", string(col)).Msg("Failed to update job column")
		return fmt.Errorf("failed to update %s.%s: %w", t, col, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s job %q: %w", stage, label, ErrNotFound)
	}
	return nil
}

// DeleteJob removes a job row; the job's actions cascade.
func (s *JobStore) DeleteJob(ctx context.Context, stage models.Stage, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", stage)
	}
	res, err := s.db.db.ExecContext(ctx, "DELETE FROM "+stage.JobTable()+" WHERE label = ?", label)
	if err != nil {
		return fmt.Errorf("failed to delete %s job: %w", stage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s job %q: %w", stage, label, ErrNotFound)
	}
	s.logger.Debug().Str("label", label).Str("stage", string(stage)).Msg("Job deleted")
	return nil
}

// SearchScrapeJobs returns scrape jobs matching the conditions, ordered by
// creation date.
func (s *JobStore) SearchScrapeJobs(ctx context.Context, conj Conj, conds []Cond) ([]*models.ScrapeJob, error) {
	where, args, err := buildWhere(TableScrapeJobs, conj, conds)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + jobCoreSelect + ", download_dir, zip_file, parsed FROM scrape_jobs" + where + " ORDER BY date, label"
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search scrape jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ScrapeJob
	for rows.Next() {
		job, err := scanScrapeJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SearchParseJobs returns parse jobs matching the conditions, ordered by
// creation date.
func (s *JobStore) SearchParseJobs(ctx context.Context, conj Conj, conds []Cond) ([]*models.ParseJob, error) {
	where, args, err := buildWhere(TableParseJobs, conj, conds)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + jobCoreSelect + ", parse_dir, committed FROM parse_jobs" + where + " ORDER BY date, label"
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search parse jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ParseJob
	for rows.Next() {
		job, err := scanParseJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SearchCommitJobs returns commit jobs matching the conditions, ordered by
// creation date.
func (s *JobStore) SearchCommitJobs(ctx context.Context, conj Conj, conds []Cond) ([]*models.CommitJob, error) {
	where, args, err := buildWhere(TableCommitJobs, conj, conds)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + jobCoreSelect + " FROM commit_jobs" + where + " ORDER BY date, label"
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search commit jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.CommitJob
	for rows.Next() {
		var job models.CommitJob
		if err := scanJobCore(rows, &job.JobCore); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// NotExecuted returns the jobs of a stage whose status is anything but X:
// stuck, failed, or never started.
func (s *JobStore) NotExecuted(ctx context.Context, stage models.Stage) ([]*models.JobCore, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	query := "SELECT " + jobCoreSelect + " FROM " + stage.JobTable() + " WHERE status != ? ORDER BY date, label"
	rows, err := s.db.db.QueryContext(ctx, query, string(models.StatusExecuted))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s jobs: %w", stage, err)
	}
	defer rows.Close()

	var cores []*models.JobCore
	for rows.Next() {
		var core models.JobCore
		if err := scanJobCore(rows, &core); err != nil {
			return nil, err
		}
		cores = append(cores, &core)
	}
	return cores, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobCore(row rowScanner, core *models.JobCore) error {
	var date int64
	var status string
	err := row.Scan(
		&core.Label, &core.Description, &date, &core.LogPath, &core.Mode,
		&status, &core.Step, &core.Successes, &core.Fails, &core.Publications,
	)
	if err != nil {
		return err
	}
	core.Date = unixToTime(date)
	core.Status = models.Status(status)
	return nil
}

func scanScrapeJob(row rowScanner) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	var date int64
	var status string
	err := row.Scan(
		&job.Label, &job.Description, &date, &job.LogPath, &job.Mode,
		&status, &job.Step, &job.Successes, &job.Fails, &job.Publications,
		&job.DownloadDir, &job.ZipFile, &job.Parsed,
	)
	if err != nil {
		return nil, err
	}
	job.Date = unixToTime(date)
	job.Status = models.Status(status)
	return &job, nil
}

func scanParseJob(row rowScanner) (*models.ParseJob, error) {
	var job models.ParseJob
	var date int64
	var status string
	err := row.Scan(
		&job.Label, &job.Description, &date, &job.LogPath, &job.Mode,
		&status, &job.Step, &job.Successes, &job.Fails, &job.Publications,
		&job.ParseDir, &job.Committed,
	)
	if err != nil {
		return nil, err
	}
	job.Date = unixToTime(date)
	job.Status = models.Status(status)
	return &job, nil
}
