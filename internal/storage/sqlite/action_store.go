package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

const (
	scrapeActionSelect = "job_label, idx, date, success, status, url, journal, method, out_file, parsed"
	parseActionSelect  = "job_label, idx, date, success, status, scrape_label, scrape_idx, input_file, parser, " +
		"doi, publisher, journal, title, publication_type, affiliations, received, accepted, published, " +
		"normalized_publisher, normalized_journal, normalized_received, normalized_accepted, normalized_published, committed"
	commitActionSelect = "job_label, idx, date, success, status, parse_label, parse_idx, " +
		"doi, publisher, journal, title, publication_type, affiliations, received, accepted, published, " +
		"normalized_publisher, normalized_journal, normalized_received, normalized_accepted, normalized_published, " +
		"duplicate, passed"
)

// ActionStore persists the three action tables. Actions are addressed by
// (job label, index) and inserted in batches when a job is packed.
type ActionStore struct {
	db     *DB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewActionStore creates an action store over the jobs database.
func NewActionStore(db *DB, logger arbor.ILogger) *ActionStore {
	return &ActionStore{
		db:     db,
		logger: logger,
	}
}

// InsertScrapeActions writes a packed batch of scrape actions in one
// transaction.
func (s *ActionStore) InsertScrapeActions(ctx context.Context, actions []*models.ScrapeAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO scrapes (job_label, idx, date, success, status, url, journal, method, out_file, parsed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, a := range actions {
		_, err := tx.ExecContext(ctx, query,
			a.JobLabel, a.Index, a.Date.Unix(), a.Success, string(a.Status),
			a.URL, a.Journal, a.Method, a.OutFile, a.Parsed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert scrape action %d: %w", a.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scrape actions: %w", err)
	}
	s.logger.Debug().Int("count", len(actions)).Msg("Scrape actions inserted")
	return nil
}

// InsertParseActions writes a packed batch of parse actions in one
// transaction.
func (s *ActionStore) InsertParseActions(ctx context.Context, actions []*models.ParseAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO parses (
			job_label, idx, date, success, status, scrape_label, scrape_idx, input_file, parser,
			doi, publisher, journal, title, publication_type, affiliations, received, accepted, published,
			normalized_publisher, normalized_journal, normalized_received, normalized_accepted, normalized_published,
			committed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, a := range actions {
		affiliations, err := EncodeAffiliations(a.Affiliations)
		if err != nil {
			return err
		}
		var scrapeLabel sql.NullString
		var scrapeIdx sql.NullInt64
		if a.ScrapeLabel != nil {
			scrapeLabel = sql.NullString{String: *a.ScrapeLabel, Valid: true}
		}
		if a.ScrapeIndex != nil {
			scrapeIdx = sql.NullInt64{Int64: int64(*a.ScrapeIndex), Valid: true}
		}
		_, err = tx.ExecContext(ctx, query,
			a.JobLabel, a.Index, a.Date.Unix(), a.Success, string(a.Status),
			scrapeLabel, scrapeIdx, a.InputFile, a.Parser,
			a.DOI, a.Publisher, a.Journal, a.Title, a.PubType, affiliations,
			a.Received, a.Accepted, a.Published,
			a.NormPublisher, a.NormJournal, a.NormReceived, a.NormAccepted, a.NormPublished,
			a.Committed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert parse action %d: %w", a.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit parse actions: %w", err)
	}
	s.logger.Debug().Int("count", len(actions)).Msg("Parse actions inserted")
	return nil
}

// InsertCommitActions writes a packed batch of commit actions in one
// transaction.
func (s *ActionStore) InsertCommitActions(ctx context.Context, actions []*models.CommitAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO commits (
			job_label, idx, date, success, status, parse_label, parse_idx,
			doi, publisher, journal, title, publication_type, affiliations, received, accepted, published,
			normalized_publisher, normalized_journal, normalized_received, normalized_accepted, normalized_published,
			duplicate, passed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, a := range actions {
		affiliations, err := EncodeAffiliations(a.Affiliations)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query,
			a.JobLabel, a.Index, a.Date.Unix(), a.Success, string(a.Status),
			a.ParseLabel, a.ParseIndex,
			a.DOI, a.Publisher, a.Journal, a.Title, a.PubType, affiliations,
			a.Received, a.Accepted, a.Published,
			a.NormPublisher, a.NormJournal, a.NormReceived, a.NormAccepted, a.NormPublished,
			a.Duplicate, a.Passed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert commit action %d: %w", a.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit commit actions: %w", err)
	}
	s.logger.Debug().Int("count", len(actions)).Msg("Commit actions inserted")
	return nil
}

// GetScrapeAction retrieves one scrape action, (nil, nil) when absent.
func (s *ActionStore) GetScrapeAction(ctx context.Context, label string, idx int) (*models.ScrapeAction, error) {
	query := "SELECT " + scrapeActionSelect + " FROM scrapes WHERE job_label = ? AND idx = ?"
	row := s.db.db.QueryRowContext(ctx, query, label, idx)
	a, err := scanScrapeAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// GetParseAction retrieves one parse action, (nil, nil) when absent.
func (s *ActionStore) GetParseAction(ctx context.Context, label string, idx int) (*models.ParseAction, error) {
	query := "SELECT " + parseActionSelect + " FROM parses WHERE job_label = ? AND idx = ?"
	row := s.db.db.QueryRowContext(ctx, query, label, idx)
	a, err := scanParseAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// GetCommitAction retrieves one commit action, (nil, nil) when absent.
func (s *ActionStore) GetCommitAction(ctx context.Context, label string, idx int) (*models.CommitAction, error) {
	query := "SELECT " + commitActionSelect + " FROM commits WHERE job_label = ? AND idx = ?"
	row := s.db.db.QueryRowContext(ctx, query, label, idx)
	a, err := scanCommitAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// UpdateColumn sets one registered column of an action row. Addressing a
// missing action returns ErrNotFound.
func (s *ActionStore) UpdateColumn(ctx context.Context, stage models.Stage, label string, idx int, col Column, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", stage)
	}
	t := Table(stage.ActionTable())
	if err := CheckColumn(t, col); err != nil {
		return err
	}

	query := "UPDATE " + string(t) + " SET " + string(col) + " = ? WHERE job_label = ? AND idx = ?"
	res, err := s.db.db.ExecContext(ctx, query, value, label, idx)
	if err != nil {
		s.logger.Error().Err(err).Str("label", label).Int("idx", idx).Str("column", string(col)).Msg("Failed to update action column")
		return fmt.Errorf("failed to update %s.%s: %w", t, col, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s action %s[%d]: %w", stage, label, idx, ErrNotFound)
	}
	return nil
}

// SearchScrapeActions returns scrape actions matching the conditions, in
// (job, index) order.
func (s *ActionStore) SearchScrapeActions(ctx context.Context, conj Conj, conds []Cond) ([]*models.ScrapeAction, error) {
	where, args, err := buildWhere(TableScrapes, conj, conds)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + scrapeActionSelect + " FROM scrapes" + where + " ORDER BY job_label, idx"
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search scrape actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.ScrapeAction
	for rows.Next() {
		a, err := scanScrapeAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// SearchParseActions returns parse actions matching the conditions, in
// (job, index) order.
func (s *ActionStore) SearchParseActions(ctx context.Context, conj Conj, conds []Cond) ([]*models.ParseAction, error) {
	where, args, err := buildWhere(TableParses, conj, conds)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + parseActionSelect + " FROM parses" + where + " ORDER BY job_label, idx"
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search parse actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.ParseAction
	for rows.Next() {
		a, err := scanParseAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// SearchCommitActions returns commit actions matching the conditions, in
// (job, index) order.
func (s *ActionStore) SearchCommitActions(ctx context.Context, conj Conj, conds []Cond) ([]*models.CommitAction, error) {
	where, args, err := buildWhere(TableCommits, conj, conds)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + commitActionSelect + " FROM commits" + where + " ORDER BY job_label, idx"
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search commit actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.CommitAction
	for rows.Next() {
		a, err := scanCommitAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// UnparsedScrapeActions returns executed scrape actions the parse stage has
// not consumed yet.
func (s *ActionStore) UnparsedScrapeActions(ctx context.Context) ([]*models.ScrapeAction, error) {
	return s.SearchScrapeActions(ctx, And, []Cond{
		Eq(ColStatus, string(models.StatusExecuted)),
		Eq(ColParsed, false),
	})
}

// UncommittedParseActions returns executed parse actions the commit stage has
// not consumed yet.
func (s *ActionStore) UncommittedParseActions(ctx context.Context) ([]*models.ParseAction, error) {
	return s.SearchParseActions(ctx, And, []Cond{
		Eq(ColStatus, string(models.StatusExecuted)),
		Eq(ColCommitted, false),
	})
}

// UnparsedCount returns how many successful actions of a scrape job still
// lack the parsed mark. Zero means the job is fully parsed.
func (s *ActionStore) UnparsedCount(ctx context.Context, scrapeLabel string) (int, error) {
	var n int
	err := s.db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM scrapes WHERE job_label = ? AND success = 1 AND parsed = 0",
		scrapeLabel,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unparsed actions: %w", err)
	}
	return n, nil
}

// UncommittedCount returns how many successful actions of a parse job still
// lack the committed mark. Zero means the job is fully committed.
func (s *ActionStore) UncommittedCount(ctx context.Context, parseLabel string) (int, error) {
	var n int
	err := s.db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM parses WHERE job_label = ? AND success = 1 AND committed = 0",
		parseLabel,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count uncommitted actions: %w", err)
	}
	return n, nil
}

// UnmarkParsed clears the parsed flag on every action of a scrape job and on
// the job row itself. Marks are monotone during normal runs; this is the
// operator's way to force a re-parse.
func (s *ActionStore) UnmarkParsed(ctx context.Context, scrapeLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.db.ExecContext(ctx, "UPDATE scrapes SET parsed = 0 WHERE job_label = ?", scrapeLabel)
	if err != nil {
		return fmt.Errorf("failed to unmark scrape actions: %w", err)
	}
	_, err = s.db.db.ExecContext(ctx, "UPDATE scrape_jobs SET parsed = 0 WHERE label = ?", scrapeLabel)
	if err != nil {
		return fmt.Errorf("failed to unmark scrape job: %w", err)
	}
	s.logger.Debug().Str("label", scrapeLabel).Msg("Parsed marks cleared")
	return nil
}

// UnmarkCommitted clears the committed flag on every action of a parse job and
// on the job row itself.
func (s *ActionStore) UnmarkCommitted(ctx context.Context, parseLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.db.ExecContext(ctx, "UPDATE parses SET committed = 0 WHERE job_label = ?", parseLabel)
	if err != nil {
		return fmt.Errorf("failed to unmark parse actions: %w", err)
	}
	_, err = s.db.db.ExecContext(ctx, "UPDATE parse_jobs SET committed = 0 WHERE label = ?", parseLabel)
	if err != nil {
		return fmt.Errorf("failed to unmark parse job: %w", err)
	}
	s.logger.Debug().Str("label", parseLabel).Msg("Committed marks cleared")
	return nil
}

// EncodeAffiliations renders an affiliation list as the JSON array stored in
// the affiliations column. Empty and nil both encode as "[]".
func EncodeAffiliations(affiliations []string) (string, error) {
	if len(affiliations) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(affiliations)
	if err != nil {
		return "", fmt.Errorf("failed to serialize affiliations: %w", err)
	}
	return string(data), nil
}

func scanScrapeAction(row rowScanner) (*models.ScrapeAction, error) {
	var a models.ScrapeAction
	var date int64
	var status string
	err := row.Scan(
		&a.JobLabel, &a.Index, &date, &a.Success, &status,
		&a.URL, &a.Journal, &a.Method, &a.OutFile, &a.Parsed,
	)
	if err != nil {
		return nil, err
	}
	a.Date = unixToTime(date)
	a.Status = models.Status(status)
	return &a, nil
}

func scanParseAction(row rowScanner) (*models.ParseAction, error) {
	var a models.ParseAction
	var date int64
	var status, affiliations string
	var scrapeLabel sql.NullString
	var scrapeIdx sql.NullInt64
	err := row.Scan(
		&a.JobLabel, &a.Index, &date, &a.Success, &status,
		&scrapeLabel, &scrapeIdx, &a.InputFile, &a.Parser,
		&a.DOI, &a.Publisher, &a.Journal, &a.Title, &a.PubType, &affiliations,
		&a.Received, &a.Accepted, &a.Published,
		&a.NormPublisher, &a.NormJournal, &a.NormReceived, &a.NormAccepted, &a.NormPublished,
		&a.Committed,
	)
	if err != nil {
		return nil, err
	}
	a.Date = unixToTime(date)
	a.Status = models.Status(status)
	if scrapeLabel.Valid {
		v := scrapeLabel.String
		a.ScrapeLabel = &v
	}
	if scrapeIdx.Valid {
		v := int(scrapeIdx.Int64)
		a.ScrapeIndex = &v
	}
	if affiliations != "" {
		if err := json.Unmarshal([]byte(affiliations), &a.Affiliations); err != nil {
			return nil, fmt.Errorf("failed to deserialize affiliations: %w", err)
		}
	}
	return &a, nil
}

func scanCommitAction(row rowScanner) (*models.CommitAction, error) {
	var a models.CommitAction
	var date int64
	var status, affiliations string
	err := row.Scan(
		&a.JobLabel, &a.Index, &date, &a.Success, &status,
		&a.ParseLabel, &a.ParseIndex,
		&a.DOI, &a.Publisher, &a.Journal, &a.Title, &a.PubType, &affiliations,
		&a.Received, &a.Accepted, &a.Published,
		&a.NormPublisher, &a.NormJournal, &a.NormReceived, &a.NormAccepted, &a.NormPublished,
		&a.Duplicate, &a.Passed,
	)
	if err != nil {
		return nil, err
	}
	a.Date = unixToTime(date)
	a.Status = models.Status(status)
	if affiliations != "" {
		if err := json.Unmarshal([]byte(affiliations), &a.Affiliations); err != nil {
			return nil, fmt.Errorf("failed to deserialize affiliations: %w", err)
		}
	}
	return &a, nil
}
