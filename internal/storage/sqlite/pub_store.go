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

const pubSelect = "doi, publisher, journal, title, publication_type, affiliations, received, accepted, published, " +
	"normalized_publisher, normalized_journal, normalized_received, normalized_accepted, normalized_published, added_at"

// PubStore persists the publication table. DOI equality is case-insensitive;
// the duplicate policy lives in Insert.
type PubStore struct {
	db     *DB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewPubStore creates a publication store over the pubs database.
func NewPubStore(db *DB, logger arbor.ILogger) *PubStore {
	return &PubStore{
		db:     db,
		logger: logger,
	}
}

// Insert applies the duplicate policy and writes the publication:
//
//	new DOI                    -> insert,    (false, true)
//	known DOI, overwrite=false -> no write,  (true, false)
//	known DOI, overwrite=true  -> replace,   (true, true)
//
// The error return is reserved for storage failures.
func (s *PubStore) Insert(ctx context.Context, pub *models.Publication, overwrite bool) (duplicate bool, inserted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affiliations, err := EncodeAffiliations(pub.Affiliations)
	if err != nil {
		return false, false, err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return false, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, "SELECT doi FROM pub WHERE doi = ?", pub.DOI).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		duplicate = false
	case err != nil:
		return false, false, fmt.Errorf("failed to check for duplicate DOI: %w", err)
	default:
		duplicate = true
	}

	if duplicate && !overwrite {
		return true, false, nil
	}

	query := `
		INSERT INTO pub (
			doi, publisher, journal, title, publication_type, affiliations,
			received, accepted, published,
			normalized_publisher, normalized_journal, normalized_received, normalized_accepted, normalized_published,
			added_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doi) DO UPDATE SET
			publisher = excluded.publisher,
			journal = excluded.journal,
			title = excluded.title,
			publication_type = excluded.publication_type,
			affiliations = excluded.affiliations,
			received = excluded.received,
			accepted = excluded.accepted,
			published = excluded.published,
			normalized_publisher = excluded.normalized_publisher,
			normalized_journal = excluded.normalized_journal,
			normalized_received = excluded.normalized_received,
			normalized_accepted = excluded.normalized_accepted,
			normalized_published = excluded.normalized_published,
			added_at = excluded.added_at
	`
	_, err = tx.ExecContext(ctx, query,
		pub.DOI, pub.Publisher, pub.Journal, pub.Title, pub.PubType, affiliations,
		pub.Received, pub.Accepted, pub.Published,
		pub.NormPublisher, pub.NormJournal, pub.NormReceived, pub.NormAccepted, pub.NormPublished,
		pub.AddedAt.Unix(),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("doi", pub.DOI).Msg("Failed to insert publication")
		return duplicate, false, fmt.Errorf("failed to insert publication: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return duplicate, false, fmt.Errorf("failed to commit publication: %w", err)
	}

	s.logger.Debug().Str("doi", pub.DOI).Bool("duplicate", duplicate).Msg("Publication written")
	return duplicate, true, nil
}

// Get retrieves a publication by DOI (case-insensitive), (nil, nil) when
// absent.
func (s *PubStore) Get(ctx context.Context, doi string) (*models.Publication, error) {
	query := "SELECT " + pubSelect + " FROM pub WHERE doi = ?"
	row := s.db.db.QueryRowContext(ctx, query, doi)
	pub, err := scanPublication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return pub, err
}

// Delete removes a publication by DOI. Addressing a missing DOI returns
// ErrNotFound.
func (s *PubStore) Delete(ctx context.Context, doi string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.db.ExecContext(ctx, "DELETE FROM pub WHERE doi = ?", doi)
	if err != nil {
		return fmt.Errorf("failed to delete publication: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("publication %q: %w", doi, ErrNotFound)
	}
	return nil
}

// Search returns publications matching the conditions, ordered by DOI.
func (s *PubStore) Search(ctx context.Context, conj Conj, conds []Cond) ([]*models.Publication, error) {
	where, args, err := buildWhere(TablePubs, conj, conds)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + pubSelect + " FROM pub" + where + " ORDER BY doi"
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search publications: %w", err)
	}
	defer rows.Close()

	var pubs []*models.Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}

// Count returns the number of stored publications.
func (s *PubStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pub").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count publications: %w", err)
	}
	return n, nil
}

// JournalSummary aggregates the table per (normalized publisher, normalized
// journal): row count and the span of each normalized date. Empty dates are
// excluded from the spans.
func (s *PubStore) JournalSummary(ctx context.Context) ([]*models.JournalSummary, error) {
	query := `
		SELECT normalized_publisher, normalized_journal, COUNT(*),
			COALESCE(MIN(NULLIF(normalized_received, '')), ''),
			COALESCE(MAX(NULLIF(normalized_received, '')), ''),
			COALESCE(MIN(NULLIF(normalized_accepted, '')), ''),
			COALESCE(MAX(NULLIF(normalized_accepted, '')), ''),
			COALESCE(MIN(NULLIF(normalized_published, '')), ''),
			COALESCE(MAX(NULLIF(normalized_published, '')), '')
		FROM pub
		GROUP BY normalized_publisher, normalized_journal
		ORDER BY normalized_publisher, normalized_journal
	`
	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate publications: %w", err)
	}
	defer rows.Close()

	var summaries []*models.JournalSummary
	for rows.Next() {
		var sum models.JournalSummary
		err := rows.Scan(
			&sum.Publisher, &sum.Journal, &sum.Count,
			&sum.FirstReceived, &sum.LastReceived,
			&sum.FirstAccepted, &sum.LastAccepted,
			&sum.FirstPublished, &sum.LastPublished,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

func scanPublication(row rowScanner) (*models.Publication, error) {
	var pub models.Publication
	var affiliations string
	var addedAt int64
	err := row.Scan(
		&pub.DOI, &pub.Publisher, &pub.Journal, &pub.Title, &pub.PubType, &affiliations,
		&pub.Received, &pub.Accepted, &pub.Published,
		&pub.NormPublisher, &pub.NormJournal, &pub.NormReceived, &pub.NormAccepted, &pub.NormPublished,
		&addedAt,
	)
	if err != nil {
		return nil, err
	}
	pub.AddedAt = unixToTime(addedAt)
	if affiliations != "" {
		if err := json.Unmarshal([]byte(affiliations), &pub.Affiliations); err != nil {
			return nil, fmt.Errorf("failed to deserialize affiliations: %w", err)
		}
	}
	return &pub, nil
}
