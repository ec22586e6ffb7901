package sqlite

const jobsSchemaSQL = `
-- Scrape jobs: one row per batch of URL acquisitions
CREATE TABLE IF NOT EXISTS scrape_jobs (
	label TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	date INTEGER NOT NULL,
	log_path TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'I',
	step INTEGER NOT NULL DEFAULT 0,
	successes INTEGER NOT NULL DEFAULT 0,
	fails INTEGER NOT NULL DEFAULT 0,
	publications INTEGER NOT NULL DEFAULT 0,
	download_dir TEXT NOT NULL DEFAULT '',
	zip_file TEXT NOT NULL DEFAULT '',
	parsed INTEGER NOT NULL DEFAULT 0
);

-- Scrape actions: one row per URL, addressed by (job_label, idx)
CREATE TABLE IF NOT EXISTS scrapes (
	job_label TEXT NOT NULL REFERENCES scrape_jobs(label) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	date INTEGER NOT NULL,
	success INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'W',
	url TEXT NOT NULL DEFAULT '',
	journal TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL DEFAULT '',
	out_file TEXT NOT NULL DEFAULT '',
	parsed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (job_label, idx)
);

-- Parse jobs: one row per batch of metadata extractions
CREATE TABLE IF NOT EXISTS parse_jobs (
	label TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	date INTEGER NOT NULL,
	log_path TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'I',
	step INTEGER NOT NULL DEFAULT 0,
	successes INTEGER NOT NULL DEFAULT 0,
	fails INTEGER NOT NULL DEFAULT 0,
	publications INTEGER NOT NULL DEFAULT 0,
	parse_dir TEXT NOT NULL DEFAULT '',
	committed INTEGER NOT NULL DEFAULT 0
);

-- Parse actions: extracted metadata plus provenance back to the scrape action
CREATE TABLE IF NOT EXISTS parses (
	job_label TEXT NOT NULL REFERENCES parse_jobs(label) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	date INTEGER NOT NULL,
	success INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'W',
	scrape_label TEXT,
	scrape_idx INTEGER,
	input_file TEXT NOT NULL DEFAULT '',
	parser TEXT NOT NULL DEFAULT '',
	doi TEXT NOT NULL DEFAULT '',
	publisher TEXT NOT NULL DEFAULT '',
	journal TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	publication_type TEXT NOT NULL DEFAULT '',
	affiliations TEXT NOT NULL DEFAULT '[]',
	received TEXT NOT NULL DEFAULT '',
	accepted TEXT NOT NULL DEFAULT '',
	published TEXT NOT NULL DEFAULT '',
	normalized_publisher TEXT NOT NULL DEFAULT '',
	normalized_journal TEXT NOT NULL DEFAULT '',
	normalized_received TEXT NOT NULL DEFAULT '',
	normalized_accepted TEXT NOT NULL DEFAULT '',
	normalized_published TEXT NOT NULL DEFAULT '',
	committed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (job_label, idx)
);

-- Commit jobs: one row per batch of publication inserts
CREATE TABLE IF NOT EXISTS commit_jobs (
	label TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	date INTEGER NOT NULL,
	log_path TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'I',
	step INTEGER NOT NULL DEFAULT 0,
	successes INTEGER NOT NULL DEFAULT 0,
	fails INTEGER NOT NULL DEFAULT 0,
	publications INTEGER NOT NULL DEFAULT 0
);

-- Commit actions: the parse action's metadata echoed at pack time plus the
-- outcome of the publication insert
CREATE TABLE IF NOT EXISTS commits (
	job_label TEXT NOT NULL REFERENCES commit_jobs(label) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	date INTEGER NOT NULL,
	success INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'W',
	parse_label TEXT NOT NULL DEFAULT '',
	parse_idx INTEGER NOT NULL DEFAULT 0,
	doi TEXT NOT NULL DEFAULT '',
	publisher TEXT NOT NULL DEFAULT '',
	journal TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	publication_type TEXT NOT NULL DEFAULT '',
	affiliations TEXT NOT NULL DEFAULT '[]',
	received TEXT NOT NULL DEFAULT '',
	accepted TEXT NOT NULL DEFAULT '',
	published TEXT NOT NULL DEFAULT '',
	normalized_publisher TEXT NOT NULL DEFAULT '',
	normalized_journal TEXT NOT NULL DEFAULT '',
	normalized_received TEXT NOT NULL DEFAULT '',
	normalized_accepted TEXT NOT NULL DEFAULT '',
	normalized_published TEXT NOT NULL DEFAULT '',
	duplicate INTEGER NOT NULL DEFAULT 0,
	passed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (job_label, idx)
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs(status);
CREATE INDEX IF NOT EXISTS idx_parse_jobs_status ON parse_jobs(status);
CREATE INDEX IF NOT EXISTS idx_commit_jobs_status ON commit_jobs(status);
CREATE INDEX IF NOT EXISTS idx_scrapes_parsed ON scrapes(status, parsed);
CREATE INDEX IF NOT EXISTS idx_parses_committed ON parses(status, committed);
CREATE INDEX IF NOT EXISTS idx_parses_doi ON parses(doi);
`

const pubsSchemaSQL = `
-- Publications keyed by DOI; duplicate detection is case-insensitive
CREATE TABLE IF NOT EXISTS pub (
	doi TEXT PRIMARY KEY COLLATE NOCASE,
	publisher TEXT NOT NULL DEFAULT '',
	journal TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	publication_type TEXT NOT NULL DEFAULT '',
	affiliations TEXT NOT NULL DEFAULT '[]',
	received TEXT NOT NULL DEFAULT '',
	accepted TEXT NOT NULL DEFAULT '',
	published TEXT NOT NULL DEFAULT '',
	normalized_publisher TEXT NOT NULL DEFAULT '',
	normalized_journal TEXT NOT NULL DEFAULT '',
	normalized_received TEXT NOT NULL DEFAULT '',
	normalized_accepted TEXT NOT NULL DEFAULT '',
	normalized_published TEXT NOT NULL DEFAULT '',
	added_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pub_journal ON pub(normalized_publisher, normalized_journal);
`

// columnMigration adds a column to databases created before the column
// existed. New databases get the column from the schema itself.
type columnMigration struct {
	table      string
	column     string
	definition string
}

var jobsMigrations = []columnMigration{
	{table: "scrape_jobs", column: "zip_file", definition: "TEXT NOT NULL DEFAULT ''"},
	{table: "parses", column: "parser", definition: "TEXT NOT NULL DEFAULT ''"},
}

var pubsMigrations = []columnMigration{}

// migrate applies the schema and any column migrations for databases created
// by earlier releases.
func (s *DB) migrate(schema string, migrations []columnMigration) error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		exists, err := s.hasColumn(m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		s.logger.Info().Str("table", m.table).Str("column", m.column).Msg("Running migration: adding column")
		stmt := "ALTER TABLE " + m.table + " ADD COLUMN " + m.column + " " + m.definition
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
		applied++
	}

	if applied > 0 {
		s.logger.Info().Int("count", applied).Msg("Schema migrations completed successfully")
	}
	return nil
}

// hasColumn reports whether a table already carries a column.
func (s *DB) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, dfltValue, pk interface{}
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
