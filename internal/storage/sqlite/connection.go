package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"
)

// Config holds the connection settings for one database file.
type Config struct {
	Path          string
	CacheSizeMB   int
	BusyTimeoutMS int
	WALMode       bool
}

// DefaultConfig returns connection settings suitable for the pipeline
// databases.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		CacheSizeMB:   32,
		BusyTimeoutMS: 5000,
		WALMode:       true,
	}
}

// DB manages one SQLite database connection.
type DB struct {
	db     *sql.DB
	logger arbor.ILogger
	config Config
}

// OpenJobsDB opens (creating if needed) the job database: the three job
// tables and their action tables.
func OpenJobsDB(logger arbor.ILogger, config Config) (*DB, error) {
	return open(logger, config, jobsSchemaSQL, jobsMigrations)
}

// OpenPubsDB opens (creating if needed) the publication database.
func OpenPubsDB(logger arbor.ILogger, config Config) (*DB, error) {
	return open(logger, config, pubsSchemaSQL, pubsMigrations)
}

func open(logger arbor.ILogger, config Config, schema string, migrations []columnMigration) (*DB, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// modernc.org/sqlite registers as "sqlite" (not "sqlite3")
	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps the session pragmas in force for every statement
	db.SetMaxOpenConns(1)

	s := &DB{
		db:     db,
		logger: logger,
		config: config,
	}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := s.migrate(schema, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("SQLite database initialized")
	return s, nil
}

// configure sets up SQLite pragmas and settings
func (s *DB) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", s.config.CacheSizeMB*1024), // Negative for KB
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.config.BusyTimeoutMS),
		"PRAGMA foreign_keys = ON", // actions cascade when their job is deleted
		"PRAGMA synchronous = NORMAL",
	}

	if s.config.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// DB returns the underlying database connection
func (s *DB) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *DB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginTx starts a new transaction
func (s *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Ping verifies the database connection
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
