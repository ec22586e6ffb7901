// Package app wires the pipeline together: configuration, logger, the two
// SQLite databases, the stores over them, and the stage engines. The CLI
// builds one App per invocation and runs a single operation through it.
package app

import (
	"fmt"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/commit"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/parse"
	"github.com/ternarybob/colligo/internal/parse/parsers"
	"github.com/ternarybob/colligo/internal/scrape"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

// App holds the shared components every operation needs.
type App struct {
	Config *common.Config
	Logger arbor.ILogger
	Paths  common.DataPaths

	JobsDB *sqlite.DB
	PubsDB *sqlite.DB

	JobStore    *sqlite.JobStore
	ActionStore *sqlite.ActionStore
	PubStore    *sqlite.PubStore

	Runner *jobs.Runner
}

// New initializes the application: data directory tree, both databases, and
// the stores. The runner's between-action pacing comes from the scrape
// defaults.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Paths:  common.NewDataPaths(cfg),
	}

	if err := a.Paths.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	jobsDB, err := sqlite.OpenJobsDB(logger, sqlite.DefaultConfig(a.Paths.JobsDB()))
	if err != nil {
		return nil, fmt.Errorf("failed to open jobs database: %w", err)
	}
	a.JobsDB = jobsDB

	pubsDB, err := sqlite.OpenPubsDB(logger, sqlite.DefaultConfig(a.Paths.PubsDB()))
	if err != nil {
		jobsDB.Close()
		return nil, fmt.Errorf("failed to open publications database: %w", err)
	}
	a.PubsDB = pubsDB

	a.JobStore = sqlite.NewJobStore(jobsDB, logger)
	a.ActionStore = sqlite.NewActionStore(jobsDB, logger)
	a.PubStore = sqlite.NewPubStore(pubsDB, logger)
	a.Runner = jobs.NewRunner(a.JobStore, a.ActionStore, logger, cfg.ScrapeDefaults.SleepBetweenActions())

	logger.Debug().
		Str("data_dir", a.Paths.Root).
		Msg("Application initialization complete")
	return a, nil
}

// ScrapeEngine builds the scrape engine with the configured retry budget.
// cleanup removes the download directory after the end-of-job archive.
func (a *App) ScrapeEngine(cleanup bool) *scrape.Engine {
	fetcher := scrape.NewFetcher(a.Logger,
		scrape.WithMaxTries(a.Config.ScrapeDefaults.MaxTries),
		scrape.WithRetrySleep(a.Config.ScrapeDefaults.RetrySleep()),
		scrape.WithSleep429(a.Config.ScrapeDefaults.Sleep429Duration()),
	)
	return scrape.NewEngine(a.JobStore, a.ActionStore, fetcher, a.Paths, a.Logger, cleanup)
}

// ParseEngine builds the parse engine over the configured registry directory
// and the builtin parsers, narrowed by the caller's filter.
func (a *App) ParseEngine(filter parse.Filter, noScrapeMark bool) (*parse.Engine, error) {
	registry, err := parse.LoadRegistry(filepath.Join(a.Config.Parse.RegistryDir, "implemented_parsers.json"))
	if err != nil {
		return nil, err
	}
	norm := parse.NewNormalizer(
		a.Config.Parse.RegistryDir,
		a.Config.Parse.PublisherThreshold,
		a.Config.Parse.JournalThreshold,
	)
	return parse.NewEngine(a.JobStore, a.ActionStore, parse.EngineConfig{
		Registry:     registry,
		Filter:       filter,
		Factories:    parsers.Builtin(),
		Normalizer:   norm,
		Paths:        a.Paths,
		Logger:       a.Logger,
		NoScrapeMark: noScrapeMark,
	})
}

// CommitEngine builds the commit engine.
func (a *App) CommitEngine(opts commit.Options) *commit.Engine {
	return commit.NewEngine(a.JobStore, a.ActionStore, a.PubStore, a.Paths, a.Logger, opts)
}

// Close releases the databases.
func (a *App) Close() error {
	var firstErr error
	if a.PubsDB != nil {
		if err := a.PubsDB.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close publications database: %w", err)
		}
	}
	if a.JobsDB != nil {
		if err := a.JobsDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close jobs database: %w", err)
		}
	}
	if firstErr == nil {
		a.Logger.Debug().Msg("Storage closed")
	}
	return firstErr
}
