// -----------------------------------------------------------------------
// Parse engine - selects a parser per input document, persists the
// extracted fields and their normalized variants on the action row
// -----------------------------------------------------------------------

package parse

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/sqlite"
)

// EngineConfig wires a parse engine: the parser registry narrowed by the
// caller's filter, the factories that implement the registered codes, and the
// normalization registries.
type EngineConfig struct {
	Registry   Registry
	Filter     Filter
	Factories  map[string]Factory
	Normalizer *Normalizer
	Paths      common.DataPaths
	Logger     arbor.ILogger

	// NoScrapeMark disables writing parsed=T back to the originating scrape
	// actions and jobs.
	NoScrapeMark bool
}

// Engine creates parse jobs and executes their actions: one metadata
// extraction per input file, using the first candidate parser that recognizes
// the document. It implements jobs.Executor.
type Engine struct {
	jobs    *sqlite.JobStore
	actions *sqlite.ActionStore
	paths   common.DataPaths
	logger  arbor.ILogger

	candidates   []Candidate
	factories    map[string]Factory
	norm         *Normalizer
	noScrapeMark bool
}

// NewEngine creates a parse engine over the given stores. Every registry
// entry surviving the filter must have a factory; a registered parser without
// an implementation is a wiring error.
func NewEngine(jobStore *sqlite.JobStore, actionStore *sqlite.ActionStore, cfg EngineConfig) (*Engine, error) {
	candidates := cfg.Registry.Candidates(cfg.Filter)
	for _, c := range candidates {
		if _, ok := cfg.Factories[c.Publisher]; !ok {
			return nil, fmt.Errorf("no parser implementation for code %q", c.Publisher)
		}
	}
	return &Engine{
		jobs:         jobStore,
		actions:      actionStore,
		paths:        cfg.Paths,
		logger:       cfg.Logger,
		candidates:   candidates,
		factories:    cfg.Factories,
		norm:         cfg.Normalizer,
		noScrapeMark: cfg.NoScrapeMark,
	}, nil
}

// Stage identifies the engine to the runner.
func (e *Engine) Stage() models.Stage {
	return models.StageParse
}

// RunAction drives one parse action: select a parser, extract the nine
// metadata fields, derive the normalized variants, and persist everything on
// the action row. The action succeeds only when every extraction field is
// non-empty; back-propagation marks the originating scrape action parsed.
func (e *Engine) RunAction(ctx context.Context, rc *jobs.RunContext, index int) (bool, error) {
	aw, err := jobs.OpenParseAction(ctx, rc.Actions, rc.Label, index)
	if err != nil {
		return false, err
	}
	action := aw.Snapshot()

	cache := NewDocumentCache(action.InputFile)
	parser, doc, err := e.selectParser(rc, cache, index)
	if err != nil {
		return false, err
	}
	if parser == nil {
		rc.Log.Warnf("action %d: no parser matched %s", index, action.InputFile)
		return false, nil
	}
	if err := aw.SetParser(ctx, parser.Code()); err != nil {
		return false, err
	}

	meta, err := parser.Extract(doc)
	if err != nil {
		return false, fmt.Errorf("parser %s failed on %s: %w", parser.Code(), action.InputFile, err)
	}
	if err := e.persistFields(ctx, aw, meta); err != nil {
		return false, err
	}
	if err := e.persistNormalized(ctx, rc, aw, parser.Code(), meta, index); err != nil {
		return false, err
	}

	if !meta.Complete() {
		rc.Log.Warnf("action %d: parser %s left fields empty: %v", index, parser.Code(), meta.Missing())
		return false, nil
	}

	if !e.noScrapeMark && action.ScrapeLabel != nil && action.ScrapeIndex != nil {
		if err := e.markScrapeAction(ctx, rc, *action.ScrapeLabel, *action.ScrapeIndex); err != nil {
			return false, err
		}
	}

	rc.Log.Infof("action %d: parsed %s with %s doi=%s", index, action.InputFile, parser.Code(), meta.DOI)
	return true, nil
}

// selectParser walks the filtered candidates in publisher-code order and
// returns the first whose Check recognizes the document. A Check error
// disqualifies that candidate only.
func (e *Engine) selectParser(rc *jobs.RunContext, cache *DocumentCache, index int) (Parser, *goquery.Document, error) {
	for _, c := range e.candidates {
		parser := e.factories[c.Publisher]()
		doc, err := cache.Load(parser.Backend())
		if err != nil {
			return nil, nil, err
		}
		ok, err := parser.Check(doc)
		if err != nil {
			rc.Log.Warnf("action %d: candidate %s check failed: %v", index, c.Publisher, err)
			continue
		}
		if ok {
			return parser, doc, nil
		}
	}
	return nil, nil, nil
}

// persistFields writes the nine raw extraction fields to the action row.
func (e *Engine) persistFields(ctx context.Context, aw *jobs.ParseActionWriter, meta *Metadata) error {
	fields := []struct {
		col   sqlite.Column
		value string
	}{
		{sqlite.ColDOI, meta.DOI},
		{sqlite.ColPublisher, meta.Publisher},
		{sqlite.ColJournal, meta.Journal},
		{sqlite.ColTitle, meta.Title},
		{sqlite.ColPubType, meta.PubType},
		{sqlite.ColReceived, meta.Received},
		{sqlite.ColAccepted, meta.Accepted},
		{sqlite.ColPublished, meta.Published},
	}
	for _, f := range fields {
		if err := aw.SetField(ctx, f.col, f.value); err != nil {
			return err
		}
	}
	return aw.SetAffiliations(ctx, meta.Affiliations)
}

// persistNormalized derives and writes the normalized variants. Normalization
// misses are not failures; registry load problems are logged and leave the
// field empty.
func (e *Engine) persistNormalized(ctx context.Context, rc *jobs.RunContext, aw *jobs.ParseActionWriter, code string, meta *Metadata, index int) error {
	normPub, err := e.norm.Publisher(meta.Publisher)
	if err != nil {
		rc.Log.Warnf("action %d: publisher normalization unavailable: %v", index, err)
	}
	if err := aw.SetNormalized(ctx, sqlite.ColNormPub, normPub); err != nil {
		return err
	}

	normJournal, err := e.norm.Journal(code, meta.Journal)
	if err != nil {
		rc.Log.Warnf("action %d: journal normalization unavailable: %v", index, err)
	}
	if err := aw.SetNormalized(ctx, sqlite.ColNormJournal, normJournal); err != nil {
		return err
	}

	dates := []struct {
		col sqlite.Column
		raw string
	}{
		{sqlite.ColNormReceived, meta.Received},
		{sqlite.ColNormAccepted, meta.Accepted},
		{sqlite.ColNormPubDate, meta.Published},
	}
	for _, d := range dates {
		if err := aw.SetNormalized(ctx, d.col, NormalizeDate(d.raw)); err != nil {
			return err
		}
	}
	return nil
}

// markScrapeAction back-propagates parsed=T to the originating scrape action.
// A vanished scrape action is logged and skipped; the parse result stands on
// its own.
func (e *Engine) markScrapeAction(ctx context.Context, rc *jobs.RunContext, scrapeLabel string, scrapeIndex int) error {
	sw, err := jobs.OpenScrapeAction(ctx, rc.Actions, scrapeLabel, scrapeIndex)
	if errors.Is(err, sqlite.ErrNotFound) {
		rc.Log.Warnf("scrape action %s[%d] is gone, parsed mark skipped", scrapeLabel, scrapeIndex)
		return nil
	}
	if err != nil {
		return err
	}
	return sw.SetParsed(ctx, true)
}

// Finalize back-propagates the job-level parsed mark: every scrape job this
// parse job drew from is marked parsed once none of its successful actions
// remain unparsed.
func (e *Engine) Finalize(ctx context.Context, rc *jobs.RunContext) error {
	if e.noScrapeMark {
		return nil
	}

	actions, err := rc.Actions.SearchParseActions(ctx, sqlite.And, []sqlite.Cond{
		sqlite.Eq(sqlite.ColJobLabel, rc.Label),
	})
	if err != nil {
		return err
	}

	touched := make(map[string]struct{})
	for _, a := range actions {
		if a.ScrapeLabel != nil {
			touched[*a.ScrapeLabel] = struct{}{}
		}
	}

	for scrapeLabel := range touched {
		remaining, err := rc.Actions.UnparsedCount(ctx, scrapeLabel)
		if err != nil {
			return err
		}
		if remaining > 0 {
			continue
		}
		sw, err := jobs.OpenScrapeJob(ctx, rc.Jobs, scrapeLabel)
		if errors.Is(err, sqlite.ErrNotFound) {
			rc.Log.Warnf("scrape job %s is gone, parsed mark skipped", scrapeLabel)
			continue
		}
		if err != nil {
			return err
		}
		if err := sw.SetParsed(ctx, true); err != nil {
			return err
		}
		rc.Log.Infof("scrape job %s fully parsed", scrapeLabel)
	}
	return nil
}
