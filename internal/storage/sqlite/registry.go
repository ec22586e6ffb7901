package sqlite

import "fmt"

// Table names a table reachable through the query layer. Only registered
// tables can be queried.
type Table string

const (
	TableScrapeJobs Table = "scrape_jobs"
	TableScrapes    Table = "scrapes"
	TableParseJobs  Table = "parse_jobs"
	TableParses     Table = "parses"
	TableCommitJobs Table = "commit_jobs"
	TableCommits    Table = "commits"
	TablePubs       Table = "pub"
)

// Column names a column inside a registered table.
type Column string

// Job table columns.
const (
	ColLabel        Column = "label"
	ColDescription  Column = "description"
	ColDate         Column = "date"
	ColLogPath      Column = "log_path"
	ColMode         Column = "mode"
	ColStatus       Column = "status"
	ColStep         Column = "step"
	ColSuccesses    Column = "successes"
	ColFails        Column = "fails"
	ColPublications Column = "publications"
	ColDownloadDir  Column = "download_dir"
	ColZipFile      Column = "zip_file"
	ColParseDir     Column = "parse_dir"
	ColJobParsed    Column = "parsed"
	ColJobCommitted Column = "committed"
)

// Action table columns.
const (
	ColJobLabel     Column = "job_label"
	ColIndex        Column = "idx"
	ColSuccess      Column = "success"
	ColURL          Column = "url"
	ColJournal      Column = "journal"
	ColMethod       Column = "method"
	ColOutFile      Column = "out_file"
	ColParsed       Column = "parsed"
	ColScrapeLabel  Column = "scrape_label"
	ColScrapeIndex  Column = "scrape_idx"
	ColInputFile    Column = "input_file"
	ColParser       Column = "parser"
	ColDOI          Column = "doi"
	ColPublisher    Column = "publisher"
	ColTitle        Column = "title"
	ColPubType      Column = "publication_type"
	ColAffiliations Column = "affiliations"
	ColReceived     Column = "received"
	ColAccepted     Column = "accepted"
	ColPublished    Column = "published"
	ColNormPub      Column = "normalized_publisher"
	ColNormJournal  Column = "normalized_journal"
	ColNormReceived Column = "normalized_received"
	ColNormAccepted Column = "normalized_accepted"
	ColNormPubDate  Column = "normalized_published"
	ColCommitted    Column = "committed"
	ColParseLabel   Column = "parse_label"
	ColParseIndex   Column = "parse_idx"
	ColDuplicate    Column = "duplicate"
	ColPassed       Column = "passed"
	ColAddedAt      Column = "added_at"
)

var jobCoreColumns = []Column{
	ColLabel, ColDescription, ColDate, ColLogPath, ColMode,
	ColStatus, ColStep, ColSuccesses, ColFails, ColPublications,
}

// registry is the closed set of tables and columns the query layer will
// touch. Identifiers never reach SQL text unless they pass this registry;
// values always travel as bound parameters.
var registry = map[Table]map[Column]struct{}{
	TableScrapeJobs: columnSet(append(jobCoreColumns, ColDownloadDir, ColZipFile, ColJobParsed)),
	TableParseJobs:  columnSet(append(jobCoreColumns, ColParseDir, ColJobCommitted)),
	TableCommitJobs: columnSet(jobCoreColumns),
	TableScrapes: columnSet([]Column{
		ColJobLabel, ColIndex, ColDate, ColSuccess, ColStatus,
		ColURL, ColJournal, ColMethod, ColOutFile, ColParsed,
	}),
	TableParses: columnSet([]Column{
		ColJobLabel, ColIndex, ColDate, ColSuccess, ColStatus,
		ColScrapeLabel, ColScrapeIndex, ColInputFile, ColParser,
		ColDOI, ColPublisher, ColJournal, ColTitle, ColPubType, ColAffiliations,
		ColReceived, ColAccepted, ColPublished,
		ColNormPub, ColNormJournal, ColNormReceived, ColNormAccepted, ColNormPubDate,
		ColCommitted,
	}),
	TableCommits: columnSet([]Column{
		ColJobLabel, ColIndex, ColDate, ColSuccess, ColStatus,
		ColParseLabel, ColParseIndex,
		ColDOI, ColPublisher, ColJournal, ColTitle, ColPubType, ColAffiliations,
		ColReceived, ColAccepted, ColPublished,
		ColNormPub, ColNormJournal, ColNormReceived, ColNormAccepted, ColNormPubDate,
		ColDuplicate, ColPassed,
	}),
	TablePubs: columnSet([]Column{
		ColDOI, ColPublisher, ColJournal, ColTitle, ColPubType, ColAffiliations,
		ColReceived, ColAccepted, ColPublished,
		ColNormPub, ColNormJournal, ColNormReceived, ColNormAccepted, ColNormPubDate,
		ColAddedAt,
	}),
}

func columnSet(cols []Column) map[Column]struct{} {
	set := make(map[Column]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	return set
}

// CheckTable rejects tables outside the registry.
func CheckTable(t Table) error {
	if _, ok := registry[t]; !ok {
		return fmt.Errorf("table %q is not registered", t)
	}
	return nil
}

// CheckColumn rejects (table, column) pairs outside the registry.
func CheckColumn(t Table, c Column) error {
	cols, ok := registry[t]
	if !ok {
		return fmt.Errorf("table %q is not registered", t)
	}
	if _, ok := cols[c]; !ok {
		return fmt.Errorf("column %q is not registered for table %q", c, t)
	}
	return nil
}

// CheckColumns rejects the first column not registered for the table.
func CheckColumns(t Table, cols ...Column) error {
	for _, c := range cols {
		if err := CheckColumn(t, c); err != nil {
			return err
		}
	}
	return nil
}
