package models

import "time"

// Packing modes recorded on the job row. The mode says how the job's actions
// were assembled, not how they run.
const (
	// Scrape input modes.
	ScrapeModeList = "L" // in-memory URL list
	ScrapeModeJSON = "J" // JSON file of article_url objects
	ScrapeModeText = "T" // plaintext file, one URL per line

	// Parse packing modes.
	ParseModeAll      = "A" // every unparsed successful scrape action
	ParseModeEvery    = "E" // every successful scrape action, parsed or not
	ParseModeSelected = "S" // successful actions of the named scrape jobs
	ParseModeFiles    = "F" // explicit files with no scrape provenance

	// Commit packing modes.
	CommitModeAll      = "A" // every uncommitted successful parse action
	CommitModeEvery    = "E" // every successful parse action, committed or not
	CommitModeSelected = "P" // successful actions of the named parse jobs
)

// JobCore holds the columns common to the three job tables.
type JobCore struct {
	Label        string    `json:"label"`
	Description  string    `json:"description"`
	Date         time.Time `json:"date"`
	LogPath      string    `json:"log_path"`
	Mode         string    `json:"mode"`
	Status       Status    `json:"status"`
	Step         int       `json:"step"`         // index of the next action to run
	Successes    int       `json:"successes"`    // actions finished with success=true
	Fails        int       `json:"fails"`        // actions finished with success=false
	Publications int       `json:"publications"` // number of actions packed into the job
}

// Remaining returns how many actions have not yet been driven.
func (j JobCore) Remaining() int {
	if j.Step >= j.Publications {
		return 0
	}
	return j.Publications - j.Step
}

// ScrapeJob is the row snapshot of a scrape job. Snapshots are read-only;
// mutation goes through the job writers.
type ScrapeJob struct {
	JobCore
	DownloadDir string `json:"download_dir"`
	ZipFile     string `json:"zip_file"`
	Parsed      bool   `json:"parsed"` // every successful action has been parsed
}

// ParseJob is the row snapshot of a parse job.
type ParseJob struct {
	JobCore
	ParseDir  string `json:"parse_dir"`
	Committed bool   `json:"committed"` // every successful action has been committed
}

// CommitJob is the row snapshot of a commit job.
type CommitJob struct {
	JobCore
}
