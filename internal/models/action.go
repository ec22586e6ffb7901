package models

import "time"

// ScrapeAction is the row snapshot of one URL acquisition inside a scrape job.
// Actions are addressed by (job label, index); the index is the job's order of
// execution and also names the output file.
type ScrapeAction struct {
	JobLabel string    `json:"job_label"`
	Index    int       `json:"index"`
	Date     time.Time `json:"date"`
	Success  bool      `json:"success"`
	Status   Status    `json:"status"`
	URL      string    `json:"url"`
	Journal  string    `json:"journal"` // journal code stamped by the planner
	Method   string    `json:"method"`  // scrape method stamped by the planner
	OutFile  string    `json:"out_file"`
	Parsed   bool      `json:"parsed"` // set by the parse stage
}

// ParseAction is the row snapshot of one metadata extraction inside a parse
// job. ScrapeLabel/ScrapeIndex are nil when the input came from an explicit
// file list rather than a scrape action.
type ParseAction struct {
	JobLabel    string    `json:"job_label"`
	Index       int       `json:"index"`
	Date        time.Time `json:"date"`
	Success     bool      `json:"success"`
	Status      Status    `json:"status"`
	ScrapeLabel *string   `json:"scrape_label,omitempty"`
	ScrapeIndex *int      `json:"scrape_index,omitempty"`
	InputFile   string    `json:"input_file"`
	Parser      string    `json:"parser"` // code of the parser that produced the fields

	DOI          string   `json:"doi"`
	Publisher    string   `json:"publisher"`
	Journal      string   `json:"journal"`
	Title        string   `json:"title"`
	PubType      string   `json:"publication_type"`
	Affiliations []string `json:"affiliations"`
	Received     string   `json:"received"`
	Accepted     string   `json:"accepted"`
	Published    string   `json:"published"`

	NormPublisher string `json:"normalized_publisher"`
	NormJournal   string `json:"normalized_journal"`
	NormReceived  string `json:"normalized_received"`
	NormAccepted  string `json:"normalized_accepted"`
	NormPublished string `json:"normalized_published"`

	Committed bool `json:"committed"` // set by the commit stage
}

// CommitAction is the row snapshot of one publication insert inside a commit
// job. The metadata is echoed from the parse action at pack time, so the
// commit run reads only its own rows; Duplicate and Passed record the outcome
// of the store's duplicate policy.
type CommitAction struct {
	JobLabel   string    `json:"job_label"`
	Index      int       `json:"index"`
	Date       time.Time `json:"date"`
	Success    bool      `json:"success"`
	Status     Status    `json:"status"`
	ParseLabel string    `json:"parse_label"`
	ParseIndex int       `json:"parse_index"`

	DOI          string   `json:"doi"`
	Publisher    string   `json:"publisher"`
	Journal      string   `json:"journal"`
	Title        string   `json:"title"`
	PubType      string   `json:"publication_type"`
	Affiliations []string `json:"affiliations"`
	Received     string   `json:"received"`
	Accepted     string   `json:"accepted"`
	Published    string   `json:"published"`

	NormPublisher string `json:"normalized_publisher"`
	NormJournal   string `json:"normalized_journal"`
	NormReceived  string `json:"normalized_received"`
	NormAccepted  string `json:"normalized_accepted"`
	NormPublished string `json:"normalized_published"`

	Duplicate bool `json:"duplicate"` // the DOI was already present
	Passed    bool `json:"passed"`    // a row was written (insert or overwrite)
}

// Publication builds the pub-table row this commit action carries. AddedAt is
// stamped by the caller at insert time.
func (a *CommitAction) Publication(addedAt time.Time) *Publication {
	return &Publication{
		DOI:           a.DOI,
		Publisher:     a.Publisher,
		Journal:       a.Journal,
		Title:         a.Title,
		PubType:       a.PubType,
		Affiliations:  a.Affiliations,
		Received:      a.Received,
		Accepted:      a.Accepted,
		Published:     a.Published,
		AddedAt:       addedAt,
		NormPublisher: a.NormPublisher,
		NormJournal:   a.NormJournal,
		NormReceived:  a.NormReceived,
		NormAccepted:  a.NormAccepted,
		NormPublished: a.NormPublished,
	}
}
