package models

import "time"

// Publication is one row of the publication table, keyed by DOI
// (case-insensitive). Raw fields hold what the parser extracted; normalized
// fields hold the registry-canonical publisher/journal names and ISO dates,
// empty when normalization found no confident match.
type Publication struct {
	DOI          string    `json:"doi"`
	Publisher    string    `json:"publisher"`
	Journal      string    `json:"journal"`
	Title        string    `json:"title"`
	PubType      string    `json:"publication_type"`
	Affiliations []string  `json:"affiliations"`
	Received     string    `json:"received"`
	Accepted     string    `json:"accepted"`
	Published    string    `json:"published"`
	AddedAt      time.Time `json:"added_at"`

	NormPublisher string `json:"normalized_publisher"`
	NormJournal   string `json:"normalized_journal"`
	NormReceived  string `json:"normalized_received"`
	NormAccepted  string `json:"normalized_accepted"`
	NormPublished string `json:"normalized_published"`
}

// JournalSummary is one row of the per-journal aggregate: publication count
// and the span of each normalized date, grouped by normalized publisher and
// journal.
type JournalSummary struct {
	Publisher      string `json:"publisher"`
	Journal        string `json:"journal"`
	Count          int    `json:"count"`
	FirstReceived  string `json:"first_received"`
	LastReceived   string `json:"last_received"`
	FirstAccepted  string `json:"first_accepted"`
	LastAccepted   string `json:"last_accepted"`
	FirstPublished string `json:"first_published"`
	LastPublished  string `json:"last_published"`
}
