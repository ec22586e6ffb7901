package parse

import (
	"github.com/PuerkitoBio/goquery"
)

// Metadata carries the nine fields a parser extracts from one document. A
// parse action succeeds only when every field is present; the normalized
// variants are derived afterwards and may legitimately stay empty.
type Metadata struct {
	DOI          string
	Publisher    string
	Journal      string
	Title        string
	PubType      string
	Affiliations []string
	Received     string
	Accepted     string
	Published    string
}

// Complete reports whether every extraction field is non-empty.
func (m *Metadata) Complete() bool {
	return len(m.Missing()) == 0
}

// Missing names the empty extraction fields, in a stable order, for the
// action's log line.
func (m *Metadata) Missing() []string {
	var missing []string
	if m.DOI == "" {
		missing = append(missing, "doi")
	}
	if m.Publisher == "" {
		missing = append(missing, "publisher")
	}
	if m.Journal == "" {
		missing = append(missing, "journal")
	}
	if m.Title == "" {
		missing = append(missing, "title")
	}
	if m.PubType == "" {
		missing = append(missing, "publication_type")
	}
	if len(m.Affiliations) == 0 {
		missing = append(missing, "affiliations")
	}
	if m.Received == "" {
		missing = append(missing, "received")
	}
	if m.Accepted == "" {
		missing = append(missing, "accepted")
	}
	if m.Published == "" {
		missing = append(missing, "published")
	}
	return missing
}

// Parser extracts metadata from one document model. Implementations are
// addressed by their publisher code and registered through a Factory. Check is
// the candidate predicate: the first registered parser whose Check returns
// (true, nil) wins the action.
type Parser interface {
	Code() string
	Backend() Backend
	Check(doc *goquery.Document) (bool, error)
	Extract(doc *goquery.Document) (*Metadata, error)
}

// Factory builds a fresh parser instance. Instances are created per action so
// parsers may keep per-document state.
type Factory func() Parser
