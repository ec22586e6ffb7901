// Package parsers holds the builtin publisher parsers. They all read the
// scholarly meta tags (HighWire citation_* names, Dublin Core fallbacks) and
// differ only in how they recognize their publisher: a citation_publisher
// substring or the publisher's DOI prefix.
package parsers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/colligo/internal/parse"
)

// builtinSpecs enumerates the publishers the domain map plans for. The code
// doubles as the publisher key in the normalization registries.
var builtinSpecs = []struct {
	code      string
	publisher string
	doiPrefix string
}{
	{"RSC", "Royal Society of Chemistry", "10.1039"},
	{"ACS", "American Chemical Society", "10.1021"},
	{"Springer", "Springer", "10.1007"},
	{"Wiley", "Wiley", "10.1002"},
	{"Nature", "Nature", "10.1038"},
	{"MDPI", "MDPI", "10.3390"},
	{"Elsevier", "Elsevier", "10.1016"},
	{"Frontiers", "Frontiers", "10.3389"},
	{"T&F", "Taylor & Francis", "10.1080"},
}

// Builtin returns the factory map for the builtin parsers, keyed by publisher
// code. The parse engine accepts any such map, so deployments can add their
// own parsers next to these.
func Builtin() map[string]parse.Factory {
	factories := make(map[string]parse.Factory, len(builtinSpecs))
	for _, spec := range builtinSpecs {
		spec := spec
		factories[spec.code] = func() parse.Parser {
			return &metaParser{
				code:      spec.code,
				publisher: spec.publisher,
				doiPrefix: spec.doiPrefix,
			}
		}
	}
	return factories
}

// metaParser extracts metadata from the document head's meta tags.
type metaParser struct {
	code      string
	publisher string
	doiPrefix string
}

func (p *metaParser) Code() string {
	return p.code
}

func (p *metaParser) Backend() parse.Backend {
	return parse.BackendHTML
}

// Check recognizes the publisher by citation_publisher substring first, DOI
// prefix second. Documents without either signal belong to no builtin parser.
func (p *metaParser) Check(doc *goquery.Document) (bool, error) {
	publisher := metaValue(doc, "citation_publisher", "dc.publisher")
	if publisher != "" && strings.Contains(strings.ToLower(publisher), strings.ToLower(p.publisher)) {
		return true, nil
	}
	doi := metaValue(doc, "citation_doi", "dc.identifier")
	return strings.HasPrefix(doi, p.doiPrefix+"/"), nil
}

// Extract reads the nine metadata fields. Affiliations collect every
// citation_author_institution tag in document order.
func (p *metaParser) Extract(doc *goquery.Document) (*parse.Metadata, error) {
	return &parse.Metadata{
		DOI:          metaValue(doc, "citation_doi", "dc.identifier"),
		Publisher:    metaValue(doc, "citation_publisher", "dc.publisher"),
		Journal:      metaValue(doc, "citation_journal_title", "dc.source"),
		Title:        metaValue(doc, "citation_title", "dc.title"),
		PubType:      metaValue(doc, "citation_article_type", "dc.type"),
		Affiliations: metaValues(doc, "citation_author_institution"),
		Received:     metaValue(doc, "citation_received_date"),
		Accepted:     metaValue(doc, "citation_accepted_date"),
		Published:    metaValue(doc, "citation_publication_date", "citation_online_date", "dc.date"),
	}, nil
}

// metaValues returns the trimmed content of every meta tag with the given
// name, compared case-insensitively.
func metaValues(doc *goquery.Document, name string) []string {
	var values []string
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		n, _ := s.Attr("name")
		if !strings.EqualFold(n, name) {
			return
		}
		content, _ := s.Attr("content")
		content = strings.TrimSpace(content)
		if content != "" {
			values = append(values, content)
		}
	})
	return values
}

// metaValue returns the first non-empty content among the named tags, trying
// names in order.
func metaValue(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		if values := metaValues(doc, name); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
