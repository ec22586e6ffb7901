// Package parse extracts publication metadata from scraped documents. A parse
// job packs input files (usually the out_files of successful scrape actions),
// selects a parser per file by trying registered candidates, and persists the
// extracted fields plus their normalized variants on the parse action row.
package parse

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// Backend names the document model a parser wants its input loaded into.
type Backend string

const (
	// BackendHTML parses the input as an HTML document.
	BackendHTML Backend = "html"

	// BackendXML parses the input as XML rendered through the HTML parser:
	// processing instructions are stripped first so <?xml ...?> prologs do not
	// end up as comment nodes.
	BackendXML Backend = "xml"
)

// processing instructions: <?xml ...?>, <?xml-stylesheet ...?>
var piPattern = regexp.MustCompile(`(?s)<\?.*?\?>`)

// DocumentCache loads one input file into goquery documents, reading the file
// once and parsing at most once per backend. Candidate parsers that share a
// backend share the parsed document; a parser preferring a different backend
// triggers one more parse of the cached bytes, never a second read.
//
// The cache lives for one action and is dropped when the action ends.
type DocumentCache struct {
	path string
	raw  []byte
	docs map[Backend]*goquery.Document
}

// NewDocumentCache creates a cache over one input file. The file is not
// touched until the first Load.
func NewDocumentCache(path string) *DocumentCache {
	return &DocumentCache{
		path: path,
		docs: make(map[Backend]*goquery.Document),
	}
}

// Path returns the input file location.
func (c *DocumentCache) Path() string {
	return c.path
}

// Load returns the document parsed with the requested backend, parsing it on
// first use.
func (c *DocumentCache) Load(backend Backend) (*goquery.Document, error) {
	if doc, ok := c.docs[backend]; ok {
		return doc, nil
	}

	if c.raw == nil {
		data, err := os.ReadFile(c.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		c.raw = data
	}

	input := c.raw
	switch backend {
	case BackendHTML:
	case BackendXML:
		input = piPattern.ReplaceAll(input, nil)
	default:
		return nil, fmt.Errorf("unknown document backend %q", backend)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("failed to parse input as %s: %w", backend, err)
	}
	c.docs[backend] = doc
	return doc, nil
}

// CheckReadable reports whether the path names a readable regular file. The
// packer drops unreadable inputs from the packet before any action exists.
func CheckReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
