package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// NoURL is the sentinel recorded for input entries that are neither a URL nor
// a DOI. The planner maps it to the skip strategy.
const NoURL = "no_url"

// ErrMultipleTokens is returned when a plaintext input line holds more than
// one whitespace-separated token. Splitting silently would fabricate inputs
// the caller never listed.
var ErrMultipleTokens = errors.New("multiple tokens on input line")

// doiPattern matches a bare DOI: 10.<registrant>/<suffix>.
var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// NormalizeToken turns one raw input entry into a fetchable URL. Bare DOIs
// are rewritten to their doi.org resolver address; http(s) URLs pass through
// untouched; everything else becomes the no_url sentinel.
func NormalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if doiPattern.MatchString(token) {
		return "https://doi.org/" + token
	}
	if strings.HasPrefix(token, "https://") || strings.HasPrefix(token, "http://") {
		return token
	}
	return NoURL
}

// FromList normalizes an in-memory URL list (mode L).
func FromList(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		out = append(out, NormalizeToken(u))
	}
	return out
}

// jsonEntry is one element of a JSON input file. Other keys are ignored.
type jsonEntry struct {
	ArticleURL string `json:"article_url"`
}

// FromJSONFile reads a JSON array of {"article_url": …} objects (mode J).
func FromJSONFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	var entries []jsonEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse input file %s: %w", path, err)
	}
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, NormalizeToken(e.ArticleURL))
	}
	return urls, nil
}

// FromTextFile reads a newline-delimited input file, one URL or DOI per line
// (mode T). Blank lines are skipped; a line holding more than one token is a
// hard error rather than a silent split.
func FromTextFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	var urls []string
	for i, line := range strings.Split(string(data), "\n") {
		tokens := strings.Fields(line)
		switch len(tokens) {
		case 0:
			continue
		case 1:
			urls = append(urls, NormalizeToken(tokens[0]))
		default:
			return nil, fmt.Errorf("line %d of %s holds %d tokens, expected one: %w", i+1, path, len(tokens), ErrMultipleTokens)
		}
	}
	return urls, nil
}
