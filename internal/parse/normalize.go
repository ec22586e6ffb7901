package parse

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// RegistryEntry is one named thing in a normalization registry: its canonical
// name plus the variants seen in the wild.
type RegistryEntry struct {
	NormalizedName string   `json:"normalized_name"`
	NameVariants   []string `json:"name_variants"`
}

// Normalizer resolves raw publisher and journal names against the JSON
// registries (publishers_index.json, <PUB>_journals.json) by string
// similarity. Lookups that clear the threshold return the canonical name;
// everything else returns empty.
type Normalizer struct {
	dir                string
	publisherThreshold float64
	journalThreshold   float64

	metric     *metrics.Levenshtein
	publishers map[string]RegistryEntry
	journals   map[string]map[string]RegistryEntry
}

// NewNormalizer builds a Normalizer over the registry directory. Registry
// files are loaded lazily on first use.
func NewNormalizer(dir string, publisherThreshold, journalThreshold float64) *Normalizer {
	lev := metrics.NewLevenshtein()
	lev.CaseSensitive = false
	return &Normalizer{
		dir:                dir,
		publisherThreshold: publisherThreshold,
		journalThreshold:   journalThreshold,
		metric:             lev,
		journals:           make(map[string]map[string]RegistryEntry),
	}
}

// Publisher returns the canonical publisher name whose variants best match
// raw, or empty when no entry reaches the similarity threshold. A missing
// publishers_index.json means no normalization is available, not an error.
func (n *Normalizer) Publisher(raw string) (string, error) {
	if n.publishers == nil {
		index, err := loadRegistryFile(filepath.Join(n.dir, "publishers_index.json"))
		if err != nil {
			return "", err
		}
		n.publishers = index
	}
	return n.bestMatch(raw, n.publishers, n.publisherThreshold), nil
}

// Journal returns the canonical journal name for raw within the named
// publisher's journal registry (<publisher>_journals.json), or empty when no
// entry reaches the threshold or the publisher has no registry.
func (n *Normalizer) Journal(publisher, raw string) (string, error) {
	index, ok := n.journals[publisher]
	if !ok {
		loaded, err := loadRegistryFile(filepath.Join(n.dir, publisher+"_journals.json"))
		if err != nil {
			return "", err
		}
		index = loaded
		n.journals[publisher] = index
	}
	return n.bestMatch(raw, index, n.journalThreshold), nil
}

func (n *Normalizer) bestMatch(raw string, index map[string]RegistryEntry, threshold float64) string {
	if raw == "" || len(index) == 0 {
		return ""
	}
	best := ""
	bestScore := 0.0
	for _, entry := range index {
		names := append([]string{entry.NormalizedName}, entry.NameVariants...)
		for _, name := range names {
			if name == "" {
				continue
			}
			score := strutil.Similarity(raw, name, n.metric)
			if score > bestScore {
				bestScore = score
				best = entry.NormalizedName
			}
		}
	}
	if bestScore < threshold {
		return ""
	}
	return best
}

func loadRegistryFile(path string) (map[string]RegistryEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]RegistryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	}
	var index map[string]RegistryEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	return index, nil
}

var datePattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})\b`)

var monthNumbers = map[string]string{
	"january": "01", "february": "02", "march": "03", "april": "04",
	"may": "05", "june": "06", "july": "07", "august": "08",
	"september": "09", "october": "10", "november": "11", "december": "12",
}

// NormalizeDate extracts a "<day> <MonthName> <year>" date from raw and
// renders it as YYYY-MM-DD. Ordinal suffixes on the day are accepted. Returns
// empty when raw contains no such date.
func NormalizeDate(raw string) string {
	m := datePattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	day := m[1]
	if len(day) == 1 {
		day = "0" + day
	}
	month := monthNumbers[strings.ToLower(m[2])]
	return m[3] + "-" + month + "-" + day
}
