package parse

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// DefaultDataType is the candidate data type assumed when the caller supplies
// no data_types filter.
const DefaultDataType = "txt"

/// Registration is one entry of implemented_parsers.json: the journal code and
// data type a publisher's parser handles.
type Registration struct {
	Journal  string `json:"journal"`
	DataType string `json:"dtype"`
}

// Registry enumerates the implemented parsers by publisher code.
type Registry map[string]Registration

// LoadRegistry reads implemented_parsers.json. An unreadable or malformed
// registry is fatal to the operation.
func LoadRegistry(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parser registry: %w", err)
	}
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse parser registry %s: %w", path, err)
	}
	for code, reg := range r {
		if reg.DataType == "" {
			reg.DataType = DefaultDataType
			r[code] = reg
		}
	}
	return r, nil
}

/// Candidate addresses one parser: (publisher code, journal code, data type).
type Candidate struct {
	Publisher string
	Journal   string
	DataType  string
}

// Filter narrows the candidate set. Empty slices leave that axis unfiltered,
// except DataTypes, which defaults to [txt].
type Filter struct {
	Publishers []string
	Journals   []string
	DataTypes  []string
}

// Candidates returns the registry entries passing the filter, ordered by
// publisher code so the first-match rule is deterministic.
func (r Registry) Candidates(f Filter) []Candidate {
	dtypes := f.DataTypes
	if len(dtypes) == 0 {
		dtypes = []string{DefaultDataType}
	}

	var out []Candidate
	for code, reg := range r {
		if !matchFilter(f.Publishers, code) {
			continue
		}
		if !matchFilter(f.Journals, reg.Journal) {
			continue
		}
		if !matchFilter(dtypes, reg.DataType) {
			continue
		}
		out = append(out, Candidate{Publisher: code, Journal: reg.Journal, DataType: reg.DataType})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Publisher < out[j].Publisher })
	return out
}

func matchFilter(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}
