package parse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeParserRegistry(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "implemented_parsers.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	path := writeParserRegistry(t, `{
		"RSC": {"journal": "RSC", "dtype": "txt"},
		"ACS": {"journal": "ACS", "dtype": "txt"},
		"NKD": {"journal": "Doklady"}
	}`)

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, r, 3)
	assert.Equal(t, Registration{Journal: "RSC", DataType: "txt"}, r["RSC"])

	// A registration without a dtype falls back to the default.
	assert.Equal(t, DefaultDataType, r["NKD"].DataType)
}

func TestLoadRegistry_Errors(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read parser registry")

	path := writeParserRegistry(t, `["not", "an", "object"]`)
	_, err = LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse parser registry")
}

func TestRegistry_Candidates(t *testing.T) {
	r := Registry{
		"Wiley":    {Journal: "Wiley", DataType: "txt"},
		"RSC":      {Journal: "RSC", DataType: "txt"},
		"ACS":      {Journal: "ACS", DataType: "txt"},
		"Springer": {Journal: "Springer", DataType: "xml"},
	}

	// No filter: every txt candidate, ordered by publisher code.
	got := r.Candidates(Filter{})
	require.Len(t, got, 3)
	assert.Equal(t, "ACS", got[0].Publisher)
	assert.Equal(t, "RSC", got[1].Publisher)
	assert.Equal(t, "Wiley", got[2].Publisher)

	// A data type filter reaches the non-default registrations.
	got = r.Candidates(Filter{DataTypes: []string{"xml"}})
	require.Len(t, got, 1)
	assert.Equal(t, "Springer", got[0].Publisher)

	// Publisher filter.
	got = r.Candidates(Filter{Publishers: []string{"RSC", "Wiley"}})
	require.Len(t, got, 2)
	assert.Equal(t, "RSC", got[0].Publisher)
	assert.Equal(t, "Wiley", got[1].Publisher)

	// Journal filter.
	got = r.Candidates(Filter{Journals: []string{"ACS"}})
	require.Len(t, got, 1)
	assert.Equal(t, "ACS", got[0].Publisher)

	// Nothing passes.
	assert.Empty(t, r.Candidates(Filter{Publishers: []string{"Elsevier"}}))
}
