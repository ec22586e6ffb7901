package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestFileSink_AppendsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	sink, err := OpenFileSink(arbor.NewLogger(), path)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		sink.Append(Entry{
			Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			Level:     log.InfoLevel,
			Message:   fmt.Sprintf("message %03d", i),
		})
	}
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 100)
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("10:00:00 INF message %03d", i), line)
	}
}

func TestFileSink_LevelCodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	sink, err := OpenFileSink(arbor.NewLogger(), path)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	sink.Append(Entry{Timestamp: ts, Level: log.DebugLevel, Message: "d"})
	sink.Append(Entry{Timestamp: ts, Level: log.InfoLevel, Message: "i"})
	sink.Append(Entry{Timestamp: ts, Level: log.WarnLevel, Message: "w"})
	sink.Append(Entry{Timestamp: ts, Level: log.ErrorLevel, Message: "e"})
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "09:30:00 DBG d", lines[0])
	assert.Equal(t, "09:30:00 INF i", lines[1])
	assert.Equal(t, "09:30:00 WRN w", lines[2])
	assert.Equal(t, "09:30:00 ERR e", lines[3])
}

func TestFileSink_AppendAfterCloseIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")
	sink, err := OpenFileSink(arbor.NewLogger(), path)
	require.NoError(t, err)

	sink.Append(Entry{Timestamp: time.Now(), Level: log.InfoLevel, Message: "kept"})
	require.NoError(t, sink.Close())

	// Must not panic or block
	sink.Append(Entry{Timestamp: time.Now(), Level: log.InfoLevel, Message: "dropped"})
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
	assert.NotContains(t, string(data), "dropped")
}

func TestFileSink_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.log")

	for run := 0; run < 2; run++ {
		sink, err := OpenFileSink(arbor.NewLogger(), path)
		require.NoError(t, err)
		sink.Append(Entry{Timestamp: time.Now(), Level: log.InfoLevel, Message: fmt.Sprintf("run %d", run)})
		require.NoError(t, sink.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run 0")
	assert.Contains(t, string(data), "run 1")
}

func TestLevelCodeRoundTrip(t *testing.T) {
	for _, level := range []log.Level{log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel} {
		assert.Equal(t, level, parseLevelCode(levelCode(level)))
	}
	assert.Equal(t, log.InfoLevel, parseLevelCode("???"))
}

func TestJobLogger_WritesLabelAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrape_x.log")
	sink, err := OpenFileSink(arbor.NewLogger(), path)
	require.NoError(t, err)

	jl := NewJobLogger(arbor.NewLogger(), sink, "scrape_x")
	assert.Equal(t, "scrape_x", jl.Label())

	jl.Preamble("scrape", "three URLs from a list", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	jl.Infof("action %d: %s", 0, "https://example.org/a")
	jl.Errorf("action %d failed: %v", 1, fmt.Errorf("boom"))
	require.NoError(t, jl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "scrape job scrape_x created 2026-03-01 08:00:00")
	assert.Contains(t, content, "description: three URLs from a list")
	assert.Contains(t, content, "INF action 0: https://example.org/a")
	assert.Contains(t, content, "ERR action 1 failed: boom")
}
