package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

// setupJobsTestDB creates a job database and returns cleanup function
func setupJobsTestDB(t *testing.T) (*DB, func()) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")

	config := Config{
		Path:          dbPath,
		CacheSizeMB:   10,
		BusyTimeoutMS: 5000,
		WALMode:       false,
	}

	logger := arbor.NewLogger()
	db, err := OpenJobsDB(logger, config)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}

// setupPubsTestDB creates a publication database and returns cleanup function
func setupPubsTestDB(t *testing.T) (*DB, func()) {
	dbPath := filepath.Join(t.TempDir(), "pubs.db")

	config := Config{
		Path:          dbPath,
		CacheSizeMB:   10,
		BusyTimeoutMS: 5000,
		WALMode:       false,
	}

	logger := arbor.NewLogger()
	db, err := OpenPubsDB(logger, config)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}

func testScrapeJob(label string) *models.ScrapeJob {
	return &models.ScrapeJob{
		JobCore: models.JobCore{
			Label:        label,
			Description:  "test scrape batch",
			Date:         time.Now(),
			LogPath:      "/tmp/" + label + ".log",
			Mode:         models.ScrapeModeList,
			Status:       models.StatusInitialized,
			Publications: 0,
		},
		DownloadDir: "/tmp/downloads/" + label,
	}
}

func testParseJob(label string) *models.ParseJob {
	return &models.ParseJob{
		JobCore: models.JobCore{
			Label:       label,
			Description: "test parse batch",
			Date:        time.Now(),
			LogPath:     "/tmp/" + label + ".log",
			Mode:        models.ParseModeAll,
			Status:      models.StatusInitialized,
		},
	}
}

func testCommitJob(label string) *models.CommitJob {
	return &models.CommitJob{
		JobCore: models.JobCore{
			Label:       label,
			Description: "test commit batch",
			Date:        time.Now(),
			LogPath:     "/tmp/" + label + ".log",
			Mode:        models.CommitModeAll,
			Status:      models.StatusInitialized,
		},
	}
}

func testScrapeAction(label string, idx int) *models.ScrapeAction {
	return &models.ScrapeAction{
		JobLabel: label,
		Index:    idx,
		Date:     time.Now(),
		Status:   models.StatusWaiting,
		URL:      "https://pubs.rsc.org/en/content/article/" + label,
		Journal:  "RSC",
		Method:   "get_html",
	}
}
