package common

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataPaths derives every persisted location from the configured data
// directory. Paths embed the job label, so jobs with different labels never
// collide on disk.
//
//	downloads/<scrape_label>/   per-action scrape output
//	scrape/<scrape_label>.zip   end-of-job archive
//	<stage>_logs/<label>.log    per-job log files
//	parse/<parse_label>/        parse job working directory
//	db/jobs.db, db/pubs.db      the two stores
type DataPaths struct {
	Root string
}

// NewDataPaths creates the path layout rooted at the configured data
// directory.
func NewDataPaths(config *Config) DataPaths {
	return DataPaths{Root: config.Global.DataDirectory}
}

// Ensure creates the data directory tree. Called during bootstrap; individual
// operations also create their own subdirectories on demand.
func (p DataPaths) Ensure() error {
	dirs := []string{
		p.Root,
		filepath.Join(p.Root, "downloads"),
		filepath.Join(p.Root, "scrape"),
		filepath.Join(p.Root, "scrape_logs"),
		filepath.Join(p.Root, "parse"),
		filepath.Join(p.Root, "parse_logs"),
		filepath.Join(p.Root, "commit_logs"),
		filepath.Join(p.Root, "db"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return nil
}

// DownloadDir returns the directory scrape actions write into.
func (p DataPaths) DownloadDir(label string) string {
	return filepath.Join(p.Root, "downloads", label)
}

// ZipFile returns the end-of-job archive path for a scrape job.
func (p DataPaths) ZipFile(label string) string {
	return filepath.Join(p.Root, "scrape", label+".zip")
}

// ParseDir returns the working directory of a parse job.
func (p DataPaths) ParseDir(label string) string {
	return filepath.Join(p.Root, "parse", label)
}

// JobLog returns the per-job log file for a stage ("scrape", "parse",
// "commit").
func (p DataPaths) JobLog(stage, label string) string {
	return filepath.Join(p.Root, stage+"_logs", label+".log")
}

// JobsDB returns the path of the job/action database.
func (p DataPaths) JobsDB() string {
	return filepath.Join(p.Root, "db", "jobs.db")
}

// PubsDB returns the path of the publication database.
func (p DataPaths) PubsDB() string {
	return filepath.Join(p.Root, "db", "pubs.db")
}
