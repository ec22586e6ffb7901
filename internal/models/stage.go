package models

import "fmt"

// Stage identifies one step of the acquisition pipeline. Each stage owns a
// job table, an action table, and a log directory.
type Stage string

const (
	StageScrape Stage = "scrape"
	StageParse  Stage = "parse"
	StageCommit Stage = "commit"
)

// Valid reports whether the stage is one of the three pipeline stages.
func (s Stage) Valid() bool {
	switch s {
	case StageScrape, StageParse, StageCommit:
		return true
	}
	return false
}

// JobTable returns the name of the stage's job table.
func (s Stage) JobTable() string {
	switch s {
	case StageScrape:
		return "scrape_jobs"
	case StageParse:
		return "parse_jobs"
	case StageCommit:
		return "commit_jobs"
	}
	return ""
}

// ActionTable returns the name of the stage's action table.
func (s Stage) ActionTable() string {
	switch s {
	case StageScrape:
		return "scrapes"
	case StageParse:
		return "parses"
	case StageCommit:
		return "commits"
	}
	return ""
}

// LogDirName returns the directory name (under the data directory) that holds
// the stage's per-job log files.
func (s Stage) LogDirName() string {
	return string(s) + "_logs"
}

// ParseStage converts a string to a Stage, rejecting unknown values.
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", v)
	}
	return s, nil
}
