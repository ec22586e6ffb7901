package models

// Status is the lifecycle code shared by jobs and actions. Values are stored
// as single letters.
type Status string

const (
	StatusInitialized Status = "I" // record created, not yet populated
	StatusWaiting     Status = "W" // populated, eligible to run
	StatusRunning     Status = "R" // execution in progress
	StatusExecuted    Status = "X" // execution finished
	StatusError       Status = "E" // execution failed or aborted
)

// Valid reports whether the status is one of the five lifecycle codes.
func (s Status) Valid() bool {
	switch s {
	case StatusInitialized, StatusWaiting, StatusRunning, StatusExecuted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether the status is a resting state that execution will
// not advance further.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusError
}

// Runnable reports whether a job in this status may be started without a
// resume request. Running jobs require an explicit resume; terminal jobs
// require a from-scratch restart.
func (s Status) Runnable() bool {
	return s == StatusWaiting
}
