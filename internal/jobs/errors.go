package jobs

import "errors"

var (
	// ErrJobRunning is returned when a run is requested for a job whose
	// status is already R and no resume was asked for. A job marked running
	// either has a live driver or died without finalizing; both cases need
	// an explicit decision from the caller.
	ErrJobRunning = errors.New("job is marked running")

	// ErrJobFinalized is returned when a resume is requested for a job that
	// already reached a terminal status. Finished jobs only run again from
	// scratch.
	ErrJobFinalized = errors.New("job already finalized")

	// ErrNoActions is returned when a job is created with zero publications,
	// or resumed when every action slot is already spent.
	ErrNoActions = errors.New("job has no actions")

	// ErrJobNotPackable is returned when actions are added to a job that has
	// left the I/W states. Packing is only legal before the first run.
	ErrJobNotPackable = errors.New("job cannot accept actions")
)
