package job

import "errors"

var (
	// ErrNoJobs is the DiscoveryError condition: nothing resolved to an existing input file.
	ErrNoJobs = errors.New("no input files found")
	// ErrStopped marks a job whose transformation was aborted by a hard stop.
	ErrStopped = errors.New("run stopped")
)
