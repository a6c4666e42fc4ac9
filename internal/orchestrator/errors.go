package orchestrator

import "errors"

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrBatchNotFound  = errors.New("batch not found")
	ErrRunActive      = errors.New("a run is already active")
	ErrRunNotActive   = errors.New("run is not active")
	ErrRunNotFinished = errors.New("run has not finished")
	ErrNoOutputs      = errors.New("run produced no outputs")
)
