package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"batchocr/internal/job"
)

var stateCodes = []job.State{job.StateIdle, job.StateRunning, job.StateStopping, job.StateCompleted, job.StateStopped}

func stateCode(s job.State) int32 {
	for i, st := range stateCodes {
		if st == s {
			return int32(i)
		}
	}
	return 0
}

// Handle is a submitted run. All methods are safe for concurrent use.
type Handle struct {
	id        string
	total     int
	startedAt time.Time

	state      atomic.Int32
	completed  atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	finishedAt atomic.Int64
	logErr     atomic.Pointer[error]

	stopOnce sync.Once
	stopCh   chan struct{}
	kill     context.CancelFunc
	done     chan struct{}
}

func newHandle(id string, total int) *Handle {
	h := &Handle{
		id:        id,
		total:     total,
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		kill:      func() {},
	}
	h.state.Store(stateCode(job.StateRunning))
	return h
}

// ID returns the run identifier.
func (h *Handle) ID() string { return h.id }

// Cancel stops dispatching: no job that has not started yet will begin.
// In-flight jobs run to completion.
func (h *Handle) Cancel() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.state.CompareAndSwap(stateCode(job.StateRunning), stateCode(job.StateStopping))
}

// Terminate cancels and additionally aborts in-flight jobs. Outputs of
// aborted jobs may be left partially written.
func (h *Handle) Terminate() {
	h.Cancel()
	h.kill()
}

// Done is closed once the run reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run is terminal or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current progress. The state is read before the
// counters, so a terminal state is always paired with final counters.
func (h *Handle) Snapshot() job.Snapshot {
	state := stateCodes[h.state.Load()]
	snap := job.Snapshot{
		RunID:     h.id,
		State:     state,
		Total:     h.total,
		Completed: int(h.completed.Load()),
		Succeeded: int(h.succeeded.Load()),
		Failed:    int(h.failed.Load()),
		StartedAt: h.startedAt,
	}
	if state.Terminal() {
		snap.FinishedAt = time.Unix(0, h.finishedAt.Load())
	}
	if errp := h.logErr.Load(); errp != nil {
		snap.LogError = (*errp).Error()
	}
	return snap
}

func (h *Handle) stopRequested() bool {
	select {
	case <-h.stopCh:
		return true
	default:
		return false
	}
}
