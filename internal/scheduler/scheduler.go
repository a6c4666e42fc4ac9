// Package scheduler dispatches a batch of jobs onto a fixed pool of workers,
// folds per-job outcomes into run progress and supports cooperative and hard
// cancellation.
//
// Workers report outcomes over a channel to a single coordinator goroutine,
// which is the only writer of a run's counters. Readers take snapshots
// without locking.
package scheduler

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"batchocr/internal/job"
)

// Worker runs one job to a settled outcome. Implementations must not panic.
type Worker interface {
	Run(ctx context.Context, j job.Job) job.Outcome
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, j job.Job) job.Outcome

func (f WorkerFunc) Run(ctx context.Context, j job.Job) job.Outcome { return f(ctx, j) }

// Options configures a Scheduler.
type Options struct {
	// Workers caps the pool size; zero means one worker per logical CPU.
	Workers int
	// OnOutcome, when set, is called from the coordinator goroutine once per
	// settled job, in completion order.
	OnOutcome func(runID string, o job.Outcome)
}

// Scheduler owns pool sizing and the worker implementation.
type Scheduler struct {
	workers   int
	worker    Worker
	onOutcome func(string, job.Outcome)
}

// New creates a scheduler that runs jobs with worker.
func New(worker Worker, opts Options) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scheduler{workers: workers, worker: worker, onOutcome: opts.OnOutcome}
}

// Workers returns the configured pool size.
func (s *Scheduler) Workers() int { return s.workers }

// Submit starts running the batch and returns immediately. Cancelling ctx
// is equivalent to Handle.Terminate.
func (s *Scheduler) Submit(ctx context.Context, runID string, batch job.Batch) *Handle {
	total := batch.Total()
	h := newHandle(runID, total)

	workCtx, kill := context.WithCancel(context.WithoutCancel(ctx))
	h.kill = kill
	stopOnParent := context.AfterFunc(ctx, h.Terminate)

	poolSize := min(s.workers, max(total, 1))
	jobs := make(chan job.Job)
	results := make(chan job.Outcome, poolSize)

	log.Info().Str("run_id", runID).Int("total", total).Int("workers", poolSize).Msg("run started")

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for _, j := range batch.Jobs {
			select {
			case <-h.stopCh:
				return nil
			case jobs <- j:
			}
		}
		return nil
	})
	for i := 0; i < poolSize; i++ {
		g.Go(func() error {
			for j := range jobs {
				if h.stopRequested() {
					continue
				}
				results <- s.worker.Run(workCtx, j)
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	go func() {
		defer stopOnParent()
		defer kill()
		s.coordinate(h, results)
	}()
	return h
}

// coordinate is the sole mutator of the handle's counters and final state.
func (s *Scheduler) coordinate(h *Handle, results <-chan job.Outcome) {
	natural := h.total == 0
	var completed, succeeded, failed int64
	for o := range results {
		completed++
		if o.Succeeded() {
			succeeded++
		} else {
			failed++
		}
		h.succeeded.Store(succeeded)
		h.failed.Store(failed)
		h.completed.Store(completed)

		if o.LogErr != nil {
			logErr := o.LogErr
			if h.logErr.CompareAndSwap(nil, &logErr) {
				log.Error().Err(logErr).Str("run_id", h.id).Msg("completion log append failed")
			}
		}
		if s.onOutcome != nil {
			s.onOutcome(h.id, o)
		}
		if int(completed) == h.total {
			natural = !h.stopRequested()
		}
	}

	final := job.StateStopped
	if natural {
		final = job.StateCompleted
	}
	h.finishedAt.Store(time.Now().UnixNano())
	h.state.Store(stateCode(final))
	close(h.done)

	log.Info().
		Str("run_id", h.id).
		Str("state", string(final)).
		Int64("completed", completed).
		Int64("failed", failed).
		Int("total", h.total).
		Msg("run finished")
}
