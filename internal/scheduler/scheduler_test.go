package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchocr/internal/completion"
	"batchocr/internal/job"
	"batchocr/internal/ocr"
)

func makeBatch(n int) job.Batch {
	b := job.Batch{ID: "batch"}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("f%02d.pdf", i)
		b.Jobs = append(b.Jobs, job.Job{InputPath: "/in/" + name, OutputPath: "/out/" + name, OriginRoot: "/in"})
	}
	return b
}

func waitDone(t *testing.T, h *Handle) job.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx), "run did not reach a terminal state")
	return h.Snapshot()
}

func TestAccountingWithMixedOutcomes(t *testing.T) {
	const n = 57
	var mu sync.Mutex
	seen := make(map[string]int)

	worker := WorkerFunc(func(_ context.Context, j job.Job) job.Outcome {
		time.Sleep(time.Duration(len(j.InputPath)%3) * time.Millisecond)
		o := job.Outcome{Job: j, BaseName: filepath.Base(j.InputPath)}
		if filepath.Base(j.InputPath)[2]%2 == 0 {
			o.Err = errors.New("simulated")
		}
		return o
	})
	s := New(worker, Options{Workers: 4, OnOutcome: func(_ string, o job.Outcome) {
		mu.Lock()
		seen[o.Job.InputPath]++
		mu.Unlock()
	}})

	snap := waitDone(t, s.Submit(context.Background(), "run-1", makeBatch(n)))

	assert.Equal(t, job.StateCompleted, snap.State)
	assert.Equal(t, n, snap.Total)
	assert.Equal(t, n, snap.Completed)
	assert.Equal(t, n, snap.Succeeded+snap.Failed)
	assert.Positive(t, snap.Failed)
	assert.False(t, snap.FinishedAt.IsZero())
	require.Len(t, seen, n)
	for path, count := range seen {
		assert.Equal(t, 1, count, "outcome for %s observed %d times", path, count)
	}
}

func TestFailureAndSuccessWithRealRunner(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "in", "good.pdf")
	bad := filepath.Join(dir, "in", "bad.pdf")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "in"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out"), 0o755))
	require.NoError(t, os.WriteFile(good, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o600))

	engine := transformFunc(func(_ context.Context, in, out string, _ ocr.Options) error {
		if in == bad {
			return errors.New("always fails")
		}
		return os.WriteFile(out, []byte("ok"), 0o600)
	})
	logPath := filepath.Join(dir, "out", "ocr_log.txt")
	runner := ocr.NewRunner(engine, ocr.Options{}, completion.New(logPath, true))

	batch := job.Batch{Jobs: []job.Job{
		{InputPath: bad, OutputPath: filepath.Join(dir, "out", "bad.pdf"), OriginRoot: filepath.Join(dir, "in")},
		{InputPath: good, OutputPath: filepath.Join(dir, "out", "good.pdf"), OriginRoot: filepath.Join(dir, "in")},
	}}
	snap := waitDone(t, New(runner, Options{Workers: 2}).Submit(context.Background(), "run-c", batch))

	assert.Equal(t, job.StateCompleted, snap.State)
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 1, snap.Failed)
	entries, err := completion.ReadFile(logPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good.pdf", entries[0].Path)
}

type transformFunc func(ctx context.Context, in, out string, opts ocr.Options) error

func (f transformFunc) Transform(ctx context.Context, in, out string, opts ocr.Options) error {
	return f(ctx, in, out, opts)
}

func TestCancelStopsNewJobsAndLetsInFlightFinish(t *testing.T) {
	const workers = 2
	gate := make(chan struct{})
	var started atomic.Int32
	worker := WorkerFunc(func(_ context.Context, j job.Job) job.Outcome {
		started.Add(1)
		<-gate
		return job.Outcome{Job: j}
	})

	h := New(worker, Options{Workers: workers}).Submit(context.Background(), "run-d", makeBatch(10))
	require.Eventually(t, func() bool { return started.Load() == workers }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 0, h.Snapshot().Completed)

	h.Cancel()
	assert.Equal(t, job.StateStopping, h.Snapshot().State)
	close(gate)

	snap := waitDone(t, h)
	assert.Equal(t, job.StateStopped, snap.State)
	assert.Equal(t, int32(workers), started.Load(), "no job may start after Cancel")
	assert.Equal(t, workers, snap.Completed)
	assert.LessOrEqual(t, snap.Completed, snap.Total)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, snap, h.Snapshot(), "terminal snapshot must be stable")
}

func TestTerminateAbortsInFlightJobs(t *testing.T) {
	var started atomic.Int32
	worker := WorkerFunc(func(ctx context.Context, j job.Job) job.Outcome {
		started.Add(1)
		<-ctx.Done()
		return job.Outcome{Job: j, Err: ctx.Err()}
	})

	h := New(worker, Options{Workers: 3}).Submit(context.Background(), "run-t", makeBatch(10))
	require.Eventually(t, func() bool { return started.Load() == 3 }, 2*time.Second, time.Millisecond)

	h.Terminate()
	snap := waitDone(t, h)
	assert.Equal(t, job.StateStopped, snap.State)
	assert.Equal(t, 3, snap.Completed)
	assert.Equal(t, 3, snap.Failed)
}

func TestTerminateWithEveryJobInFlightIsStopped(t *testing.T) {
	var started atomic.Int32
	worker := WorkerFunc(func(ctx context.Context, j job.Job) job.Outcome {
		started.Add(1)
		<-ctx.Done()
		return job.Outcome{Job: j, Err: ctx.Err()}
	})

	h := New(worker, Options{Workers: 4}).Submit(context.Background(), "run-all", makeBatch(4))
	require.Eventually(t, func() bool { return started.Load() == 4 }, 2*time.Second, time.Millisecond)

	h.Terminate()
	snap := waitDone(t, h)
	assert.Equal(t, 4, snap.Completed)
	assert.Equal(t, job.StateStopped, snap.State, "a stop before natural completion is reported as stopped")
}

func TestParentContextCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	worker := WorkerFunc(func(ctx context.Context, j job.Job) job.Outcome {
		<-ctx.Done()
		return job.Outcome{Job: j, Err: ctx.Err()}
	})
	h := New(worker, Options{Workers: 2}).Submit(ctx, "run-p", makeBatch(6))
	cancel()

	snap := waitDone(t, h)
	assert.Equal(t, job.StateStopped, snap.State)
	assert.LessOrEqual(t, snap.Completed, 2)
}

func TestPoolNeverExceedsWorkers(t *testing.T) {
	var running, peak atomic.Int32
	worker := WorkerFunc(func(_ context.Context, j job.Job) job.Outcome {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return job.Outcome{Job: j}
	})

	s := New(worker, Options{Workers: 3})
	assert.Equal(t, 3, s.Workers())
	waitDone(t, s.Submit(context.Background(), "run-peak", makeBatch(30)))
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestSnapshotsAreMonotonic(t *testing.T) {
	worker := WorkerFunc(func(_ context.Context, j job.Job) job.Outcome {
		time.Sleep(time.Millisecond)
		return job.Outcome{Job: j}
	})
	h := New(worker, Options{Workers: 4}).Submit(context.Background(), "run-m", makeBatch(40))

	last := 0
	for {
		snap := h.Snapshot()
		require.GreaterOrEqual(t, snap.Completed, last)
		require.LessOrEqual(t, snap.Completed, snap.Total)
		last = snap.Completed
		if snap.State.Terminal() {
			assert.Equal(t, 40, snap.Completed)
			return
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func TestEmptyBatchCompletes(t *testing.T) {
	h := New(WorkerFunc(func(_ context.Context, j job.Job) job.Outcome { return job.Outcome{Job: j} }), Options{}).
		Submit(context.Background(), "run-empty", job.Batch{})
	snap := waitDone(t, h)
	assert.Equal(t, job.StateCompleted, snap.State)
	assert.Zero(t, snap.Total)
}

func TestLogErrorSurfacedOnce(t *testing.T) {
	worker := WorkerFunc(func(_ context.Context, j job.Job) job.Outcome {
		return job.Outcome{Job: j, LogErr: errors.New("disk full")}
	})
	snap := waitDone(t, New(worker, Options{Workers: 2}).Submit(context.Background(), "run-log", makeBatch(5)))
	assert.Equal(t, job.StateCompleted, snap.State)
	assert.Equal(t, 5, snap.Succeeded)
	assert.Equal(t, "disk full", snap.LogError)
}
