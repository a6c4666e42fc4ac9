// Package orchestrator is the facade used by the HTTP API and the headless
// command: it discovers batches, starts at most one run at a time, tracks
// per-file status and persists run records.
package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"batchocr/internal/archive"
	"batchocr/internal/completion"
	"batchocr/internal/config"
	"batchocr/internal/discover"
	fileutil "batchocr/internal/file"
	"batchocr/internal/job"
	"batchocr/internal/ocr"
	"batchocr/internal/scheduler"
)

const (
	defaultBatchTTL   = time.Hour
	defaultMaxBatches = 32
)

type archiveBuilder func(ctx context.Context, destZipPath string, paths []string) ([]archive.Result, error)

// liveRun is the in-process side of a run that has not been finalized yet.
type liveRun struct {
	handle    *scheduler.Handle
	pending   map[job.Job][]int
	finalized chan struct{}
}

// Manager owns discovered batches, run records and the active run.
type Manager struct {
	mu           sync.RWMutex
	cfg          config.Config
	engine       ocr.Transformer
	batches      map[string]job.Batch
	batchTTL     time.Duration
	maxBatches   int
	runs         map[string]*Run
	live         map[string]*liveRun
	activeID     string
	buildArchive archiveBuilder
	workersWG    sync.WaitGroup
	baseCtx      context.Context
	store        RunStore
}

// NewManager creates a manager that runs the OCRmyPDF binary named in cfg.
func NewManager(cfg config.Config) *Manager {
	return &Manager{
		cfg:          cfg,
		engine:       ocr.NewOCRmyPDF(cfg.OCR.Binary),
		batches:      make(map[string]job.Batch),
		batchTTL:     defaultBatchTTL,
		maxBatches:   defaultMaxBatches,
		runs:         make(map[string]*Run),
		live:         make(map[string]*liveRun),
		buildArchive: archive.BuildArchive,
		baseCtx:      context.Background(),
		store:        NewFileStore(cfg.DataDir),
	}
}

// Config returns the configuration the manager was built with.
func (m *Manager) Config() config.Config { return m.cfg }

// UseTransformer replaces the recognition engine for runs started afterwards.
func (m *Manager) UseTransformer(t ocr.Transformer) {
	m.mu.Lock()
	m.engine = t
	m.mu.Unlock()
}

// UseArchiveBuilder allows tests to inject a fake archive builder.
func (m *Manager) UseArchiveBuilder(builder archiveBuilder) {
	m.mu.Lock()
	m.buildArchive = builder
	m.mu.Unlock()
}

// SetBaseContext sets the context runs are submitted under. Cancelling it
// terminates the active run.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// Discover maps the request to a batch and keeps it until it is started.
// Unstarted batches expire after batchTTL, and the oldest is dropped once
// maxBatches are cached.
func (m *Manager) Discover(req discover.Request) (job.Batch, error) {
	batch, err := discover.Discover(req)
	if err != nil {
		return job.Batch{}, err //nolint:wrapcheck
	}
	m.mu.Lock()
	m.pruneBatches(batch.CreatedAt)
	m.batches[batch.ID] = batch
	m.mu.Unlock()
	return batch, nil
}

// DiscardBatch forgets a batch that will not be started.
func (m *Manager) DiscardBatch(batchID string) {
	m.mu.Lock()
	delete(m.batches, batchID)
	m.mu.Unlock()
}

// pruneBatches must be called with m.mu held.
func (m *Manager) pruneBatches(now time.Time) {
	for id, b := range m.batches {
		if m.batchTTL > 0 && now.Sub(b.CreatedAt) > m.batchTTL {
			delete(m.batches, id)
		}
	}
	for m.maxBatches > 0 && len(m.batches) >= m.maxBatches {
		oldestID := ""
		var oldest time.Time
		for id, b := range m.batches {
			if oldestID == "" || b.CreatedAt.Before(oldest) {
				oldestID, oldest = id, b.CreatedAt
			}
		}
		log.Debug().Str("batch_id", oldestID).Msg("dropping unstarted batch")
		delete(m.batches, oldestID)
	}
}

// DiscoverFromConfig runs discovery with the sources of the loaded config.
func (m *Manager) DiscoverFromConfig() (job.Batch, error) {
	return m.Discover(discover.RequestFromConfig(m.cfg))
}

// Batch returns a discovered batch that has not been started yet.
func (m *Manager) Batch(batchID string) (job.Batch, bool) {
	m.mu.RLock()
	b, ok := m.batches[batchID]
	m.mu.RUnlock()
	return b, ok
}

// IsBusy reports whether a run is in progress.
func (m *Manager) IsBusy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID != ""
}

// Start consumes a discovered batch and submits it to a fresh worker pool.
func (m *Manager) Start(batchID string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeID != "" {
		return Run{}, ErrRunActive
	}
	batch, ok := m.batches[batchID]
	if !ok {
		return Run{}, ErrBatchNotFound
	}
	delete(m.batches, batchID)

	runID := uuid.NewString()
	logPath := m.logPath(batch)
	run := newRun(runID, batch, logPath, time.Now())
	m.runs[runID] = run
	m.activeID = runID

	if err := m.store.SaveRun(context.Background(), run); err != nil {
		log.Warn().Str("run_id", runID).Err(err).Msg("persist run failed")
	}
	if m.cfg.LogEnabled && batch.SameLocation() {
		if err := fileutil.EnsureDir(filepath.Dir(logPath)); err != nil {
			log.Warn().Str("run_id", runID).Err(err).Msg("ensure log dir failed")
		}
	}

	runner := ocr.NewRunner(m.engine, ocr.OptionsFromConfig(m.cfg), completion.New(logPath, m.cfg.LogEnabled))
	sched := scheduler.New(runner, scheduler.Options{
		Workers:   m.cfg.Workers(),
		OnOutcome: m.recordOutcome,
	})

	lr := &liveRun{pending: make(map[job.Job][]int, len(batch.Jobs)), finalized: make(chan struct{})}
	for i, j := range batch.Jobs {
		lr.pending[j] = append(lr.pending[j], i)
	}
	// recordOutcome takes m.mu, so no outcome lands before lr is registered.
	lr.handle = sched.Submit(m.baseCtx, runID, batch)
	m.live[runID] = lr

	log.Info().Str("run_id", runID).Str("batch_id", batch.ID).Int("total", batch.Total()).
		Int("workers", sched.Workers()).Str("log", logPath).Msg("batch started")

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.finalize(runID, lr)
	}()
	return run.clone(), nil
}

// logPath is target_root/<name>, or data_dir/<name> when outputs sit next
// to their inputs.
func (m *Manager) logPath(batch job.Batch) string {
	if batch.SameLocation() {
		return filepath.Join(m.cfg.DataDir, m.cfg.LogFileName)
	}
	return filepath.Join(batch.TargetRoot, m.cfg.LogFileName)
}

func (m *Manager) recordOutcome(runID string, o job.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lr, run := m.live[runID], m.runs[runID]
	if lr == nil || run == nil {
		return
	}
	idxs := lr.pending[o.Job]
	if len(idxs) == 0 {
		return
	}
	lr.pending[o.Job] = idxs[1:]
	f := &run.Files[idxs[0]]
	f.Duration = o.Duration
	if o.Succeeded() {
		f.State = FileOK
		return
	}
	f.State = FileFailed
	if errors.Is(o.Err, job.ErrStopped) {
		f.State = FileStopped
	}
	f.Error = o.Err.Error()
}

func (m *Manager) finalize(runID string, lr *liveRun) {
	<-lr.handle.Done()
	snap := lr.handle.Snapshot()

	m.mu.Lock()
	run := m.runs[runID]
	run.apply(snap)
	record := run.clone()
	delete(m.live, runID)
	if m.activeID == runID {
		m.activeID = ""
	}
	m.mu.Unlock()

	if err := m.store.SaveRun(context.Background(), &record); err != nil {
		log.Warn().Str("run_id", runID).Err(err).Msg("persist final state failed")
	}
	log.Info().Str("run_id", runID).Str("state", string(snap.State)).
		Int("completed", snap.Completed).Int("total", snap.Total).
		Int("failed", snap.Failed).Msg("batch finished")
	close(lr.finalized)
}

// Stop requests a cooperative stop of the run. Jobs already in flight get
// the configured grace period before their processes are killed.
func (m *Manager) Stop(runID string) error {
	m.mu.RLock()
	lr := m.live[runID]
	_, known := m.runs[runID]
	m.mu.RUnlock()
	if lr == nil {
		if !known {
			return ErrRunNotFound
		}
		return ErrRunNotActive
	}

	h := lr.handle
	h.Cancel()
	log.Info().Str("run_id", runID).Dur("grace", m.cfg.StopGracePeriod).Msg("stop requested")
	if m.cfg.StopGracePeriod <= 0 {
		h.Terminate()
		return nil
	}
	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		timer := time.NewTimer(m.cfg.StopGracePeriod)
		defer timer.Stop()
		select {
		case <-h.Done():
		case <-timer.C:
			log.Warn().Str("run_id", runID).Msg("grace period elapsed, terminating jobs")
			h.Terminate()
		}
	}()
	return nil
}

// Terminate cancels the run and kills in-flight jobs immediately.
func (m *Manager) Terminate(runID string) error {
	m.mu.RLock()
	lr := m.live[runID]
	_, known := m.runs[runID]
	m.mu.RUnlock()
	if lr == nil {
		if !known {
			return ErrRunNotFound
		}
		return ErrRunNotActive
	}
	lr.handle.Terminate()
	return nil
}

// StopAll stops every run that is still live.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		_ = m.Stop(id)
	}
}

// Snapshot returns the live progress of a run, or its recorded final state.
func (m *Manager) Snapshot(runID string) (job.Snapshot, error) {
	m.mu.RLock()
	lr := m.live[runID]
	run := m.runs[runID]
	var snap job.Snapshot
	if run != nil {
		snap = run.Snapshot()
	}
	m.mu.RUnlock()
	if lr != nil {
		return lr.handle.Snapshot(), nil
	}
	if run == nil {
		return job.Snapshot{}, ErrRunNotFound
	}
	return snap, nil
}

// GetRun returns a copy of the run record with live counters applied.
func (m *Manager) GetRun(runID string) (Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return Run{}, false
	}
	c := run.clone()
	if lr := m.live[runID]; lr != nil {
		c.apply(lr.handle.Snapshot())
	}
	return c, true
}

// ListRuns returns every known run, newest first.
func (m *Manager) ListRuns() []Run {
	m.mu.RLock()
	out := make([]Run, 0, len(m.runs))
	for id, run := range m.runs {
		c := run.clone()
		if lr := m.live[id]; lr != nil {
			c.apply(lr.handle.Snapshot())
		}
		out = append(out, c)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// Wait blocks until the run is finalized and persisted, or ctx is done.
func (m *Manager) Wait(ctx context.Context, runID string) error {
	m.mu.RLock()
	lr := m.live[runID]
	_, known := m.runs[runID]
	m.mu.RUnlock()
	if lr == nil {
		if !known {
			return ErrRunNotFound
		}
		return nil
	}
	select {
	case <-lr.finalized:
		return nil
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck
	}
}

// WaitAll blocks until all in-flight runs and stop timers finish or the
// context is done. Returns true if everything finished.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// LogEntries reads the completion log the run appended to.
func (m *Manager) LogEntries(runID string) ([]completion.Entry, error) {
	m.mu.RLock()
	run, ok := m.runs[runID]
	var path string
	if ok {
		path = run.LogPath
	}
	m.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	if path == "" {
		return nil, nil
	}
	return completion.ReadFile(path) //nolint:wrapcheck
}
