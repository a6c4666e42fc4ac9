package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"batchocr/internal/job"
)

// LoadFromDisk restores run records persisted by earlier processes. A run
// left running or stopping was interrupted and is recorded as stopped.
func (m *Manager) LoadFromDisk() error {
	if m.store == nil {
		return nil
	}
	loaded, err := m.store.LoadRuns(context.Background())
	if err != nil {
		return fmt.Errorf("load runs: %w", err)
	}
	for _, r := range loaded {
		if !r.State.Terminal() {
			r.State = job.StateStopped
			if err := m.store.SaveRun(context.Background(), r); err != nil {
				log.Warn().Str("run_id", r.ID).Err(err).Msg("persist interrupted run failed")
			}
		}
		m.mu.Lock()
		if _, exists := m.runs[r.ID]; !exists {
			m.runs[r.ID] = r
		}
		m.mu.Unlock()
	}
	return nil
}
