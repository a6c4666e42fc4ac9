package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"batchocr/internal/archive"
)

// ExportArchive zips the successful outputs of a finished run under the
// run's data directory and returns the archive path.
func (m *Manager) ExportArchive(ctx context.Context, runID string) (string, error) {
	m.mu.RLock()
	run, ok := m.runs[runID]
	_, active := m.live[runID]
	var paths []string
	if ok && !active {
		for _, f := range run.Files {
			if f.State == FileOK {
				paths = append(paths, f.Result(run.SameLocation))
			}
		}
	}
	builder := m.buildArchive
	m.mu.RUnlock()

	switch {
	case !ok:
		return "", ErrRunNotFound
	case active:
		return "", ErrRunNotFinished
	case len(paths) == 0:
		return "", ErrNoOutputs
	}
	if builder == nil {
		builder = archive.BuildArchive
	}

	dest := m.store.ArchivePath(runID)
	results, err := builder(ctx, dest, paths)
	if err != nil {
		return "", fmt.Errorf("build archive: %w", err)
	}
	for _, res := range results {
		if res.Err != "" {
			log.Warn().Str("run_id", runID).Str("path", res.Path).Str("error", res.Err).Msg("output left out of archive")
		}
	}

	m.mu.Lock()
	run.ArchivePath = dest
	record := run.clone()
	m.mu.Unlock()
	if err := m.store.SaveRun(context.Background(), &record); err != nil {
		log.Warn().Str("run_id", runID).Err(err).Msg("persist archive path failed")
	}
	return dest, nil
}
