package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	fileutil "batchocr/internal/file"
)

// RunStore abstracts persistence of run records and archive locations.
type RunStore interface {
	SaveRun(ctx context.Context, r *Run) error
	LoadRuns(ctx context.Context) ([]*Run, error)
	ArchivePath(runID string) string
}

// fileStore keeps one status.json per run under dataDir/runs/<id>.
type fileStore struct {
	dataDir string
}

func NewFileStore(dataDir string) RunStore { //nolint:ireturn
	if dataDir == "" {
		dataDir = "data"
	}
	return &fileStore{dataDir: dataDir}
}

func (s *fileStore) runDir(runID string) string {
	return filepath.Join(s.dataDir, "runs", runID)
}

func (s *fileStore) statusPath(runID string) string {
	return filepath.Join(s.runDir(runID), "status.json")
}

func (s *fileStore) ArchivePath(runID string) string {
	return filepath.Join(s.runDir(runID), "outputs.zip")
}

func (s *fileStore) SaveRun(_ context.Context, r *Run) error {
	if err := fileutil.EnsureDir(s.runDir(r.ID)); err != nil {
		return fmt.Errorf("ensure run dir: %w", err)
	}
	return fileutil.WriteJSONAtomic(s.statusPath(r.ID), r) //nolint:wrapcheck
}

func (s *fileStore) LoadRuns(_ context.Context) ([]*Run, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	runs := make([]*Run, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(s.statusPath(e.Name())) //nolint:gosec // path is controlled by application
		if err != nil {
			continue
		}
		var r Run
		if err := json.Unmarshal(b, &r); err != nil {
			continue
		}
		runs = append(runs, &r)
	}
	return runs, nil
}
