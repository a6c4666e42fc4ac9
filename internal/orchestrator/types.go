package orchestrator

import (
	"time"

	"batchocr/internal/job"
)

type FileState string

const (
	FilePending FileState = "pending"
	FileOK      FileState = "ok"
	FileFailed  FileState = "failed"
	// FileStopped is a job killed by a hard stop before it finished.
	FileStopped FileState = "stopped"
)

type FileRef struct {
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	State    FileState     `json:"state"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Result returns where the transformed file ends up once the job succeeds.
// In same-location mode the original is replaced, so that is the input path.
func (f FileRef) Result(sameLocation bool) string {
	if sameLocation {
		return f.Input
	}
	return f.Output
}

// Run is the persisted record of one started batch.
type Run struct {
	ID           string    `json:"id"`
	BatchID      string    `json:"batch_id"`
	State        job.State `json:"state"`
	Total        int       `json:"total"`
	Completed    int       `json:"completed"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	TargetRoot   string    `json:"target_root,omitempty"`
	SameLocation bool      `json:"same_location"`
	LogPath      string    `json:"log_path,omitempty"`
	LogError     string    `json:"log_error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	Files        []FileRef `json:"files"`
	ArchivePath  string    `json:"archive_path,omitempty"`
}

// Snapshot converts the record to the progress view used for finished runs.
func (r *Run) Snapshot() job.Snapshot {
	return job.Snapshot{
		RunID:      r.ID,
		State:      r.State,
		Total:      r.Total,
		Completed:  r.Completed,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		LogError:   r.LogError,
	}
}

func (r *Run) clone() Run {
	c := *r
	c.Files = append([]FileRef(nil), r.Files...)
	return c
}

func (r *Run) apply(s job.Snapshot) {
	r.State = s.State
	r.Completed = s.Completed
	r.Succeeded = s.Succeeded
	r.Failed = s.Failed
	r.FinishedAt = s.FinishedAt
	r.LogError = s.LogError
}

func newRun(id string, batch job.Batch, logPath string, startedAt time.Time) *Run {
	files := make([]FileRef, len(batch.Jobs))
	for i, j := range batch.Jobs {
		files[i] = FileRef{Input: j.InputPath, Output: j.OutputPath, State: FilePending}
	}
	return &Run{
		ID:           id,
		BatchID:      batch.ID,
		State:        job.StateRunning,
		Total:        batch.Total(),
		TargetRoot:   batch.TargetRoot,
		SameLocation: batch.SameLocation(),
		LogPath:      logPath,
		StartedAt:    startedAt,
		Files:        files,
	}
}
