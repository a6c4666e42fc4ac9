package job

import "time"

// Job is one input-file-to-output-file unit of work. Jobs are created by a
// discovery pass and never mutated afterwards.
type Job struct {
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
	OriginRoot string `json:"origin_root"`
}

// Batch is the ordered set of jobs produced by one discovery pass.
type Batch struct {
	ID         string    `json:"id"`
	Jobs       []Job     `json:"jobs"`
	TargetRoot string    `json:"target_root,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Total returns the number of jobs in the batch.
func (b Batch) Total() int { return len(b.Jobs) }

// SameLocation reports whether outputs are written beside their inputs.
func (b Batch) SameLocation() bool { return b.TargetRoot == "" }

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
)

// Terminal reports whether no further transition happens without a new start.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped
}

// Outcome is the settled result of running one job. A nil Err means the
// transformation succeeded; LogErr is independent of Err.
type Outcome struct {
	Job      Job
	BaseName string
	Err      error
	LogErr   error
	Duration time.Duration
}

// Succeeded reports whether the transformation succeeded.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Snapshot is a point-in-time, read-only view of a run's progress.
type Snapshot struct {
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	LogError   string    `json:"log_error,omitempty"`
}

// Percent returns the completion ratio in the range [0, 100].
func (s Snapshot) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Elapsed returns the run duration so far, or the final duration once terminal.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.FinishedAt.IsZero() {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
