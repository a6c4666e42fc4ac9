// Package completion implements the append-only completion log: one line
// per successfully processed file, "<timestamp> - <relative path>".
package completion

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampLayout is the timestamp format written at the start of each line.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	separator   = " - "
	logFilePerm = 0o644
)

// Record is one completed job.
type Record struct {
	Timestamp    time.Time
	RelativePath string
}

// NewRecord derives the display-relative path of inputPath against originRoot.
func NewRecord(inputPath, originRoot string, at time.Time) Record {
	rel, err := filepath.Rel(originRoot, inputPath)
	if err != nil || originRoot == "" {
		rel = inputPath
	}
	return Record{Timestamp: at, RelativePath: rel}
}

// Line formats the record as a newline-terminated log line.
func (r Record) Line() string {
	return r.Timestamp.Format(TimestampLayout) + separator + r.RelativePath + "\n"
}

// IOError is returned when a record could not be appended.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("completion log %s: %v", e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Log serializes appends from concurrent workers to a single file. A
// disabled log accepts appends and writes nothing.
type Log struct {
	mu      sync.Mutex
	path    string
	enabled bool
	now     func() time.Time
}

// New returns a log writing to path when enabled is true.
func New(path string, enabled bool) *Log {
	return &Log{path: path, enabled: enabled && path != "", now: time.Now}
}

// Path returns the destination file.
func (l *Log) Path() string { return l.path }

// Enabled reports whether appends reach the file.
func (l *Log) Enabled() bool { return l.enabled }

// Append records a finished job relative to originRoot.
func (l *Log) Append(inputPath, originRoot string) error {
	if !l.enabled {
		return nil
	}
	return l.AppendRecord(NewRecord(inputPath, originRoot, l.now()))
}

// AppendRecord writes one record. Formatting and the open-append-close cycle
// happen under the same lock so lines never interleave.
func (l *Log) AppendRecord(rec Record) error {
	if !l.enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	line := rec.Line()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerm) //nolint:gosec // path derived from operator config
	if err != nil {
		return &IOError{Path: l.path, Err: err}
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return &IOError{Path: l.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Path: l.path, Err: err}
	}
	return nil
}
