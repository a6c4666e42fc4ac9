package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"batchocr/internal/config"
)

const (
	stderrTailBytes = 4 << 10
	// killWaitDelay bounds how long Wait blocks on pipes held open after a kill.
	killWaitDelay = 2 * time.Second
)

// Options is the small option set handed to the recognition engine.
type Options struct {
	Deskew     bool
	ForceOCR   bool
	Oversample int
	Language   string
	Optimize   int
	Jobs       int
	ExtraArgs  []string
}

// JobsPerTask trades intra-job parallelism against pool parallelism.
func JobsPerTask(internalParallelism bool) int {
	if internalParallelism {
		return 4
	}
	return 1
}

// OptionsFromConfig builds engine options from the loaded configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Deskew:     cfg.OCR.Deskew,
		ForceOCR:   cfg.OCR.ForceOCR,
		Oversample: cfg.OCR.Oversample,
		Language:   cfg.OCR.Language,
		Optimize:   cfg.OCR.Optimize,
		Jobs:       JobsPerTask(cfg.InternalParallelism),
		ExtraArgs:  cfg.OCR.ExtraArgs,
	}
}

// Transformer is the external recognition pass: it reads input and writes
// a recognized document to output, or fails.
type Transformer interface {
	Transform(ctx context.Context, input, output string, opts Options) error
}

// TransformError describes a failed engine invocation.
type TransformError struct {
	Input    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TransformError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ocr %s: exit %d: %v", e.Input, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("ocr %s: exit %d: %v: %s", e.Input, e.ExitCode, e.Err, e.Stderr)
}

func (e *TransformError) Unwrap() error { return e.Err }

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, exitCode int, err error)
}

// execRunner executes the engine as a child process in its own process group.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = killWaitDelay
	detachFromTerminalSignals(cmd)

	err := cmd.Run()
	if err == nil {
		return stderr.String(), 0, nil
	}
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return stderr.String(), exitCode, err
}

// OCRmyPDF runs the ocrmypdf command line tool.
type OCRmyPDF struct {
	binary string
	runner commandRunner
}

// NewOCRmyPDF returns an engine invoking binary ("ocrmypdf" when empty).
func NewOCRmyPDF(binary string) *OCRmyPDF {
	if binary == "" {
		binary = "ocrmypdf"
	}
	return &OCRmyPDF{binary: binary, runner: execRunner{}}
}

// Args builds the command line for one transformation.
func (o *OCRmyPDF) Args(input, output string, opts Options) []string {
	var args []string
	if opts.Deskew {
		args = append(args, "--deskew")
	}
	if opts.ForceOCR {
		args = append(args, "--force-ocr")
	}
	if opts.Oversample > 0 {
		args = append(args, "--oversample", strconv.Itoa(opts.Oversample))
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	args = append(args, "--optimize", strconv.Itoa(opts.Optimize))
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	args = append(args, "--jobs", strconv.Itoa(jobs))
	args = append(args, opts.ExtraArgs...)
	return append(args, input, output)
}

// Transform runs the engine and blocks until it exits.
func (o *OCRmyPDF) Transform(ctx context.Context, input, output string, opts Options) error {
	stderr, exitCode, err := o.runner.Run(ctx, o.binary, o.Args(input, output, opts)...)
	if err != nil {
		return &TransformError{Input: input, ExitCode: exitCode, Stderr: tail(stderr, stderrTailBytes), Err: err}
	}
	return nil
}

func tail(s string, n int) string {
	s = string(bytes.TrimSpace([]byte(s)))
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
