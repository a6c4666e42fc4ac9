package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	fileutil "batchocr/internal/file"
	"batchocr/internal/job"
)

// CompletionLog receives one append per successful job.
type CompletionLog interface {
	Append(inputPath, originRoot string) error
}

// Runner executes a single job against the engine and settles it into an
// Outcome. It never panics and never returns an error: failures are values.
type Runner struct {
	engine  Transformer
	opts    Options
	log     CompletionLog
	replace func(src, dst string) error
}

// NewRunner wires an engine, its options and the completion log.
func NewRunner(engine Transformer, opts Options, completionLog CompletionLog) *Runner {
	return &Runner{
		engine:  engine,
		opts:    opts,
		log:     completionLog,
		replace: fileutil.ReplaceFile,
	}
}

// Run transforms one job. When output is a sibling of input, the original is
// replaced by the transformed file once the engine succeeds.
func (r *Runner) Run(ctx context.Context, j job.Job) (outcome job.Outcome) {
	started := time.Now()
	outcome = job.Outcome{Job: j, BaseName: filepath.Base(j.InputPath)}
	logger := log.With().Str("input", j.InputPath).Str("output", j.OutputPath).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			outcome.Err = fmt.Errorf("ocr %s: panic: %v", j.InputPath, rec)
			logger.Error().Err(outcome.Err).Msg("transform panicked")
		}
		outcome.Duration = time.Since(started)
	}()

	logger.Info().Msg("processing")
	if err := r.engine.Transform(ctx, j.InputPath, j.OutputPath, r.opts); err != nil {
		if ctx.Err() != nil {
			outcome.Err = fmt.Errorf("%w: %w", job.ErrStopped, err)
			logger.Warn().Err(err).Msg("transform aborted by stop")
			return outcome
		}
		outcome.Err = err
		logger.Warn().Err(err).Msg("transform failed")
		return outcome
	}

	if isSibling(j) {
		if err := r.replace(j.OutputPath, j.InputPath); err != nil {
			outcome.Err = fmt.Errorf("replace original: %w", err)
			logger.Warn().Err(outcome.Err).Msg("finishing same-location output failed")
			return outcome
		}
	}

	if r.log != nil {
		outcome.LogErr = r.log.Append(j.InputPath, j.OriginRoot)
	}
	logger.Info().Dur("took", time.Since(started)).Msg("finished")
	return outcome
}

func isSibling(j job.Job) bool {
	return filepath.Dir(j.InputPath) == filepath.Dir(j.OutputPath) &&
		filepath.Base(j.InputPath) != filepath.Base(j.OutputPath)
}
