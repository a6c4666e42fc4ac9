// Package discover turns source roots or explicit file lists into job
// batches, deriving every output path and creating output directories
// before the batch is returned.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"batchocr/internal/config"
	fileutil "batchocr/internal/file"
	"batchocr/internal/job"
)

// Request describes one discovery pass.
type Request struct {
	Mode       config.Mode
	Sources    []string
	Files      []string
	TargetRoot string
	Recursive  bool
	Extensions []string
	// Suffix is inserted before the extension in same-location mode.
	Suffix string
}

// RequestFromConfig builds a discovery request from the loaded configuration.
func RequestFromConfig(cfg config.Config) Request {
	return Request{
		Mode:       cfg.Mode,
		Sources:    cfg.Sources,
		Files:      cfg.Files,
		TargetRoot: cfg.TargetDir,
		Recursive:  cfg.Recursive,
		Extensions: cfg.Extensions,
		Suffix:     cfg.SameLocationSuffix,
	}
}

// Error is returned when a pass produces no jobs. It matches job.ErrNoJobs.
type Error struct {
	Mode   config.Mode
	Inputs int
}

func (e *Error) Error() string {
	if e.Mode == config.ModeFiles {
		return fmt.Sprintf("discovery: %d listed files, %v", e.Inputs, job.ErrNoJobs)
	}
	return fmt.Sprintf("discovery: %d source roots, %v", e.Inputs, job.ErrNoJobs)
}

func (e *Error) Unwrap() error { return job.ErrNoJobs }

// Discover maps the request to a batch. Missing or non-directory source
// roots are skipped; only an empty overall result is an error. Overlapping
// roots yield duplicate jobs for the same input file.
func Discover(req Request) (job.Batch, error) {
	m, err := newMapper(req)
	if err != nil {
		return job.Batch{}, err
	}

	var jobs []job.Job
	inputs := len(req.Sources)
	if req.Mode == config.ModeFiles {
		inputs = len(req.Files)
		jobs, err = m.explicitFiles(req.Files)
	} else {
		jobs, err = m.folders(req.Sources, req.Recursive)
	}
	if err != nil {
		return job.Batch{}, err
	}
	if len(jobs) == 0 {
		return job.Batch{}, &Error{Mode: m.mode, Inputs: inputs}
	}

	return job.Batch{
		ID:         uuid.NewString(),
		Jobs:       jobs,
		TargetRoot: m.targetRoot,
		CreatedAt:  time.Now(),
	}, nil
}

type mapper struct {
	mode       config.Mode
	targetRoot string
	extensions map[string]struct{}
	suffix     string
}

func newMapper(req Request) (*mapper, error) {
	m := &mapper{
		mode:       req.Mode,
		extensions: make(map[string]struct{}),
		suffix:     req.Suffix,
	}
	if m.mode == "" {
		m.mode = config.ModeFolders
	}
	if m.suffix == "" {
		m.suffix = "_ocr"
	}
	for _, ext := range config.NormalizeExtensions(req.Extensions) {
		m.extensions[ext] = struct{}{}
	}
	if strings.TrimSpace(req.TargetRoot) != "" {
		abs, err := filepath.Abs(req.TargetRoot)
		if err != nil {
			return nil, fmt.Errorf("resolve target root: %w", err)
		}
		m.targetRoot = abs
	}
	return m, nil
}

func (m *mapper) matches(name string) bool {
	_, ok := m.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (m *mapper) folders(sources []string, recursive bool) ([]job.Job, error) {
	var jobs []job.Job
	for _, raw := range sources {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		root, err := filepath.Abs(raw)
		if err != nil || !fileutil.IsDir(root) {
			log.Debug().Str("root", raw).Msg("skipping missing source root")
			continue
		}
		var rootJobs []job.Job
		if recursive {
			rootJobs, err = m.walk(root)
		} else {
			rootJobs, err = m.flat(root)
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, rootJobs...)
	}
	return jobs, nil
}

func (m *mapper) walk(root string) ([]job.Job, error) {
	var jobs []job.Job
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !m.matches(d.Name()) || !fileutil.IsRegular(path) {
			return nil
		}
		relDir, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return fmt.Errorf("relative dir for %s: %w", path, err)
		}
		j, err := m.folderJob(root, relDir, path)
		if err != nil {
			return err
		}
		jobs = append(jobs, j)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (m *mapper) flat(root string) ([]job.Job, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		log.Warn().Err(err).Str("root", root).Msg("skipping unreadable source root")
		return nil, nil
	}
	var jobs []job.Job
	for _, e := range entries {
		path := filepath.Join(root, e.Name())
		if e.IsDir() || !m.matches(e.Name()) || !fileutil.IsRegular(path) {
			continue
		}
		j, err := m.folderJob(root, ".", path)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// folderJob maps root/relDir/name to target/base(root)/relDir/name, or to a
// suffixed sibling when no target root is configured.
func (m *mapper) folderJob(root, relDir, inputPath string) (job.Job, error) {
	name := filepath.Base(inputPath)
	if m.targetRoot == "" {
		return job.Job{
			InputPath:  inputPath,
			OutputPath: SiblingPath(inputPath, m.suffix),
			OriginRoot: root,
		}, nil
	}
	outDir := filepath.Join(m.targetRoot, filepath.Base(root), relDir)
	if err := fileutil.EnsureDir(outDir); err != nil {
		return job.Job{}, fmt.Errorf("create output dir: %w", err)
	}
	return job.Job{
		InputPath:  inputPath,
		OutputPath: distinctOutput(inputPath, filepath.Join(outDir, name), m.suffix),
		OriginRoot: root,
	}, nil
}

// distinctOutput falls back to the suffixed sibling when a target root maps
// a file onto itself, e.g. source /a/docs with target /a.
func distinctOutput(inputPath, outputPath, suffix string) string {
	if filepath.Clean(inputPath) == filepath.Clean(outputPath) {
		return SiblingPath(inputPath, suffix)
	}
	return outputPath
}

func (m *mapper) explicitFiles(files []string) ([]job.Job, error) {
	var jobs []job.Job
	for _, raw := range files {
		if strings.TrimSpace(raw) == "" || !m.matches(raw) {
			continue
		}
		inputPath, err := filepath.Abs(raw)
		if err != nil || !fileutil.IsRegular(inputPath) {
			log.Debug().Str("file", raw).Msg("skipping missing input file")
			continue
		}
		outputPath := SiblingPath(inputPath, m.suffix)
		if m.targetRoot != "" {
			if err := fileutil.EnsureDir(m.targetRoot); err != nil {
				return nil, fmt.Errorf("create output dir: %w", err)
			}
			outputPath = distinctOutput(inputPath, filepath.Join(m.targetRoot, filepath.Base(inputPath)), m.suffix)
		}
		jobs = append(jobs, job.Job{
			InputPath:  inputPath,
			OutputPath: outputPath,
			OriginRoot: filepath.Dir(inputPath),
		})
	}
	return jobs, nil
}

// SiblingPath inserts suffix before the extension: /a/report.pdf -> /a/report_ocr.pdf.
func SiblingPath(inputPath, suffix string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + suffix + ext
}
