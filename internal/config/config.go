package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort               = 8080
	defaultDataDir            = "data"
	defaultLogFileName        = "ocr_log.txt"
	defaultSameLocationSuffix = "_ocr"
	defaultStopGracePeriod    = 10 * time.Second

	defaultOCRBinary     = "ocrmypdf"
	defaultOCRLanguage   = "deu+eng"
	defaultOCROversample = 600
	defaultOCROptimize   = 1
)

// Mode selects how source inputs are interpreted.
type Mode string

const (
	ModeFolders Mode = "folders"
	ModeFiles   Mode = "files"
)

// OCR holds the option set passed to the recognition engine.
type OCR struct {
	Binary     string   `yaml:"binary"`
	Language   string   `yaml:"language"`
	Oversample int      `yaml:"oversample"`
	Deskew     bool     `yaml:"deskew"`
	ForceOCR   bool     `yaml:"force_ocr"`
	Optimize   int      `yaml:"optimize"`
	ExtraArgs  []string `yaml:"extra_args"`
}

// Config describes runtime configuration for the service.
type Config struct {
	Port                int           `yaml:"port"`
	DataDir             string        `yaml:"data_dir"`
	Mode                Mode          `yaml:"mode"`
	Sources             []string      `yaml:"sources"`
	Files               []string      `yaml:"files"`
	TargetDir           string        `yaml:"target_dir"`
	Recursive           bool          `yaml:"recursive"`
	Extensions          []string      `yaml:"extensions"`
	SameLocationSuffix  string        `yaml:"same_location_suffix"`
	MaxWorkers          int           `yaml:"max_workers"`
	InternalParallelism bool          `yaml:"internal_parallelism"`
	LogEnabled          bool          `yaml:"log_enabled"`
	LogFileName         string        `yaml:"log_file_name"`
	StopGracePeriod     time.Duration `yaml:"stop_grace_period"`
	AllowedOrigins      []string      `yaml:"allowed_origins"`
	OCR                 OCR           `yaml:"ocr"`
}

// Default returns the stock settings: recursive folder
// mode, internal parallelism and the completion log all enabled.
func Default() Config {
	return Config{
		Port:                defaultPort,
		DataDir:             defaultDataDir,
		Mode:                ModeFolders,
		Recursive:           true,
		Extensions:          []string{".pdf"},
		SameLocationSuffix:  defaultSameLocationSuffix,
		InternalParallelism: true,
		LogEnabled:          true,
		LogFileName:         defaultLogFileName,
		StopGracePeriod:     defaultStopGracePeriod,
		OCR: OCR{
			Binary:     defaultOCRBinary,
			Language:   defaultOCRLanguage,
			Oversample: defaultOCROversample,
			Deskew:     true,
			ForceOCR:   true,
			Optimize:   defaultOCROptimize,
		},
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.Mode == "" {
		c.Mode = ModeFolders
	}
	if c.Mode != ModeFolders && c.Mode != ModeFiles {
		return fmt.Errorf("invalid mode: %q (must be %q or %q)", c.Mode, ModeFolders, ModeFiles)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("invalid max_workers: %d (must be >= 0)", c.MaxWorkers)
	}
	if c.OCR.Oversample < 0 {
		return fmt.Errorf("invalid ocr.oversample: %d (must be >= 0)", c.OCR.Oversample)
	}
	if c.SameLocationSuffix == "" {
		c.SameLocationSuffix = defaultSameLocationSuffix
	}
	if c.LogFileName == "" {
		c.LogFileName = defaultLogFileName
	}
	// An absent key keeps the default; an explicit 0s terminates at once on stop.
	if c.StopGracePeriod < 0 {
		return fmt.Errorf("invalid stop_grace_period: %s (must be >= 0)", c.StopGracePeriod)
	}
	if c.OCR.Binary == "" {
		c.OCR.Binary = defaultOCRBinary
	}
	c.Extensions = NormalizeExtensions(c.Extensions)
	return nil
}

// Workers returns the worker pool size: the configured cap, or the number of
// logical CPUs when unset.
func (c Config) Workers() int {
	if c.MaxWorkers > 0 {
		return c.MaxWorkers
	}
	return runtime.NumCPU()
}

// NormalizeExtensions lowercases, dot-prefixes and deduplicates extensions.
func NormalizeExtensions(in []string) []string {
	if len(in) == 0 {
		return []string{".pdf"}
	}
	seen := make(map[string]struct{}, len(in))
	normalized := make([]string, 0, len(in))
	for _, ext := range in {
		e := strings.ToLower(strings.TrimSpace(ext))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		normalized = append(normalized, e)
	}
	return normalized
}
