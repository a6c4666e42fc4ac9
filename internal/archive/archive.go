package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	fileutil "batchocr/internal/file"
)

// Result describes the outcome of adding a single file to the archive.
type Result struct {
	Path  string `json:"path"`
	Entry string `json:"entry,omitempty"`
	Err   string `json:"error,omitempty"`
}

// BuildArchive writes the given files into a zip at destZipPath. The zip is
// assembled in a temporary file and renamed into place. It always returns a
// results slice of the same length as paths; a file that cannot be read is
// reported in its Result and left out of the archive.
func BuildArchive(ctx context.Context, destZipPath string, paths []string) ([]Result, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files provided")
	}

	results := make([]Result, len(paths))
	used := make(map[string]bool, len(paths))
	err := fileutil.WriteAtomic(destZipPath, func(w io.Writer) error {
		zipWriter := zip.NewWriter(w)
		for i, path := range paths {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			results[i] = addFile(zipWriter, path, entryName(path, used))
		}
		if err := zipWriter.Close(); err != nil {
			return fmt.Errorf("close zip writer: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("dest", destZipPath).Msg("building archive failed")
		return results, err
	}
	return results, nil
}

// addFile copies one file into the zip, returning its Result.
func addFile(zipWriter *zip.Writer, path, entry string) Result {
	result := Result{Path: path}
	f, err := os.Open(path) //nolint:gosec // paths come from a finished run
	if err != nil {
		result.Err = err.Error()
		log.Warn().Str("path", path).Err(err).Msg("open for archive failed")
		return result
	}
	defer func() { _ = f.Close() }()

	zipEntryWriter, err := zipWriter.Create(entry)
	if err != nil {
		result.Err = err.Error()
		log.Warn().Str("path", path).Err(err).Msg("zip entry create failed")
		return result
	}
	if _, err := io.Copy(zipEntryWriter, f); err != nil {
		result.Err = err.Error()
		log.Warn().Str("path", path).Err(err).Msg("copy into zip failed")
		return result
	}
	result.Entry = entry
	return result
}

// entryName derives a unique entry name from the file's base name, numbering
// repeated names until one is free: a.pdf, a-2.pdf, a-3.pdf.
func entryName(path string, used map[string]bool) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "file"
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := base
	for n := 2; used[name]; n++ {
		name = stem + "-" + strconv.Itoa(n) + ext
	}
	used[name] = true
	return name
}
