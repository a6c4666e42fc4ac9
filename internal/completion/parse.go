package completion

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one parsed log line, split for display.
type Entry struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Path     string `json:"path"`
	FileName string `json:"file_name"`
	Raw      string `json:"raw"`
}

// ParseLine splits a line into date, time and path. A line without the
// separator becomes an entry whose Path is the whole line.
func ParseLine(line string) Entry {
	stamp, rel, ok := strings.Cut(line, separator)
	if !ok {
		return Entry{Path: line, Raw: line}
	}
	stamp = strings.TrimSpace(stamp)
	rel = strings.TrimSpace(rel)
	date, clock, _ := strings.Cut(stamp, " ")
	return Entry{
		Date:     date,
		Time:     clock,
		Path:     rel,
		FileName: filepath.Base(filepath.FromSlash(strings.ReplaceAll(rel, `\`, "/"))),
		Raw:      line,
	}
}

// Parse reads all non-blank lines. Malformed lines never abort the read.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entries = append(entries, ParseLine(line))
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("scan log: %w", err)
	}
	return entries, nil
}

// ReadFile parses the log at path. A missing file yields no entries.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path) //nolint:gosec // path derived from operator config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}
