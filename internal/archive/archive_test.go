package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEntryName(t *testing.T) {
	used := map[string]bool{}
	cases := []struct {
		in   string
		want string
	}{
		{"/out/a/report.pdf", "report.pdf"},
		{"/out/b/report.pdf", "report-2.pdf"},
		{"/out/c.pdf", "c.pdf"},
		{"/out/d/report.pdf", "report-3.pdf"},
		{"/out/e/a.pdf", "a.pdf"},
		{"/out/f/a.pdf", "a-2.pdf"},
		{"/out/g/a-2.pdf", "a-2-2.pdf"},
	}
	for _, c := range cases {
		if got := entryName(c.in, used); got != c.want {
			t.Fatalf("entryName(%q)=%q want %q", c.in, got, c.want)
		}
	}
	if len(used) != len(cases) {
		t.Fatalf("expected %d distinct entries, got %d", len(cases), len(used))
	}
}

func TestBuildArchive_SuccessAndFailures(t *testing.T) {
	tempDir := t.TempDir()
	ok1 := filepath.Join(tempDir, "x", "a.pdf")
	ok2 := filepath.Join(tempDir, "y", "a.pdf")
	for _, p := range []string{ok1, ok2} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("hello"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	dest := filepath.Join(tempDir, "runs", "r1", "outputs.zip")

	results, err := BuildArchive(context.Background(), dest, []string{ok1, filepath.Join(tempDir, "missing.pdf"), ok2})
	if err != nil {
		t.Fatalf("BuildArchive error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != "" || results[1].Err == "" || results[2].Err != "" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Entry == results[2].Entry {
		t.Fatalf("expected unique entries, got %q and %q", results[0].Entry, results[2].Entry)
	}

	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 zip entries, got %d", len(zr.File))
	}
}

func TestBuildArchive_NoFiles(t *testing.T) {
	_, err := BuildArchive(context.Background(), filepath.Join(t.TempDir(), "x.zip"), nil)
	if err == nil || !strings.Contains(err.Error(), "no files") {
		t.Fatalf("expected error for no files, got %v", err)
	}
}

func TestBuildArchive_NumberedNamesNeverCollide(t *testing.T) {
	tempDir := t.TempDir()
	paths := []string{
		filepath.Join(tempDir, "x", "a.pdf"),
		filepath.Join(tempDir, "y", "a.pdf"),
		filepath.Join(tempDir, "z", "a-2.pdf"),
	}
	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(p), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	dest := filepath.Join(tempDir, "out.zip")
	if _, err := BuildArchive(context.Background(), dest, paths); err != nil {
		t.Fatalf("BuildArchive error: %v", err)
	}

	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	names := map[string]bool{}
	for _, f := range zr.File {
		if names[f.Name] {
			t.Fatalf("duplicate zip entry %q", f.Name)
		}
		names[f.Name] = true
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 entries, got %v", names)
	}
}
