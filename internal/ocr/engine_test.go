package ocr

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"batchocr/internal/config"
)

type recordingRunner struct {
	name     string
	args     []string
	stderr   string
	exitCode int
	err      error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) (string, int, error) {
	r.name = name
	r.args = args
	return r.stderr, r.exitCode, r.err
}

func TestJobsPerTask(t *testing.T) {
	if JobsPerTask(true) != 4 || JobsPerTask(false) != 1 {
		t.Fatalf("unexpected jobs hint: %d/%d", JobsPerTask(true), JobsPerTask(false))
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.InternalParallelism = false
	opts := OptionsFromConfig(cfg)
	if opts.Jobs != 1 || opts.Oversample != 600 || opts.Language != "deu+eng" || !opts.Deskew || !opts.ForceOCR {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestOCRmyPDFArgs(t *testing.T) {
	engine := NewOCRmyPDF("")
	got := engine.Args("/in/a.pdf", "/out/a.pdf", Options{
		Deskew: true, ForceOCR: true, Oversample: 600, Language: "deu+eng", Optimize: 1, Jobs: 4,
		ExtraArgs: []string{"--rotate-pages"},
	})
	want := []string{
		"--deskew", "--force-ocr", "--oversample", "600", "--language", "deu+eng",
		"--optimize", "1", "--jobs", "4", "--rotate-pages", "/in/a.pdf", "/out/a.pdf",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v\nwant %v", got, want)
	}

	minimal := engine.Args("i", "o", Options{})
	if !reflect.DeepEqual(minimal, []string{"--optimize", "0", "--jobs", "1", "i", "o"}) {
		t.Fatalf("minimal args = %v", minimal)
	}
}

func TestOCRmyPDFTransform(t *testing.T) {
	rr := &recordingRunner{}
	engine := &OCRmyPDF{binary: "ocrmypdf", runner: rr}
	if err := engine.Transform(context.Background(), "in.pdf", "out.pdf", Options{Jobs: 1}); err != nil {
		t.Fatalf("transform: %v", err)
	}
	if rr.name != "ocrmypdf" || rr.args[len(rr.args)-2] != "in.pdf" {
		t.Fatalf("unexpected invocation: %s %v", rr.name, rr.args)
	}

	boom := errors.New("exit status 2")
	rr = &recordingRunner{stderr: strings.Repeat("x", 5000) + "InputFileError\n", exitCode: 2, err: boom}
	engine.runner = rr
	err := engine.Transform(context.Background(), "in.pdf", "out.pdf", Options{})
	var terr *TransformError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransformError, got %v", err)
	}
	if terr.ExitCode != 2 || !errors.Is(err, boom) {
		t.Fatalf("unexpected error: %+v", terr)
	}
	if len(terr.Stderr) != stderrTailBytes || !strings.HasSuffix(terr.Stderr, "InputFileError") {
		t.Fatalf("stderr tail not kept: len=%d", len(terr.Stderr))
	}
}
