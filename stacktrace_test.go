package sentinel_test

import (
	"fmt"
	"strings"
	"testing"

	goerrors "github.com/go-errors/errors"
	pkgerrors "github.com/pkg/errors"

	sentinel "github.com/sentinel-obs/sentinel-go"
)

func TestNewStacktrace(t *testing.T) {
	st := sentinel.NewStacktrace()
	if st == nil || len(st.Frames) == 0 {
		t.Fatal("expected frames")
	}

	// The newest frame comes last and belongs to this test.
	last := st.Frames[len(st.Frames)-1]
	if last.Function != "TestNewStacktrace" {
		t.Errorf("Function = %q, want TestNewStacktrace", last.Function)
	}
	if !strings.HasSuffix(last.Module, "_test") {
		t.Errorf("Module = %q, want the test package", last.Module)
	}
	if last.Filename != "stacktrace_test.go" {
		t.Errorf("Filename = %q", last.Filename)
	}
	if last.Lineno <= 0 {
		t.Errorf("Lineno = %d", last.Lineno)
	}
	if !last.InApp {
		t.Error("test frames are in-app")
	}

	for _, frame := range st.Frames {
		if frame.Module == "runtime" || frame.Module == "testing" {
			t.Errorf("frame %q/%q must be filtered out", frame.Module, frame.Function)
		}
	}
}

func TestExtractStacktracePkgErrors(t *testing.T) {
	err := pkgerrors.New("boom")

	st := sentinel.ExtractStacktrace(err)
	if st == nil || len(st.Frames) == 0 {
		t.Fatal("expected frames from a pkg/errors error")
	}
	last := st.Frames[len(st.Frames)-1]
	if last.Function != "TestExtractStacktracePkgErrors" {
		t.Errorf("Function = %q, want the error creation site", last.Function)
	}
}

func TestExtractStacktraceGoErrors(t *testing.T) {
	err := goerrors.New("boom")

	st := sentinel.ExtractStacktrace(err)
	if st == nil || len(st.Frames) == 0 {
		t.Fatal("expected frames from a go-errors error")
	}
	last := st.Frames[len(st.Frames)-1]
	if last.Function != "TestExtractStacktraceGoErrors" {
		t.Errorf("Function = %q, want the error creation site", last.Function)
	}
}

func TestExtractStacktraceWrapped(t *testing.T) {
	cause := pkgerrors.New("boom")
	wrapped := fmt.Errorf("fetch failed: %w", cause)

	// The deepest error that recorded a stack wins.
	st := sentinel.ExtractStacktrace(wrapped)
	if st == nil || len(st.Frames) == 0 {
		t.Fatal("expected frames from the wrapped cause")
	}
	last := st.Frames[len(st.Frames)-1]
	if last.Function != "TestExtractStacktraceWrapped" {
		t.Errorf("Function = %q, want the error creation site", last.Function)
	}
}

func TestExtractStacktracePkgErrorsWrap(t *testing.T) {
	err := pkgerrors.Wrap(pkgerrors.New("boom"), "context")

	st := sentinel.ExtractStacktrace(err)
	if st == nil || len(st.Frames) == 0 {
		t.Fatal("expected frames")
	}
}

func TestExtractStacktracePlainError(t *testing.T) {
	if st := sentinel.ExtractStacktrace(fmt.Errorf("boom")); st != nil {
		t.Errorf("plain errors carry no stack, got %+v", st)
	}
}

func TestStacktraceFrameOrder(t *testing.T) {
	err := makeError()

	st := sentinel.ExtractStacktrace(err)
	if st == nil || len(st.Frames) < 2 {
		t.Fatal("expected at least two frames")
	}
	n := len(st.Frames)
	if got := st.Frames[n-1].Function; got != "makeError" {
		t.Errorf("newest frame = %q, want makeError", got)
	}
	if got := st.Frames[n-2].Function; got != "TestStacktraceFrameOrder" {
		t.Errorf("caller frame = %q, want TestStacktraceFrameOrder", got)
	}
}

func makeError() error {
	return pkgerrors.New("boom")
}
