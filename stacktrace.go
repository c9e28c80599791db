package sentinel

import (
	"go/build"
	"path/filepath"
	"runtime"
	"strings"

	goerrors "github.com/go-errors/errors"
	pkgerrors "github.com/pkg/errors"
)

const unknown string = "unknown"

// Stacktrace holds information about the frames of the stack.
type Stacktrace struct {
	Frames []Frame `json:"frames,omitempty"`
}

// NewStacktrace creates a stacktrace using runtime.Callers.
func NewStacktrace() *Stacktrace {
	pcs := make([]uintptr, 100)
	n := runtime.Callers(1, pcs)
	if n == 0 {
		return nil
	}

	frames := filterFrames(extractFrames(pcs[:n]))
	return &Stacktrace{Frames: frames}
}

// ExtractStacktrace creates a new Stacktrace based on the given error. It
// understands errors created with github.com/pkg/errors and
// github.com/go-errors/errors and walks the unwrap chain to the deepest error
// that recorded a stack.
func ExtractStacktrace(err error) *Stacktrace {
	pcs := pcsFromError(err)
	if len(pcs) == 0 {
		return nil
	}

	frames := filterFrames(extractFrames(pcs))
	if len(frames) == 0 {
		return nil
	}
	return &Stacktrace{Frames: frames}
}

func pcsFromError(err error) []uintptr {
	var pcs []uintptr
	for err != nil {
		switch e := err.(type) {
		case interface{ StackTrace() pkgerrors.StackTrace }:
			trace := e.StackTrace()
			out := make([]uintptr, len(trace))
			for i, frame := range trace {
				out[i] = uintptr(frame)
			}
			pcs = out
		case *goerrors.Error:
			stackFrames := e.StackFrames()
			out := make([]uintptr, 0, len(stackFrames))
			for _, frame := range stackFrames {
				out = append(out, frame.ProgramCounter)
			}
			pcs = out
		}
		err = unwrap(err)
	}
	return pcs
}

// Frame represents a function call and it's metadata.
type Frame struct {
	Function string `json:"function,omitempty"`
	// Module is, despite the name, the package name.
	Module   string `json:"module,omitempty"`
	Filename string `json:"filename,omitempty"`
	AbsPath  string `json:"abs_path,omitempty"`
	Lineno   int    `json:"lineno,omitempty"`
	InApp    bool   `json:"in_app"`
}

func newFrame(f runtime.Frame) Frame {
	function := f.Function
	var pkg string

	if function != "" {
		pkg, function = splitQualifiedFunctionName(function)
	} else {
		function = unknown
	}

	file := f.File
	if file == "" {
		file = unknown
	}

	frame := Frame{
		Function: function,
		Module:   pkg,
		AbsPath:  file,
		Filename: filepath.Base(file),
		Lineno:   f.Line,
	}
	frame.InApp = isInAppFrame(frame)
	return frame
}

// splitQualifiedFunctionName splits a package path-qualified function name
// into the package name and function name. Such qualified names are found in
// runtime.Frame.Function values.
func splitQualifiedFunctionName(name string) (pkg string, fun string) {
	pkg = packageName(name)
	if len(pkg) > 0 {
		fun = name[len(pkg)+1:]
	}
	return
}

// packageName returns the package part of the symbol name, or the empty string
// if there is none.
func packageName(name string) string {
	// A prefix of "type." and "go." is a compiler-generated symbol that does
	// not belong to any package.
	if strings.HasPrefix(name, "go.") || strings.HasPrefix(name, "type.") {
		return ""
	}

	pathend := strings.LastIndex(name, "/")
	if pathend < 0 {
		pathend = 0
	}

	if i := strings.Index(name[pathend:], "."); i != -1 {
		return name[:pathend+i]
	}
	return ""
}

// extractFrames resolves program counters into frames, ordered from oldest to
// newest, matching the expected wire order.
func extractFrames(pcs []uintptr) []Frame {
	var frames = make([]Frame, 0, len(pcs))
	callersFrames := runtime.CallersFrames(pcs)

	for {
		callerFrame, more := callersFrames.Next()
		frames = append(frames, newFrame(callerFrame))
		if !more {
			break
		}
	}

	// reverse so that the oldest frame comes first
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}

	return frames
}

// filterFrames filters out stack frames that are not meant to be reported:
// frames of the SDK itself and the Go runtime or testing harness.
func filterFrames(frames []Frame) []Frame {
	if len(frames) == 0 {
		return nil
	}

	filteredFrames := make([]Frame, 0, len(frames))
	for _, frame := range frames {
		// Skip Go internal frames.
		if frame.Module == "runtime" || frame.Module == "testing" {
			continue
		}
		// Skip SDK internal frames, except for frames in _test packages.
		if strings.HasPrefix(frame.Module, "github.com/sentinel-obs/sentinel-go") &&
			!strings.HasSuffix(frame.Module, "_test") {
			continue
		}
		filteredFrames = append(filteredFrames, frame)
	}

	return filteredFrames
}

func isInAppFrame(frame Frame) bool {
	if strings.HasPrefix(frame.AbsPath, build.Default.GOROOT) ||
		strings.Contains(frame.Module, "vendor") ||
		strings.Contains(frame.Module, "third_party") {
		return false
	}
	return true
}
