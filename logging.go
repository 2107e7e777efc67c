package fgddem

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/yookoala/realpath"
)

// Logf is the package logger. It defaults to log.Printf and can be replaced
// with SetLogger.
var Logf = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// A StatusWriter writes one labeled line per call. Lines from concurrent
// workers are never interleaved.
type StatusWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

// NewStatusWriter returns a new StatusWriter that writes to w.
func NewStatusWriter(w io.Writer) *StatusWriter {
	return &StatusWriter{
		w: w,
	}
}

// Printf writes a status line with label.
func (s *StatusWriter) Printf(label, format string, args ...any) {
	if s == nil {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	fmt.Fprintf(s.w, "%-8.8s : %s\n", label, fmt.Sprintf(format, args...))
}

// Path writes a status line with label and the absolute path of path.
func (s *StatusWriter) Path(label, path string) {
	if absPath, err := realpath.Realpath(path); err == nil {
		path = absPath
	}
	s.Printf(label, "%s", path)
}
