package testhelpers

import (
	"io"
	"strings"
	"sync/atomic"
	"testing"
)

// Writer forwards log lines to t.Log so that they only show up for failing tests.
type Writer struct {
	t    *testing.T
	done atomic.Bool
}

// NewWriter returns a Writer bound to t.
func NewWriter(t *testing.T) io.Writer {
	w := &Writer{t: t} //nolint:exhaustruct // done starts false
	t.Cleanup(func() { w.done.Store(true) })
	return w
}

// Write logs p without its trailing newline. Writing after the test has finished panics, which
// usually means a goroutine such as the database optimizer outlived its owner.
func (w *Writer) Write(p []byte) (int, error) {
	if w.done.Load() {
		panic("testhelpers: write after test completion, was a database left open?")
	}
	if line := strings.TrimSuffix(string(p), "\n"); line != "" {
		w.t.Log(line)
	}
	return len(p), nil
}
