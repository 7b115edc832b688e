// Package errors wraps the standard library errors package with errors that carry
// slog annotations and the source location where they were created.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
)

// annotatedError is an error with a message, optional slog annotations and the program counter
// of the caller that created it.
type annotatedError struct {
	msg         string
	cause       error
	annotations []slog.Attr
	pc          uintptr
}

func (e *annotatedError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *annotatedError) Unwrap() error {
	return e.cause
}

// callerPC returns the program counter of the function calling the exported constructor.
func callerPC() uintptr {
	var pcs [1]uintptr
	// Skip runtime.Callers, callerPC and the exported constructor.
	runtime.Callers(3, pcs[:]) //nolint:mnd // see above
	return pcs[0]
}

// NewSentinel creates a sentinel error meant to be compared with [Is].
func NewSentinel(msg string) error {
	return &annotatedError{msg: msg, cause: nil, annotations: nil, pc: callerPC()}
}

// Wrap annotates err with msg and attrs. The annotations are emitted by [SlogError].
//
// Wrapping a nil error returns an error carrying only the message.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	return &annotatedError{msg: msg, cause: err, annotations: attrs, pc: callerPC()}
}

// DecoratePanic converts a recovered panic value into an error that remembers where the panic happened.
func DecoratePanic(excp any) error {
	if excp == nil {
		return nil
	}
	var pcs [1]uintptr
	// Skip runtime.Callers, DecoratePanic, the deferred function and runtime.gopanic.
	runtime.Callers(4, pcs[:]) //nolint:mnd // see above
	if err, ok := excp.(error); ok {
		return &annotatedError{msg: "panic", cause: err, annotations: nil, pc: pcs[0]}
	}
	return &annotatedError{msg: fmt.Sprintf("panic: %v", excp), cause: nil, annotations: nil, pc: pcs[0]}
}

// SlogError returns a slog attribute describing err, its annotations and the location where it was created.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.Group("error", slog.String("message", "<nil>"))
	}

	var (
		annotations []any
		source      string
	)
	walk(err, func(ae *annotatedError) {
		for _, a := range ae.annotations {
			annotations = append(annotations, a)
		}
		// The innermost annotated error is the closest to the root cause.
		if loc := location(ae.pc); loc != "" {
			source = loc
		}
	})

	attrs := []any{slog.String("message", err.Error())}
	if len(annotations) > 0 {
		attrs = append(attrs, slog.Group("annotations", annotations...))
	}
	if source != "" {
		attrs = append(attrs, slog.String("source", source))
	}
	return slog.Group("error", attrs...)
}

// walk visits every annotatedError in the tree of err, outermost first.
func walk(err error, visit func(*annotatedError)) {
	if err == nil {
		return
	}
	if ae, ok := err.(*annotatedError); ok { //nolint:errorlint // we are unwrapping manually
		visit(ae)
	}
	switch x := err.(type) { //nolint:errorlint // we are unwrapping manually
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			walk(e, visit)
		}
	case interface{ Unwrap() error }:
		walk(x.Unwrap(), visit)
	}
}

func location(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	if frame.File == "" {
		return ""
	}
	file := frame.File
	if i := strings.LastIndex(file, "/"); i >= 0 {
		file = file[i+1:]
	}
	return file + ":" + strconv.Itoa(frame.Line)
}

// New is [errors.New].
func New(text string) error {
	return errors.New(text) //nolint:err113 // re-export
}

// Is is [errors.Is].
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is [errors.As].
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join is [errors.Join].
func Join(errs ...error) error {
	return errors.Join(errs...)
}
