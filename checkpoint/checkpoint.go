// Package checkpoint decorates errors with caller information, giving
// something similar to a stacktrace without a dependency on one.
// Every error attached to a checkpoint stays visible to errors.Is and
// errors.As, so callers can still branch on sentinel errors.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps an error in a new checkpoint carrying the caller's file and
// line. It returns nil if err == nil.
func From(err error) error {
	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if err == io.EOF {
		return io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return io.ErrUnexpectedEOF
	}

	if err == nil {
		return nil
	}

	_, file, line, ok := runtime.Caller(1)

	return &checkpoint{
		err:  err,
		prev: nil,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

// Wrap adds a checkpoint on top of prev and attaches err as an additional
// description of the failure site. Returns nil if prev == nil.
//
// The usual pattern is to predeclare sentinel errors and attach them here:
//  if !accepted {
//  	return checkpoint.Wrap(ErrCommandRejected, ErrWriteFailed)
//  }
// A caller can then check for either error with errors.Is.
func Wrap(prev, err error) error {
	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if prev == io.EOF {
		return io.EOF
	}

	if prev == nil {
		return nil
	}

	_, file, line, ok := runtime.Caller(1)

	return &checkpoint{
		err:  err,
		prev: prev,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) Error() string {
	suffix := ""
	if e.prev != nil {
		// Use different formatting for the prev error if it was not also a checkpoint.
		prevErrString := e.prev.Error()
		if _, ok := e.prev.(*checkpoint); !ok {
			prevErrString = "File: unknown\n\t" + strings.ReplaceAll(prevErrString, "\n", "\n\t")
		}
		suffix = "\n" + prevErrString
	}

	if e.callerOk {
		return fmt.Sprintf("File: %s:%d\n\t%v%s", e.file, e.line, e.err, suffix)
	}
	return fmt.Sprintf("File: unknown\n\t%v%s", e.err, suffix)
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return errors.As(e.err, target)
}
