package storage

import (
	"errors"
	"fmt"
)

// Status is one of the error kinds the core surfaces, per spec §7.
// Unlike the teacher's panic-on-invariant-violation style for internal
// corruption, these are ordinary recoverable conditions returned as errors.
type Status int

const (
	// StatusOK is never itself returned as an error; it is documented here
	// for parity with spec §7's enumeration.
	StatusOK Status = iota
	StatusNotFound
	StatusFormatError
	StatusIOError
	StatusInternalIOError
	StatusNoSuchChild
	StatusNotImplemented
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusFormatError:
		return "FORMAT_ERROR"
	case StatusIOError:
		return "IO_ERROR"
	case StatusInternalIOError:
		return "INTERNAL_IO_ERROR"
	case StatusNoSuchChild:
		return "NO_SUCH_CHILD"
	case StatusNotImplemented:
		return "NOT_IMPLEMENTED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusError wraps a Status with context, comparable via errors.Is against
// the sentinel Err* values below.
type StatusError struct {
	Status Status
	Msg    string
	Err    error
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Msg)
}

func (e *StatusError) Unwrap() error { return e.Err }

func newStatusError(s Status, format string, args ...any) *StatusError {
	return &StatusError{Status: s, Msg: fmt.Sprintf(format, args...)}
}

func wrapStatusError(s Status, err error, format string, args ...any) *StatusError {
	return &StatusError{Status: s, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Sentinel errors usable with errors.Is(err, storage.ErrNotFound) etc.
var (
	ErrNotFound        = &StatusError{Status: StatusNotFound, Msg: "not found"}
	ErrFormatError     = &StatusError{Status: StatusFormatError, Msg: "format error"}
	ErrIOError         = &StatusError{Status: StatusIOError, Msg: "io error"}
	ErrInternalIOError = &StatusError{Status: StatusInternalIOError, Msg: "internal io error"}
	ErrNoSuchChild     = &StatusError{Status: StatusNoSuchChild, Msg: "no such child"}
	ErrNotImplemented  = &StatusError{Status: StatusNotImplemented, Msg: "not implemented"}
)

// Is implements errors.Is by Status class rather than pointer identity, so
// any *StatusError of the same Status compares equal to a sentinel.
func (e *StatusError) Is(target error) bool {
	var se *StatusError
	if errors.As(target, &se) {
		return se.Status == e.Status
	}
	return false
}

