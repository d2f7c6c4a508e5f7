package domain

import (
	"errors"
	"fmt"
)

// ErrListenerBusy is returned when a second subscriber tries to register for new connections.
var ErrListenerBusy = errors.New("listener already has a subscriber")

// ErrListenerClosed is returned by operations on a listener that has been closed.
var ErrListenerClosed = errors.New("listener closed")

// ErrDemoNotFound is returned when a recorded demo cannot be found in the store.
var ErrDemoNotFound = errors.New("demo not found")

// ErrLockAcquire is returned when the engine admission lock cannot be obtained.
var ErrLockAcquire = errors.New("failed to acquire engine lock")

// ProcessErrorCode classifies a process failure.
// Values follow the numbering the engine launcher has always reported to users.
type ProcessErrorCode int

const (
	FailedToStart ProcessErrorCode = iota
	Crashed
	Timedout
	ReadError
	WriteError
	UnknownError
)

func (c ProcessErrorCode) String() string {
	switch c {
	case FailedToStart:
		return "failed_to_start"
	case Crashed:
		return "crashed"
	case Timedout:
		return "timed_out"
	case ReadError:
		return "read_error"
	case WriteError:
		return "write_error"
	default:
		return "unknown_error"
	}
}

// SpawnError reports that the engine process could not be run.
type SpawnError struct {
	Path string
	Code ProcessErrorCode
	Err  error
}

func (e *SpawnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unable to run engine at %s (error code: %d)", e.Path, e.Code)
	}
	return fmt.Sprintf("unable to run engine at %s (error code: %d): %v", e.Path, e.Code, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
