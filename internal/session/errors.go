package session

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies session errors. Every failure is recoverable at the
// session boundary: the session lands in Idle or Failed with the error
// attached, the process keeps running.
type Kind string

const (
	KindDeviceUnavailable      Kind = "device_unavailable"
	KindCaptureInterrupted     Kind = "capture_interrupted"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindInvalidConfiguration   Kind = "invalid_configuration"
	KindEncodeFailure          Kind = "encode_failure"
	KindFilesystemError        Kind = "filesystem_error"
)

// Error carries enough detail for the consumer to log and display: kind,
// attempted operation, session state at the time, and a timestamp.
type Error struct {
	Kind    Kind
	Op      string
	State   State
	Path    string
	Message string
	When    time.Time
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s (%s)", e.Kind, e.Op, msg, e.Path)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrKind extracts the session error kind from err, or "" if err is not a
// session error.
func ErrKind(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
