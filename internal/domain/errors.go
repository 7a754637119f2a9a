package domain

import (
	"errors"
	"fmt"
)

// Session-level sentinel errors
var (
	ErrSessionNotStarted  = errors.New("session is not started")
	ErrSessionStarted     = errors.New("session already started")
	ErrQueueNotOpened     = errors.New("queue not opened")
	ErrQueueAlreadyOpened = errors.New("queue already opened")
	ErrQueueClosing       = errors.New("queue is closing")
	ErrQueueSuspended     = errors.New("queue is suspended")
	ErrInvalidGUID        = errors.New("invalid GUID provided")
	ErrInvalidProperty    = errors.New("invalid message property")
	ErrInvalidOptions     = errors.New("invalid options")
	ErrMissingHandler     = errors.New("missing handler")
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidAckRecord   = errors.New("invalid ack record")

	// ErrSessionStopped is an ErrSessionNotStarted for a session that can
	// no longer be started.
	ErrSessionStopped = fmt.Errorf("%w: method called after session was stopped", ErrSessionNotStarted)
)

// ProtocolError is returned when the broker answers a request with a
// non-success result code other than a timeout.
type ProtocolError struct {
	Op          string
	URI         string
	Code        ResultCode
	Description string
}

func (e *ProtocolError) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("failed to %s: %s: %s", e.Op, e.Code, e.Description)
	}
	return fmt.Sprintf("failed to %s %s queue: %s: %s", e.Op, e.URI, e.Code, e.Description)
}

// TimeoutError is returned when a broker round-trip exceeds its deadline.
type TimeoutError struct {
	Op  string
	URI string
}

func (e *TimeoutError) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("failed to %s: %s", e.Op, ResultTimeout)
	}
	return fmt.Sprintf("failed to %s %s queue: %s", e.Op, e.URI, ResultTimeout)
}

// StateError reports an operation attempted in the wrong session or queue
// state. It is always detected locally.
type StateError struct {
	Op  string
	URI string
	Err error
}

func (e *StateError) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URI, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// ValidationError reports malformed input rejected before reaching the broker.
type ValidationError struct {
	Field string
	Err   error
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Msg)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a ValidationError wrapping base.
func NewValidationError(base error, field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Err: base, Msg: fmt.Sprintf(format, args...)}
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsProtocol reports whether err is a ProtocolError.
func IsProtocol(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
