package types

import "errors"

// ErrorKind classifies a failure per the error taxonomy in SPEC_FULL.md §7.
type ErrorKind string

// Error kinds.
const (
	ErrorInvalidWorkflow  ErrorKind = "invalid_workflow"
	ErrorUnknownAgent     ErrorKind = "unknown_agent"
	ErrorBackendTransient ErrorKind = "backend_transient"
	ErrorBackendPermanent ErrorKind = "backend_permanent"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorCancelled        ErrorKind = "cancelled"
	ErrorDeadlock         ErrorKind = "deadlock"
	ErrorEmitterClosed    ErrorKind = "emitter_closed"
)

// Error is the structured error type used across agentwave. Callers
// recover the kind with errors.As, e.g. to decide whether a submission
// failure is retryable.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError constructs an *Error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Is supports errors.Is(err, types.ErrDeadlock) style sentinels below by
// matching on Kind rather than identity.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.Kind == te.Kind
}

// Sentinel errors for errors.Is comparisons against a bare kind.
var (
	ErrDeadlock      = &Error{Kind: ErrorDeadlock, Message: "deadlock"}
	ErrCancelled     = &Error{Kind: ErrorCancelled, Message: "cancelled"}
	ErrTimeout       = &Error{Kind: ErrorTimeout, Message: "timeout"}
	ErrEmitterClosed = &Error{Kind: ErrorEmitterClosed, Message: "emitter closed"}
)
