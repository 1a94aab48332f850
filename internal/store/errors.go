package store

import "fmt"

// Kind is one of the abstract error kinds from the error handling design.
// It lets callers branch with errors.Is instead of string matching.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindAuthenticationError Kind = "authentication_error"
	KindSessionInvalid      Kind = "session_invalid"
	KindSessionExpected     Kind = "session_expected"
	KindIntegrityViolation  Kind = "integrity_violation"
	KindLogic               Kind = "logic"
	KindBackendDown         Kind = "backend_down"
)

// sentinel values usable with errors.Is; each carries only its Kind, no cause.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrAuthenticationError = &Error{Kind: KindAuthenticationError}
	ErrSessionInvalid      = &Error{Kind: KindSessionInvalid}
	ErrSessionExpected     = &Error{Kind: KindSessionExpected}
	ErrIntegrityViolation  = &Error{Kind: KindIntegrityViolation}
	ErrLogic               = &Error{Kind: KindLogic}
	ErrBackendDown         = &Error{Kind: KindBackendDown}
)

// Error wraps a cause with an abstract Kind.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, store.ErrNotFound) works regardless of Msg/Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Wrap builds a new *Error of the given kind around cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Wrapf builds a new *Error of the given kind with a formatted message.
func Wrapf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
