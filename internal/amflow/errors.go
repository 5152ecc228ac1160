package amflow

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes protocol errors.
type ErrorKind string

const (
	// KindInvalidStatus indicates an operation attempted in the wrong
	// lifecycle state (open while open, send while closed).
	KindInvalidStatus ErrorKind = "InvalidStatus"

	// KindAuthenticationFailure indicates an unrecognized token.
	KindAuthenticationFailure ErrorKind = "AuthenticationFailure"

	// KindNotImplemented indicates a backend that does not support the
	// operation, e.g. a pure relay without storage.
	KindNotImplemented ErrorKind = "NotImplemented"

	// KindRangeError indicates a tick range the backend cannot satisfy.
	KindRangeError ErrorKind = "RangeError"

	// KindNotFound indicates a missing start point or key.
	KindNotFound ErrorKind = "NotFound"

	// KindPermissionDenied indicates a missing capability bit.
	KindPermissionDenied ErrorKind = "PermissionDenied"

	// KindInvalidArgument indicates malformed input, such as start point
	// options carrying both a frame and a timestamp bound.
	KindInvalidArgument ErrorKind = "InvalidArgument"
)

// Error is the protocol error returned by backends.
//
// Errors match with errors.Is by kind alone when the target is one of the
// Err* sentinels:
//
//	if errors.Is(err, amflow.ErrPermissionDenied) { ... }
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Op names the failed operation. Empty for sentinels.
	Op Operation

	// Message is a human-readable description.
	Message string
}

// Sentinels for errors.Is matching.
var (
	ErrInvalidStatus         = &Error{Kind: KindInvalidStatus}
	ErrAuthenticationFailure = &Error{Kind: KindAuthenticationFailure}
	ErrNotImplemented        = &Error{Kind: KindNotImplemented}
	ErrRangeError            = &Error{Kind: KindRangeError}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrPermissionDenied      = &Error{Kind: KindPermissionDenied}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
)

// NewError creates an Error with a formatted message.
func NewError(kind ErrorKind, op Operation, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != OpNone {
		return fmt.Sprintf("%s: %s (op=%s)", e.Kind, e.Message, e.Op)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches sentinels (no Op, no Message) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == OpNone && t.Message == "" {
		return t.Kind == e.Kind
	}
	return t == e
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
