package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the errors raised by the analysis core.
type ErrorKind int

const (
	// SortMismatch represents an expression whose sort conflicts with an operator signature
	// or a non-Boolean guard.
	SortMismatch ErrorKind = iota + 1
	// GraphInvariant represents a dangling edge, a missing entry/exit or an unreachable node.
	GraphInvariant
	// TranslationError represents a source construct that has no mapping in the target representation.
	TranslationError
	// TransformError represents a violated precondition of a transformation pass.
	TransformError
	// ModelCapacityError is reserved for models rejecting a malformed key.
	// The models in package arch treat every key as cold instead.
	ModelCapacityError
	// IoError represents a failed report or dump write.
	IoError
)

func (k ErrorKind) String() string {
	switch k {
	case SortMismatch:
		return "sort mismatch"
	case GraphInvariant:
		return "graph invariant"
	case TranslationError:
		return "translation error"
	case TransformError:
		return "transform error"
	case ModelCapacityError:
		return "model capacity error"
	case IoError:
		return "io error"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is an error raised by the analysis core.
// Entity is the display rendering of the offending IR entity, if any.
type Error struct {
	Kind   ErrorKind
	Entity string
	Msg    string
	cause  error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Msg
	if e.Entity != "" {
		msg += ": " + e.Entity
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Errorf creates a new error of the given kind. entity may be nil.
func Errorf(kind ErrorKind, entity fmt.Stringer, format string, args ...interface{}) error {
	e := &Error{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	}
	if entity != nil {
		e.Entity = entity.String()
	}
	return errors.WithStack(e)
}

// WrapErrorf wraps err into an error of the given kind.
func WrapErrorf(err error, kind ErrorKind, entity fmt.Stringer, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	e := &Error{
		Kind:  kind,
		Msg:   fmt.Sprintf(format, args...),
		cause: err,
	}
	if entity != nil {
		e.Entity = entity.String()
	}
	return errors.WithStack(e)
}

// KindOf returns the kind of the first core error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries a core error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
