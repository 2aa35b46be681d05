package document

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the catalog.
type Kind string

const (
	InvalidArgument    Kind = "invalid_argument"
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	PartiallyCreated   Kind = "partially_created"
	PartiallyLinked    Kind = "partially_linked"
	BackendUnavailable Kind = "backend_unavailable"
	Unauthorized       Kind = "unauthorized"
	Forbidden          Kind = "forbidden"
	Internal           Kind = "internal"
)

// Error is the typed error returned by stores and the services built on them.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an Error without a cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and op to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind reported by the first error in err's chain that
// implements ErrorKind, or Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var kinder interface{ ErrorKind() Kind }
	if errors.As(err, &kinder) {
		return kinder.ErrorKind()
	}
	return Internal
}

func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
