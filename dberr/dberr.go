// Package dberr classifies the failures the database API can produce.
//
// Validation, NotFound and Conflict are expected outcomes of a bad request and
// leave no state behind. IO, Parse and Query come from the storage layer and
// carry the underlying error for the caller to report.
package dberr

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind int

const (
	// Unknown is reported for errors that were never classified.
	Unknown Kind = iota
	Validation
	NotFound
	Conflict
	IO
	Parse
	Query
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case IO:
		return "io"
	case Parse:
		return "parse"
	case Query:
		return "query"
	default:
		return "unknown"
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "docfile.write".
	Op string
	// Msg is the human-readable reason. For expected kinds it is returned
	// to API callers verbatim.
	Msg string
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reason returns the message suitable for an API response. Expected kinds
// yield their bare reason; infrastructure kinds yield the full chain.
func (e *Error) Reason() string {
	if e.Kind.Expected() && e.Msg != "" {
		return e.Msg
	}
	return e.Error()
}

// Expected reports whether the kind is a normal rejection rather than an
// infrastructure failure.
func (k Kind) Expected() bool {
	return k == Validation || k == NotFound || k == Conflict
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: Validation, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: Conflict, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsExpected reports whether err is a Validation, NotFound or Conflict failure.
func IsExpected(err error) bool {
	return KindOf(err).Expected()
}

// Reason returns the API-facing message for err.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason()
	}
	return err.Error()
}
