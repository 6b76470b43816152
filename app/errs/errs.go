// Package errs defines the error kinds the dialogue core distinguishes.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for recovery and logging.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindLimitExceeded Kind = "limit_exceeded"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindStorage       Kind = "storage"
	KindUnavailable   Kind = "unavailable"
	KindInternal      Kind = "internal"
)

// Error carries a kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code is used as err_code in log lines.
func (e *Error) Code() string { return string(e.Kind) }

// E builds an *Error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation reports malformed user input.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// Storage wraps a driver error. nil stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// NotFound reports an expected row that does not exist.
func NotFound(op, what string) error {
	return &Error{Kind: KindNotFound, Op: op, Err: errors.New(what + " not found")}
}

// KindOf returns the kind of the outermost *Error in err's chain,
// or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
