// Package fault defines the closed set of error kinds surfaced by the
// personnel store.
//
// Every public operation returns either nil or a *Error. Callers branch on
// the Kind (via KindOf or the IsXxx helpers) instead of parsing messages:
//
//   - CONTENTION: the store file was momentarily locked; retried automatically
//   - RETRY_EXHAUSTED: contention outlasted the retry budget
//   - NOT_FOUND: the referenced record does not exist
//   - VALIDATION: the caller supplied unusable input; nothing was written
//   - IO: the underlying file or storage could not be accessed
//   - INTERNAL: anything else, converted at the operation boundary
//
// Duplicate rows found during an import are not errors; they are reported
// as skips in the import report.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes an error.
type Kind string

const (
	// KindContention indicates a transient lock on the store file.
	KindContention Kind = "CONTENTION"

	// KindRetryExhausted indicates every allowed attempt hit contention.
	KindRetryExhausted Kind = "RETRY_EXHAUSTED"

	// KindNotFound indicates a referenced id does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindValidation indicates input was rejected before any write.
	KindValidation Kind = "VALIDATION"

	// KindIO indicates a storage or file access failure.
	KindIO Kind = "IO"

	// KindInternal indicates an unexpected fault.
	KindInternal Kind = "INTERNAL"
)

// Error is the structured error returned across component boundaries.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op names the operation that failed, e.g. "person.delete".
	Op string

	// Message is the user-facing explanation.
	Message string

	// Err is the underlying cause, if any.
	Err error

	// Details carries extra context such as skip reasons of an aborted import.
	Details []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error around an underlying cause.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// NotFound creates a KindNotFound error.
func NotFound(op, message string) *Error {
	return New(KindNotFound, op, message)
}

// Validation creates a KindValidation error.
func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

// KindOf returns the Kind of the outermost *Error in err's chain.
// Errors that carry no Kind are reported as KindInternal; nil yields "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsContention reports whether err is a transient lock condition.
func IsContention(err error) bool { return KindOf(err) == KindContention }

// IsExhausted reports whether err is a terminal retry failure.
func IsExhausted(err error) bool { return KindOf(err) == KindRetryExhausted }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// Ensure converts any error into a *Error, keeping existing kinds.
func Ensure(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return Wrap(KindInternal, op, "操作失败，请重试！", err)
}
