package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrConnectivity       = errors.New("connectivity failure")
	ErrTransient          = errors.New("transient failure")
	ErrBatchParse         = errors.New("unreadable batch")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrMalformedRow       = errors.New("malformed row")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Class is the failure category a scheduler uses to decide between skipping
// a cycle and shutting the process down.
type Class int

const (
	ClassUnknown Class = iota
	ClassRowLevel
	ClassBatch
	ClassPrecondition
	ClassTransient
	ClassConnectivity
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassRowLevel:
		return "row"
	case ClassBatch:
		return "batch"
	case ClassPrecondition:
		return "precondition"
	case ClassTransient:
		return "transient"
	case ClassConnectivity:
		return "connectivity"
	case ClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type AppError struct {
	Err     error
	Message string
	Class   Class
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
		Class:   classOf(sentinel),
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
		Class:   classOf(sentinel),
	}
}

// Wrap attaches a sentinel to cause so both remain visible to errors.Is.
func Wrap(sentinel error, cause error, message string) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", sentinel, cause),
		Message: message,
		Class:   classOf(sentinel),
	}
}

// Classify maps err to its failure class. Errors that carry no known
// sentinel are ClassUnknown, which callers treat as fatal.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Class != ClassUnknown {
		return appErr.Class
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	return classOf(err)
}

func classOf(err error) Class {
	switch {
	case errors.Is(err, ErrConnectivity):
		return ClassConnectivity
	case errors.Is(err, ErrTransient):
		return ClassTransient
	case errors.Is(err, ErrBatchParse):
		return ClassBatch
	case errors.Is(err, ErrPreconditionFailed):
		return ClassPrecondition
	case errors.Is(err, ErrMalformedRow):
		return ClassRowLevel
	default:
		return ClassUnknown
	}
}

// Fatal reports whether err should stop the process.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case ClassConnectivity, ClassUnknown:
		return true
	default:
		return false
	}
}
