// Package errs defines the closed error taxonomy shared by every
// Groundwork component.
//
// Each failure crossing a package boundary carries a Kind so the service
// layer can map it to a transport status without inspecting message
// strings. Access denials on private collections are deliberately
// reported as KindNotFound.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for boundary mapping.
type Kind string

const (
	// KindValidation marks malformed or out-of-range input.
	KindValidation Kind = "validation"

	// KindNotFound marks a missing entity or a denied private resource.
	KindNotFound Kind = "not_found"

	// KindConfiguration marks an internal invariant violation.
	KindConfiguration Kind = "configuration"

	// KindLLMProvider marks an upstream model provider failure.
	KindLLMProvider Kind = "llm_provider"

	// KindStorage marks an unrecoverable document or vector store failure.
	KindStorage Kind = "storage"

	// KindCancellation marks a deadline or explicit cancellation.
	KindCancellation Kind = "cancellation"
)

// Error is the structured error used across the engine. Component and
// Operation identify where the failure originated.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a taxonomy error without a cause.
func New(kind Kind, component, operation, message string) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Message: message}
}

// Newf creates a taxonomy error with a formatted message.
func Newf(kind Kind, component, operation, format string, args ...any) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches taxonomy information to an underlying cause.
func Wrap(kind Kind, component, operation, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Message: message, Err: err}
}

// KindOf walks the error chain and returns its Kind. Context deadline
// and cancellation errors classify as KindCancellation even when they
// were wrapped by plain fmt.Errorf. Unknown errors classify as
// KindConfiguration, the 500-equivalent bucket.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindCancellation
	}
	return KindConfiguration
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
