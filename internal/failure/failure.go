// Package failure classifies errors raised by the translation core so callers
// can map them to transport responses without inspecting messages.
package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindInvariant  Kind = "invariant"
)

type Error struct {
	Kind    Kind
	Op      string
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Validation reports input rejected before any side effect.
func Validation(op, field, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Message: message}
}

// NotFound reports a specific entity the caller asked about that does not exist.
func NotFound(op, entity, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Field: entity, Message: fmt.Sprintf("%q not found", id)}
}

// Invariant reports a broken internal contract. It is never recoverable.
func Invariant(op, message string) *Error {
	return &Error{Kind: KindInvariant, Op: op, Message: message}
}

func IsKind(err error, kind Kind) bool {
	var target *Error
	if !errors.As(err, &target) {
		return false
	}
	return target.Kind == kind
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
