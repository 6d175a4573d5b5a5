// Package errors carries the typed settlement errors. Every failure a caller
// can act on is an *Error with a Code; anything else is treated as internal.
package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeCompensation  Code = "COMPENSATION_FAILED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Class describes how a caller should react to a code.
type Class struct {
	// Retryable errors may succeed when the same call is repeated later.
	Retryable bool
	// Caller errors are caused by the input, not by this service.
	Caller bool
	Summary string
}

var classes = map[Code]Class{
	CodeValidation:    {Caller: true, Summary: "validation failed"},
	CodeNotFound:      {Caller: true, Summary: "resource not found"},
	CodeConflict:      {Caller: true, Summary: "conflict detected"},
	CodeStateConflict: {Caller: true, Summary: "state transition disallowed"},
	CodeCompensation:  {Retryable: true, Summary: "operation rolled back"},
	CodeInternal:      {Retryable: true, Summary: "internal error"},
	CodeDependency:    {Retryable: true, Summary: "dependency unavailable"},
}

// ClassOf returns the class of code. Unknown codes are internal.
func ClassOf(code Code) Class {
	if class, ok := classes[code]; ok {
		return class
	}
	return classes[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to err. The cause stays reachable through
// errors.Is and errors.As but is left out of Error().
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	return As(err).Code()
}

// Is reports whether err carries the provided code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether repeating the failed call may succeed. Untyped
// errors count as internal and are retryable.
func Retryable(err error) bool {
	return err != nil && ClassOf(CodeOf(err)).Retryable
}
