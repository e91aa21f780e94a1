package llm

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an invocation failure. Timeout, rate-limit, and
// server errors are transient and eligible for retry; auth and
// malformed-request errors are fatal because retrying cannot fix them.
type ErrorClass string

const (
	ClassTimeout          ErrorClass = "timeout"
	ClassRateLimited      ErrorClass = "rate_limited"
	ClassServerError      ErrorClass = "server_error"
	ClassAuthError        ErrorClass = "auth_error"
	ClassMalformedRequest ErrorClass = "malformed_request"
)

// InvocationError is a classified failure from the LLM service.
type InvocationError struct {
	Class ErrorClass
	Msg   string
	Err   error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("llm invocation failed (%s): %s", e.Class, e.Msg)
	}
	return fmt.Sprintf("llm invocation failed (%s)", e.Class)
}

// Unwrap exposes the underlying provider error, if any.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error class is transient.
func (e *InvocationError) Retryable() bool {
	switch e.Class {
	case ClassTimeout, ClassRateLimited, ClassServerError:
		return true
	}
	return false
}

// NewError builds an [InvocationError] with the given class and message.
func NewError(class ErrorClass, msg string) *InvocationError {
	return &InvocationError{Class: class, Msg: msg}
}

// Retryable reports whether err is a transient [InvocationError]. Any other
// error, including context cancellation, is not retryable.
func Retryable(err error) bool {
	var ie *InvocationError
	if errors.As(err, &ie) {
		return ie.Retryable()
	}
	return false
}
