package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Failure taxonomy. Per-page failures (OCR, completion) are degraded and
// recorded in the page result; only ErrInvalidInput and ErrConfiguration
// are fatal at the top level.
var (
	ErrInvalidInput    = errors.New("invalid input path")
	ErrEmptyCompletion = errors.New("empty completion")
	ErrMalformedJSON   = errors.New("malformed json in completion")
	ErrConfiguration   = errors.New("configuration error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorChain renders an error and every wrapped cause, outermost first.
// Fatal log records carry it as a trace of where the failure came from.
func ErrorChain(err error) []string {
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	return chain
}
