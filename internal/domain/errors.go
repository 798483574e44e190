package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorValidation         ErrorCode = "VALIDATION"
	ErrorUpstream           ErrorCode = "UPSTREAM"
	ErrorSafetyRejected     ErrorCode = "SAFETY_REJECTED"
	ErrorNotFound           ErrorCode = "NOT_FOUND"
	ErrorDocumentProcessing ErrorCode = "DOCUMENT_PROCESSING"
	ErrorTooLarge           ErrorCode = "TOO_LARGE"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewValidationError(message string, err error) *Error {
	return &Error{Code: ErrorValidation, Message: message, Err: err}
}

func NewUpstreamError(message string, err error) *Error {
	return &Error{Code: ErrorUpstream, Message: message, Err: err}
}

func NewNotFoundError(resource, id string) *Error {
	return &Error{Code: ErrorNotFound, Message: fmt.Sprintf("%s with id '%s' not found", resource, id)}
}

func NewDocumentProcessingError(message string, err error) *Error {
	return &Error{Code: ErrorDocumentProcessing, Message: message, Err: err}
}

func NewTooLargeError(message string) *Error {
	return &Error{Code: ErrorTooLarge, Message: message}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func IsNotFound(err error) bool   { return CodeOf(err) == ErrorNotFound }
func IsValidation(err error) bool { return CodeOf(err) == ErrorValidation }
