package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the reservation pipeline
type ErrorKind string

const (
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindFetch          ErrorKind = "fetch"
	ErrorKindReservation    ErrorKind = "reservation"
	ErrorKindCodeRetrieval  ErrorKind = "code_retrieval"
	ErrorKindCancellation   ErrorKind = "cancellation"
)

// ShuttleError is a classified failure of one pipeline stage
type ShuttleError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewShuttleError creates a classified error wrapping err
func NewShuttleError(kind ErrorKind, message string, err error) *ShuttleError {
	return &ShuttleError{Kind: kind, Message: message, Err: err}
}

func (e *ShuttleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ShuttleError) Unwrap() error {
	return e.Err
}

// IsErrorKind reports whether err is a ShuttleError of the given kind
func IsErrorKind(err error, kind ErrorKind) bool {
	var se *ShuttleError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
