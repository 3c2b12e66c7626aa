package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Phase names one step of the portal interaction
type Phase string

const (
	PhaseAuthenticate      Phase = "authenticate"
	PhaseListTimetable     Phase = "list_timetable"
	PhaseSubmitReservation Phase = "submit_reservation"
	PhaseResolveBooking    Phase = "resolve_appointment"
	PhaseFetchCode         Phase = "fetch_code"
	PhaseCancel            Phase = "cancel"
)

// ErrSessionRejected means the portal no longer accepts the session's cookies
var ErrSessionRejected = errors.New("portal session rejected")

// PhaseError tags an error with the phase it happened in
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("portal %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

func wrapPhase(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Err: err}
}

// APIError is a non-zero status embedded in a portal response body
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal returned status %d: %s", e.Code, e.Message)
}

// LoginRejectedError means the authentication endpoint refused the credentials
type LoginRejectedError struct {
	Code    string
	Message string
}

func (e *LoginRejectedError) Error() string {
	return fmt.Sprintf("login rejected: %s (error code: %s)", e.Message, e.Code)
}

// DecodeError means a response body could not be parsed
type DecodeError struct {
	Snippet string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to parse portal response %q: %v", e.Snippet, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusError is an unexpected HTTP status
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// IsTransient reports whether err is worth retrying: timeouts, network
// failures, 5xx answers and unparseable bodies.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var rejected *LoginRejectedError
	if errors.As(err, &rejected) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return false
}
