// Package portal is the client side of the university reservation portal.
//
// A Client is session scoped: it owns the transport state (cookies, token) of one
// authenticated session. Discarding a session means discarding its Client and asking
// the Factory for a new one.
package portal

import (
	"context"

	"github.com/marchkov/shuttle-backend/internal/models"
)

// Appointment listing statuses understood by the portal
const (
	AppointmentStatusAll       = 0
	AppointmentStatusConfirmed = 2
)

// Credentials identify the portal account
type Credentials struct {
	Username string
	Password string
}

// LaunchRequest submits a reservation for one slot
type LaunchRequest struct {
	RouteID int
	Date    string
	Period  int
}

// LaunchResult is the portal's answer to a reservation submission.
// The portal does not return a booking id here.
type LaunchResult struct {
	Code    int
	Message string
}

// OK reports whether the portal accepted the submission
func (r LaunchResult) OK() bool {
	return r.Code == 0
}

// AppointmentQuery selects a page of the account's appointments
type AppointmentQuery struct {
	Page       int
	PageSize   int // 0 means all
	Status     int
	Descending bool
}

// CodeResult is the raw code text returned by the portal
type CodeResult struct {
	Code string
	Name string // holder name lines, "\r\n" separated
}

// Client is one authenticated (or authenticating) session against the portal
type Client interface {
	Login(ctx context.Context, creds Credentials) (string, error)
	Timetable(ctx context.Context, date string) ([]models.Route, error)
	Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error)
	Appointments(ctx context.Context, q AppointmentQuery) ([]models.Appointment, error)
	BoardingCode(ctx context.Context, appointmentID, dataID int) (CodeResult, error)
	CatchUpCode(ctx context.Context, routeID int, startTime string) (CodeResult, error)
	Cancel(ctx context.Context, appointmentID, dataID int) error
}

// RouteProber is implemented by transports that read one route page at a time.
// Probes are read-only and may run concurrently.
type RouteProber interface {
	ProbeRoute(ctx context.Context, routeID int, date string) (models.Route, error)
}

// Factory creates a Client with fresh transport state
type Factory func() (Client, error)
