package models

import (
	"errors"
	"time"
)

var errMissingDirection = errors.New("direction is required when is_first_attempt is false")

// ReserveRequest is the body of POST /shuttle/reserve.
// When IsFirstAttempt is set the direction is derived from the clock and Direction is ignored.
type ReserveRequest struct {
	IsFirstAttempt bool      `json:"is_first_attempt"`
	Direction      Direction `json:"direction"`
}

// Validate validates the reserve request and rewrites Direction to its canonical form
func (r *ReserveRequest) Validate() error {
	if r.IsFirstAttempt {
		return nil
	}
	if r.Direction == "" {
		return errMissingDirection
	}
	d, err := ParseDirection(string(r.Direction))
	if err != nil {
		return err
	}
	r.Direction = d
	return nil
}

// CancelRequest is the body of POST /shuttle/cancel
// BookingSubID is a pointer so that a sub-id of 0 is accepted while a missing one is not.
type CancelRequest struct {
	BookingID    int  `json:"booking_id" binding:"required"`
	BookingSubID *int `json:"booking_sub_id" binding:"required"`
}

// ActionResult is the uniform outcome of login and cancel
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ReserveResult is the uniform outcome of a reserve call.
// Booking ids are only present for boarding codes.
type ReserveResult struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	Direction     Direction `json:"direction,omitempty"`
	CodeType      CodeType  `json:"code_type,omitempty"`
	RouteName     string    `json:"route_name,omitempty"`
	ScheduledTime string    `json:"scheduled_time,omitempty"`
	CodePayload   string    `json:"code_payload,omitempty"` // base64 PNG
	CodeText      string    `json:"code_text,omitempty"`
	BookingID     *int      `json:"booking_id,omitempty"`
	BookingSubID  *int      `json:"booking_sub_id,omitempty"`
}

// HistoryResult lists past rides of the account
type HistoryResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Rides   []Appointment `json:"rides"`
}

// OverviewResult is today's timetable and the account's upcoming appointments
type OverviewResult struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Date         string        `json:"date"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Routes       []Route       `json:"routes"`
	Appointments []Appointment `json:"appointments"`
}
