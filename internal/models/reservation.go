package models

import "time"

// CodeType distinguishes the two kinds of scannable codes
type CodeType string

const (
	CodeTypeBoarding CodeType = "boarding" // for a confirmed reservation
	CodeTypeCatchUp  CodeType = "catch_up" // for a bus that already departed
)

// Reservation is a booking created on the portal for an upcoming slot
type Reservation struct {
	BookingID    int    `json:"booking_id"`     // appointment id
	BookingSubID int    `json:"booking_sub_id"` // hall appointment data id
	RouteID      int    `json:"route_id"`
	RouteName    string `json:"route_name"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

// ScheduledAt is the reservation's "date time" departure
func (r Reservation) ScheduledAt() string {
	return r.Date + " " + r.Time
}

// Appointment is one entry of the account's appointment listing
type Appointment struct {
	ID              int    `json:"id"`
	DataID          int    `json:"data_id"`
	RouteID         int    `json:"route_id"`
	RouteName       string `json:"route_name"`
	AppointmentTime string `json:"appointment_time"`
	StatusName      string `json:"status_name"`
	SignTime        string `json:"sign_time,omitempty"`
}

// AppointmentStatusRevoked is the portal's status name for a cancelled appointment
const AppointmentStatusRevoked = "已撤销"

// Revoked reports whether the appointment was cancelled
func (a Appointment) Revoked() bool {
	return a.StatusName == AppointmentStatusRevoked
}

// BoardingCode is a scannable code plus the route/time it vouches for.
// It is a short-lived capability token and is never cached.
type BoardingCode struct {
	Type          CodeType  `json:"type"`
	RouteName     string    `json:"route_name"`
	ScheduledTime string    `json:"scheduled_time"`
	Text          string    `json:"text"`
	ImagePNG      string    `json:"image_png"` // base64 encoded PNG
	HolderName    string    `json:"holder_name,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
}
