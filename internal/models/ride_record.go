package models

import (
	"time"

	"github.com/google/uuid"
)

// RideRecordStatus is the outcome recorded in the ride journal
type RideRecordStatus string

const (
	RideStatusReserved  RideRecordStatus = "reserved"
	RideStatusCatchUp   RideRecordStatus = "catch_up"
	RideStatusCancelled RideRecordStatus = "cancelled"
	RideStatusFailed    RideRecordStatus = "failed"
)

// RideRecord is one journal row describing a reserve or cancel outcome
type RideRecord struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	Status       RideRecordStatus `json:"status" db:"status"`
	Directions   StringArray      `json:"directions" db:"directions"` // tried, in order
	CodeType     *string          `json:"code_type,omitempty" db:"code_type"`
	RouteName    *string          `json:"route_name,omitempty" db:"route_name"`
	ScheduledAt  *string          `json:"scheduled_at,omitempty" db:"scheduled_at"`
	BookingID    *int             `json:"booking_id,omitempty" db:"booking_id"`
	BookingSubID *int             `json:"booking_sub_id,omitempty" db:"booking_sub_id"`
	Message      string           `json:"message" db:"message"`
	Trigger      string           `json:"trigger" db:"trigger"` // api or cron
	ClientIP     *string          `json:"client_ip,omitempty" db:"client_ip"`
	DeviceType   *string          `json:"device_type,omitempty" db:"device_type"`
	UserAgent    *string          `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// RequestOrigin describes who triggered a pipeline run
type RequestOrigin struct {
	Trigger    string
	ClientIP   string
	UserAgent  string
	DeviceType string
}

// Ride journal triggers
const (
	TriggerAPI  = "api"
	TriggerCron = "cron"
)
