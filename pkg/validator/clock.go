package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrEmptyClock indicates the clock value is empty
	ErrEmptyClock = errors.New("clock time cannot be empty")

	// ErrInvalidClockFormat indicates the value is not H, HH or HH:MM
	ErrInvalidClockFormat = errors.New("clock time must be H, HH or HH:MM")

	// ErrClockOutOfRange indicates hour or minute is out of range
	ErrClockOutOfRange = errors.New("clock time must be between 00:00 and 23:59")
)

// clockRegex matches "14", "9" and "14:05"
var clockRegex = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?$`)

// ClockTime is a time of day with minute precision
type ClockTime struct {
	Hour   int
	Minute int
}

// MinutesSinceMidnight returns the clock time as an offset from midnight
func (c ClockTime) MinutesSinceMidnight() int {
	return c.Hour*60 + c.Minute
}

// String formats the clock time as HH:MM
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses a clock time like "14" or "14:00"
func ParseClock(value string) (ClockTime, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ClockTime{}, ErrEmptyClock
	}

	matches := clockRegex.FindStringSubmatch(value)
	if matches == nil {
		return ClockTime{}, ErrInvalidClockFormat
	}

	hour, _ := strconv.Atoi(matches[1])
	minute := 0
	if matches[2] != "" {
		minute, _ = strconv.Atoi(matches[2])
	}

	if hour > 23 || minute > 59 {
		return ClockTime{}, ErrClockOutOfRange
	}

	return ClockTime{Hour: hour, Minute: minute}, nil
}

// MustParseClock parses and panics if invalid (use for testing only)
func MustParseClock(value string) ClockTime {
	clock, err := ParseClock(value)
	if err != nil {
		panic(fmt.Sprintf("invalid clock time %s: %v", value, err))
	}
	return clock
}
