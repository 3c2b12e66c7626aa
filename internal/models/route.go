package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Direction is the travel direction of a shuttle route
type Direction string

const (
	DirectionOutbound Direction = "outbound" // Changping campus to Yanyuan
	DirectionReturn   Direction = "return"   // Yanyuan back to Changping
)

// SlotDateLayout and SlotTimeLayout are the portal's date and clock formats
const (
	SlotDateLayout = "2006-01-02"
	SlotTimeLayout = "15:04"
)

// ParseDirection parses a direction name; empty input is rejected
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionOutbound:
		return DirectionOutbound, nil
	case DirectionReturn:
		return DirectionReturn, nil
	}
	return "", fmt.Errorf("invalid direction %q (must be 'outbound' or 'return')", s)
}

// Opposite returns the other direction
func (d Direction) Opposite() Direction {
	if d == DirectionOutbound {
		return DirectionReturn
	}
	return DirectionOutbound
}

// Valid reports whether d is one of the known directions
func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionReturn
}

// Route is one direction-specific shuttle line as listed by the portal
type Route struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Direction Direction `json:"direction,omitempty"`
	Slots     []Slot    `json:"slots"`
}

// Slot is one scheduled departure of a route.
// Time carries no zone; it is read in the account's home timezone.
type Slot struct {
	ID             int    `json:"id"` // portal period/time id
	Date           string `json:"date"`
	Time           string `json:"time"`
	RemainingSeats int    `json:"remaining_seats"`
}

// DepartureAt resolves the slot's wall-clock departure in loc
func (s Slot) DepartureAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(SlotDateLayout+" "+SlotTimeLayout, s.Date+" "+s.Time, loc)
}

// AppointmentTime is the "date time" string the portal echoes back on appointments
func (s Slot) AppointmentTime() string {
	return s.Date + " " + s.Time
}

// Selectable reports whether the slot still has seats
func (s Slot) Selectable() bool {
	return s.RemainingSeats > 0
}

// RouteMapping statically maps route ids to directions
type RouteMapping map[int]Direction

// NewRouteMapping builds a mapping from the outbound and return id lists
func NewRouteMapping(outbound, ret []int) (RouteMapping, error) {
	m := make(RouteMapping, len(outbound)+len(ret))
	for _, id := range outbound {
		m[id] = DirectionOutbound
	}
	for _, id := range ret {
		if m[id] == DirectionOutbound {
			return nil, fmt.Errorf("route %d is mapped to both directions", id)
		}
		m[id] = DirectionReturn
	}
	return m, nil
}

// DirectionOf returns the direction of a route id, if mapped
func (m RouteMapping) DirectionOf(routeID int) (Direction, bool) {
	d, ok := m[routeID]
	return d, ok
}

// RouteIDs returns the ids mapped to a direction in ascending order
func (m RouteMapping) RouteIDs(d Direction) []int {
	ids := make([]int, 0, len(m))
	for id, dir := range m {
		if dir == d {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
