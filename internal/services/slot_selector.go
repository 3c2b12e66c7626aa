package services

import (
	"fmt"
	"time"

	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/pkg/validator"
)

// ExpiredPolicy decides which expired slot wins when several qualify
type ExpiredPolicy string

const (
	// FirstExpired returns the first expired slot in route/slot order
	FirstExpired ExpiredPolicy = "first"
	// ClosestExpired returns the expired slot that departed most recently
	ClosestExpired ExpiredPolicy = "closest"
)

// ParseExpiredPolicy parses a policy name
func ParseExpiredPolicy(s string) (ExpiredPolicy, error) {
	switch ExpiredPolicy(s) {
	case FirstExpired, "":
		return FirstExpired, nil
	case ClosestExpired:
		return ClosestExpired, nil
	}
	return "", fmt.Errorf("invalid expired slot policy %q (must be 'first' or 'closest')", s)
}

// SelectorConfig holds the inputs of slot selection that do not change per call
type SelectorConfig struct {
	Mapping      models.RouteMapping
	PrevInterval time.Duration // look-back window for catch-up codes
	NextInterval time.Duration // look-ahead window for reservations
	Policy       ExpiredPolicy
	Location     *time.Location // zone of the portal's wall-clock slot times
}

// SelectSlot picks the single slot to target for direction at now.
//
// A slot that departed within PrevInterval is expired and always wins over an
// upcoming one; a slot departing within NextInterval is upcoming, and the soonest
// upcoming slot is chosen. Slots without seats or on another date are skipped.
// The result depends only on the arguments.
func SelectSlot(now time.Time, direction models.Direction, timetable []models.Route, cfg SelectorConfig) models.SelectionDecision {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	today := now.Format(models.SlotDateLayout)

	prev := cfg.PrevInterval.Minutes()
	next := cfg.NextInterval.Minutes()

	var expired, upcoming models.SelectionDecision

	for ri := range timetable {
		route := &timetable[ri]
		if routeDirection(route, cfg.Mapping) != direction {
			continue
		}

		for si := range route.Slots {
			slot := &route.Slots[si]
			if !slot.Selectable() || slot.Date != today {
				continue
			}

			departure, err := slot.DepartureAt(loc)
			if err != nil {
				continue
			}
			diff := departure.Sub(now).Minutes()

			switch {
			case diff < 0 && diff > -prev:
				if cfg.Policy != ClosestExpired {
					return decision(models.ClassificationExpired, direction, route, slot, diff)
				}
				if expired.Slot == nil || diff > expired.OffsetMinutes {
					expired = decision(models.ClassificationExpired, direction, route, slot, diff)
				}
			case diff >= 0 && diff < next:
				if upcoming.Slot == nil || diff < upcoming.OffsetMinutes {
					upcoming = decision(models.ClassificationUpcoming, direction, route, slot, diff)
				}
			}
		}
	}

	if expired.Slot != nil {
		return expired
	}
	if upcoming.Slot != nil {
		return upcoming
	}
	return models.NoSelection()
}

// DirectionAt derives the travel direction from the time of day. Before the
// cutoff the morning direction applies, from the cutoff on its inverse.
func DirectionAt(now time.Time, cutoff validator.ClockTime, morningToOutbound bool, loc *time.Location) models.Direction {
	if loc != nil {
		now = now.In(loc)
	}
	morning := models.DirectionReturn
	if morningToOutbound {
		morning = models.DirectionOutbound
	}

	if now.Hour()*60+now.Minute() < cutoff.MinutesSinceMidnight() {
		return morning
	}
	return morning.Opposite()
}

func routeDirection(route *models.Route, mapping models.RouteMapping) models.Direction {
	if mapping != nil {
		d, _ := mapping.DirectionOf(route.ID)
		return d
	}
	return route.Direction
}

// decision copies route and slot so the result shares nothing with the timetable
func decision(class models.Classification, direction models.Direction, route *models.Route, slot *models.Slot, diff float64) models.SelectionDecision {
	r := models.Route{ID: route.ID, Name: route.Name, Direction: direction}
	s := *slot
	return models.SelectionDecision{
		Classification: class,
		Route:          &r,
		Slot:           &s,
		OffsetMinutes:  diff,
	}
}
