package services

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchkov/shuttle-backend/internal/models"
	"github.com/marchkov/shuttle-backend/pkg/validator"
)

const testDate = "2024-05-20"

var shanghai = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func at(clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", testDate+" "+clock, shanghai)
	if err != nil {
		panic(err)
	}
	return t
}

func slot(id int, clock string, seats int) models.Slot {
	return models.Slot{ID: id, Date: testDate, Time: clock, RemainingSeats: seats}
}

func testSelectorConfig() SelectorConfig {
	mapping, _ := models.NewRouteMapping([]int{2, 4}, []int{5, 6, 7})
	return SelectorConfig{
		Mapping:      mapping,
		PrevInterval: 10 * time.Minute,
		NextInterval: 60 * time.Minute,
		Policy:       FirstExpired,
		Location:     shanghai,
	}
}

func TestSelectSlot_UpcomingSkipsFullSlot(t *testing.T) {
	timetable := []models.Route{
		{ID: 2, Name: "昌平新校区→燕园", Slots: []models.Slot{slot(1, "14:00", 0), slot(2, "14:20", 3)}},
	}

	d := SelectSlot(at("13:55"), models.DirectionOutbound, timetable, testSelectorConfig())

	require.True(t, d.Found())
	assert.Equal(t, models.ClassificationUpcoming, d.Classification)
	assert.Equal(t, "14:20", d.Slot.Time)
	assert.Equal(t, 25.0, d.OffsetMinutes)
	assert.Equal(t, models.DirectionOutbound, d.Route.Direction)
}

func TestSelectSlot_ExpiredWinsOverUpcoming(t *testing.T) {
	timetable := []models.Route{
		{ID: 2, Slots: []models.Slot{slot(1, "13:58", 2), slot(2, "14:15", 5)}},
	}

	d := SelectSlot(at("14:00"), models.DirectionOutbound, timetable, testSelectorConfig())

	require.True(t, d.Found())
	assert.Equal(t, models.ClassificationExpired, d.Classification)
	assert.Equal(t, "13:58", d.Slot.Time)
	assert.Equal(t, -2.0, d.OffsetMinutes)
}

func TestSelectSlot_DepartingNowIsUpcoming(t *testing.T) {
	timetable := []models.Route{{ID: 5, Slots: []models.Slot{slot(1, "14:00", 1)}}}

	d := SelectSlot(at("14:00"), models.DirectionReturn, timetable, testSelectorConfig())

	assert.Equal(t, models.ClassificationUpcoming, d.Classification)
	assert.Equal(t, 0.0, d.OffsetMinutes)
}

func TestSelectSlot_WindowBoundsAreExclusive(t *testing.T) {
	timetable := []models.Route{
		{ID: 2, Slots: []models.Slot{slot(1, "13:50", 4), slot(2, "15:00", 4)}},
	}

	d := SelectSlot(at("14:00"), models.DirectionOutbound, timetable, testSelectorConfig())

	assert.Equal(t, models.ClassificationNone, d.Classification)
	assert.Nil(t, d.Slot)
	assert.Nil(t, d.Route)
}

func TestSelectSlot_SoonestUpcomingAcrossRoutes(t *testing.T) {
	timetable := []models.Route{
		{ID: 2, Slots: []models.Slot{slot(1, "14:40", 4)}},
		{ID: 4, Slots: []models.Slot{slot(2, "14:10", 4), slot(3, "14:30", 4)}},
		{ID: 5, Slots: []models.Slot{slot(4, "14:05", 4)}},
	}

	d := SelectSlot(at("14:00"), models.DirectionOutbound, timetable, testSelectorConfig())

	require.True(t, d.Found())
	assert.Equal(t, 4, d.Route.ID)
	assert.Equal(t, "14:10", d.Slot.Time)
}

func TestSelectSlot_UpcomingTieKeepsIterationOrder(t *testing.T) {
	timetable := []models.Route{
		{ID: 2, Slots: []models.Slot{slot(1, "14:10", 4)}},
		{ID: 4, Slots: []models.Slot{slot(2, "14:10", 4)}},
	}

	d := SelectSlot(at("14:00"), models.DirectionOutbound, timetable, testSelectorConfig())

	assert.Equal(t, 2, d.Route.ID)
}

func TestSelectSlot_ExpiredPolicies(t *testing.T) {
	timetable := []models.Route{
		{ID: 2, Slots: []models.Slot{slot(1, "13:52", 4)}},
		{ID: 4, Slots: []models.Slot{slot(2, "13:58", 4)}},
	}

	t.Run("first match wins", func(t *testing.T) {
		d := SelectSlot(at("14:00"), models.DirectionOutbound, timetable, testSelectorConfig())
		assert.Equal(t, "13:52", d.Slot.Time)
	})

	t.Run("closest expired", func(t *testing.T) {
		cfg := testSelectorConfig()
		cfg.Policy = ClosestExpired
		d := SelectSlot(at("14:00"), models.DirectionOutbound, timetable, cfg)
		assert.Equal(t, "13:58", d.Slot.Time)
	})
}

func TestSelectSlot_IgnoresOtherDatesAndDirections(t *testing.T) {
	timetable := []models.Route{
		{ID: 2, Slots: []models.Slot{{ID: 1, Date: "2024-05-21", Time: "14:10", RemainingSeats: 4}}},
		{ID: 5, Slots: []models.Slot{slot(2, "14:10", 4)}},
		{ID: 99, Slots: []models.Slot{slot(3, "14:10", 4)}},
	}

	d := SelectSlot(at("14:00"), models.DirectionOutbound, timetable, testSelectorConfig())
	assert.False(t, d.Found())
}

func TestSelectSlot_EmptyInputs(t *testing.T) {
	assert.False(t, SelectSlot(at("14:00"), models.DirectionOutbound, nil, testSelectorConfig()).Found())

	cfg := testSelectorConfig()
	cfg.Mapping = models.RouteMapping{}
	timetable := []models.Route{{ID: 2, Slots: []models.Slot{slot(1, "14:10", 4)}}}
	assert.False(t, SelectSlot(at("14:00"), models.DirectionOutbound, timetable, cfg).Found())
}

func TestSelectSlot_NeverPicksFullSlotAndIsPure(t *testing.T) {
	timetable := []models.Route{
		{ID: 2, Slots: []models.Slot{slot(1, "13:55", 0), slot(2, "13:59", 0), slot(3, "14:05", 0), slot(4, "14:30", 1)}},
		{ID: 4, Slots: []models.Slot{slot(5, "14:01", 0)}},
	}
	cfg := testSelectorConfig()

	for minute := 0; minute < 90; minute++ {
		now := at("13:30").Add(time.Duration(minute) * time.Minute)
		first := SelectSlot(now, models.DirectionOutbound, timetable, cfg)
		second := SelectSlot(now, models.DirectionOutbound, timetable, cfg)

		assert.Equal(t, first, second)
		if first.Found() {
			assert.Greater(t, first.Slot.RemainingSeats, 0)
			assert.Equal(t, 4, first.Slot.ID)
		}
	}
}

func TestSelectSlot_ResultDoesNotAliasTimetable(t *testing.T) {
	timetable := []models.Route{{ID: 2, Slots: []models.Slot{slot(1, "14:10", 4)}}}

	d := SelectSlot(at("14:00"), models.DirectionOutbound, timetable, testSelectorConfig())
	d.Slot.RemainingSeats = 0

	assert.Equal(t, 4, timetable[0].Slots[0].RemainingSeats)
}

func TestSelectSlot_UsesRouteDirectionWithoutMapping(t *testing.T) {
	cfg := testSelectorConfig()
	cfg.Mapping = nil
	timetable := []models.Route{
		{ID: 1, Direction: models.DirectionReturn, Slots: []models.Slot{slot(1, "14:10", 4)}},
	}

	assert.True(t, SelectSlot(at("14:00"), models.DirectionReturn, timetable, cfg).Found())
	assert.False(t, SelectSlot(at("14:00"), models.DirectionOutbound, timetable, cfg).Found())
}

func TestDirectionAt(t *testing.T) {
	cutoff := validator.MustParseClock("14:00")

	tests := []struct {
		name     string
		now      string
		morning  bool
		expected models.Direction
	}{
		{"before cutoff with morning flag", "13:55", true, models.DirectionOutbound},
		{"at cutoff with morning flag", "14:00", true, models.DirectionReturn},
		{"after cutoff with morning flag", "14:05", true, models.DirectionReturn},
		{"before cutoff without morning flag", "09:00", false, models.DirectionReturn},
		{"after cutoff without morning flag", "18:00", false, models.DirectionOutbound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DirectionAt(at(tc.now), cutoff, tc.morning, shanghai))
		})
	}
}

func TestDirectionAt_ConvertsToHomeZone(t *testing.T) {
	cutoff := validator.MustParseClock("14")
	// 05:55 UTC is 13:55 in Shanghai
	now := time.Date(2024, 5, 20, 5, 55, 0, 0, time.UTC)

	assert.Equal(t, models.DirectionOutbound, DirectionAt(now, cutoff, true, shanghai))
}

func TestParseExpiredPolicy(t *testing.T) {
	p, err := ParseExpiredPolicy("closest")
	require.NoError(t, err)
	assert.Equal(t, ClosestExpired, p)

	p, err = ParseExpiredPolicy("")
	require.NoError(t, err)
	assert.Equal(t, FirstExpired, p)

	_, err = ParseExpiredPolicy("latest")
	assert.Error(t, err)
}
