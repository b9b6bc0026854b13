package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
)

func newTestShiftEngine() *ShiftEngine {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)
	return NewShiftEngine(calc, zap.NewNop(), nil)
}

// generatedWeek builds the Scenario A layout: Mon=L1, Tue=L2, Wed=L3,
// Thu/Fri error placeholders.
func generatedWeek(t *testing.T) (*models.Schedule, *models.ScheduleConfig) {
	t.Helper()
	cfg := weekConfig()
	factory := newTestFactory()
	events, result := factory.BuildInitialEvents(cfg, threeLessons())
	require.True(t, result.Success)
	return &models.Schedule{ID: "sched-1", ConfigID: cfg.ID, Events: events}, cfg
}

func insertSpecial(schedule *models.Schedule, day time.Time, period int, label string) {
	schedule.Events = append(schedule.Events, &models.ScheduleEvent{
		ID:        schedule.NextLocalID(),
		Date:      day,
		Period:    period,
		EventType: models.EventTypeSpecial,
		Category:  label,
	})
}

func lessonDates(schedule *models.Schedule, period int) map[string]time.Time {
	dates := make(map[string]time.Time)
	for _, ev := range schedule.Events {
		if ev.Period == period && ev.EventType == models.EventTypeLesson && ev.LessonID != nil {
			dates[*ev.LessonID] = models.Day(ev.Date)
		}
	}
	return dates
}

func assertSlotUniqueness(t *testing.T, schedule *models.Schedule) {
	t.Helper()
	type slot struct {
		day    string
		period int
	}
	seen := make(map[slot]bool)
	for _, ev := range schedule.Events {
		key := slot{ev.Date.Format("2006-01-02"), ev.Period}
		assert.False(t, seen[key], "slot %v occupied twice", key)
		seen[key] = true
	}
}

func TestShiftForwardMakesRoomForSpecialDay(t *testing.T) {
	engine := newTestShiftEngine()
	schedule, cfg := generatedWeek(t)
	wed := date(2024, time.January, 3)

	insertSpecial(schedule, wed, 1, "excursion")
	result := engine.ShiftForward(schedule, cfg, wed, 1)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.EventsShifted)
	assert.Zero(t, result.EventsOverflowed)

	special := schedule.EventAt(wed, 1)
	require.NotNil(t, special)
	assert.Equal(t, models.EventTypeSpecial, special.EventType)

	thu := schedule.EventAt(date(2024, time.January, 4), 1)
	require.NotNil(t, thu)
	assert.Equal(t, models.EventTypeLesson, thu.EventType)
	require.NotNil(t, thu.LessonID)
	assert.Equal(t, "L3", *thu.LessonID)

	fri := schedule.EventAt(date(2024, time.January, 5), 1)
	require.NotNil(t, fri)
	assert.Equal(t, models.EventTypeError, fri.EventType)

	assertSlotUniqueness(t, schedule)
}

func TestShiftForwardLeavesEarlierLessonsAlone(t *testing.T) {
	engine := newTestShiftEngine()
	schedule, cfg := generatedWeek(t)
	wed := date(2024, time.January, 3)

	insertSpecial(schedule, wed, 1, "excursion")
	engine.ShiftForward(schedule, cfg, wed, 1)

	dates := lessonDates(schedule, 1)
	assert.Equal(t, date(2024, time.January, 1), dates["L1"])
	assert.Equal(t, date(2024, time.January, 2), dates["L2"])
}

func TestShiftForwardChainsConsecutiveLessons(t *testing.T) {
	engine := newTestShiftEngine()
	schedule, cfg := generatedWeek(t)
	cfg.EndDate = date(2024, time.January, 12)
	mon := date(2024, time.January, 1)

	insertSpecial(schedule, mon, 1, "holiday")
	result := engine.ShiftForward(schedule, cfg, mon, 1)

	assert.Equal(t, 3, result.EventsShifted)
	dates := lessonDates(schedule, 1)
	assert.Equal(t, date(2024, time.January, 2), dates["L1"])
	assert.Equal(t, date(2024, time.January, 3), dates["L2"])
	assert.Equal(t, date(2024, time.January, 4), dates["L3"])
	assertSlotUniqueness(t, schedule)
}

func TestShiftForwardOverflowConvertsLessonToError(t *testing.T) {
	engine := newTestShiftEngine()
	schedule, cfg := generatedWeek(t)
	// Shrink the range so the shifted lesson has nowhere to go: only the
	// original three lesson days remain in range.
	cfg.EndDate = date(2024, time.January, 3)
	schedule.Events = schedule.Events[:3]
	wed := date(2024, time.January, 3)

	insertSpecial(schedule, wed, 1, "excursion")
	result := engine.ShiftForward(schedule, cfg, wed, 1)

	assert.Equal(t, 1, result.EventsOverflowed)
	assert.Zero(t, result.EventsShifted)
	require.Len(t, result.Warnings, 1)

	dates := lessonDates(schedule, 1)
	assert.NotContains(t, dates, "L3", "overflowed lesson no longer carries its lesson id")

	var converted *models.ScheduleEvent
	for _, ev := range schedule.Events {
		if ev.EventType == models.EventTypeError && ev.Period == 1 {
			converted = ev
		}
	}
	require.NotNil(t, converted)
	require.NotNil(t, converted.Comment)
	assert.Contains(t, *converted.Comment, "L3")
	assert.True(t, converted.Date.After(cfg.EndDate))
}

func TestShiftBackwardRestoresScenarioALayout(t *testing.T) {
	engine := newTestShiftEngine()
	schedule, cfg := generatedWeek(t)
	wed := date(2024, time.January, 3)

	insertSpecial(schedule, wed, 1, "excursion")
	engine.ShiftForward(schedule, cfg, wed, 1)

	removed := schedule.RemoveEventAt(wed, 1)
	require.True(t, removed)
	result := engine.ShiftBackward(schedule, cfg, wed, 1)

	assert.Equal(t, 1, result.EventsShifted)
	dates := lessonDates(schedule, 1)
	assert.Equal(t, date(2024, time.January, 1), dates["L1"])
	assert.Equal(t, date(2024, time.January, 2), dates["L2"])
	assert.Equal(t, date(2024, time.January, 3), dates["L3"])
	assertSlotUniqueness(t, schedule)
}

func TestShiftRoundTripRestoresOriginalDates(t *testing.T) {
	engine := newTestShiftEngine()
	schedule, cfg := generatedWeek(t)
	cfg.EndDate = date(2024, time.January, 12)
	tue := date(2024, time.January, 2)

	before := lessonDates(schedule, 1)

	insertSpecial(schedule, tue, 1, "holiday")
	engine.ShiftForward(schedule, cfg, tue, 1)
	schedule.RemoveEventAt(tue, 1)
	engine.ShiftBackward(schedule, cfg, tue, 1)

	after := lessonDates(schedule, 1)
	assert.Equal(t, before, after)
	assertSlotUniqueness(t, schedule)
}

func TestShiftBackwardNeverPullsLessonsBeforeTheOpening(t *testing.T) {
	engine := newTestShiftEngine()
	schedule, cfg := generatedWeek(t)
	wed := date(2024, time.January, 3)

	// Delete the Wednesday lesson's slot occupant directly and shift: L1 and
	// L2 sit before the opening and must not move.
	require.True(t, schedule.RemoveEventAt(wed, 1))
	result := engine.ShiftBackward(schedule, cfg, wed, 1)

	assert.Zero(t, result.EventsShifted)
	dates := lessonDates(schedule, 1)
	assert.Equal(t, date(2024, time.January, 1), dates["L1"])
	assert.Equal(t, date(2024, time.January, 2), dates["L2"])
}

func TestShiftBackwardOrderingInvariant(t *testing.T) {
	engine := newTestShiftEngine()
	schedule, cfg := generatedWeek(t)
	cfg.EndDate = date(2024, time.January, 12)
	mon := date(2024, time.January, 1)

	insertSpecial(schedule, mon, 1, "holiday")
	engine.ShiftForward(schedule, cfg, mon, 1)
	schedule.RemoveEventAt(mon, 1)
	engine.ShiftBackward(schedule, cfg, mon, 1)

	dates := lessonDates(schedule, 1)
	assert.True(t, dates["L1"].Before(dates["L2"]))
	assert.True(t, dates["L2"].Before(dates["L3"]))
	assertSlotUniqueness(t, schedule)
}
