package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
)

func weekdaysMonFri() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Monday:    true,
		time.Tuesday:   true,
		time.Wednesday: true,
		time.Thursday:  true,
		time.Friday:    true,
	}
}

func TestNextTeachingDaySkipsWeekend(t *testing.T) {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)

	// 2024-01-06 is a Saturday.
	next := calc.NextTeachingDay(date(2024, time.January, 6), weekdaysMonFri())
	assert.Equal(t, date(2024, time.January, 8), next)

	// A teaching day maps to itself.
	same := calc.NextTeachingDay(date(2024, time.January, 8), weekdaysMonFri())
	assert.Equal(t, date(2024, time.January, 8), same)
}

func TestNextTeachingDayExhaustedFallsBackToCandidate(t *testing.T) {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)

	candidate := date(2024, time.January, 6)
	got := calc.NextTeachingDay(candidate, map[time.Weekday]bool{})
	assert.Equal(t, candidate, got)
}

func TestTeachingDaysBetween(t *testing.T) {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)

	// Mon 2024-01-01 through Sun 2024-01-07.
	days := calc.TeachingDaysBetween(date(2024, time.January, 1), date(2024, time.January, 7), weekdaysMonFri())
	require.Len(t, days, 5)
	assert.Equal(t, date(2024, time.January, 1), days[0])
	assert.Equal(t, date(2024, time.January, 5), days[4])
}

func TestNextOpenSlotSkipsBlockedSlots(t *testing.T) {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)
	events := []*models.ScheduleEvent{
		{ID: -1, Date: date(2024, time.January, 1), Period: 1, EventType: models.EventTypeSpecial, Category: "holiday"},
		{ID: -2, Date: date(2024, time.January, 2), Period: 1, EventType: models.EventTypeError, Category: "error"},
	}

	slot := calc.NextOpenSlot(date(2024, time.January, 1), 1, weekdaysMonFri(), events)

	// The special blocks Monday; the error on Tuesday does not block.
	assert.Equal(t, date(2024, time.January, 2), slot)
}

func TestNextOpenSlotIgnoresOtherPeriods(t *testing.T) {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)
	events := []*models.ScheduleEvent{
		{ID: -1, Date: date(2024, time.January, 1), Period: 2, EventType: models.EventTypeSpecial, Category: "holiday"},
	}

	slot := calc.NextOpenSlot(date(2024, time.January, 1), 1, weekdaysMonFri(), events)
	assert.Equal(t, date(2024, time.January, 1), slot)
}

func TestPreviousOpenSlotWalksBackward(t *testing.T) {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)
	events := []*models.ScheduleEvent{
		{ID: -1, Date: date(2024, time.January, 3), Period: 1, EventType: models.EventTypeSpecial, Category: "holiday"},
	}

	slot := calc.PreviousOpenSlot(date(2024, time.January, 3), 1, weekdaysMonFri(), events)
	assert.Equal(t, date(2024, time.January, 2), slot)
}

func TestIsSlotBlocked(t *testing.T) {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)
	lessonID := "L1"
	events := []*models.ScheduleEvent{
		{ID: -1, Date: date(2024, time.January, 1), Period: 1, LessonID: &lessonID, EventType: models.EventTypeLesson},
		{ID: -2, Date: date(2024, time.January, 2), Period: 1, EventType: models.EventTypeFree},
	}

	assert.False(t, calc.IsSlotBlocked(date(2024, time.January, 1), 1, events), "lesson events do not block")
	assert.True(t, calc.IsSlotBlocked(date(2024, time.January, 2), 1, events), "free placeholders block")
	assert.False(t, calc.IsSlotBlocked(date(2024, time.January, 3), 1, events))
}
