package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
)

func newTestGenerator() *SequenceGenerator {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)
	return NewSequenceGenerator(calc, zap.NewNop())
}

func TestContinuePlacesNewLessonAfterExistingAssignments(t *testing.T) {
	generator := newTestGenerator()
	analyzer := NewSequenceAnalyzer(zap.NewNop())
	schedule, cfg := generatedWeek(t)
	sequences := fourLessons()

	snapshot := lessonDates(schedule, 1)
	points, _ := analyzer.FindContinuationPoints(schedule, cfg, sequences, date(2024, time.January, 3))
	require.Len(t, points, 1)

	results := generator.Continue(schedule, cfg, points, sequences)

	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].EventsAdded)
	assert.Equal(t, 3, results[0].LastAssignedIndex)
	assert.Zero(t, results[0].LessonsRemaining)
	assert.False(t, results[0].Overflowed)

	// L4 supersedes Thursday's placeholder; Friday's remains.
	dates := lessonDates(schedule, 1)
	assert.Equal(t, date(2024, time.January, 4), dates["L4"])
	friday := eventAt(schedule.Events, date(2024, time.January, 5), 1)
	require.NotNil(t, friday)
	assert.Equal(t, models.EventTypeError, friday.EventType)

	// Existing placements are untouched.
	for id, day := range snapshot {
		assert.Equal(t, day, dates[id])
	}
	assertSlotUniqueness(t, schedule)
}

func TestContinueSkipsBlockedSlots(t *testing.T) {
	generator := newTestGenerator()
	schedule, cfg := generatedWeek(t)
	require.True(t, schedule.RemoveEventAt(date(2024, time.January, 4), 1))
	insertSpecial(schedule, date(2024, time.January, 4), 1, "holiday")
	sequences := fourLessons()

	results := generator.Continue(schedule, cfg, []ContinuationPoint{{
		Period:            1,
		CourseID:          "course-1",
		LastAssignedIndex: 2,
		ContinuationDate:  date(2024, time.January, 4),
	}}, sequences)

	require.Len(t, results, 1)
	dates := lessonDates(schedule, 1)
	assert.Equal(t, date(2024, time.January, 5), dates["L4"])
	assertSlotUniqueness(t, schedule)
}

func TestContinueEmitsErrorEventOnOverflow(t *testing.T) {
	generator := newTestGenerator()
	schedule, cfg := generatedWeek(t)
	sequences := fourLessons()

	// Shrink the range so the first open slot already lies beyond it. Thu
	// still carries a placeholder; the overflow marker takes its place.
	cfg.EndDate = date(2024, time.January, 3)

	results := generator.Continue(schedule, cfg, []ContinuationPoint{{
		Period:            1,
		CourseID:          "course-1",
		LastAssignedIndex: 2,
		ContinuationDate:  date(2024, time.January, 4),
	}}, sequences)

	require.Len(t, results, 1)
	assert.True(t, results[0].Overflowed)
	assert.Equal(t, 1, results[0].EventsAdded)
	assert.Equal(t, 2, results[0].LastAssignedIndex, "no lesson was placed")
	assert.Equal(t, 1, results[0].LessonsRemaining)

	var overflow *models.ScheduleEvent
	for _, ev := range schedule.Events {
		if ev.EventType == models.EventTypeError && ev.Comment != nil {
			overflow = ev
		}
	}
	require.NotNil(t, overflow)
	assert.Contains(t, *overflow.Comment, "course-1")
	assert.True(t, overflow.Date.After(models.Day(cfg.EndDate)))
	assertSlotUniqueness(t, schedule)
}

func TestContinueUsesProvisionalIDs(t *testing.T) {
	generator := newTestGenerator()
	schedule, cfg := generatedWeek(t)
	require.True(t, schedule.RemoveEventAt(date(2024, time.January, 4), 1))
	require.True(t, schedule.RemoveEventAt(date(2024, time.January, 5), 1))
	sequences := fourLessons()

	before := len(schedule.Events)
	generator.Continue(schedule, cfg, []ContinuationPoint{{
		Period:            1,
		CourseID:          "course-1",
		LastAssignedIndex: 2,
		ContinuationDate:  date(2024, time.January, 4),
	}}, sequences)

	require.Greater(t, len(schedule.Events), before)
	seen := make(map[int64]bool)
	for _, ev := range schedule.Events {
		assert.Negative(t, ev.ID)
		assert.False(t, seen[ev.ID], "duplicate provisional id %d", ev.ID)
		seen[ev.ID] = true
	}
	assert.True(t, schedule.Dirty)
}
