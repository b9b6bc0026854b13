package service

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
)

// ShiftEngine re-dates already-placed lesson events when a special day is
// inserted into or removed from a period column. Both operations are scoped
// to a single period, mutate the shared event collection in place, and are
// deterministic: re-running with unchanged inputs recomputes identical
// dates.
type ShiftEngine struct {
	calc    *TeachingDayCalculator
	logger  *zap.Logger
	metrics *MetricsService
}

// NewShiftEngine constructs the engine.
func NewShiftEngine(calc *TeachingDayCalculator, logger *zap.Logger, metrics *MetricsService) *ShiftEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShiftEngine{calc: calc, logger: logger, metrics: metrics}
}

// ShiftForward moves the period's lesson events dated on or after the
// insertion date one teaching day later, in chronological order, chaining
// the search cursor so no lesson lands before its predecessor's new date.
// Lessons whose computed date exceeds the configured end date are converted
// in place to error events; they are not retried later, even if the end
// date is subsequently extended. An error placeholder occupying a landing
// slot is replaced by the arriving lesson.
func (e *ShiftEngine) ShiftForward(schedule *models.Schedule, cfg *models.ScheduleConfig, insertionDate time.Time, period int) models.OperationResult {
	result := models.OperationResult{Success: true}
	weekdays := cfg.TeachingWeekdays()
	insertionDate = models.Day(insertionDate)

	lessons := e.collectLessons(schedule, period, func(d time.Time) bool {
		return !d.Before(insertionDate)
	})
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Date.Before(lessons[j].Date) })

	cursor := e.calc.NextTeachingDay(insertionDate.AddDate(0, 0, 1), weekdays)
	for _, lesson := range lessons {
		slot := e.calc.NextOpenSlot(cursor, period, weekdays, schedule.Events)

		if slot.After(models.Day(cfg.EndDate)) {
			e.overflow(schedule, lesson, slot, cfg)
			result.EventsOverflowed++
			result.AddWarning(fmt.Sprintf(
				"period %d: lesson could not be rescheduled within the date range and was marked as error on %s",
				period, slot.Format("2006-01-02"),
			))
			cursor = e.calc.NextTeachingDay(slot.AddDate(0, 0, 1), weekdays)
			continue
		}

		if !models.SameDay(lesson.Date, slot) {
			e.displacePlaceholder(schedule, slot, period, lesson)
			lesson.Date = slot
			schedule.Dirty = true
			result.EventsShifted++
		}
		cursor = e.calc.NextTeachingDay(slot.AddDate(0, 0, 1), weekdays)
	}

	if e.metrics != nil {
		e.metrics.RecordShift("forward", result.EventsShifted, result.EventsOverflowed)
	}
	e.logger.Info("forward shift complete",
		zap.Time("insertion_date", insertionDate),
		zap.Int("period", period),
		zap.Int("shifted", result.EventsShifted),
		zap.Int("overflowed", result.EventsOverflowed),
	)
	return result
}

// ShiftBackward moves the period's lesson events dated strictly after the
// deleted date onto the nearest earlier open teaching day, processing the
// latest lesson first so a later lesson never ends up on a slot a
// still-unprocessed earlier lesson vacates for it. Dates only move earlier,
// back into already-valid range, so no overflow case exists here.
func (e *ShiftEngine) ShiftBackward(schedule *models.Schedule, cfg *models.ScheduleConfig, deletedDate time.Time, period int) models.OperationResult {
	result := models.OperationResult{Success: true}
	weekdays := cfg.TeachingWeekdays()
	deletedDate = models.Day(deletedDate)

	lessons := e.collectLessons(schedule, period, func(d time.Time) bool {
		return d.After(deletedDate)
	})
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Date.After(lessons[j].Date) })

	for _, lesson := range lessons {
		slot := e.calc.PreviousOpenSlot(lesson.Date.AddDate(0, 0, -1), period, weekdays, schedule.Events)
		if !slot.Before(models.Day(lesson.Date)) {
			continue
		}
		if slot.Before(deletedDate) {
			// The opening created by the deletion is the earliest slot any
			// lesson may take; never pull lessons past it.
			slot = deletedDate
			if e.calc.IsSlotBlocked(slot, period, schedule.Events) || !e.calc.IsTeachingDay(slot, weekdays) {
				continue
			}
		}
		e.displacePlaceholder(schedule, slot, period, lesson)
		lesson.Date = slot
		schedule.Dirty = true
		result.EventsShifted++
	}

	if e.metrics != nil {
		e.metrics.RecordShift("backward", result.EventsShifted, 0)
	}
	e.logger.Info("backward shift complete",
		zap.Time("deleted_date", deletedDate),
		zap.Int("period", period),
		zap.Int("shifted", result.EventsShifted),
	)
	return result
}

func (e *ShiftEngine) collectLessons(schedule *models.Schedule, period int, include func(time.Time) bool) []*models.ScheduleEvent {
	var lessons []*models.ScheduleEvent
	for _, ev := range schedule.Events {
		if ev.Period == period && ev.EventType == models.EventTypeLesson && include(models.Day(ev.Date)) {
			lessons = append(lessons, ev)
		}
	}
	return lessons
}

// displacePlaceholder removes an error placeholder sitting on the landing
// slot. Lessons are never displaced: a lesson found there is itself about to
// move as part of the same operation.
func (e *ShiftEngine) displacePlaceholder(schedule *models.Schedule, slot time.Time, period int, arriving *models.ScheduleEvent) {
	occupant := schedule.EventAt(slot, period)
	if occupant == nil || occupant == arriving || occupant.EventType != models.EventTypeError {
		return
	}
	schedule.RemoveEventAt(slot, period)
}

// overflow converts a lesson event into a permanent error marker at the
// computed out-of-range date. The dropped lesson's identity is kept in the
// comment so an operator can re-add it after extending the schedule.
func (e *ShiftEngine) overflow(schedule *models.Schedule, lesson *models.ScheduleEvent, slot time.Time, cfg *models.ScheduleConfig) {
	dropped := ""
	if lesson.LessonID != nil {
		dropped = *lesson.LessonID
	}
	comment := fmt.Sprintf(
		"lesson %s could not be placed before the schedule end date %s",
		dropped, cfg.EndDate.Format("2006-01-02"),
	)
	lesson.Date = slot
	lesson.LessonID = nil
	lesson.EventType = models.EventTypeError
	lesson.Category = categoryError
	lesson.Comment = &comment
	schedule.Dirty = true
}
