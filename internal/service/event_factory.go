package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
)

// event categories surfaced to the calendar-rendering collaborator.
const (
	categoryLesson = "lesson"
	categoryError  = "error"
	categoryFree   = "free"
)

const commentNoLesson = "no lesson assigned"

// EventFactory builds the complete initial event grid for a fresh
// configuration: one event per configured period on every teaching day in
// range. It never validates the configuration; callers gate on
// ConfigService.ValidateForGeneration before invoking it.
type EventFactory struct {
	calc   *TeachingDayCalculator
	logger *zap.Logger
}

// NewEventFactory constructs the factory.
func NewEventFactory(calc *TeachingDayCalculator, logger *zap.Logger) *EventFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventFactory{calc: calc, logger: logger}
}

// BuildInitialEvents generates the full slot assignment. Periods are filled
// independently: course periods consume their lesson sequence one lesson per
// teaching day and degrade to error events once the sequence is exhausted;
// special periods are filled with special events; unassigned periods with
// free placeholders. Event IDs are a strictly decreasing run of negative
// integers, unique within the batch.
func (f *EventFactory) BuildInitialEvents(cfg *models.ScheduleConfig, sequences map[string][]models.Lesson) ([]*models.ScheduleEvent, models.OperationResult) {
	result := models.OperationResult{Success: true}
	weekdays := cfg.TeachingWeekdays()
	days := f.calc.TeachingDaysBetween(cfg.StartDate, cfg.EndDate, weekdays)

	nextID := int64(-1)
	allocate := func() int64 {
		id := nextID
		nextID--
		return id
	}

	var events []*models.ScheduleEvent
	for period := 1; period <= cfg.PeriodsPerDay; period++ {
		assignment, _ := cfg.AssignmentForPeriod(period)
		switch {
		case assignment.IsCourse():
			courseID := *assignment.CourseID
			sequence := sequences[courseID]
			placed := 0
			for _, day := range days {
				if placed < len(sequence) {
					lessonID := sequence[placed].ID
					events = append(events, &models.ScheduleEvent{
						ID:        allocate(),
						Date:      day,
						Period:    period,
						CourseID:  &courseID,
						LessonID:  &lessonID,
						EventType: models.EventTypeLesson,
						Category:  categoryLesson,
					})
					placed++
					continue
				}
				comment := commentNoLesson
				events = append(events, &models.ScheduleEvent{
					ID:        allocate(),
					Date:      day,
					Period:    period,
					CourseID:  &courseID,
					EventType: models.EventTypeError,
					Category:  categoryError,
					Comment:   &comment,
				})
			}
			if placed < len(sequence) {
				result.EventsOverflowed += len(sequence) - placed
				result.AddWarning(fmt.Sprintf(
					"period %d: %d lessons of course %s do not fit into the date range",
					period, len(sequence)-placed, courseID,
				))
			}
			result.EventsAdded += len(days)
		case assignment.IsSpecial():
			for _, day := range days {
				events = append(events, &models.ScheduleEvent{
					ID:        allocate(),
					Date:      day,
					Period:    period,
					EventType: models.EventTypeSpecial,
					Category:  *assignment.SpecialType,
				})
			}
			result.EventsAdded += len(days)
		default:
			for _, day := range days {
				events = append(events, &models.ScheduleEvent{
					ID:        allocate(),
					Date:      day,
					Period:    period,
					EventType: models.EventTypeFree,
					Category:  categoryFree,
				})
			}
			result.EventsAdded += len(days)
		}
	}

	f.logger.Debug("initial schedule grid generated",
		zap.String("config_id", cfg.ID),
		zap.Int("teaching_days", len(days)),
		zap.Int("events", len(events)),
	)
	return events, result
}
