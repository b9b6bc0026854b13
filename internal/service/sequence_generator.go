package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
)

// SequenceGenerator appends lesson events to an existing schedule from
// continuation points. Existing lessons, special days and free periods are
// never touched; error placeholders left by an earlier generation round are
// replaced when a new lesson lands on their slot.
type SequenceGenerator struct {
	calc   *TeachingDayCalculator
	logger *zap.Logger
}

// NewSequenceGenerator constructs the generator.
func NewSequenceGenerator(calc *TeachingDayCalculator, logger *zap.Logger) *SequenceGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceGenerator{calc: calc, logger: logger}
}

// Continue places outstanding lessons for each continuation point
// independently: one lesson per available teaching day (a teaching day whose
// slot is not claimed by a non-lesson event), in sequence order, starting at
// LastAssignedIndex+1 on the first available day at or after the
// continuation date. Crossing the configuration's end date emits a single
// error event instead of a lesson and stops that pairing. New events use the
// schedule's provisional negative-ID convention.
func (g *SequenceGenerator) Continue(
	schedule *models.Schedule,
	cfg *models.ScheduleConfig,
	points []ContinuationPoint,
	sequences map[string][]models.Lesson,
) []models.ContinuationResult {
	weekdays := cfg.TeachingWeekdays()
	results := make([]models.ContinuationResult, 0, len(points))

	for _, point := range points {
		res := models.ContinuationResult{
			Period:            point.Period,
			CourseID:          point.CourseID,
			LastAssignedIndex: point.LastAssignedIndex,
		}
		sequence := sequences[point.CourseID]
		cursor := g.calc.NextOpenSlot(point.ContinuationDate, point.Period, weekdays, schedule.Events)

		for idx := point.LastAssignedIndex + 1; idx < len(sequence); idx++ {
			// An exhausted-sequence placeholder on the slot is superseded by
			// the arriving lesson (or overflow marker).
			if occupant := schedule.EventAt(cursor, point.Period); occupant != nil && occupant.EventType == models.EventTypeError {
				schedule.RemoveEventAt(cursor, point.Period)
			}
			if cursor.After(models.Day(cfg.EndDate)) {
				comment := fmt.Sprintf(
					"course %s has %d more lessons but the schedule ends on %s",
					point.CourseID, len(sequence)-idx, cfg.EndDate.Format("2006-01-02"),
				)
				courseID := point.CourseID
				schedule.Events = append(schedule.Events, &models.ScheduleEvent{
					ID:         schedule.NextLocalID(),
					ScheduleID: schedule.ID,
					Date:       cursor,
					Period:     point.Period,
					CourseID:   &courseID,
					EventType:  models.EventTypeError,
					Category:   categoryError,
					Comment:    &comment,
				})
				schedule.Dirty = true
				res.EventsAdded++
				res.Overflowed = true
				break
			}

			courseID := point.CourseID
			lessonID := sequence[idx].ID
			schedule.Events = append(schedule.Events, &models.ScheduleEvent{
				ID:         schedule.NextLocalID(),
				ScheduleID: schedule.ID,
				Date:       cursor,
				Period:     point.Period,
				CourseID:   &courseID,
				LessonID:   &lessonID,
				EventType:  models.EventTypeLesson,
				Category:   categoryLesson,
			})
			schedule.Dirty = true
			res.EventsAdded++
			res.LastAssignedIndex = idx

			cursor = g.calc.NextOpenSlot(cursor.AddDate(0, 0, 1), point.Period, weekdays, schedule.Events)
		}

		res.LessonsRemaining = len(sequence) - 1 - res.LastAssignedIndex
		if res.Overflowed {
			g.logger.Info("continuation overflowed schedule range",
				zap.Int("period", point.Period),
				zap.String("course_id", point.CourseID),
				zap.Int("lessons_remaining", res.LessonsRemaining),
			)
		}
		results = append(results, res)
	}
	return results
}
