package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
)

// ContinuationPoint marks a (period, course) pairing that still has
// unplaced lessons, together with where continuation should resume.
type ContinuationPoint struct {
	Period            int
	CourseID          string
	Assignment        models.PeriodAssignment
	LastAssignedIndex int
	ContinuationDate  time.Time
}

// SequenceAnalyzer inspects an existing event collection and determines how
// far each (period, course) pairing has progressed through its lesson
// sequence. Progress is derived from lesson identity, not a stored cursor,
// so externally edited or reordered schedules still analyse cleanly.
type SequenceAnalyzer struct {
	logger *zap.Logger
}

// NewSequenceAnalyzer constructs the analyzer.
func NewSequenceAnalyzer(logger *zap.Logger) *SequenceAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceAnalyzer{logger: logger}
}

// FindContinuationPoints reports, per course-bound period, the highest
// lesson-sequence position already placed (-1 when nothing is placed) and
// whether more lessons remain. Fully assigned pairings are omitted. The
// cursor date only timestamps where continuation resumes (the next day);
// it never filters which events are inspected.
//
// A placed lesson id that no longer exists in the course's sequence means
// the sequence changed after partial assignment; such ids are surfaced as
// warnings and ignored for the position computation.
func (a *SequenceAnalyzer) FindContinuationPoints(
	schedule *models.Schedule,
	cfg *models.ScheduleConfig,
	sequences map[string][]models.Lesson,
	cursor time.Time,
) ([]ContinuationPoint, []string) {
	var points []ContinuationPoint
	var warnings []string

	for _, assignment := range cfg.Assignments {
		if !assignment.IsCourse() {
			continue
		}
		courseID := *assignment.CourseID
		sequence := sequences[courseID]
		positions := make(map[string]int, len(sequence))
		for i, lesson := range sequence {
			positions[lesson.ID] = i
		}

		lastIndex := -1
		for _, ev := range schedule.Events {
			if ev.Period != assignment.Period || ev.EventType != models.EventTypeLesson {
				continue
			}
			if ev.CourseID == nil || *ev.CourseID != courseID || ev.LessonID == nil {
				continue
			}
			pos, known := positions[*ev.LessonID]
			if !known {
				warnings = append(warnings, fmt.Sprintf(
					"period %d: placed lesson %s is no longer part of course %s's sequence",
					assignment.Period, *ev.LessonID, courseID,
				))
				continue
			}
			if pos > lastIndex {
				lastIndex = pos
			}
		}

		if lastIndex >= len(sequence)-1 {
			continue
		}
		points = append(points, ContinuationPoint{
			Period:            assignment.Period,
			CourseID:          courseID,
			Assignment:        assignment,
			LastAssignedIndex: lastIndex,
			ContinuationDate:  models.Day(cursor).AddDate(0, 0, 1),
		})
	}

	a.logger.Debug("continuation analysis complete",
		zap.Int("points", len(points)),
		zap.Int("warnings", len(warnings)),
	)
	return points, warnings
}
