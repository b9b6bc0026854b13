package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
)

func fourLessons() map[string][]models.Lesson {
	sequences := threeLessons()
	sequences["course-1"] = append(sequences["course-1"],
		models.Lesson{ID: "L4", TopicID: "t-1", Title: "Lesson 4", Position: 3},
	)
	return sequences
}

func TestFindContinuationPointsReportsLastAssignedIndex(t *testing.T) {
	analyzer := NewSequenceAnalyzer(zap.NewNop())
	schedule, cfg := generatedWeek(t)

	points, warnings := analyzer.FindContinuationPoints(schedule, cfg, fourLessons(), date(2024, time.January, 3))

	assert.Empty(t, warnings)
	require.Len(t, points, 1)
	assert.Equal(t, 1, points[0].Period)
	assert.Equal(t, "course-1", points[0].CourseID)
	assert.Equal(t, 2, points[0].LastAssignedIndex)
	assert.Equal(t, date(2024, time.January, 4), points[0].ContinuationDate)
}

func TestFindContinuationPointsOmitsFullyAssignedCourses(t *testing.T) {
	analyzer := NewSequenceAnalyzer(zap.NewNop())
	schedule, cfg := generatedWeek(t)

	points, warnings := analyzer.FindContinuationPoints(schedule, cfg, threeLessons(), date(2024, time.January, 3))

	assert.Empty(t, warnings)
	assert.Empty(t, points)
}

func TestFindContinuationPointsIgnoresEventOrder(t *testing.T) {
	analyzer := NewSequenceAnalyzer(zap.NewNop())
	schedule, cfg := generatedWeek(t)

	// Reverse the event collection; progress derives from lesson identity,
	// not storage order.
	for i, j := 0, len(schedule.Events)-1; i < j; i, j = i+1, j-1 {
		schedule.Events[i], schedule.Events[j] = schedule.Events[j], schedule.Events[i]
	}

	points, _ := analyzer.FindContinuationPoints(schedule, cfg, fourLessons(), date(2024, time.January, 3))
	require.Len(t, points, 1)
	assert.Equal(t, 2, points[0].LastAssignedIndex)
}

func TestFindContinuationPointsWarnsOnUnknownPlacedLesson(t *testing.T) {
	analyzer := NewSequenceAnalyzer(zap.NewNop())
	schedule, cfg := generatedWeek(t)

	// The course's sequence was edited after partial assignment: L2 no
	// longer exists in it.
	sequences := map[string][]models.Lesson{
		"course-1": {
			{ID: "L1", TopicID: "t-1", Title: "Lesson 1", Position: 0},
			{ID: "L3", TopicID: "t-1", Title: "Lesson 3", Position: 1},
			{ID: "L5", TopicID: "t-1", Title: "Lesson 5", Position: 2},
		},
	}

	points, warnings := analyzer.FindContinuationPoints(schedule, cfg, sequences, date(2024, time.January, 3))

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "L2")
	require.Len(t, points, 1)
	// L3 now sits at position 1; the unknown L2 is ignored.
	assert.Equal(t, 1, points[0].LastAssignedIndex)
}

func TestFindContinuationPointsNothingPlacedYet(t *testing.T) {
	analyzer := NewSequenceAnalyzer(zap.NewNop())
	cfg := weekConfig()
	schedule := &models.Schedule{ID: "sched-1", ConfigID: cfg.ID}

	points, warnings := analyzer.FindContinuationPoints(schedule, cfg, threeLessons(), date(2023, time.December, 31))

	assert.Empty(t, warnings)
	require.Len(t, points, 1)
	assert.Equal(t, -1, points[0].LastAssignedIndex)
}
