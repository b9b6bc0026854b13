package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
	appErrors "github.com/planbook/planbook-api/pkg/errors"
)

type mockPlanRepo struct {
	mu        sync.Mutex
	stored    map[string]*models.Schedule
	created   []*models.Schedule
	saveCalls int
	createErr error
	findErr   error
	saveErr   error
}

func (m *mockPlanRepo) FindByConfig(ctx context.Context, configID string) (*models.Schedule, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if schedule, ok := m.stored[configID]; ok {
		return schedule, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPlanRepo) Create(ctx context.Context, schedule *models.Schedule) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule.ID = fmt.Sprintf("sched-%d", len(m.created)+1)
	m.created = append(m.created, schedule)
	return nil
}

func (m *mockPlanRepo) SaveEvents(ctx context.Context, schedule *models.Schedule) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	m.saveCalls++
	m.mu.Unlock()
	schedule.Dirty = false
	return nil
}

func (m *mockPlanRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

type mockConfigProvider struct {
	cfg    *models.ScheduleConfig
	issues []string
}

func (m *mockConfigProvider) Get(ctx context.Context, id string) (*models.ScheduleConfig, error) {
	if m.cfg == nil || m.cfg.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
	}
	return m.cfg, nil
}

func (m *mockConfigProvider) ValidateForGeneration(cfg *models.ScheduleConfig) []string {
	return m.issues
}

type mockCourseProvider struct {
	sequences map[string][]models.Lesson
	err       error
}

func (m *mockCourseProvider) LessonSequence(ctx context.Context, courseID string) ([]models.Lesson, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sequences[courseID], nil
}

func (m *mockCourseProvider) LessonSequences(ctx context.Context, cfg *models.ScheduleConfig) (map[string][]models.Lesson, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sequences, nil
}

func newTestPlanService(repo *mockPlanRepo, configs *mockConfigProvider, courses *mockCourseProvider) *PlanService {
	calc := NewTeachingDayCalculator(zap.NewNop(), nil)
	return NewPlanService(
		repo,
		configs,
		courses,
		NewEventFactory(calc, zap.NewNop()),
		NewSequenceAnalyzer(zap.NewNop()),
		NewSequenceGenerator(calc, zap.NewNop()),
		NewShiftEngine(calc, zap.NewNop(), nil),
		calc,
		nil,
		nil,
		validator.New(),
		zap.NewNop(),
		PlanServiceConfig{},
	)
}

func activatedPlanService(t *testing.T, repo *mockPlanRepo) (*PlanService, *mockCourseProvider) {
	t.Helper()
	if repo.stored == nil {
		repo.stored = map[string]*models.Schedule{}
	}
	courses := &mockCourseProvider{sequences: threeLessons()}
	svc := newTestPlanService(repo, &mockConfigProvider{cfg: weekConfig()}, courses)
	_, result, err := svc.Activate(context.Background(), "cfg-1")
	require.NoError(t, err)
	require.True(t, result.Success)
	return svc, courses
}

func TestActivateGeneratesInitialSchedule(t *testing.T) {
	repo := &mockPlanRepo{stored: map[string]*models.Schedule{}}
	svc := newTestPlanService(repo, &mockConfigProvider{cfg: weekConfig()}, &mockCourseProvider{sequences: threeLessons()})

	schedule, result, err := svc.Activate(context.Background(), "cfg-1")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 5, result.EventsAdded)
	require.Len(t, repo.created, 1)
	require.Len(t, schedule.Events, 5)
	assert.True(t, schedule.Dirty)
	for _, ev := range schedule.Events {
		assert.Equal(t, schedule.ID, ev.ScheduleID)
		assert.Negative(t, ev.ID)
	}

	active, cfg, err := svc.Active()
	require.NoError(t, err)
	assert.Same(t, schedule, active)
	assert.Equal(t, "cfg-1", cfg.ID)
}

func TestActivateRejectsInvalidConfiguration(t *testing.T) {
	repo := &mockPlanRepo{stored: map[string]*models.Schedule{}}
	configs := &mockConfigProvider{cfg: weekConfig(), issues: []string{"start date is after end date"}}
	svc := newTestPlanService(repo, configs, &mockCourseProvider{sequences: threeLessons()})

	_, result, err := svc.Activate(context.Background(), "cfg-1")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors, "start date is after end date")
	assert.Empty(t, repo.created, "nothing may be written for a rejected configuration")

	_, _, err = svc.Active()
	require.Error(t, err)
}

func TestActivateLoadsExistingSchedule(t *testing.T) {
	existing, _ := generatedWeek(t)
	repo := &mockPlanRepo{stored: map[string]*models.Schedule{"cfg-1": existing}}
	svc := newTestPlanService(repo, &mockConfigProvider{cfg: weekConfig()}, &mockCourseProvider{sequences: threeLessons()})

	schedule, result, err := svc.Activate(context.Background(), "cfg-1")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.EventsAdded)
	assert.Same(t, existing, schedule)
	assert.Empty(t, repo.created)
}

func TestActiveRequiresActivation(t *testing.T) {
	svc := newTestPlanService(&mockPlanRepo{}, &mockConfigProvider{}, &mockCourseProvider{})

	_, _, err := svc.Active()

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEventsSortsAndFilters(t *testing.T) {
	svc, _ := activatedPlanService(t, &mockPlanRepo{})

	events, err := svc.Events(context.Background(), models.ScheduleEventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Date.Before(events[i-1].Date))
	}

	lessonType := models.EventTypeLesson
	lessons, err := svc.Events(context.Background(), models.ScheduleEventFilter{EventType: &lessonType})
	require.NoError(t, err)
	assert.Len(t, lessons, 3)
}

func TestInsertSpecialDayShiftsLessonsForward(t *testing.T) {
	svc, _ := activatedPlanService(t, &mockPlanRepo{})
	wed := date(2024, time.January, 3)

	result, err := svc.InsertSpecialDay(context.Background(), SpecialDayRequest{Date: wed, Period: 1, Label: "excursion"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsAdded)
	assert.Equal(t, 1, result.EventsShifted)

	active, _, err := svc.Active()
	require.NoError(t, err)
	occupant := eventAt(active.Events, wed, 1)
	require.NotNil(t, occupant)
	assert.Equal(t, models.EventTypeSpecial, occupant.EventType)
	assert.Equal(t, "excursion", occupant.Category)
	dates := lessonDates(active, 1)
	assert.Equal(t, date(2024, time.January, 4), dates["L3"])
	assertSlotUniqueness(t, active)
}

func TestInsertSpecialDayRejectsOccupiedSlot(t *testing.T) {
	svc, _ := activatedPlanService(t, &mockPlanRepo{})
	wed := date(2024, time.January, 3)

	_, err := svc.InsertSpecialDay(context.Background(), SpecialDayRequest{Date: wed, Period: 1})
	require.NoError(t, err)

	_, err = svc.InsertSpecialDay(context.Background(), SpecialDayRequest{Date: wed, Period: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestInsertSpecialDayRejectsOutOfRangePeriod(t *testing.T) {
	svc, _ := activatedPlanService(t, &mockPlanRepo{})

	_, err := svc.InsertSpecialDay(context.Background(), SpecialDayRequest{Date: date(2024, time.January, 3), Period: 2})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeleteSpecialDayRestoresLayout(t *testing.T) {
	svc, _ := activatedPlanService(t, &mockPlanRepo{})
	wed := date(2024, time.January, 3)
	_, err := svc.InsertSpecialDay(context.Background(), SpecialDayRequest{Date: wed, Period: 1})
	require.NoError(t, err)

	result, err := svc.DeleteSpecialDay(context.Background(), SpecialDayRequest{Date: wed, Period: 1})

	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsShifted)
	active, _, err := svc.Active()
	require.NoError(t, err)
	dates := lessonDates(active, 1)
	assert.Equal(t, wed, dates["L3"])
}

func TestDeleteSpecialDayRequiresSpecialOccupant(t *testing.T) {
	svc, _ := activatedPlanService(t, &mockPlanRepo{})

	// Monday holds a lesson, not a special event.
	_, err := svc.DeleteSpecialDay(context.Background(), SpecialDayRequest{Date: date(2024, time.January, 1), Period: 1})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestLessonAddedAppendsOutstandingLessons(t *testing.T) {
	svc, courses := activatedPlanService(t, &mockPlanRepo{})
	courses.sequences = fourLessons()

	result, continuations, err := svc.LessonAdded(context.Background(), LessonAddedRequest{CourseID: "course-1"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsAdded)
	assert.Zero(t, result.EventsOverflowed)
	require.Len(t, continuations, 1)
	assert.Equal(t, 3, continuations[0].LastAssignedIndex)
	assert.Zero(t, continuations[0].LessonsRemaining)

	active, _, err := svc.Active()
	require.NoError(t, err)
	dates := lessonDates(active, 1)
	assert.Equal(t, date(2024, time.January, 1), dates["L1"])
	assert.Equal(t, date(2024, time.January, 4), dates["L4"])
	assertSlotUniqueness(t, active)
}

func TestLessonAddedClampsCursorToExistingAssignments(t *testing.T) {
	svc, courses := activatedPlanService(t, &mockPlanRepo{})
	courses.sequences = fourLessons()

	// A cursor pointing back into the already-assigned days must not let
	// the new lesson land on a slot that already holds one.
	early := date(2024, time.January, 1)
	result, continuations, err := svc.LessonAdded(context.Background(), LessonAddedRequest{CourseID: "course-1", Cursor: &early})

	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsAdded)
	require.Len(t, continuations, 1)
	assert.Equal(t, 3, continuations[0].LastAssignedIndex)

	active, _, err := svc.Active()
	require.NoError(t, err)
	dates := lessonDates(active, 1)
	assert.Equal(t, date(2024, time.January, 2), dates["L2"])
	assert.Equal(t, date(2024, time.January, 4), dates["L4"])
	assertSlotUniqueness(t, active)
}

func TestLessonAddedReportsOverflow(t *testing.T) {
	repo := &mockPlanRepo{}
	svc, courses := activatedPlanService(t, repo)
	sequences := fourLessons()
	sequences["course-1"] = append(sequences["course-1"],
		models.Lesson{ID: "L5", TopicID: "t-1", Title: "Lesson 5", Position: 4},
		models.Lesson{ID: "L6", TopicID: "t-1", Title: "Lesson 6", Position: 5},
	)
	courses.sequences = sequences

	result, continuations, err := svc.LessonAdded(context.Background(), LessonAddedRequest{CourseID: "course-1"})

	require.NoError(t, err)
	// L4 and L5 fill Thursday and Friday, L6 overflows the range.
	assert.Equal(t, 3, result.EventsAdded)
	assert.Equal(t, 1, result.EventsOverflowed)
	require.Len(t, continuations, 1)
	assert.True(t, continuations[0].Overflowed)
	assert.Equal(t, 1, continuations[0].LessonsRemaining)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[len(result.Warnings)-1], "course-1")
}

func TestLessonAddedValidatesPayload(t *testing.T) {
	svc := newTestPlanService(&mockPlanRepo{}, &mockConfigProvider{}, &mockCourseProvider{})

	_, _, err := svc.LessonAdded(context.Background(), LessonAddedRequest{})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSaveSkipsCleanSchedule(t *testing.T) {
	repo := &mockPlanRepo{}
	svc, _ := activatedPlanService(t, repo)

	require.NoError(t, svc.Save(context.Background()))
	assert.Equal(t, 1, repo.saveCount())

	// The schedule is clean now; a second save is a no-op.
	require.NoError(t, svc.Save(context.Background()))
	assert.Equal(t, 1, repo.saveCount())
}

func TestEnqueueSaveRunsThroughWorker(t *testing.T) {
	repo := &mockPlanRepo{}
	svc, _ := activatedPlanService(t, repo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartWorker(ctx)
	defer svc.StopWorker()

	jobID, err := svc.EnqueueSave()
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	assert.Eventually(t, func() bool {
		return repo.saveCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEnqueueSaveRequiresActiveSchedule(t *testing.T) {
	svc := newTestPlanService(&mockPlanRepo{}, &mockConfigProvider{}, &mockCourseProvider{})

	_, err := svc.EnqueueSave()

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}
