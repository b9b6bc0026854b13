package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
	appErrors "github.com/planbook/planbook-api/pkg/errors"
	"github.com/planbook/planbook-api/pkg/jobs"
)

type planRepository interface {
	FindByConfig(ctx context.Context, configID string) (*models.Schedule, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	SaveEvents(ctx context.Context, schedule *models.Schedule) error
}

type planConfigProvider interface {
	Get(ctx context.Context, id string) (*models.ScheduleConfig, error)
	ValidateForGeneration(cfg *models.ScheduleConfig) []string
}

type lessonSequenceProvider interface {
	LessonSequence(ctx context.Context, courseID string) ([]models.Lesson, error)
	LessonSequences(ctx context.Context, cfg *models.ScheduleConfig) (map[string][]models.Lesson, error)
}

const saveJobType = "plan_save"

// PlanService is the editing-session context: it owns the one active
// schedule, serializes the external triggers into the engine components,
// and decouples persistence behind an async save worker. The engine
// components themselves never touch network or storage.
type PlanService struct {
	repo      planRepository
	configs   planConfigProvider
	courses   lessonSequenceProvider
	factory   *EventFactory
	analyzer  *SequenceAnalyzer
	generator *SequenceGenerator
	shifter   *ShiftEngine
	calc      *TeachingDayCalculator
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	saves     *jobs.Queue

	mu        sync.Mutex
	active    *models.Schedule
	activeCfg *models.ScheduleConfig
}

// PlanServiceConfig tunes the save worker.
type PlanServiceConfig struct {
	SaveWorkers int
	SaveRetries int
}

// NewPlanService wires the engine components into a session context.
func NewPlanService(
	repo planRepository,
	configs planConfigProvider,
	courses lessonSequenceProvider,
	factory *EventFactory,
	analyzer *SequenceAnalyzer,
	generator *SequenceGenerator,
	shifter *ShiftEngine,
	calc *TeachingDayCalculator,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg PlanServiceConfig,
) *PlanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SaveWorkers <= 0 {
		cfg.SaveWorkers = 1
	}
	s := &PlanService{
		repo:      repo,
		configs:   configs,
		courses:   courses,
		factory:   factory,
		analyzer:  analyzer,
		generator: generator,
		shifter:   shifter,
		calc:      calc,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
	s.saves = jobs.NewQueue(saveJobType, s.handleSaveJob, jobs.QueueConfig{
		Workers:    cfg.SaveWorkers,
		MaxRetries: cfg.SaveRetries,
		Logger:     logger,
	})
	return s
}

// StartWorker launches the async save worker.
func (s *PlanService) StartWorker(ctx context.Context) {
	s.saves.Start(ctx)
}

// StopWorker drains and stops the save worker.
func (s *PlanService) StopWorker() {
	s.saves.Stop()
}

// Activate makes the configuration's schedule the active one: a persisted
// schedule is loaded as-is; otherwise the full initial grid is generated.
// A configuration failing validation aborts activation with nothing
// written.
func (s *PlanService) Activate(ctx context.Context, configID string) (*models.Schedule, models.OperationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, models.OperationResult{}, err
	}
	if issues := s.configs.ValidateForGeneration(cfg); len(issues) > 0 {
		result := models.OperationResult{}
		for _, issue := range issues {
			result.AddError(issue)
		}
		return nil, result, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("configuration rejected: %v", issues))
	}

	existing, err := s.repo.FindByConfig(ctx, configID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, models.OperationResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if existing != nil {
		s.active = existing
		s.activeCfg = cfg
		s.logger.Info("schedule activated from storage",
			zap.String("schedule_id", existing.ID),
			zap.Int("events", len(existing.Events)),
		)
		return existing, models.OperationResult{Success: true}, nil
	}

	sequences, err := s.courses.LessonSequences(ctx, cfg)
	if err != nil {
		return nil, models.OperationResult{}, err
	}
	schedule := &models.Schedule{
		Title:    cfg.Title,
		ConfigID: cfg.ID,
	}
	if err := s.repo.Create(ctx, schedule); err != nil {
		return nil, models.OperationResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	events, result := s.factory.BuildInitialEvents(cfg, sequences)
	for _, ev := range events {
		ev.ScheduleID = schedule.ID
	}
	schedule.Events = events
	schedule.Dirty = true
	s.active = schedule
	s.activeCfg = cfg

	if s.metrics != nil {
		s.metrics.RecordEventsGenerated(result.EventsAdded)
	}
	s.invalidateEvents(ctx, schedule.ID)
	s.logger.Info("schedule generated",
		zap.String("schedule_id", schedule.ID),
		zap.Int("events", result.EventsAdded),
		zap.Int("unplaced_lessons", result.EventsOverflowed),
	)
	return schedule, result, nil
}

// Active returns the active schedule and its configuration. Operating
// without an active schedule is an outright failure: no meaningful partial
// result is possible.
func (s *PlanService) Active() (*models.Schedule, *models.ScheduleConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.activeCfg == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active schedule")
	}
	return s.active, s.activeCfg, nil
}

// Events lists the active schedule's events, sorted by date then period.
// Unfiltered listings of a clean schedule are served through the cache.
func (s *PlanService) Events(ctx context.Context, filter models.ScheduleEventFilter) ([]models.ScheduleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active schedule")
	}

	unfiltered := filter.From == nil && filter.To == nil && filter.Period == nil && filter.EventType == nil
	cacheKey := s.eventsCacheKey(s.active.ID)
	if unfiltered && !s.active.Dirty && s.cache.Enabled() {
		var cached []models.ScheduleEvent
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return cached, nil
		}
	}

	events := make([]models.ScheduleEvent, 0, len(s.active.Events))
	for _, ev := range s.active.Events {
		if filter.Matches(ev) {
			events = append(events, *ev)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !models.SameDay(events[i].Date, events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].Period < events[j].Period
	})

	if unfiltered && !s.active.Dirty && s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, events, 0)
	}
	return events, nil
}

// LessonAddedRequest carries the "lesson added to course" trigger.
type LessonAddedRequest struct {
	CourseID string     `json:"course_id" validate:"required"`
	Cursor   *time.Time `json:"cursor,omitempty"`
}

// LessonAdded reacts to a course gaining lessons: the analyzer determines
// how far each affected (period, course) pairing has progressed and the
// generator appends the outstanding lessons without altering prior
// placements.
func (s *PlanService) LessonAdded(ctx context.Context, req LessonAddedRequest) (models.OperationResult, []models.ContinuationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.OperationResult{}, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trigger payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.activeCfg == nil {
		return models.OperationResult{}, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active schedule")
	}

	sequences, err := s.courses.LessonSequences(ctx, s.activeCfg)
	if err != nil {
		return models.OperationResult{}, nil, err
	}

	cursor := s.continuationCursor(req)
	points, warnings := s.analyzer.FindContinuationPoints(s.active, s.activeCfg, sequences, cursor)

	scoped := points[:0]
	for _, p := range points {
		if p.CourseID == req.CourseID {
			scoped = append(scoped, p)
		}
	}

	result := models.OperationResult{Success: true, Warnings: warnings}
	continuations := s.generator.Continue(s.active, s.activeCfg, scoped, sequences)
	for _, c := range continuations {
		result.EventsAdded += c.EventsAdded
		if c.Overflowed {
			result.EventsOverflowed++
			result.AddWarning(fmt.Sprintf(
				"period %d: course %s overflowed the schedule range with %d lessons remaining",
				c.Period, c.CourseID, c.LessonsRemaining,
			))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordEventsGenerated(result.EventsAdded)
	}
	s.invalidateEvents(ctx, s.active.ID)
	return result, continuations, nil
}

// SpecialDayRequest carries the special-day triggers.
type SpecialDayRequest struct {
	Date   time.Time `json:"date" validate:"required"`
	Period int       `json:"period" validate:"required,min=1"`
	Label  string    `json:"label,omitempty"`
}

// InsertSpecialDay places a special event at (date, period) and shifts the
// period's lessons forward to make room for it.
func (s *PlanService) InsertSpecialDay(ctx context.Context, req SpecialDayRequest) (models.OperationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.OperationResult{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trigger payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.activeCfg == nil {
		return models.OperationResult{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active schedule")
	}
	if req.Period > s.activeCfg.PeriodsPerDay {
		return models.OperationResult{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("period %d exceeds configured periods per day", req.Period))
	}

	date := models.Day(req.Date)
	if occupant := s.active.EventAt(date, req.Period); occupant != nil && occupant.BlocksLessons() {
		return models.OperationResult{}, appErrors.Clone(appErrors.ErrConflict, "slot is already reserved by a special event")
	}

	label := req.Label
	if label == "" {
		label = "special"
	}
	s.active.Events = append(s.active.Events, &models.ScheduleEvent{
		ID:         s.active.NextLocalID(),
		ScheduleID: s.active.ID,
		Date:       date,
		Period:     req.Period,
		EventType:  models.EventTypeSpecial,
		Category:   label,
	})
	s.active.Dirty = true

	result := s.shifter.ShiftForward(s.active, s.activeCfg, date, req.Period)
	result.EventsAdded++
	s.invalidateEvents(ctx, s.active.ID)
	return result, nil
}

// DeleteSpecialDay removes the special event at (date, period) and shifts
// the period's later lessons back into the opening.
func (s *PlanService) DeleteSpecialDay(ctx context.Context, req SpecialDayRequest) (models.OperationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.OperationResult{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trigger payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.activeCfg == nil {
		return models.OperationResult{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "no active schedule")
	}

	date := models.Day(req.Date)
	occupant := s.active.EventAt(date, req.Period)
	if occupant == nil || occupant.EventType != models.EventTypeSpecial {
		return models.OperationResult{}, appErrors.Clone(appErrors.ErrNotFound, "no special event at the given slot")
	}
	s.active.RemoveEventAt(date, req.Period)

	result := s.shifter.ShiftBackward(s.active, s.activeCfg, date, req.Period)
	s.invalidateEvents(ctx, s.active.ID)
	return result, nil
}

// EnqueueSave schedules an asynchronous persistence pass for the active
// schedule.
func (s *PlanService) EnqueueSave() (string, error) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return "", appErrors.Clone(appErrors.ErrPreconditionFailed, "no active schedule")
	}
	jobID := uuid.NewString()
	if err := s.saves.Enqueue(jobs.Job{ID: jobID, Type: saveJobType}); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue save")
	}
	return jobID, nil
}

// Save persists the active schedule synchronously: provisional negative
// event IDs receive permanent identities and the dirty flag clears.
func (s *PlanService) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "no active schedule")
	}
	if !s.active.Dirty {
		return nil
	}
	if err := s.repo.SaveEvents(ctx, s.active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save schedule")
	}
	s.logger.Info("schedule saved", zap.String("schedule_id", s.active.ID), zap.Int("events", len(s.active.Events)))
	return nil
}

func (s *PlanService) handleSaveJob(ctx context.Context, job jobs.Job) error {
	return s.Save(ctx)
}

// continuationCursor picks where continuation resumes: the day of the
// latest lesson already placed for the course, so new lessons land strictly
// after the existing assignments. A request cursor may push the resume
// point later, never earlier; an earlier cursor would steer the open-slot
// search into days whose slots already hold lessons.
func (s *PlanService) continuationCursor(req LessonAddedRequest) time.Time {
	cursor := models.Day(s.activeCfg.StartDate).AddDate(0, 0, -1)
	for _, ev := range s.active.Events {
		if ev.EventType != models.EventTypeLesson || ev.CourseID == nil || *ev.CourseID != req.CourseID {
			continue
		}
		if models.Day(ev.Date).After(cursor) {
			cursor = models.Day(ev.Date)
		}
	}
	if req.Cursor != nil && models.Day(*req.Cursor).After(cursor) {
		cursor = models.Day(*req.Cursor)
	}
	return cursor
}

func (s *PlanService) eventsCacheKey(scheduleID string) string {
	return "plan:events:" + scheduleID
}

func (s *PlanService) invalidateEvents(ctx context.Context, scheduleID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, s.eventsCacheKey(scheduleID)); err != nil {
		s.logger.Warn("failed to invalidate events cache", zap.Error(err))
	}
}
