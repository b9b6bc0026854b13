package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
	appErrors "github.com/planbook/planbook-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	CreateTopic(ctx context.Context, topic *models.Topic) error
	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	ListTopics(ctx context.Context, courseID string) ([]models.Topic, error)
}

// CourseService manages courses and their topic/lesson trees, and produces
// the authoritative ordered lesson sequence the scheduling engine consumes.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the service.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// CreateCourseRequest describes a new course payload.
type CreateCourseRequest struct {
	Name    string  `json:"name" validate:"required"`
	Subject string  `json:"subject" validate:"required"`
	Color   *string `json:"color,omitempty"`
}

// CreateTopicRequest describes a new topic payload.
type CreateTopicRequest struct {
	Title    string `json:"title" validate:"required"`
	Position int    `json:"position" validate:"min=0"`
}

// CreateLessonRequest describes a new lesson payload.
type CreateLessonRequest struct {
	Title    string  `json:"title" validate:"required"`
	Position int     `json:"position" validate:"min=0"`
	Notes    *string `json:"notes,omitempty"`
}

// List returns courses.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return courses, pagination, nil
}

// Get returns a course with its topic tree.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a course.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{Name: req.Name, Subject: req.Subject, Color: req.Color}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update modifies a course.
func (s *CourseService) Update(ctx context.Context, id string, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	course.Name = req.Name
	course.Subject = req.Subject
	course.Color = req.Color
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// AddTopic appends a topic to a course.
func (s *CourseService) AddTopic(ctx context.Context, courseID string, req CreateTopicRequest) (*models.Topic, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid topic payload")
	}
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	topic := &models.Topic{CourseID: courseID, Title: req.Title, Position: req.Position}
	if err := s.repo.CreateTopic(ctx, topic); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create topic")
	}
	return topic, nil
}

// AddLesson appends a lesson to a topic.
func (s *CourseService) AddLesson(ctx context.Context, topicID string, req CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lesson := &models.Lesson{TopicID: topicID, Title: req.Title, Position: req.Position, Notes: req.Notes}
	if err := s.repo.CreateLesson(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// LessonSequence flattens a course's topic tree into the stable ordered
// lesson list used as the allocation order: topics by position, lessons by
// position within their topic (depth-first). The engine never re-sorts
// this; it only reads lesson identity and position.
func (s *CourseService) LessonSequence(ctx context.Context, courseID string) ([]models.Lesson, error) {
	topics, err := s.repo.ListTopics(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course topics")
	}
	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Position < topics[j].Position })

	var sequence []models.Lesson
	for _, topic := range topics {
		lessons := make([]models.Lesson, len(topic.Lessons))
		copy(lessons, topic.Lessons)
		sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })
		sequence = append(sequence, lessons...)
	}
	return sequence, nil
}

// LessonSequences resolves sequences for every course referenced by the
// configuration's period assignments.
func (s *CourseService) LessonSequences(ctx context.Context, cfg *models.ScheduleConfig) (map[string][]models.Lesson, error) {
	sequences := make(map[string][]models.Lesson)
	for _, a := range cfg.Assignments {
		if !a.IsCourse() {
			continue
		}
		if _, done := sequences[*a.CourseID]; done {
			continue
		}
		sequence, err := s.LessonSequence(ctx, *a.CourseID)
		if err != nil {
			return nil, err
		}
		sequences[*a.CourseID] = sequence
	}
	return sequences, nil
}
