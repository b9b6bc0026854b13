package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
	appErrors "github.com/planbook/planbook-api/pkg/errors"
)

type configRepository interface {
	List(ctx context.Context, filter models.ScheduleConfigFilter) ([]models.ScheduleConfig, int, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleConfig, error)
	Create(ctx context.Context, cfg *models.ScheduleConfig) error
	Update(ctx context.Context, cfg *models.ScheduleConfig) error
	Delete(ctx context.Context, id string) error
}

// ConfigService manages schedule configurations and owns the validation
// gate that runs before any engine component touches a configuration.
type ConfigService struct {
	repo      configRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConfigService constructs the service.
func NewConfigService(repo configRepository, validate *validator.Validate, logger *zap.Logger) *ConfigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigService{repo: repo, validator: validate, logger: logger}
}

// PeriodAssignmentRequest binds one period in a create/update payload.
type PeriodAssignmentRequest struct {
	Period      int     `json:"period" validate:"required,min=1"`
	CourseID    *string `json:"course_id,omitempty"`
	SpecialType *string `json:"special_type,omitempty"`
}

// CreateConfigRequest describes a new configuration payload.
type CreateConfigRequest struct {
	Title         string                    `json:"title" validate:"required"`
	StartDate     time.Time                 `json:"start_date" validate:"required"`
	EndDate       time.Time                 `json:"end_date" validate:"required"`
	TeachingDays  []string                  `json:"teaching_days" validate:"required,min=1"`
	PeriodsPerDay int                       `json:"periods_per_day" validate:"required,min=1"`
	Assignments   []PeriodAssignmentRequest `json:"period_assignments"`
}

// List returns configurations.
func (s *ConfigService) List(ctx context.Context, filter models.ScheduleConfigFilter) ([]models.ScheduleConfig, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	configs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list configurations")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return configs, pagination, nil
}

// Get returns a configuration with its period assignments.
func (s *ConfigService) Get(ctx context.Context, id string) (*models.ScheduleConfig, error) {
	cfg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load configuration")
	}
	return cfg, nil
}

// Create registers a configuration after structural validation.
func (s *ConfigService) Create(ctx context.Context, req CreateConfigRequest) (*models.ScheduleConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid configuration payload")
	}
	cfg := &models.ScheduleConfig{
		Title:         req.Title,
		StartDate:     models.Day(req.StartDate),
		EndDate:       models.Day(req.EndDate),
		TeachingDays:  req.TeachingDays,
		PeriodsPerDay: req.PeriodsPerDay,
	}
	for _, a := range req.Assignments {
		cfg.Assignments = append(cfg.Assignments, models.PeriodAssignment{
			Period:      a.Period,
			CourseID:    a.CourseID,
			SpecialType: a.SpecialType,
		})
	}
	if issues := s.ValidateForGeneration(cfg); len(issues) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("configuration rejected: %v", issues))
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create configuration")
	}
	return cfg, nil
}

// Update replaces a configuration's fields and assignments.
func (s *ConfigService) Update(ctx context.Context, id string, req CreateConfigRequest) (*models.ScheduleConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid configuration payload")
	}
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg.Title = req.Title
	cfg.StartDate = models.Day(req.StartDate)
	cfg.EndDate = models.Day(req.EndDate)
	cfg.TeachingDays = req.TeachingDays
	cfg.PeriodsPerDay = req.PeriodsPerDay
	cfg.Assignments = cfg.Assignments[:0]
	for _, a := range req.Assignments {
		cfg.Assignments = append(cfg.Assignments, models.PeriodAssignment{
			ConfigID:    cfg.ID,
			Period:      a.Period,
			CourseID:    a.CourseID,
			SpecialType: a.SpecialType,
		})
	}
	if issues := s.ValidateForGeneration(cfg); len(issues) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("configuration rejected: %v", issues))
	}
	if err := s.repo.Update(ctx, cfg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update configuration")
	}
	return cfg, nil
}

// Delete removes a configuration.
func (s *ConfigService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete configuration")
	}
	return nil
}

// ValidateForGeneration checks everything the engine assumes about a
// configuration. A non-empty issue list means generation must not run and
// nothing may be written.
func (s *ConfigService) ValidateForGeneration(cfg *models.ScheduleConfig) []string {
	var issues []string
	if cfg == nil {
		return []string{"no configuration supplied"}
	}
	if cfg.StartDate.IsZero() || cfg.EndDate.IsZero() {
		issues = append(issues, "start and end date are required")
	} else if cfg.EndDate.Before(cfg.StartDate) {
		issues = append(issues, "end date must be on or after start date")
	}
	if len(cfg.TeachingWeekdays()) == 0 {
		issues = append(issues, "at least one valid teaching day is required")
	}
	for _, name := range cfg.TeachingDays {
		if _, ok := models.ParseWeekday(name); !ok {
			issues = append(issues, fmt.Sprintf("unknown teaching day %q", name))
		}
	}
	if cfg.PeriodsPerDay < 1 {
		issues = append(issues, "periods per day must be positive")
	}
	seen := make(map[int]bool, len(cfg.Assignments))
	for _, a := range cfg.Assignments {
		if a.Period < 1 || a.Period > cfg.PeriodsPerDay {
			issues = append(issues, fmt.Sprintf("assignment period %d is out of range 1..%d", a.Period, cfg.PeriodsPerDay))
			continue
		}
		if seen[a.Period] {
			issues = append(issues, fmt.Sprintf("duplicate assignment for period %d", a.Period))
		}
		seen[a.Period] = true
		if a.IsCourse() && a.IsSpecial() {
			issues = append(issues, fmt.Sprintf("period %d is bound to both a course and a special type", a.Period))
		}
	}
	for period := 1; period <= cfg.PeriodsPerDay; period++ {
		if !seen[period] {
			issues = append(issues, fmt.Sprintf("missing assignment record for period %d", period))
		}
	}
	return issues
}
