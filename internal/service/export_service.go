package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
	appErrors "github.com/planbook/planbook-api/pkg/errors"
	"github.com/planbook/planbook-api/pkg/export"
	"github.com/planbook/planbook-api/pkg/storage"
)

// ExportFormat names a supported export rendering.
type ExportFormat string

const (
	// ExportFormatCSV renders the schedule as a CSV table.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatPDF renders the schedule as a tabular PDF.
	ExportFormatPDF ExportFormat = "pdf"
)

type planEventSource interface {
	Active() (*models.Schedule, *models.ScheduleConfig, error)
	Events(ctx context.Context, filter models.ScheduleEventFilter) ([]models.ScheduleEvent, error)
}

type courseSource interface {
	Get(ctx context.Context, id string) (*models.Course, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders the active schedule into downloadable files.
type ExportService struct {
	plan    planEventSource
	courses courseSource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(plan planEventSource, courses courseSource, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		plan:    plan,
		courses: courses,
		storage: files,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the active schedule and stores the resulting file,
// returning a signed download URL.
func (s *ExportService) Generate(ctx context.Context, format ExportFormat) (*ExportResult, error) {
	schedule, cfg, err := s.plan.Active()
	if err != nil {
		return nil, err
	}
	dataset, title, err := s.buildDataset(ctx, schedule, cfg)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(schedule, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(schedule.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("schedule exported",
		zap.String("schedule_id", schedule.ID),
		zap.String("format", string(format)),
		zap.String("file", relPath),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (scheduleID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(schedule *models.Schedule, format ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("schedule_%s_%s.%s", sanitizeFilename(schedule.Title), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := strings.ToLower(replacer.Replace(raw))
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, schedule *models.Schedule, cfg *models.ScheduleConfig) (export.Dataset, string, error) {
	events, err := s.plan.Events(ctx, models.ScheduleEventFilter{})
	if err != nil {
		return export.Dataset{}, "", err
	}

	courseNames, lessonTitles, err := s.resolveNames(ctx, cfg)
	if err != nil {
		return export.Dataset{}, "", err
	}

	rows := make([]map[string]string, 0, len(events))
	for _, ev := range events {
		row := map[string]string{
			"Date":    ev.Date.Format("2006-01-02"),
			"Day":     ev.Date.Weekday().String(),
			"Period":  fmt.Sprintf("%d", ev.Period),
			"Type":    string(ev.EventType),
			"Course":  "",
			"Lesson":  "",
			"Details": ev.Category,
		}
		if ev.CourseID != nil {
			row["Course"] = courseNames[*ev.CourseID]
		}
		if ev.LessonID != nil {
			row["Lesson"] = lessonTitles[*ev.LessonID]
		}
		if ev.Comment != nil && *ev.Comment != "" {
			row["Details"] = *ev.Comment
		}
		rows = append(rows, row)
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Day", "Period", "Type", "Course", "Lesson", "Details"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Schedule %s", schedule.Title)
	return dataset, title, nil
}

func (s *ExportService) resolveNames(ctx context.Context, cfg *models.ScheduleConfig) (map[string]string, map[string]string, error) {
	courseNames := make(map[string]string)
	lessonTitles := make(map[string]string)
	for _, a := range cfg.Assignments {
		if !a.IsCourse() {
			continue
		}
		if _, done := courseNames[*a.CourseID]; done {
			continue
		}
		course, err := s.courses.Get(ctx, *a.CourseID)
		if err != nil {
			return nil, nil, err
		}
		courseNames[course.ID] = course.Name
		for _, topic := range course.Topics {
			for _, lesson := range topic.Lessons {
				lessonTitles[lesson.ID] = lesson.Title
			}
		}
	}
	return courseNames, lessonTitles, nil
}
