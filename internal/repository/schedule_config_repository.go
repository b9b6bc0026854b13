package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/planbook/planbook-api/internal/models"
)

// ScheduleConfigRepository persists schedule configurations and their
// period assignments.
type ScheduleConfigRepository struct {
	db *sqlx.DB
}

// NewScheduleConfigRepository creates a new configuration repository.
func NewScheduleConfigRepository(db *sqlx.DB) *ScheduleConfigRepository {
	return &ScheduleConfigRepository{db: db}
}

// List returns configurations with optional search and pagination.
func (r *ScheduleConfigRepository) List(ctx context.Context, filter models.ScheduleConfigFilter) ([]models.ScheduleConfig, int, error) {
	base := "FROM schedule_configs WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, title, start_date, end_date, teaching_days, periods_per_day, created_at, updated_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", base, size, offset)
	var configs []models.ScheduleConfig
	if err := r.db.SelectContext(ctx, &configs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedule configs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedule configs: %w", err)
	}
	return configs, total, nil
}

// FindByID loads a configuration with its period assignments.
func (r *ScheduleConfigRepository) FindByID(ctx context.Context, id string) (*models.ScheduleConfig, error) {
	const query = `SELECT id, title, start_date, end_date, teaching_days, periods_per_day, created_at, updated_at FROM schedule_configs WHERE id = $1`
	var cfg models.ScheduleConfig
	if err := r.db.GetContext(ctx, &cfg, query, id); err != nil {
		return nil, err
	}

	const assignmentsQuery = `SELECT id, config_id, period, course_id, special_type FROM period_assignments WHERE config_id = $1 ORDER BY period ASC`
	if err := r.db.SelectContext(ctx, &cfg.Assignments, assignmentsQuery, id); err != nil {
		return nil, fmt.Errorf("load period assignments: %w", err)
	}
	return &cfg, nil
}

// Create stores a configuration and its assignments in one transaction.
func (r *ScheduleConfigRepository) Create(ctx context.Context, cfg *models.ScheduleConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create schedule config: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO schedule_configs (id, title, start_date, end_date, teaching_days, periods_per_day, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, insert,
		cfg.ID, cfg.Title, cfg.StartDate, cfg.EndDate, pq.Array(cfg.TeachingDays), cfg.PeriodsPerDay, cfg.CreatedAt, cfg.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create schedule config: %w", err)
	}
	if err = r.insertAssignments(ctx, tx, cfg); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create schedule config: %w", err)
	}
	return nil
}

// Update replaces a configuration's fields and assignment set.
func (r *ScheduleConfigRepository) Update(ctx context.Context, cfg *models.ScheduleConfig) error {
	cfg.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update schedule config: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const update = `UPDATE schedule_configs SET title = $1, start_date = $2, end_date = $3, teaching_days = $4, periods_per_day = $5, updated_at = $6 WHERE id = $7`
	var res sql.Result
	if res, err = tx.ExecContext(ctx, update,
		cfg.Title, cfg.StartDate, cfg.EndDate, pq.Array(cfg.TeachingDays), cfg.PeriodsPerDay, cfg.UpdatedAt, cfg.ID,
	); err != nil {
		return fmt.Errorf("update schedule config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = sql.ErrNoRows
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM period_assignments WHERE config_id = $1`, cfg.ID); err != nil {
		return fmt.Errorf("clear period assignments: %w", err)
	}
	if err = r.insertAssignments(ctx, tx, cfg); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update schedule config: %w", err)
	}
	return nil
}

func (r *ScheduleConfigRepository) insertAssignments(ctx context.Context, tx *sqlx.Tx, cfg *models.ScheduleConfig) error {
	for i := range cfg.Assignments {
		a := &cfg.Assignments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.ConfigID = cfg.ID
		const insert = `INSERT INTO period_assignments (id, config_id, period, course_id, special_type) VALUES (:id, :config_id, :period, :course_id, :special_type)`
		if _, err := sqlx.NamedExecContext(ctx, tx, insert, a); err != nil {
			return fmt.Errorf("insert period assignment: %w", err)
		}
	}
	return nil
}

// Delete removes a configuration and its assignments.
func (r *ScheduleConfigRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete schedule config: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM period_assignments WHERE config_id = $1`, id); err != nil {
		return fmt.Errorf("delete period assignments: %w", err)
	}
	var res sql.Result
	if res, err = tx.ExecContext(ctx, `DELETE FROM schedule_configs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete schedule config: %w", err)
	}
	return nil
}
