package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/planbook/planbook-api/internal/models"
)

// ScheduleRepository provides persistence for schedules and their events.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FindByConfig loads the schedule attached to a configuration along with
// all of its events. sql.ErrNoRows when none exists.
func (r *ScheduleRepository) FindByConfig(ctx context.Context, configID string) (*models.Schedule, error) {
	const query = `SELECT id, title, config_id, created_at, updated_at FROM schedules WHERE config_id = $1`
	var sched models.Schedule
	if err := r.db.GetContext(ctx, &sched, query, configID); err != nil {
		return nil, err
	}

	const eventsQuery = `SELECT id, schedule_id, event_date, period, course_id, lesson_id, event_type, category, comment FROM schedule_events WHERE schedule_id = $1 ORDER BY event_date ASC, period ASC`
	var events []models.ScheduleEvent
	if err := r.db.SelectContext(ctx, &events, eventsQuery, sched.ID); err != nil {
		return nil, fmt.Errorf("load schedule events: %w", err)
	}
	sched.Events = make([]*models.ScheduleEvent, len(events))
	for i := range events {
		sched.Events[i] = &events[i]
	}
	return &sched, nil
}

// FindByID loads a schedule header by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	const query = `SELECT id, title, config_id, created_at, updated_at FROM schedules WHERE id = $1`
	var sched models.Schedule
	if err := r.db.GetContext(ctx, &sched, query, id); err != nil {
		return nil, err
	}
	return &sched, nil
}

// Create stores a new schedule record.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	const query = `INSERT INTO schedules (id, title, config_id, created_at, updated_at) VALUES (:id, :title, :config_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// SaveEvents persists the schedule's event collection within a single
// transaction. Events carrying provisional negative IDs are inserted and
// receive their permanent identity in place; persisted events are updated;
// rows no longer present in the collection are removed. The dirty flag
// clears only after commit.
func (r *ScheduleRepository) SaveEvents(ctx context.Context, schedule *models.Schedule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save events: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	kept := make([]int64, 0, len(schedule.Events))
	assigned := make(map[*models.ScheduleEvent]int64, len(schedule.Events))

	for _, ev := range schedule.Events {
		ev.ScheduleID = schedule.ID
		if ev.Saved() {
			const update = `UPDATE schedule_events SET event_date = :event_date, period = :period, course_id = :course_id, lesson_id = :lesson_id, event_type = :event_type, category = :category, comment = :comment WHERE id = :id AND schedule_id = :schedule_id`
			if _, err = sqlx.NamedExecContext(ctx, tx, update, ev); err != nil {
				return fmt.Errorf("update schedule event %d: %w", ev.ID, err)
			}
			kept = append(kept, ev.ID)
			continue
		}

		const insert = `INSERT INTO schedule_events (schedule_id, event_date, period, course_id, lesson_id, event_type, category, comment) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
		var permanent int64
		if err = tx.GetContext(ctx, &permanent, insert,
			ev.ScheduleID, ev.Date, ev.Period, ev.CourseID, ev.LessonID, ev.EventType, ev.Category, ev.Comment,
		); err != nil {
			return fmt.Errorf("insert schedule event: %w", err)
		}
		assigned[ev] = permanent
		kept = append(kept, permanent)
	}

	if err = r.deleteMissingEvents(ctx, tx, schedule.ID, kept); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE schedules SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), schedule.ID); err != nil {
		return fmt.Errorf("touch schedule: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save events: %w", err)
	}

	for ev, id := range assigned {
		ev.ID = id
	}
	schedule.Dirty = false
	return nil
}

func (r *ScheduleRepository) deleteMissingEvents(ctx context.Context, tx *sqlx.Tx, scheduleID string, kept []int64) error {
	if len(kept) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_events WHERE schedule_id = $1`, scheduleID); err != nil {
			return fmt.Errorf("clear schedule events: %w", err)
		}
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM schedule_events WHERE schedule_id = ? AND id NOT IN (?)`, scheduleID, kept)
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("delete stale schedule events: %w", err)
	}
	return nil
}

// Delete removes a schedule and its events.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete schedule: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_events WHERE schedule_id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule events: %w", err)
	}
	var res sql.Result
	if res, err = tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete schedule: %w", err)
	}
	return nil
}
