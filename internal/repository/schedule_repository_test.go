package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbook/planbook-api/internal/models"
)

func TestFindByConfigLoadsEvents(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	now := time.Now()
	headerRows := sqlmock.NewRows([]string{"id", "title", "config_id", "created_at", "updated_at"}).
		AddRow("sched-1", "Week 1", "cfg-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, config_id, created_at, updated_at FROM schedules WHERE config_id = $1")).
		WithArgs("cfg-1").
		WillReturnRows(headerRows)

	eventRows := sqlmock.NewRows([]string{"id", "schedule_id", "event_date", "period", "course_id", "lesson_id", "event_type", "category", "comment"}).
		AddRow(int64(1), "sched-1", now, 1, "course-1", "L1", string(models.EventTypeLesson), "lesson", nil).
		AddRow(int64(2), "sched-1", now.AddDate(0, 0, 1), 1, nil, nil, string(models.EventTypeError), "error", "no lesson assigned")
	mock.ExpectQuery("SELECT id, schedule_id, event_date, period, course_id, lesson_id, event_type, category, comment FROM schedule_events").
		WithArgs("sched-1").
		WillReturnRows(eventRows)

	sched, err := repo.FindByConfig(context.Background(), "cfg-1")
	require.NoError(t, err)
	assert.Equal(t, "sched-1", sched.ID)
	require.Len(t, sched.Events, 2)
	assert.Equal(t, models.EventTypeLesson, sched.Events[0].EventType)
	require.NotNil(t, sched.Events[1].Comment)
	assert.Equal(t, "no lesson assigned", *sched.Events[1].Comment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByConfigNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery("SELECT id, title, config_id, created_at, updated_at FROM schedules").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByConfig(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateScheduleAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec("INSERT INTO schedules").WillReturnResult(sqlmock.NewResult(1, 1))

	sched := &models.Schedule{Title: "Week 1", ConfigID: "cfg-1"}
	err := repo.Create(context.Background(), sched)
	require.NoError(t, err)
	assert.NotEmpty(t, sched.ID)
	assert.False(t, sched.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEventsAssignsPermanentIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	courseID := "course-1"
	lessonID := "L2"
	saved := &models.ScheduleEvent{ID: 10, Date: time.Now(), Period: 1, CourseID: &courseID, LessonID: &lessonID, EventType: models.EventTypeLesson, Category: "lesson"}
	provisional := &models.ScheduleEvent{ID: -1, Date: time.Now().AddDate(0, 0, 1), Period: 1, EventType: models.EventTypeSpecial, Category: "excursion"}
	sched := &models.Schedule{ID: "sched-1", Events: []*models.ScheduleEvent{saved, provisional}, Dirty: true}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE schedule_events SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO schedule_events").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("DELETE FROM schedule_events WHERE schedule_id").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE schedules SET updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveEvents(context.Background(), sched)
	require.NoError(t, err)
	assert.Equal(t, int64(11), provisional.ID)
	assert.Equal(t, int64(10), saved.ID)
	assert.False(t, sched.Dirty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEventsRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	provisional := &models.ScheduleEvent{ID: -1, Date: time.Now(), Period: 1, EventType: models.EventTypeLesson, Category: "lesson"}
	sched := &models.Schedule{ID: "sched-1", Events: []*models.ScheduleEvent{provisional}, Dirty: true}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO schedule_events").WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.SaveEvents(context.Background(), sched)
	require.Error(t, err)
	assert.True(t, sched.Dirty, "the dirty flag survives a failed save")
	assert.Negative(t, provisional.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteScheduleMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM schedule_events").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM schedules").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
