package models

import "time"

// EventType classifies what occupies a (date, period) slot.
type EventType string

const (
	// EventTypeLesson marks a slot carrying a course lesson.
	EventTypeLesson EventType = "LESSON"
	// EventTypeError marks a slot that should carry a lesson but cannot
	// (sequence exhausted or overflow past the configured end date).
	EventTypeError EventType = "ERROR"
	// EventTypeSpecial marks a non-teaching slot (holiday, excursion,
	// reserved special period). Special events preempt lesson placement.
	EventTypeSpecial EventType = "SPECIAL"
	// EventTypeFree marks an unassigned placeholder slot.
	EventTypeFree EventType = "FREE"
)

// ScheduleEvent is the atomic scheduling unit. Events with a negative ID
// have not been persisted yet; the repository assigns permanent IDs on save.
type ScheduleEvent struct {
	ID         int64     `db:"id" json:"id"`
	ScheduleID string    `db:"schedule_id" json:"schedule_id"`
	Date       time.Time `db:"event_date" json:"date"`
	Period     int       `db:"period" json:"period"`
	CourseID   *string   `db:"course_id" json:"course_id,omitempty"`
	LessonID   *string   `db:"lesson_id" json:"lesson_id,omitempty"`
	EventType  EventType `db:"event_type" json:"event_type"`
	Category   string    `db:"category" json:"category"`
	Comment    *string   `db:"comment" json:"comment,omitempty"`
}

// Saved reports whether the event has a permanent database identity.
func (e *ScheduleEvent) Saved() bool {
	return e.ID > 0
}

// BlocksLessons reports whether the event reserves its slot against lesson
// placement. Lesson and error events do not block: they are themselves the
// thing being placed or replaced.
func (e *ScheduleEvent) BlocksLessons() bool {
	return e.EventType != EventTypeLesson && e.EventType != EventTypeError
}

// Day normalizes a timestamp to midnight UTC so events compare by calendar
// date regardless of the clock component callers pass in.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// Schedule is the active planning container: one ordered event collection
// that all engine components read and mutate by reference.
type Schedule struct {
	ID        string           `db:"id" json:"id"`
	Title     string           `db:"title" json:"title"`
	ConfigID  string           `db:"config_id" json:"config_id"`
	Events    []*ScheduleEvent `db:"-" json:"events"`
	Dirty     bool             `db:"-" json:"dirty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// EventAt returns the event occupying (date, period), if any. At most one
// event may occupy a slot at any time.
func (s *Schedule) EventAt(date time.Time, period int) *ScheduleEvent {
	for _, ev := range s.Events {
		if ev.Period == period && SameDay(ev.Date, date) {
			return ev
		}
	}
	return nil
}

// RemoveEventAt deletes the event at (date, period) from the collection and
// reports whether one was present.
func (s *Schedule) RemoveEventAt(date time.Time, period int) bool {
	for i, ev := range s.Events {
		if ev.Period == period && SameDay(ev.Date, date) {
			s.Events = append(s.Events[:i], s.Events[i+1:]...)
			s.Dirty = true
			return true
		}
	}
	return false
}

// NextLocalID returns the next provisional event ID: a strictly decreasing
// negative integer below every ID already in the collection.
func (s *Schedule) NextLocalID() int64 {
	next := int64(-1)
	for _, ev := range s.Events {
		if ev.ID <= next {
			next = ev.ID - 1
		}
	}
	return next
}

// ScheduleEventFilter narrows event listings.
type ScheduleEventFilter struct {
	From      *time.Time
	To        *time.Time
	Period    *int
	EventType *EventType
}

// Matches reports whether an event passes the filter.
func (f ScheduleEventFilter) Matches(ev *ScheduleEvent) bool {
	if f.From != nil && Day(ev.Date).Before(Day(*f.From)) {
		return false
	}
	if f.To != nil && Day(ev.Date).After(Day(*f.To)) {
		return false
	}
	if f.Period != nil && ev.Period != *f.Period {
		return false
	}
	if f.EventType != nil && ev.EventType != *f.EventType {
		return false
	}
	return true
}
