package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// PeriodAssignment binds one period number of a configuration to a course,
// to a special period type (e.g. recess supervision), or to nothing.
type PeriodAssignment struct {
	ID          string  `db:"id" json:"id"`
	ConfigID    string  `db:"config_id" json:"config_id"`
	Period      int     `db:"period" json:"period"`
	CourseID    *string `db:"course_id" json:"course_id,omitempty"`
	SpecialType *string `db:"special_type" json:"special_type,omitempty"`
}

// IsCourse reports whether the period is bound to a course.
func (a PeriodAssignment) IsCourse() bool {
	return a.CourseID != nil && *a.CourseID != ""
}

// IsSpecial reports whether the period is reserved for a special period type.
func (a PeriodAssignment) IsSpecial() bool {
	return a.SpecialType != nil && *a.SpecialType != ""
}

// ScheduleConfig describes the teaching-day grid a schedule is generated on.
// It is immutable for the lifetime of an editing session.
type ScheduleConfig struct {
	ID            string             `db:"id" json:"id"`
	Title         string             `db:"title" json:"title"`
	StartDate     time.Time          `db:"start_date" json:"start_date"`
	EndDate       time.Time          `db:"end_date" json:"end_date"`
	TeachingDays  pq.StringArray     `db:"teaching_days" json:"teaching_days"`
	PeriodsPerDay int                `db:"periods_per_day" json:"periods_per_day"`
	Assignments   []PeriodAssignment `db:"-" json:"period_assignments"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

var weekdayNames = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

// ParseWeekday resolves a configured weekday name. The second return value
// is false for unknown names.
func ParseWeekday(name string) (time.Weekday, bool) {
	day, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(name))]
	return day, ok
}

// TeachingWeekdays converts the configured day names into a weekday set.
// Unknown names are skipped.
func (c *ScheduleConfig) TeachingWeekdays() map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(c.TeachingDays))
	for _, name := range c.TeachingDays {
		if day, ok := ParseWeekday(name); ok {
			set[day] = true
		}
	}
	return set
}

// AssignmentForPeriod returns the assignment record for a period number.
func (c *ScheduleConfig) AssignmentForPeriod(period int) (PeriodAssignment, bool) {
	for _, a := range c.Assignments {
		if a.Period == period {
			return a, true
		}
	}
	return PeriodAssignment{}, false
}

// ScheduleConfigFilter describes query params for listing configurations.
type ScheduleConfigFilter struct {
	Search   string
	Page     int
	PageSize int
}
