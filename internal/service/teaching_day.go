package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/planbook/planbook-api/internal/models"
)

// maxDaySearch caps every day-stepping loop in the engine. A schedule range
// never spans more than a school year, so hitting the cap means the weekday
// set is empty or the event collection is corrupt; the search then logs a
// diagnostic and falls back to its starting candidate.
const maxDaySearch = 365

// TeachingDayCalculator provides the pure date utilities the scheduling
// engine is built on. It holds no state beyond observability handles.
type TeachingDayCalculator struct {
	logger  *zap.Logger
	metrics *MetricsService
}

// NewTeachingDayCalculator constructs the calculator.
func NewTeachingDayCalculator(logger *zap.Logger, metrics *MetricsService) *TeachingDayCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeachingDayCalculator{logger: logger, metrics: metrics}
}

// IsTeachingDay reports whether the date's weekday is in the configured set.
func (c *TeachingDayCalculator) IsTeachingDay(date time.Time, teachingDays map[time.Weekday]bool) bool {
	return teachingDays[date.Weekday()]
}

// NextTeachingDay returns the smallest date >= the input that is a teaching
// day. When the bounded search fails the input candidate is returned
// unchanged.
func (c *TeachingDayCalculator) NextTeachingDay(date time.Time, teachingDays map[time.Weekday]bool) time.Time {
	candidate := models.Day(date)
	for i := 0; i < maxDaySearch; i++ {
		if c.IsTeachingDay(candidate, teachingDays) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	c.searchExhausted("next_teaching_day", date)
	return models.Day(date)
}

// TeachingDaysBetween enumerates all teaching days in [start, end],
// ascending. The result is finite and recomputable: the function keeps no
// hidden state.
func (c *TeachingDayCalculator) TeachingDaysBetween(start, end time.Time, teachingDays map[time.Weekday]bool) []time.Time {
	var days []time.Time
	for d := models.Day(start); !d.After(models.Day(end)); d = d.AddDate(0, 0, 1) {
		if c.IsTeachingDay(d, teachingDays) {
			days = append(days, d)
		}
	}
	return days
}

// IsSlotBlocked reports whether (date, period) is occupied by an event that
// preempts lesson placement. Lesson and error events do not block: they are
// what the caller is placing or replacing.
func (c *TeachingDayCalculator) IsSlotBlocked(date time.Time, period int, events []*models.ScheduleEvent) bool {
	for _, ev := range events {
		if ev.Period == period && models.SameDay(ev.Date, date) && ev.BlocksLessons() {
			return true
		}
	}
	return false
}

// NextOpenSlot finds the first date >= the candidate that is a teaching day
// whose (date, period) slot is not blocked. Falls back to the candidate when
// the bounded search is exhausted.
func (c *TeachingDayCalculator) NextOpenSlot(candidate time.Time, period int, teachingDays map[time.Weekday]bool, events []*models.ScheduleEvent) time.Time {
	day := models.Day(candidate)
	for i := 0; i < maxDaySearch; i++ {
		if c.IsTeachingDay(day, teachingDays) && !c.IsSlotBlocked(day, period, events) {
			return day
		}
		day = day.AddDate(0, 0, 1)
	}
	c.searchExhausted("next_open_slot", candidate)
	return models.Day(candidate)
}

// PreviousOpenSlot is the backward counterpart of NextOpenSlot, used when
// lessons move earlier after a special day is removed.
func (c *TeachingDayCalculator) PreviousOpenSlot(candidate time.Time, period int, teachingDays map[time.Weekday]bool, events []*models.ScheduleEvent) time.Time {
	day := models.Day(candidate)
	for i := 0; i < maxDaySearch; i++ {
		if c.IsTeachingDay(day, teachingDays) && !c.IsSlotBlocked(day, period, events) {
			return day
		}
		day = day.AddDate(0, 0, -1)
	}
	c.searchExhausted("previous_open_slot", candidate)
	return models.Day(candidate)
}

func (c *TeachingDayCalculator) searchExhausted(op string, candidate time.Time) {
	c.logger.Warn("day search exhausted, keeping starting candidate",
		zap.String("operation", op),
		zap.Time("candidate", candidate),
		zap.Int("cap", maxDaySearch),
	)
	if c.metrics != nil {
		c.metrics.RecordSearchExhausted(op)
	}
}
