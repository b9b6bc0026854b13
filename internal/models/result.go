package models

// OperationResult is the envelope every engine entry point reports back to
// its caller. Overflow conditions are warnings, not failures: the operation
// still succeeds and the condition is visible on the calendar itself.
type OperationResult struct {
	Success          bool     `json:"success"`
	EventsAdded      int      `json:"events_added"`
	EventsShifted    int      `json:"events_shifted"`
	EventsOverflowed int      `json:"events_overflowed"`
	Errors           []string `json:"errors,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// AddWarning appends a warning without affecting success.
func (r *OperationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError appends an error and marks the result failed.
func (r *OperationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Success = false
}

// ContinuationResult summarises continuation generation for one
// (period, course) pairing.
type ContinuationResult struct {
	Period            int    `json:"period"`
	CourseID          string `json:"course_id"`
	EventsAdded       int    `json:"events_added"`
	LessonsRemaining  int    `json:"lessons_remaining"`
	LastAssignedIndex int    `json:"last_assigned_index"`
	Overflowed        bool   `json:"overflowed"`
}
