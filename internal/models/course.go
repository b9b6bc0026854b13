package models

import "time"

// Course groups an ordered tree of topics and lessons taught in one period.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Subject   string    `db:"subject" json:"subject"`
	Color     *string   `db:"color" json:"color,omitempty"`
	Topics    []Topic   `db:"-" json:"topics,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Topic is an ordered chapter inside a course.
type Topic struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	Position  int       `db:"position" json:"position"`
	Lessons   []Lesson  `db:"-" json:"lessons,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Lesson is the atomic teaching unit placed onto schedule slots.
type Lesson struct {
	ID        string    `db:"id" json:"id"`
	TopicID   string    `db:"topic_id" json:"topic_id"`
	Title     string    `db:"title" json:"title"`
	Position  int       `db:"position" json:"position"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CourseFilter describes query params for listing courses.
type CourseFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
