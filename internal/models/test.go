package models

import "time"

// Test defines an assessment sat by a class.
type Test struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Subject    string     `db:"subject" json:"subject"`
	Class      ClassLabel `db:"class" json:"class"`
	Date       time.Time  `db:"test_date" json:"date"`
	TotalMarks float64    `db:"total_marks" json:"total_marks"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// TestResult binds a student to a test with the marks obtained.
type TestResult struct {
	ID            string    `db:"id" json:"id"`
	TestID        string    `db:"test_id" json:"test_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	MarksObtained float64   `db:"marks_obtained" json:"marks_obtained"`
	Percentage    float64   `db:"percentage" json:"percentage"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TestInput is the payload for scheduling a test.
type TestInput struct {
	Name       string     `json:"name" validate:"required,max=120"`
	Subject    string     `json:"subject" validate:"required"`
	Class      ClassLabel `json:"class" validate:"required"`
	Date       time.Time  `json:"date" validate:"required"`
	TotalMarks float64    `json:"total_marks" validate:"gt=0"`
}

// ResultInput records the marks of one student in one test.
type ResultInput struct {
	TestID        string  `json:"test_id" validate:"required"`
	StudentID     string  `json:"student_id" validate:"required"`
	MarksObtained float64 `json:"marks_obtained" validate:"gte=0"`
}
