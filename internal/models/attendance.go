package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "Present"
	AttendanceStatusAbsent  AttendanceStatus = "Absent"
	AttendanceStatusLeave   AttendanceStatus = "Leave"
	AttendanceStatusHoliday AttendanceStatus = "Holiday"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLeave, AttendanceStatusHoliday:
		return true
	default:
		return false
	}
}

// DateLayout is the calendar-day layout used for attendance keys.
const DateLayout = "2006-01-02"

// AttendanceRecord is one student's status for one calendar day. (StudentID, Date) is unique.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceMark sets the status of one student on the marked day.
type AttendanceMark struct {
	StudentID string           `json:"student_id" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required,oneof=Present Absent Leave Holiday"`
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is a closed interval of calendar days. Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether day falls within the range.
func (r DateRange) Contains(day time.Time) bool {
	day = Day(day)
	if !r.From.IsZero() && day.Before(Day(r.From)) {
		return false
	}
	if !r.To.IsZero() && day.After(Day(r.To)) {
		return false
	}
	return true
}

// String renders the range for use in cache keys.
func (r DateRange) String() string {
	from, to := "*", "*"
	if !r.From.IsZero() {
		from = r.From.Format(DateLayout)
	}
	if !r.To.IsZero() {
		to = r.To.Format(DateLayout)
	}
	return from + ".." + to
}
