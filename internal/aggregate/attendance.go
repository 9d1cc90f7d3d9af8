// Package aggregate derives summary views from cached raw collections. Every function
// is pure and recomputes from its inputs.
package aggregate

import (
	"sort"
	"time"

	"github.com/noah-isme/coaching-console/internal/models"
)

// AttendanceStats summarises a set of attendance records. Holidays are counted but do
// not contribute to Total.
type AttendanceStats struct {
	Present    int `json:"present"`
	Absent     int `json:"absent"`
	Leave      int `json:"leave"`
	Holiday    int `json:"holiday"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// MonthlyAttendance is the attendance of one calendar month.
type MonthlyAttendance struct {
	Month string          `json:"month"`
	Stats AttendanceStats `json:"stats"`
}

// ComputeAttendanceStats counts records by status. Percentage is present/total rounded
// half up, or 0 when there are no countable days.
func ComputeAttendanceStats(records []models.AttendanceRecord) AttendanceStats {
	var stats AttendanceStats
	for _, r := range records {
		switch r.Status {
		case models.AttendanceStatusPresent:
			stats.Present++
		case models.AttendanceStatusAbsent:
			stats.Absent++
		case models.AttendanceStatusLeave:
			stats.Leave++
		case models.AttendanceStatusHoliday:
			stats.Holiday++
		}
	}
	stats.Total = stats.Present + stats.Absent + stats.Leave
	stats.Percentage = Percent(stats.Present, stats.Total)
	return stats
}

// Percent returns part/whole*100 rounded half up. A non-positive whole yields 0.
func Percent(part, whole int) int {
	if whole <= 0 || part <= 0 {
		return 0
	}
	return (part*200 + whole) / (2 * whole)
}

// MonthlyBreakdown groups records by calendar month, oldest first.
func MonthlyBreakdown(records []models.AttendanceRecord) []MonthlyAttendance {
	byMonth := make(map[string][]models.AttendanceRecord)
	for _, r := range records {
		month := r.Date.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], r)
	}
	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	out := make([]MonthlyAttendance, 0, len(months))
	for _, month := range months {
		out = append(out, MonthlyAttendance{Month: month, Stats: ComputeAttendanceStats(byMonth[month])})
	}
	return out
}

// DailyAttendance computes the stats of the records that fall on day.
func DailyAttendance(records []models.AttendanceRecord, day time.Time) AttendanceStats {
	target := models.Day(day)
	onDay := make([]models.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if models.Day(r.Date).Equal(target) {
			onDay = append(onDay, r)
		}
	}
	return ComputeAttendanceStats(onDay)
}
