package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/service"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
	"github.com/noah-isme/coaching-console/pkg/response"
)

type attendanceService interface {
	ForStudent(ctx context.Context, studentID string, period models.DateRange) (service.View[service.StudentAttendance], error)
	ForDay(ctx context.Context, day time.Time) (service.View[service.DayAttendance], error)
	Mark(ctx context.Context, day time.Time, marks []models.AttendanceMark) ([]models.AttendanceRecord, error)
}

// AttendanceHandler exposes attendance reads and marking.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// ForStudent returns a student's records with stats, optionally within from/to.
func (h *AttendanceHandler) ForStudent(c *gin.Context) {
	from, err := parseDay(c.Query("from"), "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := parseDay(c.Query("to"), "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.attendance.ForStudent(c.Request.Context(), c.Param("id"), models.DateRange{From: from, To: to})
	respondView(c, view, err)
}

// ForDay returns every record of the date query parameter.
func (h *AttendanceHandler) ForDay(c *gin.Context) {
	day, err := parseDay(c.Query("date"), "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	if day.IsZero() {
		response.Error(c, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "date is required"),
			map[string]string{"date": "required"}))
		return
	}
	view, err := h.attendance.ForDay(c.Request.Context(), day)
	respondView(c, view, err)
}

type markRequest struct {
	Date  string                  `json:"date"`
	Marks []models.AttendanceMark `json:"marks"`
}

// Mark records the statuses of one day.
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req markRequest
	if !bindJSON(c, &req) {
		return
	}
	day, err := parseDay(req.Date, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.attendance.Mark(c.Request.Context(), day, req.Marks)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, records)
}
