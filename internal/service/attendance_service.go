package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/coaching-console/internal/aggregate"
	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/mutation"
	"github.com/noah-isme/coaching-console/internal/query"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
	"github.com/noah-isme/coaching-console/pkg/jobs"
)

// AttendanceSyncJob recomputes and stores a student's attendance percentage.
const AttendanceSyncJob = "attendance.percentage_sync"

type attendanceRepository interface {
	List(ctx context.Context, studentID string, period models.DateRange) ([]models.AttendanceRecord, error)
	ListByDate(ctx context.Context, day time.Time) ([]models.AttendanceRecord, error)
	Upsert(ctx context.Context, records []models.AttendanceRecord) ([]models.AttendanceRecord, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// AttendanceKey caches a student's records over period.
func AttendanceKey(studentID string, period models.DateRange) string {
	return query.Key("attendance", studentID, period.String())
}

// AttendanceDayKey caches every record of one day.
func AttendanceDayKey(day time.Time) string {
	return query.Key("attendance_day", models.Day(day).Format(models.DateLayout))
}

// StudentAttendance is a student's attendance over a range with its derived stats.
type StudentAttendance struct {
	StudentID string                        `json:"student_id"`
	Range     string                        `json:"range"`
	Records   []models.AttendanceRecord     `json:"records"`
	Stats     aggregate.AttendanceStats     `json:"stats"`
	Monthly   []aggregate.MonthlyAttendance `json:"monthly"`
}

// DayAttendance is the attendance of every student on one day.
type DayAttendance struct {
	Date    string                    `json:"date"`
	Records []models.AttendanceRecord `json:"records"`
	Stats   aggregate.AttendanceStats `json:"stats"`
}

// AttendanceService reads and marks attendance. Confirmed marks schedule a sync of the
// affected students' cached percentages.
type AttendanceService struct {
	core      Core
	repo      attendanceRepository
	queue     jobDispatcher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs an AttendanceService. A nil queue disables percentage sync.
func NewAttendanceService(core Core, repo attendanceRepository, queue jobDispatcher, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = newValidator()
	}
	return &AttendanceService{core: core, repo: repo, queue: queue, validator: validate, logger: logger}
}

// ForStudent returns the student's records within period with stats and a monthly breakdown.
func (s *AttendanceService) ForStudent(ctx context.Context, studentID string, period models.DateRange) (View[StudentAttendance], error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return View[StudentAttendance]{}, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if !period.From.IsZero() && !period.To.IsZero() && period.To.Before(period.From) {
		return View[StudentAttendance]{}, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid date range"),
			map[string]string{"to": "must not be before from"})
	}
	records, err := load(ctx, s.core, AttendanceKey(studentID, period), func(ctx context.Context) ([]models.AttendanceRecord, error) {
		return s.repo.List(ctx, studentID, period)
	})
	if err != nil {
		return View[StudentAttendance]{}, err
	}
	return derive(records, func(rs []models.AttendanceRecord) StudentAttendance {
		return StudentAttendance{
			StudentID: studentID,
			Range:     period.String(),
			Records:   rs,
			Stats:     aggregate.ComputeAttendanceStats(rs),
			Monthly:   aggregate.MonthlyBreakdown(rs),
		}
	}), nil
}

// ForDay returns the attendance of every student on day.
func (s *AttendanceService) ForDay(ctx context.Context, day time.Time) (View[DayAttendance], error) {
	if day.IsZero() {
		return View[DayAttendance]{}, appErrors.Clone(appErrors.ErrValidation, "date is required")
	}
	day = models.Day(day)
	records, err := load(ctx, s.core, AttendanceDayKey(day), func(ctx context.Context) ([]models.AttendanceRecord, error) {
		return s.repo.ListByDate(ctx, day)
	})
	if err != nil {
		return View[DayAttendance]{}, err
	}
	return derive(records, func(rs []models.AttendanceRecord) DayAttendance {
		return DayAttendance{Date: day.Format(models.DateLayout), Records: rs, Stats: aggregate.DailyAttendance(rs, day)}
	}), nil
}

// Mark upserts the statuses of day in one write. Re-marking a student overwrites the
// earlier status for that day.
func (s *AttendanceService) Mark(ctx context.Context, day time.Time, marks []models.AttendanceMark) ([]models.AttendanceRecord, error) {
	if day.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date is required")
	}
	if len(marks) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no attendance marks given")
	}
	day = models.Day(day)

	records := make([]models.AttendanceRecord, 0, len(marks))
	students := make([]string, 0, len(marks))
	seen := make(map[string]struct{}, len(marks))
	for i, mark := range marks {
		mark.StudentID = strings.TrimSpace(mark.StudentID)
		if err := s.validator.Struct(mark); err != nil {
			return nil, invalid(err, fmt.Sprintf("invalid attendance mark at position %d", i))
		}
		if _, dup := seen[mark.StudentID]; dup {
			return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "student marked twice"),
				map[string]string{"student_id": mark.StudentID})
		}
		seen[mark.StudentID] = struct{}{}
		students = append(students, mark.StudentID)
		records = append(records, models.AttendanceRecord{StudentID: mark.StudentID, Date: day, Status: mark.Status})
	}

	params := map[string]string{"date": day.Format(models.DateLayout)}
	if len(students) == 1 {
		params["studentId"] = students[0]
	}
	stored, err := mutation.Run(ctx, s.core.Pipeline, mutation.OpUpsertAttendance, params,
		func(ctx context.Context) ([]models.AttendanceRecord, error) {
			return s.repo.Upsert(ctx, records)
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("attendance marked", zap.String("date", params["date"]), zap.Int("students", len(students)))
	s.scheduleSync(students)
	return stored, nil
}

func (s *AttendanceService) scheduleSync(students []string) {
	if s.queue == nil {
		return
	}
	for _, id := range students {
		job := jobs.Job{ID: AttendanceSyncJob + ":" + id, Type: AttendanceSyncJob, Payload: id}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to schedule attendance sync", zap.String("student_id", id), zap.Error(err))
		}
	}
}

type percentageStore interface {
	UpdateAttendancePercentage(ctx context.Context, id string, percentage int) error
}

// AttendanceSyncWorker recomputes a student's attendance percentage from all of their
// records and stores it on the student when it changed.
type AttendanceSyncWorker struct {
	core     Core
	records  attendanceRepository
	students percentageStore
	logger   *zap.Logger
}

// NewAttendanceSyncWorker constructs a worker.
func NewAttendanceSyncWorker(core Core, records attendanceRepository, students percentageStore, logger *zap.Logger) *AttendanceSyncWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceSyncWorker{core: core, records: records, students: students, logger: logger}
}

// Handle processes a queue job. Only retryable failures are returned to the queue.
func (w *AttendanceSyncWorker) Handle(ctx context.Context, job jobs.Job) error {
	studentID, _ := job.Payload.(string)
	if studentID == "" {
		w.logger.Warn("attendance sync job without student", zap.String("job_id", job.ID))
		return nil
	}

	opts := w.core.options()
	if opts.Enabled != nil && !opts.Enabled() {
		w.logger.Debug("attendance sync skipped while signed out", zap.String("student_id", studentID))
		return nil
	}
	var all models.DateRange
	res, err := w.core.Cache.Fetch(ctx, AttendanceKey(studentID, all), query.Typed(func(ctx context.Context) ([]models.AttendanceRecord, error) {
		return w.records.List(ctx, studentID, all)
	}), opts)
	if err != nil {
		return w.settle(studentID, err)
	}
	records, _ := query.As[[]models.AttendanceRecord](res)
	percentage := aggregate.ComputeAttendanceStats(records).Percentage

	if current, ok := w.cachedPercentage(studentID); ok && current == percentage {
		return nil
	}
	_, err = mutation.Run(ctx, w.core.Pipeline, mutation.OpSyncAttendancePercentage, map[string]string{"id": studentID},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.students.UpdateAttendancePercentage(ctx, studentID, percentage)
		})
	if err != nil {
		return w.settle(studentID, err)
	}
	w.logger.Debug("attendance percentage synced", zap.String("student_id", studentID), zap.Int("percentage", percentage))
	return nil
}

// cachedPercentage looks the student up in fresh cached roster data.
func (w *AttendanceSyncWorker) cachedPercentage(studentID string) (int, bool) {
	if res := w.core.Cache.Peek(StudentKey(studentID)); !res.IsStale {
		if student, ok := query.As[models.Student](res); ok {
			return student.AttendancePercentage, true
		}
	}
	res := w.core.Cache.Peek(StudentsKey)
	roster, ok := query.As[[]models.Student](res)
	if !ok || res.IsStale {
		return 0, false
	}
	for _, s := range roster {
		if s.ID == studentID {
			return s.AttendancePercentage, true
		}
	}
	return 0, false
}

func (w *AttendanceSyncWorker) settle(studentID string, err error) error {
	if appErrors.IsRetryable(err) {
		return err
	}
	w.logger.Warn("attendance sync dropped", zap.String("student_id", studentID), zap.Error(err))
	return nil
}
