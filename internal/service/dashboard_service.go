package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/coaching-console/internal/aggregate"
	"github.com/noah-isme/coaching-console/internal/models"
)

type rosterReader interface {
	List(ctx context.Context) (View[[]models.Student], error)
}

type testLister interface {
	ListTests(ctx context.Context) (View[[]models.Test], error)
}

// DashboardServiceConfig tunes dashboard selections.
type DashboardServiceConfig struct {
	LowAttendanceThreshold int
	SummaryLimit           int
}

// DashboardSummary is the console landing view. Every figure is derived from the cached
// roster and test list on each call.
type DashboardSummary struct {
	TotalStudents   int                      `json:"total_students"`
	TotalClasses    int                      `json:"total_classes"`
	TotalTests      int                      `json:"total_tests"`
	Classes         []models.Class           `json:"classes"`
	FeeDistribution aggregate.FeeDistribution `json:"fee_distribution"`
	Fees            aggregate.FeeSummary     `json:"fees"`
	LowAttendance   []models.Student         `json:"low_attendance"`
	PendingFees     []models.Student         `json:"pending_fees"`
	Subjects        []aggregate.SubjectCount `json:"subjects"`
	Stale           bool                     `json:"stale"`
	GeneratedAt     time.Time                `json:"generated_at"`
}

// DashboardService composes the landing summary.
type DashboardService struct {
	students rosterReader
	tests    testLister
	logger   *zap.Logger
	now      func() time.Time
	cfg      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService. A nil test lister leaves the
// test figures empty.
func NewDashboardService(students rosterReader, tests testLister, cfg DashboardServiceConfig, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LowAttendanceThreshold <= 0 {
		cfg.LowAttendanceThreshold = aggregate.DefaultLowAttendanceThreshold
	}
	if cfg.SummaryLimit <= 0 {
		cfg.SummaryLimit = aggregate.DefaultSummaryLimit
	}
	return &DashboardService{students: students, tests: tests, logger: logger, now: time.Now, cfg: cfg}
}

// Summary builds the dashboard. The roster is required; a failing test list only
// empties the test figures.
func (s *DashboardService) Summary(ctx context.Context) (View[DashboardSummary], error) {
	roster, err := s.students.List(ctx)
	if err != nil {
		return View[DashboardSummary]{}, err
	}

	summary := derive(roster, func(students []models.Student) DashboardSummary {
		classes := aggregate.GroupByClass(students)
		return DashboardSummary{
			TotalStudents:   len(students),
			TotalClasses:    len(classes),
			Classes:         classes,
			FeeDistribution: aggregate.FeeStatusDistribution(students),
			Fees:            aggregate.SummarizeFees(students),
			LowAttendance:   aggregate.LowAttendance(students, s.cfg.LowAttendanceThreshold, s.cfg.SummaryLimit),
			PendingFees:     aggregate.PendingFees(students, s.cfg.SummaryLimit),
		}
	})

	if s.tests != nil {
		tests, err := s.tests.ListTests(ctx)
		if err != nil {
			s.logger.Warn("dashboard test list unavailable", zap.Error(err))
		} else {
			summary.Data.TotalTests = len(tests.Data)
			summary.Data.Subjects = aggregate.SubjectDistribution(tests.Data)
			summary.Stale = summary.Stale || tests.Stale
			summary.Fetching = summary.Fetching || tests.Fetching
			if summary.Error == nil {
				summary.Error = tests.Error
			}
		}
	}
	summary.Data.Stale = summary.Stale
	summary.Data.GeneratedAt = s.now().UTC()
	return summary, nil
}
