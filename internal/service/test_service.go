package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/coaching-console/internal/aggregate"
	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/mutation"
	"github.com/noah-isme/coaching-console/internal/query"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

type testRepository interface {
	ListTests(ctx context.Context) ([]models.Test, error)
	CreateTest(ctx context.Context, test *models.Test) error
	ListResults(ctx context.Context, testID string) ([]models.TestResult, error)
	ListResultsByStudent(ctx context.Context, studentID string) ([]models.TestResult, error)
	UpsertResult(ctx context.Context, result *models.TestResult) (*models.TestResult, error)
}

// TestsKey caches every test definition.
const TestsKey = "tests"

// TestResultsKey caches the results of one test.
func TestResultsKey(testID string) string { return query.Key("test_results", testID) }

// StudentResultsKey caches the results of one student.
func StudentResultsKey(studentID string) string { return query.Key("student_results", studentID) }

// TestReport is a test with its results and their derived distribution.
type TestReport struct {
	Test    models.Test            `json:"test"`
	Results []models.TestResult    `json:"results"`
	Grades  []aggregate.GradeCount `json:"grades"`
	Average aggregate.TestAverage  `json:"average"`
}

// TestService manages tests and recorded results.
type TestService struct {
	core      Core
	repo      testRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTestService constructs a TestService.
func NewTestService(core Core, repo testRepository, validate *validator.Validate, logger *zap.Logger) *TestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = newValidator()
	}
	return &TestService{core: core, repo: repo, validator: validate, logger: logger}
}

// ListTests returns every test, most recent first.
func (s *TestService) ListTests(ctx context.Context) (View[[]models.Test], error) {
	return load(ctx, s.core, TestsKey, s.repo.ListTests)
}

// CreateTest schedules a test.
func (s *TestService) CreateTest(ctx context.Context, input models.TestInput) (*models.Test, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, invalid(err, "invalid test payload")
	}
	test := &models.Test{
		Name:       strings.TrimSpace(input.Name),
		Subject:    strings.TrimSpace(input.Subject),
		Class:      input.Class,
		Date:       models.Day(input.Date),
		TotalMarks: input.TotalMarks,
	}
	return mutation.Run(ctx, s.core.Pipeline, mutation.OpCreateTest, nil,
		func(ctx context.Context) (*models.Test, error) {
			if err := s.repo.CreateTest(ctx, test); err != nil {
				return nil, err
			}
			return test, nil
		})
}

// Results returns the results of one test.
func (s *TestService) Results(ctx context.Context, testID string) (View[[]models.TestResult], error) {
	testID = strings.TrimSpace(testID)
	if testID == "" {
		return View[[]models.TestResult]{}, appErrors.Clone(appErrors.ErrValidation, "test id is required")
	}
	return load(ctx, s.core, TestResultsKey(testID), func(ctx context.Context) ([]models.TestResult, error) {
		return s.repo.ListResults(ctx, testID)
	})
}

// StudentResults returns every result of one student.
func (s *TestService) StudentResults(ctx context.Context, studentID string) (View[[]models.TestResult], error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return View[[]models.TestResult]{}, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	return load(ctx, s.core, StudentResultsKey(studentID), func(ctx context.Context) ([]models.TestResult, error) {
		return s.repo.ListResultsByStudent(ctx, studentID)
	})
}

// Report combines a test with its results, grade distribution and average.
func (s *TestService) Report(ctx context.Context, testID string) (View[TestReport], error) {
	test, err := s.find(ctx, testID)
	if err != nil {
		return View[TestReport]{}, err
	}
	results, err := s.Results(ctx, testID)
	if err != nil {
		return View[TestReport]{}, err
	}
	return derive(results, func(rs []models.TestResult) TestReport {
		report := TestReport{Test: test, Results: rs, Grades: aggregate.GradeDistribution(rs)}
		if averages := aggregate.TestAverages([]models.Test{test}, rs); len(averages) == 1 {
			report.Average = averages[0]
		}
		return report
	}), nil
}

// RecordResult stores the marks of a student in a test. The percentage is computed
// from the test's total marks; recording again replaces the earlier result.
func (s *TestService) RecordResult(ctx context.Context, input models.ResultInput) (*models.TestResult, error) {
	input.TestID = strings.TrimSpace(input.TestID)
	input.StudentID = strings.TrimSpace(input.StudentID)
	if err := s.validator.Struct(input); err != nil {
		return nil, invalid(err, "invalid result payload")
	}
	test, err := s.find(ctx, input.TestID)
	if err != nil {
		return nil, err
	}
	if input.MarksObtained > test.TotalMarks {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "marks exceed the test total"),
			map[string]string{"marks_obtained": "lte=" + trimFloat(test.TotalMarks)})
	}
	result := &models.TestResult{
		TestID:        input.TestID,
		StudentID:     input.StudentID,
		MarksObtained: input.MarksObtained,
		Percentage:    aggregate.ResultPercentage(input.MarksObtained, test.TotalMarks),
	}
	params := map[string]string{"testId": input.TestID, "studentId": input.StudentID}
	stored, err := mutation.Run(ctx, s.core.Pipeline, mutation.OpRecordResult, params,
		func(ctx context.Context) (*models.TestResult, error) {
			return s.repo.UpsertResult(ctx, result)
		})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("result recorded", zap.String("test_id", stored.TestID), zap.String("student_id", stored.StudentID),
		zap.String("grade", aggregate.GradeFor(stored.Percentage)))
	return stored, nil
}

// find looks testID up in the cached test list, refreshing a stale list once before
// giving up.
func (s *TestService) find(ctx context.Context, testID string) (models.Test, error) {
	testID = strings.TrimSpace(testID)
	tests, err := s.ListTests(ctx)
	if err != nil {
		return models.Test{}, err
	}
	if t, ok := findTest(tests.Data, testID); ok {
		return t, nil
	}
	if tests.Stale {
		res, err := s.core.Cache.Fetch(ctx, TestsKey, query.Typed(s.repo.ListTests), s.core.options())
		if err != nil {
			return models.Test{}, appErrors.FromError(err)
		}
		fresh, _ := query.As[[]models.Test](res)
		if t, ok := findTest(fresh, testID); ok {
			return t, nil
		}
	}
	return models.Test{}, appErrors.Clone(appErrors.ErrNotFound, "test not found")
}

func findTest(tests []models.Test, id string) (models.Test, bool) {
	for _, t := range tests {
		if t.ID == id {
			return t, true
		}
	}
	return models.Test{}, false
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
